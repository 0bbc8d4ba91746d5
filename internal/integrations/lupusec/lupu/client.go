// Package lupu talks to the local HTTP interface of Lupusec XT1/XT2 alarm
// panels. Every request goes to http://{ip}/action/{name} with basic auth.
package lupu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrConnection is returned when the panel cannot be reached or rejects
	// the credentials.
	ErrConnection = errors.New("lupu: cannot connect to panel")

	// ErrDeviceNotFound is returned when a device vanished from the panel's
	// device list.
	ErrDeviceNotFound = errors.New("lupu: device not found")
)

const defaultTimeout = 10 * time.Second

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client is a connection to one panel.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	logger   *zap.Logger
	model    int
}

// New connects to the panel at ip and detects its model. The panel is
// probed once; a transport failure or rejected credentials return an error
// wrapping ErrConnection.
func New(ctx context.Context, username, password, ip string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:  fmt.Sprintf("http://%s/action/", ip),
		username: username,
		password: password,
		http:     &http.Client{Timeout: defaultTimeout},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	cond, err := c.panelCondition(ctx)
	if err != nil {
		return nil, err
	}
	c.model = 1
	if _, ok := cond.Forms["pcondform2"]; ok {
		c.model = 2
	}
	c.logger.Debug("Connected to panel", zap.String("url", c.baseURL), zap.Int("model", c.model))
	return c, nil
}

// Model is 1 for XT1 panels and 2 for XT2 panels.
func (c *Client) Model() int {
	return c.model
}

type areaForm struct {
	Mode string `json:"mode"`
}

type panelCondition struct {
	Forms map[string]areaForm `json:"forms"`
}

func (c *Client) panelCondition(ctx context.Context) (*panelCondition, error) {
	var cond panelCondition
	if err := c.get(ctx, "panelCondGet", &cond); err != nil {
		return nil, err
	}
	return &cond, nil
}

// Mode reads the arming mode of area 1.
func (c *Client) Mode(ctx context.Context) (Mode, error) {
	cond, err := c.panelCondition(ctx)
	if err != nil {
		return ModeUnknown, err
	}
	form, ok := cond.Forms["pcondform1"]
	if !ok {
		return ModeUnknown, fmt.Errorf("lupu: panel condition has no area 1")
	}
	return parseMode(form.Mode), nil
}

type deviceList struct {
	Rows []deviceRow `json:"senrows"`
}

// Devices lists the sensors and actuators paired with the panel.
func (c *Client) Devices(ctx context.Context) ([]*Device, error) {
	rows, err := c.deviceRows(ctx)
	if err != nil {
		return nil, err
	}
	devices := make([]*Device, 0, len(rows))
	for _, row := range rows {
		devices = append(devices, &Device{client: c, row: row})
	}
	return devices, nil
}

func (c *Client) deviceRows(ctx context.Context) ([]deviceRow, error) {
	var list deviceList
	if err := c.get(ctx, "deviceListGet", &list); err != nil {
		return nil, err
	}
	return list.Rows, nil
}

func (c *Client) get(ctx context.Context, action string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+action, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s returned %d", ErrConnection, action, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("lupu: %s returned %d", action, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("lupu: read %s: %w", action, err)
	}
	// Panels pad their JSON with raw tabs inside string values.
	body = bytes.ReplaceAll(body, []byte("\t"), nil)
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("lupu: decode %s: %w", action, err)
	}
	return nil
}
