package lupu

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Device types reported by XT2 panels.
const (
	TypeDoorContact      = 4
	TypeWaterSensor      = 5
	TypeMotionDetector   = 9
	TypeSmokeDetector    = 11
	TypePowerSwitch      = 24
	TypePowerSwitchMeter = 48
)

// Kind groups device types by the platform that exposes them.
type Kind int

const (
	KindOther Kind = iota
	KindBinarySensor
	KindSwitch
)

func kindOf(deviceType int) Kind {
	switch deviceType {
	case TypeDoorContact, TypeWaterSensor, TypeMotionDetector, TypeSmokeDetector:
		return KindBinarySensor
	case TypePowerSwitch, TypePowerSwitchMeter:
		return KindSwitch
	}
	return KindOther
}

type deviceRow struct {
	SID    string `json:"sid"`
	Name   string `json:"name"`
	Type   int    `json:"type"`
	Status string `json:"status"`
}

// Device is one entry of the panel's device list.
type Device struct {
	client *Client

	mu  sync.RWMutex
	row deviceRow
}

func (d *Device) ID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.row.SID
}

func (d *Device) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.row.Name
}

func (d *Device) Type() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.row.Type
}

// Status is the raw status text, e.g. "{WEB_MSG_DC_OPEN}".
func (d *Device) Status() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.row.Status
}

// Kind classifies the device by its panel type.
func (d *Device) Kind() Kind {
	return kindOf(d.Type())
}

// IsOn reports whether a contact is open, a detector has tripped or a
// switch is on.
func (d *Device) IsOn() bool {
	status := d.Status()
	for _, marker := range []string{"OPEN", "ALARM", "TRIGGER", "_ON}"} {
		if strings.Contains(status, marker) {
			return true
		}
	}
	return false
}

// Refresh re-reads the device from the panel's device list.
func (d *Device) Refresh(ctx context.Context) error {
	rows, err := d.client.deviceRows(ctx)
	if err != nil {
		return err
	}
	id := d.ID()
	for _, row := range rows {
		if row.SID == id {
			d.mu.Lock()
			d.row = row
			d.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

// Mode is the arming mode of a panel area.
type Mode string

const (
	ModeDisarmed Mode = "disarmed"
	ModeArmed    Mode = "armed_away"
	ModeHome     Mode = "armed_home"
	ModeUnknown  Mode = "unknown"
)

func parseMode(s string) Mode {
	switch s {
	case "0":
		return ModeDisarmed
	case "1":
		return ModeArmed
	case "2", "3", "4":
		return ModeHome
	}
	return ModeUnknown
}

// PanelID is the device ID of the panel itself.
const PanelID = "panel"

// Panel is the alarm panel as a device: its status is the area 1 mode.
type Panel struct {
	client *Client

	mu   sync.RWMutex
	mode Mode
}

// Panel returns the panel device. Its mode is unknown until refreshed.
func (c *Client) Panel() *Panel {
	return &Panel{client: c, mode: ModeUnknown}
}

func (p *Panel) ID() string { return PanelID }

func (p *Panel) Name() string {
	return fmt.Sprintf("Lupusec-XT%d", p.client.Model())
}

func (p *Panel) Mode() Mode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mode
}

func (p *Panel) Refresh(ctx context.Context) error {
	mode, err := p.client.Mode(ctx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.mode = mode
	p.mu.Unlock()
	return nil
}
