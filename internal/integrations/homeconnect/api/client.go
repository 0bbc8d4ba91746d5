package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const contentType = "application/vnd.bsh.sdk.v1+json"

// HTTPError is returned for any non-2xx response. Key and Description come
// from the API's error body when it has one.
type HTTPError struct {
	StatusCode  int
	Key         string
	Description string
}

func (e *HTTPError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("home connect api %d: %s: %s", e.StatusCode, e.Key, e.Description)
	}
	return fmt.Sprintf("home connect api %d", e.StatusCode)
}

type errorBody struct {
	Error struct {
		Key         string `json:"key"`
		Description string `json:"description"`
	} `json:"error"`
}

// GetAppliances fetches the account's appliances and replaces the session's
// appliance list.
func (a *ConfigEntryAuth) GetAppliances(ctx context.Context) ([]*Appliance, error) {
	var body struct {
		Data struct {
			HomeAppliances []ApplianceInfo `json:"homeappliances"`
		} `json:"data"`
	}
	if err := a.do(ctx, http.MethodGet, "/homeappliances", nil, &body); err != nil {
		return nil, err
	}

	appliances := make([]*Appliance, 0, len(body.Data.HomeAppliances))
	for _, info := range body.Data.HomeAppliances {
		appliances = append(appliances, &Appliance{ApplianceInfo: info, auth: a})
	}

	a.mu.Lock()
	a.appliances = appliances
	a.mu.Unlock()
	return appliances, nil
}

// Appliances returns the list from the last GetAppliances call.
func (a *ConfigEntryAuth) Appliances() []*Appliance {
	a.mu.RLock()
	defer a.mu.RUnlock()
	result := make([]*Appliance, len(a.appliances))
	copy(result, a.appliances)
	return result
}

func (a *ConfigEntryAuth) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", contentType)
	if in != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("home connect api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode}
		var body errorBody
		if raw, _ := io.ReadAll(resp.Body); json.Unmarshal(raw, &body) == nil {
			httpErr.Key = body.Error.Key
			httpErr.Description = body.Error.Description
		}
		return httpErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func appliancePath(haID string, parts ...string) string {
	p := "/homeappliances/" + url.PathEscape(haID)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}
