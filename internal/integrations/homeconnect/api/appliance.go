package api

import (
	"context"
	"net/http"
	"sync"
)

// ApplianceInfo is the identity of an appliance as listed by the API.
type ApplianceInfo struct {
	HaID      string `json:"haId"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Brand     string `json:"brand"`
	VIB       string `json:"vib"`
	ENumber   string `json:"enumber"`
	Connected bool   `json:"connected"`
}

// Option is a program option or a keyed value. Unit is sent only when set.
type Option struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// Appliance is one appliance of a session.
type Appliance struct {
	ApplianceInfo
	auth *ConfigEntryAuth

	mu       sync.RWMutex
	status   map[string]Option
	settings map[string]Option
}

// Info returns the appliance identity.
func (a *Appliance) Info() ApplianceInfo {
	return a.ApplianceInfo
}

// Initialize reads the appliance's status and settings.
func (a *Appliance) Initialize(ctx context.Context) error {
	var status struct {
		Data struct {
			Status []Option `json:"status"`
		} `json:"data"`
	}
	if err := a.auth.do(ctx, http.MethodGet, appliancePath(a.HaID, "status"), nil, &status); err != nil {
		return err
	}

	var settings struct {
		Data struct {
			Settings []Option `json:"settings"`
		} `json:"data"`
	}
	if err := a.auth.do(ctx, http.MethodGet, appliancePath(a.HaID, "settings"), nil, &settings); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = index(status.Data.Status)
	a.settings = index(settings.Data.Settings)
	return nil
}

// Status returns the value last read for a status key.
func (a *Appliance) Status(key string) (Option, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	o, ok := a.status[key]
	return o, ok
}

// Setting returns the value last read for a setting key.
func (a *Appliance) Setting(key string) (Option, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	o, ok := a.settings[key]
	return o, ok
}

// SetSetting changes a persistent appliance setting.
func (a *Appliance) SetSetting(ctx context.Context, key string, value any, unit string) error {
	return a.put(ctx, appliancePath(a.HaID, "settings", key), Option{Key: key, Value: value, Unit: unit})
}

// SetOptionsActiveProgram changes an option of the running program.
func (a *Appliance) SetOptionsActiveProgram(ctx context.Context, key string, value any, unit string) error {
	return a.put(ctx, appliancePath(a.HaID, "programs", "active", "options", key), Option{Key: key, Value: value, Unit: unit})
}

// SetOptionsSelectedProgram changes an option of the selected program.
func (a *Appliance) SetOptionsSelectedProgram(ctx context.Context, key string, value any, unit string) error {
	return a.put(ctx, appliancePath(a.HaID, "programs", "selected", "options", key), Option{Key: key, Value: value, Unit: unit})
}

// SelectProgram selects a program without starting it.
func (a *Appliance) SelectProgram(ctx context.Context, program string, options []Option) error {
	return a.put(ctx, appliancePath(a.HaID, "programs", "selected"), programBody{Key: program, Options: options})
}

// StartProgram starts a program.
func (a *Appliance) StartProgram(ctx context.Context, program string, options []Option) error {
	return a.put(ctx, appliancePath(a.HaID, "programs", "active"), programBody{Key: program, Options: options})
}

// ExecuteCommand runs a command such as BSH.Common.Command.PauseProgram.
func (a *Appliance) ExecuteCommand(ctx context.Context, command string) error {
	return a.put(ctx, appliancePath(a.HaID, "commands", command), Option{Key: command, Value: true})
}

type programBody struct {
	Key     string   `json:"key"`
	Options []Option `json:"options,omitempty"`
}

func (a *Appliance) put(ctx context.Context, path string, data any) error {
	return a.auth.do(ctx, http.MethodPut, path, map[string]any{"data": data}, nil)
}

func index(options []Option) map[string]Option {
	m := make(map[string]Option, len(options))
	for _, o := range options {
		m[o.Key] = o
	}
	return m
}
