package homeconnect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"homelink/internal/clock"
	"homelink/internal/config"
	"homelink/internal/hass"
	"homelink/internal/integrations/homeconnect/api"
	"homelink/pkg/host"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type applianceCall struct {
	Method  string
	Key     string
	Value   any
	Unit    string
	Options []api.Option
}

type fakeAppliance struct {
	info    api.ApplianceInfo
	initErr error

	mu          sync.Mutex
	initialized int
	calls       []applianceCall
}

func newFakeAppliance(haID, name string) *fakeAppliance {
	return &fakeAppliance{info: api.ApplianceInfo{HaID: haID, Name: name, Brand: "Siemens", VIB: "SN658X06TE", Connected: true}}
}

func (a *fakeAppliance) Info() api.ApplianceInfo { return a.info }

func (a *fakeAppliance) Initialize(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initialized++
	return a.initErr
}

func (a *fakeAppliance) record(c applianceCall) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, c)
	return nil
}

func (a *fakeAppliance) SetSetting(_ context.Context, key string, value any, unit string) error {
	return a.record(applianceCall{Method: "SetSetting", Key: key, Value: value, Unit: unit})
}

func (a *fakeAppliance) SetOptionsActiveProgram(_ context.Context, key string, value any, unit string) error {
	return a.record(applianceCall{Method: "SetOptionsActiveProgram", Key: key, Value: value, Unit: unit})
}

func (a *fakeAppliance) SetOptionsSelectedProgram(_ context.Context, key string, value any, unit string) error {
	return a.record(applianceCall{Method: "SetOptionsSelectedProgram", Key: key, Value: value, Unit: unit})
}

func (a *fakeAppliance) SelectProgram(_ context.Context, program string, options []api.Option) error {
	return a.record(applianceCall{Method: "SelectProgram", Key: program, Options: options})
}

func (a *fakeAppliance) StartProgram(_ context.Context, program string, options []api.Option) error {
	return a.record(applianceCall{Method: "StartProgram", Key: program, Options: options})
}

func (a *fakeAppliance) ExecuteCommand(_ context.Context, command string) error {
	return a.record(applianceCall{Method: "ExecuteCommand", Key: command})
}

func (a *fakeAppliance) recorded() []applianceCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]applianceCall(nil), a.calls...)
}

type fakeSession struct {
	mu         sync.Mutex
	fetches    int
	appliances []Appliance
	err        error
}

func (s *fakeSession) GetAppliances(context.Context) ([]Appliance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	return s.appliances, nil
}

func (s *fakeSession) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

type testEnv struct {
	hass     *hass.Hass
	integ    *Integration
	clock    *clock.MockClock
	sessions map[string]*fakeSession
	saves    map[string]api.TokenSaver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	loader := config.NewLoader("", zap.NewNop())
	require.NoError(t, loader.LoadBytes([]byte("home_connect:\n  client_id: id\n  client_secret: secret\n")))

	mc := clock.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	h, err := hass.New(hass.Options{Config: loader, Logger: zap.NewNop(), Clock: mc})
	require.NoError(t, err)

	env := &testEnv{
		hass:     h,
		integ:    New(h, zap.NewNop(), mc),
		clock:    mc,
		sessions: make(map[string]*fakeSession),
		saves:    make(map[string]api.TokenSaver),
	}
	env.integ.SetSessionFactory(func(_ context.Context, cfg *oauth2.Config, entry *host.ConfigEntry, save api.TokenSaver) (Session, error) {
		assert.Equal(t, "id", cfg.ClientID)
		env.saves[entry.Title] = save
		s, ok := env.sessions[entry.Title]
		if !ok {
			return nil, errors.New("no session for " + entry.Title)
		}
		return s, nil
	})
	h.AddIntegration(env.integ)
	require.NoError(t, env.integ.Setup(context.Background(), loader))
	return env
}

// addEntry stores an account whose session serves the given appliances and
// sets it up.
func (e *testEnv) addEntry(t *testing.T, title string, appliances ...Appliance) (*host.ConfigEntry, *fakeSession) {
	t.Helper()
	session := &fakeSession{appliances: appliances}
	e.sessions[title] = session

	entry, err := e.hass.Entries().Add(&host.ConfigEntry{Domain: Domain, Title: title})
	require.NoError(t, err)
	require.NoError(t, e.hass.Entries().Setup(context.Background(), entry.EntryID))
	return entry, session
}

func (e *testEnv) deviceID(t *testing.T, haID string) string {
	t.Helper()
	for _, d := range e.hass.DeviceRegistry().Devices() {
		if id, ok := d.Identifier(Domain); ok && id == haID {
			return d.ID
		}
	}
	t.Fatalf("no device for %s", haID)
	return ""
}

func TestSetup_RegistersServices(t *testing.T) {
	env := newTestEnv(t)

	for _, name := range []string{
		ServiceOptionActive, ServiceOptionSelected, ServiceSetting,
		ServicePauseProgram, ServiceResumeProgram, ServiceSelectProgram, ServiceStartProgram,
	} {
		assert.True(t, env.hass.Services().Has(Domain, name), name)
	}
	assert.Len(t, env.hass.Services().Services(), 7)
}

func TestSetupEntry_RegistersAppliances(t *testing.T) {
	env := newTestEnv(t)
	dishwasher := newFakeAppliance("SIEMENS-SN658X06TE-68A40E000001", "Dishwasher")

	entry, session := env.addEntry(t, "Account", dishwasher)

	assert.Equal(t, host.StateLoaded, entry.State)
	assert.Equal(t, 1, session.fetchCount())
	assert.Equal(t, 1, dishwasher.initialized)
	assert.ElementsMatch(t, Platforms, env.hass.Entries().LoadedPlatforms(entry.EntryID))
	assert.Equal(t, 1, entry.Version)
	assert.Equal(t, 2, entry.MinorVersion)

	device, ok := env.hass.DeviceRegistry().Get(env.deviceID(t, dishwasher.info.HaID))
	require.True(t, ok)
	assert.Equal(t, "Dishwasher", device.Name)
	assert.Equal(t, "Siemens", device.Manufacturer)
	assert.Equal(t, "SN658X06TE", device.Model)
}

func TestSetupEntry_NoCredentials(t *testing.T) {
	h, err := hass.New(hass.Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	integ := New(h, zap.NewNop(), nil)
	h.AddIntegration(integ)

	entry, err := h.Entries().Add(&host.ConfigEntry{Domain: Domain})
	require.NoError(t, err)

	err = h.Entries().Setup(context.Background(), entry.EntryID)
	assert.ErrorIs(t, err, host.ErrNoOAuth2Implementation)
	assert.Equal(t, host.StateSetupError, entry.State)
}

func TestStartProgram_WithOption(t *testing.T) {
	env := newTestEnv(t)
	oven := newFakeAppliance("BOSCH-HBG6764S1-1", "Oven")
	env.addEntry(t, "Account", oven)
	d1 := env.deviceID(t, oven.info.HaID)

	err := env.hass.Services().Call(context.Background(), Domain, ServiceStartProgram, map[string]any{
		"device_id": d1,
		"program":   "p1",
		"key":       "temp",
		"value":     60,
		"unit":      "C",
	})
	require.NoError(t, err)

	assert.Equal(t, []applianceCall{{
		Method:  "StartProgram",
		Key:     "p1",
		Options: []api.Option{{Key: "temp", Value: int64(60), Unit: "C"}},
	}}, oven.recorded())
}

func TestServices_Dispatch(t *testing.T) {
	tests := []struct {
		name    string
		service string
		data    map[string]any
		want    applianceCall
	}{
		{
			name:    "option on active program with unit",
			service: ServiceOptionActive,
			data:    map[string]any{"key": "Cooking.Oven.Option.SetpointTemperature", "value": 180, "unit": "°C"},
			want:    applianceCall{Method: "SetOptionsActiveProgram", Key: "Cooking.Oven.Option.SetpointTemperature", Value: int64(180), Unit: "°C"},
		},
		{
			name:    "option on selected program without unit",
			service: ServiceOptionSelected,
			data:    map[string]any{"key": "BSH.Common.Option.StartInRelative", "value": 3600},
			want:    applianceCall{Method: "SetOptionsSelectedProgram", Key: "BSH.Common.Option.StartInRelative", Value: int64(3600)},
		},
		{
			name:    "boolean setting",
			service: ServiceSetting,
			data:    map[string]any{"key": "BSH.Common.Setting.ChildLock", "value": true},
			want:    applianceCall{Method: "SetSetting", Key: "BSH.Common.Setting.ChildLock", Value: true},
		},
		{
			name:    "pause",
			service: ServicePauseProgram,
			data:    map[string]any{},
			want:    applianceCall{Method: "ExecuteCommand", Key: BSHPause},
		},
		{
			name:    "resume",
			service: ServiceResumeProgram,
			data:    map[string]any{},
			want:    applianceCall{Method: "ExecuteCommand", Key: BSHResume},
		},
		{
			name:    "select program without option",
			service: ServiceSelectProgram,
			data:    map[string]any{"program": "Dishcare.Dishwasher.Program.Eco50"},
			want:    applianceCall{Method: "SelectProgram", Key: "Dishcare.Dishwasher.Program.Eco50"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			appliance := newFakeAppliance("SIEMENS-1", "Dishwasher")
			env.addEntry(t, "Account", appliance)

			tt.data["device_id"] = env.deviceID(t, "SIEMENS-1")
			require.NoError(t, env.hass.Services().Call(context.Background(), Domain, tt.service, tt.data))
			assert.Equal(t, []applianceCall{tt.want}, appliance.recorded())
		})
	}
}

func TestServices_RejectMalformedPayload(t *testing.T) {
	env := newTestEnv(t)
	appliance := newFakeAppliance("SIEMENS-1", "Dishwasher")
	env.addEntry(t, "Account", appliance)
	d1 := env.deviceID(t, "SIEMENS-1")

	payloads := map[string]map[string]any{
		ServiceSetting:        {"device_id": d1, "key": "k"},
		ServiceOptionActive:   {"device_id": d1, "key": "k", "value": 1.5},
		ServiceStartProgram:   {"device_id": d1, "program": "p1", "key": "temp"},
		ServiceSelectProgram:  {"device_id": d1, "program": "p1", "key": "k", "value": true},
		ServicePauseProgram:   {"device_id": d1, "extra": 1},
		ServiceOptionSelected: {"key": "k", "value": 1},
	}
	for service, data := range payloads {
		err := env.hass.Services().Call(context.Background(), Domain, service, data)
		assert.ErrorIs(t, err, host.ErrInvalidServiceData, service)
	}
	assert.Empty(t, appliance.recorded())
}

func TestServices_LookupErrors(t *testing.T) {
	env := newTestEnv(t)
	env.addEntry(t, "Account", newFakeAppliance("SIEMENS-1", "Dishwasher"))
	ctx := context.Background()

	err := env.hass.Services().Call(ctx, Domain, ServicePauseProgram, map[string]any{"device_id": "unknown"})
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.Contains(t, err.Error(), "unknown")

	foreign, err := env.hass.DeviceRegistry().GetOrCreate("other", host.DeviceInfo{
		Identifiers: []host.Identifier{{Domain: "lupusec", ID: "panel"}},
	})
	require.NoError(t, err)
	err = env.hass.Services().Call(ctx, Domain, ServicePauseProgram, map[string]any{"device_id": foreign.ID})
	assert.ErrorIs(t, err, ErrNoApplianceIdentifier)

	stale, err := env.hass.DeviceRegistry().GetOrCreate("old", host.DeviceInfo{
		Identifiers: []host.Identifier{{Domain: Domain, ID: "SIEMENS-GONE"}},
	})
	require.NoError(t, err)
	err = env.hass.Services().Call(ctx, Domain, ServicePauseProgram, map[string]any{"device_id": stale.ID})
	assert.ErrorIs(t, err, ErrApplianceNotFound)
	assert.Contains(t, err.Error(), stale.ID)
}

func TestUpdateAllDevices_ThrottledPerEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first, s1 := env.addEntry(t, "First", newFakeAppliance("A-1", "Washer"))
	require.Equal(t, 1, s1.fetchCount())

	require.NoError(t, env.integ.UpdateAllDevices(ctx, first))
	assert.Equal(t, 1, s1.fetchCount(), "second refresh inside the window")

	env.clock.Advance(59 * time.Second)
	require.NoError(t, env.integ.UpdateAllDevices(ctx, first))
	assert.Equal(t, 1, s1.fetchCount())

	// A second account has its own window.
	_, s2 := env.addEntry(t, "Second", newFakeAppliance("B-1", "Dryer"))
	assert.Equal(t, 1, s2.fetchCount())

	env.clock.Advance(time.Second)
	require.NoError(t, env.integ.UpdateAllDevices(ctx, first))
	assert.Equal(t, 2, s1.fetchCount())
}

func TestUpdateAllDevices_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	entry, session := env.addEntry(t, "Account")

	env.clock.Advance(ScanInterval)
	session.err = &api.HTTPError{StatusCode: 503}
	assert.NoError(t, env.integ.UpdateAllDevices(ctx, entry), "API errors are swallowed")

	env.clock.Advance(ScanInterval)
	session.err = errors.New("connection reset")
	assert.EqualError(t, env.integ.UpdateAllDevices(ctx, entry), "connection reset")
}

func TestUpdateAllDevices_InitializeFailureAbortsLoop(t *testing.T) {
	env := newTestEnv(t)
	broken := newFakeAppliance("A-1", "Broken")
	broken.initErr = errors.New("boom")
	fine := newFakeAppliance("A-2", "Fine")
	env.sessions["Account"] = &fakeSession{appliances: []Appliance{broken, fine}}

	entry, err := env.hass.Entries().Add(&host.ConfigEntry{Domain: Domain, Title: "Account"})
	require.NoError(t, err)
	err = env.hass.Entries().Setup(context.Background(), entry.EntryID)
	assert.Error(t, err)
	assert.Equal(t, host.StateSetupError, entry.State)
	assert.Equal(t, 0, fine.initialized)
}

func TestUnloadEntry_DropsSessionAndIndex(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	appliance := newFakeAppliance("SIEMENS-1", "Dishwasher")
	entry, session := env.addEntry(t, "Account", appliance)
	d1 := env.deviceID(t, "SIEMENS-1")

	require.NoError(t, env.hass.Entries().Unload(ctx, entry.EntryID))
	assert.Equal(t, host.StateNotLoaded, entry.State)

	err := env.hass.Services().Call(ctx, Domain, ServicePauseProgram, map[string]any{"device_id": d1})
	assert.ErrorIs(t, err, ErrApplianceNotFound)

	// The throttle window was forgotten with the entry.
	require.NoError(t, env.hass.Entries().Setup(ctx, entry.EntryID))
	assert.Equal(t, 2, session.fetchCount())
}

func TestTokenRefreshUpdatesEntry(t *testing.T) {
	env := newTestEnv(t)
	entry, _ := env.addEntry(t, "Account")

	save := env.saves["Account"]
	require.NotNil(t, save)
	require.NoError(t, save(&oauth2.Token{AccessToken: "new", RefreshToken: "r2"}))

	token, ok := api.TokenFromData(entry.Data)
	require.True(t, ok)
	assert.Equal(t, "new", token.AccessToken)
	assert.Equal(t, "r2", token.RefreshToken)
}

func TestPoll_UsesThrottledRefresh(t *testing.T) {
	env := newTestEnv(t)
	_, session := env.addEntry(t, "Account", newFakeAppliance("A-1", "Washer"))

	env.hass.Poll(context.Background())
	assert.Equal(t, 1, session.fetchCount())

	env.clock.Advance(ScanInterval)
	env.hass.Poll(context.Background())
	assert.Equal(t, 2, session.fetchCount())
}

func TestErrorDetails(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want map[string]any
	}{
		{"nil", nil, map[string]any{}},
		{"plain", errors.New("timeout"), map[string]any{"description": "timeout"}},
		{
			"api error",
			&api.HTTPError{StatusCode: 409, Key: "SDK.Error.WrongOperationState", Description: "Door open"},
			map[string]any{"key": "SDK.Error.WrongOperationState", "description": "Door open"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorDetails(tt.err))
		})
	}
}
