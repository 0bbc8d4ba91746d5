package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

type fakeCloud struct {
	mu       sync.Mutex
	requests []recordedRequest
	server   *httptest.Server
}

func newFakeCloud(t *testing.T) *fakeCloud {
	f := &fakeCloud{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /homeappliances", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		w.Header().Set("Content-Type", contentType)
		io.WriteString(w, `{"data":{"homeappliances":[
			{"haId":"SIEMENS-HB676G5S6-68A40E251CBD","name":"Oven","type":"Oven","brand":"Siemens","vib":"HB676G5S6","enumber":"HB676G5S6/01","connected":true}
		]}}`)
	})
	mux.HandleFunc("GET /homeappliances/{haId}/status", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		io.WriteString(w, `{"data":{"status":[{"key":"BSH.Common.Status.DoorState","value":"BSH.Common.EnumType.DoorState.Closed"}]}}`)
	})
	mux.HandleFunc("GET /homeappliances/{haId}/settings", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		io.WriteString(w, `{"data":{"settings":[{"key":"BSH.Common.Setting.PowerState","value":"BSH.Common.EnumType.PowerState.On"}]}}`)
	})
	mux.HandleFunc("PUT /", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.Header.Get("Content-Type") != contentType {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"error":{"key":"SDK.Error.WrongOperationState","description":"Door is open"}}`)
	})
	mux.HandleFunc("GET /gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCloud) record(r *http.Request) {
	rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&rec.Body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()
}

func (f *fakeCloud) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestAuth(t *testing.T, f *fakeCloud) *ConfigEntryAuth {
	cfg := &oauth2.Config{ClientID: "id", Endpoint: oauth2.Endpoint{TokenURL: f.server.URL + "/token"}}
	token := &oauth2.Token{AccessToken: "valid", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
	return NewConfigEntryAuth(context.Background(), cfg, token, nil, WithBaseURL(f.server.URL))
}

func TestGetAppliancesAndInitialize(t *testing.T) {
	f := newFakeCloud(t)
	auth := newTestAuth(t, f)
	ctx := context.Background()

	appliances, err := auth.GetAppliances(ctx)
	require.NoError(t, err)
	require.Len(t, appliances, 1)
	assert.Equal(t, "Bearer valid", f.last().Auth)

	oven := appliances[0]
	assert.Equal(t, "SIEMENS-HB676G5S6-68A40E251CBD", oven.Info().HaID)
	assert.Equal(t, "Siemens", oven.Brand)
	assert.Equal(t, "HB676G5S6", oven.VIB)
	assert.True(t, oven.Connected)
	assert.Len(t, auth.Appliances(), 1)

	require.NoError(t, oven.Initialize(ctx))
	door, ok := oven.Status("BSH.Common.Status.DoorState")
	require.True(t, ok)
	assert.Equal(t, "BSH.Common.EnumType.DoorState.Closed", door.Value)
	_, ok = oven.Setting("BSH.Common.Setting.PowerState")
	assert.True(t, ok)
}

func TestApplianceWrites(t *testing.T) {
	f := newFakeCloud(t)
	auth := newTestAuth(t, f)
	ctx := context.Background()
	oven := &Appliance{ApplianceInfo: ApplianceInfo{HaID: "oven-1"}, auth: auth}

	tests := []struct {
		name     string
		call     func() error
		wantPath string
		wantData map[string]any
	}{
		{
			name:     "setting without unit",
			call:     func() error { return oven.SetSetting(ctx, "BSH.Common.Setting.ChildLock", true, "") },
			wantPath: "/homeappliances/oven-1/settings/BSH.Common.Setting.ChildLock",
			wantData: map[string]any{"key": "BSH.Common.Setting.ChildLock", "value": true},
		},
		{
			name:     "active option with unit",
			call:     func() error { return oven.SetOptionsActiveProgram(ctx, "Cooking.Oven.Option.SetpointTemperature", 200, "°C") },
			wantPath: "/homeappliances/oven-1/programs/active/options/Cooking.Oven.Option.SetpointTemperature",
			wantData: map[string]any{"key": "Cooking.Oven.Option.SetpointTemperature", "value": float64(200), "unit": "°C"},
		},
		{
			name:     "selected option",
			call:     func() error { return oven.SetOptionsSelectedProgram(ctx, "BSH.Common.Option.Duration", 60, "") },
			wantPath: "/homeappliances/oven-1/programs/selected/options/BSH.Common.Option.Duration",
			wantData: map[string]any{"key": "BSH.Common.Option.Duration", "value": float64(60)},
		},
		{
			name: "start program",
			call: func() error {
				return oven.StartProgram(ctx, "Cooking.Oven.Program.HeatingMode.HotAir", []Option{{Key: "temp", Value: 60, Unit: "C"}})
			},
			wantPath: "/homeappliances/oven-1/programs/active",
			wantData: map[string]any{
				"key":     "Cooking.Oven.Program.HeatingMode.HotAir",
				"options": []any{map[string]any{"key": "temp", "value": float64(60), "unit": "C"}},
			},
		},
		{
			name:     "select program without options",
			call:     func() error { return oven.SelectProgram(ctx, "p1", nil) },
			wantPath: "/homeappliances/oven-1/programs/selected",
			wantData: map[string]any{"key": "p1"},
		},
		{
			name:     "command",
			call:     func() error { return oven.ExecuteCommand(ctx, "BSH.Common.Command.PauseProgram") },
			wantPath: "/homeappliances/oven-1/commands/BSH.Common.Command.PauseProgram",
			wantData: map[string]any{"key": "BSH.Common.Command.PauseProgram", "value": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.call())
			req := f.last()
			assert.Equal(t, http.MethodPut, req.Method)
			assert.Equal(t, tt.wantPath, req.Path)
			assert.Equal(t, tt.wantData, req.Body["data"])
		})
	}
}

func TestHTTPError(t *testing.T) {
	f := newFakeCloud(t)
	auth := newTestAuth(t, f)

	err := auth.do(context.Background(), http.MethodGet, "/broken", nil, nil)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusConflict, httpErr.StatusCode)
	assert.Equal(t, "SDK.Error.WrongOperationState", httpErr.Key)
	assert.Equal(t, "Door is open", httpErr.Description)

	err = auth.do(context.Background(), http.MethodGet, "/gone", nil, nil)
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Empty(t, httpErr.Key)
}

func TestTokenRefreshIsPersisted(t *testing.T) {
	f := newFakeCloud(t)
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"fresh","refresh_token":"r2","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokenServer.Close()

	var saved []*oauth2.Token
	cfg := &oauth2.Config{ClientID: "id", Endpoint: oauth2.Endpoint{TokenURL: tokenServer.URL}}
	expired := &oauth2.Token{AccessToken: "stale", RefreshToken: "r1", Expiry: time.Now().Add(-time.Hour)}
	auth := NewConfigEntryAuth(context.Background(), cfg, expired, func(token *oauth2.Token) error {
		saved = append(saved, token)
		return nil
	}, WithBaseURL(f.server.URL))

	_, err := auth.GetAppliances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer fresh", f.last().Auth)

	_, err = auth.GetAppliances(context.Background())
	require.NoError(t, err)
	require.Len(t, saved, 1, "token saved once per refresh")
	assert.Equal(t, "r2", saved[0].RefreshToken)
}

func TestTokenDataRoundTrip(t *testing.T) {
	expiry := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	token := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: expiry}

	back, ok := TokenFromData(map[string]any{"token": TokenData(token)})
	require.True(t, ok)
	assert.Equal(t, "a", back.AccessToken)
	assert.Equal(t, "r", back.RefreshToken)
	assert.True(t, expiry.Equal(back.Expiry))

	_, ok = TokenFromData(map[string]any{})
	assert.False(t, ok)
}
