package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"homelink/internal/hass"
	"homelink/internal/schema"
	"homelink/pkg/host"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type greetData struct {
	Name string `json:"name" validate:"required"`
}

func newTestServer(t *testing.T) (*Server, *hass.Hass) {
	t.Helper()
	h, err := hass.New(hass.Options{Logger: zap.NewNop()})
	require.NoError(t, err)

	h.Services().Register("demo", "greet", schema.Of[greetData](), func(_ context.Context, call host.ServiceCall) error {
		if call.Data.(*greetData).Name == "fail" {
			return errors.New("vendor unavailable")
		}
		return nil
	})
	return NewServer(h, zap.NewNop(), 0), h
}

func TestHandleHealth(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
}

func TestHandleSitemap(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "/api/services/{domain}/{service}")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "<h1>homelink API</h1>")
}

func TestHandleEntries_HidesData(t *testing.T) {
	server, h := newTestServer(t)
	_, err := h.Entries().Add(&host.ConfigEntry{
		Domain: "lupusec",
		Title:  "Home",
		Data:   map[string]any{"password": "secret"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/entries?domain=lupusec", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")

	var entries []EntryResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "Home", entries[0].Title)
	assert.Equal(t, host.StateNotLoaded, entries[0].State)
}

func TestHandleRegistries_EmptyLists(t *testing.T) {
	server, _ := newTestServer(t)

	for _, path := range []string{"/api/devices", "/api/entities"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.JSONEq(t, `[]`, w.Body.String(), path)
	}
}

func TestHandleServices(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"domain": "demo", "service": "greet"}]`, w.Body.String())
}

func TestHandleCallService(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"ok", "/api/services/demo/greet", `{"name": "Ada"}`, http.StatusOK},
		{"invalid payload", "/api/services/demo/greet", `{"name": 3}`, http.StatusBadRequest},
		{"missing field", "/api/services/demo/greet", `{}`, http.StatusBadRequest},
		{"bad json", "/api/services/demo/greet", `{`, http.StatusBadRequest},
		{"unknown service", "/api/services/demo/wave", `{}`, http.StatusNotFound},
		{"handler error", "/api/services/demo/greet", `{"name": "fail"}`, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer(t)

			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			server.Handler().ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestHandleWebSocket_StreamsEvents(t *testing.T) {
	server, h := newTestServer(t)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/websocket?event_type=" + host.EventCallService
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	got := make(chan EventMessage, 1)
	go func() {
		var msg EventMessage
		if err := conn.ReadJSON(&msg); err == nil {
			got <- msg
		}
	}()

	// The subscription is registered after the upgrade; keep calling until
	// an event comes through.
	var msg EventMessage
	require.Eventually(t, func() bool {
		h.Fire(host.Event{Type: "ignored"})
		_ = h.Services().Call(context.Background(), "demo", "greet", map[string]any{"name": "Ada"})
		select {
		case msg = <-got:
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, "event", msg.Type)
	assert.Equal(t, host.EventCallService, msg.Event.Type)
	assert.Equal(t, "demo", msg.Event.Data["domain"])
	assert.Equal(t, "greet", msg.Event.Data["service"])
}
