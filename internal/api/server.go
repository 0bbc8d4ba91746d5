package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"homelink/pkg/host"

	"go.uber.org/zap"
)

// Server provides the HTTP API of the host: read access to config entries
// and registries, service calls and an event stream.
type Server struct {
	hass   host.Hass
	logger *zap.Logger
	server *http.Server

	closing   chan struct{}
	closeOnce sync.Once
}

// NewServer creates a new API server
func NewServer(hass host.Hass, logger *zap.Logger, port int) *Server {
	s := &Server{
		hass:    hass,
		logger:  logger,
		closing: make(chan struct{}),
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleSitemap)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/entries", s.handleEntries)
	mux.HandleFunc("GET /api/devices", s.handleDevices)
	mux.HandleFunc("GET /api/entities", s.handleEntities)
	mux.HandleFunc("GET /api/services", s.handleServices)
	mux.HandleFunc("POST /api/services/{domain}/{service}", s.handleCallService)
	mux.HandleFunc("GET /api/websocket", s.handleWebSocket)
	return mux
}

// EntryResponse is a config entry without its data, which holds tokens and
// passwords.
type EntryResponse struct {
	EntryID      string          `json:"entry_id"`
	Domain       string          `json:"domain"`
	Title        string          `json:"title"`
	Version      int             `json:"version"`
	MinorVersion int             `json:"minor_version"`
	Source       string          `json:"source"`
	UniqueID     string          `json:"unique_id,omitempty"`
	State        host.EntryState `json:"state"`
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	entries := s.hass.ConfigEntries().Snapshot(r.URL.Query().Get("domain"))
	response := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		response = append(response, EntryResponse{
			EntryID:      e.EntryID,
			Domain:       e.Domain,
			Title:        e.Title,
			Version:      e.Version,
			MinorVersion: e.MinorVersion,
			Source:       e.Source,
			UniqueID:     e.UniqueID,
			State:        e.State,
		})
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.hass.DeviceRegistry().Devices()
	if devices == nil {
		devices = []*host.DeviceEntry{}
	}
	s.writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	entities := s.hass.EntityRegistry().Entries(r.URL.Query().Get("config_entry_id"))
	if entities == nil {
		entities = []*host.EntityEntry{}
	}
	s.writeJSON(w, http.StatusOK, entities)
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	services := s.hass.Services().Services()
	if services == nil {
		services = []host.ServiceInfo{}
	}
	s.writeJSON(w, http.StatusOK, services)
}

// handleCallService dispatches a service call with the JSON body as data.
func (s *Server) handleCallService(w http.ResponseWriter, r *http.Request) {
	domain, service := r.PathValue("domain"), r.PathValue("service")

	data := map[string]any{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
			return
		}
	}

	err := s.hass.Services().Call(r.Context(), domain, service, data)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, host.ErrInvalidServiceData):
		s.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, host.ErrServiceNotFound):
		s.writeError(w, http.StatusNotFound, err)
	default:
		s.logger.Error("Service call failed",
			zap.String("domain", domain),
			zap.String("service", service),
			zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var endpoints = []Endpoint{
	{Path: "/", Method: "GET", Description: "This sitemap - lists all available API endpoints"},
	{Path: "/health", Method: "GET", Description: "Health check endpoint - returns {\"status\": \"ok\"}"},
	{Path: "/api/entries", Method: "GET", Description: "Config entries and their state (?domain= filters)"},
	{Path: "/api/devices", Method: "GET", Description: "Device registry"},
	{Path: "/api/entities", Method: "GET", Description: "Entity registry (?config_entry_id= filters)"},
	{Path: "/api/services", Method: "GET", Description: "Registered services"},
	{Path: "/api/services/{domain}/{service}", Method: "POST", Description: "Call a service with the JSON body as data"},
	{Path: "/api/websocket", Method: "GET", Description: "Stream host events (?event_type= filters)"},
}

// handleSitemap answers every unmatched path with the endpoint list.
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	preferHTML := strings.Contains(r.Header.Get("Accept"), "text/html")

	if preferHTML {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	// 404 for automation compatibility, with a helpful body
	w.WriteHeader(http.StatusNotFound)

	if preferHTML {
		fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head>
    <title>homelink API</title>
    <style>
        body { font-family: monospace; margin: 40px; background: #1e1e1e; color: #d4d4d4; }
        h1 { color: #4ec9b0; }
        .endpoint { background: #2d2d2d; padding: 15px; margin: 10px 0; border-left: 3px solid #007acc; }
        .method { color: #4ec9b0; font-weight: bold; }
        .path { color: #ce9178; }
        .description { color: #9cdcfe; margin-top: 5px; }
    </style>
</head>
<body>
    <h1>homelink API</h1>
`)
		for _, ep := range endpoints {
			fmt.Fprintf(w, `    <div class="endpoint">
        <div><span class="method">%s</span> <span class="path">%s</span></div>
        <div class="description">%s</div>
    </div>
`, ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprint(w, "</body>\n</html>\n")
	} else {
		fmt.Fprintf(w, "homelink API\n")
		fmt.Fprintf(w, "============\n\n")
		fmt.Fprintf(w, "Available endpoints:\n\n")
		for _, ep := range endpoints {
			fmt.Fprintf(w, "  %-6s %-34s %s\n", ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "\nExamples:\n\n")
		fmt.Fprintf(w, "  Pause a Home Connect program:\n")
		fmt.Fprintf(w, "    curl -X POST -d '{\"device_id\": \"...\"}' http://localhost:8080/api/services/home_connect/pause_program\n\n")
	}

	s.logger.Debug("Sitemap request served",
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
		zap.Bool("html_format", preferHTML))
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server and closes event streams.
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")
	s.closeOnce.Do(func() { close(s.closing) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
