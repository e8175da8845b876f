// Package adminapi exposes a small HTTP/WebSocket introspection surface
// over the bus and plugin registry: registered plugin metadata, DC
// subscription stats, and a live stream of every broadcast message.
// Grounded on internal/api/server.go's http.Server wrapper and
// Start/Shutdown shape. Ambient observability, not part of the bus or
// plugin host's core contracts.
package adminapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vitaelegy/amadeus-bus/internal/bus"
	"github.com/vitaelegy/amadeus-bus/internal/buildinfo"
	"github.com/vitaelegy/amadeus-bus/internal/pluginhost"
)

// Server is the admin HTTP/WebSocket server.
type Server struct {
	address string
	port    int

	dc       *bus.DistributionCenter
	registry *pluginhost.PluginRegistry

	logger   *slog.Logger
	server   *http.Server
	upgrader websocket.Upgrader
}

// NewServer constructs an admin server bound to address:port, reading
// plugin metadata from registry and subscription stats from dc.
func NewServer(address string, port int, dc *bus.DistributionCenter, registry *pluginhost.PluginRegistry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:  address,
		port:     port,
		dc:       dc,
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The wiretap stream is a read-only introspection feed with
			// no cross-site state to protect; any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Start begins serving HTTP requests. It blocks until the server stops
// or fails, mirroring api.Server.Start's ListenAndServe contract.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("GET /plugins", s.handlePlugins)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /ws/wiretap", s.handleWiretap)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.withLogging(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // the wiretap stream is long-lived
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting admin API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("admin request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("admin: failed to write JSON response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, buildinfo.RuntimeInfo())
}

// handlePlugins exports every registered plugin's metadata as a
// serializable list.
func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	data, err := s.registry.ExportMetadata()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleStats reports per-topic subscription counts.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.dc.SubscriptionStats())
}

// handleWiretap upgrades the connection and streams every broadcast
// message observed on a dedicated wiretap receiver, one JSON-encoded
// message per WebSocket text frame, until the client disconnects.
// Grounded on internal/homeassistant/websocket.go's connection-handling
// style, adapted from client to server use.
func (s *Server) handleWiretap(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("admin: wiretap upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := s.dc.SubscribeAll("adminapi-wiretap")

	// A reader goroutine is required so the connection notices client
	// disconnects (a close frame or read error) even though this
	// handler only ever writes.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-sub:
			if !ok {
				return
			}
			data, err := msg.ToJSON()
			if err != nil {
				s.logger.Error("admin: wiretap encode failed", "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
