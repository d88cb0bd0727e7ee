// Package server is the thin HTTP transport in front of the pipeline
// orchestrator.
package server

import (
	"context"
	"net/http"
	"time"

	"rubberduck/core"
	"rubberduck/events"
)

// Config holds HTTP transport configuration.
type Config struct {
	Addr string `json:"addr"`
}

// DefaultConfig returns a default transport configuration.
func DefaultConfig() Config {
	return Config{Addr: ":8080"}
}

// Server hosts the voice endpoint, the event stream, and the health probe.
type Server struct {
	httpServer *http.Server
	logger     *core.Logger
}

// New builds the server and its routes. The hub may be nil, in which case
// the event stream route is not registered.
func New(config Config, runner PipelineRunner, hub *events.Hub, logger *core.Logger) *Server {
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}
	if logger == nil {
		logger = core.GetLogger()
	}

	mux := http.NewServeMux()
	mux.Handle("/debug/voice", requireMethod(http.MethodPost, &voiceHandler{runner: runner, logger: logger}))
	if hub != nil {
		mux.Handle("/debug/events", requireMethod(http.MethodGet, http.HandlerFunc(hub.Handler())))
	}
	mux.Handle("/healthz", requireMethod(http.MethodGet, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})))

	return &Server{
		httpServer: &http.Server{
			Addr:              config.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// requireMethod restricts a route to a single HTTP method (GET also admits
// HEAD), standing in for the method-qualified mux patterns of Go 1.22+ so
// the routes behave identically on the Go 1.21 toolchain.
func requireMethod(method string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method && !(method == http.MethodGet && r.Method == http.MethodHead) {
			w.Header().Set("Allow", method)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe blocks serving requests until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	s.logger.With(map[string]any{"addr": s.httpServer.Addr}).Info("http server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
