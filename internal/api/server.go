// Package api serves the command surface over HTTP JSON. Every response
// body is a service.Result envelope; the HTTP status is derived from it.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/logger"
	"github.com/rileyhilliard/dgxops/internal/service"
)

// Prefix is the path every command route lives under.
const Prefix = "/api/v1"

const shutdownTimeout = 10 * time.Second

// Server is the HTTP front of a service.Service.
type Server struct {
	// Version is reported by /health.
	Version string

	svc    *service.Service
	router *mux.Router
	log    logger.Logger
}

// NewServer builds the router for svc.
func NewServer(svc *service.Service, log logger.Logger) *Server {
	if log == nil {
		log = logger.Noop()
	}
	s := &Server{svc: svc, router: mux.NewRouter(), log: log}
	s.routes()
	return s
}

// Handler returns the server's root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return Recovery(Logging(s.router))
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	r := s.router.PathPrefix(Prefix).Subrouter()

	r.HandleFunc("/connections", s.handleListConnections).Methods(http.MethodGet)
	r.HandleFunc("/connections", s.handleCreateConnection).Methods(http.MethodPost)
	r.HandleFunc("/connections/connect-all", s.handleConnectAll).Methods(http.MethodPost)
	r.HandleFunc("/connections/disconnect-all", s.handleDisconnectAll).Methods(http.MethodPost)
	r.HandleFunc("/connections/reconnect-failed", s.handleReconnectFailed).Methods(http.MethodPost)
	r.HandleFunc("/connections/{id}", s.handleGetConnection).Methods(http.MethodGet)
	r.HandleFunc("/connections/{id}", s.handleUpdateConnection).Methods(http.MethodPut)
	r.HandleFunc("/connections/{id}", s.handleDeleteConnection).Methods(http.MethodDelete)
	r.HandleFunc("/connections/{id}/connect", s.handleConnect).Methods(http.MethodPost)
	r.HandleFunc("/connections/{id}/disconnect", s.handleDisconnect).Methods(http.MethodPost)
	r.HandleFunc("/connections/{id}/status", s.handleConnectionStatus).Methods(http.MethodGet)
	r.HandleFunc("/connections/{id}/operations", s.handleConnectionOperations).Methods(http.MethodGet)
	r.HandleFunc("/connections/{id}/sync", s.handleSync).Methods(http.MethodPost)
	r.HandleFunc("/connections/{id}/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/connections/{id}/metrics/history", s.handleMetricsHistory).Methods(http.MethodGet)

	r.HandleFunc("/operations", s.handleListOperations).Methods(http.MethodGet)
	r.HandleFunc("/operations", s.handleCreateOperation).Methods(http.MethodPost)
	r.HandleFunc("/operations/{id}", s.handleGetOperation).Methods(http.MethodGet)
	r.HandleFunc("/operations/{id}/launch", s.handleLaunch).Methods(http.MethodPost)
	r.HandleFunc("/operations/{id}/kill", s.handleKill).Methods(http.MethodPost)
	r.HandleFunc("/operations/{id}/restart", s.handleRestart).Methods(http.MethodPost)
	r.HandleFunc("/operations/{id}/logs", s.handleLogs).Methods(http.MethodGet)
	r.HandleFunc("/operations/{id}/progress", s.handleProgress).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelopeError("no route for "+r.Method+" "+r.URL.Path))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelopeError(r.Method+" not allowed on "+r.URL.Path))
	})
}

// Serve answers requests on ln until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("serving on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return errors.WrapWithCode(err, errors.ErrConfig, "HTTP server stopped", "")
	case <-ctx.Done():
	}

	s.log.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("forced HTTP shutdown: %v", err)
		return err
	}
	return nil
}

// ListenAndServe listens on addr and serves until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Can't listen on "+addr,
			"Pick another address with --listen or server.listen")
	}
	return s.Serve(ctx, ln)
}

func envelopeError(msg string) service.Result {
	return service.Result{Success: false, Error: msg}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // Client went away
}

func respond(w http.ResponseWriter, res service.Result) {
	writeJSON(w, StatusFor(res, false), res)
}

func respondCreated(w http.ResponseWriter, res service.Result) {
	writeJSON(w, StatusFor(res, true), res)
}
