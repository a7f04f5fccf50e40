package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rileyhilliard/dgxops/internal/errors"
	"github.com/rileyhilliard/dgxops/internal/models"
	"github.com/rileyhilliard/dgxops/internal/service"
)

// maxBody bounds request bodies; every command input is small.
const maxBody = 1 << 20

// KillRequest is the body of an operation kill.
type KillRequest struct {
	Signal string `json:"signal"`
}

// Health is the data of a /health response.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, service.OK(Health{Status: "healthy", Version: s.Version}))
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil && err != io.EOF {
		respond(w, service.Fail(errors.WrapWithCode(err, errors.ErrValidation, "Invalid request body", "")))
		return false
	}
	return true
}

func queryInt(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		respond(w, service.Fail(errors.Validation(fmt.Sprintf("%s must be an integer, got %q", key, raw))))
		return 0, false
	}
	return n, true
}

func queryFloat(w http.ResponseWriter, r *http.Request, key string) (float64, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		respond(w, service.Fail(errors.Validation(fmt.Sprintf("%s must be a number, got %q", key, raw))))
		return 0, false
	}
	return f, true
}

func queryBool(w http.ResponseWriter, r *http.Request, key string) (bool, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return false, true
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		respond(w, service.Fail(errors.Validation(fmt.Sprintf("%s must be true or false, got %q", key, raw))))
		return false, false
	}
	return b, true
}

func idVar(r *http.Request) string {
	return mux.Vars(r)["id"]
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	respond(w, s.svc.ListConnections(r.Context()))
}

func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	var in models.ConnectionInput
	if !decode(w, r, &in) {
		return
	}
	respondCreated(w, s.svc.CreateConnection(r.Context(), in))
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	respond(w, s.svc.GetConnection(r.Context(), idVar(r)))
}

func (s *Server) handleUpdateConnection(w http.ResponseWriter, r *http.Request) {
	var in models.ConnectionInput
	if !decode(w, r, &in) {
		return
	}
	respond(w, s.svc.UpdateConnection(r.Context(), idVar(r), in))
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	force, ok := queryBool(w, r, "force")
	if !ok {
		return
	}
	respond(w, s.svc.DeleteConnection(r.Context(), idVar(r), force))
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	respond(w, s.svc.Connect(r.Context(), idVar(r)))
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	respond(w, s.svc.Disconnect(r.Context(), idVar(r)))
}

func (s *Server) handleConnectionStatus(w http.ResponseWriter, r *http.Request) {
	respond(w, s.svc.ConnectionStatus(r.Context(), idVar(r)))
}

func (s *Server) handleConnectAll(w http.ResponseWriter, r *http.Request) {
	respond(w, s.svc.ConnectAll(r.Context()))
}

func (s *Server) handleDisconnectAll(w http.ResponseWriter, r *http.Request) {
	respond(w, s.svc.DisconnectAll(r.Context()))
}

func (s *Server) handleReconnectFailed(w http.ResponseWriter, r *http.Request) {
	respond(w, s.svc.ReconnectFailed(r.Context()))
}

func (s *Server) handleConnectionOperations(w http.ResponseWriter, r *http.Request) {
	respond(w, s.svc.ListOperations(r.Context(), idVar(r)))
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	respond(w, s.svc.SyncOperations(r.Context(), idVar(r)))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respond(w, s.svc.Metrics(r.Context(), idVar(r)))
}

func (s *Server) handleMetricsHistory(w http.ResponseWriter, r *http.Request) {
	hours, ok := queryFloat(w, r, "hours")
	if !ok {
		return
	}
	respond(w, s.svc.MetricsHistory(r.Context(), idVar(r), hours))
}

func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	respond(w, s.svc.ListOperations(r.Context(), r.URL.Query().Get("connection")))
}

func (s *Server) handleCreateOperation(w http.ResponseWriter, r *http.Request) {
	var spec models.OperationSpec
	if !decode(w, r, &spec) {
		return
	}
	respondCreated(w, s.svc.CreateOperation(r.Context(), spec))
}

func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	respond(w, s.svc.GetOperation(r.Context(), idVar(r)))
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	respond(w, s.svc.LaunchOperation(r.Context(), idVar(r)))
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	var req KillRequest
	if !decode(w, r, &req) {
		return
	}
	respond(w, s.svc.KillOperation(r.Context(), idVar(r), req.Signal))
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	respond(w, s.svc.RestartOperation(r.Context(), idVar(r)))
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	lines, ok := queryInt(w, r, "lines")
	if !ok {
		return
	}
	respond(w, s.svc.OperationLogs(r.Context(), idVar(r), lines))
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	respond(w, s.svc.OperationProgress(r.Context(), idVar(r)))
}
