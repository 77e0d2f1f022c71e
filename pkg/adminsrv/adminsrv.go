// Package adminsrv exposes a loopback-only HTTP introspection surface for
// operators: health, Prometheus metrics, session cache occupancy, and a
// reload trigger for supervisors that can't send SIGHUP. This is explicitly
// not the agent-facing wire protocol — that is pkg/protocol/pkg/transport
// only.
//
// Grounded structurally on the teacher's cmd/warren/main.go (a second
// net/http mux mounted alongside the real listener, serving /metrics,
// /health, /ready, /live) and pkg/api/server.go's handler-per-route shape;
// re-expressed over plain net/http + encoding/json rather than the
// teacher's gRPC surface (see DESIGN.md's "dropped teacher dependencies"
// for why the generated api/proto stubs aren't reproduced by hand here).
package adminsrv

import (
	"encoding/json"
	"net/http"

	"github.com/clockwork-org/clockd/pkg/metrics"
	"github.com/clockwork-org/clockd/pkg/session"
)

// Reloader is the subset of *server.Server adminsrv needs. Declared here
// rather than imported from pkg/server to avoid a server<->adminsrv import
// cycle (cmd/clockd constructs the adminsrv.Server around a *server.Server).
type Reloader interface {
	Reload()
	Reloading() bool
	Sessions() map[string]session.State
}

// Server is the loopback admin HTTP server.
type Server struct {
	target Reloader
	mux    *http.ServeMux
}

// New builds an admin Server backed by target.
func New(target Reloader) *Server {
	s := &Server{target: target, mux: http.NewServeMux()}
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.Handle("/metrics", metrics.Handler())
	s.mux.HandleFunc("/sessions", s.handleSessions)
	s.mux.HandleFunc("/reload", s.handleReload)
	return s
}

// ListenAndServe binds addr and serves until the listener errors or the
// process exits; callers typically run this in its own goroutine.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"reloading": s.target.Reloading(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	snapshot := s.target.Sessions()
	out := make(map[string]string, len(snapshot))
	for peerID, state := range snapshot {
		out[peerID] = stateName(state)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"count":    len(out),
		"sessions": out,
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.target.Reload()
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"status": "reload started"})
}

func stateName(s session.State) string {
	switch s {
	case session.StateInit:
		return "INIT"
	case session.StateIdentified:
		return "IDENTIFIED"
	case session.StateCopydown:
		return "COPYDOWN"
	case session.StatePolicy:
		return "POLICY"
	case session.StateFile:
		return "FILE"
	case session.StateReport:
		return "REPORT"
	default:
		return "UNKNOWN"
	}
}
