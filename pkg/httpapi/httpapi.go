// Package httpapi exposes a read-only JSON debug endpoint reporting
// bearer buffer state: a single http.ServeMux with two handlers (all
// bearers, and one bearer by lcid), served over ListenAndServe.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/go-rlc/rlcam/pkg/manager"
)

// BearerStatus is the JSON shape returned for one bearer.
type BearerStatus struct {
	LCID       uint32 `json:"lcid"`
	NewtxBytes int    `json:"newtx_bytes"`
	PrioBytes  int    `json:"prio_bytes"`
}

// Server serves GET /bearers (every managed bearer) and
// GET /bearers/{lcid} (one bearer), backed by a *manager.Manager.
type Server struct {
	mgr      *manager.Manager
	serveMux *http.ServeMux
	logger   *logrus.Entry
}

// New constructs a Server reporting on mgr's bearers.
func New(mgr *manager.Manager, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{mgr: mgr, logger: logger.WithField("component", "httpapi")}
	s.serveMux = http.NewServeMux()
	s.serveMux.HandleFunc("/bearers", s.handleList)
	s.serveMux.HandleFunc("/bearers/", s.handleOne)
	return s
}

// ListenAndServe starts the HTTP server on addr, blocking until it
// exits.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.serveMux)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var out []BearerStatus
	for _, lcid := range s.mgr.Bearers() {
		out = append(out, s.statusFor(lcid))
	}
	s.writeJSON(w, out)
}

func (s *Server) handleOne(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	idStr := strings.TrimPrefix(r.URL.Path, "/bearers/")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		http.Error(w, "invalid lcid", http.StatusBadRequest)
		return
	}
	lcid := uint32(id)
	if s.mgr.Bearer(lcid) == nil {
		http.Error(w, "no such bearer", http.StatusNotFound)
		return
	}
	s.writeJSON(w, s.statusFor(lcid))
}

func (s *Server) statusFor(lcid uint32) BearerStatus {
	e := s.mgr.Bearer(lcid)
	if e == nil {
		return BearerStatus{LCID: lcid}
	}
	newtx, prio := e.GetBufferState()
	return BearerStatus{LCID: lcid, NewtxBytes: newtx, PrioBytes: prio}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("failed to encode httpapi response")
	}
}
