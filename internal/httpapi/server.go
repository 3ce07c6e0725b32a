package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Portcullis/internal/knock/service"
	"github.com/BrandonDHaskell/Portcullis/internal/knock/types"
)

type Dependencies struct {
	Logger        *log.Logger
	Addr          string
	Tracker       *service.SequenceTracker
	Grants        *service.GrantService
	ProtectedPort int
}

// Server is the operator-facing admin API. It is not part of the knock
// protocol and should be bound to loopback or an internal interface.
type Server struct {
	httpServer    *http.Server
	logger        *log.Logger
	mux           *http.ServeMux
	tracker       *service.SequenceTracker
	grants        *service.GrantService
	protectedPort int
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:        d.Logger,
		mux:           mux,
		tracker:       d.Tracker,
		grants:        d.Grants,
		protectedPort: d.ProtectedPort,
	}

	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("POST /v1/revoke", s.handleRevoke)

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := types.StatusResponse{
		OK:             true,
		ProtectedPort:  s.protectedPort,
		SequenceLength: s.tracker.SequenceLength(),
		TrackedSources: s.tracker.TrackedCount(),
		ActiveGrants:   s.grants.Active(),
		ServerTime:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req types.RevokeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	addr := strings.TrimSpace(req.Address)
	if addr == "" {
		writeError(w, http.StatusBadRequest, "invalid_address", "address is required")
		return
	}

	if err := s.grants.Revoke(r.Context(), addr, service.RevokeReasonManual); err != nil {
		s.logger.Printf("revoke error: %v", err)
		writeError(w, http.StatusInternalServerError, "revoke_failed", "firewall revoke failed")
		return
	}

	writeJSON(w, http.StatusOK, types.RevokeResponse{
		OK:         true,
		Address:    addr,
		ServerTime: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{OK: false, Code: code, Error: msg})
}
