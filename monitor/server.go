package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/txmlab/go-txm/logger"
	"github.com/txmlab/go-txm/pv"
	"github.com/txmlab/go-txm/scanlog"
	"github.com/txmlab/go-txm/txm"
)

// Server serves the monitoring API for one controller.
type Server struct {
	ctrl    *txm.Controller
	scanLog *scanlog.Recorder
	logger  logger.Logger

	listener net.Listener
	srv      *http.Server
}

// Option customizes the server.
type Option func(*Server)

// WithScanLog exposes the scan run history from the given recorder under
// /api/runs.
func WithScanLog(r *scanlog.Recorder) Option {
	return func(s *Server) { s.scanLog = r }
}

// WithLogger sets the server's logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a monitoring server for ctrl.
func New(ctrl *txm.Controller, opts ...Option) *Server {
	s := &Server{ctrl: ctrl, logger: logger.GetLogger()}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Handler returns the API routes, for mounting or testing.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/permit", s.permit).Methods(http.MethodGet)
	r.HandleFunc("/api/bindings", s.listBindings).Methods(http.MethodGet)
	r.HandleFunc("/api/pv/{name}", s.readPV).Methods(http.MethodGet)
	r.HandleFunc("/api/pv/{name}", s.writePV).Methods(http.MethodPut, http.MethodPost)
	if s.scanLog != nil {
		r.HandleFunc("/api/runs", s.listRuns).Methods(http.MethodGet)
		r.HandleFunc("/api/runs/{id}/points", s.listPoints).Methods(http.MethodGet)
	}

	return r
}

// Start begins serving on addr, e.g. ":8032". Port zero picks a free port;
// Addr reports the one chosen.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("monitor: listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.srv = &http.Server{Handler: s.Handler()}

	s.logger.Info("monitoring server started", "addr", listener.Addr().String())

	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("monitoring server stopped", "error", err)
		}
	}()

	return nil
}

// Addr returns the listen address, or empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// Close stops the server.
func (s *Server) Close() error {
	if s.srv == nil {
		return nil
	}

	return s.srv.Close()
}

type bindingJSON struct {
	Name           string `json:"name"`
	Address        string `json:"address"`
	Type           string `json:"type"`
	Wait           bool   `json:"wait"`
	PermitRequired bool   `json:"permit_required"`
}

type valueJSON struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Value   any    `json:"value"`
}

type writeRequest struct {
	Value any   `json:"value"`
	Wait  *bool `json:"wait,omitempty"`
}

type writeResponse struct {
	Name    string `json:"name"`
	Skipped bool   `json:"skipped"`
}

func (s *Server) permit(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"has_permit": s.ctrl.HasPermit()})
}

func (s *Server) listBindings(w http.ResponseWriter, _ *http.Request) {
	bindings := s.ctrl.Bindings()
	out := make([]bindingJSON, 0, len(bindings))
	for _, b := range bindings {
		addr, err := s.ctrl.Address(b.Name)
		if err != nil {
			s.writeError(w, err)
			return
		}
		out = append(out, bindingJSON{
			Name:           b.Name,
			Address:        addr,
			Type:           b.Type.String(),
			Wait:           b.Wait,
			PermitRequired: b.PermitRequired,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) readPV(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	value, err := s.ctrl.Get(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	addr, err := s.ctrl.Address(name)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, valueJSON{Name: name, Address: addr, Value: value})
}

func (s *Server) writePV(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}

	var (
		skipped bool
		err     error
	)
	if req.Wait != nil {
		skipped, err = s.ctrl.TryPutWait(name, req.Value, *req.Wait)
	} else {
		skipped, err = s.ctrl.TryPut(name, req.Value)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, writeResponse{Name: name, Skipped: skipped})
}

func (s *Server) listRuns(w http.ResponseWriter, _ *http.Request) {
	runs, err := s.scanLog.Runs()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if runs == nil {
		runs = []scanlog.RunRecord{}
	}

	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) listPoints(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	points, err := s.scanLog.Points(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, points)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, txm.ErrUnknownBinding):
		status = http.StatusNotFound
	case errors.Is(err, pv.ErrCoercion):
		status = http.StatusBadRequest
	case errors.Is(err, pv.ErrConnection), errors.Is(err, pv.ErrTimeout):
		status = http.StatusBadGateway
	}

	s.logger.Warn("monitoring request failed", "error", err, "status", status)
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
