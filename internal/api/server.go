// Package api serves the jump engine over HTTP: live sessions, resolved
// results, saved tests and charts. Every reply is JSON except the chart
// endpoints.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/banshee-data/jump.report/internal/config"
	"github.com/banshee-data/jump.report/internal/db"
	"github.com/banshee-data/jump.report/internal/fsutil"
	"github.com/banshee-data/jump.report/internal/httputil"
	"github.com/banshee-data/jump.report/internal/kinematics"
	"github.com/banshee-data/jump.report/internal/serialmux"
	"github.com/banshee-data/jump.report/internal/sessions"
	"github.com/banshee-data/jump.report/internal/timeutil"
	"github.com/banshee-data/jump.report/internal/version"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 4 << 20

type Server struct {
	sessions *sessions.Registry
	db       *db.DB
	cfg      *config.JumpConfig
	fs       fsutil.FileSystem
	clock    timeutil.Clock

	mu     sync.Mutex
	m      serialmux.SerialMuxInterface
	liveID string
}

// NewServer wires the registry, the results store and the configuration.
// database may be nil, in which case results are only written to disk.
func NewServer(reg *sessions.Registry, database *db.DB, cfg *config.JumpConfig) *Server {
	if cfg == nil {
		cfg = &config.JumpConfig{}
	}
	return &Server{
		sessions: reg,
		db:       database,
		cfg:      cfg,
		fs:       fsutil.OSFileSystem{},
		clock:    timeutil.RealClock{},
	}
}

// SetFileSystem replaces the filesystem results archives are written to.
func (s *Server) SetFileSystem(fs fsutil.FileSystem) { s.fs = fs }

// SetClock replaces the clock used to timestamp saved results.
func (s *Server) SetClock(c timeutil.Clock) { s.clock = c }

// SetSampleFeed exposes the sample feed m and the id of the session it
// pumps into.
func (s *Server) SetSampleFeed(m serialmux.SerialMuxInterface, liveSessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = m
	s.liveID = liveSessionID
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/sessions", s.listSessions)
	mux.HandleFunc("POST /api/sessions", s.createSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.showSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.deleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/frames", s.postFrames)
	mux.HandleFunc("POST /api/sessions/{id}/reset", s.resetSession)
	mux.HandleFunc("POST /api/sessions/{id}/pause", s.pauseSession)
	mux.HandleFunc("POST /api/sessions/{id}/resume", s.resumeSession)
	mux.HandleFunc("POST /api/sessions/{id}/settings", s.updateSettings)
	mux.HandleFunc("GET /api/sessions/{id}/results", s.sessionResults)
	mux.HandleFunc("POST /api/sessions/{id}/save", s.saveSession)
	mux.HandleFunc("GET /api/sessions/{id}/chart", s.sessionChart)
	mux.HandleFunc("GET /api/sessions/{id}/plot.png", s.sessionPlot)

	mux.HandleFunc("GET /api/results", s.listResults)
	mux.HandleFunc("GET /api/results/{testId}", s.showResult)
	mux.HandleFunc("DELETE /api/results/{testId}", s.deleteResult)

	mux.HandleFunc("GET /api/live", s.showLive)
	mux.HandleFunc("POST /api/command", s.sendCommandHandler)
	mux.HandleFunc("GET /api/version", s.showVersion)
	mux.HandleFunc("GET /api/config", s.showConfig)
	return mux
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, version.Current())
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]interface{}{
		"fps":                  s.cfg.GetFPS(),
		"body_mass_kg":         s.cfg.GetBodyMassKg(),
		"baseline_mode":        s.cfg.GetBaselineMode(),
		"baseline_alpha":       s.cfg.GetBaselineAlpha(),
		"baseline_window":      s.cfg.GetBaselineWindow(),
		"threshold_mode":       s.cfg.GetThresholdMode(),
		"start_threshold_px":   s.cfg.GetStartThresholdPx(),
		"end_threshold_px":     s.cfg.GetEndThresholdPx(),
		"start_threshold_rel":  s.cfg.GetStartThresholdRel(),
		"end_threshold_rel":    s.cfg.GetEndThresholdRel(),
		"min_landing_frames":   s.cfg.GetMinLandingFrames(),
		"auto_stop":            s.cfg.GetAutoStop(),
		"session_idle_timeout": s.cfg.GetSessionIdleTimeout().String(),
		"results_dir":          s.cfg.GetResultsDir(),
	})
}

func (s *Server) showLive(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	id := s.liveID
	s.mu.Unlock()
	if id == "" {
		httputil.NotFound(w, "no sample feed configured")
		return
	}
	info, err := s.sessions.Info(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, info)
}

// sendCommandHandler forwards a command line to the sample feed device.
func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	m := s.m
	s.mu.Unlock()
	if m == nil {
		httputil.NotFound(w, "no sample feed configured")
		return
	}
	command := r.FormValue("command")
	if command == "" {
		httputil.BadRequest(w, "missing command")
		return
	}
	if err := m.SendCommand(command); err != nil {
		httputil.InternalServerError(w, "failed to send command")
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"success": true, "command": command})
}

// writeError maps engine and store errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, reason := errorStatus(err)
	httputil.WriteJSON(w, status, httputil.ErrorResponse{Error: err.Error(), Reason: reason})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, kinematics.ErrInsufficientData):
		return http.StatusUnprocessableEntity, string(kinematics.InsufficientReasonOf(err))
	case errors.Is(err, kinematics.ErrInvalidInput):
		return http.StatusBadRequest, ""
	case errors.Is(err, kinematics.ErrSessionPaused):
		return http.StatusConflict, ""
	case errors.Is(err, sessions.ErrNotFound), errors.Is(err, db.ErrResultNotFound):
		return http.StatusNotFound, ""
	default:
		return http.StatusInternalServerError, ""
	}
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
