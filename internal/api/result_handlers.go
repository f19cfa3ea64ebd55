package api

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/jump.report/internal/charts"
	"github.com/banshee-data/jump.report/internal/db"
	"github.com/banshee-data/jump.report/internal/export"
	"github.com/banshee-data/jump.report/internal/httputil"
	"github.com/banshee-data/jump.report/internal/monitoring"
)

// SaveRequest names the test a session's result is filed under.
type SaveRequest struct {
	TestID   string                 `json:"testId"`
	PlayerID string                 `json:"playerId,omitempty"`
	Settings map[string]interface{} `json:"settings,omitempty"`
}

func (s *Server) saveSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.sessions.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req SaveRequest
	if err := decodeBody(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	req.TestID = strings.TrimSpace(req.TestID)
	if req.TestID == "" {
		httputil.BadRequest(w, "testId is required")
		return
	}
	res, err := sess.Resolve()
	if err != nil {
		s.writeError(w, err)
		return
	}

	cfg := sess.Config()
	rec := db.NewJumpRecord(req.TestID, res, cfg.BaselineMode, s.clock.Now())
	rec.SessionID = id
	rec.PlayerID = req.PlayerID
	rec.Settings = req.Settings
	if rec.Settings == nil {
		rec.Settings = map[string]interface{}{"mass": cfg.BodyMassKg, "fps": cfg.FPS}
	}

	// The archive goes first; a failed insert takes it back out so the two
	// stores never disagree about a test.
	path, err := export.WriteResultsArchive(s.fs, s.cfg.GetResultsDir(), rec)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if s.db != nil {
		if err := s.db.SaveResult(rec); err != nil {
			if rmErr := s.fs.RemoveAll(path); rmErr != nil {
				monitoring.Logf("save %s: removing archive %s: %v", rec.TestID, path, rmErr)
			}
			httputil.InternalServerError(w, err.Error())
			return
		}
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"success": true, "testId": rec.TestID, "path": path})
}

func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.db == nil {
		httputil.NotFound(w, "no results database configured")
		return false
	}
	return true
}

func (s *Server) listResults(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	recs, err := s.db.ListResults(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if recs == nil {
		recs = []db.JumpRecord{}
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"results": recs})
}

func (s *Server) showResult(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	rec, err := s.db.GetResult(r.PathValue("testId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, rec)
}

func (s *Server) deleteResult(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	if err := s.db.DeleteResult(r.PathValue("testId")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sessionChart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.sessions.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := sess.Resolve()
	if err != nil {
		s.writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := charts.RenderHTML(&buf, "Jump "+shortID(id), res); err != nil {
		httputil.InternalServerError(w, "failed to render chart: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) sessionPlot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.sessions.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := sess.Resolve()
	if err != nil {
		s.writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := charts.RenderPNG(&buf, "Jump "+shortID(id), res); err != nil {
		httputil.InternalServerError(w, "failed to render plot: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
