package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/jump.report/internal/httputil"
	"github.com/banshee-data/jump.report/internal/kinematics"
	"github.com/banshee-data/jump.report/internal/units"
)

// maxFramesPerRequest bounds one POST /frames batch.
const maxFramesPerRequest = 10000

// CreateSessionRequest overrides the configured session defaults.
type CreateSessionRequest struct {
	FPS           *float64 `json:"fps,omitempty"`
	BodyMassKg    *float64 `json:"body_mass_kg,omitempty"`
	BaselineMode  *string  `json:"baseline_mode,omitempty"`
	ThresholdMode *string  `json:"threshold_mode,omitempty"`
}

// FramesRequest carries a batch of vertical positions, oldest first.
type FramesRequest struct {
	Y []float64 `json:"y"`
}

// SettingsRequest changes mass or frame rate of a session.
type SettingsRequest struct {
	FPS        *float64 `json:"fps,omitempty"`
	BodyMassKg *float64 `json:"body_mass_kg,omitempty"`
}

// PhaseTimes are the phase durations of a resolved jump in seconds.
type PhaseTimes struct {
	Eccentric  float64 `json:"eccentric"`
	Concentric float64 `json:"concentric"`
	Contact    float64 `json:"contact"`
	Flight     float64 `json:"flight"`
	Fall       float64 `json:"fall"`
}

// Display repeats the headline numbers in the units a client asked for.
type Display struct {
	HeightUnits     string  `json:"height_units"`
	VelocityUnits   string  `json:"velocity_units"`
	MaxHeight       float64 `json:"max_height"`
	TakeoffVelocity float64 `json:"takeoff_velocity"`
}

// ResultsResponse is the body of GET /api/sessions/{id}/results.
type ResultsResponse struct {
	Success    bool                       `json:"success"`
	Results    kinematics.JumpSummary     `json:"results"`
	Trajectory []kinematics.CurvePoint    `json:"trajectory"`
	Velocity   []kinematics.VelocityPoint `json:"velocity"`
	PhaseTimes PhaseTimes                 `json:"phase_times"`
	Phases     kinematics.PhaseIndices    `json:"phases"`
	Scale      float64                    `json:"scale_cm_per_px"`
	Display    *Display                   `json:"display,omitempty"`
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]interface{}{"sessions": s.sessions.List()})
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	cfg := s.cfg.SessionConfig()
	if req.FPS != nil {
		cfg.FPS = *req.FPS
	}
	if req.BodyMassKg != nil {
		cfg.BodyMassKg = *req.BodyMassKg
	}
	if req.BaselineMode != nil {
		cfg.BaselineMode = kinematics.BaselineMode(*req.BaselineMode)
	}
	if req.ThresholdMode != nil {
		cfg.Thresholds.Mode = kinematics.ThresholdMode(*req.ThresholdMode)
	}

	id, _, err := s.sessions.Create(cfg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	info, err := s.sessions.Info(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "id": id, "session": info})
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.sessions.Get(id); err != nil {
		s.writeError(w, err)
		return
	}
	info, err := s.sessions.Info(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, info)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postFrames(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req FramesRequest
	if err := decodeBody(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if len(req.Y) == 0 {
		httputil.BadRequest(w, "y must contain at least one position")
		return
	}
	if len(req.Y) > maxFramesPerRequest {
		httputil.BadRequest(w, fmt.Sprintf("at most %d frames per request", maxFramesPerRequest))
		return
	}

	frames, err := applyFrames(sess, req.Y)
	if err != nil {
		writeBatchError(w, err, frames)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"success": true,
		"frames":  frames,
		"status":  sess.Status(),
	})
}

// FramesError is the reply when a batch stops partway. Applied frames stay in
// the session.
type FramesError struct {
	httputil.ErrorResponse
	Applied int                      `json:"applied"`
	Frames  []kinematics.FrameStatus `json:"frames"`
}

type frameUpdater interface {
	Update(y float64) (kinematics.FrameStatus, error)
}

// applyFrames feeds ys in order and stops at the first error, returning the
// statuses of the frames applied before it.
func applyFrames(sess frameUpdater, ys []float64) ([]kinematics.FrameStatus, error) {
	frames := make([]kinematics.FrameStatus, 0, len(ys))
	for i, y := range ys {
		st, err := sess.Update(y)
		if err != nil {
			return frames, fmt.Errorf("frame %d of %d: %w", i+1, len(ys), err)
		}
		frames = append(frames, st)
	}
	return frames, nil
}

func writeBatchError(w http.ResponseWriter, err error, applied []kinematics.FrameStatus) {
	status, reason := errorStatus(err)
	httputil.WriteJSON(w, status, FramesError{
		ErrorResponse: httputil.ErrorResponse{Error: err.Error(), Reason: reason},
		Applied:       len(applied),
		Frames:        applied,
	})
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	keep := false
	if v := r.URL.Query().Get("keep_baseline"); v != "" {
		if keep, err = strconv.ParseBool(v); err != nil {
			httputil.BadRequest(w, "keep_baseline must be true or false")
			return
		}
	}
	sess.Reset(keep)
	httputil.WriteJSONOK(w, map[string]interface{}{"success": true, "status": sess.Status()})
}

func (s *Server) pauseSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	sess.Pause()
	httputil.WriteJSONOK(w, map[string]interface{}{"success": true, "status": sess.Status()})
}

func (s *Server) resumeSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	sess.Resume()
	httputil.WriteJSONOK(w, map[string]interface{}{"success": true, "status": sess.Status()})
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req SettingsRequest
	if err := decodeBody(w, r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.FPS != nil {
		if n := sess.Status().Frames; n > 0 {
			httputil.Conflict(w, fmt.Sprintf("fps cannot change with %d frames buffered, reset first", n))
			return
		}
		if err := sess.SetFPS(*req.FPS); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if req.BodyMassKg != nil {
		if err := sess.SetBodyMass(*req.BodyMassKg); err != nil {
			s.writeError(w, err)
			return
		}
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"success": true, "status": sess.Status()})
}

func (s *Server) sessionResults(w http.ResponseWriter, r *http.Request) {
	heightUnits := r.URL.Query().Get("units")
	if heightUnits != "" && !units.IsValidHeight(heightUnits) {
		httputil.BadRequest(w, fmt.Sprintf("invalid units %q, expected one of %s", heightUnits, units.GetValidHeightUnitsString()))
		return
	}
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := sess.Resolve()
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, newResultsResponse(res, heightUnits))
}

func newResultsResponse(res *kinematics.Result, heightUnits string) ResultsResponse {
	sum := res.Summary
	out := ResultsResponse{
		Success:    true,
		Results:    sum,
		Trajectory: res.Trajectory,
		Velocity:   res.Velocity,
		Phases:     res.Phases,
		Scale:      res.ScaleCmPerPx,
		PhaseTimes: PhaseTimes{
			Eccentric:  sum.EccentricTimeS,
			Concentric: sum.ConcentricTimeS,
			Contact:    sum.ContactTimeS,
			Flight:     sum.FlightTimeS,
			Fall:       sum.FallTimeS,
		},
	}
	if heightUnits != "" {
		vu := units.VelocityUnitForHeight(heightUnits)
		out.Display = &Display{
			HeightUnits:     heightUnits,
			VelocityUnits:   vu,
			MaxHeight:       units.ConvertHeight(sum.MaxHeightCm, heightUnits),
			TakeoffVelocity: units.ConvertVelocity(sum.TakeoffVelocityMS, vu),
		}
	}
	return out
}
