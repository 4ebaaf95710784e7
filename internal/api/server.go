// Package api exposes the head unit's HTTP surface: live intelligence
// state, rider parameter management, calibration control, route loading,
// ride lifecycle, and the websocket feed for UI clients.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/crankcase-data/power.report/internal/calibration"
	"github.com/crankcase-data/power.report/internal/httputil"
	"github.com/crankcase-data/power.report/internal/learner"
	"github.com/crankcase-data/power.report/internal/live"
	"github.com/crankcase-data/power.report/internal/rider"
	"github.com/crankcase-data/power.report/internal/ridestore"
	"github.com/crankcase-data/power.report/internal/route"
	"github.com/crankcase-data/power.report/internal/session"
	"github.com/crankcase-data/power.report/internal/timeutil"
)

type Server struct {
	sess   *session.Manager
	riderH *rider.Holder
	calib  *calibration.Session
	store  *ridestore.Store
	learnd *learner.Retrainer
	hub    *live.Hub
	engine IntakeLogger
	clock  timeutil.Clock
	log    *zap.SugaredLogger
}

// IntakeLogger is the slice of the intelligence engine the API needs:
// recording that the rider ate.
type IntakeLogger interface {
	LogIntake(now time.Time)
}

// Deps bundles the server's collaborators.
type Deps struct {
	Session     *session.Manager
	Rider       *rider.Holder
	Calibration *calibration.Session
	Store       *ridestore.Store
	Retrainer   *learner.Retrainer
	Hub         *live.Hub
	Engine      IntakeLogger
	Clock       timeutil.Clock
	Log         *zap.SugaredLogger
}

func NewServer(d Deps) *Server {
	return &Server{
		sess:   d.Session,
		riderH: d.Rider,
		calib:  d.Calibration,
		store:  d.Store,
		learnd: d.Retrainer,
		hub:    d.Hub,
		engine: d.Engine,
		clock:  d.Clock,
		log:    d.Log,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// LoggingMiddleware logs method, path, status, and duration for each request.
func LoggingMiddleware(log *zap.SugaredLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Infow("http",
			"status", lrw.statusCode,
			"method", r.Method,
			"path", r.RequestURI,
			"ms", float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.showState)
	mux.HandleFunc("/api/rider", s.riderParams)
	mux.HandleFunc("/api/learned", s.showLearned)
	mux.HandleFunc("/api/retrain", s.triggerRetrain)
	mux.HandleFunc("/api/intake", s.logIntake)
	mux.HandleFunc("/api/calibration", s.showCalibration)
	mux.HandleFunc("/api/calibration/start", s.startCalibration)
	mux.HandleFunc("/api/calibration/stop", s.stopCalibration)
	mux.HandleFunc("/api/calibration/cancel", s.cancelCalibration)
	mux.HandleFunc("/api/route", s.loadRoute)
	mux.HandleFunc("/api/ride/start", s.startRide)
	mux.HandleFunc("/api/ride/stop", s.stopRide)
	mux.HandleFunc("/api/rides", s.listRides)
	mux.HandleFunc("/ws", s.hub.ServeWS)
	return mux
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"active": s.sess.Active(),
		"state":  s.sess.State(),
	})
}

// riderUpdate carries manual overrides. Absent fields are left untouched.
type riderUpdate struct {
	MassKg   *float64 `json:"mass_kg"`
	CdA      *float64 `json:"cda"`
	Crr      *float64 `json:"crr"`
	FTPWatts *float64 `json:"ftp_watts"`
}

func (s *Server) riderParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.riderH.Snapshot())
	case http.MethodPost:
		var upd riderUpdate
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			httputil.BadRequest(w, "Invalid JSON body")
			return
		}
		if err := s.applyRiderUpdate(upd); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, s.riderH.Snapshot())
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) applyRiderUpdate(upd riderUpdate) error {
	if upd.MassKg != nil {
		if err := s.riderH.SetMass(*upd.MassKg); err != nil {
			return err
		}
	}
	if upd.CdA != nil {
		if err := s.riderH.SetCdA(*upd.CdA); err != nil {
			return err
		}
	}
	if upd.Crr != nil {
		if err := s.riderH.SetCrr(*upd.Crr); err != nil {
			return err
		}
	}
	if upd.FTPWatts != nil {
		if err := s.riderH.SetFTP(*upd.FTPWatts, s.clock.Now()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) showLearned(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.learnd.Learned())
}

func (s *Server) triggerRetrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if !s.learnd.Submit(r.Context(), s.clock.Now(), nil) {
		httputil.Conflict(w, "Retrain already in progress")
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "submitted"})
}

func (s *Server) logIntake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.engine.LogIntake(s.clock.Now())
	httputil.WriteJSONOK(w, map[string]string{"status": "logged"})
}

func (s *Server) showCalibration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"state":    s.calib.State(),
		"progress": s.calib.Progress(),
	})
}

func (s *Server) startCalibration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req struct {
		Mode     string `json:"mode"`
		Position string `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "Invalid JSON body")
		return
	}
	if err := s.calib.Start(calibration.Mode(req.Mode), req.Position); err != nil {
		httputil.Conflict(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "started"})
}

func (s *Server) stopCalibration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	res, err := s.calib.Stop()
	if err != nil {
		httputil.Conflict(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, res)
}

func (s *Server) cancelCalibration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.calib.Cancel(); err != nil {
		httputil.Conflict(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "cancelled"})
}

// routeUpload is the raw route a provider posts: an ordered point list plus
// optional waypoints.
type routeUpload struct {
	Points    []route.SourcePoint `json:"points"`
	Waypoints []route.Waypoint    `json:"waypoints"`
}

func (s *Server) loadRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var upload routeUpload
		if err := json.NewDecoder(r.Body).Decode(&upload); err != nil {
			httputil.BadRequest(w, "Invalid JSON body")
			return
		}
		rt, err := route.New(upload.Points, upload.Waypoints)
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("Invalid route: %v", err))
			return
		}
		s.sess.SetRoute(rt)
		httputil.WriteJSONOK(w, map[string]interface{}{
			"status":           "loaded",
			"points":           len(rt.Points),
			"total_distance_m": rt.TotalDistanceM(),
			"turns":            len(rt.Turns),
		})
	case http.MethodDelete:
		s.sess.SetRoute(nil)
		httputil.WriteJSONOK(w, map[string]string{"status": "cleared"})
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) startRide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.sess.StartRide(); err != nil {
		httputil.Conflict(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "started"})
}

func (s *Server) stopRide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	ride, err := s.sess.StopRide(r.Context())
	if err != nil {
		httputil.Conflict(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, ride)
}

func (s *Server) listRides(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}
	rides, err := s.store.RecentRides(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w,
			fmt.Sprintf("Failed to retrieve rides: %v", err))
		return
	}
	httputil.WriteJSONOK(w, rides)
}
