// Package api serves the gradeplan HTTP surface: grading analysis, stored
// run retrieval, site management, and config/version introspection.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gradeworks/gradeplan/internal/config"
	"github.com/gradeworks/gradeplan/internal/db"
	"github.com/gradeworks/gradeplan/internal/earthwork"
	"github.com/gradeworks/gradeplan/internal/httputil"
	"github.com/gradeworks/gradeplan/internal/units"
	"github.com/gradeworks/gradeplan/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server carries the handler dependencies: the sqlite handle, the run store
// built over it, the startup grading defaults, and the display units used
// when a request does not pass ?units=.
type Server struct {
	db       *db.DB
	runs     *db.RunStore
	defaults *config.GradingDefaults
	units    string
}

// NewServer builds a Server over an open database. defaults may be nil when
// no config file was loaded; displayUnits may be empty for cubic yards.
func NewServer(database *db.DB, defaults *config.GradingDefaults, displayUnits string) *Server {
	if defaults == nil {
		defaults = config.EmptyGradingDefaults()
	}
	if displayUnits == "" {
		displayUnits = units.CY
	}
	return &Server{
		db:       database,
		runs:     db.NewRunStore(database.DB),
		defaults: defaults,
		units:    displayUnits,
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

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/analyze", s.handleAnalyze)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/", s.handleRunByID)
	mux.HandleFunc("/api/sites", s.handleSites)
	mux.HandleFunc("/api/sites/", s.handleSites)
	mux.HandleFunc("/api/config/defaults", s.showDefaults)
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/api/health", s.handleHealth)
	return mux
}

// AnalyzeRequest is the POST /api/analyze body. Config fields layer over the
// server's startup defaults, so a request only carries what it changes.
// With Persist set the run is stored and SiteID links it to a site record.
type AnalyzeRequest struct {
	Samples []earthwork.Sample      `json:"samples"`
	Config  *config.GradingDefaults `json:"config,omitempty"`
	SiteID  *int                    `json:"site_id,omitempty"`
	Persist bool                    `json:"persist,omitempty"`
}

// handleAnalyze runs the grading engine on the posted samples. Responds 200
// with the bare result, or 201 with the stored run row (result inline) when
// persistence was requested.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if len(req.Samples) == 0 {
		httputil.BadRequest(w, "samples are required")
		return
	}

	cfg := earthwork.ConfigFromDefaults(s.defaults.Merge(req.Config))

	start := time.Now()
	result, err := earthwork.AnalyzeSamples(req.Samples, cfg)
	if err != nil {
		httputil.WriteJSONError(w, engineErrorStatus(err), err.Error())
		return
	}
	elapsed := time.Since(start)

	if !req.Persist {
		httputil.WriteJSONOK(w, result)
		return
	}

	doc, err := json.Marshal(result)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("encode result: %v", err))
		return
	}

	run := &db.GradingRun{
		SiteID:       req.SiteID,
		Source:       "api",
		SampleCount:  len(req.Samples),
		TotalCutCy:   result.CutVolumeCy,
		TotalFillCy:  result.FillVolumeCy,
		NetCy:        result.CutVolumeCy - result.FillVolumeCy,
		TotalCostUSD: result.TotalCost,
		ElapsedMs:    elapsed.Milliseconds(),
		ResultJSON:   doc,
	}
	if err := s.runs.InsertRun(run); err != nil {
		httputil.WriteJSONError(w, storeErrorStatus(err), fmt.Sprintf("store run: %v", err))
		return
	}

	httputil.WriteJSONCreated(w, run)
}

// engineErrorStatus maps the engine error taxonomy onto HTTP statuses:
// bad configuration is the caller's request shape (400), surveys the engine
// cannot grade are semantic failures (422), anything else is internal.
func engineErrorStatus(err error) int {
	switch {
	case errors.Is(err, earthwork.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, earthwork.ErrInsufficientData),
		errors.Is(err, earthwork.ErrUnresolvableGrid):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// showDefaults reports the effective grading defaults: the startup config
// resolved so every parameter shows its value, not just the ones the file set.
func (s *Server) showDefaults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.defaults.Resolved())
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.String(),
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

// handleHealth answers liveness probes and verifies the database is still
// reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.db.Ping(); err != nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, fmt.Sprintf("database unreachable: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}
