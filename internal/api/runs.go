package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gradeworks/gradeplan/internal/db"
	"github.com/gradeworks/gradeplan/internal/httputil"
	"github.com/gradeworks/gradeplan/internal/units"
)

// requestUnits resolves the ?units= parameter, falling back to the server
// default. The second return is false when the parameter is invalid and an
// error response has already been written.
func (s *Server) requestUnits(w http.ResponseWriter, r *http.Request) (string, bool) {
	u := r.URL.Query().Get("units")
	if u == "" {
		u = s.units
	}
	if !units.IsValid(u) {
		httputil.BadRequest(w, fmt.Sprintf("invalid units %q, valid units are: %s", u, units.GetValidUnitsString()))
		return "", false
	}
	return u, true
}

// convertRunVolumes converts the summary volume columns of a run row for
// display. The stored result document keeps the engine's native cubic yards.
func convertRunVolumes(run *db.GradingRun, targetUnits string) {
	run.TotalCutCy = units.ConvertVolume(run.TotalCutCy, targetUnits)
	run.TotalFillCy = units.ConvertVolume(run.TotalFillCy, targetUnits)
	run.NetCy = units.ConvertVolume(run.NetCy, targetUnits)
}

// handleRuns lists stored runs, newest first, without their result
// documents. Optional filters: ?site_id=, ?limit=, ?units=.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	query := r.URL.Query()

	var siteID *int
	if v := query.Get("site_id"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			httputil.BadRequest(w, "invalid 'site_id' parameter")
			return
		}
		siteID = &parsed
	}

	limit := 0
	if v := query.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	u, ok := s.requestUnits(w, r)
	if !ok {
		return
	}

	runs, err := s.runs.ListRuns(siteID, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list runs: %v", err))
		return
	}
	for _, run := range runs {
		convertRunVolumes(run, u)
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
		"units": u,
	})
}

// handleRunByID serves get and delete for a single run.
func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/runs/"))
	if runID == "" {
		httputil.BadRequest(w, "run_id is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getRun(w, r, runID)
	case http.MethodDelete:
		s.deleteRun(w, runID)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request, runID string) {
	u, ok := s.requestUnits(w, r)
	if !ok {
		return
	}

	run, err := s.runs.GetRun(runID)
	if err != nil {
		httputil.WriteJSONError(w, storeErrorStatus(err), err.Error())
		return
	}
	convertRunVolumes(run, u)

	httputil.WriteJSONOK(w, run)
}

func (s *Server) deleteRun(w http.ResponseWriter, runID string) {
	if err := s.runs.DeleteRun(runID); err != nil {
		httputil.WriteJSONError(w, storeErrorStatus(err), err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"status": "deleted",
		"run_id": runID,
	})
}
