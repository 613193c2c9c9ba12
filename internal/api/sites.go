package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gradeworks/gradeplan/internal/db"
	"github.com/gradeworks/gradeplan/internal/httputil"
)

// storeErrorStatus maps store errors onto HTTP statuses by their message
// text: the db layer reports missing rows as "... not found" and sqlite
// reports duplicate names via its constraint error.
func storeErrorStatus(err error) int {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not found"):
		return http.StatusNotFound
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return http.StatusConflict
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleSites dispatches the site CRUD routes. The collection lives at
// /api/sites (list, create) and items at /api/sites/{id} (get, update,
// delete).
func (s *Server) handleSites(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sites")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			s.listSites(w)
		case http.MethodPost:
			s.createSite(w, r)
		default:
			httputil.MethodNotAllowed(w)
		}
		return
	}

	id, err := strconv.Atoi(path)
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid site id %q", path))
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getSite(w, id)
	case http.MethodPut:
		s.updateSite(w, r, id)
	case http.MethodDelete:
		s.deleteSite(w, id)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) listSites(w http.ResponseWriter) {
	sites, err := s.db.GetAllSites()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list sites: %v", err))
		return
	}
	httputil.WriteJSONOK(w, sites)
}

func (s *Server) createSite(w http.ResponseWriter, r *http.Request) {
	var site db.Site
	if err := json.NewDecoder(r.Body).Decode(&site); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if site.Name == "" {
		httputil.BadRequest(w, "name is required")
		return
	}
	if site.Location == "" {
		httputil.BadRequest(w, "location is required")
		return
	}

	if err := s.db.CreateSite(&site); err != nil {
		httputil.WriteJSONError(w, storeErrorStatus(err), fmt.Sprintf("create site: %v", err))
		return
	}

	httputil.WriteJSONCreated(w, site)
}

func (s *Server) getSite(w http.ResponseWriter, id int) {
	site, err := s.db.GetSite(id)
	if err != nil {
		httputil.WriteJSONError(w, storeErrorStatus(err), err.Error())
		return
	}
	httputil.WriteJSONOK(w, site)
}

func (s *Server) updateSite(w http.ResponseWriter, r *http.Request, id int) {
	var site db.Site
	if err := json.NewDecoder(r.Body).Decode(&site); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if site.Name == "" {
		httputil.BadRequest(w, "name is required")
		return
	}
	site.ID = id

	if err := s.db.UpdateSite(&site); err != nil {
		httputil.WriteJSONError(w, storeErrorStatus(err), fmt.Sprintf("update site: %v", err))
		return
	}

	// Re-read so the response carries the refreshed updated_at.
	updated, err := s.db.GetSite(id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("reload site: %v", err))
		return
	}
	httputil.WriteJSONOK(w, updated)
}

func (s *Server) deleteSite(w http.ResponseWriter, id int) {
	if err := s.db.DeleteSite(id); err != nil {
		httputil.WriteJSONError(w, storeErrorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
