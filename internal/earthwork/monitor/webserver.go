package monitor

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gradeworks/gradeplan/internal/config"
	"github.com/gradeworks/gradeplan/internal/db"
	"github.com/gradeworks/gradeplan/internal/earthwork"
)

//go:embed status.html
var StatusHTML embed.FS

// WebServer handles the HTTP interface for monitoring grading runs.
// It provides endpoints for health checks, run inspection, and the debug
// chart pages rendered from stored result documents.
type WebServer struct {
	address  string
	server   *http.Server
	db       *db.DB
	runs     *db.RunStore
	defaults *config.GradingDefaults
	started  time.Time
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address  string
	DB       *db.DB
	Defaults *config.GradingDefaults
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(cfg WebServerConfig) *WebServer {
	ws := &WebServer{
		address:  cfg.Address,
		db:       cfg.DB,
		defaults: cfg.Defaults,
		started:  time.Now(),
	}
	if ws.defaults == nil {
		ws.defaults = config.EmptyGradingDefaults()
	}
	if cfg.DB != nil {
		ws.runs = db.NewRunStore(cfg.DB.DB)
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown.
func (ws *WebServer) Start(ctx context.Context) error {
	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("Starting monitor HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	log.Println("shutting down monitor HTTP server...")

	// Create a shutdown context with a shorter timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("monitor HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := ws.server.Close(); err != nil {
			log.Printf("monitor HTTP server force close error: %v", err)
		}
	}

	log.Printf("monitor HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/api/monitor/run", ws.handleRunSummary)
	mux.HandleFunc("/api/monitor/runs", ws.handleRunList)
	mux.HandleFunc("/api/monitor/export", ws.handleExportRun)
	mux.HandleFunc("/debug/charts", ws.handleChartsDashboard)
	mux.HandleFunc("/debug/charts/cutfill", ws.handleCutFillChart)
	mux.HandleFunc("/debug/charts/slopes", ws.handleSlopeChart)
	mux.HandleFunc("/debug/charts/masshaul", ws.handleMassHaulChart)
	mux.HandleFunc("/debug/charts/costs", ws.handleCostChart)

	return mux
}

// handleHealth handles the health check endpoint.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "gradeplan", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// handleStatus handles the main status page endpoint.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	type runRow struct {
		RunID        string
		Source       string
		SampleCount  int
		TotalCutCy   float64
		TotalFillCy  float64
		TotalCostUSD float64
		Created      string
	}

	var rows []runRow
	if ws.runs != nil {
		runs, err := ws.runs.ListRuns(nil, 10)
		if err != nil {
			http.Error(w, "Error listing runs: "+err.Error(), http.StatusInternalServerError)
			return
		}
		for _, run := range runs {
			id := run.RunID
			if len(id) > 8 {
				id = id[:8]
			}
			rows = append(rows, runRow{
				RunID:        id,
				Source:       run.Source,
				SampleCount:  run.SampleCount,
				TotalCutCy:   run.TotalCutCy,
				TotalFillCy:  run.TotalFillCy,
				TotalCostUSD: run.TotalCostUSD,
				Created:      time.Unix(0, run.CreatedAtNs).Format(time.RFC3339),
			})
		}
	}

	// Load and parse the HTML template from embedded filesystem
	tmpl, err := template.ParseFS(StatusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// Template data
	data := struct {
		HTTPAddress string
		Uptime      string
		GridSizeFt  float64
		HaulRate    float64
		RunCount    int
		Runs        []runRow
	}{
		HTTPAddress: ws.address,
		Uptime:      time.Since(ws.started).Round(time.Second).String(),
		GridSizeFt:  ws.defaults.GetGridSizeFt(),
		HaulRate:    ws.defaults.GetHaulCostPerCyFt(),
		RunCount:    len(rows),
		Runs:        rows,
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// handleRunList returns a JSON array of the last N stored grading runs,
// newest first, without the result documents.
// Query params:
//
//	site_id (optional)
//	limit (optional, default 10)
func (ws *WebServer) handleRunList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		if _, err := fmt.Sscanf(l, "%d", &limit); err != nil {
			limit = 10
		}
		if limit <= 0 || limit > 100 {
			limit = 10
		}
	}
	var siteID *int
	if s := r.URL.Query().Get("site_id"); s != "" {
		var v int
		if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
			ws.writeJSONError(w, http.StatusBadRequest, "invalid 'site_id' parameter")
			return
		}
		siteID = &v
	}
	if ws.runs == nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "no database configured for run lookup")
		return
	}
	runs, err := ws.runs.ListRuns(siteID, limit)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list runs: %v", err))
		return
	}
	type RunSummary struct {
		RunID        string  `json:"run_id"`
		SiteID       *int    `json:"site_id"`
		Source       string  `json:"source"`
		Created      string  `json:"created"`
		SampleCount  int     `json:"sample_count"`
		TotalCutCy   float64 `json:"total_cut_cy"`
		TotalFillCy  float64 `json:"total_fill_cy"`
		NetCy        float64 `json:"net_cy"`
		TotalCostUSD float64 `json:"total_cost_usd"`
		ElapsedMs    int64   `json:"elapsed_ms"`
	}
	summaries := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, RunSummary{
			RunID:        run.RunID,
			SiteID:       run.SiteID,
			Source:       run.Source,
			Created:      time.Unix(0, run.CreatedAtNs).Format(time.RFC3339Nano),
			SampleCount:  run.SampleCount,
			TotalCutCy:   run.TotalCutCy,
			TotalFillCy:  run.TotalFillCy,
			NetCy:        run.NetCy,
			TotalCostUSD: run.TotalCostUSD,
			ElapsedMs:    run.ElapsedMs,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

// handleRunSummary returns a JSON summary for one stored grading run,
// including headline counts decoded from the result document.
// Query params:
//
//	run_id (required)
func (ws *WebServer) handleRunSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'run_id' parameter")
		return
	}

	if ws.runs == nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "no database configured for run lookup")
		return
	}
	run, err := ws.runs.GetRun(runID)
	if err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		ws.writeJSONError(w, status, fmt.Sprintf("get run: %v", err))
		return
	}

	summary := map[string]interface{}{
		"run_id":         run.RunID,
		"site_id":        run.SiteID,
		"source":         run.Source,
		"created":        time.Unix(0, run.CreatedAtNs).Format(time.RFC3339Nano),
		"sample_count":   run.SampleCount,
		"total_cut_cy":   run.TotalCutCy,
		"total_fill_cy":  run.TotalFillCy,
		"net_cy":         run.NetCy,
		"total_cost_usd": run.TotalCostUSD,
		"elapsed_ms":     run.ElapsedMs,
		"result_bytes":   len(run.ResultJSON),
	}

	// Runs persisted without a result document still get the headline row.
	if len(run.ResultJSON) == 0 {
		summary["cells"] = 0
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(summary)
		return
	}

	var result earthwork.GradingResult
	if err := json.Unmarshal(run.ResultJSON, &result); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("decode result: %v", err))
		return
	}

	cutCells, fillCells, balancedCells := 0, 0, 0
	samples := make([]map[string]interface{}, 0, 10)
	maxSamples := 10
	for _, c := range result.Cells {
		switch c.Direction {
		case earthwork.DirectionCut:
			cutCells++
		case earthwork.DirectionFill:
			fillCells++
		default:
			balancedCells++
		}
		if c.Direction != earthwork.DirectionBalanced && len(samples) < maxSamples {
			samples = append(samples, map[string]interface{}{
				"row":       c.Row,
				"col":       c.Col,
				"x_ft":      c.CenterXFt,
				"y_ft":      c.CenterYFt,
				"depth_ft":  c.DepthFt,
				"volume_cy": c.VolumeCy,
				"direction": c.Direction,
			})
		}
	}

	summary["cells"] = len(result.Cells)
	summary["cut_cells"] = cutCells
	summary["fill_cells"] = fillCells
	summary["balanced_cells"] = balancedCells
	summary["assignments"] = len(result.Assignments)
	summary["import_volume_cy"] = result.ImportVolumeCy
	summary["export_volume_cy"] = result.ExportVolumeCy
	summary["mass_haul_distance_ft"] = result.MassHaulDistanceFt
	if result.ExistingSlopes != nil {
		summary["existing_high_risk"] = result.ExistingSlopes.HighRiskCount
	}
	if result.ProposedSlopes != nil {
		summary["proposed_high_risk"] = result.ProposedSlopes.HighRiskCount
	}
	summary["samples"] = samples

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// Close shuts down the web server.
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
