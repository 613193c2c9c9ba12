package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gradeworks/gradeplan/internal/config"
	"github.com/gradeworks/gradeplan/internal/db"
	"github.com/gradeworks/gradeplan/internal/earthwork"
)

func fptr(v float64) *float64 { return &v }

// stripSamples surveys a 60x10 ft strip: a 1x6 grid with one cut cell at the
// west end, one fill cell at the east end, and a balanced run between.
func stripSamples() []earthwork.Sample {
	samples := []earthwork.Sample{
		{XFt: 5, YFt: 5, CurrentElevationFt: 37, TargetElevationFt: fptr(10)},
		{XFt: 15, YFt: 5, CurrentElevationFt: 10, TargetElevationFt: fptr(10)},
		{XFt: 25, YFt: 5, CurrentElevationFt: 10, TargetElevationFt: fptr(10)},
		{XFt: 35, YFt: 5, CurrentElevationFt: 10, TargetElevationFt: fptr(10)},
		{XFt: 45, YFt: 5, CurrentElevationFt: 10, TargetElevationFt: fptr(10)},
		{XFt: 55, YFt: 5, CurrentElevationFt: 10, TargetElevationFt: fptr(37)},
	}
	corners := []earthwork.Sample{
		{XFt: 0, YFt: 0, CurrentElevationFt: 10},
		{XFt: 60, YFt: 0, CurrentElevationFt: 10},
		{XFt: 0, YFt: 10, CurrentElevationFt: 10},
		{XFt: 60, YFt: 10, CurrentElevationFt: 10},
	}
	return append(samples, corners...)
}

func stripResult(t *testing.T) *earthwork.GradingResult {
	t.Helper()
	result, err := earthwork.AnalyzeSamples(stripSamples(), earthwork.DefaultConfig())
	if err != nil {
		t.Fatalf("AnalyzeSamples: %v", err)
	}
	return result
}

func newTestServer(t *testing.T) (*WebServer, *db.DB) {
	t.Helper()

	database, err := db.NewDB(filepath.Join(t.TempDir(), "monitor_test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	server := NewWebServer(WebServerConfig{
		Address:  ":0",
		DB:       database,
		Defaults: config.EmptyGradingDefaults(),
	})
	return server, database
}

// storeRun analyzes the strip fixture and persists the result as a run.
func storeRun(t *testing.T, database *db.DB) *db.GradingRun {
	t.Helper()

	result := stripResult(t)
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}

	run := &db.GradingRun{
		Source:       "test",
		SampleCount:  len(stripSamples()),
		TotalCutCy:   result.CutVolumeCy,
		TotalFillCy:  result.FillVolumeCy,
		NetCy:        result.CutVolumeCy - result.FillVolumeCy,
		TotalCostUSD: result.TotalCost,
		ResultJSON:   raw,
	}
	if err := db.NewRunStore(database.DB).InsertRun(run); err != nil {
		t.Fatalf("InsertRun: %v", err)
	}
	return run
}

func TestNewWebServer(t *testing.T) {
	server, database := newTestServer(t)

	if server == nil {
		t.Fatal("NewWebServer returned nil")
	}
	if server.address != ":0" {
		t.Errorf("WebServer address not set correctly: got %s", server.address)
	}
	if server.db != database {
		t.Error("WebServer db not set correctly")
	}
	if server.runs == nil {
		t.Error("WebServer run store not created from db")
	}
	if server.defaults == nil {
		t.Error("WebServer defaults not set")
	}
}

func TestNewWebServer_NoDatabase(t *testing.T) {
	server := NewWebServer(WebServerConfig{Address: ":0"})

	if server.runs != nil {
		t.Error("WebServer run store should be nil without a database")
	}
	if server.defaults == nil {
		t.Error("WebServer defaults should fall back to empty defaults")
	}
}

func TestWebServer_StatusHandler(t *testing.T) {
	server, database := newTestServer(t)
	storeRun(t, database)

	req, err := http.NewRequest("GET", "/", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	mux := server.setupRoutes()
	mux.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("Status handler returned wrong status code: got %v want %v",
			status, http.StatusOK)
	}

	body := rr.Body.String()

	if !strings.Contains(body, "Grading Monitor") {
		t.Error("Response should contain 'Grading Monitor'")
	}
	if !strings.Contains(body, "Recent Runs (1)") {
		t.Error("Response should list the stored run")
	}
	if !strings.Contains(body, "test") {
		t.Error("Response should contain the run source")
	}
}

func TestWebServer_StatusHandler_NotFoundPath(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %d", rr.Code)
	}
}

func TestWebServer_HealthHandler(t *testing.T) {
	server, _ := newTestServer(t)

	req, err := http.NewRequest("GET", "/health", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	mux := server.setupRoutes()
	mux.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("Health handler returned wrong status code: got %v want %v",
			status, http.StatusOK)
	}

	expected := "application/json"
	if ctype := rr.Header().Get("Content-Type"); ctype != expected {
		t.Errorf("Health handler returned wrong content type: got %v want %v",
			ctype, expected)
	}

	body := rr.Body.String()

	if !strings.Contains(body, `"status": "ok"`) {
		t.Error("Response should contain status: ok (with spaces)")
	}
	if !strings.Contains(body, `"service": "gradeplan"`) {
		t.Error("Response should contain service: gradeplan (with spaces)")
	}
}

func TestWebServer_StartStop(t *testing.T) {
	server, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		err := server.Start(ctx)
		if err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Give the server time to start
	time.Sleep(50 * time.Millisecond)

	// Cancel the context to stop the server
	cancel()

	// Wait a bit for the server to stop
	time.Sleep(50 * time.Millisecond)

	select {
	case err := <-errChan:
		t.Fatalf("Server start failed: %v", err)
	default:
		// No error, which is what we expect
	}
}

func TestRunListHandler(t *testing.T) {
	server, database := newTestServer(t)
	storeRun(t, database)
	storeRun(t, database)

	req := httptest.NewRequest(http.MethodGet, "/api/monitor/runs", nil)
	rr := httptest.NewRecorder()
	server.handleRunList(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", rr.Code)
	}

	var summaries []map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 run summaries, got %d", len(summaries))
	}
	if summaries[0]["total_cut_cy"].(float64) != 100 {
		t.Errorf("expected total_cut_cy=100, got %v", summaries[0]["total_cut_cy"])
	}
	if _, hasDoc := summaries[0]["result_json"]; hasDoc {
		t.Error("run listings should not carry the result document")
	}
}

func TestRunListHandler_InvalidSiteID(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/monitor/runs?site_id=abc", nil)
	rr := httptest.NewRecorder()
	server.handleRunList(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad site_id, got %d", rr.Code)
	}
}

func TestRunListHandler_MethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/monitor/runs", nil)
	rr := httptest.NewRecorder()
	server.handleRunList(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 MethodNotAllowed, got %d", rr.Code)
	}
}

func TestRunListHandler_NoDatabase(t *testing.T) {
	server := NewWebServer(WebServerConfig{Address: ":0"})

	req := httptest.NewRequest(http.MethodGet, "/api/monitor/runs", nil)
	rr := httptest.NewRecorder()
	server.handleRunList(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 without database, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "no database configured") {
		t.Errorf("expected no-database error, got %s", rr.Body.String())
	}
}

func TestRunSummaryHandler(t *testing.T) {
	server, database := newTestServer(t)
	run := storeRun(t, database)

	req := httptest.NewRequest(http.MethodGet, "/api/monitor/run?run_id="+run.RunID, nil)
	rr := httptest.NewRecorder()
	server.handleRunSummary(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", rr.Code, rr.Body.String())
	}

	var summary map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &summary); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if summary["run_id"] != run.RunID {
		t.Errorf("expected run_id=%s, got %v", run.RunID, summary["run_id"])
	}
	if summary["cells"].(float64) != 6 {
		t.Errorf("expected 6 cells, got %v", summary["cells"])
	}
	if summary["cut_cells"].(float64) != 1 {
		t.Errorf("expected 1 cut cell, got %v", summary["cut_cells"])
	}
	if summary["fill_cells"].(float64) != 1 {
		t.Errorf("expected 1 fill cell, got %v", summary["fill_cells"])
	}
	if summary["balanced_cells"].(float64) != 4 {
		t.Errorf("expected 4 balanced cells, got %v", summary["balanced_cells"])
	}
	if summary["assignments"].(float64) != 1 {
		t.Errorf("expected 1 haul assignment, got %v", summary["assignments"])
	}
	if summary["mass_haul_distance_ft"].(float64) != 50 {
		t.Errorf("expected 50 ft mass haul distance, got %v", summary["mass_haul_distance_ft"])
	}

	samples, ok := summary["samples"].([]interface{})
	if !ok || len(samples) != 2 {
		t.Fatalf("expected 2 sample cells (cut and fill), got %v", summary["samples"])
	}
}

func TestRunSummaryHandler_MissingParam(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/monitor/run", nil)
	rr := httptest.NewRecorder()
	server.handleRunSummary(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing run_id, got %d", rr.Code)
	}
}

func TestRunSummaryHandler_NotFound(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/monitor/run?run_id=does-not-exist", nil)
	rr := httptest.NewRecorder()
	server.handleRunSummary(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown run, got %d", rr.Code)
	}
}

func TestRunSummaryHandler_NoResultDocument(t *testing.T) {
	server, database := newTestServer(t)

	run := &db.GradingRun{Source: "test", SampleCount: 3}
	if err := db.NewRunStore(database.DB).InsertRun(run); err != nil {
		t.Fatalf("InsertRun: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/monitor/run?run_id="+run.RunID, nil)
	rr := httptest.NewRecorder()
	server.handleRunSummary(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", rr.Code)
	}

	var summary map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &summary); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if summary["cells"].(float64) != 0 {
		t.Errorf("expected 0 cells without result document, got %v", summary["cells"])
	}
	if summary["result_bytes"].(float64) != 0 {
		t.Errorf("expected 0 result bytes, got %v", summary["result_bytes"])
	}
}

func BenchmarkWebServer_HealthHandler(b *testing.B) {
	server := NewWebServer(WebServerConfig{Address: ":0"})

	req, err := http.NewRequest("GET", "/health", nil)
	if err != nil {
		b.Fatal(err)
	}

	mux := server.setupRoutes()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
	}
}
