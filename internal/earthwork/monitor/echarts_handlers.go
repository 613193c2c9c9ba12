package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/gradeworks/gradeplan/internal/db"
	"github.com/gradeworks/gradeplan/internal/earthwork"
)

// echartsAssetsPrefix is where the chart pages load the ECharts JS bundle
// from. Served from the public assets mirror so the debug pages work without
// bundling the library.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// loadRunResult resolves the run a chart request targets: the run_id query
// parameter when present, otherwise the most recent stored run. On failure it
// writes the error response and returns ok=false.
func (ws *WebServer) loadRunResult(w http.ResponseWriter, r *http.Request) (*earthwork.GradingResult, *db.GradingRun, bool) {
	if ws.runs == nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "no database configured for run lookup")
		return nil, nil, false
	}

	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		latest, err := ws.runs.ListRuns(nil, 1)
		if err != nil {
			ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list runs: %v", err))
			return nil, nil, false
		}
		if len(latest) == 0 {
			ws.writeJSONError(w, http.StatusNotFound, "no stored runs to chart")
			return nil, nil, false
		}
		runID = latest[0].RunID
	}

	run, err := ws.runs.GetRun(runID)
	if err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		ws.writeJSONError(w, status, fmt.Sprintf("get run: %v", err))
		return nil, nil, false
	}
	if len(run.ResultJSON) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "run has no result document")
		return nil, nil, false
	}

	var result earthwork.GradingResult
	if err := json.Unmarshal(run.ResultJSON, &result); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("decode result: %v", err))
		return nil, nil, false
	}
	return &result, run, true
}

// handleCutFillChart renders the per-cell cut/fill depths as a colored
// scatter over the site plan. This is a debugging-only endpoint (no auth) to
// eyeball a result without exporting it to CAD.
// Query params:
//   - run_id (optional; defaults to the most recent run)
//   - max_points (optional; default 8000) to reduce payload size
func (ws *WebServer) handleCutFillChart(w http.ResponseWriter, r *http.Request) {
	result, run, ok := ws.loadRunResult(w, r)
	if !ok {
		return
	}

	maxPoints := 8000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	cells := result.Cells
	if len(cells) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no grid cells in result")
		return
	}

	// Downsample by stride to stay within maxPoints
	stride := 1
	if len(cells) > maxPoints {
		stride = int(math.Ceil(float64(len(cells)) / float64(maxPoints)))
	}

	data := make([]opts.ScatterData, 0, len(cells)/stride+1)
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	maxDepth := 0.0
	for i := 0; i < len(cells); i += stride {
		c := cells[i]
		minX = math.Min(minX, c.CenterXFt)
		maxX = math.Max(maxX, c.CenterXFt)
		minY = math.Min(minY, c.CenterYFt)
		maxY = math.Max(maxY, c.CenterYFt)
		if math.Abs(c.DepthFt) > maxDepth {
			maxDepth = math.Abs(c.DepthFt)
		}
		data = append(data, opts.ScatterData{Value: []interface{}{c.CenterXFt, c.CenterYFt, c.DepthFt}})
	}

	// Add a small padding so points at the edges are visible
	padX := (maxX - minX) * 0.05
	if padX == 0 {
		padX = result.GridSizeFt
	}
	padY := (maxY - minY) * 0.05
	if padY == 0 {
		padY = result.GridSizeFt
	}
	if maxDepth == 0 {
		maxDepth = 1
	}

	// Symmetric color range so zero depth lands on the neutral midpoint:
	// cut (negative) runs red, fill (positive) runs blue.
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Cut/Fill Depth", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Cut/Fill Depth Map", Subtitle: fmt.Sprintf("run=%s grid=%dx%d cells=%d stride=%d", run.RunID, result.GridRows, result.GridCols, len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: minX - padX, Max: maxX + padX, Name: "X (ft)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: minY - padY, Max: maxY + padY, Name: "Y (ft)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(-maxDepth),
			Max:        float32(maxDepth),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#67001f", "#b2182b", "#d6604d", "#f4a582", "#fddbc7", "#f7f7f7", "#d1e5f0", "#92c5de", "#4393c3", "#2166ac", "#053061"}},
		}),
	)

	scatter.AddSeries("depth_ft", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleSlopeChart renders slope segment midpoints colored by slope percent.
// Query params:
//   - run_id (optional; defaults to the most recent run)
//   - surface (optional; "current" or "target", default current)
func (ws *WebServer) handleSlopeChart(w http.ResponseWriter, r *http.Request) {
	result, run, ok := ws.loadRunResult(w, r)
	if !ok {
		return
	}

	surface := earthwork.SurfaceCurrent
	report := result.ExistingSlopes
	if s := r.URL.Query().Get("surface"); s == string(earthwork.SurfaceTarget) {
		surface = earthwork.SurfaceTarget
		report = result.ProposedSlopes
	}
	if report == nil || len(report.Segments) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("no slope segments for surface %q", surface))
		return
	}

	centers := make(map[earthwork.CellRef][2]float64, len(result.Cells))
	for _, c := range result.Cells {
		centers[earthwork.CellRef{Row: c.Row, Col: c.Col}] = [2]float64{c.CenterXFt, c.CenterYFt}
	}

	data := make([]opts.ScatterData, 0, len(report.Segments))
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, seg := range report.Segments {
		from, okFrom := centers[seg.From]
		to, okTo := centers[seg.To]
		if !okFrom || !okTo {
			continue
		}
		x := (from[0] + to[0]) / 2
		y := (from[1] + to[1]) / 2
		minX = math.Min(minX, x)
		maxX = math.Max(maxX, x)
		minY = math.Min(minY, y)
		maxY = math.Max(maxY, y)
		data = append(data, opts.ScatterData{Value: []interface{}{x, y, seg.SlopePercent}})
	}
	if len(data) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no mappable slope segments in result")
		return
	}

	padX := (maxX - minX) * 0.05
	if padX == 0 {
		padX = result.GridSizeFt
	}
	padY := (maxY - minY) * 0.05
	if padY == 0 {
		padY = result.GridSizeFt
	}
	maxVal := report.MaxSlopePercent
	if maxVal == 0 {
		maxVal = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Slope Map", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Slope Map", Subtitle: fmt.Sprintf("run=%s surface=%s segments=%d high_risk=%d", run.RunID, surface, len(data), report.HighRiskCount)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: minX - padX, Max: maxX + padX, Name: "X (ft)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: minY - padY, Max: maxY + padY, Name: "Y (ft)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxVal),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)

	scatter.AddSeries("slope_percent", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleMassHaulChart renders the cumulative net volume curve along the
// station axis. Rising segments carry cut surplus forward, falling segments
// consume it, and the closing ordinate is the site's net export (positive)
// or import (negative).
func (ws *WebServer) handleMassHaulChart(w http.ResponseWriter, r *http.Request) {
	result, run, ok := ws.loadRunResult(w, r)
	if !ok {
		return
	}
	if len(result.Cells) == 0 || result.GridCols == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no grid cells in result")
		return
	}

	net := netVolumeByColumn(result)

	stations := make([]string, result.GridCols)
	points := make([]opts.LineData, result.GridCols)
	cum := 0.0
	for col := 0; col < result.GridCols; col++ {
		cum += net[col]
		stations[col] = fmt.Sprintf("%.0f", (float64(col)+0.5)*result.GridSizeFt)
		points[col] = opts.LineData{Value: cum}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Mass-Haul", Theme: "dark", Width: "900px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Mass-Haul Diagram", Subtitle: fmt.Sprintf("run=%s import=%.1fcy export=%.1fcy mean_haul=%.0fft", run.RunID, result.ImportVolumeCy, result.ExportVolumeCy, result.MassHaulDistanceFt)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Station (ft)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Cumulative volume (cy)", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(stations).AddSeries("cumulative", points)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleCostChart renders a simple bar chart of the cost breakdown.
func (ws *WebServer) handleCostChart(w http.ResponseWriter, r *http.Request) {
	result, run, ok := ws.loadRunResult(w, r)
	if !ok {
		return
	}

	x := []string{"Cut", "Fill", "Compaction", "Haul", "Import", "Export"}
	y := []opts.BarData{
		{Value: result.Cost.CutCost},
		{Value: result.Cost.FillCost},
		{Value: result.Cost.CompactionCost},
		{Value: result.Cost.HaulCost},
		{Value: result.Cost.ImportCost},
		{Value: result.Cost.ExportCost},
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Earthwork Cost Breakdown", Subtitle: fmt.Sprintf("run=%s total=$%.2f", run.RunID, result.TotalCost)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("cost_usd", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleChartsDashboard renders a simple dashboard with iframes to the debug charts.
func (ws *WebServer) handleChartsDashboard(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	safeRunID := html.EscapeString(runID)
	if runID == "" {
		safeRunID = "latest"
	}
	qs := ""
	if runID != "" {
		qs = "?run_id=" + url.QueryEscape(runID)
	}
	safeQs := html.EscapeString(qs)

	doc := fmt.Sprintf(dashboardHTML, safeRunID, safeQs)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}

// netVolumeByColumn sums the signed earthwork volume per grid column: cut
// counts positive (surplus), fill negative (demand).
func netVolumeByColumn(result *earthwork.GradingResult) []float64 {
	net := make([]float64, result.GridCols)
	for _, c := range result.Cells {
		if c.Col < 0 || c.Col >= result.GridCols {
			continue
		}
		switch c.Direction {
		case earthwork.DirectionCut:
			net[c.Col] += c.VolumeCy
		case earthwork.DirectionFill:
			net[c.Col] -= c.VolumeCy
		}
	}
	return net
}

// dashboardHTML wraps the four debug charts in one page. %[1]s is the
// escaped run label, %[2]s the escaped query string carried to each iframe.
const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Grading Charts</title>
<style>
body { background: #111; color: #ddd; font-family: monospace; margin: 0; padding: 1em; }
h1 { font-size: 1.2em; }
.grid { display: grid; grid-template-columns: 1fr 1fr; gap: 1em; }
iframe { width: 100%%; height: 640px; border: 1px solid #333; background: #1a1a1a; }
</style>
</head>
<body>
<h1>Grading Charts &mdash; run %[1]s</h1>
<div class="grid">
<iframe src="/debug/charts/cutfill%[2]s"></iframe>
<iframe src="/debug/charts/slopes%[2]s"></iframe>
<iframe src="/debug/charts/masshaul%[2]s"></iframe>
<iframe src="/debug/charts/costs%[2]s"></iframe>
</div>
</body>
</html>
`
