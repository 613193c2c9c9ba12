// Command grade runs a grading and mass-haul analysis over a survey sample
// file and writes the result document as JSON.
//
// Samples come from CSV (a header row with x_ft, y_ft, current_elevation_ft
// and an optional target_elevation_ft column) or JSON (a bare sample array
// or an object with a "samples" key). With -server the samples are posted
// to a running daemon's /api/analyze instead of being analyzed in-process.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gradeworks/gradeplan/internal/api"
	"github.com/gradeworks/gradeplan/internal/config"
	"github.com/gradeworks/gradeplan/internal/db"
	"github.com/gradeworks/gradeplan/internal/earthwork"
	"github.com/gradeworks/gradeplan/internal/earthwork/monitor"
	"github.com/gradeworks/gradeplan/internal/fsutil"
	"github.com/gradeworks/gradeplan/internal/httputil"
	"github.com/gradeworks/gradeplan/internal/units"
)

func main() {
	// Input
	input := flag.String("input", "", "Sample file, .csv or .json (required)")
	format := flag.String("format", "auto", "Input format: auto, csv, or json")

	// Analysis configuration
	configPath := flag.String("config", "", "Grading defaults JSON (built-in defaults when empty)")
	gridSize := flag.Float64("grid", 0, "Grid cell size in feet (overrides config when > 0)")
	rent := flag.Float64("rent", 0, "Annual parcel rent in USD; enables the viability verdict when > 0")
	targetElev := flag.Float64("target", math.NaN(), "Flat design pad elevation in feet for samples without targets")
	targetSlope := flag.Float64("target-slope", math.NaN(), "Design plane slope in percent along +x (used with -target)")

	// Output
	output := flag.String("output", "", "Result JSON path (stdout when empty)")
	unitsFlag := flag.String("units", units.CY, "Volume units for the summary log, one of: "+units.GetValidUnitsString())
	pretty := flag.Bool("pretty", true, "Indent the result JSON")

	// Persistence and plots
	storePath := flag.String("store", "", "SQLite database to record the run in (disabled when empty)")
	siteName := flag.String("site-name", "", "Site label used for plot directory naming")
	plotDir := flag.String("plot", "", "Directory to write mass-haul and depth-profile PNGs under (disabled when empty)")

	// Remote mode
	serverURL := flag.String("server", "", "Base URL of a running daemon, e.g. http://localhost:8080")

	flag.Parse()

	if *input == "" {
		flag.Usage()
		log.Fatal("-input is required")
	}
	if !units.IsValid(*unitsFlag) {
		log.Fatalf("invalid units %q, must be one of: %s", *unitsFlag, units.GetValidUnitsString())
	}

	fsys := fsutil.OSFileSystem{}

	samples, err := loadSamples(fsys, *input, *format)
	if err != nil {
		log.Fatalf("Failed to load samples from %s: %v", *input, err)
	}
	log.Printf("Loaded %d samples from %s", len(samples), *input)

	defaults := config.EmptyGradingDefaults()
	if *configPath != "" {
		defaults, err = config.LoadGradingDefaults(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", *configPath, err)
		}
	}
	effective := defaults.Merge(flagOverrides(*gridSize, *rent, *targetElev, *targetSlope))

	var result *earthwork.GradingResult
	start := time.Now()
	if *serverURL != "" {
		client := httputil.NewStandardClient(&http.Client{Timeout: 60 * time.Second})
		result, err = analyzeRemote(client, *serverURL, api.AnalyzeRequest{
			Samples: samples,
			Config:  effective,
		})
		if err != nil {
			log.Fatalf("Remote analysis failed: %v", err)
		}
	} else {
		result, err = earthwork.AnalyzeSamples(samples, earthwork.ConfigFromDefaults(effective))
		if err != nil {
			log.Fatalf("Analysis failed: %v", err)
		}
	}
	elapsed := time.Since(start)

	logSummary(result, *unitsFlag, elapsed)

	doc, err := encodeResult(result, *pretty)
	if err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}
	if *output == "" {
		os.Stdout.Write(doc)
		fmt.Println()
	} else {
		if err := fsys.WriteFile(*output, doc, 0644); err != nil {
			log.Fatalf("Failed to write %s: %v", *output, err)
		}
		log.Printf("✓ Created: %s", *output)
	}

	if *storePath != "" {
		runID, err := storeRun(*storePath, result, len(samples), elapsed)
		if err != nil {
			log.Fatalf("Failed to store run in %s: %v", *storePath, err)
		}
		log.Printf("Stored run %s in %s", runID, *storePath)
	}

	if *plotDir != "" {
		dir := monitor.MakePlotOutputDir(*plotDir, *siteName)
		files, err := monitor.WritePlots(result, dir)
		if err != nil {
			log.Fatalf("Failed to write plots: %v", err)
		}
		for _, f := range files {
			log.Printf("✓ Created: %s", f)
		}
	}
}

// loadSamples reads and parses a sample file. Format "auto" is resolved from
// the file extension.
func loadSamples(fsys fsutil.FileSystem, path, format string) ([]earthwork.Sample, error) {
	if format == "auto" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv":
			format = "csv"
		case ".json":
			format = "json"
		default:
			return nil, fmt.Errorf("cannot infer format from %q; pass -format csv or json", filepath.Base(path))
		}
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch format {
	case "csv":
		return parseSamplesCSV(data)
	case "json":
		return parseSamplesJSON(data)
	default:
		return nil, fmt.Errorf("unknown format %q (must be csv or json)", format)
	}
}

// parseSamplesCSV decodes survey samples from CSV. Columns are matched by
// header name so column order is free; an empty target_elevation_ft field
// means the sample carries no design surface.
func parseSamplesCSV(data []byte) ([]earthwork.Sample, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("csv needs a header row and at least one sample")
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"x_ft", "y_ft", "current_elevation_ft"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("csv header missing %q column", required)
		}
	}
	targetIdx, hasTarget := col["target_elevation_ft"]

	samples := make([]earthwork.Sample, 0, len(records)-1)
	for i, rec := range records[1:] {
		var s earthwork.Sample
		var err error
		if s.XFt, err = parseFloatField(rec, col["x_ft"]); err != nil {
			return nil, fmt.Errorf("row %d: x_ft: %w", i+2, err)
		}
		if s.YFt, err = parseFloatField(rec, col["y_ft"]); err != nil {
			return nil, fmt.Errorf("row %d: y_ft: %w", i+2, err)
		}
		if s.CurrentElevationFt, err = parseFloatField(rec, col["current_elevation_ft"]); err != nil {
			return nil, fmt.Errorf("row %d: current_elevation_ft: %w", i+2, err)
		}
		if hasTarget && targetIdx < len(rec) {
			if raw := strings.TrimSpace(rec[targetIdx]); raw != "" {
				v, err := strconv.ParseFloat(raw, 64)
				if err != nil {
					return nil, fmt.Errorf("row %d: target_elevation_ft: %w", i+2, err)
				}
				s.TargetElevationFt = &v
			}
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// parseSamplesJSON decodes survey samples from a bare array or an object
// with a "samples" key (the /api/analyze request shape).
func parseSamplesJSON(data []byte) ([]earthwork.Sample, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var samples []earthwork.Sample
		if err := json.Unmarshal(data, &samples); err != nil {
			return nil, fmt.Errorf("decode sample array: %w", err)
		}
		return samples, nil
	}

	var doc struct {
		Samples []earthwork.Sample `json:"samples"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode sample document: %w", err)
	}
	return doc.Samples, nil
}

func parseFloatField(rec []string, idx int) (float64, error) {
	if idx >= len(rec) {
		return 0, fmt.Errorf("missing column")
	}
	return strconv.ParseFloat(strings.TrimSpace(rec[idx]), 64)
}

// flagOverrides collects the analysis flags that were actually given into a
// defaults overlay. The -target/-target-slope flags default to NaN so that a
// zero elevation stays expressible.
func flagOverrides(gridSize, rent, targetElev, targetSlope float64) *config.GradingDefaults {
	o := config.EmptyGradingDefaults()
	if gridSize > 0 {
		o.GridSizeFt = &gridSize
	}
	if rent > 0 {
		o.AnnualRentUSD = &rent
	}
	if !math.IsNaN(targetElev) {
		o.DefaultTargetElevationFt = &targetElev
	}
	if !math.IsNaN(targetSlope) {
		o.DefaultSlopePercent = &targetSlope
	}
	return o
}

// analyzeRemote posts an analysis request to a running daemon and decodes
// the result document from the response.
func analyzeRemote(client httputil.HTTPClient, baseURL string, req api.AnalyzeRequest) (*earthwork.GradingResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := strings.TrimRight(baseURL, "/") + "/api/analyze"
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result earthwork.GradingResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &result, nil
}

// storeRun records the completed analysis in the given database, creating
// and migrating it when fresh. Returns the assigned run ID.
func storeRun(path string, result *earthwork.GradingResult, sampleCount int, elapsed time.Duration) (string, error) {
	database, err := db.NewDB(path)
	if err != nil {
		return "", err
	}
	defer database.Close()

	doc, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}

	run := &db.GradingRun{
		Source:       "cli",
		SampleCount:  sampleCount,
		TotalCutCy:   result.CutVolumeCy,
		TotalFillCy:  result.FillVolumeCy,
		NetCy:        result.CutVolumeCy - result.FillVolumeCy,
		TotalCostUSD: result.TotalCost,
		ElapsedMs:    elapsed.Milliseconds(),
		ResultJSON:   doc,
	}
	if err := db.NewRunStore(database.DB).InsertRun(run); err != nil {
		return "", err
	}
	return run.RunID, nil
}

func encodeResult(result *earthwork.GradingResult, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(result, "", "  ")
	}
	return json.Marshal(result)
}

func logSummary(result *earthwork.GradingResult, displayUnits string, elapsed time.Duration) {
	cut := units.ConvertVolume(result.CutVolumeCy, displayUnits)
	fill := units.ConvertVolume(result.FillVolumeCy, displayUnits)
	imp := units.ConvertVolume(result.ImportVolumeCy, displayUnits)
	exp := units.ConvertVolume(result.ExportVolumeCy, displayUnits)

	log.Printf("Grid: %dx%d cells at %.1f ft (%d valid)",
		result.GridRows, result.GridCols, result.GridSizeFt, result.ValidCells)
	log.Printf("Earthwork: cut=%.1f %s, fill=%.1f %s, import=%.1f %s, export=%.1f %s",
		cut, displayUnits, fill, displayUnits, imp, displayUnits, exp, displayUnits)
	if result.BalanceRatio != nil {
		log.Printf("Balance ratio: %.3f", *result.BalanceRatio)
	}
	log.Printf("Haul: %d assignments, volume-weighted mean distance %.0f ft",
		len(result.Assignments), result.MassHaulDistanceFt)
	if result.ExistingSlopes != nil && result.ProposedSlopes != nil {
		log.Printf("Slope risk: existing high=%d, proposed high=%d",
			result.ExistingSlopes.HighRiskCount, result.ProposedSlopes.HighRiskCount)
	}
	log.Printf("Total cost: $%.2f (elapsed %dms)", result.TotalCost, elapsed.Milliseconds())
	if result.Viability != nil {
		log.Printf("Viability: %s (cost ratio %.3f vs threshold %.3f)",
			result.Viability.Verdict, result.Viability.CostRatio, result.Viability.ThresholdRatio)
	}
}
