package earthwork

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// stripSite returns samples for a 60x10 ft strip that grids to 1x6 cells at
// the default 10 ft spacing. Each cell center carries its own sample so
// nearest-sample resampling is unambiguous; the corner samples only shape
// the hull. Column 0 needs 27 ft of cut and column 5 needs 27 ft of fill,
// which over a 100 sqft cell is exactly 100 cy each way.
func stripSite() []Sample {
	samples := []Sample{
		{XFt: 5, YFt: 5, CurrentElevationFt: 37, TargetElevationFt: fptr(10)},
		{XFt: 15, YFt: 5, CurrentElevationFt: 10, TargetElevationFt: fptr(10)},
		{XFt: 25, YFt: 5, CurrentElevationFt: 10, TargetElevationFt: fptr(10)},
		{XFt: 35, YFt: 5, CurrentElevationFt: 10, TargetElevationFt: fptr(10)},
		{XFt: 45, YFt: 5, CurrentElevationFt: 10, TargetElevationFt: fptr(10)},
		{XFt: 55, YFt: 5, CurrentElevationFt: 10, TargetElevationFt: fptr(37)},
	}
	corners := []Sample{
		{XFt: 0, YFt: 0, CurrentElevationFt: 10},
		{XFt: 60, YFt: 0, CurrentElevationFt: 10},
		{XFt: 0, YFt: 10, CurrentElevationFt: 10},
		{XFt: 60, YFt: 10, CurrentElevationFt: 10},
	}
	return append(samples, corners...)
}

func TestAnalyzeSamples_StripSite(t *testing.T) {
	result, err := AnalyzeSamples(stripSite(), DefaultConfig())
	if err != nil {
		t.Fatalf("AnalyzeSamples: %v", err)
	}

	if result.GridRows != 1 || result.GridCols != 6 {
		t.Fatalf("expected 1x6 grid, got %dx%d", result.GridRows, result.GridCols)
	}
	if result.ValidCells != 6 {
		t.Errorf("expected 6 valid cells, got %d", result.ValidCells)
	}

	if result.CutVolumeCy != 100 {
		t.Errorf("expected 100 cy cut, got %v", result.CutVolumeCy)
	}
	if result.FillVolumeCy != 100 {
		t.Errorf("expected 100 cy fill, got %v", result.FillVolumeCy)
	}
	if result.BalanceRatio == nil || *result.BalanceRatio != 1 {
		t.Errorf("expected balance ratio 1, got %v", result.BalanceRatio)
	}

	if len(result.Assignments) != 1 {
		t.Fatalf("expected a single haul assignment, got %d", len(result.Assignments))
	}
	a := result.Assignments[0]
	if a.Source != (CellRef{0, 0}) || a.Sink != (CellRef{0, 5}) {
		t.Errorf("expected haul (0,0)->(0,5), got (%d,%d)->(%d,%d)",
			a.Source.Row, a.Source.Col, a.Sink.Row, a.Sink.Col)
	}
	if a.VolumeCy != 100 {
		t.Errorf("expected 100 cy hauled, got %v", a.VolumeCy)
	}
	if a.DistanceFt != 50 {
		t.Errorf("expected 50 ft haul, got %v", a.DistanceFt)
	}
	if result.MassHaulDistanceFt != 50 {
		t.Errorf("expected 50 ft mean haul, got %v", result.MassHaulDistanceFt)
	}
	if result.ImportVolumeCy != 0 || result.ExportVolumeCy != 0 {
		t.Errorf("expected no residuals, got import %v export %v",
			result.ImportVolumeCy, result.ExportVolumeCy)
	}

	// cut 100x15 + fill 100x25 + compaction 100x8 + haul 100x50x0.005.
	if result.TotalCost != 4825 {
		t.Errorf("expected total cost 4825, got %v", result.TotalCost)
	}

	// The 27 ft step sits between columns 0-1 on the existing surface and
	// between columns 4-5 on the proposed one.
	if result.ExistingSlopes.HighRiskCount != 1 {
		t.Errorf("expected 1 high-risk existing segment, got %d", result.ExistingSlopes.HighRiskCount)
	}
	if result.ProposedSlopes.HighRiskCount != 1 {
		t.Errorf("expected 1 high-risk proposed segment, got %d", result.ProposedSlopes.HighRiskCount)
	}
	if len(result.ExistingSlopes.Segments) != 5 {
		t.Errorf("expected 5 existing segments, got %d", len(result.ExistingSlopes.Segments))
	}
	existing := result.ExistingSlopes.Exceeding(15)
	if len(existing) != 1 || existing[0].From != (CellRef{0, 0}) || existing[0].To != (CellRef{0, 1}) {
		t.Errorf("expected one existing steep segment (0,0)->(0,1), got %+v", existing)
	}
	proposed := result.ProposedSlopes.Exceeding(15)
	if len(proposed) != 1 || proposed[0].From != (CellRef{0, 4}) || proposed[0].To != (CellRef{0, 5}) {
		t.Errorf("expected one proposed steep segment (0,4)->(0,5), got %+v", proposed)
	}
	if len(existing) == 1 && math.Abs(existing[0].SlopePercent-270) > 1e-9 {
		t.Errorf("expected 270%% existing slope, got %v", existing[0].SlopePercent)
	}

	if result.Viability != nil {
		t.Errorf("expected no viability assessment without rent, got %+v", result.Viability)
	}
}

func TestAnalyzeSamples_Deterministic(t *testing.T) {
	samples := stripSite()
	reversed := make([]Sample, len(samples))
	for i, s := range samples {
		reversed[len(samples)-1-i] = s
	}

	first, err := AnalyzeSamples(samples, DefaultConfig())
	if err != nil {
		t.Fatalf("AnalyzeSamples: %v", err)
	}
	second, err := AnalyzeSamples(reversed, DefaultConfig())
	if err != nil {
		t.Fatalf("AnalyzeSamples (reversed): %v", err)
	}

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("results differ across sample orderings (-first +second):\n%s", diff)
	}

	a, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("expected byte-identical JSON across sample orderings")
	}
}

func TestAnalyze_BalancedSiteIsAllZeros(t *testing.T) {
	grid := testGrid(4, 4, 10, flat(25), flat(25))

	result, err := Analyze(grid, DefaultConfig())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if result.CutVolumeCy != 0 || result.FillVolumeCy != 0 {
		t.Errorf("expected zero volumes, got cut %v fill %v", result.CutVolumeCy, result.FillVolumeCy)
	}
	if result.BalanceRatio != nil {
		t.Errorf("expected nil balance ratio without cut, got %v", *result.BalanceRatio)
	}
	if len(result.Assignments) != 0 {
		t.Errorf("expected no assignments, got %d", len(result.Assignments))
	}
	if result.ImportVolumeCy != 0 || result.ExportVolumeCy != 0 {
		t.Errorf("expected zero residuals, got import %v export %v",
			result.ImportVolumeCy, result.ExportVolumeCy)
	}
	if result.MassHaulDistanceFt != 0 {
		t.Errorf("expected zero mean haul, got %v", result.MassHaulDistanceFt)
	}
	if result.TotalCost != 0 {
		t.Errorf("expected zero cost, got %v", result.TotalCost)
	}
	if result.Viability != nil {
		t.Errorf("expected nil viability, got %+v", result.Viability)
	}
}

func TestAnalyze_VolumeConservation(t *testing.T) {
	grid := testGrid(10, 10, 10, func(r, c int) float64 {
		return 50 + 5*math.Sin(float64(r)*0.7) + 3*math.Cos(float64(c)*1.1)
	}, flat(50))

	result, err := Analyze(grid, DefaultConfig())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	var assigned float64
	for _, a := range result.Assignments {
		assigned += a.VolumeCy
	}
	if math.Abs(result.CutVolumeCy-(assigned+result.ExportVolumeCy)) > 1e-9 {
		t.Errorf("cut %v != assigned %v + export %v",
			result.CutVolumeCy, assigned, result.ExportVolumeCy)
	}
	if math.Abs(result.FillVolumeCy-(assigned+result.ImportVolumeCy)) > 1e-9 {
		t.Errorf("fill %v != assigned %v + import %v",
			result.FillVolumeCy, assigned, result.ImportVolumeCy)
	}
}

func TestAnalyze_ParallelMatchesSequential(t *testing.T) {
	grid := testGrid(16, 16, 10, func(r, c int) float64 {
		return 40 + 4*math.Sin(float64(r*16+c)*0.3)
	}, flat(40))

	sequential, err := Analyze(grid, DefaultConfig().WithParallelThreshold(0))
	if err != nil {
		t.Fatalf("sequential Analyze: %v", err)
	}
	parallel, err := Analyze(grid, DefaultConfig().WithParallelThreshold(1).WithWorkers(8))
	if err != nil {
		t.Fatalf("parallel Analyze: %v", err)
	}

	if diff := cmp.Diff(sequential, parallel); diff != "" {
		t.Errorf("parallel result diverges (-sequential +parallel):\n%s", diff)
	}
}

func TestAnalyze_ViabilityVerdicts(t *testing.T) {
	// The strip site costs $4825 all-in.
	tests := []struct {
		name string
		rent float64
		want ViabilityVerdict
	}{
		{"high rent is viable", 200_000, VerdictViable},
		{"low rent forces redesign", 10_000, VerdictRedesign},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := AnalyzeSamples(stripSite(), DefaultConfig().WithAnnualRent(tc.rent))
			if err != nil {
				t.Fatalf("AnalyzeSamples: %v", err)
			}
			if result.Viability == nil {
				t.Fatal("expected a viability assessment")
			}
			if result.Viability.Verdict != tc.want {
				t.Errorf("expected verdict %q, got %q", tc.want, result.Viability.Verdict)
			}
			wantRatio := 4825 / tc.rent
			if math.Abs(result.Viability.CostRatio-wantRatio) > 1e-12 {
				t.Errorf("expected cost ratio %v, got %v", wantRatio, result.Viability.CostRatio)
			}
		})
	}
}

// TestAnalyze_ResultContract pins the JSON field names downstream consumers
// key on. Renaming any of these is a breaking change.
func TestAnalyze_ResultContract(t *testing.T) {
	result, err := AnalyzeSamples(stripSite(), DefaultConfig())
	if err != nil {
		t.Fatalf("AnalyzeSamples: %v", err)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := []string{
		"cut_volume_cy", "fill_volume_cy", "balance_ratio",
		"import_volume_cy", "export_volume_cy",
		"mass_haul_distance_ft", "assignments", "cells",
		"existing_slopes", "proposed_slopes",
		"cost", "total_cost",
		"grid_rows", "grid_cols", "grid_size_ft", "valid_cells",
	}
	for _, key := range want {
		if _, ok := fields[key]; !ok {
			t.Errorf("result JSON is missing %q", key)
		}
	}
	// Viability is optional and was not configured here.
	if _, ok := fields["viability"]; ok {
		t.Error("expected viability to be omitted when no rent is configured")
	}
}

func TestAnalyze_Errors(t *testing.T) {
	if _, err := Analyze(nil, DefaultConfig()); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("nil grid: expected ErrInsufficientData, got %v", err)
	}
	if _, err := Analyze(&TerrainGrid{}, DefaultConfig()); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("empty grid: expected ErrInsufficientData, got %v", err)
	}

	grid := testGrid(2, 2, 10, flat(10), flat(12))
	if _, err := Analyze(grid, DefaultConfig().WithGridSize(-1)); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("bad config: expected ErrInvalidConfiguration, got %v", err)
	}

	if _, err := AnalyzeSamples(nil, DefaultConfig()); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("no samples: expected ErrInsufficientData, got %v", err)
	}
}
