package earthwork

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func fptr(v float64) *float64 { return &v }

// square20 is a 20x20 ft site sampled at its corners, every sample carrying
// an explicit target of 10 ft. With 10 ft cells each center has exactly one
// nearest corner.
func square20() []Sample {
	return []Sample{
		{XFt: 0, YFt: 0, CurrentElevationFt: 4, TargetElevationFt: fptr(10)},
		{XFt: 20, YFt: 0, CurrentElevationFt: 8, TargetElevationFt: fptr(10)},
		{XFt: 0, YFt: 20, CurrentElevationFt: 6, TargetElevationFt: fptr(10)},
		{XFt: 20, YFt: 20, CurrentElevationFt: 2, TargetElevationFt: fptr(10)},
	}
}

func TestBuildTerrainGrid_Dimensions(t *testing.T) {
	grid, err := BuildTerrainGrid(square20(), DefaultConfig())
	if err != nil {
		t.Fatalf("BuildTerrainGrid: %v", err)
	}

	if grid.Rows != 2 || grid.Cols != 2 {
		t.Errorf("expected 2x2 grid, got %dx%d", grid.Rows, grid.Cols)
	}
	if grid.OriginXFt != 0 || grid.OriginYFt != 0 {
		t.Errorf("expected origin (0,0), got (%g,%g)", grid.OriginXFt, grid.OriginYFt)
	}
	if grid.SampleCount != 4 {
		t.Errorf("expected 4 samples, got %d", grid.SampleCount)
	}
	if grid.ValidCells != 4 {
		t.Errorf("expected 4 valid cells, got %d", grid.ValidCells)
	}
	if grid.CellAreaSqft() != 100 {
		t.Errorf("expected 100 sqft cells, got %g", grid.CellAreaSqft())
	}
}

func TestBuildTerrainGrid_NearestSample(t *testing.T) {
	grid, err := BuildTerrainGrid(square20(), DefaultConfig())
	if err != nil {
		t.Fatalf("BuildTerrainGrid: %v", err)
	}

	// Each cell center is closest to exactly one corner sample.
	tests := []struct {
		row, col int
		wantElev float64
	}{
		{0, 0, 4}, // center (5,5) -> sample (0,0)
		{0, 1, 8}, // center (15,5) -> sample (20,0)
		{1, 0, 6}, // center (5,15) -> sample (0,20)
		{1, 1, 2}, // center (15,15) -> sample (20,20)
	}
	for _, tc := range tests {
		cell := grid.At(tc.row, tc.col)
		if cell == nil {
			t.Fatalf("cell (%d,%d) missing", tc.row, tc.col)
		}
		if !cell.Valid {
			t.Errorf("cell (%d,%d) should be valid", tc.row, tc.col)
		}
		if cell.CurrentElevationFt != tc.wantElev {
			t.Errorf("cell (%d,%d) elevation = %g, want %g", tc.row, tc.col, cell.CurrentElevationFt, tc.wantElev)
		}
		if cell.TargetElevationFt != 10 {
			t.Errorf("cell (%d,%d) target = %g, want 10", tc.row, tc.col, cell.TargetElevationFt)
		}
	}
}

func TestBuildTerrainGrid_ElevationStats(t *testing.T) {
	grid, err := BuildTerrainGrid(square20(), DefaultConfig())
	if err != nil {
		t.Fatalf("BuildTerrainGrid: %v", err)
	}

	if grid.MinElevationFt != 2 {
		t.Errorf("MinElevationFt = %g, want 2", grid.MinElevationFt)
	}
	if grid.MaxElevationFt != 8 {
		t.Errorf("MaxElevationFt = %g, want 8", grid.MaxElevationFt)
	}
	if math.Abs(grid.MeanElevationFt-5) > 1e-12 {
		t.Errorf("MeanElevationFt = %g, want 5", grid.MeanElevationFt)
	}
}

func TestBuildTerrainGrid_OrderIndependence(t *testing.T) {
	samples := square20()
	reversed := make([]Sample, len(samples))
	for i, s := range samples {
		reversed[len(samples)-1-i] = s
	}

	a, err := BuildTerrainGrid(samples, DefaultConfig())
	if err != nil {
		t.Fatalf("BuildTerrainGrid(samples): %v", err)
	}
	b, err := BuildTerrainGrid(reversed, DefaultConfig())
	if err != nil {
		t.Fatalf("BuildTerrainGrid(reversed): %v", err)
	}

	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("grid depends on sample order (-original +reversed):\n%s", diff)
	}
}

func TestBuildTerrainGrid_HullMasking(t *testing.T) {
	// Right triangle: cells beyond the hypotenuse x+y=40 have no data.
	samples := []Sample{
		{XFt: 0, YFt: 0, CurrentElevationFt: 10, TargetElevationFt: fptr(10)},
		{XFt: 40, YFt: 0, CurrentElevationFt: 10, TargetElevationFt: fptr(10)},
		{XFt: 0, YFt: 40, CurrentElevationFt: 10, TargetElevationFt: fptr(10)},
	}
	grid, err := BuildTerrainGrid(samples, DefaultConfig())
	if err != nil {
		t.Fatalf("BuildTerrainGrid: %v", err)
	}

	if grid.Rows != 4 || grid.Cols != 4 {
		t.Fatalf("expected 4x4 grid, got %dx%d", grid.Rows, grid.Cols)
	}
	// Centers on or below the hypotenuse are inside; e.g. (35,35) is far out.
	if grid.At(3, 3).Valid {
		t.Error("cell (3,3) center (35,35) lies outside the hull, must be invalid")
	}
	if !grid.At(0, 0).Valid {
		t.Error("cell (0,0) center (5,5) lies inside the hull, must be valid")
	}
	if !grid.At(0, 3).Valid {
		t.Error("cell (0,3) center (35,5) lies on the hypotenuse, must count as inside")
	}
	if grid.ValidCells != 10 {
		t.Errorf("expected 10 valid cells in the triangle, got %d", grid.ValidCells)
	}
}

func TestBuildTerrainGrid_TooFewSamples(t *testing.T) {
	samples := square20()[:2]
	_, err := BuildTerrainGrid(samples, DefaultConfig())
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData for 2 samples, got %v", err)
	}
}

func TestBuildTerrainGrid_CollinearSamples(t *testing.T) {
	samples := []Sample{
		{XFt: 0, YFt: 0, CurrentElevationFt: 1, TargetElevationFt: fptr(5)},
		{XFt: 10, YFt: 10, CurrentElevationFt: 2, TargetElevationFt: fptr(5)},
		{XFt: 20, YFt: 20, CurrentElevationFt: 3, TargetElevationFt: fptr(5)},
		{XFt: 30, YFt: 30, CurrentElevationFt: 4, TargetElevationFt: fptr(5)},
	}
	_, err := BuildTerrainGrid(samples, DefaultConfig())
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData for collinear samples, got %v", err)
	}
}

func TestBuildTerrainGrid_NonFiniteSample(t *testing.T) {
	samples := square20()
	samples[1].CurrentElevationFt = math.NaN()
	_, err := BuildTerrainGrid(samples, DefaultConfig())
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData for NaN elevation, got %v", err)
	}
}

func TestBuildTerrainGrid_NoTargetAnywhere(t *testing.T) {
	samples := square20()
	for i := range samples {
		samples[i].TargetElevationFt = nil
	}
	_, err := BuildTerrainGrid(samples, DefaultConfig())
	if !errors.Is(err, ErrUnresolvableGrid) {
		t.Errorf("expected ErrUnresolvableGrid without targets or default, got %v", err)
	}
}

func TestBuildTerrainGrid_InvalidConfig(t *testing.T) {
	_, err := BuildTerrainGrid(square20(), DefaultConfig().WithGridSize(-5))
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration for negative grid size, got %v", err)
	}
}

func TestBuildTerrainGrid_DefaultTargetElevation(t *testing.T) {
	samples := square20()
	for i := range samples {
		samples[i].TargetElevationFt = nil
	}
	cfg := DefaultConfig().WithDefaultTargetElevation(12)

	grid, err := BuildTerrainGrid(samples, cfg)
	if err != nil {
		t.Fatalf("BuildTerrainGrid: %v", err)
	}
	for _, cell := range grid.Cells {
		if !cell.Valid {
			t.Fatalf("cell (%d,%d) should be valid with a default target", cell.Row, cell.Col)
		}
		if cell.TargetElevationFt != 12 {
			t.Errorf("cell (%d,%d) target = %g, want flat pad 12", cell.Row, cell.Col, cell.TargetElevationFt)
		}
	}
}

func TestBuildTerrainGrid_DefaultSlopePlane(t *testing.T) {
	// Uniform 10 ft terrain; only the middle cell center falls inside the
	// triangular hull. With slope-only configuration the plane base is the
	// mean sampled elevation.
	samples := []Sample{
		{XFt: 0, YFt: 0, CurrentElevationFt: 10},
		{XFt: 30, YFt: 0, CurrentElevationFt: 10},
		{XFt: 15, YFt: 8, CurrentElevationFt: 10},
	}
	cfg := DefaultConfig().WithDefaultSlope(2)

	grid, err := BuildTerrainGrid(samples, cfg)
	if err != nil {
		t.Fatalf("BuildTerrainGrid: %v", err)
	}
	if grid.Rows != 1 || grid.Cols != 3 {
		t.Fatalf("expected 1x3 grid, got %dx%d", grid.Rows, grid.Cols)
	}
	if grid.ValidCells != 1 {
		t.Fatalf("expected only the middle cell inside the hull, got %d valid", grid.ValidCells)
	}

	cell := grid.At(0, 1)
	if !cell.Valid {
		t.Fatal("middle cell should be valid")
	}
	// base 10 (mean) + 2% over 15 ft from the origin = 10.3.
	if math.Abs(cell.TargetElevationFt-10.3) > 1e-12 {
		t.Errorf("middle cell target = %g, want 10.3", cell.TargetElevationFt)
	}
}

func TestBuildTerrainGrid_ElevationAndSlopePlane(t *testing.T) {
	samples := []Sample{
		{XFt: 0, YFt: 0, CurrentElevationFt: 10},
		{XFt: 30, YFt: 0, CurrentElevationFt: 10},
		{XFt: 15, YFt: 8, CurrentElevationFt: 10},
	}
	cfg := DefaultConfig().WithDefaultTargetElevation(12).WithDefaultSlope(2)

	grid, err := BuildTerrainGrid(samples, cfg)
	if err != nil {
		t.Fatalf("BuildTerrainGrid: %v", err)
	}
	cell := grid.At(0, 1)
	if math.Abs(cell.TargetElevationFt-12.3) > 1e-12 {
		t.Errorf("middle cell target = %g, want 12.3 (explicit base 12 + 2%% over 15 ft)", cell.TargetElevationFt)
	}
}

func TestBuildTerrainGrid_SampleTargetWinsOverDefault(t *testing.T) {
	samples := square20()
	for i := range samples {
		samples[i].TargetElevationFt = nil
	}
	samples[0].TargetElevationFt = fptr(42) // sample at (0,0)

	grid, err := BuildTerrainGrid(samples, DefaultConfig().WithDefaultTargetElevation(12))
	if err != nil {
		t.Fatalf("BuildTerrainGrid: %v", err)
	}

	if got := grid.At(0, 0).TargetElevationFt; got != 42 {
		t.Errorf("cell (0,0) target = %g, want the sample's explicit 42", got)
	}
	if got := grid.At(0, 1).TargetElevationFt; got != 12 {
		t.Errorf("cell (0,1) target = %g, want the default 12", got)
	}
}

func TestTerrainGrid_At(t *testing.T) {
	grid, err := BuildTerrainGrid(square20(), DefaultConfig())
	if err != nil {
		t.Fatalf("BuildTerrainGrid: %v", err)
	}

	if grid.At(0, 0) == nil {
		t.Error("At(0,0) should not be nil")
	}
	for _, ref := range []CellRef{{-1, 0}, {0, -1}, {2, 0}, {0, 2}} {
		if grid.At(ref.Row, ref.Col) != nil {
			t.Errorf("At(%d,%d) should be nil out of bounds", ref.Row, ref.Col)
		}
	}
}
