// Package earthwork implements the grading and mass-haul engine: terrain
// gridding, per-cell cut/fill volumes, slope risk classification, a
// deterministic least-cost haul allocation, and cost aggregation.
//
// The engine is a pure computation. Analyze holds no state between calls
// and identical inputs produce byte-identical results, so callers may cache
// or persist results keyed on their inputs without coordination.
package earthwork

// Sample is one surveyed elevation point. X and Y are site-plan coordinates
// in feet; TargetElevationFt is nil when the survey carries no design
// surface for that point.
type Sample struct {
	XFt                float64  `json:"x_ft"`
	YFt                float64  `json:"y_ft"`
	CurrentElevationFt float64  `json:"current_elevation_ft"`
	TargetElevationFt  *float64 `json:"target_elevation_ft,omitempty"`
}

// GridCell is one cell of the regularized terrain grid. Cells outside the
// convex hull of the input samples, or without a resolvable target
// elevation, have Valid == false and are excluded from every downstream
// volume and slope computation.
type GridCell struct {
	Row                int     `json:"row"`
	Col                int     `json:"col"`
	CenterXFt          float64 `json:"center_x_ft"`
	CenterYFt          float64 `json:"center_y_ft"`
	CurrentElevationFt float64 `json:"current_elevation_ft"`
	TargetElevationFt  float64 `json:"target_elevation_ft"`
	Valid              bool    `json:"valid"`
}

// TerrainGrid is the regular elevation grid a single analysis operates on.
// Cells are stored row-major; use At for bounds-checked access.
type TerrainGrid struct {
	Rows       int        `json:"rows"`
	Cols       int        `json:"cols"`
	GridSizeFt float64    `json:"grid_size_ft"`
	OriginXFt  float64    `json:"origin_x_ft"`
	OriginYFt  float64    `json:"origin_y_ft"`
	Cells      []GridCell `json:"cells"`

	// ValidCells counts cells with data; SampleCount is the number of
	// survey samples the grid was built from.
	ValidCells  int `json:"valid_cells"`
	SampleCount int `json:"sample_count"`

	// Elevation summary over valid cells (current surface).
	MinElevationFt  float64 `json:"min_elevation_ft"`
	MaxElevationFt  float64 `json:"max_elevation_ft"`
	MeanElevationFt float64 `json:"mean_elevation_ft"`
}

// Idx returns the flat index for (row, col). No bounds check; callers
// iterate within [0, Rows) × [0, Cols).
func (g *TerrainGrid) Idx(row, col int) int {
	return row*g.Cols + col
}

// At returns the cell at (row, col), or nil when out of range.
func (g *TerrainGrid) At(row, col int) *GridCell {
	if row < 0 || row >= g.Rows || col < 0 || col >= g.Cols {
		return nil
	}
	return &g.Cells[g.Idx(row, col)]
}

// CellAreaSqft returns the plan area of one grid cell.
func (g *TerrainGrid) CellAreaSqft() float64 {
	return g.GridSizeFt * g.GridSizeFt
}

// Direction classifies a cell's earthwork requirement.
type Direction string

const (
	// DirectionCut marks cells where the current surface sits above target
	// and material must be excavated.
	DirectionCut Direction = "cut"
	// DirectionFill marks cells where the target surface sits above current
	// and material must be placed.
	DirectionFill Direction = "fill"
	// DirectionBalanced marks cells within the balance tolerance of target.
	DirectionBalanced Direction = "balanced"
)

// CellRef identifies a grid cell inside results without carrying the full
// cell payload.
type CellRef struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// EarthworkCell is the per-cell cut/fill requirement derived from the grid.
// DepthFt is target minus current: positive means fill, negative means cut.
// VolumeCy is always non-negative.
type EarthworkCell struct {
	Row       int       `json:"row"`
	Col       int       `json:"col"`
	CenterXFt float64   `json:"center_x_ft"`
	CenterYFt float64   `json:"center_y_ft"`
	DepthFt   float64   `json:"depth_ft"`
	VolumeCy  float64   `json:"volume_cy"`
	Direction Direction `json:"direction"`
}

// CutFillReport aggregates the per-cell earthwork requirements.
// BalanceRatio is fill over cut and is nil when TotalCutCy == 0; callers
// must handle the nil case rather than divide.
type CutFillReport struct {
	Cells         []EarthworkCell `json:"cells"`
	TotalCutCy    float64         `json:"total_cut_cy"`
	TotalFillCy   float64         `json:"total_fill_cy"`
	CutCells      int             `json:"cut_cells"`
	FillCells     int             `json:"fill_cells"`
	BalancedCells int             `json:"balanced_cells"`
	BalanceRatio  *float64        `json:"balance_ratio"`

	// CellsOverDepthLimit lists cells whose |depth| exceeds the configured
	// max cut/fill depth. Empty when the limit is disabled (0).
	CellsOverDepthLimit []CellRef `json:"cells_over_depth_limit,omitempty"`
}

// Surface selects which elevation field a slope pass reads.
type Surface string

const (
	// SurfaceCurrent analyzes existing conditions.
	SurfaceCurrent Surface = "current"
	// SurfaceTarget analyzes post-grading (proposed) conditions.
	SurfaceTarget Surface = "target"
)

// SlopeClass is the five-band slope classification.
type SlopeClass string

const (
	SlopeFlat      SlopeClass = "flat"
	SlopeGentle    SlopeClass = "gentle"
	SlopeModerate  SlopeClass = "moderate"
	SlopeSteep     SlopeClass = "steep"
	SlopeExcessive SlopeClass = "excessive"
)

// ErosionRisk grades a segment's erosion/drainage concern.
type ErosionRisk string

const (
	// ErosionHigh flags slopes above the configured maximum.
	ErosionHigh ErosionRisk = "high"
	// ErosionModerate flags near-flat segments that will drain poorly.
	ErosionModerate ErosionRisk = "moderate"
	// ErosionLow covers everything between the two thresholds.
	ErosionLow ErosionRisk = "low"
)

// SlopeSegment is the slope between one adjacent cell pair on one surface.
type SlopeSegment struct {
	From           CellRef     `json:"from"`
	To             CellRef     `json:"to"`
	Surface        Surface     `json:"surface"`
	DistanceFt     float64     `json:"distance_ft"`
	SlopePercent   float64     `json:"slope_percent"`
	Classification SlopeClass  `json:"classification"`
	ErosionRisk    ErosionRisk `json:"erosion_risk"`
}

// SlopeReport is one surface's slope pass: the segment list plus summary
// statistics over it.
type SlopeReport struct {
	Surface          Surface            `json:"surface"`
	Segments         []SlopeSegment     `json:"segments"`
	MaxSlopePercent  float64            `json:"max_slope_percent"`
	MinSlopePercent  float64            `json:"min_slope_percent"`
	MeanSlopePercent float64            `json:"mean_slope_percent"`
	HighRiskCount    int                `json:"high_risk_count"`
	ClassCounts      map[SlopeClass]int `json:"class_counts"`
}

// Exceeding returns the segments with slope strictly above threshold.
func (r *SlopeReport) Exceeding(thresholdPercent float64) []SlopeSegment {
	var out []SlopeSegment
	for _, s := range r.Segments {
		if s.SlopePercent > thresholdPercent {
			out = append(out, s)
		}
	}
	return out
}

// HaulAssignment moves VolumeCy from a cut cell to a fill cell over the
// straight-line distance between their centers.
type HaulAssignment struct {
	Source     CellRef `json:"source"`
	Sink       CellRef `json:"sink"`
	VolumeCy   float64 `json:"volume_cy"`
	DistanceFt float64 `json:"distance_ft"`
	HaulCost   float64 `json:"haul_cost"`
}

// HaulPlan is the optimizer output: the assignment list in selection order
// plus the residual volumes that could not be matched on-site.
type HaulPlan struct {
	Assignments    []HaulAssignment `json:"assignments"`
	ImportVolumeCy float64          `json:"import_volume_cy"`
	ExportVolumeCy float64          `json:"export_volume_cy"`

	// MassHaulDistanceFt is the volume-weighted mean assignment distance;
	// zero when there are no assignments.
	MassHaulDistanceFt float64 `json:"mass_haul_distance_ft"`
}

// TotalAssignedCy sums the moved volume across all assignments.
func (p *HaulPlan) TotalAssignedCy() float64 {
	var total float64
	for _, a := range p.Assignments {
		total += a.VolumeCy
	}
	return total
}

// CostBreakdown is the estimator output in dollars. Components are rounded
// to cents and TotalCost is their exact sum, so the breakdown always
// reconciles.
type CostBreakdown struct {
	CutCost        float64 `json:"cut_cost"`
	FillCost       float64 `json:"fill_cost"`
	CompactionCost float64 `json:"compaction_cost"`
	HaulCost       float64 `json:"haul_cost"`
	ImportCost     float64 `json:"import_cost"`
	ExportCost     float64 `json:"export_cost"`
	TotalCost      float64 `json:"total_cost"`
}

// ViabilityVerdict is the outcome of the optional cost-vs-rent assessment.
type ViabilityVerdict string

const (
	// VerdictViable means the earthwork cost ratio is within threshold.
	VerdictViable ViabilityVerdict = "viable"
	// VerdictRedesign means earthwork costs are out of proportion to the
	// parcel's annual rent and the pad should be redesigned.
	VerdictRedesign ViabilityVerdict = "redesign"
)

// ViabilityAssessment compares total earthwork cost against the parcel's
// annual rent. Present on results only when an annual rent is configured.
type ViabilityAssessment struct {
	AnnualRentUSD  float64          `json:"annual_rent_usd"`
	CostRatio      float64          `json:"cost_ratio"`
	ThresholdRatio float64          `json:"threshold_ratio"`
	Verdict        ViabilityVerdict `json:"verdict"`
}

// GradingResult is the complete, immutable output of one Analyze call.
// Field names are the stable contract consumed by downstream collaborators
// (stormwater, road, sewer, financial coordination).
type GradingResult struct {
	CutVolumeCy    float64  `json:"cut_volume_cy"`
	FillVolumeCy   float64  `json:"fill_volume_cy"`
	BalanceRatio   *float64 `json:"balance_ratio"`
	ImportVolumeCy float64  `json:"import_volume_cy"`
	ExportVolumeCy float64  `json:"export_volume_cy"`

	MassHaulDistanceFt float64          `json:"mass_haul_distance_ft"`
	Assignments        []HaulAssignment `json:"assignments"`

	Cells               []EarthworkCell `json:"cells"`
	CellsOverDepthLimit []CellRef       `json:"cells_over_depth_limit,omitempty"`

	ExistingSlopes *SlopeReport `json:"existing_slopes"`
	ProposedSlopes *SlopeReport `json:"proposed_slopes"`

	Cost      CostBreakdown        `json:"cost"`
	TotalCost float64              `json:"total_cost"`
	Viability *ViabilityAssessment `json:"viability,omitempty"`

	GridRows   int     `json:"grid_rows"`
	GridCols   int     `json:"grid_cols"`
	GridSizeFt float64 `json:"grid_size_ft"`
	ValidCells int     `json:"valid_cells"`
}
