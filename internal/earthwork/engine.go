package earthwork

import (
	"fmt"
	"math"
)

// conservationTolerance is the relative slack allowed when checking that
// assigned+residual volume adds back up to the cut and fill totals. It
// absorbs float summation order, nothing more.
const conservationTolerance = 1e-6

// Analyze runs the full grading pipeline on a built terrain grid:
// cut/fill quantities, slope passes over both surfaces, haul matching,
// and the cost breakdown. It is pure — no retained state, no clock, no
// identifiers — so identical inputs produce byte-identical results.
func Analyze(grid *TerrainGrid, cfg *Config) (*GradingResult, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if grid == nil || len(grid.Cells) == 0 {
		return nil, fmt.Errorf("%w: no terrain grid to analyze", ErrInsufficientData)
	}

	report, err := ComputeCutFill(grid, cfg)
	if err != nil {
		return nil, err
	}
	diagf("cutfill: %d cut / %d fill / %d balanced cells, %.1f cy cut, %.1f cy fill",
		report.CutCells, report.FillCells, report.BalancedCells, report.TotalCutCy, report.TotalFillCy)

	existing, err := AnalyzeSlopes(grid, SurfaceCurrent, cfg)
	if err != nil {
		return nil, err
	}
	proposed, err := AnalyzeSlopes(grid, SurfaceTarget, cfg)
	if err != nil {
		return nil, err
	}
	diagf("slopes: existing %d segments (%d high risk), proposed %d segments (%d high risk)",
		len(existing.Segments), existing.HighRiskCount, len(proposed.Segments), proposed.HighRiskCount)

	plan, err := OptimizeHaul(report.Cells, cfg)
	if err != nil {
		return nil, err
	}
	diagf("haul: %d assignments, %.1f cy import, %.1f cy export, %.1f ft mean haul",
		len(plan.Assignments), plan.ImportVolumeCy, plan.ExportVolumeCy, plan.MassHaulDistanceFt)

	if err := checkConservation(report, plan); err != nil {
		opsf("aborting analysis: %v", err)
		return nil, err
	}

	cost, err := EstimateCost(report, plan, cfg)
	if err != nil {
		return nil, err
	}
	diagf("cost: total $%.2f", cost.TotalCost)

	return &GradingResult{
		CutVolumeCy:         report.TotalCutCy,
		FillVolumeCy:        report.TotalFillCy,
		BalanceRatio:        report.BalanceRatio,
		ImportVolumeCy:      plan.ImportVolumeCy,
		ExportVolumeCy:      plan.ExportVolumeCy,
		MassHaulDistanceFt:  plan.MassHaulDistanceFt,
		Assignments:         plan.Assignments,
		Cells:               report.Cells,
		CellsOverDepthLimit: report.CellsOverDepthLimit,
		ExistingSlopes:      existing,
		ProposedSlopes:      proposed,
		Cost:                *cost,
		TotalCost:           cost.TotalCost,
		Viability:           EvaluateViability(cost.TotalCost, cfg.AnnualRentUSD, cfg.ViabilityThresholdRatio),
		GridRows:            grid.Rows,
		GridCols:            grid.Cols,
		GridSizeFt:          grid.GridSizeFt,
		ValidCells:          grid.ValidCells,
	}, nil
}

// AnalyzeSamples builds the terrain grid from raw elevation samples and
// runs Analyze on it. This is the entry point the service layer and CLI
// use; callers that already hold a grid call Analyze directly.
func AnalyzeSamples(samples []Sample, cfg *Config) (*GradingResult, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	grid, err := BuildTerrainGrid(samples, cfg)
	if err != nil {
		return nil, err
	}
	diagf("grid: %dx%d cells at %.1f ft, %d valid from %d samples",
		grid.Rows, grid.Cols, grid.GridSizeFt, grid.ValidCells, grid.SampleCount)
	return Analyze(grid, cfg)
}

// checkConservation verifies that every cubic yard of cut ends up in an
// assignment or the export pile, and every cubic yard of fill demand is met
// by an assignment or the import pile.
func checkConservation(report *CutFillReport, plan *HaulPlan) error {
	assigned := plan.TotalAssignedCy()

	if err := conserved("cut", report.TotalCutCy, assigned+plan.ExportVolumeCy); err != nil {
		return err
	}
	return conserved("fill", report.TotalFillCy, assigned+plan.ImportVolumeCy)
}

func conserved(side string, total, accounted float64) error {
	slack := conservationTolerance * math.Max(1, math.Abs(total))
	if math.Abs(total-accounted) > slack {
		return fmt.Errorf("%w: %s volume not conserved: total %.6f cy vs accounted %.6f cy",
			ErrInternalConsistency, side, total, accounted)
	}
	return nil
}
