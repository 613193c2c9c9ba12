package earthwork

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// cubicFeetPerCubicYard converts plan-area × depth volumes to cubic yards.
const cubicFeetPerCubicYard = 27.0

// ComputeCutFill derives the per-cell earthwork requirement for every valid
// grid cell. Depth is target minus current, so positive depths need fill
// and negative depths provide cut; cells within the balance tolerance are
// balanced and contribute to neither total. Fill volumes are scaled by the
// configured compaction factor.
//
// The per-cell pass fans out to the worker pool on large grids; cells are
// emitted in row-major order and aggregates are reduced sequentially either
// way, so results are identical to a purely sequential run.
func ComputeCutFill(grid *TerrainGrid, cfg *Config) (*CutFillReport, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if grid == nil || len(grid.Cells) == 0 {
		return nil, fmt.Errorf("%w: no terrain grid to compute earthwork for", ErrInsufficientData)
	}

	valid := make([]*GridCell, 0, grid.ValidCells)
	for i := range grid.Cells {
		if grid.Cells[i].Valid {
			valid = append(valid, &grid.Cells[i])
		}
	}

	area := grid.CellAreaSqft()
	cells := make([]EarthworkCell, len(valid))
	runCellPass(len(valid), cfg, func(i int) {
		cells[i] = deriveEarthworkCell(valid[i], area, cfg)
	})

	report := &CutFillReport{Cells: cells}
	cutVols := make([]float64, 0, len(cells))
	fillVols := make([]float64, 0, len(cells))
	for i := range cells {
		c := &cells[i]
		if !isFinite(c.VolumeCy) || c.VolumeCy < 0 {
			return nil, fmt.Errorf("%w: cell (%d,%d) computed volume %g cy", ErrInternalConsistency, c.Row, c.Col, c.VolumeCy)
		}
		switch c.Direction {
		case DirectionCut:
			report.CutCells++
			cutVols = append(cutVols, c.VolumeCy)
		case DirectionFill:
			report.FillCells++
			fillVols = append(fillVols, c.VolumeCy)
		default:
			report.BalancedCells++
		}
		if cfg.MaxCutFillFt > 0 && math.Abs(c.DepthFt) > cfg.MaxCutFillFt {
			report.CellsOverDepthLimit = append(report.CellsOverDepthLimit, CellRef{Row: c.Row, Col: c.Col})
		}
	}

	report.TotalCutCy = floats.Sum(cutVols)
	report.TotalFillCy = floats.Sum(fillVols)
	if report.TotalCutCy > 0 {
		ratio := report.TotalFillCy / report.TotalCutCy
		report.BalanceRatio = &ratio
	}
	return report, nil
}

func deriveEarthworkCell(gc *GridCell, areaSqft float64, cfg *Config) EarthworkCell {
	depth := gc.TargetElevationFt - gc.CurrentElevationFt
	volume := math.Abs(depth) * areaSqft / cubicFeetPerCubicYard

	direction := DirectionBalanced
	switch {
	case math.Abs(depth) <= cfg.BalanceToleranceFt:
		// Within tolerance nothing moves, so no volume is reported either.
		direction = DirectionBalanced
		volume = 0
	case depth > 0:
		direction = DirectionFill
		volume *= cfg.FillCompactionFactor
	default:
		direction = DirectionCut
	}

	return EarthworkCell{
		Row:       gc.Row,
		Col:       gc.Col,
		CenterXFt: gc.CenterXFt,
		CenterYFt: gc.CenterYFt,
		DepthFt:   depth,
		VolumeCy:  volume,
		Direction: direction,
	}
}
