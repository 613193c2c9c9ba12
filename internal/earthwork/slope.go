package earthwork

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// AnalyzeSlopes computes the slope between every adjacent pair of valid
// cells on one surface. The engine runs this twice per analysis — once on
// current elevations (existing conditions) and once on target elevations
// (proposed conditions) — and the two reports are never merged.
//
// Adjacency is 4-connected by default (right and down neighbors, each pair
// visited once) or 8-connected when configured, which adds the two diagonal
// neighbors at √2 × grid distance. Segments are emitted in row-major order
// of the upstream cell with a fixed neighbor order, so the segment list is
// deterministic.
func AnalyzeSlopes(grid *TerrainGrid, surface Surface, cfg *Config) (*SlopeReport, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if grid == nil || len(grid.Cells) == 0 {
		return nil, fmt.Errorf("%w: no terrain grid to analyze slopes for", ErrInsufficientData)
	}
	if surface != SurfaceCurrent && surface != SurfaceTarget {
		return nil, fmt.Errorf("%w: unknown surface %q", ErrInvalidConfiguration, surface)
	}

	// Each cell's segments land in a dedicated slot, so the fan-out order
	// never affects the concatenated result.
	slots := make([][]SlopeSegment, len(grid.Cells))
	runCellPass(len(grid.Cells), cfg, func(i int) {
		slots[i] = segmentsForCell(grid, i, surface, cfg)
	})

	report := &SlopeReport{
		Surface: surface,
		ClassCounts: map[SlopeClass]int{
			SlopeFlat:      0,
			SlopeGentle:    0,
			SlopeModerate:  0,
			SlopeSteep:     0,
			SlopeExcessive: 0,
		},
	}
	var slopes []float64
	for _, segs := range slots {
		for _, s := range segs {
			report.Segments = append(report.Segments, s)
			report.ClassCounts[s.Classification]++
			if s.ErosionRisk == ErosionHigh {
				report.HighRiskCount++
			}
			slopes = append(slopes, s.SlopePercent)
		}
	}

	if len(slopes) > 0 {
		report.MinSlopePercent = slopes[0]
		report.MaxSlopePercent = slopes[0]
		for _, v := range slopes[1:] {
			if v < report.MinSlopePercent {
				report.MinSlopePercent = v
			}
			if v > report.MaxSlopePercent {
				report.MaxSlopePercent = v
			}
		}
		report.MeanSlopePercent = stat.Mean(slopes, nil)
	}
	return report, nil
}

// neighborOffset is one step of the adjacency stencil with its center
// distance in grid units.
type neighborOffset struct {
	dr, dc int
	dist   float64
}

// neighborOffsets returns the half of the adjacency stencil that visits
// each pair exactly once.
func neighborOffsets(connectivity int) []neighborOffset {
	offsets := []neighborOffset{
		{0, 1, 1},
		{1, 0, 1},
	}
	if connectivity == 8 {
		offsets = append(offsets, neighborOffset{1, 1, math.Sqrt2}, neighborOffset{1, -1, math.Sqrt2})
	}
	return offsets
}

func segmentsForCell(grid *TerrainGrid, idx int, surface Surface, cfg *Config) []SlopeSegment {
	row := idx / grid.Cols
	col := idx % grid.Cols
	from := grid.At(row, col)
	if from == nil || !from.Valid {
		return nil
	}

	var segs []SlopeSegment
	for _, off := range neighborOffsets(cfg.Connectivity) {
		to := grid.At(row+off.dr, col+off.dc)
		if to == nil || !to.Valid {
			continue
		}

		var fromElev, toElev float64
		if surface == SurfaceCurrent {
			fromElev, toElev = from.CurrentElevationFt, to.CurrentElevationFt
		} else {
			fromElev, toElev = from.TargetElevationFt, to.TargetElevationFt
		}

		dist := off.dist * grid.GridSizeFt
		slope := math.Abs(fromElev-toElev) / dist * 100

		segs = append(segs, SlopeSegment{
			From:           CellRef{Row: from.Row, Col: from.Col},
			To:             CellRef{Row: to.Row, Col: to.Col},
			Surface:        surface,
			DistanceFt:     dist,
			SlopePercent:   slope,
			Classification: classifySlope(slope, cfg),
			ErosionRisk:    erosionRisk(slope, cfg),
		})
	}
	return segs
}

// classifySlope maps a slope percentage onto the five-band classification.
// Band edges come from configuration; the excessive band begins strictly
// above max_slope_percent so it coincides with high erosion risk.
func classifySlope(slopePercent float64, cfg *Config) SlopeClass {
	switch {
	case slopePercent < cfg.MinSlopePercent:
		return SlopeFlat
	case slopePercent < cfg.GentleSlopePercent:
		return SlopeGentle
	case slopePercent < cfg.SteepSlopePercent:
		return SlopeModerate
	case slopePercent <= cfg.MaxSlopePercent:
		return SlopeSteep
	default:
		return SlopeExcessive
	}
}

// erosionRisk grades a segment: steeper than max_slope_percent erodes,
// flatter than min_slope_percent drains poorly.
func erosionRisk(slopePercent float64, cfg *Config) ErosionRisk {
	switch {
	case slopePercent > cfg.MaxSlopePercent:
		return ErosionHigh
	case slopePercent < cfg.MinSlopePercent:
		return ErosionModerate
	default:
		return ErosionLow
	}
}
