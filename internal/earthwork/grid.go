package earthwork

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// BuildTerrainGrid resamples unordered survey samples onto a regular grid of
// cfg.GridSizeFt cells covering the samples' bounding box.
//
// Resampling is nearest-sample: each cell takes the elevation of the sample
// closest to its center, with ties broken by canonical sample order (sorted
// by y, x, elevation), so the result does not depend on input ordering.
// Cells whose centers fall outside the convex hull of the samples are
// marked invalid ("no data").
//
// Target elevations resolve per cell: the nearest sample's explicit target
// wins; otherwise the configured default target plane applies; a cell with
// neither is invalid. When no sample carries a target and no default is
// configured the grid is unresolvable and an error is returned before any
// cells are built.
func BuildTerrainGrid(samples []Sample, cfg *Config) (*TerrainGrid, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if len(samples) < 3 {
		return nil, fmt.Errorf("%w: need at least 3 samples to interpolate a surface, got %d", ErrInsufficientData, len(samples))
	}
	for i, s := range samples {
		if !isFinite(s.XFt) || !isFinite(s.YFt) || !isFinite(s.CurrentElevationFt) {
			return nil, fmt.Errorf("%w: sample %d has non-finite coordinates or elevation", ErrInsufficientData, i)
		}
		if s.TargetElevationFt != nil && !isFinite(*s.TargetElevationFt) {
			return nil, fmt.Errorf("%w: sample %d has non-finite target elevation", ErrInsufficientData, i)
		}
	}

	// Canonical order makes nearest-sample tie-breaks independent of the
	// caller's sample ordering.
	sorted := append([]Sample(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.YFt != b.YFt {
			return a.YFt < b.YFt
		}
		if a.XFt != b.XFt {
			return a.XFt < b.XFt
		}
		return a.CurrentElevationFt < b.CurrentElevationFt
	})

	pts := make([]point, len(sorted))
	for i, s := range sorted {
		pts[i] = point{s.XFt, s.YFt}
	}
	if collinear(pts) {
		return nil, fmt.Errorf("%w: samples are collinear, cannot interpolate a surface", ErrInsufficientData)
	}

	anyTarget := false
	for _, s := range sorted {
		if s.TargetElevationFt != nil {
			anyTarget = true
			break
		}
	}
	hasDefault := cfg.DefaultTargetElevationFt != nil || cfg.DefaultSlopePercent != nil
	if !anyTarget && !hasDefault {
		return nil, fmt.Errorf("%w: samples carry no target elevations and no default target is configured", ErrUnresolvableGrid)
	}

	minX, maxX := pts[0].x, pts[0].x
	minY, maxY := pts[0].y, pts[0].y
	for _, p := range pts[1:] {
		minX = math.Min(minX, p.x)
		maxX = math.Max(maxX, p.x)
		minY = math.Min(minY, p.y)
		maxY = math.Max(maxY, p.y)
	}

	gs := cfg.GridSizeFt
	cols := int(math.Ceil((maxX - minX) / gs))
	if cols < 1 {
		cols = 1
	}
	rows := int(math.Ceil((maxY - minY) / gs))
	if rows < 1 {
		rows = 1
	}

	hull := convexHull(pts)
	index := newSampleIndex(pts, gs)
	plane := newTargetPlane(sorted, cfg, minX)

	grid := &TerrainGrid{
		Rows:        rows,
		Cols:        cols,
		GridSizeFt:  gs,
		OriginXFt:   minX,
		OriginYFt:   minY,
		Cells:       make([]GridCell, rows*cols),
		SampleCount: len(sorted),
	}

	var elevs []float64
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			cx := minX + (float64(col)+0.5)*gs
			cy := minY + (float64(row)+0.5)*gs
			cell := GridCell{Row: row, Col: col, CenterXFt: cx, CenterYFt: cy}

			if hullContains(hull, point{cx, cy}) {
				nearest := index.nearest(point{cx, cy})
				s := sorted[nearest]
				cell.CurrentElevationFt = s.CurrentElevationFt
				switch {
				case s.TargetElevationFt != nil:
					cell.TargetElevationFt = *s.TargetElevationFt
					cell.Valid = true
				case hasDefault:
					cell.TargetElevationFt = plane.at(cx)
					cell.Valid = true
				}
			}

			if cell.Valid {
				grid.ValidCells++
				elevs = append(elevs, cell.CurrentElevationFt)
			}
			grid.Cells[grid.Idx(row, col)] = cell
		}
	}

	if len(elevs) > 0 {
		grid.MinElevationFt = floats.Min(elevs)
		grid.MaxElevationFt = floats.Max(elevs)
		grid.MeanElevationFt = stat.Mean(elevs, nil)
	}

	return grid, nil
}

// targetPlane synthesizes target elevations for cells whose nearest sample
// has none: a flat pad at the configured elevation, optionally tilted along
// +x by the configured slope. When only the slope is configured the pad
// base is the mean sampled elevation, which balances cut against fill on a
// uniform site.
type targetPlane struct {
	baseFt       float64
	slopePercent float64
	originXFt    float64
}

func newTargetPlane(samples []Sample, cfg *Config, originX float64) targetPlane {
	p := targetPlane{originXFt: originX}
	if cfg.DefaultSlopePercent != nil {
		p.slopePercent = *cfg.DefaultSlopePercent
	}
	if cfg.DefaultTargetElevationFt != nil {
		p.baseFt = *cfg.DefaultTargetElevationFt
		return p
	}
	elevs := make([]float64, len(samples))
	for i, s := range samples {
		elevs[i] = s.CurrentElevationFt
	}
	p.baseFt = stat.Mean(elevs, nil)
	return p
}

func (p targetPlane) at(x float64) float64 {
	return p.baseFt + p.slopePercent/100*(x-p.originXFt)
}

// sampleIndex buckets sample points on a regular grid for nearest-neighbor
// lookups. Bucket IDs pair the two signed bucket coordinates into one int64
// (zigzag then Szudzik), so negative coordinates hash correctly.
type sampleIndex struct {
	bucketSize float64
	buckets    map[int64][]int
	pts        []point
	maxRing    int64
}

func newSampleIndex(pts []point, bucketSize float64) *sampleIndex {
	si := &sampleIndex{
		bucketSize: bucketSize,
		buckets:    make(map[int64][]int, len(pts)),
		pts:        pts,
	}
	minX, maxX := pts[0].x, pts[0].x
	minY, maxY := pts[0].y, pts[0].y
	for i, p := range pts {
		id := si.bucketID(int64(math.Floor(p.x/bucketSize)), int64(math.Floor(p.y/bucketSize)))
		si.buckets[id] = append(si.buckets[id], i)
		minX = math.Min(minX, p.x)
		maxX = math.Max(maxX, p.x)
		minY = math.Min(minY, p.y)
		maxY = math.Max(maxY, p.y)
	}
	// Enough rings to reach every occupied bucket from anywhere on the site.
	si.maxRing = int64(math.Ceil(math.Max(maxX-minX, maxY-minY)/bucketSize)) + 2
	return si
}

func (si *sampleIndex) bucketID(bx, by int64) int64 {
	var a, b int64
	if bx >= 0 {
		a = 2 * bx
	} else {
		a = -2*bx - 1
	}
	if by >= 0 {
		b = 2 * by
	} else {
		b = -2*by - 1
	}
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

// nearest returns the index of the sample closest to p, expanding the
// bucket search ring by ring. A point in ring r is at least (r-1) buckets
// away, so the scan stops as soon as that lower bound exceeds the best
// distance found. Ties on distance resolve to the lowest sample index.
func (si *sampleIndex) nearest(p point) int {
	bx := int64(math.Floor(p.x / si.bucketSize))
	by := int64(math.Floor(p.y / si.bucketSize))

	best := -1
	bestD2 := math.MaxFloat64

	for r := int64(0); r <= si.maxRing; r++ {
		if best >= 0 {
			lower := float64(r-1) * si.bucketSize
			if lower > 0 && lower*lower > bestD2 {
				break
			}
		}
		si.scanRing(bx, by, r, p, &best, &bestD2)
	}
	return best
}

func (si *sampleIndex) scanRing(bx, by, r int64, p point, best *int, bestD2 *float64) {
	for dx := -r; dx <= r; dx++ {
		for dy := -r; dy <= r; dy++ {
			// Ring r holds only buckets at Chebyshev distance exactly r.
			if max64(abs64(dx), abs64(dy)) != r {
				continue
			}
			for _, idx := range si.buckets[si.bucketID(bx+dx, by+dy)] {
				cand := si.pts[idx]
				ddx := cand.x - p.x
				ddy := cand.y - p.y
				d2 := ddx*ddx + ddy*ddy
				if d2 < *bestD2 || (d2 == *bestD2 && idx < *best) {
					*best = idx
					*bestD2 = d2
				}
			}
		}
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
