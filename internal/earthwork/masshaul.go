package earthwork

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// haulNode is one cut or fill cell with its undispatched volume.
type haulNode struct {
	ref         CellRef
	centerXFt   float64
	centerYFt   float64
	remainingCy float64
}

// haulPair is a candidate source→sink movement. Distances never change
// during matching, so every pair can be costed up front.
type haulPair struct {
	src, dst   int
	distanceFt float64
}

// OptimizeHaul matches cut cells to fill cells greedily by haul distance:
// the shortest remaining pair is dispatched first, moving as much volume as
// both ends allow, until one side is exhausted. Leftover cut volume becomes
// export and leftover fill volume becomes import; nothing is dropped.
//
// Pair distances are static, so instead of rescanning all live pairs per
// assignment the optimizer sorts the pair list once and walks it. Ties on
// distance break by source row, source col, sink row, sink col, which keeps
// the plan deterministic and identical to the rescanning form.
func OptimizeHaul(cells []EarthworkCell, cfg *Config) (*HaulPlan, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cuts, fills, err := haulNodes(cells)
	if err != nil {
		return nil, err
	}

	plan := &HaulPlan{}
	pairs := haulPairs(cuts, fills)
	sort.Slice(pairs, func(i, j int) bool {
		return lessHaulPair(pairs[i], pairs[j], cuts, fills)
	})

	liveCuts, liveFills := len(cuts), len(fills)
	for _, p := range pairs {
		if liveCuts == 0 || liveFills == 0 {
			break
		}
		src, dst := &cuts[p.src], &fills[p.dst]
		if src.remainingCy <= 0 || dst.remainingCy <= 0 {
			continue
		}

		vol := math.Min(src.remainingCy, dst.remainingCy)
		plan.Assignments = append(plan.Assignments, HaulAssignment{
			Source:     src.ref,
			Sink:       dst.ref,
			VolumeCy:   vol,
			DistanceFt: p.distanceFt,
			HaulCost:   vol * p.distanceFt * cfg.HaulCostPerCyFt,
		})
		tracef("haul %.2f cy (%d,%d)->(%d,%d) over %.1f ft",
			vol, src.ref.Row, src.ref.Col, dst.ref.Row, dst.ref.Col, p.distanceFt)

		src.remainingCy -= vol
		dst.remainingCy -= vol
		if src.remainingCy <= 0 {
			liveCuts--
		}
		if dst.remainingCy <= 0 {
			liveFills--
		}
	}

	plan.ExportVolumeCy = residualVolume(cuts)
	plan.ImportVolumeCy = residualVolume(fills)
	plan.MassHaulDistanceFt = weightedHaulDistance(plan.Assignments)
	return plan, nil
}

// haulNodes splits earthwork cells into cut sources and fill sinks,
// preserving row-major order. Balanced cells move no material and are
// skipped entirely.
func haulNodes(cells []EarthworkCell) (cuts, fills []haulNode, err error) {
	for _, c := range cells {
		if c.VolumeCy < 0 || math.IsNaN(c.VolumeCy) || math.IsInf(c.VolumeCy, 0) {
			return nil, nil, fmt.Errorf("%w: cell (%d,%d) has invalid volume %v",
				ErrInternalConsistency, c.Row, c.Col, c.VolumeCy)
		}
		if c.VolumeCy == 0 {
			continue
		}
		node := haulNode{
			ref:         CellRef{Row: c.Row, Col: c.Col},
			centerXFt:   c.CenterXFt,
			centerYFt:   c.CenterYFt,
			remainingCy: c.VolumeCy,
		}
		switch c.Direction {
		case DirectionCut:
			cuts = append(cuts, node)
		case DirectionFill:
			fills = append(fills, node)
		case DirectionBalanced:
			// within tolerance, nothing to move
		default:
			return nil, nil, fmt.Errorf("%w: cell (%d,%d) has unknown direction %q",
				ErrInternalConsistency, c.Row, c.Col, c.Direction)
		}
	}
	return cuts, fills, nil
}

func haulPairs(cuts, fills []haulNode) []haulPair {
	if len(cuts) == 0 || len(fills) == 0 {
		return nil
	}
	pairs := make([]haulPair, 0, len(cuts)*len(fills))
	for i, s := range cuts {
		for j, d := range fills {
			pairs = append(pairs, haulPair{
				src:        i,
				dst:        j,
				distanceFt: math.Hypot(s.centerXFt-d.centerXFt, s.centerYFt-d.centerYFt),
			})
		}
	}
	return pairs
}

func lessHaulPair(a, b haulPair, cuts, fills []haulNode) bool {
	if a.distanceFt != b.distanceFt {
		return a.distanceFt < b.distanceFt
	}
	ar, br := cuts[a.src].ref, cuts[b.src].ref
	if ar.Row != br.Row {
		return ar.Row < br.Row
	}
	if ar.Col != br.Col {
		return ar.Col < br.Col
	}
	as, bs := fills[a.dst].ref, fills[b.dst].ref
	if as.Row != bs.Row {
		return as.Row < bs.Row
	}
	return as.Col < bs.Col
}

func residualVolume(nodes []haulNode) float64 {
	if len(nodes) == 0 {
		return 0
	}
	rem := make([]float64, 0, len(nodes))
	for _, n := range nodes {
		if n.remainingCy > 0 {
			rem = append(rem, n.remainingCy)
		}
	}
	return floats.Sum(rem)
}

// weightedHaulDistance is the volume-weighted mean distance across the
// plan, the single summary number a hauling contractor prices from.
func weightedHaulDistance(assignments []HaulAssignment) float64 {
	var volDist, vol float64
	for _, a := range assignments {
		volDist += a.VolumeCy * a.DistanceFt
		vol += a.VolumeCy
	}
	if vol == 0 {
		return 0
	}
	return volDist / vol
}

// optimizeHaulNaive is the textbook form of the matcher: rescan every live
// pair for the global minimum, dispatch, repeat. It exists as the reference
// the sorted walk is checked against.
func optimizeHaulNaive(cells []EarthworkCell, cfg *Config) (*HaulPlan, error) {
	cuts, fills, err := haulNodes(cells)
	if err != nil {
		return nil, err
	}

	plan := &HaulPlan{}
	for {
		best := haulPair{src: -1, dst: -1}
		found := false
		for i, s := range cuts {
			if s.remainingCy <= 0 {
				continue
			}
			for j, d := range fills {
				if d.remainingCy <= 0 {
					continue
				}
				cand := haulPair{
					src:        i,
					dst:        j,
					distanceFt: math.Hypot(s.centerXFt-d.centerXFt, s.centerYFt-d.centerYFt),
				}
				if !found || lessHaulPair(cand, best, cuts, fills) {
					best = cand
					found = true
				}
			}
		}
		if !found {
			break
		}

		src, dst := &cuts[best.src], &fills[best.dst]
		vol := math.Min(src.remainingCy, dst.remainingCy)
		plan.Assignments = append(plan.Assignments, HaulAssignment{
			Source:     src.ref,
			Sink:       dst.ref,
			VolumeCy:   vol,
			DistanceFt: best.distanceFt,
			HaulCost:   vol * best.distanceFt * cfg.HaulCostPerCyFt,
		})
		src.remainingCy -= vol
		dst.remainingCy -= vol
	}

	plan.ExportVolumeCy = residualVolume(cuts)
	plan.ImportVolumeCy = residualVolume(fills)
	plan.MassHaulDistanceFt = weightedHaulDistance(plan.Assignments)
	return plan, nil
}
