package earthwork

import "sort"

// point is a 2D site-plan coordinate in feet.
type point struct {
	x, y float64
}

// hullContainsEps pads the hull boundary so cell centers that land exactly
// on an edge (a common artifact of grid-aligned surveys) count as inside.
const hullContainsEps = 1e-9

// cross returns the z component of (b-a) × (c-a). Positive when c lies to
// the left of the directed line a→b.
func cross(a, b, c point) float64 {
	return (b.x-a.x)*(c.y-a.y) - (b.y-a.y)*(c.x-a.x)
}

// convexHull computes the convex hull of pts with Andrew's monotone chain,
// returned in counter-clockwise order without the repeated first point.
// Collinear input collapses to fewer than 3 hull vertices.
func convexHull(pts []point) []point {
	if len(pts) < 3 {
		return append([]point(nil), pts...)
	}

	sorted := append([]point(nil), pts...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].x != sorted[j].x {
			return sorted[i].x < sorted[j].x
		}
		return sorted[i].y < sorted[j].y
	})

	// Lower hull then upper hull; strictly positive cross keeps the hull
	// minimal (collinear boundary points are dropped).
	var lower []point
	for _, p := range sorted {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}

	var upper []point
	for i := len(sorted) - 1; i >= 0; i-- {
		p := sorted[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}

	// Each chain's last point is the other chain's first.
	hull := append(lower[:len(lower)-1], upper[:len(upper)-1]...)
	return hull
}

// hullContains reports whether p lies inside or on the boundary of a
// counter-clockwise convex hull.
func hullContains(hull []point, p point) bool {
	if len(hull) < 3 {
		return false
	}
	for i := range hull {
		a := hull[i]
		b := hull[(i+1)%len(hull)]
		if cross(a, b, p) < -hullContainsEps {
			return false
		}
	}
	return true
}

// collinear reports whether every point lies on one line (including the
// degenerate all-coincident case).
func collinear(pts []point) bool {
	if len(pts) < 3 {
		return true
	}
	a := pts[0]
	// Find a second distinct point to define the line.
	var b point
	found := false
	for _, p := range pts[1:] {
		if p != a {
			b = p
			found = true
			break
		}
	}
	if !found {
		return true
	}
	for _, p := range pts {
		if c := cross(a, b, p); c > hullContainsEps || c < -hullContainsEps {
			return false
		}
	}
	return true
}
