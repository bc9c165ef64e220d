package kernel

import (
	"math"
	"sort"

	"github.com/jqwang/partri/pkg/model"
)

// convexHullVolume computes the volume (area in 2D) of the convex hull of
// pts, which the caller guarantees are the vertices of a star-shaped
// (hence convex, for a Voronoi cell) polygon/polyhedron.
func convexHullVolume(dim model.Dimension, pts [][]float64) float64 {
	if dim == model.Dim2 {
		return polygonArea(pts)
	}
	return polyhedronVolume(pts)
}

// polygonArea orders pts by angle around their centroid, then applies the
// shoelace formula. Valid because a Voronoi cell is convex, so angular
// order around an interior point matches hull order.
func polygonArea(pts [][]float64) float64 {
	if len(pts) < 3 {
		return 0
	}
	cx, cy := 0.0, 0.0
	for _, p := range pts {
		cx += p[0]
		cy += p[1]
	}
	cx /= float64(len(pts))
	cy /= float64(len(pts))

	ordered := append([][]float64(nil), pts...)
	sort.Slice(ordered, func(i, j int) bool {
		return math.Atan2(ordered[i][1]-cy, ordered[i][0]-cx) < math.Atan2(ordered[j][1]-cy, ordered[j][0]-cx)
	})

	area := 0.0
	n := len(ordered)
	for i := 0; i < n; i++ {
		a := ordered[i]
		b := ordered[(i+1)%n]
		area += a[0]*b[1] - b[0]*a[1]
	}
	return math.Abs(area) / 2
}

// polyhedronVolume finds the convex hull faces of pts by brute-force plane
// enumeration (every candidate triangle that has all other points on one
// side), then sums signed tetrahedra from the centroid to each hull face.
// Acceptable for the modest per-vertex incident-cell counts this kernel
// produces; not intended for large point clouds.
func polyhedronVolume(pts [][]float64) float64 {
	n := len(pts)
	if n < 4 {
		return 0
	}
	cx, cy, cz := 0.0, 0.0, 0.0
	for _, p := range pts {
		cx += p[0]
		cy += p[1]
		cz += p[2]
	}
	centroid := []float64{cx / float64(n), cy / float64(n), cz / float64(n)}

	volume := 0.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				a, b, c := pts[i], pts[j], pts[k]
				normal := cross(sub(b, a), sub(c, a))
				d := dot(normal, a)

				positive, negative := false, false
				for l := 0; l < n; l++ {
					if l == i || l == j || l == k {
						continue
					}
					side := dot(normal, pts[l]) - d
					if side > 1e-9 {
						positive = true
					} else if side < -1e-9 {
						negative = true
					}
				}
				if positive && negative {
					continue // not a hull face: points on both sides
				}

				volume += math.Abs(tetraVolume(centroid, a, b, c))
			}
		}
	}
	return volume
}

func sub(a, b []float64) []float64 {
	return []float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func cross(a, b []float64) []float64 {
	return []float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func tetraVolume(a, b, c, d []float64) float64 {
	return dot(sub(b, a), cross(sub(c, a), sub(d, a))) / 6
}
