package kernel

import "math"

// solveLinear solves A x = b for a square system via Gaussian elimination
// with partial pivoting. Returns ok=false if A is singular.
func solveLinear(a [][]float64, b []float64) (x []float64, ok bool) {
	n := len(a)
	m := make([][]float64, n)
	for i := range a {
		row := make([]float64, n+1)
		copy(row, a[i])
		row[n] = b[i]
		m[i] = row
	}

	for col := 0; col < n; col++ {
		pivot := col
		best := abs(m[col][col])
		for r := col + 1; r < n; r++ {
			if v := abs(m[r][col]); v > best {
				best = v
				pivot = r
			}
		}
		if best < 1e-15 {
			return nil, false
		}
		m[col], m[pivot] = m[pivot], m[col]
		for r := col + 1; r < n; r++ {
			factor := m[r][col] / m[col][col]
			if factor == 0 {
				continue
			}
			for c := col; c <= n; c++ {
				m[r][c] -= factor * m[col][c]
			}
		}
	}

	x = make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := m[row][n]
		for c := row + 1; c < n; c++ {
			sum -= m[row][c] * x[c]
		}
		x[row] = sum / m[row][row]
	}
	return x, true
}

// circumcenter returns the circumcenter and radius of the simplex pts
// (len(pts) == D+1).
func circumcenter(pts [][]float64) (center []float64, radius float64, ok bool) {
	d := len(pts[0])
	a := make([][]float64, d)
	b := make([]float64, d)
	p0 := pts[0]
	sq0 := dot(p0, p0)
	for i := 1; i <= d; i++ {
		row := make([]float64, d)
		for k := 0; k < d; k++ {
			row[k] = 2 * (pts[i][k] - p0[k])
		}
		a[i-1] = row
		b[i-1] = dot(pts[i], pts[i]) - sq0
	}
	c, solved := solveLinear(a, b)
	if !solved {
		return nil, 0, false
	}
	r := 0.0
	for k := 0; k < d; k++ {
		diff := c[k] - p0[k]
		r += diff * diff
	}
	return c, math.Sqrt(r), true
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func distToBox(p []float64, le, re []float64) float64 {
	sq := 0.0
	for a := range p {
		if p[a] < le[a] {
			d := le[a] - p[a]
			sq += d * d
		} else if p[a] > re[a] {
			d := p[a] - re[a]
			sq += d * d
		}
	}
	return math.Sqrt(sq)
}

// OutgoingCandidates returns, for each given bounding box, the local vertex
// indices of real points whose incident (finite) cells have a circumradius
// reaching that box — the set of points whose local triangulation could
// still influence the neighbor's triangulation, per §6's
// outgoing_points(le[], re[]).
func (t *Triangulation) OutgoingCandidates(boxes [][2][]float64) [][]int {
	maxRadius := make([]float64, len(t.real))
	touched := make([]bool, len(t.real))
	for _, c := range t.cells {
		nsuper := 0
		for _, v := range c.verts {
			if isSuper(v) {
				nsuper++
			}
		}
		if nsuper > 0 {
			continue
		}
		pts := make([][]float64, len(c.verts))
		for i, v := range c.verts {
			pts[i] = t.coord(v)
		}
		_, radius, ok := circumcenter(pts)
		if !ok {
			continue
		}
		for _, v := range c.verts {
			touched[v] = true
			if radius > maxRadius[v] {
				maxRadius[v] = radius
			}
		}
	}

	result := make([][]int, len(boxes))
	for bi, box := range boxes {
		le, re := box[0], box[1]
		var out []int
		for v := 0; v < len(t.real); v++ {
			r := maxRadius[v]
			if !touched[v] {
				// No finite incident cell yet: this point's star is still
				// open, so it remains a candidate for every neighbor.
				out = append(out, v)
				continue
			}
			if distToBox(t.real[v], le, re) <= r {
				out = append(out, v)
			}
		}
		result[bi] = out
	}
	return result
}

// VoronoiVolumes returns, for local vertex indices [0, norig), the volume
// of the Voronoi cell dual to each owned point's Delaunay star. A volume of
// -1 marks a point whose star still touches the super-simplex (unbounded,
// i.e. not yet resolved by the exchange protocol).
func (t *Triangulation) VoronoiVolumes(norig int) []float64 {
	volumes := make([]float64, norig)
	for v := 0; v < norig; v++ {
		var centers [][]float64
		unbounded := false
		for _, c := range t.cells {
			has := false
			for _, vv := range c.verts {
				if vv == v {
					has = true
					break
				}
			}
			if !has {
				continue
			}
			nsuper := 0
			for _, vv := range c.verts {
				if isSuper(vv) {
					nsuper++
				}
			}
			if nsuper > 0 {
				unbounded = true
				break
			}
			pts := make([][]float64, len(c.verts))
			for i, vv := range c.verts {
				pts[i] = t.coord(vv)
			}
			center, _, ok := circumcenter(pts)
			if !ok {
				continue
			}
			centers = append(centers, center)
		}
		if unbounded || len(centers) == 0 {
			volumes[v] = -1
			continue
		}
		volumes[v] = convexHullVolume(t.dim, centers)
	}
	return volumes
}
