package kernel

// det computes the determinant of a square matrix via Gaussian elimination
// with partial pivoting. Matrices here are at most 5x5 (D=3 in-sphere
// test), so plain float64 elimination is adequate for a reference kernel.
func det(m [][]float64) float64 {
	n := len(m)
	a := make([][]float64, n)
	for i := range m {
		a[i] = append([]float64(nil), m[i]...)
	}

	result := 1.0
	for col := 0; col < n; col++ {
		pivot := col
		best := abs(a[col][col])
		for r := col + 1; r < n; r++ {
			if v := abs(a[r][col]); v > best {
				best = v
				pivot = r
			}
		}
		if best == 0 {
			return 0
		}
		if pivot != col {
			a[col], a[pivot] = a[pivot], a[col]
			result = -result
		}
		result *= a[col][col]
		for r := col + 1; r < n; r++ {
			factor := a[r][col] / a[col][col]
			if factor == 0 {
				continue
			}
			for c := col; c < n; c++ {
				a[r][c] -= factor * a[col][c]
			}
		}
	}
	return result
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// orientation returns the sign of the (D+1)x(D+1) determinant of rows
// [pts[i], 1], which is positive iff pts are in positive (counterclockwise
// in 2D / right-handed in 3D) orientation.
func orientation(pts [][]float64) float64 {
	d := len(pts) - 1
	m := make([][]float64, d+1)
	for i, p := range pts {
		row := make([]float64, d+1)
		copy(row, p)
		row[d] = 1
		m[i] = row
	}
	return det(m)
}

// inSphere reports whether q lies strictly inside the circumsphere of the
// D-simplex pts (len(pts) == D+1), using the lifted-paraboloid determinant
// normalised against the simplex's own orientation so the result does not
// depend on vertex order.
func inSphere(pts [][]float64, q []float64) bool {
	d := len(pts[0])
	orient := orientation(pts)
	if orient == 0 {
		// Degenerate (collinear/coplanar) simplex: treat as not containing
		// q to avoid spurious flips on symmetric configurations.
		return false
	}

	n := len(pts) + 1
	m := make([][]float64, n)
	rows := append(append([][]float64(nil), pts...), q)
	for i, p := range rows {
		row := make([]float64, d+2)
		copy(row, p)
		sq := 0.0
		for _, v := range p {
			sq += v * v
		}
		row[d] = sq
		row[d+1] = 1
		m[i] = row
	}
	lifted := det(m)

	if orient > 0 {
		return lifted > 0
	}
	return lifted < 0
}
