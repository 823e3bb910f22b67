package mesh

import "gonum.org/v1/gonum/floats"

func sub3(a, b []float64) (d [3]float64) {
	for i := range a {
		d[i] = a[i] - b[i]
	}
	return
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func dot3(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

// normalizeInPlace scales v to unit length. A zero vector is left untouched
// so that elements without any contributing face keep a zero normal instead
// of turning into NaNs.
func normalizeInPlace(v []float64) {
	if n := floats.Norm(v, 2); n > 0 {
		floats.Scale(1/n, v)
	}
}
