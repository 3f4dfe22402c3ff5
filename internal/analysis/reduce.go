package analysis

import (
	"math"
	"math/rand"
)

// Point2D is a response's position on the 2D theme map.
type Point2D struct {
	X float64
	Y float64
}

// Reducer collapses high-dimensional embeddings to 2D coordinates for
// plotting. Implementations must return one point per input vector, preserve
// approximate neighborhood structure, and tolerate degenerate input
// (all-identical vectors collapse near a single point, never an error).
type Reducer interface {
	Reduce(vectors [][]float32) ([]Point2D, error)
}

// PCAReducer projects embeddings onto their top two principal components via
// power iteration with deflation. The iteration seed is fixed, so nearby runs
// on similar data produce visually stable maps.
type PCAReducer struct {
	iterations int
}

// NewPCAReducer creates a reducer with a sensible iteration budget.
func NewPCAReducer() *PCAReducer {
	return &PCAReducer{iterations: 60}
}

// Reduce implements Reducer.
func (r *PCAReducer) Reduce(vectors [][]float32) ([]Point2D, error) {
	points := make([]Point2D, len(vectors))
	if len(vectors) == 0 {
		return points, nil
	}

	dim := len(vectors[0])

	// Center the data.
	mean := make([]float64, dim)
	for _, vec := range vectors {
		for d, v := range vec {
			mean[d] += float64(v)
		}
	}
	for d := range mean {
		mean[d] /= float64(len(vectors))
	}

	centered := make([][]float64, len(vectors))
	for i, vec := range vectors {
		centered[i] = make([]float64, dim)
		for d, v := range vec {
			centered[i][d] = float64(v) - mean[d]
		}
	}

	first := r.principalComponent(centered, nil)
	second := r.principalComponent(centered, first)

	for i, row := range centered {
		points[i] = Point2D{
			X: dot(row, first),
			Y: dot(row, second),
		}
	}

	return points, nil
}

// principalComponent runs power iteration on the (implicit) covariance matrix,
// deflating against a previously found component when given. Returns a zero
// vector when the data has no variance in any remaining direction, which
// collapses all projections to the origin.
func (r *PCAReducer) principalComponent(centered [][]float64, deflate []float64) []float64 {
	dim := len(centered[0])

	// Fixed seed keeps the projection stable between runs on the same data.
	rng := rand.New(rand.NewSource(7))

	v := make([]float64, dim)
	for d := range v {
		v[d] = rng.NormFloat64()
	}
	if deflate != nil {
		orthogonalize(v, deflate)
	}
	if !normalizeInPlace(v) {
		return make([]float64, dim)
	}

	next := make([]float64, dim)

	for iter := 0; iter < r.iterations; iter++ {
		for d := range next {
			next[d] = 0
		}

		// Covariance-vector product computed as sum_i (x_i . v) x_i without
		// materializing the dim x dim matrix.
		for _, row := range centered {
			proj := dot(row, v)
			for d, x := range row {
				next[d] += proj * x
			}
		}

		if deflate != nil {
			orthogonalize(next, deflate)
		}

		if !normalizeInPlace(next) {
			return make([]float64, dim)
		}

		v, next = next, v
	}

	return v
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}

	return sum
}

// orthogonalize removes from v its projection onto the unit vector u.
func orthogonalize(v, u []float64) {
	proj := dot(v, u)
	for d := range v {
		v[d] -= proj * u[d]
	}
}

// normalizeInPlace scales v to unit length, reporting false when v is
// (numerically) zero.
func normalizeInPlace(v []float64) bool {
	var sum float64
	for _, x := range v {
		sum += x * x
	}

	norm := math.Sqrt(sum)
	if norm < 1e-12 {
		return false
	}

	for d := range v {
		v[d] /= norm
	}

	return true
}
