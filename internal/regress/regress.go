// Package regress provides the price regression estimator used by the
// prediction engine. The estimator is a replaceable strategy: anything
// satisfying Estimator can be injected at startup, and the default is an
// ordinary least-squares model fit once on held sample data.
package regress

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDimensionMismatch is returned when a feature vector does not
	// match the fitted model's width.
	ErrDimensionMismatch = errors.New("regress: feature vector length mismatch")

	// ErrDegenerateFit is returned when the training data cannot be
	// solved (rank deficient or empty).
	ErrDegenerateFit = errors.New("regress: degenerate training data")
)

// Estimator is the black-box regression contract: a feature vector in, a
// price estimate out. Implementations must be safe for concurrent calls
// after construction.
type Estimator interface {
	Predict(features []float64) (float64, error)
}

// LeastSquares is an ordinary least-squares linear model with intercept.
// Immutable after Fit; safe for concurrent reads.
type LeastSquares struct {
	coef []float64 // coef[0] is the intercept
}

// Fit solves min ‖Ax − y‖₂ over the samples via QR decomposition, where A
// is the design matrix with a leading intercept column.
func Fit(samples [][]float64, targets []float64) (*LeastSquares, error) {
	n := len(samples)
	if n == 0 || n != len(targets) {
		return nil, ErrDegenerateFit
	}
	width := len(samples[0])
	if width == 0 {
		return nil, ErrDegenerateFit
	}

	a := mat.NewDense(n, width+1, nil)
	for i, row := range samples {
		if len(row) != width {
			return nil, ErrDegenerateFit
		}
		a.Set(i, 0, 1)
		for j, v := range row {
			a.Set(i, j+1, v)
		}
	}
	b := mat.NewVecDense(n, targets)

	var qr mat.QR
	qr.Factorize(a)

	var solved mat.VecDense
	if err := qr.SolveVecTo(&solved, false, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateFit, err)
	}

	coef := make([]float64, width+1)
	for i := range coef {
		coef[i] = solved.AtVec(i)
		if math.IsNaN(coef[i]) || math.IsInf(coef[i], 0) {
			return nil, ErrDegenerateFit
		}
	}
	return &LeastSquares{coef: coef}, nil
}

// Predict returns the linear estimate for one feature vector.
func (m *LeastSquares) Predict(features []float64) (float64, error) {
	if len(features) != len(m.coef)-1 {
		return 0, ErrDimensionMismatch
	}
	out := m.coef[0]
	for i, f := range features {
		out += m.coef[i+1] * f
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, fmt.Errorf("regress: non-finite prediction")
	}
	return out, nil
}

// NumFeatures returns the feature vector width the model was fit on.
func (m *LeastSquares) NumFeatures() int {
	return len(m.coef) - 1
}
