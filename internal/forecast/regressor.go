package forecast

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupportedRegressor is returned for unknown regressor names.
var ErrUnsupportedRegressor = errors.New("unsupported regressor")

// Oracle is a fitted regression model. Implementations are immutable once
// fitted and safe for concurrent Predict calls.
type Oracle interface {
	// Predict returns the point estimate for one feature vector.
	Predict(features []float64) float64

	// MarshalJSON encodes the fitted state for snapshots.
	MarshalJSON() ([]byte, error)
}

// Regressor fits oracles. It is the injectable regression capability of the
// demand model.
type Regressor interface {
	// Name identifies the regressor in snapshots.
	Name() string

	// Fit trains a new oracle on the feature matrix x and target y.
	Fit(ctx context.Context, x [][]float64, y []float64) (Oracle, error)

	// Decode restores an oracle previously encoded with MarshalJSON.
	Decode(payload []byte) (Oracle, error)
}

// RegressorOptions carries the tuning knobs shared by the built-in regressors.
type RegressorOptions struct {
	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Seed            int64
	RidgeLambda     float64
}

// DefaultRegressorOptions mirrors the forest settings the service has always trained with.
func DefaultRegressorOptions() RegressorOptions {
	return RegressorOptions{
		Trees:           100,
		MaxDepth:        12,
		MinSamplesSplit: 5,
		MinSamplesLeaf:  2,
		Seed:            42,
		RidgeLambda:     1.0,
	}
}

// NewRegressor builds a built-in regressor by name.
func NewRegressor(name string, opts RegressorOptions) (Regressor, error) {
	switch name {
	case ForestRegressorName, "forest", "":
		return NewForestRegressor(opts), nil
	case RidgeRegressorName:
		return NewRidgeRegressor(opts.RidgeLambda), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRegressor, name)
	}
}

func validateTrainingSet(x [][]float64, y []float64) error {
	if len(x) == 0 {
		return errors.New("empty training set")
	}
	if len(x) != len(y) {
		return fmt.Errorf("feature rows (%d) and targets (%d) differ", len(x), len(y))
	}
	width := len(x[0])
	for i, row := range x {
		if len(row) != width {
			return fmt.Errorf("row %d has %d features, expected %d", i, len(row), width)
		}
	}
	return nil
}
