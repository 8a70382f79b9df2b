package forecast

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/andresuchdata/stockcast/internal/domain"
)

// DefaultFolds is the number of cross-validation folds used when none is set.
const DefaultFolds = 5

// CVResult holds per-fold R² scores and their summary.
type CVResult struct {
	Scores []float64
	Mean   float64
	Std    float64
}

// kFold splits n samples into k contiguous, unshuffled folds. The first
// n%k folds hold one extra sample.
func kFold(n, k int) [][2]int {
	folds := make([][2]int, 0, k)
	start := 0
	for i := 0; i < k; i++ {
		size := n / k
		if i < n%k {
			size++
		}
		folds = append(folds, [2]int{start, start + size})
		start += size
	}
	return folds
}

// CrossValidate fits reg on k-1 folds and scores R² on the held-out fold.
func CrossValidate(ctx context.Context, reg Regressor, x [][]float64, y []float64, k int) (*CVResult, error) {
	if k < 2 {
		k = DefaultFolds
	}
	if len(x) < k {
		return nil, domain.NewDataError("need at least %d samples for %d-fold validation, got %d", k, k, len(x))
	}

	result := &CVResult{Scores: make([]float64, 0, k)}
	for i, fold := range kFold(len(x), k) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		trainX := make([][]float64, 0, len(x)-(fold[1]-fold[0]))
		trainY := make([]float64, 0, cap(trainX))
		trainX = append(trainX, x[:fold[0]]...)
		trainX = append(trainX, x[fold[1]:]...)
		trainY = append(trainY, y[:fold[0]]...)
		trainY = append(trainY, y[fold[1]:]...)

		oracle, err := reg.Fit(ctx, trainX, trainY)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", i, err)
		}

		testY := y[fold[0]:fold[1]]
		predicted := make([]float64, len(testY))
		for j, row := range x[fold[0]:fold[1]] {
			predicted[j] = oracle.Predict(row)
		}
		result.Scores = append(result.Scores, r2Score(testY, predicted))
	}

	result.Mean, result.Std = stat.PopMeanStdDev(result.Scores, nil)
	return result, nil
}

// r2Score is the coefficient of determination. A constant target scores 1
// when predicted exactly and 0 otherwise.
func r2Score(actual, predicted []float64) float64 {
	mean := stat.Mean(actual, nil)
	var ssRes, ssTot float64
	for i, a := range actual {
		d := a - predicted[i]
		ssRes += d * d
		t := a - mean
		ssTot += t * t
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// round leaves NaN and Inf untouched; decimal cannot represent them.
func round(v float64, places int32) float64 {
	if !finite(v) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
