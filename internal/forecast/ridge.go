package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const RidgeRegressorName = "ridge"

// RidgeRegressor fits an L2-regularized linear model on standardized
// features. Constant columns get a zero coefficient.
type RidgeRegressor struct {
	lambda float64
}

func NewRidgeRegressor(lambda float64) *RidgeRegressor {
	if lambda <= 0 {
		lambda = DefaultRegressorOptions().RidgeLambda
	}
	return &RidgeRegressor{lambda: lambda}
}

func (r *RidgeRegressor) Name() string {
	return RidgeRegressorName
}

func (r *RidgeRegressor) Fit(ctx context.Context, x [][]float64, y []float64) (Oracle, error) {
	if err := validateTrainingSet(x, y); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n, p := len(x), len(x[0])
	model := &LinearModel{
		Means:  make([]float64, p),
		Scales: make([]float64, p),
		Coefs:  make([]float64, p),
	}

	column := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := range x {
			column[i] = x[i][j]
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		model.Means[j] = mean
		model.Scales[j] = std
	}

	yMean := stat.Mean(y, nil)
	model.Intercept = yMean

	design := mat.NewDense(n, p, nil)
	for i, row := range x {
		for j, v := range row {
			if model.Scales[j] > 0 {
				design.Set(i, j, (v-model.Means[j])/model.Scales[j])
			}
		}
	}
	target := mat.NewVecDense(n, nil)
	for i, v := range y {
		target.SetVec(i, v-yMean)
	}

	var gram mat.SymDense
	gram.SymOuterK(1, design.T())
	for j := 0; j < p; j++ {
		gram.SetSym(j, j, gram.At(j, j)+r.lambda)
	}

	var moment mat.VecDense
	moment.MulVec(design.T(), target)

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return nil, errors.New("fit ridge: normal equations are not positive definite")
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &moment); err != nil {
		return nil, fmt.Errorf("fit ridge: %w", err)
	}

	for j := 0; j < p; j++ {
		if model.Scales[j] > 0 {
			model.Coefs[j] = beta.AtVec(j)
		}
	}

	return model, nil
}

func (r *RidgeRegressor) Decode(payload []byte) (Oracle, error) {
	var doc linearJSON
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode ridge: %w", err)
	}
	if len(doc.Coefs) != len(doc.Means) || len(doc.Coefs) != len(doc.Scales) {
		return nil, errors.New("decode ridge: coefficient shapes differ")
	}
	if len(doc.Coefs) != len(FeatureNames) {
		return nil, fmt.Errorf("decode ridge: %d coefficients, expected %d", len(doc.Coefs), len(FeatureNames))
	}
	return &LinearModel{
		Intercept: doc.Intercept,
		Means:     doc.Means,
		Scales:    doc.Scales,
		Coefs:     doc.Coefs,
	}, nil
}

// LinearModel predicts intercept + sum(coef * standardized feature).
type LinearModel struct {
	Intercept float64
	Means     []float64
	Scales    []float64
	Coefs     []float64
}

type linearJSON struct {
	Intercept float64   `json:"intercept"`
	Means     []float64 `json:"means"`
	Scales    []float64 `json:"scales"`
	Coefs     []float64 `json:"coefs"`
}

func (m *LinearModel) Predict(features []float64) float64 {
	out := m.Intercept
	for j, c := range m.Coefs {
		if c == 0 || m.Scales[j] == 0 {
			continue
		}
		out += c * (features[j] - m.Means[j]) / m.Scales[j]
	}
	return out
}

func (m *LinearModel) MarshalJSON() ([]byte, error) {
	return json.Marshal(linearJSON{
		Intercept: m.Intercept,
		Means:     m.Means,
		Scales:    m.Scales,
		Coefs:     m.Coefs,
	})
}
