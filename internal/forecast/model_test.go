package forecast

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/stockcast/internal/domain"
)

func TestPredictBeforeTraining(t *testing.T) {
	model := NewDemandModel(meanRegressor{}, nil, 5)

	_, err := model.Predict(1, 7)
	assert.True(t, errors.Is(err, domain.ErrNotTrained))

	_, err = model.CurrentStock(1)
	assert.True(t, errors.Is(err, domain.ErrNotTrained))

	assert.False(t, model.IsTrained())
	assert.Empty(t, model.ProductIDs())
	assert.Equal(t, 0.0, model.ConfidenceScore())
	assert.Empty(t, model.Version())
}

func TestTrainConstantDemand(t *testing.T) {
	store := &memoryStore{}
	model := NewDemandModel(smallForest(), store, 5)

	report, err := model.Train(context.Background(), constantLedger(40, 10, 5, 1))
	require.NoError(t, err)

	assert.Equal(t, 40, report.Samples)
	assert.Equal(t, 5, report.Features)
	assert.Equal(t, 1.0, report.CVMean)
	assert.Equal(t, 0.0, report.CVStd)
	assert.Equal(t, 1.0, report.Confidence)
	assert.Equal(t, ForestRegressorName, report.Regressor)
	assert.Equal(t, model.Version(), report.Version)
	assert.Equal(t, 1, store.writes)

	total, err := model.Predict(1, 14)
	require.NoError(t, err)
	assert.Equal(t, 140.0, total)

	stock, err := model.CurrentStock(1)
	require.NoError(t, err)
	assert.Equal(t, 5.0, stock)

	alerts, err := BuildAlerts(model, AlertHorizonDays)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, 1, alerts[0].ProductID)
	assert.Equal(t, domain.UrgencyHigh, alerts[0].Urgency)
	assert.Equal(t, 135.0, alerts[0].Deficit)
	assert.Equal(t, 0.5, alerts[0].DaysOfCover)
}

func TestPredictIsMonotonicInHorizon(t *testing.T) {
	for _, reg := range []Regressor{smallForest(), NewRidgeRegressor(1)} {
		t.Run(reg.Name(), func(t *testing.T) {
			model := NewDemandModel(reg, nil, 5)
			_, err := model.Train(context.Background(), seasonalLedger(45, 1, 2, 3))
			require.NoError(t, err)

			for _, id := range model.ProductIDs() {
				prev := 0.0
				for _, horizon := range []int{1, 7, 14, 30} {
					total, err := model.Predict(id, horizon)
					require.NoError(t, err)
					assert.GreaterOrEqual(t, total, prev)
					prev = total
				}
			}
		})
	}
}

func TestPredictUnknownProduct(t *testing.T) {
	model := NewDemandModel(meanRegressor{}, nil, 5)
	_, err := model.Train(context.Background(), constantLedger(10, 3, 1, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, model.ProductIDs())

	_, err = model.Predict(99, 7)
	var unknown *domain.UnknownProductError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, 99, unknown.ProductID)
	assert.Len(t, unknown.ValidIDs, 10)
	assert.Contains(t, err.Error(), "99")

	_, err = model.CurrentStock(99)
	assert.True(t, errors.As(err, &unknown))

	_, err = model.Predict(1, 0)
	assert.True(t, errors.Is(err, ErrInvalidHorizon))
}

func TestPredictFeedsBackDecayedAverages(t *testing.T) {
	model := NewDemandModel(meanRegressor{}, nil, 2)
	model.state.Store(&trainedState{
		oracle:     rollingOracle{},
		regressor:  "rolling",
		productIDs: []int{1},
		seeds: map[int]productSeed{
			1: {LastDate: day0, RollingAvg7: 14, RollingAvg30: 30},
		},
	})

	// day 1: 14/2 + 30/10 = 10
	// day 2: r7 = 12 + 10/7, r30 = 29 + 1/3, so 9.6476
	// day 3: 9.3119
	total, err := model.Predict(1, 3)
	require.NoError(t, err)
	assert.Equal(t, 28.96, total)

	// without feedback every day would predict 10
	assert.NotEqual(t, 30.0, total)

	first, err := model.Predict(1, 1)
	require.NoError(t, err)
	assert.Equal(t, 10.0, first)
}

// rollingOracle reads both rolling averages so the rollout depends on how
// each is decayed.
type rollingOracle struct{}

func (rollingOracle) Predict(features []float64) float64 { return features[2]/2 + features[3]/10 }
func (rollingOracle) MarshalJSON() ([]byte, error)       { return []byte("null"), nil }

func TestSaveLoadRoundTrip(t *testing.T) {
	store := &memoryStore{}
	trained := NewDemandModel(smallForest(), store, 5)
	_, err := trained.Train(context.Background(), seasonalLedger(35, 3, 1, 2))
	require.NoError(t, err)
	require.NoError(t, trained.Save(context.Background()))

	fresh := NewDemandModel(smallForest(), store, 5)
	require.True(t, fresh.Load(context.Background()))

	assert.Equal(t, trained.ProductIDs(), fresh.ProductIDs())
	assert.Equal(t, trained.ConfidenceScore(), fresh.ConfidenceScore())
	assert.Equal(t, trained.Version(), fresh.Version())
	for _, id := range trained.ProductIDs() {
		for _, horizon := range []int{7, 14, 30} {
			want, err := trained.Predict(id, horizon)
			require.NoError(t, err)
			got, err := fresh.Predict(id, horizon)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	}
}

func TestLoadFailuresLeaveModelUntrained(t *testing.T) {
	assert.False(t, NewDemandModel(meanRegressor{}, nil, 5).Load(context.Background()))

	empty := NewDemandModel(meanRegressor{}, &memoryStore{}, 5)
	assert.False(t, empty.Load(context.Background()))
	assert.False(t, empty.IsTrained())

	corrupt := NewDemandModel(meanRegressor{}, &memoryStore{data: []byte(`{"format_version":1,"product_ids":[1]`)}, 5)
	assert.False(t, corrupt.Load(context.Background()))
	assert.False(t, corrupt.IsTrained())

	missingSeed := NewDemandModel(meanRegressor{}, &memoryStore{data: []byte(
		`{"format_version":1,"regressor":"mean","oracle":1,"product_ids":[1],"confidence_score":0.5,"seeds":{}}`,
	)}, 5)
	assert.False(t, missingSeed.Load(context.Background()))
	assert.False(t, missingSeed.IsTrained())
}

func TestFailedSaveKeepsPreviousState(t *testing.T) {
	store := &memoryStore{}
	model := NewDemandModel(meanRegressor{}, store, 5)
	_, err := model.Train(context.Background(), constantLedger(10, 2, 1, 1))
	require.NoError(t, err)
	version := model.Version()

	store.writeErr = errors.New("disk full")
	_, err = model.Train(context.Background(), constantLedger(10, 4, 1, 1, 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, version, model.Version())
	assert.Equal(t, []int{1}, model.ProductIDs())

	err = model.Save(context.Background())
	assert.Error(t, err)
}

func TestSaveWithoutStoreOrState(t *testing.T) {
	model := NewDemandModel(meanRegressor{}, nil, 5)
	assert.True(t, errors.Is(model.Save(context.Background()), domain.ErrNotTrained))

	_, err := model.Train(context.Background(), constantLedger(10, 2, 1, 1))
	require.NoError(t, err)
	assert.True(t, errors.Is(model.Save(context.Background()), ErrNoStore))
}

func TestConcurrentPredictDuringRetrain(t *testing.T) {
	model := NewDemandModel(meanRegressor{}, &memoryStore{}, 5)
	_, err := model.Train(context.Background(), constantLedger(10, 2, 1, 1))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				total, err := model.Predict(1, 7)
				if assert.NoError(t, err) {
					assert.Contains(t, []float64{14, 28}, total)
				}
			}
		}()
	}
	_, err = model.Train(context.Background(), constantLedger(10, 4, 1, 1))
	require.NoError(t, err)
	wg.Wait()
}

// retrainOnFirstPredict retrains the model to a single product as soon as
// the alert builder asks for its first prediction.
type retrainOnFirstPredict struct {
	Forecaster
	t     *testing.T
	model *DemandModel
	once  sync.Once
}

func (r *retrainOnFirstPredict) Predict(productID, horizon int) (float64, error) {
	r.once.Do(func() {
		_, err := r.model.Train(context.Background(), constantLedger(10, 1, 100, 1))
		require.NoError(r.t, err)
	})
	return r.Forecaster.Predict(productID, horizon)
}

func TestSnapshotIgnoresRetrain(t *testing.T) {
	model := NewDemandModel(meanRegressor{}, &memoryStore{}, 5)
	_, err := model.Train(context.Background(), constantLedger(10, 2, 1, 1, 2))
	require.NoError(t, err)

	view, err := model.Snapshot()
	require.NoError(t, err)
	version := view.Version()

	alerts, err := BuildAlerts(&retrainOnFirstPredict{Forecaster: view, t: t, model: model}, AlertHorizonDays)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	for _, a := range alerts {
		assert.Equal(t, 28.0, a.Predicted14dDemand)
		assert.Equal(t, 1.0, a.CurrentStock)
	}

	assert.Equal(t, version, view.Version())
	assert.Equal(t, []int{1, 2}, view.ProductIDs())
	assert.NotEqual(t, version, model.Version())
	assert.Equal(t, []int{1}, model.ProductIDs())

	_, err = model.Predict(2, 7)
	var unknown *domain.UnknownProductError
	assert.True(t, errors.As(err, &unknown))
}

func TestSnapshotRequiresTrainedModel(t *testing.T) {
	_, err := NewDemandModel(meanRegressor{}, nil, 5).Snapshot()
	assert.True(t, errors.Is(err, domain.ErrNotTrained))
}
