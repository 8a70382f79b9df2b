package forecast

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/stockcast/internal/domain"
)

// meanRegressor predicts the training mean for every input.
type meanRegressor struct{}

type constOracle float64

func (meanRegressor) Name() string { return "mean" }

func (meanRegressor) Fit(_ context.Context, x [][]float64, y []float64) (Oracle, error) {
	if err := validateTrainingSet(x, y); err != nil {
		return nil, err
	}
	var sum float64
	for _, v := range y {
		sum += v
	}
	return constOracle(sum / float64(len(y))), nil
}

func (meanRegressor) Decode(payload []byte) (Oracle, error) {
	var v float64
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return constOracle(v), nil
}

func (c constOracle) Predict([]float64) float64 { return float64(c) }

func (c constOracle) MarshalJSON() ([]byte, error) { return json.Marshal(float64(c)) }

type memoryStore struct {
	mu       sync.Mutex
	data     []byte
	writeErr error
	writes   int
}

func (s *memoryStore) Write(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.data = append([]byte(nil), payload...)
	s.writes++
	return nil
}

func (s *memoryStore) Read(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, ErrSnapshotNotFound
	}
	return append([]byte(nil), s.data...), nil
}

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// constantLedger has one record per day for each product.
func constantLedger(days int, quantity, stock float64, productIDs ...int) domain.Ledger {
	var ledger domain.Ledger
	for _, id := range productIDs {
		for d := 0; d < days; d++ {
			ledger = append(ledger, domain.SalesRecord{
				ProductID:    id,
				Date:         day0.AddDate(0, 0, d),
				QuantitySold: quantity,
				StockLevel:   stock,
			})
		}
	}
	return ledger
}

// seasonalLedger varies demand by weekday and product.
func seasonalLedger(days int, productIDs ...int) domain.Ledger {
	var ledger domain.Ledger
	for _, id := range productIDs {
		for d := 0; d < days; d++ {
			date := day0.AddDate(0, 0, d)
			ledger = append(ledger, domain.SalesRecord{
				ProductID:    id,
				Date:         date,
				QuantitySold: float64(id*3 + DayOfWeek(date)*2 + d%5),
				StockLevel:   float64(200 - d + id*10),
			})
		}
	}
	return ledger
}

func smallForest() *ForestRegressor {
	opts := DefaultRegressorOptions()
	opts.Trees = 8
	opts.MaxDepth = 6
	return NewForestRegressor(opts)
}

func mustFeatures(t *testing.T, ledger domain.Ledger) []FeatureRow {
	t.Helper()
	rows, err := BuildFeatures(ledger)
	require.NoError(t, err)
	return rows
}
