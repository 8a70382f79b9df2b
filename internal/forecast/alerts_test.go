package forecast

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/stockcast/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		stock     float64
		predicted float64
		alert     bool
		urgency   domain.Urgency
	}{
		{name: "covered", stock: 100, predicted: 50, alert: false},
		{name: "exactly covered", stock: 50, predicted: 50, alert: false},
		{name: "high", stock: 5, predicted: 140, alert: true, urgency: domain.UrgencyHigh},
		{name: "medium lower bound", stock: 30, predicted: 100, alert: true, urgency: domain.UrgencyMedium},
		{name: "low lower bound", stock: 60, predicted: 100, alert: true, urgency: domain.UrgencyLow},
		{name: "low", stock: 90, predicted: 100, alert: true, urgency: domain.UrgencyLow},
		{name: "shortfall below a cent", stock: 4.999, predicted: 5, alert: false},
		{name: "shortfall of a cent", stock: 4.99, predicted: 5, alert: true, urgency: domain.UrgencyLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert, ok := Classify(1, tt.stock, tt.predicted, AlertHorizonDays)
			require.Equal(t, tt.alert, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.urgency, alert.Urgency)
			assert.Greater(t, alert.Deficit, 0.0)
			assert.Equal(t, tt.predicted, alert.Predicted14dDemand)
		})
	}
}

func TestClassifyRoundsDeficit(t *testing.T) {
	alert, ok := Classify(3, 1.111, 2.5, AlertHorizonDays)
	require.True(t, ok)
	assert.Equal(t, 1.39, alert.Deficit)
	assert.Equal(t, 6.22, alert.DaysOfCover)
}

func TestSortAlerts(t *testing.T) {
	alerts := []domain.Alert{
		{ProductID: 1, Urgency: domain.UrgencyLow, Deficit: 50},
		{ProductID: 2, Urgency: domain.UrgencyHigh, Deficit: 10},
		{ProductID: 3, Urgency: domain.UrgencyMedium, Deficit: 5},
		{ProductID: 4, Urgency: domain.UrgencyHigh, Deficit: 30},
		{ProductID: 5, Urgency: domain.UrgencyHigh, Deficit: 10},
	}

	SortAlerts(alerts)

	ids := make([]int, len(alerts))
	for i, a := range alerts {
		ids[i] = a.ProductID
	}
	assert.Equal(t, []int{4, 2, 5, 3, 1}, ids)

	for i := 1; i < len(alerts); i++ {
		prev, cur := alerts[i-1], alerts[i]
		assert.LessOrEqual(t, prev.Urgency.Rank(), cur.Urgency.Rank())
		if prev.Urgency == cur.Urgency {
			assert.GreaterOrEqual(t, prev.Deficit, cur.Deficit)
		}
	}
}

type fakeForecaster struct {
	stock  map[int]float64
	demand map[int]float64
	err    error
}

func (f fakeForecaster) Predict(id, _ int) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.demand[id], nil
}

func (f fakeForecaster) CurrentStock(id int) (float64, error) { return f.stock[id], nil }

func (f fakeForecaster) ProductIDs() []int { return []int{1, 2, 3, 4} }

func TestBuildAlerts(t *testing.T) {
	f := fakeForecaster{
		stock:  map[int]float64{1: 100, 2: 10, 3: 50, 4: 0},
		demand: map[int]float64{1: 20, 2: 100, 3: 80, 4: 0},
	}

	alerts, err := BuildAlerts(f, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, 2, alerts[0].ProductID)
	assert.Equal(t, domain.UrgencyHigh, alerts[0].Urgency)
	assert.Equal(t, 3, alerts[1].ProductID)
	assert.Equal(t, domain.UrgencyLow, alerts[1].Urgency)

	f.err = errors.New("boom")
	_, err = BuildAlerts(f, AlertHorizonDays)
	assert.Error(t, err)
}
