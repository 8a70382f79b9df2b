package forecast

import (
	"fmt"
	"sort"

	"github.com/andresuchdata/stockcast/internal/domain"
)

// AlertHorizonDays is the demand horizon stock is checked against.
const AlertHorizonDays = 14

const (
	highUrgencyRatio   = 0.3
	mediumUrgencyRatio = 0.6
)

// Forecaster is the read side of a trained demand model.
type Forecaster interface {
	Predict(productID, horizon int) (float64, error)
	CurrentStock(productID int) (float64, error)
	ProductIDs() []int
}

// Classify returns an alert when stock does not cover the predicted demand.
// Shortfalls that round to zero at two decimals are not reported.
func Classify(productID int, stock, predicted float64, horizon int) (domain.Alert, bool) {
	if stock >= predicted {
		return domain.Alert{}, false
	}
	deficit := round(predicted-stock, 2)
	if deficit <= 0 {
		return domain.Alert{}, false
	}

	ratio := 1.0
	if predicted > 0 {
		ratio = stock / predicted
	}

	urgency := domain.UrgencyLow
	switch {
	case ratio < highUrgencyRatio:
		urgency = domain.UrgencyHigh
	case ratio < mediumUrgencyRatio:
		urgency = domain.UrgencyMedium
	}

	return domain.Alert{
		ProductID:          productID,
		CurrentStock:       stock,
		Predicted14dDemand: predicted,
		Deficit:            deficit,
		Urgency:            urgency,
		DaysOfCover:        daysOfCover(stock, predicted, horizon),
	}, true
}

// daysOfCover is stock divided by average daily predicted demand.
func daysOfCover(stock, predicted float64, horizon int) float64 {
	if horizon < 1 || predicted <= 0 {
		return 0
	}
	return round(stock/(predicted/float64(horizon)), 2)
}

// SortAlerts orders alerts by urgency, then by deficit descending.
func SortAlerts(alerts []domain.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		ri, rj := alerts[i].Urgency.Rank(), alerts[j].Urgency.Rank()
		if ri != rj {
			return ri < rj
		}
		return alerts[i].Deficit > alerts[j].Deficit
	})
}

// BuildAlerts checks every known product and returns the ranked alerts.
func BuildAlerts(f Forecaster, horizon int) ([]domain.Alert, error) {
	if horizon < 1 {
		horizon = AlertHorizonDays
	}

	alerts := make([]domain.Alert, 0)
	for _, id := range f.ProductIDs() {
		predicted, err := f.Predict(id, horizon)
		if err != nil {
			return nil, fmt.Errorf("predict product %d: %w", id, err)
		}
		stock, err := f.CurrentStock(id)
		if err != nil {
			return nil, fmt.Errorf("stock of product %d: %w", id, err)
		}
		if alert, ok := Classify(id, stock, predicted, horizon); ok {
			alerts = append(alerts, alert)
		}
	}

	SortAlerts(alerts)
	return alerts, nil
}
