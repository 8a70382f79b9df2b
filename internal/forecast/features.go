package forecast

import (
	"math"
	"sort"
	"time"

	"github.com/andresuchdata/stockcast/internal/domain"
)

// Feature column order used for every matrix row and oracle query.
var FeatureNames = []string{
	"day_of_week",
	"month",
	"rolling_avg_7d",
	"rolling_avg_30d",
	"stock_level",
}

const (
	shortWindow = 7
	longWindow  = 30
)

// FeatureRow is the derived feature vector of one sales record.
type FeatureRow struct {
	ProductID    int
	Date         time.Time
	DayOfWeek    int // Monday=0 .. Sunday=6
	Month        int
	RollingAvg7  float64
	RollingAvg30 float64
	StockLevel   float64
	QuantitySold float64
}

// Vector returns the row's features in FeatureNames order.
func (r FeatureRow) Vector() []float64 {
	return []float64{
		float64(r.DayOfWeek),
		float64(r.Month),
		r.RollingAvg7,
		r.RollingAvg30,
		r.StockLevel,
	}
}

// DayOfWeek maps a date to Monday=0 .. Sunday=6.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// BuildFeatures turns a ledger into one feature row per record, sorted by
// product and date. Rolling averages only look at the same product's
// trailing observed records.
func BuildFeatures(ledger domain.Ledger) ([]FeatureRow, error) {
	if len(ledger) == 0 {
		return nil, domain.NewDataError("ledger is empty")
	}

	for i, r := range ledger {
		switch {
		case r.ProductID < 1:
			return nil, domain.NewDataError("record %d: product_id must be >= 1, got %d", i, r.ProductID)
		case r.Date.IsZero():
			return nil, domain.NewDataError("record %d: missing date", i)
		case !finite(r.QuantitySold):
			return nil, domain.NewDataError("record %d: non-finite quantity_sold %v", i, r.QuantitySold)
		case !finite(r.StockLevel):
			return nil, domain.NewDataError("record %d: non-finite stock_level %v", i, r.StockLevel)
		case r.QuantitySold < 0:
			return nil, domain.NewDataError("record %d: negative quantity_sold %v", i, r.QuantitySold)
		case r.StockLevel < 0:
			return nil, domain.NewDataError("record %d: negative stock_level %v", i, r.StockLevel)
		}
	}

	sorted := make(domain.Ledger, len(ledger))
	copy(sorted, ledger)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ProductID != sorted[j].ProductID {
			return sorted[i].ProductID < sorted[j].ProductID
		}
		return sorted[i].Date.Before(sorted[j].Date)
	})

	rows := make([]FeatureRow, len(sorted))
	start := 0
	for i := range sorted {
		if i > 0 && sorted[i].ProductID != sorted[i-1].ProductID {
			start = i
		}
		rec := sorted[i]
		date := domain.CivilDate(rec.Date)
		rows[i] = FeatureRow{
			ProductID:    rec.ProductID,
			Date:         date,
			DayOfWeek:    DayOfWeek(date),
			Month:        int(date.Month()),
			RollingAvg7:  trailingMean(sorted[start:i+1], shortWindow),
			RollingAvg30: trailingMean(sorted[start:i+1], longWindow),
			StockLevel:   rec.StockLevel,
			QuantitySold: rec.QuantitySold,
		}
	}

	return rows, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// trailingMean averages quantity over the last window records of series.
func trailingMean(series domain.Ledger, window int) float64 {
	from := len(series) - window
	if from < 0 {
		from = 0
	}
	var sum float64
	for _, r := range series[from:] {
		sum += r.QuantitySold
	}
	return sum / float64(len(series)-from)
}

// Matrix splits feature rows into the design matrix and target vector.
func Matrix(rows []FeatureRow) ([][]float64, []float64) {
	x := make([][]float64, len(rows))
	y := make([]float64, len(rows))
	for i, r := range rows {
		x[i] = r.Vector()
		y[i] = r.QuantitySold
	}
	return x, y
}

// latestRows returns the last feature row of every product.
func latestRows(rows []FeatureRow) map[int]FeatureRow {
	latest := make(map[int]FeatureRow)
	for _, r := range rows {
		latest[r.ProductID] = r
	}
	return latest
}
