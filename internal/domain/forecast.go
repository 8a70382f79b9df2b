package domain

import "time"

// Urgency is the coarse severity bucket of a stock shortage.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// Rank orders urgencies for sorting, most urgent first.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyHigh:
		return 0
	case UrgencyMedium:
		return 1
	default:
		return 2
	}
}

// Prediction is the cumulative demand forecast for one product over a horizon.
type Prediction struct {
	ProductID   int     `json:"product_id"`
	HorizonDays int     `json:"horizon_days"`
	TotalDemand float64 `json:"total_demand"`
}

// DemandPrediction bundles the standard 7/14/30 day horizons for a product.
type DemandPrediction struct {
	ProductID     int     `json:"product_id"`
	Prediction7d  float64 `json:"prediction_7d"`
	Prediction14d float64 `json:"prediction_14d"`
	Prediction30d float64 `json:"prediction_30d"`
	CurrentStock  float64 `json:"current_stock"`
	Confidence    float64 `json:"confidence"`
}

// Alert flags a product whose stock will not cover the predicted demand.
type Alert struct {
	ProductID          int     `json:"product_id"`
	CurrentStock       float64 `json:"current_stock"`
	Predicted14dDemand float64 `json:"predicted_14d_demand"`
	Deficit            float64 `json:"deficit"`
	Urgency            Urgency `json:"urgency"`
	DaysOfCover        float64 `json:"days_of_cover"`
}

// AlertsResponse is the ranked alert list returned to clients.
type AlertsResponse struct {
	Alerts      []Alert `json:"alerts"`
	TotalAlerts int     `json:"total_alerts"`
}

// TrainingReport summarizes a training run.
type TrainingReport struct {
	Samples    int     `json:"samples"`
	Features   int     `json:"features"`
	CVMean     float64 `json:"cv_r2_mean"`
	CVStd      float64 `json:"cv_r2_std"`
	Confidence float64 `json:"confidence"`
	Regressor  string  `json:"regressor"`
	Version    string  `json:"version"`
	Products   int     `json:"products"`
}

// TrainingRun is a persisted record of a completed training.
type TrainingRun struct {
	ID          string    `json:"id" db:"id"`
	Version     string    `json:"version" db:"model_version"`
	Regressor   string    `json:"regressor" db:"regressor"`
	Samples     int       `json:"samples" db:"samples"`
	Products    int       `json:"products" db:"products"`
	CVMean      float64   `json:"cv_r2_mean" db:"cv_mean"`
	CVStd       float64   `json:"cv_r2_std" db:"cv_std"`
	Confidence  float64   `json:"confidence" db:"confidence"`
	CompletedAt time.Time `json:"completed_at" db:"completed_at"`
}

// HealthStatus reports whether the service can answer forecasts.
type HealthStatus struct {
	Status         string `json:"status"`
	ModelTrained   bool   `json:"model_trained"`
	ProductsLoaded int    `json:"products_loaded"`
	ModelVersion   string `json:"model_version,omitempty"`
}
