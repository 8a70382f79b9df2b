package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/stockcast/internal/domain"
	"github.com/andresuchdata/stockcast/internal/forecast"
	"github.com/andresuchdata/stockcast/internal/service"
	"github.com/andresuchdata/stockcast/internal/storage"
)

type fixedSource struct {
	ledger domain.Ledger
}

func (s fixedSource) Load(context.Context) (domain.Ledger, error) {
	if len(s.ledger) == 0 {
		return nil, domain.NewDataError("sales data not found")
	}
	return s.ledger, nil
}

func ledgerFor(days int, quantity, stock float64, id int) domain.Ledger {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ledger := make(domain.Ledger, 0, days)
	for d := 0; d < days; d++ {
		ledger = append(ledger, domain.SalesRecord{
			ProductID:    id,
			Date:         start.AddDate(0, 0, d),
			QuantitySold: quantity,
			StockLevel:   stock,
		})
	}
	return ledger
}

func newTestRouter(t *testing.T, ledger domain.Ledger) (*gin.Engine, *service.ForecastService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	files, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	model := forecast.NewDemandModel(forecast.NewRidgeRegressor(1), storage.NewSnapshotStore(files, "model.json"), 5)
	svc := service.NewForecastService(model, fixedSource{ledger: ledger}, nil, nil, 14)

	h := NewForecastHandler(svc)
	r := gin.New()
	r.GET("/health", h.Health)
	r.POST("/predict", h.Predict)
	r.GET("/alerts", h.Alerts)
	r.POST("/train", h.Train)
	r.GET("/training_runs", h.TrainingRuns)
	return r, svc
}

func perform(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthBeforeTraining(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := perform(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var health domain.HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.False(t, health.ModelTrained)
}

func TestPredictRequiresTrainedModel(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := perform(r, http.MethodPost, "/predict", `{"product_id": 1}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = perform(r, http.MethodGet, "/alerts", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPredictValidatesRequest(t *testing.T) {
	r, _ := newTestRouter(t, ledgerFor(40, 10, 5, 1))

	for _, body := range []string{`{}`, `{"product_id": 0}`, `{"product_id": "one"}`, `not json`} {
		w := perform(r, http.MethodPost, "/predict", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestTrainPredictAndAlerts(t *testing.T) {
	r, _ := newTestRouter(t, ledgerFor(40, 10, 5, 1))

	w := perform(r, http.MethodPost, "/train", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report domain.TrainingReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Products)

	w = perform(r, http.MethodPost, "/predict", `{"product_id": 1}`)
	require.Equal(t, http.StatusOK, w.Code)
	var prediction domain.DemandPrediction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &prediction))
	assert.Equal(t, 140.0, prediction.Prediction14d)
	assert.Equal(t, 5.0, prediction.CurrentStock)

	w = perform(r, http.MethodPost, "/predict", `{"product_id": 99}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown product_id 99")

	w = perform(r, http.MethodGet, "/alerts", "")
	require.Equal(t, http.StatusOK, w.Code)
	var alerts domain.AlertsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alerts))
	require.Equal(t, 1, alerts.TotalAlerts)
	assert.Equal(t, domain.UrgencyHigh, alerts.Alerts[0].Urgency)
}

func TestTrainWithoutDataIsBadRequest(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := perform(r, http.MethodPost, "/train", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "sales data not found")
}

func TestTrainingRunsWithoutRepository(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := perform(r, http.MethodGet, "/training_runs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(r, http.MethodGet, "/training_runs", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(forecast.ErrInvalidHorizon))
	assert.Equal(t, http.StatusBadRequest, statusFor(&domain.UnknownProductError{ProductID: 3}))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(domain.NotTrainedError{}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("disk full")))
}
