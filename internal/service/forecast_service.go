package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/andresuchdata/stockcast/internal/cache"
	"github.com/andresuchdata/stockcast/internal/domain"
	"github.com/andresuchdata/stockcast/internal/forecast"
	"github.com/andresuchdata/stockcast/internal/repository"
)

// ErrRunsUnavailable is returned when no training-run repository is configured.
var ErrRunsUnavailable = errors.New("training run history is not configured")

// LedgerSource supplies the sales history the model is trained on.
type LedgerSource interface {
	Load(ctx context.Context) (domain.Ledger, error)
}

type ForecastService struct {
	model        *forecast.DemandModel
	source       LedgerSource
	cache        cache.ForecastCache
	runs         repository.TrainingRunRepository
	alertHorizon int
	training     singleflight.Group
}

// NewForecastService wires the model to its ledger source. cacheImpl and runs
// may be nil.
func NewForecastService(
	model *forecast.DemandModel,
	source LedgerSource,
	cacheImpl cache.ForecastCache,
	runs repository.TrainingRunRepository,
	alertHorizon int,
) *ForecastService {
	if cacheImpl == nil {
		cacheImpl = cache.NewNoopForecastCache()
	}
	if alertHorizon < 1 {
		alertHorizon = forecast.AlertHorizonDays
	}
	return &ForecastService{
		model:        model,
		source:       source,
		cache:        cacheImpl,
		runs:         runs,
		alertHorizon: alertHorizon,
	}
}

// Bootstrap loads the stored snapshot and trains from the ledger source when
// none can be read.
func (s *ForecastService) Bootstrap(ctx context.Context) error {
	if s.model.Load(ctx) {
		return nil
	}

	log.Info().Msg("no usable model snapshot, training from scratch")
	report, err := s.Train(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap training: %w", err)
	}
	log.Info().Interface("report", report).Msg("bootstrap training complete")
	return nil
}

// Train retrains the model on a fresh ledger. Concurrent calls share one run.
func (s *ForecastService) Train(ctx context.Context) (*domain.TrainingReport, error) {
	v, err, shared := s.training.Do("train", func() (interface{}, error) {
		return s.train(ctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug().Msg("joined in-flight training run")
	}
	return v.(*domain.TrainingReport), nil
}

func (s *ForecastService) train(ctx context.Context) (*domain.TrainingReport, error) {
	ledger, err := s.source.Load(ctx)
	if err != nil {
		return nil, err
	}

	report, err := s.model.Train(ctx, ledger)
	if err != nil {
		return nil, err
	}

	if err := s.cache.InvalidateAll(ctx); err != nil {
		log.Warn().Err(err).Msg("forecast: cache invalidate failed")
	}

	if s.runs != nil {
		run := &domain.TrainingRun{
			Version:     report.Version,
			Regressor:   report.Regressor,
			Samples:     report.Samples,
			Products:    report.Products,
			CVMean:      report.CVMean,
			CVStd:       report.CVStd,
			Confidence:  report.Confidence,
			CompletedAt: time.Now().UTC(),
		}
		if err := s.runs.Record(ctx, run); err != nil {
			log.Warn().Err(err).Str("version", report.Version).Msg("forecast: failed to record training run")
		}
	}

	return report, nil
}

// Predict returns the 7/14/30 day demand forecast of a product.
func (s *ForecastService) Predict(ctx context.Context, productID int) (*domain.DemandPrediction, error) {
	view, err := s.model.Snapshot()
	if err != nil {
		return nil, err
	}
	version := view.Version()

	if cached, ok, err := s.cache.GetPrediction(ctx, version, productID); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Warn().Err(err).Int("product_id", productID).Msg("forecast: cache get prediction failed")
	}

	prediction := &domain.DemandPrediction{ProductID: productID}
	horizons := []struct {
		days int
		dest *float64
	}{
		{7, &prediction.Prediction7d},
		{14, &prediction.Prediction14d},
		{30, &prediction.Prediction30d},
	}
	for _, h := range horizons {
		total, err := view.Predict(productID, h.days)
		if err != nil {
			return nil, err
		}
		*h.dest = total
	}

	stock, err := view.CurrentStock(productID)
	if err != nil {
		return nil, err
	}
	prediction.CurrentStock = stock
	prediction.Confidence = view.ConfidenceScore()

	if err := s.cache.SetPrediction(ctx, version, prediction); err != nil {
		log.Warn().Err(err).Int("product_id", productID).Msg("forecast: cache set prediction failed")
	}
	return prediction, nil
}

// PredictHorizon returns the cumulative demand of one product over an
// arbitrary horizon. It is not cached.
func (s *ForecastService) PredictHorizon(productID, horizon int) (*domain.Prediction, error) {
	view, err := s.model.Snapshot()
	if err != nil {
		return nil, err
	}
	total, err := view.Predict(productID, horizon)
	if err != nil {
		return nil, err
	}
	return &domain.Prediction{ProductID: productID, HorizonDays: horizon, TotalDemand: total}, nil
}

// Alerts returns the ranked stockout alerts across all trained products.
func (s *ForecastService) Alerts(ctx context.Context) (*domain.AlertsResponse, error) {
	view, err := s.model.Snapshot()
	if err != nil {
		return nil, err
	}
	version := view.Version()

	if cached, ok, err := s.cache.GetAlerts(ctx, version, s.alertHorizon); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("forecast: cache get alerts failed")
	}

	alerts, err := forecast.BuildAlerts(view, s.alertHorizon)
	if err != nil {
		return nil, fmt.Errorf("alert generation: %w", err)
	}
	resp := &domain.AlertsResponse{Alerts: alerts, TotalAlerts: len(alerts)}

	if err := s.cache.SetAlerts(ctx, version, s.alertHorizon, resp); err != nil {
		log.Warn().Err(err).Msg("forecast: cache set alerts failed")
	}
	return resp, nil
}

// TrainingRuns lists the most recent recorded training runs.
func (s *ForecastService) TrainingRuns(ctx context.Context, limit int) ([]domain.TrainingRun, error) {
	if s.runs == nil {
		return nil, ErrRunsUnavailable
	}
	return s.runs.Recent(ctx, limit)
}

func (s *ForecastService) Health() domain.HealthStatus {
	return domain.HealthStatus{
		Status:         "healthy",
		ModelTrained:   s.model.IsTrained(),
		ProductsLoaded: len(s.model.ProductIDs()),
		ModelVersion:   s.model.Version(),
	}
}
