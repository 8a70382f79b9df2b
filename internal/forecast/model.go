package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/stockcast/internal/domain"
)

var (
	ErrInvalidHorizon = errors.New("horizon_days must be >= 1")
	ErrNoStore        = errors.New("model has no snapshot store")
)

// trainedState is never mutated after it is published.
type trainedState struct {
	oracle     Oracle
	regressor  string
	productIDs []int
	confidence float64
	seeds      map[int]productSeed
	version    string
	trainedAt  time.Time
}

// DemandModel trains a regressor on a sales ledger and forecasts cumulative
// demand by rolling its own predictions forward. Readers work on an immutable
// state; Train, Load and Save are serialized and swap the state atomically.
type DemandModel struct {
	regressor Regressor
	store     SnapshotStore
	folds     int
	now       func() time.Time

	mu    sync.Mutex
	state atomic.Pointer[trainedState]
}

// NewDemandModel builds an untrained model. store may be nil, in which case
// Train succeeds without persisting and Save fails.
func NewDemandModel(regressor Regressor, store SnapshotStore, folds int) *DemandModel {
	if folds < 2 {
		folds = DefaultFolds
	}
	return &DemandModel{
		regressor: regressor,
		store:     store,
		folds:     folds,
		now:       time.Now,
	}
}

// Train fits a new oracle on the whole ledger, persists it and only then
// replaces the current state. On any error the previous state is kept.
func (m *DemandModel) Train(ctx context.Context, ledger domain.Ledger) (*domain.TrainingReport, error) {
	rows, err := BuildFeatures(ledger)
	if err != nil {
		return nil, err
	}
	x, y := Matrix(rows)

	m.mu.Lock()
	defer m.mu.Unlock()

	started := m.now()
	cv, err := CrossValidate(ctx, m.regressor, x, y, m.folds)
	if err != nil {
		return nil, fmt.Errorf("cross-validate: %w", err)
	}

	oracle, err := m.regressor.Fit(ctx, x, y)
	if err != nil {
		return nil, fmt.Errorf("fit %s: %w", m.regressor.Name(), err)
	}

	seeds := make(map[int]productSeed)
	for id, r := range latestRows(rows) {
		seeds[id] = productSeed{
			LastDate:     r.Date,
			RollingAvg7:  r.RollingAvg7,
			RollingAvg30: r.RollingAvg30,
			StockLevel:   r.StockLevel,
		}
	}

	next := &trainedState{
		oracle:     oracle,
		regressor:  m.regressor.Name(),
		productIDs: ledger.ProductIDs(),
		confidence: clamp01(cv.Mean),
		seeds:      seeds,
		version:    uuid.NewString(),
		trainedAt:  m.now().UTC(),
	}

	if m.store != nil {
		if err := m.persist(ctx, next); err != nil {
			return nil, err
		}
	}
	m.state.Store(next)

	log.Info().
		Str("version", next.version).
		Str("regressor", next.regressor).
		Int("samples", len(x)).
		Int("products", len(next.productIDs)).
		Float64("cv_mean", cv.Mean).
		Dur("elapsed", m.now().Sub(started)).
		Msg("demand model trained")

	return &domain.TrainingReport{
		Samples:    len(x),
		Features:   len(FeatureNames),
		CVMean:     round(cv.Mean, 4),
		CVStd:      round(cv.Std, 4),
		Confidence: round(next.confidence, 4),
		Regressor:  next.regressor,
		Version:    next.version,
		Products:   len(next.productIDs),
	}, nil
}

// Predict returns the total demand over the next horizon days, rounded to
// two decimals. Each day's prediction feeds the decayed rolling averages
// used for the following day; stock is held constant.
func (m *DemandModel) Predict(productID, horizon int) (float64, error) {
	s := m.state.Load()
	if s == nil {
		return 0, domain.NotTrainedError{}
	}
	return s.predict(productID, horizon)
}

// CurrentStock returns the last recorded stock level of a product.
func (m *DemandModel) CurrentStock(productID int) (float64, error) {
	s := m.state.Load()
	if s == nil {
		return 0, domain.NotTrainedError{}
	}
	return s.currentStock(productID)
}

// ProductIDs returns the trained product ids in ascending order.
func (m *DemandModel) ProductIDs() []int {
	s := m.state.Load()
	if s == nil {
		return []int{}
	}
	return append([]int(nil), s.productIDs...)
}

// Snapshot pins the current trained state. Every call on the returned view
// answers from that state, even while the model is retrained or reloaded.
func (m *DemandModel) Snapshot() (*ModelView, error) {
	s := m.state.Load()
	if s == nil {
		return nil, domain.NotTrainedError{}
	}
	return &ModelView{state: s}, nil
}

// ModelView is a read-only handle on one trained state.
type ModelView struct {
	state *trainedState
}

func (v *ModelView) Predict(productID, horizon int) (float64, error) {
	return v.state.predict(productID, horizon)
}

func (v *ModelView) CurrentStock(productID int) (float64, error) {
	return v.state.currentStock(productID)
}

func (v *ModelView) ProductIDs() []int {
	return append([]int(nil), v.state.productIDs...)
}

func (v *ModelView) ConfidenceScore() float64 {
	return v.state.confidence
}

func (v *ModelView) Version() string {
	return v.state.version
}

var (
	_ Forecaster = (*DemandModel)(nil)
	_ Forecaster = (*ModelView)(nil)
)

func (m *DemandModel) IsTrained() bool {
	return m.state.Load() != nil
}

func (m *DemandModel) ConfidenceScore() float64 {
	if s := m.state.Load(); s != nil {
		return s.confidence
	}
	return 0
}

// Version identifies the trained state; empty while untrained.
func (m *DemandModel) Version() string {
	if s := m.state.Load(); s != nil {
		return s.version
	}
	return ""
}

// Save writes the current state to the snapshot store.
func (m *DemandModel) Save(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state.Load()
	if s == nil {
		return domain.NotTrainedError{}
	}
	if m.store == nil {
		return ErrNoStore
	}
	return m.persist(ctx, s)
}

// Load replaces the model state with the stored snapshot. It reports false
// and leaves the model untouched when no valid snapshot can be read.
func (m *DemandModel) Load(ctx context.Context) bool {
	if m.store == nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	payload, err := m.store.Read(ctx)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			log.Info().Msg("no model snapshot found")
		} else {
			log.Warn().Err(err).Msg("failed to read model snapshot")
		}
		return false
	}

	s, err := decodeSnapshot(payload, m.regressor)
	if err != nil {
		log.Warn().Err(err).Msg("discarding unreadable model snapshot")
		return false
	}

	m.state.Store(s)
	log.Info().
		Str("version", s.version).
		Str("regressor", s.regressor).
		Int("products", len(s.productIDs)).
		Msg("demand model loaded from snapshot")
	return true
}

func (m *DemandModel) persist(ctx context.Context, s *trainedState) error {
	payload, err := encodeSnapshot(s)
	if err != nil {
		return err
	}
	if err := m.store.Write(ctx, payload); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *trainedState) predict(productID, horizon int) (float64, error) {
	if horizon < 1 {
		return 0, fmt.Errorf("%w, got %d", ErrInvalidHorizon, horizon)
	}
	seed, ok := s.seeds[productID]
	if !ok {
		return 0, s.unknown(productID)
	}

	rolling7, rolling30 := seed.RollingAvg7, seed.RollingAvg30
	features := make([]float64, len(FeatureNames))
	var total float64
	for step := 1; step <= horizon; step++ {
		day := seed.LastDate.AddDate(0, 0, step)
		features[0] = float64(DayOfWeek(day))
		features[1] = float64(day.Month())
		features[2] = rolling7
		features[3] = rolling30
		features[4] = seed.StockLevel

		daily := s.oracle.Predict(features)
		if daily < 0 || math.IsNaN(daily) {
			daily = 0
		}
		total += daily

		rolling7 = rolling7*(6.0/7.0) + daily*(1.0/7.0)
		rolling30 = rolling30*(29.0/30.0) + daily*(1.0/30.0)
	}

	return round(total, 2), nil
}

func (s *trainedState) currentStock(productID int) (float64, error) {
	seed, ok := s.seeds[productID]
	if !ok {
		return 0, s.unknown(productID)
	}
	return seed.StockLevel, nil
}

func (s *trainedState) unknown(productID int) error {
	return &domain.UnknownProductError{
		ProductID: productID,
		ValidIDs:  append([]int(nil), s.productIDs...),
	}
}
