package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andresuchdata/stockcast/internal/config"
	"github.com/andresuchdata/stockcast/internal/domain"
)

const (
	forecastKeyPrefix     = "forecast"
	forecastScanBatchSize = 100
)

// ForecastCache stores computed predictions and alert lists. Entries are
// keyed by model version so a retrain never serves stale forecasts.
type ForecastCache interface {
	GetPrediction(ctx context.Context, version string, productID int) (*domain.DemandPrediction, bool, error)
	SetPrediction(ctx context.Context, version string, prediction *domain.DemandPrediction) error
	GetAlerts(ctx context.Context, version string, horizon int) (*domain.AlertsResponse, bool, error)
	SetAlerts(ctx context.Context, version string, horizon int, alerts *domain.AlertsResponse) error
	InvalidateAll(ctx context.Context) error
}

type redisForecastCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopForecastCache struct{}

func NewForecastCache(cfg config.CacheConfig) (ForecastCache, error) {
	if !cfg.Enabled {
		return &noopForecastCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisForecastCache{
		client: client,
		ttl:    ttl,
	}, nil
}

func NewNoopForecastCache() ForecastCache {
	return &noopForecastCache{}
}

func (c *redisForecastCache) GetPrediction(ctx context.Context, version string, productID int) (*domain.DemandPrediction, bool, error) {
	var prediction domain.DemandPrediction
	ok, err := c.get(ctx, predictionKey(version, productID), &prediction)
	if !ok || err != nil {
		return nil, false, err
	}
	return &prediction, true, nil
}

func (c *redisForecastCache) SetPrediction(ctx context.Context, version string, prediction *domain.DemandPrediction) error {
	return c.set(ctx, predictionKey(version, prediction.ProductID), prediction)
}

func (c *redisForecastCache) GetAlerts(ctx context.Context, version string, horizon int) (*domain.AlertsResponse, bool, error) {
	var alerts domain.AlertsResponse
	ok, err := c.get(ctx, alertsKey(version, horizon), &alerts)
	if !ok || err != nil {
		return nil, false, err
	}
	return &alerts, true, nil
}

func (c *redisForecastCache) SetAlerts(ctx context.Context, version string, horizon int, alerts *domain.AlertsResponse) error {
	return c.set(ctx, alertsKey(version, horizon), alerts)
}

func (c *redisForecastCache) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, forecastKeyPrefix+":", forecastScanBatchSize)
}

func (c *redisForecastCache) get(ctx context.Context, key string, dest interface{}) (bool, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("decode forecast cache %s: %w", key, err)
	}
	return true, nil
}

func (c *redisForecastCache) set(ctx context.Context, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode forecast cache %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (n *noopForecastCache) GetPrediction(ctx context.Context, version string, productID int) (*domain.DemandPrediction, bool, error) {
	return nil, false, nil
}

func (n *noopForecastCache) SetPrediction(ctx context.Context, version string, prediction *domain.DemandPrediction) error {
	return nil
}

func (n *noopForecastCache) GetAlerts(ctx context.Context, version string, horizon int) (*domain.AlertsResponse, bool, error) {
	return nil, false, nil
}

func (n *noopForecastCache) SetAlerts(ctx context.Context, version string, horizon int, alerts *domain.AlertsResponse) error {
	return nil
}

func (n *noopForecastCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func predictionKey(version string, productID int) string {
	return fmt.Sprintf("%s:%s:prediction:%d", forecastKeyPrefix, versionHash(version), productID)
}

func alertsKey(version string, horizon int) string {
	return fmt.Sprintf("%s:%s:alerts:%d", forecastKeyPrefix, versionHash(version), horizon)
}

func versionHash(version string) string {
	if version == "" {
		return "untrained"
	}
	sum := sha1.Sum([]byte(version))
	return hex.EncodeToString(sum[:8])
}
