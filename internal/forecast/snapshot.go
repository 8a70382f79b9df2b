package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrSnapshotNotFound is returned by a SnapshotStore that holds no snapshot.
var ErrSnapshotNotFound = errors.New("snapshot not found")

const snapshotFormatVersion = 1

// SnapshotStore persists the encoded model snapshot. Write must replace any
// previous snapshot all-or-nothing.
type SnapshotStore interface {
	Write(ctx context.Context, payload []byte) error
	Read(ctx context.Context) ([]byte, error)
}

type productSeed struct {
	LastDate     time.Time `json:"last_date"`
	RollingAvg7  float64   `json:"rolling_avg_7d"`
	RollingAvg30 float64   `json:"rolling_avg_30d"`
	StockLevel   float64   `json:"stock_level"`
}

type snapshot struct {
	FormatVersion   int                 `json:"format_version"`
	ModelVersion    string              `json:"model_version"`
	Regressor       string              `json:"regressor"`
	Oracle          json.RawMessage     `json:"oracle"`
	ProductIDs      []int               `json:"product_ids"`
	ConfidenceScore float64             `json:"confidence_score"`
	Seeds           map[int]productSeed `json:"seeds"`
	TrainedAt       time.Time           `json:"trained_at"`
}

func encodeSnapshot(s *trainedState) ([]byte, error) {
	oracle, err := s.oracle.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode oracle: %w", err)
	}
	return json.Marshal(snapshot{
		FormatVersion:   snapshotFormatVersion,
		ModelVersion:    s.version,
		Regressor:       s.regressor,
		Oracle:          oracle,
		ProductIDs:      s.productIDs,
		ConfidenceScore: s.confidence,
		Seeds:           s.seeds,
		TrainedAt:       s.trainedAt,
	})
}

// decodeSnapshot restores a trained state, resolving the oracle through the
// configured regressor when names match and the built-in ones otherwise.
func decodeSnapshot(payload []byte, configured Regressor) (*trainedState, error) {
	var doc snapshot
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if doc.FormatVersion != snapshotFormatVersion {
		return nil, fmt.Errorf("decode snapshot: unsupported format version %d", doc.FormatVersion)
	}
	if len(doc.ProductIDs) == 0 {
		return nil, errors.New("decode snapshot: no product ids")
	}
	if !sort.IntsAreSorted(doc.ProductIDs) {
		return nil, errors.New("decode snapshot: product ids are not sorted")
	}
	for _, id := range doc.ProductIDs {
		if _, ok := doc.Seeds[id]; !ok {
			return nil, fmt.Errorf("decode snapshot: product %d has no seed state", id)
		}
	}
	if doc.ConfidenceScore < 0 || doc.ConfidenceScore > 1 {
		return nil, fmt.Errorf("decode snapshot: confidence %v outside [0,1]", doc.ConfidenceScore)
	}

	reg := configured
	if reg == nil || reg.Name() != doc.Regressor {
		var err error
		reg, err = NewRegressor(doc.Regressor, DefaultRegressorOptions())
		if err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
	}
	oracle, err := reg.Decode(doc.Oracle)
	if err != nil {
		return nil, err
	}

	return &trainedState{
		oracle:     oracle,
		regressor:  doc.Regressor,
		productIDs: doc.ProductIDs,
		confidence: doc.ConfidenceScore,
		seeds:      doc.Seeds,
		version:    doc.ModelVersion,
		trainedAt:  doc.TrainedAt,
	}, nil
}
