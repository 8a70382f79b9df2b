package storage

import (
	"context"
	"errors"

	"github.com/andresuchdata/stockcast/internal/forecast"
)

// ErrObjectNotFound is returned when a key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo represents metadata for a remote file/object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStorage captures the minimal S3-compatible operations the model store
// and the sales ingest need.
type ObjectStorage interface {
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte) error
}

// SnapshotStore pins an ObjectStorage key as the model snapshot location.
type SnapshotStore struct {
	objects ObjectStorage
	key     string
}

func NewSnapshotStore(objects ObjectStorage, key string) *SnapshotStore {
	return &SnapshotStore{objects: objects, key: key}
}

func (s *SnapshotStore) Write(ctx context.Context, payload []byte) error {
	return s.objects.PutObject(ctx, s.key, payload)
}

func (s *SnapshotStore) Read(ctx context.Context) ([]byte, error) {
	data, err := s.objects.GetObject(ctx, s.key)
	if errors.Is(err, ErrObjectNotFound) {
		return nil, forecast.ErrSnapshotNotFound
	}
	return data, err
}

var _ forecast.SnapshotStore = (*SnapshotStore)(nil)
