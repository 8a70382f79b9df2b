package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/stockcast/internal/domain"
)

// StreamingAggregator buffers transformed records and flushes them to the sink in batches
type StreamingAggregator struct {
	pipeline Pipeline
	config   Config
	date     time.Time
	sink     RecordSink
	buffer   []domain.SalesRecord
	written  int
	mu       sync.Mutex
}

// NewStreamingAggregator creates a new streaming aggregator for a pipeline
func NewStreamingAggregator(pipeline Pipeline, config Config, date time.Time, sink RecordSink) *StreamingAggregator {
	if config.BatchSize < 1 {
		config.BatchSize = DefaultConfig(pipeline.Name()).BatchSize
	}
	return &StreamingAggregator{
		pipeline: pipeline,
		config:   config,
		date:     date,
		sink:     sink,
		buffer:   make([]domain.SalesRecord, 0, config.BatchSize),
	}
}

// AddFileData adds the records of a single file to the buffer
func (sa *StreamingAggregator) AddFileData(ctx context.Context, records []domain.SalesRecord) error {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	sa.buffer = append(sa.buffer, records...)

	log.Debug().
		Str("pipeline", sa.pipeline.Name()).
		Int("buffered", len(sa.buffer)).
		Msg("ingest buffer updated")

	for len(sa.buffer) >= sa.config.BatchSize {
		if err := sa.flushLocked(ctx, sa.config.BatchSize); err != nil {
			return err
		}
	}
	return nil
}

// Finalize flushes any remaining records and returns the total written
func (sa *StreamingAggregator) Finalize(ctx context.Context) (int, error) {
	sa.mu.Lock()
	defer sa.mu.Unlock()

	if len(sa.buffer) == 0 {
		return sa.written, nil
	}
	if err := sa.flushLocked(ctx, len(sa.buffer)); err != nil {
		return sa.written, err
	}
	return sa.written, nil
}

// flushLocked writes the first n buffered records to the sink.
// Must be called with sa.mu locked
func (sa *StreamingAggregator) flushLocked(ctx context.Context, n int) error {
	batch := sa.buffer[:n]
	written, err := sa.sink.InsertSalesRecords(ctx, batch)
	if err != nil {
		return fmt.Errorf("flush %d records into %s: %w", len(batch), sa.pipeline.GetOutputTable(), err)
	}

	log.Info().
		Str("pipeline", sa.pipeline.Name()).
		Str("date", sa.date.Format("2006-01-02")).
		Int("rows", written).
		Msg("ingest batch flushed")

	sa.written += written
	sa.buffer = append(sa.buffer[:0], sa.buffer[n:]...)
	return nil
}

// GetBufferStats returns current buffer statistics
func (sa *StreamingAggregator) GetBufferStats() (buffered int, written int) {
	sa.mu.Lock()
	defer sa.mu.Unlock()
	return len(sa.buffer), sa.written
}
