package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/stockcast/internal/domain"
)

type memoryTracker struct {
	mu     sync.Mutex
	nextID int64
	runs   map[int64]*Run
	jobs   map[int64]FileJob
}

func newMemoryTracker() *memoryTracker {
	return &memoryTracker{runs: map[int64]*Run{}, jobs: map[int64]FileJob{}}
}

func (m *memoryTracker) GetRunByDate(_ context.Context, name string, date time.Time) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.PipelineName == name && r.Date.Equal(date) {
			c := *r
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memoryTracker) CreateRun(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	run.ID = m.nextID
	c := *run
	m.runs[run.ID] = &c
	return nil
}

func (m *memoryTracker) UpdateRun(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.runs[run.ID]
	stored.Status = run.Status
	stored.TotalFiles = run.TotalFiles
	stored.CompletedAt = run.CompletedAt
	stored.ErrorMessage = run.ErrorMessage
	return nil
}

func (m *memoryTracker) CreateFileJob(_ context.Context, job *FileJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	job.ID = m.nextID
	m.jobs[job.ID] = *job
	return nil
}

func (m *memoryTracker) UpdateFileJob(_ context.Context, job *FileJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	return nil
}

func (m *memoryTracker) IncrementProcessedFiles(_ context.Context, runID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runID].ProcessedFiles++
	return nil
}

func (m *memoryTracker) AddRowCount(_ context.Context, runID int64, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runID].TotalRows += count
	return nil
}

func (m *memoryTracker) onlyRun(t *testing.T) Run {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.runs, 1)
	for _, r := range m.runs {
		return *r
	}
	return Run{}
}

type memorySink struct {
	mu      sync.Mutex
	batches [][]domain.SalesRecord
	err     error
}

func (s *memorySink) InsertSalesRecords(_ context.Context, records []domain.SalesRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.batches = append(s.batches, append([]domain.SalesRecord(nil), records...))
	return len(records), nil
}

func (s *memorySink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

// fakePipeline returns rowsPerFile records for every key and fails keys in failing.
type fakePipeline struct {
	rowsPerFile int
	failing     map[string]error
	mu          sync.Mutex
	calls       map[string]int
}

func (p *fakePipeline) Name() string           { return "fake" }
func (p *fakePipeline) GetOutputTable() string { return "sales_records" }

func (p *fakePipeline) GetSnapshotDate(filename string) (time.Time, error) {
	return time.Parse("20060102", filename[:8])
}

func (p *fakePipeline) Validate(key string) error {
	if key == "" {
		return errors.New("empty key")
	}
	return nil
}

func (p *fakePipeline) Transform(_ context.Context, key string) ([]domain.SalesRecord, error) {
	p.mu.Lock()
	if p.calls == nil {
		p.calls = map[string]int{}
	}
	p.calls[key]++
	p.mu.Unlock()

	if err, ok := p.failing[key]; ok {
		return nil, err
	}
	records := make([]domain.SalesRecord, p.rowsPerFile)
	for i := range records {
		records[i] = domain.SalesRecord{ProductID: i + 1, QuantitySold: 1}
	}
	return records, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestWorkerProcessBatch(t *testing.T) {
	tracker := newMemoryTracker()
	sink := &memorySink{}
	cfg := DefaultConfig("fake")
	cfg.BatchSize = 4

	w := NewWorker(&fakePipeline{rowsPerFile: 3}, cfg, tracker, sink)
	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	keys := []string{"20240501_a.csv", "20240501_b.csv", "20240501_c.csv"}
	written, err := w.ProcessBatch(context.Background(), date, keys)
	require.NoError(t, err)

	assert.Equal(t, 9, written)
	assert.Equal(t, 9, sink.total())
	for _, b := range sink.batches[:len(sink.batches)-1] {
		assert.Len(t, b, 4)
	}

	run := tracker.onlyRun(t)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 3, run.ProcessedFiles)
	assert.Equal(t, 9, run.TotalRows)
	assert.NotNil(t, run.CompletedAt)
	for _, job := range tracker.jobs {
		assert.Equal(t, FileStatusCompleted, job.Status)
	}
}

func TestWorkerRetriesTransientFailures(t *testing.T) {
	tracker := newMemoryTracker()
	p := &fakePipeline{rowsPerFile: 1, failing: map[string]error{"20240501_bad.csv": errors.New("timeout")}}
	cfg := DefaultConfig("fake")
	cfg.RetryAttempts = 3

	w := NewWorker(p, cfg, tracker, &memorySink{})
	w.sleep = noSleep

	_, err := w.ProcessBatch(context.Background(), time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), []string{"20240501_bad.csv"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	assert.Equal(t, 3, p.calls["20240501_bad.csv"])

	run := tracker.onlyRun(t)
	assert.Equal(t, StatusFailed, run.Status)
	assert.NotEmpty(t, run.ErrorMessage)
}

func TestWorkerDoesNotRetryMalformedData(t *testing.T) {
	p := &fakePipeline{failing: map[string]error{"20240501_bad.csv": domain.NewDataError("ledger is empty")}}
	cfg := DefaultConfig("fake")
	w := NewWorker(p, cfg, newMemoryTracker(), &memorySink{})
	w.sleep = noSleep

	_, err := w.ProcessBatch(context.Background(), time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), []string{"20240501_bad.csv"})
	require.Error(t, err)
	assert.Equal(t, 1, p.calls["20240501_bad.csv"])
}

func TestWorkerSinkFailureFailsRun(t *testing.T) {
	tracker := newMemoryTracker()
	sink := &memorySink{err: fmt.Errorf("connection refused")}
	w := NewWorker(&fakePipeline{rowsPerFile: 2}, DefaultConfig("fake"), tracker, sink)

	_, err := w.ProcessBatch(context.Background(), time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), []string{"20240501_a.csv"})
	require.Error(t, err)
	assert.Equal(t, StatusFailed, tracker.onlyRun(t).Status)
}

func TestOrchestratorGroupsByDate(t *testing.T) {
	tracker := newMemoryTracker()
	sink := &memorySink{}
	o := NewOrchestrator(tracker, sink, DefaultConfig("fake"))

	keys := []string{"sales/20240502_a.csv", "sales/20240501_a.csv", "sales/20240502_b.csv"}
	summary, err := o.Run(context.Background(), &fakePipeline{rowsPerFile: 2}, keys)
	require.NoError(t, err)

	assert.Equal(t, &Summary{Dates: 2, Files: 3, Records: 6}, summary)
	assert.Len(t, tracker.runs, 2)

	empty, err := o.Run(context.Background(), &fakePipeline{}, nil)
	require.NoError(t, err)
	assert.Equal(t, &Summary{}, empty)
}
