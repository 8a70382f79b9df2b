package pipeline

import (
	"context"
	"time"

	"github.com/andresuchdata/stockcast/internal/domain"
)

// Pipeline defines the interface that all ingest pipelines must implement
type Pipeline interface {
	// Name returns the unique identifier for this pipeline
	Name() string

	// Transform reads a single input object and returns its sales records
	Transform(ctx context.Context, inputKey string) ([]domain.SalesRecord, error)

	// GetOutputTable returns the target database table name
	GetOutputTable() string

	// GetSnapshotDate extracts the date from the object name
	GetSnapshotDate(filename string) (time.Time, error)

	// Validate checks if the input object is valid for this pipeline
	Validate(inputKey string) error
}

// RecordSink receives flushed batches of transformed records.
type RecordSink interface {
	InsertSalesRecords(ctx context.Context, records []domain.SalesRecord) (int, error)
}

// RunTracker persists ingest run and file job progress.
type RunTracker interface {
	GetRunByDate(ctx context.Context, pipelineName string, date time.Time) (*Run, error)
	CreateRun(ctx context.Context, run *Run) error
	UpdateRun(ctx context.Context, run *Run) error
	CreateFileJob(ctx context.Context, job *FileJob) error
	UpdateFileJob(ctx context.Context, job *FileJob) error
	IncrementProcessedFiles(ctx context.Context, runID int64) error
	AddRowCount(ctx context.Context, runID int64, count int) error
}

// Config holds configuration for a pipeline instance
type Config struct {
	Name          string
	BatchSize     int           // Number of records to buffer before flushing
	WorkerCount   int           // Number of concurrent workers
	RetryAttempts int           // Attempts per file before it is marked failed
	RetryBackoff  time.Duration // Backoff duration between retries
}

// DefaultConfig returns sensible defaults
func DefaultConfig(name string) Config {
	return Config{
		Name:          name,
		BatchSize:     1000,
		WorkerCount:   4,
		RetryAttempts: 3,
		RetryBackoff:  2 * time.Second,
	}
}

// RunStatus represents the current state of a pipeline run
type RunStatus string

const (
	StatusPending    RunStatus = "pending"
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
)

// FileJobStatus represents the state of a single file processing job
type FileJobStatus string

const (
	FileStatusQueued     FileJobStatus = "queued"
	FileStatusProcessing FileJobStatus = "processing"
	FileStatusCompleted  FileJobStatus = "completed"
	FileStatusFailed     FileJobStatus = "failed"
)

// Run tracks a single execution of a pipeline for a specific date
type Run struct {
	ID             int64
	PipelineName   string
	Date           time.Time
	Status         RunStatus
	TotalFiles     int
	ProcessedFiles int
	TotalRows      int
	StartedAt      time.Time
	CompletedAt    *time.Time
	ErrorMessage   string
}

// FileJob tracks the processing of a single file
type FileJob struct {
	ID           int64
	RunID        int64
	ObjectKey    string
	Status       FileJobStatus
	ErrorMessage string
	ProcessedAt  *time.Time
	RetryCount   int
}

// Summary is what an orchestrated ingest reports back.
type Summary struct {
	Dates   int `json:"dates"`
	Files   int `json:"files"`
	Records int `json:"records"`
}
