package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/stockcast/internal/domain"
)

// Worker processes files for a specific pipeline
type Worker struct {
	pipeline Pipeline
	config   Config
	tracker  RunTracker
	sink     RecordSink
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewWorker creates a new pipeline worker
func NewWorker(pipeline Pipeline, config Config, tracker RunTracker, sink RecordSink) *Worker {
	return &Worker{
		pipeline: pipeline,
		config:   config,
		tracker:  tracker,
		sink:     sink,
		sleep:    sleepContext,
	}
}

// ProcessBatch processes a batch of files for a specific date and returns
// the number of records written
func (w *Worker) ProcessBatch(ctx context.Context, date time.Time, keys []string) (int, error) {
	log.Info().
		Str("pipeline", w.pipeline.Name()).
		Str("date", date.Format("2006-01-02")).
		Int("files", len(keys)).
		Msg("starting ingest batch")

	run, err := w.getOrCreateRun(ctx, date, len(keys))
	if err != nil {
		return 0, fmt.Errorf("failed to create pipeline run: %w", err)
	}

	aggregator := NewStreamingAggregator(w.pipeline, w.config, date, w.sink)

	jobs := make([]*FileJob, len(keys))
	for i, key := range keys {
		job := &FileJob{
			RunID:     run.ID,
			ObjectKey: key,
			Status:    FileStatusQueued,
		}
		if err := w.tracker.CreateFileJob(ctx, job); err != nil {
			return 0, fmt.Errorf("failed to create file job: %w", err)
		}
		jobs[i] = job
	}

	run.Status = StatusProcessing
	if err := w.tracker.UpdateRun(ctx, run); err != nil {
		return 0, fmt.Errorf("failed to update pipeline run: %w", err)
	}

	if err := w.processFilesParallel(ctx, run, jobs, aggregator); err != nil {
		w.failRun(ctx, run, err)
		return 0, err
	}

	written, err := aggregator.Finalize(ctx)
	if err != nil {
		unflushed, _ := aggregator.GetBufferStats()
		log.Error().Err(err).
			Str("pipeline", w.pipeline.Name()).
			Int("written", written).
			Int("unflushed", unflushed).
			Msg("final ingest flush failed")
		w.failRun(ctx, run, fmt.Errorf("aggregation failed: %w", err))
		return written, fmt.Errorf("failed to finalize aggregation: %w", err)
	}

	run.Status = StatusCompleted
	now := time.Now()
	run.CompletedAt = &now
	if err := w.tracker.UpdateRun(ctx, run); err != nil {
		return written, fmt.Errorf("failed to complete pipeline run: %w", err)
	}

	log.Info().
		Str("pipeline", w.pipeline.Name()).
		Int("files", len(jobs)).
		Int("rows", written).
		Msg("ingest batch completed")

	return written, nil
}

// processFilesParallel processes files using a worker pool
func (w *Worker) processFilesParallel(ctx context.Context, run *Run, jobs []*FileJob, aggregator *StreamingAggregator) error {
	workerCount := w.config.WorkerCount
	if workerCount < 1 {
		workerCount = 1
	}

	jobChan := make(chan *FileJob, len(jobs))
	errChan := make(chan error, workerCount)
	var wg sync.WaitGroup

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range jobChan {
				if err := w.processFile(ctx, run, job, aggregator); err != nil {
					log.Error().Err(err).
						Str("pipeline", w.pipeline.Name()).
						Int("worker", workerID).
						Str("key", job.ObjectKey).
						Msg("failed to process file")
					select {
					case errChan <- err:
					default:
					}
				}
			}
		}(i)
	}

	for _, job := range jobs {
		select {
		case <-ctx.Done():
			close(jobChan)
			wg.Wait()
			return ctx.Err()
		case jobChan <- job:
		}
	}
	close(jobChan)

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return err
	}
	return nil
}

// processFile validates, transforms and buffers a single file. Transform
// failures other than malformed data are retried with a fixed backoff
func (w *Worker) processFile(ctx context.Context, run *Run, job *FileJob, aggregator *StreamingAggregator) error {
	startTime := time.Now()

	job.Status = FileStatusProcessing
	if err := w.tracker.UpdateFileJob(ctx, job); err != nil {
		return err
	}

	if err := w.pipeline.Validate(job.ObjectKey); err != nil {
		return w.markJobFailed(ctx, job, fmt.Errorf("validation failed: %w", err))
	}

	attempts := w.config.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		records []domain.SalesRecord
		err     error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		records, err = w.pipeline.Transform(ctx, job.ObjectKey)
		if err == nil {
			break
		}
		job.RetryCount++
		var dataErr *domain.DataError
		if errors.As(err, &dataErr) {
			break
		}
		if attempt < attempts {
			log.Warn().Err(err).
				Str("key", job.ObjectKey).
				Int("attempt", attempt).
				Msg("transform failed, retrying")
			if sleepErr := w.sleep(ctx, w.config.RetryBackoff); sleepErr != nil {
				err = sleepErr
				break
			}
		}
	}
	if err != nil {
		return w.markJobFailed(ctx, job, fmt.Errorf("transformation failed: %w", err))
	}

	if err := aggregator.AddFileData(ctx, records); err != nil {
		return w.markJobFailed(ctx, job, fmt.Errorf("aggregation failed: %w", err))
	}

	job.Status = FileStatusCompleted
	now := time.Now()
	job.ProcessedAt = &now
	if err := w.tracker.UpdateFileJob(ctx, job); err != nil {
		return err
	}

	if err := w.tracker.IncrementProcessedFiles(ctx, run.ID); err != nil {
		log.Warn().Err(err).Int64("run_id", run.ID).Msg("failed to increment processed files")
	}
	if err := w.tracker.AddRowCount(ctx, run.ID, len(records)); err != nil {
		log.Warn().Err(err).Int64("run_id", run.ID).Msg("failed to add row count")
	}

	log.Info().
		Str("pipeline", w.pipeline.Name()).
		Str("key", job.ObjectKey).
		Dur("elapsed", time.Since(startTime)).
		Int("rows", len(records)).
		Msg("file ingested")

	return nil
}

// markJobFailed records the failure on the job and returns err
func (w *Worker) markJobFailed(ctx context.Context, job *FileJob, err error) error {
	job.Status = FileStatusFailed
	job.ErrorMessage = err.Error()

	if updateErr := w.tracker.UpdateFileJob(ctx, job); updateErr != nil {
		log.Error().Err(updateErr).Str("key", job.ObjectKey).Msg("failed to update job status")
	}
	return err
}

func (w *Worker) failRun(ctx context.Context, run *Run, err error) {
	run.Status = StatusFailed
	run.ErrorMessage = err.Error()
	now := time.Now()
	run.CompletedAt = &now
	if updateErr := w.tracker.UpdateRun(ctx, run); updateErr != nil {
		log.Error().Err(updateErr).Int64("run_id", run.ID).Msg("failed to mark run failed")
	}
}

// getOrCreateRun gets or creates a pipeline run for the date
func (w *Worker) getOrCreateRun(ctx context.Context, date time.Time, totalFiles int) (*Run, error) {
	run, err := w.tracker.GetRunByDate(ctx, w.pipeline.Name(), date)
	if err != nil {
		return nil, err
	}

	if run != nil {
		if run.TotalFiles != totalFiles {
			run.TotalFiles = totalFiles
			if err := w.tracker.UpdateRun(ctx, run); err != nil {
				return nil, err
			}
		}
		return run, nil
	}

	run = &Run{
		PipelineName: w.pipeline.Name(),
		Date:         date,
		Status:       StatusPending,
		TotalFiles:   totalFiles,
		StartedAt:    time.Now(),
	}
	if err := w.tracker.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
