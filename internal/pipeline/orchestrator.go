package pipeline

import (
	"context"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/andresuchdata/stockcast/internal/domain"
)

// Orchestrator coordinates running a Pipeline over a set of objects grouped by snapshot date.
type Orchestrator struct {
	tracker RunTracker
	sink    RecordSink
	cfg     Config
	makeW   func(p Pipeline, cfg Config, tracker RunTracker, sink RecordSink) *Worker
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(tracker RunTracker, sink RecordSink, cfg Config) *Orchestrator {
	return &Orchestrator{
		tracker: tracker,
		sink:    sink,
		cfg:     cfg,
		makeW:   NewWorker,
	}
}

// Run groups the provided keys by snapshot date (using p.GetSnapshotDate) and
// runs a Worker batch for each date, oldest first.
func (o *Orchestrator) Run(ctx context.Context, p Pipeline, keys []string) (*Summary, error) {
	summary := &Summary{}
	if len(keys) == 0 {
		return summary, nil
	}

	byDate := make(map[time.Time][]string)
	for _, k := range keys {
		date, err := p.GetSnapshotDate(path.Base(k))
		if err != nil {
			return summary, fmt.Errorf("failed to get snapshot date for %s: %w", k, err)
		}

		date = domain.CivilDate(date)
		byDate[date] = append(byDate[date], k)
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	worker := o.makeW(p, o.cfg, o.tracker, o.sink)

	for _, date := range dates {
		batch := byDate[date]
		written, err := worker.ProcessBatch(ctx, date, batch)
		summary.Records += written
		if err != nil {
			return summary, fmt.Errorf("failed to process batch for %s: %w", date.Format("2006-01-02"), err)
		}
		summary.Dates++
		summary.Files += len(batch)
	}

	return summary, nil
}
