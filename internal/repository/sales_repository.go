package repository

import (
	"context"

	"github.com/andresuchdata/stockcast/internal/domain"
)

type SalesRepository interface {
	// Load returns the full sales history ordered by product and date.
	Load(ctx context.Context) (domain.Ledger, error)
	InsertSalesRecords(ctx context.Context, records []domain.SalesRecord) (int, error)
}

type TrainingRunRepository interface {
	Record(ctx context.Context, run *domain.TrainingRun) error
	Recent(ctx context.Context, limit int) ([]domain.TrainingRun, error)
}
