package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/andresuchdata/stockcast/internal/domain"
	"github.com/andresuchdata/stockcast/internal/repository"
)

type trainingRunRepository struct {
	db *DB
}

func NewTrainingRunRepository(db *DB) *trainingRunRepository {
	return &trainingRunRepository{db: db}
}

func (r *trainingRunRepository) Record(ctx context.Context, run *domain.TrainingRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	query := `
		INSERT INTO training_runs (
			id, model_version, regressor, samples, products,
			cv_mean, cv_std, confidence, completed_at
		) VALUES (
			:id, :model_version, :regressor, :samples, :products,
			:cv_mean, :cv_std, :confidence, :completed_at
		)
	`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("failed to record training run: %w", err)
	}
	return nil
}

func (r *trainingRunRepository) Recent(ctx context.Context, limit int) ([]domain.TrainingRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, model_version, regressor, samples, products,
		       cv_mean, cv_std, confidence, completed_at
		FROM training_runs
		ORDER BY completed_at DESC
		LIMIT $1
	`

	runs := make([]domain.TrainingRun, 0)
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to fetch training runs: %w", err)
	}
	return runs, nil
}

var _ repository.TrainingRunRepository = (*trainingRunRepository)(nil)
