package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/stockcast/internal/domain"
	"github.com/andresuchdata/stockcast/internal/repository"
)

type salesRepository struct {
	db *DB
}

func NewSalesRepository(db *DB) *salesRepository {
	return &salesRepository{db: db}
}

func (r *salesRepository) Load(ctx context.Context) (domain.Ledger, error) {
	query := `
		SELECT product_id, sale_date, quantity_sold, stock_level
		FROM sales_records
		ORDER BY product_id, sale_date
	`

	var records []domain.SalesRecord
	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("failed to load sales records: %w", err)
	}
	if len(records) == 0 {
		return nil, domain.NewDataError("no rows in sales_records")
	}

	for i := range records {
		records[i].Date = domain.CivilDate(records[i].Date)
	}

	log.Debug().Int("rows", len(records)).Msg("sales ledger loaded")
	return records, nil
}

// InsertSalesRecords upserts records keyed by (product_id, sale_date) in one transaction.
func (r *salesRepository) InsertSalesRecords(ctx context.Context, records []domain.SalesRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO sales_records (
				product_id, sale_date, quantity_sold, stock_level, updated_at
			) VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (product_id, sale_date)
			DO UPDATE SET
				quantity_sold = EXCLUDED.quantity_sold,
				stock_level = EXCLUDED.stock_level,
				updated_at = NOW()
		`

		stmt, err := tx.PreparexContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			if _, err := stmt.ExecContext(ctx,
				rec.ProductID,
				domain.CivilDate(rec.Date),
				rec.QuantitySold,
				rec.StockLevel,
			); err != nil {
				return fmt.Errorf("failed to upsert sales record for product %d: %w", rec.ProductID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

var _ repository.SalesRepository = (*salesRepository)(nil)
