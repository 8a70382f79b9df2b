package sales

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/stockcast/internal/domain"
	"github.com/andresuchdata/stockcast/internal/storage"
)

func TestSalesPipelineSnapshotDate(t *testing.T) {
	p := NewSalesPipeline(nil)

	d, err := p.GetSnapshotDate("incoming/20240315_store_a.csv")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), d)

	_, err = p.GetSnapshotDate("sales.csv")
	assert.Error(t, err)
}

func TestSalesPipelineValidate(t *testing.T) {
	p := NewSalesPipeline(nil)

	assert.NoError(t, p.Validate("20240315_export.CSV"))
	assert.Error(t, p.Validate("20240315_export.xlsx"))
	assert.Error(t, p.Validate("export.csv"))
}

func TestSalesPipelineTransformAndList(t *testing.T) {
	ctx := context.Background()
	objects, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, objects.PutObject(ctx, "incoming/20240315_a.csv",
		[]byte("product_id,date,quantity_sold,stock_level\n1,2024-03-15,4,10\n2,2024-03-15,1,3\n")))
	require.NoError(t, objects.PutObject(ctx, "incoming/20240316_bad.csv", []byte("product_id\n1\n")))
	require.NoError(t, objects.PutObject(ctx, "incoming/readme.txt", []byte("skip")))

	p := NewSalesPipeline(objects)

	keys, err := p.ListInputs(ctx, "incoming/")
	require.NoError(t, err)
	assert.Equal(t, []string{"incoming/20240315_a.csv", "incoming/20240316_bad.csv"}, keys)

	records, err := p.Transform(ctx, keys[0])
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 4.0, records[0].QuantitySold)

	_, err = p.Transform(ctx, keys[1])
	var dataErr *domain.DataError
	assert.True(t, errors.As(err, &dataErr))
}
