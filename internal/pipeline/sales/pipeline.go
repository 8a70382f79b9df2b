package sales

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/andresuchdata/stockcast/internal/domain"
	"github.com/andresuchdata/stockcast/internal/ledger"
	"github.com/andresuchdata/stockcast/internal/pipeline"
	"github.com/andresuchdata/stockcast/internal/storage"
)

const snapshotDateLayout = "20060102"

// SalesPipeline ingests daily sales CSV exports named YYYYMMDD_*.csv.
type SalesPipeline struct {
	objects storage.ObjectStorage
}

// NewSalesPipeline creates a pipeline reading its inputs from objects.
func NewSalesPipeline(objects storage.ObjectStorage) *SalesPipeline {
	return &SalesPipeline{objects: objects}
}

// Name returns the unique identifier of this pipeline.
func (p *SalesPipeline) Name() string {
	return "sales_ingest"
}

// GetOutputTable returns the table the records are written to.
func (p *SalesPipeline) GetOutputTable() string {
	return "sales_records"
}

// GetSnapshotDate reads the YYYYMMDD prefix of the file name.
func (p *SalesPipeline) GetSnapshotDate(filename string) (time.Time, error) {
	base := path.Base(filename)
	base = strings.TrimSuffix(base, path.Ext(base))

	if len(base) < len(snapshotDateLayout) {
		return time.Time{}, fmt.Errorf("filename %s does not contain date with layout %s", filename, snapshotDateLayout)
	}
	return time.Parse(snapshotDateLayout, base[:len(snapshotDateLayout)])
}

// Validate accepts CSV objects whose names carry a snapshot date.
func (p *SalesPipeline) Validate(inputKey string) error {
	ext := strings.ToLower(path.Ext(inputKey))
	if ext != ".csv" {
		return fmt.Errorf("unsupported file extension %s for %s (only CSV supported)", ext, inputKey)
	}
	if _, err := p.GetSnapshotDate(inputKey); err != nil {
		return err
	}
	return nil
}

// Transform downloads the object and parses it as a sales ledger.
func (p *SalesPipeline) Transform(ctx context.Context, inputKey string) ([]domain.SalesRecord, error) {
	data, err := p.objects.GetObject(ctx, inputKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", inputKey, err)
	}

	records, err := ledger.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", inputKey, err)
	}
	return records, nil
}

// ListInputs returns the object keys under prefix this pipeline accepts.
func (p *SalesPipeline) ListInputs(ctx context.Context, prefix string) ([]string, error) {
	objects, err := p.objects.ListObjects(ctx, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		if p.Validate(o.Key) == nil {
			keys = append(keys, o.Key)
		}
	}
	return keys, nil
}

var _ pipeline.Pipeline = (*SalesPipeline)(nil)
