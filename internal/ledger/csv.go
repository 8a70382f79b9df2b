package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/stockcast/internal/domain"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006",
	"20060102",
}

var columnNameSanitizer = strings.NewReplacer(" ", "", "_", "", ".", "", "-", "", "/", "")

func normalizeColumnName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	return columnNameSanitizer.Replace(name)
}

// ReadCSV parses a sales ledger with at least product_id, date,
// quantity_sold and stock_level columns. Header matching ignores case,
// spaces, dots, dashes and underscores.
func ReadCSV(r io.Reader) (domain.Ledger, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, domain.NewDataError("ledger is empty")
	}
	if err != nil {
		return nil, &domain.DataError{Reason: "cannot read header", Err: err}
	}

	colIndex := func(names ...string) int {
		targets := make(map[string]struct{}, len(names))
		for _, name := range names {
			targets[normalizeColumnName(name)] = struct{}{}
		}
		for i, h := range header {
			if _, ok := targets[normalizeColumnName(strings.TrimPrefix(h, "\ufeff"))]; ok {
				return i
			}
		}
		return -1
	}

	idxProduct := colIndex("product_id", "productid")
	idxDate := colIndex("date", "sale_date", "saledate")
	idxQty := colIndex("quantity_sold", "quantitysold", "qty_sold")
	idxStock := colIndex("stock_level", "stocklevel", "stock")

	var missing []string
	for name, idx := range map[string]int{
		"product_id":    idxProduct,
		"date":          idxDate,
		"quantity_sold": idxQty,
		"stock_level":   idxStock,
	} {
		if idx < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, domain.NewDataError("missing required columns: %s", strings.Join(missing, ", "))
	}

	records := make(domain.Ledger, 0, 1024)
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, &domain.DataError{Reason: fmt.Sprintf("line %d", line), Err: err}
		}

		get := func(idx int) string {
			if idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		productID, err := strconv.Atoi(get(idxProduct))
		if err != nil {
			return nil, domain.NewDataError("line %d: invalid product_id %q", line, get(idxProduct))
		}
		date, err := ParseDate(get(idxDate))
		if err != nil {
			return nil, domain.NewDataError("line %d: cannot parse date %q", line, get(idxDate))
		}
		qty, err := parseFloat(get(idxQty))
		if err != nil {
			return nil, domain.NewDataError("line %d: invalid quantity_sold %q", line, get(idxQty))
		}
		stock, err := parseFloat(get(idxStock))
		if err != nil {
			return nil, domain.NewDataError("line %d: invalid stock_level %q", line, get(idxStock))
		}

		records = append(records, domain.SalesRecord{
			ProductID:    productID,
			Date:         date,
			QuantitySold: qty,
			StockLevel:   stock,
		})
	}

	if len(records) == 0 {
		return nil, domain.NewDataError("ledger has no rows")
	}

	return records, nil
}

// ParseDate accepts the date layouts found in sales exports and returns the civil date.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return domain.CivilDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format %q", value)
}

func parseFloat(v string) (float64, error) {
	if v == "" {
		return 0, errors.New("empty value")
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %q", v)
	}
	return f, nil
}

// FileSource reads the ledger from a CSV file on every load.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Load reads and parses the ledger file.
func (s *FileSource) Load(ctx context.Context) (domain.Ledger, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &domain.DataError{Reason: fmt.Sprintf("sales data not found at %s", s.Path), Err: err}
		}
		return nil, fmt.Errorf("open ledger %s: %w", s.Path, err)
	}
	defer f.Close()

	return ReadCSV(f)
}
