package domain

import (
	"sort"
	"time"
)

// SalesRecord is one observed day of sales for a product.
type SalesRecord struct {
	ProductID    int       `json:"product_id" db:"product_id"`
	Date         time.Time `json:"date" db:"sale_date"`
	QuantitySold float64   `json:"quantity_sold" db:"quantity_sold"`
	StockLevel   float64   `json:"stock_level" db:"stock_level"`
}

// Ledger is a sales history, usually ordered by product and date.
type Ledger []SalesRecord

// ProductIDs returns the distinct product ids in the ledger in ascending order.
func (l Ledger) ProductIDs() []int {
	seen := make(map[int]struct{}, 16)
	ids := make([]int, 0, 16)
	for _, r := range l {
		if _, ok := seen[r.ProductID]; ok {
			continue
		}
		seen[r.ProductID] = struct{}{}
		ids = append(ids, r.ProductID)
	}
	sort.Ints(ids)
	return ids
}

// CivilDate truncates t to midnight UTC of its calendar day.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
