package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotTrained is matched by NotTrainedError through errors.Is.
var ErrNotTrained = errors.New("model is not trained")

// DataError reports a malformed, missing or empty sales ledger.
type DataError struct {
	Reason string
	Err    error
}

func NewDataError(format string, args ...interface{}) *DataError {
	return &DataError{Reason: fmt.Sprintf(format, args...)}
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid sales data: %s: %v", e.Reason, e.Err)
	}
	return "invalid sales data: " + e.Reason
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NotTrainedError is returned by operations that need a trained model.
type NotTrainedError struct{}

func (NotTrainedError) Error() string {
	return "model is not trained: call train or load first"
}

func (NotTrainedError) Is(target error) bool {
	return target == ErrNotTrained
}

// UnknownProductError names a product id outside the trained product set.
type UnknownProductError struct {
	ProductID int
	ValidIDs  []int
}

func (e *UnknownProductError) Error() string {
	ids := make([]string, len(e.ValidIDs))
	for i, id := range e.ValidIDs {
		ids[i] = strconv.Itoa(id)
	}
	return fmt.Sprintf("unknown product_id %d, valid ids: [%s]", e.ProductID, strings.Join(ids, ", "))
}
