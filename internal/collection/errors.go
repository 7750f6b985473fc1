package collection

import "errors"

var (
	// ErrNotFound is returned when no record has the requested id
	ErrNotFound = errors.New("record not found")
	// ErrUnknownSortKey is returned for a sort key the schema does not define
	ErrUnknownSortKey = errors.New("unknown sort key")
	// ErrUnknownFilter is returned for a filter the schema does not define
	ErrUnknownFilter = errors.New("unknown filter")
)
