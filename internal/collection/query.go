package collection

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

// Direction is a sort direction
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ParseDirection accepts asc/desc and the long forms; anything else is ascending
func ParseDirection(s string) Direction {
	switch strings.ToLower(s) {
	case "desc", "descending":
		return Descending
	default:
		return Ascending
	}
}

// Sort selects a sort key and direction. An empty key keeps collection order.
type Sort struct {
	Key       string    `json:"key,omitempty"`
	Direction Direction `json:"direction,omitempty"`
}

// Toggle returns the sort produced by selecting key: the same key flips
// ascending to descending and back, a different key starts ascending.
func (s Sort) Toggle(key string) Sort {
	if s.Key == key && s.Direction != Descending {
		return Sort{Key: key, Direction: Descending}
	}
	return Sort{Key: key, Direction: Ascending}
}

// Query is the input of a projection
type Query struct {
	Search  string
	Filters map[string]string
	Sort    Sort
}

// Project derives the visible rows from rows: search, then exact-match
// filters, then a stable sort. rows is never modified and the result
// never aliases it.
func Project[T any](schema *Schema[T], rows []T, q Query) ([]T, error) {
	for name := range q.Filters {
		if _, ok := schema.Filters[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFilter, name)
		}
	}

	var compare func(a, b T) int
	if q.Sort.Key != "" {
		c, ok := schema.Sorts[q.Sort.Key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSortKey, q.Sort.Key)
		}
		compare = c
		if q.Sort.Direction == Descending {
			compare = func(a, b T) int { return c(b, a) }
		}
	}

	var term string
	if q.Search != "" {
		term = cases.Fold().String(q.Search)
	}

	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if term != "" && !matchesSearch(schema, r, term) {
			continue
		}
		if !matchesFilters(schema, r, q.Filters) {
			continue
		}
		out = append(out, schema.clone(r))
	}

	if compare != nil {
		slices.SortStableFunc(out, compare)
	}

	return out, nil
}

func matchesSearch[T any](schema *Schema[T], r T, term string) bool {
	if schema.Searchable == nil {
		return true
	}
	fold := cases.Fold()
	for _, field := range schema.Searchable(r) {
		if strings.Contains(fold.String(field), term) {
			return true
		}
	}
	return false
}

func matchesFilters[T any](schema *Schema[T], r T, filters map[string]string) bool {
	for name, want := range filters {
		// An empty value means the filter is not active
		if want == "" {
			continue
		}
		if schema.Filters[name](r) != want {
			return false
		}
	}
	return true
}
