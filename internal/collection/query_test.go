package collection

import (
	"errors"
	"reflect"
	"slices"
	"testing"
)

var queryRows = []item{
	{ID: 1, Name: "Charlie", Tag: "x", Labels: []string{"Read"}},
	{ID: 2, Name: "alice", Tag: "y", Labels: []string{"Write"}},
	{ID: 3, Name: "Bob", Tag: "x", Labels: []string{"Read", "Write"}},
	{ID: 4, Name: "Dave", Tag: "y"},
}

func TestProject(t *testing.T) {
	schema := itemSchema()

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{
			name:  "empty query keeps order",
			query: Query{},
			want:  []string{"Charlie", "alice", "Bob", "Dave"},
		},
		{
			name:  "search is case-insensitive",
			query: Query{Search: "ALI"},
			want:  []string{"alice"},
		},
		{
			name:  "search matches any field",
			query: Query{Search: "write"},
			want:  []string{"alice", "Bob"},
		},
		{
			name:  "filter exact match",
			query: Query{Filters: map[string]string{"tag": "x"}},
			want:  []string{"Charlie", "Bob"},
		},
		{
			name:  "empty filter value is inactive",
			query: Query{Filters: map[string]string{"tag": ""}},
			want:  []string{"Charlie", "alice", "Bob", "Dave"},
		},
		{
			name:  "search and filter combine",
			query: Query{Search: "read", Filters: map[string]string{"tag": "x"}},
			want:  []string{"Charlie", "Bob"},
		},
		{
			name:  "no match",
			query: Query{Search: "zzz"},
			want:  []string{},
		},
		{
			name:  "sort ascending",
			query: Query{Sort: Sort{Key: "name", Direction: Ascending}},
			want:  []string{"Bob", "Charlie", "Dave", "alice"},
		},
		{
			name:  "sort descending",
			query: Query{Sort: Sort{Key: "name", Direction: Descending}},
			want:  []string{"alice", "Dave", "Charlie", "Bob"},
		},
		{
			name:  "sort is stable",
			query: Query{Sort: Sort{Key: "tag", Direction: Ascending}},
			want:  []string{"Charlie", "Bob", "alice", "Dave"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Project(schema, queryRows, tt.query)
			if err != nil {
				t.Fatalf("Project() error = %v", err)
			}
			if !reflect.DeepEqual(names(got), tt.want) {
				t.Errorf("Project() = %v, want %v", names(got), tt.want)
			}
		})
	}
}

func TestProject_UnknownKeys(t *testing.T) {
	schema := itemSchema()

	if _, err := Project(schema, queryRows, Query{Sort: Sort{Key: "color"}}); !errors.Is(err, ErrUnknownSortKey) {
		t.Errorf("unknown sort: error = %v, want ErrUnknownSortKey", err)
	}
	if _, err := Project(schema, queryRows, Query{Filters: map[string]string{"color": "red"}}); !errors.Is(err, ErrUnknownFilter) {
		t.Errorf("unknown filter: error = %v, want ErrUnknownFilter", err)
	}
}

func TestProject_Pure(t *testing.T) {
	schema := itemSchema()
	rows := schema.cloneAll(queryRows)
	q := Query{Search: "e", Sort: Sort{Key: "name", Direction: Descending}}

	first, err := Project(schema, rows, q)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	second, err := Project(schema, rows, q)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Project() not deterministic: %v vs %v", names(first), names(second))
	}
	if !reflect.DeepEqual(rows, queryRows) {
		t.Error("Project() modified its input")
	}

	// Results never alias the input
	first[0].Labels = append(first[0].Labels[:0], "changed")
	if !reflect.DeepEqual(rows, queryRows) {
		t.Error("Project() result aliases the input")
	}
}

func TestProject_ReverseIsExactReverse(t *testing.T) {
	schema := itemSchema()

	asc, err := Project(schema, queryRows, Query{Sort: Sort{Key: "name", Direction: Ascending}})
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	desc, err := Project(schema, queryRows, Query{Sort: Sort{Key: "name", Direction: Descending}})
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}

	reversed := slices.Clone(asc)
	slices.Reverse(reversed)
	if !reflect.DeepEqual(names(desc), names(reversed)) {
		t.Errorf("desc = %v, want %v", names(desc), names(reversed))
	}
}

func TestSortToggle(t *testing.T) {
	tests := []struct {
		name string
		from Sort
		key  string
		want Sort
	}{
		{"first selection", Sort{}, "name", Sort{Key: "name", Direction: Ascending}},
		{"same key reverses", Sort{Key: "name", Direction: Ascending}, "name", Sort{Key: "name", Direction: Descending}},
		{"same key again restores", Sort{Key: "name", Direction: Descending}, "name", Sort{Key: "name", Direction: Ascending}},
		{"new key resets", Sort{Key: "name", Direction: Descending}, "tag", Sort{Key: "tag", Direction: Ascending}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.Toggle(tt.key); got != tt.want {
				t.Errorf("Toggle(%q) = %+v, want %+v", tt.key, got, tt.want)
			}
		})
	}
}

func TestParseDirection(t *testing.T) {
	tests := map[string]Direction{
		"":           Ascending,
		"asc":        Ascending,
		"desc":       Descending,
		"DESC":       Descending,
		"descending": Descending,
		"sideways":   Ascending,
	}
	for in, want := range tests {
		if got := ParseDirection(in); got != want {
			t.Errorf("ParseDirection(%q) = %q, want %q", in, got, want)
		}
	}
}
