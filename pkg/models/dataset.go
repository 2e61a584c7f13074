package models

import (
	"fmt"
	"time"
)

// ReplaceScope selects how a sync call clears the target table before
// reinserting rows. Exactly one scope is active per sync call.
type ReplaceScope string

const (
	// ScopeKeyRange deletes only the rows matching a partition key value
	// (e.g. one review month) before inserting the replacement rows.
	ScopeKeyRange ReplaceScope = "by-key-range"
	// ScopeFullReplace truncates the whole table before inserting.
	ScopeFullReplace ReplaceScope = "full-replace"
)

// Column describes one target table column in insert order.
type Column struct {
	Name string
	Type string // Postgres column type, e.g. "TEXT", "DOUBLE PRECISION"
}

// Dataset is the fixed descriptor of one gold dataset: where its rows come
// from, which warehouse table they land in, and how the replace scope is
// chosen. Descriptors are defined once in the sync registry and never
// persisted.
type Dataset struct {
	Name        string
	TargetTable string
	Columns     []Column
	PrimaryKey  []string
	Scope       ReplaceScope
	ScopeColumn string // partition key column, required for ScopeKeyRange

	// SourceQuery reads the snapshot. For month-scoped datasets it carries
	// one positional parameter bound to the first day of the month.
	SourceQuery string

	// Snapshot is the dataset's parquet file relative to the gold dir.
	Snapshot string

	// Materialize recomputes the snapshot from upstream files when it does
	// not exist yet. Empty for datasets whose snapshot is always produced
	// upstream. Statements run in order; recomputation is idempotent.
	Materialize []string

	// Upstreams lists the files Materialize reads, as {gold}/{silver}
	// templates. A missing upstream makes the dataset fail fast instead of
	// producing an empty snapshot.
	Upstreams []string

	// Indexes lists secondary index columns created after a full sync.
	Indexes []string

	// ReadBatch bounds how many rows are handed to the writer at a time.
	// Zero means the whole dataset in one call; large dimensions set it to
	// keep statement and memory pressure flat.
	ReadBatch int
}

// ColumnNames returns the column names in insert order.
func (d Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// MonthScoped reports whether the dataset requires a month parameter.
func (d Dataset) MonthScoped() bool {
	return d.Scope == ScopeKeyRange
}

// ParseMonth normalizes a YYYY-MM scope parameter to the first day of the
// month, which is how range predicates are keyed in the warehouse.
func ParseMonth(month string) (time.Time, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q, expected YYYY-MM: %w", month, err)
	}
	return t, nil
}

// MonthKey renders the normalized first-of-month date used in key-range
// predicates and parquet filters.
func MonthKey(t time.Time) string {
	return t.Format("2006-01-02")
}
