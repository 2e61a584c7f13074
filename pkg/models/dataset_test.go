package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMonth(t *testing.T) {
	parsed, err := ParseMonth("2023-05")
	require.NoError(t, err)
	assert.Equal(t, "2023-05-01", MonthKey(parsed))
}

func TestParseMonthRejectsOtherFormats(t *testing.T) {
	for _, input := range []string{"2023-5", "2023/05", "May 2023", "2023-05-01", ""} {
		_, err := ParseMonth(input)
		assert.Error(t, err, input)
	}
}

func TestColumnNamesPreservesOrder(t *testing.T) {
	d := Dataset{Columns: []Column{
		{Name: "state", Type: "TEXT"},
		{Name: "city", Type: "TEXT"},
		{Name: "reviews", Type: "BIGINT"},
	}}
	assert.Equal(t, []string{"state", "city", "reviews"}, d.ColumnNames())
}

func TestMonthScoped(t *testing.T) {
	assert.True(t, Dataset{Scope: ScopeKeyRange}.MonthScoped())
	assert.False(t, Dataset{Scope: ScopeFullReplace}.MonthScoped())
}
