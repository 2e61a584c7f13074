package common

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanPath(t *testing.T) {
	t.Run("rejects traversal", func(t *testing.T) {
		_, err := CleanPath("../../etc/passwd")
		assert.Error(t, err)
	})

	t.Run("resolves relative paths", func(t *testing.T) {
		p, err := CleanPath("exports")
		assert.NoError(t, err)
		assert.True(t, filepath.IsAbs(p))
	})
}

func TestValidatePath(t *testing.T) {
	base := t.TempDir()

	t.Run("inside base", func(t *testing.T) {
		p, err := ValidatePath(filepath.Join(base, "csv_20230501", "dim_user.csv"), base)
		assert.NoError(t, err)
		assert.Contains(t, p, base)
	})

	t.Run("outside base", func(t *testing.T) {
		_, err := ValidatePath("/tmp/elsewhere", filepath.Join(base, "exports"))
		assert.Error(t, err)
	})
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"yelp_gold.dim_user", "yelp_gold.dim_user"},
		{"weird name/with:chars", "weird_name_with_chars"},
		{"mart-city-month", "mart-city-month"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, SanitizeFilename(tt.in))
	}
}
