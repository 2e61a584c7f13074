package gold

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goldpipe/pkg/errors"
	"goldpipe/pkg/models"
)

func testReader(t *testing.T) (*Reader, string) {
	dir := t.TempDir()
	cfg := models.Gold{
		Dir:       filepath.Join(dir, "gold"),
		SilverDir: filepath.Join(dir, "silver"),
	}
	return NewReader(cfg), dir
}

func TestSnapshotPath(t *testing.T) {
	reader, dir := testReader(t)

	dataset := models.Dataset{Name: "dim_user", Snapshot: "dim_user.parquet"}
	assert.Equal(t, filepath.Join(dir, "gold", "dim_user.parquet"), reader.SnapshotPath(dataset))
}

func TestExpandSubstitutesPlaceholders(t *testing.T) {
	reader, dir := testReader(t)

	dataset := models.Dataset{Snapshot: "mart_photo_counts.parquet"}
	query := reader.expand(
		"SELECT * FROM read_parquet('{snapshot}') JOIN read_parquet('{silver}/business/part.parquet')",
		dataset,
	)

	assert.Contains(t, query, filepath.Join(dir, "gold", "mart_photo_counts.parquet"))
	assert.Contains(t, query, filepath.Join(dir, "silver"))
	assert.NotContains(t, query, "{snapshot}")
	assert.NotContains(t, query, "{silver}")
}

func TestExpandEscapesQuotesInPaths(t *testing.T) {
	reader := NewReader(models.Gold{Dir: "/data/o'brien/gold"})

	query := reader.expand("read_parquet('{snapshot}')", models.Dataset{Snapshot: "x.parquet"})
	assert.Contains(t, query, "o''brien")
}

func TestMissingSnapshotWithoutMaterializationIsFatal(t *testing.T) {
	reader, _ := testReader(t)

	dataset := models.Dataset{Name: "mart_city_month", Snapshot: "mart_city_month.parquet"}
	err := reader.ensureSnapshot(context.Background(), dataset)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSnapshotMissing, errors.GetErrorCode(err))
}

func TestMissingUpstreamIsFatal(t *testing.T) {
	reader, _ := testReader(t)

	dataset := models.Dataset{
		Name:        "mart_photo_counts",
		Snapshot:    "mart_photo_counts.parquet",
		Materialize: []string{"COPY (SELECT 1) TO '{snapshot}'"},
		Upstreams:   []string{"{gold}/dim_photo_files_with_url.parquet"},
	}

	err := reader.ensureSnapshot(context.Background(), dataset)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSnapshotMissing, errors.GetErrorCode(err))
}

func TestReadRequiresOpen(t *testing.T) {
	reader, _ := testReader(t)

	_, err := reader.Read(context.Background(), models.Dataset{Name: "dim_user"}, "")
	assert.Error(t, err)
}
