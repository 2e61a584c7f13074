package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goldpipe/pkg/models"
)

type fakeReader struct {
	rows map[string][][]interface{}
	errs map[string]error
}

func (f *fakeReader) Read(_ context.Context, dataset models.Dataset, _ string) ([][]interface{}, error) {
	if err := f.errs[dataset.Name]; err != nil {
		return nil, err
	}
	return f.rows[dataset.Name], nil
}

type fakeTx struct {
	dataset    string
	cleared    string
	written    int
	calls      int
	indexed    bool
	committed  bool
	rolledBack bool
	writeErr   error
}

func (f *fakeTx) EnsureSchema(_ context.Context, d models.Dataset) error {
	f.dataset = d.Name
	return nil
}

func (f *fakeTx) ClearScope(_ context.Context, _ models.Dataset, monthKey string) error {
	f.cleared = monthKey
	return nil
}

func (f *fakeTx) WriteBatch(_ context.Context, _ models.Dataset, rows [][]interface{}) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.calls++
	f.written += len(rows)
	return len(rows), nil
}

func (f *fakeTx) EnsureIndexes(_ context.Context, _ models.Dataset) error {
	f.indexed = true
	return nil
}

func (f *fakeTx) Commit() error   { f.committed = true; return nil }
func (f *fakeTx) Rollback() error { f.rolledBack = true; return nil }

type fakeWriter struct {
	txs []*fakeTx
}

func (f *fakeWriter) Begin(_ context.Context) (Tx, error) {
	tx := &fakeTx{}
	f.txs = append(f.txs, tx)
	return tx, nil
}

func newFakes() (*fakeReader, *fakeWriter) {
	return &fakeReader{
		rows: map[string][][]interface{}{},
		errs: map[string]error{},
	}, &fakeWriter{}
}

func TestRunSyncsSelectedDatasets(t *testing.T) {
	reader, writer := newFakes()
	reader.rows["dim_user"] = [][]interface{}{
		{"u1"}, {"u2"}, {"u3"},
	}

	results, err := NewOrchestrator(reader, writer).Run(context.Background(), []string{"dim_user"}, "")
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "dim_user", results[0].Dataset)
	assert.Equal(t, 3, results[0].Rows)
	assert.NoError(t, results[0].Err)

	require.Len(t, writer.txs, 1)
	assert.True(t, writer.txs[0].committed)
	assert.True(t, writer.txs[0].indexed)
	assert.False(t, writer.txs[0].rolledBack)
}

func TestRunMonthScopePassesMonthKey(t *testing.T) {
	reader, writer := newFakes()

	results, err := NewOrchestrator(reader, writer).
		Run(context.Background(), []string{"mart_city_month"}, "2023-05")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "2023-05-01", results[0].Scope)

	require.Len(t, writer.txs, 1)
	assert.Equal(t, "2023-05-01", writer.txs[0].cleared)
}

func TestRunInvalidMonth(t *testing.T) {
	reader, writer := newFakes()

	_, err := NewOrchestrator(reader, writer).
		Run(context.Background(), []string{"mart_city_month"}, "May 2023")
	assert.Error(t, err)
}

func TestRunContinuesPastFailedDataset(t *testing.T) {
	reader, writer := newFakes()
	reader.errs["mart_photo_counts"] = assert.AnError
	reader.rows["dim_user"] = [][]interface{}{{"u1"}}

	results, err := NewOrchestrator(reader, writer).
		Run(context.Background(), []string{"mart_photo_counts", "dim_user"}, "")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, 1, results[1].Rows)
	assert.True(t, Failed(results))
}

func TestRunRollsBackOnWriteFailure(t *testing.T) {
	reader, _ := newFakes()
	reader.rows["dim_user"] = [][]interface{}{{"u1"}}

	writer := &failingWriter{}
	results, err := NewOrchestrator(reader, writer).
		Run(context.Background(), []string{"dim_user"}, "")
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Error(t, results[0].Err)
	assert.True(t, writer.tx.rolledBack)
	assert.False(t, writer.tx.committed)
}

type failingWriter struct {
	tx *fakeTx
}

func (f *failingWriter) Begin(_ context.Context) (Tx, error) {
	f.tx = &fakeTx{writeErr: assert.AnError}
	return f.tx, nil
}

// A dataset with a read batch bound hands the writer several smaller
// batches inside the same transaction, losing nothing.
func TestWriteAllHonorsReadBatch(t *testing.T) {
	orchestrator := NewOrchestrator(nil, nil)
	tx := &fakeTx{}

	dataset := models.Dataset{
		Name:        "dim_user",
		TargetTable: "dim_user",
		Scope:       models.ScopeFullReplace,
		ReadBatch:   2,
	}
	rows := [][]interface{}{{"u1"}, {"u2"}, {"u3"}, {"u4"}, {"u5"}}

	written, err := orchestrator.writeAll(context.Background(), tx, dataset, "", rows)
	require.NoError(t, err)
	assert.Equal(t, 5, written)
	assert.Equal(t, 3, tx.calls)
	assert.Equal(t, 5, tx.written)
}

func TestSelectDatasetsDefaults(t *testing.T) {
	names, err := SelectDatasets(nil, false, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"mart_photo_counts", "dim_user"}, names)
}

func TestSelectDatasetsWithMonthIncludesCityMonth(t *testing.T) {
	names, err := SelectDatasets(nil, true, "2023-05")
	require.NoError(t, err)
	assert.Equal(t, []string{"mart_photo_counts", "dim_user", "mart_city_month"}, names)
}

func TestSelectDatasetsOnlyCityMonthRequiresMonth(t *testing.T) {
	_, err := SelectDatasets([]string{"mart_city_month"}, false, "")
	assert.Error(t, err)
}

func TestSelectDatasetsUnknownName(t *testing.T) {
	_, err := SelectDatasets([]string{"mart_unknown"}, false, "")
	assert.Error(t, err)
}

func TestSelectDatasetsOnlySubset(t *testing.T) {
	names, err := SelectDatasets([]string{"dim_user"}, false, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"dim_user"}, names)
}
