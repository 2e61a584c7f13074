package gold

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"goldpipe/internal/common"
	"goldpipe/pkg/errors"
	"goldpipe/pkg/models"
)

// Reader reads gold parquet snapshots through an in-memory DuckDB engine.
// It never mutates the snapshots it is handed; the only writes it performs
// are idempotent materializations of derived snapshots that do not exist yet.
type Reader struct {
	cfg models.Gold
	db  *sql.DB
}

// NewReader creates a reader over the configured gold and silver directories.
func NewReader(cfg models.Gold) *Reader {
	return &Reader{cfg: cfg}
}

// Open starts the embedded engine. An empty DSN is an in-memory database;
// nothing is persisted between runs.
func (r *Reader) Open() error {
	cleaned, err := common.CleanPath(r.cfg.Dir)
	if err != nil {
		return errors.ConfigError(fmt.Sprintf("invalid gold directory %q", r.cfg.Dir), "gold.dir")
	}
	r.cfg.Dir = cleaned

	cleaned, err = common.CleanPath(r.cfg.SilverDir)
	if err != nil {
		return errors.ConfigError(fmt.Sprintf("invalid silver directory %q", r.cfg.SilverDir), "gold.silver_dir")
	}
	r.cfg.SilverDir = cleaned

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return errors.SQLError("failed to open embedded engine", "", err)
	}
	r.db = db
	return nil
}

// Close releases the embedded engine.
func (r *Reader) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// SnapshotPath returns the absolute location of a dataset's parquet snapshot.
func (r *Reader) SnapshotPath(dataset models.Dataset) string {
	return filepath.Join(r.cfg.Dir, dataset.Snapshot)
}

// Read ensures the dataset's snapshot exists and returns its rows in the
// dataset's column order. monthKey must be the first-of-month date string for
// month-scoped datasets and empty otherwise.
func (r *Reader) Read(ctx context.Context, dataset models.Dataset, monthKey string) ([][]interface{}, error) {
	if r.db == nil {
		return nil, errors.New(errors.ErrCodeScanFailed, "reader is not open")
	}

	if err := r.ensureSnapshot(ctx, dataset); err != nil {
		return nil, err
	}

	query := r.expand(dataset.SourceQuery, dataset)

	var rows *sql.Rows
	var err error
	if dataset.MonthScoped() {
		rows, err = r.db.QueryContext(ctx, query, monthKey)
	} else {
		rows, err = r.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeScanFailed,
			fmt.Sprintf("failed to scan snapshot for dataset %s", dataset.Name)).
			WithContext("snapshot", r.SnapshotPath(dataset))
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeScanFailed, "failed to resolve snapshot columns")
	}
	if len(columns) != len(dataset.Columns) {
		return nil, errors.New(errors.ErrCodeScanFailed,
			fmt.Sprintf("snapshot for %s has %d columns, expected %d",
				dataset.Name, len(columns), len(dataset.Columns)))
	}

	var result [][]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeScanFailed,
				fmt.Sprintf("failed to read row from dataset %s", dataset.Name))
		}
		result = append(result, values)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeScanFailed,
			fmt.Sprintf("failed to read dataset %s", dataset.Name))
	}

	return result, nil
}

// ensureSnapshot makes the dataset's parquet file available, recomputing it
// from its upstreams when the dataset defines a materialization. A dataset
// without one must already have its snapshot on disk.
func (r *Reader) ensureSnapshot(ctx context.Context, dataset models.Dataset) error {
	path := r.SnapshotPath(dataset)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if len(dataset.Materialize) == 0 {
		return errors.SnapshotError(path).WithContext("dataset", dataset.Name)
	}

	for _, upstream := range dataset.Upstreams {
		upstreamPath := r.expandPath(upstream)
		if _, err := os.Stat(upstreamPath); err != nil {
			return errors.SnapshotError(upstreamPath).
				WithContext("dataset", dataset.Name).
				WithContext("derived_snapshot", path)
		}
	}

	for _, stmt := range dataset.Materialize {
		if _, err := r.db.ExecContext(ctx, r.expand(stmt, dataset)); err != nil {
			return errors.Wrap(err, errors.ErrCodeMaterializationFailed,
				fmt.Sprintf("failed to materialize snapshot for dataset %s", dataset.Name)).
				WithContext("snapshot", path)
		}
	}

	return nil
}

// expand substitutes the directory and snapshot placeholders in a registry
// SQL template. Paths are embedded as SQL string literals, so single quotes
// are doubled.
func (r *Reader) expand(template string, dataset models.Dataset) string {
	replacer := strings.NewReplacer(
		"{snapshot}", quotePath(r.SnapshotPath(dataset)),
		"{gold}", quotePath(r.cfg.Dir),
		"{silver}", quotePath(r.cfg.SilverDir),
	)
	return replacer.Replace(template)
}

// expandPath substitutes directory placeholders in an upstream file template.
func (r *Reader) expandPath(template string) string {
	replacer := strings.NewReplacer(
		"{gold}", r.cfg.Dir,
		"{silver}", r.cfg.SilverDir,
	)
	return filepath.Clean(replacer.Replace(template))
}

func quotePath(path string) string {
	return strings.ReplaceAll(path, "'", "''")
}
