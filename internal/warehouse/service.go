package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"goldpipe/pkg/errors"
	"goldpipe/pkg/models"
)

const (
	connectTimeout = 30 * time.Second

	// Postgres caps one statement at 65535 bind parameters. Multi-row
	// inserts are chunked so a batch never crosses it.
	maxBindParams = 65535
)

// Service owns the warehouse connection pool. All writes for one sync call
// run inside a single transaction obtained from Begin, so a failed dataset
// never leaves the target table partially replaced.
type Service struct {
	db      *sql.DB
	schema  string
	maxRows int
}

// Connect opens and verifies a connection pool against the warehouse.
func Connect(ctx context.Context, cfg models.Warehouse, sync models.Sync) (*Service, error) {
	db, err := sql.Open("pgx", DSN(cfg))
	if err != nil {
		return nil, errors.ConnectionError("failed to open warehouse connection", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.ConnectionError(
			fmt.Sprintf("failed to reach warehouse at %s:%d", cfg.Host, cfg.Port), err)
	}

	maxRows := sync.MaxRowsPerInsert
	if maxRows <= 0 {
		maxRows = 10000
	}

	return &Service{db: db, schema: cfg.Schema, maxRows: maxRows}, nil
}

// DSN renders the warehouse connection string.
func DSN(cfg models.Warehouse) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// DB exposes the underlying pool for read-side consumers such as the
// exporter's catalog queries and COPY streams.
func (s *Service) DB() *sql.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Service) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Begin starts the transaction covering one dataset sync.
func (s *Service) Begin(ctx context.Context) (*SyncTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSQLTransaction, "failed to begin sync transaction")
	}
	return &SyncTx{tx: tx, schema: s.schema, maxRows: s.maxRows}, nil
}

// SyncTx is one dataset sync in flight. Every DDL and DML statement it runs
// happens on the same transaction; Commit makes the replacement visible
// atomically and Rollback discards it entirely.
type SyncTx struct {
	tx      *sql.Tx
	schema  string
	maxRows int
}

func (t *SyncTx) qualified(table string) string {
	return fmt.Sprintf("%s.%s", t.schema, table)
}

// EnsureSchema creates the target schema and table when they do not exist.
// Existing tables are left untouched, including any manual type changes.
func (t *SyncTx) EnsureSchema(ctx context.Context, dataset models.Dataset) error {
	if _, err := t.tx.ExecContext(ctx,
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", t.schema)); err != nil {
		return errors.SQLError("failed to ensure schema", t.schema, err)
	}

	defs := make([]string, 0, len(dataset.Columns)+1)
	for _, col := range dataset.Columns {
		defs = append(defs, fmt.Sprintf("%s %s", col.Name, col.Type))
	}
	if len(dataset.PrimaryKey) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(dataset.PrimaryKey, ", ")))
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		t.qualified(dataset.TargetTable), strings.Join(defs, ", "))
	if _, err := t.tx.ExecContext(ctx, ddl); err != nil {
		return errors.SQLError(
			fmt.Sprintf("failed to ensure table %s", dataset.TargetTable), ddl, err)
	}

	return nil
}

// ClearScope removes the rows the incoming batch replaces: the matching
// partition for key-range datasets, everything for full-replace ones.
func (t *SyncTx) ClearScope(ctx context.Context, dataset models.Dataset, monthKey string) error {
	table := t.qualified(dataset.TargetTable)

	switch dataset.Scope {
	case models.ScopeKeyRange:
		if monthKey == "" {
			return errors.ValidationError("month", monthKey,
				fmt.Sprintf("dataset %s is month-scoped", dataset.Name))
		}
		query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", table, dataset.ScopeColumn)
		if _, err := t.tx.ExecContext(ctx, query, monthKey); err != nil {
			return errors.SQLError(
				fmt.Sprintf("failed to clear %s scope for %s", dataset.ScopeColumn, dataset.Name),
				query, err)
		}
	case models.ScopeFullReplace:
		query := fmt.Sprintf("TRUNCATE TABLE %s", table)
		if _, err := t.tx.ExecContext(ctx, query); err != nil {
			return errors.SQLError(
				fmt.Sprintf("failed to truncate %s", dataset.TargetTable), query, err)
		}
	default:
		return errors.ValidationError("scope", string(dataset.Scope), "unknown replace scope")
	}

	return nil
}

// WriteBatch inserts the rows in chunks of multi-row INSERT statements.
// An empty batch is a successful no-op: the cleared scope stays empty.
func (t *SyncTx) WriteBatch(ctx context.Context, dataset models.Dataset, rows [][]interface{}) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	ncols := len(dataset.Columns)
	for i, row := range rows {
		if len(row) != ncols {
			return 0, errors.New(errors.ErrCodeMalformedRow,
				fmt.Sprintf("row %d of dataset %s has %d values, expected %d",
					i, dataset.Name, len(row), ncols))
		}
	}

	chunk := chunkSize(t.maxRows, ncols)

	written := 0
	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		part := rows[start:end]

		query := buildInsert(t.qualified(dataset.TargetTable), dataset.ColumnNames(), len(part))
		args := make([]interface{}, 0, len(part)*ncols)
		for _, row := range part {
			args = append(args, row...)
		}

		if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
			return written, errors.SQLError(
				fmt.Sprintf("failed to insert batch into %s", dataset.TargetTable), query, err)
		}
		written += len(part)
	}

	return written, nil
}

// EnsureIndexes creates the dataset's secondary indexes when missing.
func (t *SyncTx) EnsureIndexes(ctx context.Context, dataset models.Dataset) error {
	for _, col := range dataset.Indexes {
		query := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
			dataset.TargetTable, col, t.qualified(dataset.TargetTable), col)
		if _, err := t.tx.ExecContext(ctx, query); err != nil {
			return errors.SQLError(
				fmt.Sprintf("failed to ensure index on %s(%s)", dataset.TargetTable, col),
				query, err)
		}
	}
	return nil
}

// Commit publishes the sync.
func (t *SyncTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeSQLTransaction, "failed to commit sync transaction")
	}
	return nil
}

// Rollback discards the sync. Rolling back an already finished transaction
// is a no-op.
func (t *SyncTx) Rollback() error {
	err := t.tx.Rollback()
	if err != nil && err != sql.ErrTxDone {
		return errors.Wrap(err, errors.ErrCodeSQLTransaction, "failed to roll back sync transaction")
	}
	return nil
}

// chunkSize caps a chunk at both the configured row bound and the statement
// parameter limit.
func chunkSize(maxRows, ncols int) int {
	chunk := maxRows
	if limit := maxBindParams / ncols; chunk > limit {
		chunk = limit
	}
	if chunk < 1 {
		chunk = 1
	}
	return chunk
}

// buildInsert renders a multi-row INSERT with positional placeholders.
func buildInsert(table string, columns []string, nrows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))

	placeholder := 1
	for row := 0; row < nrows; row++ {
		if row > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for col := 0; col < len(columns); col++ {
			if col > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", placeholder)
			placeholder++
		}
		b.WriteString(")")
	}

	return b.String()
}
