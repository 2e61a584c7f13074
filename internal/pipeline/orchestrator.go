package pipeline

import (
	"context"
	"fmt"
	"time"

	"goldpipe/internal/warehouse"
	"goldpipe/pkg/models"
)

// Reader yields a dataset's rows from the gold store.
type Reader interface {
	Read(ctx context.Context, dataset models.Dataset, monthKey string) ([][]interface{}, error)
}

// Tx is one dataset sync transaction.
type Tx interface {
	EnsureSchema(ctx context.Context, dataset models.Dataset) error
	ClearScope(ctx context.Context, dataset models.Dataset, monthKey string) error
	WriteBatch(ctx context.Context, dataset models.Dataset, rows [][]interface{}) (int, error)
	EnsureIndexes(ctx context.Context, dataset models.Dataset) error
	Commit() error
	Rollback() error
}

// Writer hands out sync transactions against the warehouse.
type Writer interface {
	Begin(ctx context.Context) (Tx, error)
}

// NewWarehouseWriter adapts the warehouse service to the Writer interface.
func NewWarehouseWriter(service *warehouse.Service) Writer {
	return serviceWriter{service: service}
}

type serviceWriter struct {
	service *warehouse.Service
}

func (w serviceWriter) Begin(ctx context.Context) (Tx, error) {
	return w.service.Begin(ctx)
}

// Result records the outcome of one dataset sync.
type Result struct {
	Dataset  string
	Scope    string
	Rows     int
	Duration time.Duration
	Err      error
}

// Failed reports whether any dataset in the run failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if r.Err != nil {
			return true
		}
	}
	return false
}

// Orchestrator drives dataset syncs end to end: read the snapshot, then
// replace the target table's scope inside one transaction.
type Orchestrator struct {
	reader Reader
	writer Writer
}

// NewOrchestrator wires a gold reader to a warehouse writer.
func NewOrchestrator(reader Reader, writer Writer) *Orchestrator {
	return &Orchestrator{reader: reader, writer: writer}
}

// Run syncs the named datasets in order. Datasets are independent: a failure
// is recorded in its Result and the run moves on to the next dataset. The
// returned error covers only selection problems, never per-dataset failures.
func (o *Orchestrator) Run(ctx context.Context, names []string, month string) ([]Result, error) {
	var monthKey string
	if month != "" {
		parsed, err := models.ParseMonth(month)
		if err != nil {
			return nil, err
		}
		monthKey = models.MonthKey(parsed)
	}

	results := make([]Result, 0, len(names))
	for _, name := range names {
		dataset, ok := Registry(name)
		if !ok {
			return results, fmt.Errorf("unknown dataset %q", name)
		}

		scope := "full"
		key := ""
		if dataset.MonthScoped() {
			scope = monthKey
			key = monthKey
		}

		start := time.Now()
		rows, err := o.syncOne(ctx, dataset, key)
		results = append(results, Result{
			Dataset:  name,
			Scope:    scope,
			Rows:     rows,
			Duration: time.Since(start),
			Err:      err,
		})
	}

	return results, nil
}

func (o *Orchestrator) syncOne(ctx context.Context, dataset models.Dataset, monthKey string) (int, error) {
	rows, err := o.reader.Read(ctx, dataset, monthKey)
	if err != nil {
		return 0, err
	}

	tx, err := o.writer.Begin(ctx)
	if err != nil {
		return 0, err
	}

	written, err := o.writeAll(ctx, tx, dataset, monthKey, rows)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return written, nil
}

func (o *Orchestrator) writeAll(ctx context.Context, tx Tx, dataset models.Dataset, monthKey string, rows [][]interface{}) (int, error) {
	if err := tx.EnsureSchema(ctx, dataset); err != nil {
		return 0, err
	}
	if err := tx.ClearScope(ctx, dataset, monthKey); err != nil {
		return 0, err
	}

	batch := dataset.ReadBatch
	if batch <= 0 {
		batch = len(rows)
	}
	written := 0
	for start := 0; start < len(rows); start += batch {
		end := start + batch
		if end > len(rows) {
			end = len(rows)
		}
		n, err := tx.WriteBatch(ctx, dataset, rows[start:end])
		if err != nil {
			return written, err
		}
		written += n
	}

	if err := tx.EnsureIndexes(ctx, dataset); err != nil {
		return 0, err
	}
	return written, nil
}
