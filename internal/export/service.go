package export

import (
	"compress/gzip"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"goldpipe/internal/common"
	"goldpipe/pkg/errors"
	"goldpipe/pkg/models"
)

// Options selects what the export run produces.
type Options struct {
	CSVOnly         bool
	SQLOnly         bool
	Gzip            bool
	OutDir          string
	Schema          string // overrides the configured schema when set
	Include         []string
	Exclude         []string
	NoDDL           bool
	ForceDockerDump bool
}

// FileResult is the outcome of one exported artifact.
type FileResult struct {
	Object string
	File   string
	Err    error
}

// Summary collects everything one export run produced.
type Summary struct {
	Schema string
	CSVDir string
	SQLDir string
	Files  []FileResult
}

// Failed reports whether any artifact in the run failed.
func (s *Summary) Failed() bool {
	for _, f := range s.Files {
		if f.Err != nil {
			return true
		}
	}
	return false
}

// Service exports the warehouse schema as CSV files and SQL dumps. The
// database handle must be backed by the pgx driver: CSV streaming drops to
// the underlying pgx connection for COPY TO STDOUT.
type Service struct {
	db  *sql.DB
	cfg models.Warehouse
}

// NewService creates an exporter over an open warehouse connection.
func NewService(db *sql.DB, cfg models.Warehouse) *Service {
	return &Service{db: db, cfg: cfg}
}

// Run performs one export. Per-object failures are recorded in the summary
// and skipped; only setup problems (catalog listing, directory creation,
// whole-schema dumps) abort the run.
func (s *Service) Run(ctx context.Context, opts Options) (*Summary, error) {
	schema := opts.Schema
	if schema == "" {
		schema = s.cfg.Schema
	}

	ts := time.Now().Format("20060102_150405")
	summary := &Summary{Schema: schema}

	tables, err := ListObjects(ctx, s.db, schema, KindTable)
	if err != nil {
		return nil, err
	}
	selected := Filter(tables, opts.Include, opts.Exclude)

	if !opts.SQLOnly {
		summary.CSVDir = filepath.Join(opts.OutDir, "csv_"+ts)
		if err := os.MkdirAll(summary.CSVDir, common.DirPermissionNormal); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "failed to create CSV directory")
		}
		for _, table := range selected {
			file, err := s.exportCSV(ctx, table, summary.CSVDir, opts.Gzip)
			summary.Files = append(summary.Files, FileResult{
				Object: table.Qualified(), File: file, Err: err,
			})
		}
	}

	if !opts.CSVOnly {
		summary.SQLDir = filepath.Join(opts.OutDir, "sql_"+ts)
		ddlDir := filepath.Join(summary.SQLDir, "ddl")
		if err := os.MkdirAll(ddlDir, common.DirPermissionNormal); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "failed to create SQL directory")
		}

		runner := &dumpRunner{cfg: s.cfg, forceDocker: opts.ForceDockerDump}

		for _, dump := range schemaDumpArgs(schema) {
			outPath := filepath.Join(summary.SQLDir, dump.File)
			if err := runner.run(ctx, dump.Args, outPath); err != nil {
				return summary, err
			}
			summary.Files = append(summary.Files, FileResult{Object: schema, File: outPath})
		}

		if !opts.NoDDL {
			objects := append([]Object(nil), tables...)
			for _, kind := range []ObjectKind{KindView, KindMatView} {
				more, err := ListObjects(ctx, s.db, schema, kind)
				if err != nil {
					return summary, err
				}
				objects = append(objects, more...)
			}
			for _, o := range objects {
				outPath := filepath.Join(ddlDir, objectDDLFile(o))
				err := runner.run(ctx, objectDumpArgs(o), outPath)
				summary.Files = append(summary.Files, FileResult{
					Object: o.Qualified(), File: outPath, Err: err,
				})
			}
		}

		if err := writeManifest(summary.SQLDir, ts, s.cfg, schema, opts.NoDDL); err != nil {
			return summary, err
		}
		if err := writeRestoreHelp(summary.SQLDir, s.cfg.Database); err != nil {
			return summary, err
		}
	}

	return summary, nil
}

// exportCSV streams one table out as a CSV file, optionally gzipped.
func (s *Service) exportCSV(ctx context.Context, table Object, dir string, compress bool) (string, error) {
	name := fmt.Sprintf("%s.%s.csv",
		common.SanitizeFilename(table.Schema), common.SanitizeFilename(table.Name))
	if compress {
		name += ".gz"
	}
	path := filepath.Join(dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, common.FilePermissionNormal)
	if err != nil {
		return path, errors.Wrap(err, errors.ErrCodeFileOperation, "failed to create CSV file")
	}

	copyErr := func() error {
		conn, err := s.db.Conn(ctx)
		if err != nil {
			return errors.ConnectionError("failed to acquire connection for COPY", err)
		}
		defer conn.Close()

		copySQL := fmt.Sprintf("COPY (SELECT * FROM %s.%s) TO STDOUT WITH CSV HEADER",
			quoteIdent(table.Schema), quoteIdent(table.Name))

		return conn.Raw(func(driverConn interface{}) error {
			pgxConn := driverConn.(*stdlib.Conn).Conn()
			if compress {
				gz := gzip.NewWriter(file)
				if _, err := pgxConn.PgConn().CopyTo(ctx, gz, copySQL); err != nil {
					gz.Close()
					return err
				}
				return gz.Close()
			}
			_, err := pgxConn.PgConn().CopyTo(ctx, file, copySQL)
			return err
		})
	}()

	if closeErr := file.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(path)
		return path, errors.Wrap(copyErr, errors.ErrCodeExportFailed,
			fmt.Sprintf("failed to export %s", table.Qualified()))
	}
	return path, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
