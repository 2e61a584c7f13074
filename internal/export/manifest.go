package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"goldpipe/internal/common"
	"goldpipe/pkg/errors"
	"goldpipe/pkg/models"
)

// writeManifest records what the SQL export contains and where it came from.
func writeManifest(sqlDir, ts string, cfg models.Warehouse, schema string, noDDL bool) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s export @ %s\n", schema, ts)
	fmt.Fprintf(&b, "Host=%s Port=%d DB=%s Schema=%s\n", cfg.Host, cfg.Port, cfg.Database, schema)
	b.WriteString("Files:\n")

	entries, err := filepath.Glob(filepath.Join(sqlDir, "*.sql"))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "failed to enumerate dump files")
	}
	sort.Strings(entries)
	for _, entry := range entries {
		fmt.Fprintf(&b, "  - %s\n", filepath.Base(entry))
	}
	if !noDDL {
		b.WriteString("Per-object DDL under ddl/\n")
	}

	path := filepath.Join(sqlDir, "MANIFEST.txt")
	if err := os.WriteFile(path, []byte(b.String()), common.FilePermissionNormal); err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "failed to write manifest")
	}
	return nil
}

// writeRestoreHelp writes psql invocations for replaying the dumps.
func writeRestoreHelp(sqlDir, database string) error {
	var b strings.Builder
	b.WriteString("# Restore examples\n")
	b.WriteString("# 1) schema only\n")
	fmt.Fprintf(&b, "psql -h <host> -p <port> -U <user> -d %s -f schema_only.sql\n\n", database)
	b.WriteString("# 2) data only\n")
	fmt.Fprintf(&b, "psql -h <host> -p <port> -U <user> -d %s -f data_only.sql\n\n", database)
	b.WriteString("# 3) full dump\n")
	fmt.Fprintf(&b, "psql -h <host> -p <port> -U <user> -d %s -f full_dump.sql\n", database)

	path := filepath.Join(sqlDir, "RESTORE_HELP.txt")
	if err := os.WriteFile(path, []byte(b.String()), common.FilePermissionNormal); err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "failed to write restore helper")
	}
	return nil
}
