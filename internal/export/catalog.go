package export

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"goldpipe/pkg/errors"
)

// ObjectKind tells the exporter which DDL suffix and dump arguments an
// object needs.
type ObjectKind string

const (
	KindTable   ObjectKind = "table"
	KindView    ObjectKind = "view"
	KindMatView ObjectKind = "mview"
)

// Object is one exportable relation in the target schema.
type Object struct {
	Schema string
	Name   string
	Kind   ObjectKind
}

// Qualified returns the schema-qualified name.
func (o Object) Qualified() string {
	return o.Schema + "." + o.Name
}

var catalogQueries = map[ObjectKind]string{
	KindTable: `SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY 1, 2`,
	KindView: `SELECT table_schema, table_name
		FROM information_schema.views
		WHERE table_schema = $1
		ORDER BY 1, 2`,
	KindMatView: `SELECT schemaname, matviewname
		FROM pg_matviews
		WHERE schemaname = $1
		ORDER BY 1, 2`,
}

// ListObjects enumerates the schema's relations of one kind.
func ListObjects(ctx context.Context, db *sql.DB, schema string, kind ObjectKind) ([]Object, error) {
	query, ok := catalogQueries[kind]
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("unknown object kind %q", kind))
	}

	rows, err := db.QueryContext(ctx, query, schema)
	if err != nil {
		return nil, errors.SQLError(fmt.Sprintf("failed to list %ss", kind), query, err)
	}
	defer rows.Close()

	var objects []Object
	for rows.Next() {
		var o Object
		if err := rows.Scan(&o.Schema, &o.Name); err != nil {
			return nil, errors.SQLError("failed to read catalog row", query, err)
		}
		o.Kind = kind
		objects = append(objects, o)
	}
	return objects, rows.Err()
}

// Filter applies include/exclude patterns to a set of objects. Patterns are
// case-insensitive and match either the bare name or the schema-qualified
// one. Include runs first, so including and excluding the same name yields
// nothing.
func Filter(objects []Object, include, exclude []string) []Object {
	filtered := objects
	if len(include) > 0 {
		var kept []Object
		for _, o := range filtered {
			if matches(o, include) {
				kept = append(kept, o)
			}
		}
		filtered = kept
	}
	if len(exclude) > 0 {
		var kept []Object
		for _, o := range filtered {
			if !matches(o, exclude) {
				kept = append(kept, o)
			}
		}
		filtered = kept
	}
	return filtered
}

func matches(o Object, patterns []string) bool {
	qualified := strings.ToLower(o.Qualified())
	bare := strings.ToLower(o.Name)
	for _, p := range patterns {
		p = strings.ToLower(p)
		if strings.Contains(p, ".") {
			if qualified == p {
				return true
			}
		} else if bare == p {
			return true
		}
	}
	return false
}
