package export

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goldpipe/pkg/models"
)

func objects(names ...string) []Object {
	out := make([]Object, len(names))
	for i, n := range names {
		out[i] = Object{Schema: "yelp_gold", Name: n, Kind: KindTable}
	}
	return out
}

func names(objs []Object) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.Name
	}
	return out
}

func TestFilterNoPatternsKeepsAll(t *testing.T) {
	all := objects("dim_user", "mart_city_month")
	assert.Equal(t, all, Filter(all, nil, nil))
}

func TestFilterInclude(t *testing.T) {
	all := objects("dim_user", "mart_city_month", "mart_photo_counts")

	kept := Filter(all, []string{"dim_user", "MART_PHOTO_COUNTS"}, nil)
	assert.Equal(t, []string{"dim_user", "mart_photo_counts"}, names(kept))
}

func TestFilterSchemaQualifiedInclude(t *testing.T) {
	all := objects("dim_user")

	assert.Len(t, Filter(all, []string{"yelp_gold.dim_user"}, nil), 1)
	assert.Len(t, Filter(all, []string{"other.dim_user"}, nil), 0)
}

func TestFilterExclude(t *testing.T) {
	all := objects("dim_user", "mart_city_month")

	kept := Filter(all, nil, []string{"dim_user"})
	assert.Equal(t, []string{"mart_city_month"}, names(kept))
}

// Including and excluding the same table yields nothing: include narrows the
// set first, exclude then removes the survivor.
func TestFilterIncludeAndExcludeSameName(t *testing.T) {
	all := objects("dim_user", "mart_city_month")

	assert.Empty(t, Filter(all, []string{"dim_user"}, []string{"dim_user"}))
}

func TestListObjectsTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT table_schema, table_name\s+FROM information_schema\.tables`).
		WithArgs("yelp_gold").
		WillReturnRows(sqlmock.NewRows([]string{"table_schema", "table_name"}).
			AddRow("yelp_gold", "dim_user").
			AddRow("yelp_gold", "mart_city_month"))

	tables, err := ListObjects(context.Background(), db, "yelp_gold", KindTable)
	require.NoError(t, err)
	assert.Equal(t, []string{"dim_user", "mart_city_month"}, names(tables))
	assert.Equal(t, KindTable, tables[0].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListObjectsMatViews(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM pg_matviews`).
		WithArgs("yelp_gold").
		WillReturnRows(sqlmock.NewRows([]string{"schemaname", "matviewname"}).
			AddRow("yelp_gold", "mv_top_cities"))

	views, err := ListObjects(context.Background(), db, "yelp_gold", KindMatView)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "yelp_gold.mv_top_cities", views[0].Qualified())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestObjectDDLFile(t *testing.T) {
	assert.Equal(t, "yelp_gold.dim_user.table.sql",
		objectDDLFile(Object{Schema: "yelp_gold", Name: "dim_user", Kind: KindTable}))
	assert.Equal(t, "yelp_gold.v_monthly.view.sql",
		objectDDLFile(Object{Schema: "yelp_gold", Name: "v_monthly", Kind: KindView}))
	assert.Equal(t, "yelp_gold.mv_top.mview.sql",
		objectDDLFile(Object{Schema: "yelp_gold", Name: "mv_top", Kind: KindMatView}))
}

func TestSchemaDumpArgs(t *testing.T) {
	dumps := schemaDumpArgs("yelp_gold")
	require.Len(t, dumps, 3)
	assert.Equal(t, []string{"-n", "yelp_gold", "-s"}, dumps[0].Args)
	assert.Equal(t, "schema_only.sql", dumps[0].File)
	assert.Equal(t, []string{"-n", "yelp_gold", "-a"}, dumps[1].Args)
	assert.Equal(t, "data_only.sql", dumps[1].File)
	assert.Equal(t, []string{"-n", "yelp_gold"}, dumps[2].Args)
	assert.Equal(t, "full_dump.sql", dumps[2].File)
}

func TestObjectDumpArgs(t *testing.T) {
	args := objectDumpArgs(Object{Schema: "yelp_gold", Name: "dim_user", Kind: KindTable})
	assert.Equal(t, []string{"-s", "-t", "yelp_gold.dim_user"}, args)
}

func TestWriteManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema_only.sql"), []byte("--"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "full_dump.sql"), []byte("--"), 0644))

	cfg := models.Warehouse{Host: "localhost", Port: 5432, Database: "yelp_gold"}
	require.NoError(t, writeManifest(dir, "20230501_120000", cfg, "yelp_gold", false))

	content, err := os.ReadFile(filepath.Join(dir, "MANIFEST.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "yelp_gold export @ 20230501_120000")
	assert.Contains(t, string(content), "schema_only.sql")
	assert.Contains(t, string(content), "full_dump.sql")
	assert.Contains(t, string(content), "Per-object DDL under ddl/")
}

func TestWriteManifestNoDDL(t *testing.T) {
	dir := t.TempDir()

	cfg := models.Warehouse{Host: "localhost", Port: 5432, Database: "yelp_gold"}
	require.NoError(t, writeManifest(dir, "20230501_120000", cfg, "yelp_gold", true))

	content, err := os.ReadFile(filepath.Join(dir, "MANIFEST.txt"))
	require.NoError(t, err)
	assert.NotContains(t, string(content), "ddl/")
}

func TestWriteRestoreHelp(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeRestoreHelp(dir, "yelp_gold"))

	content, err := os.ReadFile(filepath.Join(dir, "RESTORE_HELP.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "-d yelp_gold -f schema_only.sql")
	assert.Contains(t, string(content), "-f data_only.sql")
	assert.Contains(t, string(content), "-f full_dump.sql")
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"dim_user"`, quoteIdent("dim_user"))
	assert.Equal(t, `"odd""name"`, quoteIdent(`odd"name`))
}

func newTestRunner(forceDocker bool, results []error) (*dumpRunner, *[][]string) {
	var calls [][]string
	r := &dumpRunner{
		cfg: models.Warehouse{
			Host: "localhost", Port: 5432, User: "reader",
			Database: "yelp_gold", Container: "yelp_pg",
		},
		forceDocker: forceDocker,
		runCmd: func(cmd *exec.Cmd, outPath string) error {
			calls = append(calls, cmd.Args)
			if len(calls) <= len(results) {
				return results[len(calls)-1]
			}
			return nil
		},
	}
	return r, &calls
}

func TestDumpRunnerLocalSuccess(t *testing.T) {
	r, calls := newTestRunner(false, nil)

	err := r.run(context.Background(), []string{"-n", "yelp_gold", "-s"}, "out.sql")
	require.NoError(t, err)
	require.Len(t, *calls, 1)
	assert.Equal(t, []string{
		"pg_dump", "-h", "localhost", "-p", "5432", "-U", "reader",
		"yelp_gold", "-n", "yelp_gold", "-s",
	}, (*calls)[0])
}

// A failing local pg_dump falls back to running inside the container.
func TestDumpRunnerFallsBackToDocker(t *testing.T) {
	r, calls := newTestRunner(false, []error{assert.AnError})

	err := r.run(context.Background(), []string{"-n", "yelp_gold"}, "out.sql")
	require.NoError(t, err)
	require.Len(t, *calls, 2)
	assert.Equal(t, "pg_dump", (*calls)[0][0])
	assert.Equal(t, "docker", (*calls)[1][0])
	assert.Contains(t, (*calls)[1], "compose")
	assert.Contains(t, (*calls)[1], "yelp_pg")
}

func TestDumpRunnerFallbackFailureSurfaces(t *testing.T) {
	r, calls := newTestRunner(false, []error{assert.AnError, assert.AnError})

	err := r.run(context.Background(), []string{"-n", "yelp_gold"}, "out.sql")
	assert.Error(t, err)
	assert.Len(t, *calls, 2)
}

func TestDumpRunnerForceDockerSkipsLocal(t *testing.T) {
	r, calls := newTestRunner(true, nil)

	err := r.run(context.Background(), []string{"-n", "yelp_gold"}, "out.sql")
	require.NoError(t, err)
	require.Len(t, *calls, 1)
	assert.Equal(t, "docker", (*calls)[0][0])
}

func TestDumpRunnerUseDockerSkipsLocal(t *testing.T) {
	r, calls := newTestRunner(false, nil)
	r.cfg.UseDocker = true

	err := r.run(context.Background(), []string{"-n", "yelp_gold"}, "out.sql")
	require.NoError(t, err)
	require.Len(t, *calls, 1)
	assert.Equal(t, "docker", (*calls)[0][0])
}
