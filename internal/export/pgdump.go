package export

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"goldpipe/internal/common"
	"goldpipe/internal/ui"
	"goldpipe/pkg/errors"
	"goldpipe/pkg/models"
)

// dumpRunner executes pg_dump with a local-binary-first strategy. A failed
// local run (typically a client/server version mismatch) falls back to
// running pg_dump inside the warehouse container.
type dumpRunner struct {
	cfg         models.Warehouse
	forceDocker bool

	// runCmd executes a prepared pg_dump command, streaming its stdout to
	// outPath. Defaults to capture; tests override it.
	runCmd func(cmd *exec.Cmd, outPath string) error
}

func (r *dumpRunner) run(ctx context.Context, args []string, outPath string) error {
	if r.forceDocker || r.cfg.UseDocker {
		return r.runDocker(ctx, args, outPath)
	}
	if err := r.runLocal(ctx, args, outPath); err != nil {
		ui.ShowWarning(fmt.Sprintf("local pg_dump failed (%v), trying docker fallback", err))
		return r.runDocker(ctx, args, outPath)
	}
	return nil
}

func (r *dumpRunner) runLocal(ctx context.Context, args []string, outPath string) error {
	cmd := exec.CommandContext(ctx, "pg_dump",
		append([]string{
			"-h", r.cfg.Host,
			"-p", fmt.Sprintf("%d", r.cfg.Port),
			"-U", r.cfg.User,
			r.cfg.Database,
		}, args...)...)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+r.cfg.Password)
	return r.execute(cmd, outPath)
}

func (r *dumpRunner) runDocker(ctx context.Context, args []string, outPath string) error {
	// Inside the container PG always listens on its default port.
	cmd := exec.CommandContext(ctx, "docker",
		append([]string{
			"compose", "exec", "-T",
			"--env", "PGPASSWORD=" + r.cfg.Password,
			r.cfg.Container,
			"pg_dump",
			"-h", "localhost",
			"-p", "5432",
			"-U", r.cfg.User,
			r.cfg.Database,
		}, args...)...)
	return r.execute(cmd, outPath)
}

func (r *dumpRunner) execute(cmd *exec.Cmd, outPath string) error {
	if r.runCmd != nil {
		return r.runCmd(cmd, outPath)
	}
	return r.capture(cmd, outPath)
}

func (r *dumpRunner) capture(cmd *exec.Cmd, outPath string) error {
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, common.FilePermissionNormal)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "failed to create dump file")
	}
	defer out.Close()

	cmd.Stdout = out
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrap(err, errors.ErrCodeDumpFailed, "pg_dump failed").
			WithContext("output", outPath)
	}
	return nil
}

// schemaDumpArgs are the three whole-schema dump variants, in the order they
// are written.
func schemaDumpArgs(schema string) []struct {
	Args []string
	File string
} {
	return []struct {
		Args []string
		File string
	}{
		{[]string{"-n", schema, "-s"}, "schema_only.sql"},
		{[]string{"-n", schema, "-a"}, "data_only.sql"},
		{[]string{"-n", schema}, "full_dump.sql"},
	}
}

// objectDumpArgs renders the schema-only single-object dump arguments.
func objectDumpArgs(o Object) []string {
	return []string{"-s", "-t", o.Qualified()}
}

// objectDDLFile renders the per-object DDL file name.
func objectDDLFile(o Object) string {
	return fmt.Sprintf("%s.%s.%s.sql",
		common.SanitizeFilename(o.Schema), common.SanitizeFilename(o.Name), o.Kind)
}
