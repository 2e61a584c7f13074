package metabase

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"goldpipe/internal/ui"
	"goldpipe/pkg/errors"
)

const healthTimeout = 180 * time.Second

// ResetSeed recreates the Metabase container and seeds a reproducible
// configuration: admin user, a single warehouse datasource narrowed to the
// target schema, and no leftover sample databases. The app database lives
// inside the container (no volume), so removing the container resets it;
// warehouse volumes are never touched.
func (a *Agent) ResetSeed(ctx context.Context) error {
	ui.ShowHeader("Reset & seed Metabase")

	if err := a.recreateContainer(ctx); err != nil {
		return err
	}

	ui.ShowInfo("Waiting for Metabase to become healthy")
	if err := a.client.WaitHealthy(ctx, healthTimeout); err != nil {
		return err
	}

	if err := a.client.LoginOrSetup(ctx, a.cfg.Email, a.cfg.Password, a.cfg.SiteName); err != nil {
		return err
	}

	dbID, err := a.EnsureDatasource(ctx)
	if err != nil {
		return err
	}
	if err := a.SyncAndRescan(ctx, dbID); err != nil {
		return err
	}
	if err := a.PruneOtherDatabases(ctx, dbID); err != nil {
		return err
	}

	ui.ShowSuccess("Metabase is reproducibly configured")
	return nil
}

// recreateContainer replaces the Metabase container, making sure the
// warehouse is up first. Stop/rm of a container that does not exist is fine.
func (a *Agent) recreateContainer(ctx context.Context) error {
	_ = a.compose(ctx, "stop", a.cfg.Service)
	_ = a.compose(ctx, "rm", "-f", a.cfg.Service)

	if err := a.compose(ctx, "up", "-d", a.cfg.PGService); err != nil {
		return errors.Wrap(err, errors.ErrCodeMetabaseSetup, "failed to start the warehouse container")
	}
	if err := a.compose(ctx, "up", "-d", a.cfg.Service); err != nil {
		return errors.Wrap(err, errors.ErrCodeMetabaseSetup, "failed to start the Metabase container")
	}
	return nil
}

func (a *Agent) compose(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "docker", append([]string{"compose"}, args...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	ui.ShowInfo(fmt.Sprintf("$ docker compose %v", args))
	return cmd.Run()
}
