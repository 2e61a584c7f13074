package metabase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"goldpipe/internal/ui"
	"goldpipe/pkg/errors"
	"goldpipe/pkg/models"
)

// Agent drives the seeding and maintenance flows against one Metabase
// instance and one warehouse datasource.
type Agent struct {
	client    *Client
	cfg       models.Metabase
	warehouse models.Warehouse
}

// NewAgent wires a client to the configured datasource settings.
func NewAgent(client *Client, cfg models.Metabase, warehouse models.Warehouse) *Agent {
	return &Agent{client: client, cfg: cfg, warehouse: warehouse}
}

// Client exposes the underlying API client.
func (a *Agent) Client() *Client {
	return a.client
}

// Database is one Metabase datasource as the list endpoint reports it.
type Database struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Engine string `json:"engine"`
}

// ListDatabases handles both response shapes the endpoint has used: a bare
// array and an envelope with a data key.
func (a *Agent) ListDatabases(ctx context.Context) ([]Database, error) {
	var raw json.RawMessage
	if err := a.client.get(ctx, "/api/database", &raw); err != nil {
		return nil, err
	}
	return decodeDatabaseList(raw)
}

func decodeDatabaseList(raw []byte) ([]Database, error) {
	var list []Database
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var envelope struct {
		Data []Database `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, errors.MetabaseError("failed to decode database list", err)
	}
	return envelope.Data, nil
}

// FindDatabase returns the id of the datasource with the exact given name.
func (a *Agent) FindDatabase(ctx context.Context, name string) (int, error) {
	dbs, err := a.ListDatabases(ctx)
	if err != nil {
		return 0, err
	}
	for _, db := range dbs {
		if db.Name == name {
			return db.ID, nil
		}
	}
	return 0, errors.New(errors.ErrCodeMetabaseRequest,
		fmt.Sprintf("datasource %q not found", name))
}

// datasourceDetails builds the connection details Metabase stores for the
// warehouse, narrowed to the target schema. A localhost warehouse host is
// rewritten to the compose service name, since localhost inside the Metabase
// container is the container itself.
func (a *Agent) datasourceDetails() map[string]interface{} {
	host := a.warehouse.Host
	if host == "localhost" || host == "127.0.0.1" {
		host = a.cfg.PGService
	}
	return map[string]interface{}{
		"host":            host,
		"port":            a.warehouse.Port,
		"dbname":          a.warehouse.Database,
		"user":            a.warehouse.User,
		"password":        a.warehouse.Password,
		"ssl":             false,
		"schemas":         []string{a.warehouse.Schema},
		"schema_fallback": false,
	}
}

// EnsureDatasource creates or updates the named Postgres datasource and
// returns its id. Matching is by exact name, so reruns converge on the same
// datasource instead of accumulating duplicates.
func (a *Agent) EnsureDatasource(ctx context.Context) (int, error) {
	details := a.datasourceDetails()

	dbs, err := a.ListDatabases(ctx)
	if err != nil {
		return 0, err
	}

	var existing *Database
	for i := range dbs {
		if dbs[i].Name == a.cfg.DatasourceName {
			existing = &dbs[i]
			break
		}
	}

	var result struct {
		ID int `json:"id"`
	}
	if existing == nil {
		ui.ShowInfo(fmt.Sprintf("Creating datasource %q", a.cfg.DatasourceName))
		payload := map[string]interface{}{
			"name":         a.cfg.DatasourceName,
			"engine":       "postgres",
			"details":      details,
			"is_full_sync": true,
		}
		if err := a.client.post(ctx, "/api/database", payload, &result); err != nil {
			return 0, errors.Wrap(err, errors.ErrCodeMetabaseSetup, "failed to create datasource")
		}
	} else {
		ui.ShowInfo(fmt.Sprintf("Updating datasource %q", a.cfg.DatasourceName))
		// PUT replaces the whole object, so fetch the current one first.
		var current map[string]interface{}
		if err := a.client.get(ctx, fmt.Sprintf("/api/database/%d", existing.ID), &current); err != nil {
			return 0, err
		}
		current["details"] = details
		if err := a.client.put(ctx, fmt.Sprintf("/api/database/%d", existing.ID), current, &result); err != nil {
			return 0, errors.Wrap(err, errors.ErrCodeMetabaseSetup, "failed to update datasource")
		}
		if result.ID == 0 {
			result.ID = existing.ID
		}
	}

	return result.ID, nil
}

// SyncAndRescan triggers a schema sync and a field value rescan.
func (a *Agent) SyncAndRescan(ctx context.Context, dbID int) error {
	if err := a.client.post(ctx, fmt.Sprintf("/api/database/%d/sync_schema", dbID),
		map[string]interface{}{}, nil); err != nil {
		return err
	}
	return a.client.post(ctx, fmt.Sprintf("/api/database/%d/rescan_values", dbID),
		map[string]interface{}{}, nil)
}

// PruneOtherDatabases deletes every datasource except the kept one, the
// bundled sample database included. Individual delete failures are reported
// and ignored.
func (a *Agent) PruneOtherDatabases(ctx context.Context, keepID int) error {
	dbs, err := a.ListDatabases(ctx)
	if err != nil {
		return err
	}
	for _, db := range dbs {
		if db.ID == keepID {
			continue
		}
		ui.ShowInfo(fmt.Sprintf("Removing datasource id=%d name=%q engine=%s", db.ID, db.Name, db.Engine))
		if err := a.client.delete(ctx, fmt.Sprintf("/api/database/%d", db.ID)); err != nil {
			ui.ShowWarning(fmt.Sprintf("delete failed (ignored): %v", err))
		}
	}
	return nil
}

// Refresh narrows an existing datasource to the target schema and refreshes
// its metadata. The datasource is matched by name substring, mirroring how
// ad-hoc instances are often named.
func (a *Agent) Refresh(ctx context.Context) error {
	dbs, err := a.ListDatabases(ctx)
	if err != nil {
		return err
	}

	dbID := 0
	for _, db := range dbs {
		if strings.Contains(strings.ToLower(db.Name), strings.ToLower(a.cfg.DatasourceName)) {
			dbID = db.ID
			break
		}
	}
	if dbID == 0 {
		return errors.New(errors.ErrCodeMetabaseRequest,
			fmt.Sprintf("no datasource matching %q found", a.cfg.DatasourceName))
	}

	var current map[string]interface{}
	if err := a.client.get(ctx, fmt.Sprintf("/api/database/%d", dbID), &current); err != nil {
		return err
	}
	details, _ := current["details"].(map[string]interface{})
	if details == nil {
		details = map[string]interface{}{}
	}
	details["schemas"] = []string{a.warehouse.Schema}
	details["schema_fallback"] = false
	current["details"] = details

	if err := a.client.put(ctx, fmt.Sprintf("/api/database/%d", dbID), current, nil); err != nil {
		return err
	}
	if err := a.SyncAndRescan(ctx, dbID); err != nil {
		return err
	}

	ui.ShowSuccess(fmt.Sprintf("Refreshed datasource id=%d", dbID))
	return nil
}
