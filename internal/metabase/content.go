package metabase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"goldpipe/internal/common"
	"goldpipe/internal/ui"
	"goldpipe/pkg/errors"
)

// manifestEntry identifies one exported object.
type manifestEntry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// manifest indexes one content export.
type manifest struct {
	Collections []manifestEntry `json:"collections"`
	Cards       []manifestEntry `json:"cards"`
	Dashboards  []manifestEntry `json:"dashboards"`
	ExportedAt  int64           `json:"exported_at"`
}

// namedItem is the slice element shape shared by the card, dashboard and
// collection list endpoints.
type namedItem struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Archived bool   `json:"archived"`
}

// findByName returns the id of the first non-archived item with the exact
// name. Names are the stable identity across instances; ids are not.
func findByName(items []namedItem, name string) (int, bool) {
	for _, item := range items {
		if item.Name == name && !item.Archived {
			return item.ID, true
		}
	}
	return 0, false
}

// ExportContent dumps collections, cards and dashboards as JSON files under
// dir, plus a manifest indexing them. Archived objects and the root
// collection are skipped.
func (a *Agent) ExportContent(ctx context.Context, dir string) error {
	for _, sub := range []string{"collections", "cards", "dashboards"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), common.DirPermissionNormal); err != nil {
			return errors.Wrap(err, errors.ErrCodeFileOperation, "failed to create export directory")
		}
	}

	m := manifest{ExportedAt: time.Now().Unix()}

	var collections []map[string]interface{}
	if err := a.client.get(ctx, "/api/collection", &collections); err != nil {
		return err
	}
	for _, col := range collections {
		if kind, _ := col["type"].(string); kind == "root" {
			continue
		}
		id, ok := asInt(col["id"])
		if !ok {
			continue
		}
		name, _ := col["name"].(string)
		m.Collections = append(m.Collections, manifestEntry{ID: id, Name: name})
		if err := saveJSON(filepath.Join(dir, "collections", fmt.Sprintf("%d.json", id)), col); err != nil {
			return err
		}
	}

	var cards []map[string]interface{}
	if err := a.client.get(ctx, "/api/card", &cards); err != nil {
		return err
	}
	for _, card := range cards {
		if archived, _ := card["archived"].(bool); archived {
			continue
		}
		id, ok := asInt(card["id"])
		if !ok {
			continue
		}
		name, _ := card["name"].(string)
		m.Cards = append(m.Cards, manifestEntry{ID: id, Name: name})
		if err := saveJSON(filepath.Join(dir, "cards", fmt.Sprintf("%d.json", id)), card); err != nil {
			return err
		}
	}

	var dashboards []map[string]interface{}
	if err := a.client.get(ctx, "/api/dashboard", &dashboards); err != nil {
		return err
	}
	for _, dash := range dashboards {
		if archived, _ := dash["archived"].(bool); archived {
			continue
		}
		id, ok := asInt(dash["id"])
		if !ok {
			continue
		}
		name, _ := dash["name"].(string)
		m.Dashboards = append(m.Dashboards, manifestEntry{ID: id, Name: name})

		// The list endpoint omits the layout; fetch the full dashboard.
		var detail map[string]interface{}
		if err := a.client.get(ctx, fmt.Sprintf("/api/dashboard/%d", id), &detail); err != nil {
			return err
		}
		if err := saveJSON(filepath.Join(dir, "dashboards", fmt.Sprintf("%d.json", id)), detail); err != nil {
			return err
		}
	}

	return saveJSON(filepath.Join(dir, "manifest.json"), m)
}

// ImportContent replays a content export against the instance. Objects are
// matched by name, so importing twice updates rather than duplicates.
// Per-object failures are reported and skipped.
func (a *Agent) ImportContent(ctx context.Context, dir string) error {
	var m manifest
	if err := loadJSON(filepath.Join(dir, "manifest.json"), &m); err != nil {
		return errors.Wrap(err, errors.ErrCodeMetabaseImport,
			fmt.Sprintf("no export manifest under %s, run 'goldpipe metabase export' first", dir))
	}

	dbID, err := a.FindDatabase(ctx, a.cfg.DatasourceName)
	if err != nil {
		return err
	}

	collectionIDs := map[string]int{}
	for _, entry := range m.Collections {
		var col map[string]interface{}
		if err := loadJSON(filepath.Join(dir, "collections", fmt.Sprintf("%d.json", entry.ID)), &col); err != nil {
			ui.ShowWarning(fmt.Sprintf("collection %d: %v (skipped)", entry.ID, err))
			continue
		}
		name, _ := col["name"].(string)
		id, err := a.ensureCollection(ctx, name)
		if err != nil {
			ui.ShowWarning(fmt.Sprintf("collection %q: %v (skipped)", name, err))
			continue
		}
		collectionIDs[name] = id
	}

	// Objects whose collection did not survive the export land in the
	// default one.
	defaultCollection, err := a.ensureCollection(ctx, a.cfg.SiteName)
	if err != nil {
		return err
	}

	cardIDs := map[string]int{}
	for _, entry := range m.Cards {
		var card map[string]interface{}
		if err := loadJSON(filepath.Join(dir, "cards", fmt.Sprintf("%d.json", entry.ID)), &card); err != nil {
			ui.ShowWarning(fmt.Sprintf("card %d: %v (skipped)", entry.ID, err))
			continue
		}
		id, err := a.upsertCard(ctx, card, dbID, a.resolveCollection(card, collectionIDs, defaultCollection))
		if err != nil {
			ui.ShowWarning(fmt.Sprintf("card %q: %v (skipped)", entry.Name, err))
			continue
		}
		if name, _ := card["name"].(string); name != "" {
			cardIDs[name] = id
		}
	}

	for _, entry := range m.Dashboards {
		var dash map[string]interface{}
		if err := loadJSON(filepath.Join(dir, "dashboards", fmt.Sprintf("%d.json", entry.ID)), &dash); err != nil {
			ui.ShowWarning(fmt.Sprintf("dashboard %d: %v (skipped)", entry.ID, err))
			continue
		}
		if err := a.upsertDashboard(ctx, dash, a.resolveCollection(dash, collectionIDs, defaultCollection), cardIDs); err != nil {
			ui.ShowWarning(fmt.Sprintf("dashboard %q: %v (skipped)", entry.Name, err))
		}
	}

	return nil
}

// resolveCollection maps an exported object to its imported collection by
// the collection's name.
func (a *Agent) resolveCollection(obj map[string]interface{}, collections map[string]int, fallback int) int {
	if col, ok := obj["collection"].(map[string]interface{}); ok {
		if name, _ := col["name"].(string); name != "" {
			if id, ok := collections[name]; ok {
				return id
			}
		}
	}
	return fallback
}

// ensureCollection returns the id of the named collection, creating it when
// missing.
func (a *Agent) ensureCollection(ctx context.Context, name string) (int, error) {
	var existing []namedItem
	if err := a.client.get(ctx, "/api/collection", &existing); err != nil {
		return 0, err
	}
	if id, ok := findByName(existing, name); ok {
		return id, nil
	}

	var created struct {
		ID int `json:"id"`
	}
	if err := a.client.post(ctx, "/api/collection",
		map[string]interface{}{"name": name}, &created); err != nil {
		return 0, err
	}
	return created.ID, nil
}

// upsertCard creates or updates a card by name, rewriting its datasource and
// collection references to the target instance.
func (a *Agent) upsertCard(ctx context.Context, card map[string]interface{}, dbID, collectionID int) (int, error) {
	payload := make(map[string]interface{}, len(card))
	for k, v := range card {
		payload[k] = v
	}
	delete(payload, "id")
	payload["collection_id"] = collectionID
	if dq, ok := payload["dataset_query"].(map[string]interface{}); ok {
		if _, has := dq["database"]; has {
			dq["database"] = dbID
		}
	}
	if _, has := payload["database_id"]; has {
		payload["database_id"] = dbID
	}

	var existing []namedItem
	if err := a.client.get(ctx, "/api/card", &existing); err != nil {
		return 0, err
	}

	name, _ := payload["name"].(string)
	var result struct {
		ID int `json:"id"`
	}
	if id, ok := findByName(existing, name); ok {
		if err := a.client.put(ctx, fmt.Sprintf("/api/card/%d", id), payload, &result); err != nil {
			return 0, err
		}
		if result.ID == 0 {
			result.ID = id
		}
	} else {
		if err := a.client.post(ctx, "/api/card", payload, &result); err != nil {
			return 0, err
		}
	}
	return result.ID, nil
}

// upsertDashboard creates or updates a dashboard by name and replays its
// layout. Question tiles resolve through the imported card names; tiles whose
// card does not exist on this instance are skipped. Markdown text tiles are
// recreated inline.
func (a *Agent) upsertDashboard(ctx context.Context, dash map[string]interface{}, collectionID int, cardIDs map[string]int) error {
	name, _ := dash["name"].(string)

	var existing []namedItem
	if err := a.client.get(ctx, "/api/dashboard", &existing); err != nil {
		return err
	}

	var dashID int
	if id, ok := findByName(existing, name); ok {
		dashID = id
		meta := map[string]interface{}{
			"name":          name,
			"description":   dash["description"],
			"collection_id": collectionID,
		}
		if err := a.client.put(ctx, fmt.Sprintf("/api/dashboard/%d", dashID), meta, nil); err != nil {
			return err
		}
	} else {
		var created struct {
			ID int `json:"id"`
		}
		if err := a.client.post(ctx, "/api/dashboard",
			map[string]interface{}{"name": name, "collection_id": collectionID}, &created); err != nil {
			return err
		}
		dashID = created.ID
	}

	tiles, _ := dash["ordered_cards"].([]interface{})
	for _, raw := range tiles {
		tile, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if err := a.placeTile(ctx, dashID, tile, cardIDs); err != nil {
			ui.ShowWarning(fmt.Sprintf("dashboard %q tile: %v (skipped)", name, err))
		}
	}
	return nil
}

// placeTile adds one exported tile to a dashboard.
func (a *Agent) placeTile(ctx context.Context, dashID int, tile map[string]interface{}, cardIDs map[string]int) error {
	settings, _ := tile["visualization_settings"].(map[string]interface{})
	if settings == nil {
		settings = map[string]interface{}{}
	}
	mappings := tile["parameter_mappings"]
	if mappings == nil {
		mappings = []interface{}{}
	}

	payload := map[string]interface{}{
		"dashboard_id":           dashID,
		"col":                    intField(tile, "col", 0),
		"row":                    intField(tile, "row", 0),
		"size_x":                 intField(tile, "size_x", 4),
		"size_y":                 intField(tile, "size_y", 3),
		"parameter_mappings":     mappings,
		"visualization_settings": settings,
		"series":                 []interface{}{},
	}

	cardName := ""
	if card, ok := tile["card"].(map[string]interface{}); ok {
		cardName, _ = card["name"].(string)
	}

	if cardName == "" {
		// Not a question tile. Markdown text tiles carry their content in
		// the visualization settings; anything else has no portable form.
		markdown, _ := settings["markdown"].(string)
		if markdown == "" {
			return nil
		}
		payload["cardId"] = nil
		payload["text"] = markdown
		return a.client.post(ctx, fmt.Sprintf("/api/dashboard/%d/cards", dashID), payload, nil)
	}

	cardID, ok := cardIDs[cardName]
	if !ok {
		return nil
	}
	payload["cardId"] = cardID
	if series, ok := tile["series"]; ok && series != nil {
		payload["series"] = series
	}
	return a.client.post(ctx, fmt.Sprintf("/api/dashboard/%d/cards", dashID), payload, nil)
}

func saveJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "failed to encode export file")
	}
	if err := os.WriteFile(path, data, common.FilePermissionNormal); err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "failed to write export file")
	}
	return nil
}

func loadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		// The root collection reports a string id.
		return 0, false
	}
}

func intField(m map[string]interface{}, key string, def int) int {
	if n, ok := asInt(m[key]); ok {
		return n
	}
	return def
}
