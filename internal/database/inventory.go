package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"studiodesk/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

func inventorySelect() sq.SelectBuilder {
	return sq.Select("id", "name", "category", "status", "tags", "notes", "created_at", "updated_at").
		From("inventory_items")
}

func scanInventoryItem(row scanner) (*models.InventoryItem, error) {
	var (
		item models.InventoryItem
		tags string
	)
	if err := row.Scan(&item.ID, &item.Name, &item.Category, &item.Status, &tags, &item.Notes,
		&item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &item.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags for item %s: %w", item.ID, err)
	}
	return &item, nil
}

func (db *DB) queryInventory(ctx context.Context, q sq.SelectBuilder) ([]*models.InventoryItem, error) {
	query, args, err := toSQL(q)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("get inventory", err)
	}
	defer rows.Close()

	var items []*models.InventoryItem
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, storageErr("scan inventory item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("get inventory", err)
	}
	return items, nil
}

// UpsertInventoryItem creates the item or updates its descriptive fields.
// Status is only written on insert; afterwards maintenance logs own it.
func (db *DB) UpsertInventoryItem(ctx context.Context, item *models.InventoryItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = models.ItemAvailable
	}
	tags := models.NormalizeTags(item.Tags)
	raw, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	now := time.Now()
	_, err = db.ExecContext(ctx, `INSERT INTO inventory_items
			(id, name, category, status, tags, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			tags = excluded.tags,
			notes = excluded.notes,
			updated_at = excluded.updated_at`,
		item.ID, item.Name, item.Category, item.Status, string(raw), item.Notes, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert inventory item: %w", err)
	}
	item.Tags = tags
	item.UpdatedAt = now
	return nil
}

func (db *DB) GetInventoryItem(ctx context.Context, id string) (*models.InventoryItem, error) {
	query, args, err := toSQL(inventorySelect().Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	item, err := scanInventoryItem(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("inventory item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get inventory item", err)
	}
	return item, nil
}

// ListInventoryItems returns every item ordered by name then id.
func (db *DB) ListInventoryItems(ctx context.Context) ([]*models.InventoryItem, error) {
	return db.queryInventory(ctx, inventorySelect().OrderBy("name ASC", "id ASC"))
}

// GetInventoryItems returns the items with the given ids, ordered by name.
func (db *DB) GetInventoryItems(ctx context.Context, ids []string) ([]*models.InventoryItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return db.queryInventory(ctx, inventorySelect().Where(sq.Eq{"id": ids}).OrderBy("name ASC", "id ASC"))
}

// LogMaintenance records the action and applies the resulting item status.
func (db *DB) LogMaintenance(ctx context.Context, entry *models.MaintenanceLog, status string) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE inventory_items SET status = ?, updated_at = ? WHERE id = ?`,
			status, entry.CreatedAt, entry.ItemID)
		if err != nil {
			return fmt.Errorf("failed to update item status: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return fmt.Errorf("inventory item %s: %w", entry.ItemID, ErrNotFound)
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO maintenance_logs (id, item_id, action, notes, logged_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.ItemID, entry.Action, entry.Notes, entry.LoggedBy, entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert maintenance log: %w", err)
		}
		return nil
	})
}

func (db *DB) GetMaintenanceLogs(ctx context.Context, itemID string) ([]*models.MaintenanceLog, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, item_id, action, notes, logged_by, created_at
		FROM maintenance_logs WHERE item_id = ? ORDER BY created_at DESC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get maintenance logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.MaintenanceLog
	for rows.Next() {
		var l models.MaintenanceLog
		if err := rows.Scan(&l.ID, &l.ItemID, &l.Action, &l.Notes, &l.LoggedBy, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan maintenance log: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
