package database

import (
	"context"
	"testing"

	"studiodesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertInventoryItem(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	item := &models.InventoryItem{
		ID:       "light-1",
		Name:     "Key light",
		Category: "lighting",
		Tags:     []string{" Lighting", "LED", "led"},
	}
	require.NoError(t, db.UpsertInventoryItem(ctx, item))

	got, err := db.GetInventoryItem(ctx, "light-1")
	require.NoError(t, err)
	assert.Equal(t, "Key light", got.Name)
	assert.Equal(t, models.ItemAvailable, got.Status)
	assert.Equal(t, []string{"lighting", "led"}, got.Tags)

	// Upsert updates descriptive fields but keeps status.
	require.NoError(t, db.LogMaintenance(ctx, &models.MaintenanceLog{ItemID: "light-1", Action: models.MaintenanceFlagged}, models.ItemMaintenance))
	item.Name = "Key light v2"
	require.NoError(t, db.UpsertInventoryItem(ctx, item))

	got, err = db.GetInventoryItem(ctx, "light-1")
	require.NoError(t, err)
	assert.Equal(t, "Key light v2", got.Name)
	assert.Equal(t, models.ItemMaintenance, got.Status)

	_, err = db.GetInventoryItem(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListInventoryItems(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seedItems(t, db,
		&models.InventoryItem{ID: "b", Name: "Tripod"},
		&models.InventoryItem{ID: "a", Name: "Camera"},
		&models.InventoryItem{ID: "c", Name: "Camera"},
	)

	all, err := db.ListInventoryItems(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "c", "b"}, []string{all[0].ID, all[1].ID, all[2].ID})

	some, err := db.GetInventoryItems(ctx, []string{"b", "c"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "c", some[0].ID)

	none, err := db.GetInventoryItems(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLogMaintenance(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seedItems(t, db, &models.InventoryItem{ID: "mic", Name: "Mic"})

	entry := &models.MaintenanceLog{ItemID: "mic", Action: models.MaintenanceUsed, LoggedBy: "staff-1"}
	require.NoError(t, db.LogMaintenance(ctx, entry, models.ItemInUse))
	assert.NotEmpty(t, entry.ID)

	item, err := db.GetInventoryItem(ctx, "mic")
	require.NoError(t, err)
	assert.Equal(t, models.ItemInUse, item.Status)

	logs, err := db.GetMaintenanceLogs(ctx, "mic")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "staff-1", logs[0].LoggedBy)

	err = db.LogMaintenance(ctx, &models.MaintenanceLog{ItemID: "ghost", Action: models.MaintenanceUsed}, models.ItemInUse)
	assert.ErrorIs(t, err, ErrNotFound)
}
