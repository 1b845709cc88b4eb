package service

import (
	"context"
	"fmt"
	"time"

	"studiodesk/internal/domain"
	"studiodesk/internal/events"
	"studiodesk/internal/models"

	"github.com/rs/zerolog"
)

// MaintenanceEventPayload is published after a maintenance log entry.
type MaintenanceEventPayload struct {
	ItemID   string    `json:"item_id"`
	Action   string    `json:"action"`
	Status   string    `json:"status"`
	LoggedBy string    `json:"logged_by"`
	At       time.Time `json:"at"`
}

type InventoryService struct {
	repo     domain.InventoryRepository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewInventoryService(repo domain.InventoryRepository, eventBus domain.EventPublisher, logger *zerolog.Logger) *InventoryService {
	return &InventoryService{
		repo:     repo,
		eventBus: eventBus,
		logger:   logger,
	}
}

// Seed upserts the configured equipment list.
func (s *InventoryService) Seed(ctx context.Context, items []*models.InventoryItem) error {
	for _, item := range items {
		if item.ID == "" || item.Name == "" {
			return fmt.Errorf("inventory seed: item needs id and name (got %q/%q)", item.ID, item.Name)
		}
		if err := s.repo.UpsertInventoryItem(ctx, item); err != nil {
			return err
		}
	}
	s.logger.Info().Int("items", len(items)).Msg("inventory seeded")
	return nil
}

func (s *InventoryService) ListItems(ctx context.Context) ([]*models.InventoryItem, error) {
	return s.repo.ListInventoryItems(ctx)
}

func (s *InventoryService) GetItem(ctx context.Context, id string) (*models.InventoryItem, error) {
	return s.repo.GetInventoryItem(ctx, id)
}

func (s *InventoryService) GetMaintenanceLogs(ctx context.Context, itemID string) ([]*models.MaintenanceLog, error) {
	return s.repo.GetMaintenanceLogs(ctx, itemID)
}

// LogMaintenance records an action and moves the item to the status the
// action implies.
func (s *InventoryService) LogMaintenance(ctx context.Context, itemID, action, notes, actorID string) (*models.InventoryItem, error) {
	status, ok := models.StatusForMaintenance(action)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	entry := &models.MaintenanceLog{
		ItemID:   itemID,
		Action:   action,
		Notes:    notes,
		LoggedBy: actorID,
	}
	if err := s.repo.LogMaintenance(ctx, entry, status); err != nil {
		return nil, err
	}

	s.logger.Info().Str("item_id", itemID).Str("action", action).Str("status", status).Msg("maintenance logged")
	if s.eventBus != nil {
		payload := MaintenanceEventPayload{
			ItemID:   itemID,
			Action:   action,
			Status:   status,
			LoggedBy: actorID,
			At:       entry.CreatedAt,
		}
		if err := s.eventBus.PublishJSON(events.EventMaintenanceLogged, payload); err != nil {
			s.logger.Error().Err(err).Str("item_id", itemID).Msg("publish event error")
		}
	}

	return s.repo.GetInventoryItem(ctx, itemID)
}
