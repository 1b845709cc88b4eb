package service

import (
	"context"
	"fmt"

	"studiodesk/internal/domain"
	"studiodesk/internal/metrics"
	"studiodesk/internal/timeslot"

	"github.com/rs/zerolog"
)

// AvailabilityChecker reports which inventory items are already reserved
// for a date window by active bookings.
type AvailabilityChecker struct {
	repo   domain.InventoryRepository
	logger *zerolog.Logger
}

func NewAvailabilityChecker(repo domain.InventoryRepository, logger *zerolog.Logger) *AvailabilityChecker {
	return &AvailabilityChecker{repo: repo, logger: logger}
}

// Check returns the subset of ids reserved in window. Empty input is a
// clear result without a query.
func (c *AvailabilityChecker) Check(ctx context.Context, ids []string, window timeslot.DateRange) ([]string, error) {
	return c.check(ctx, ids, window, "")
}

// CheckExcluding is Check ignoring reservations held by excludeBookingID.
func (c *AvailabilityChecker) CheckExcluding(ctx context.Context, ids []string, window timeslot.DateRange, excludeBookingID string) ([]string, error) {
	return c.check(ctx, ids, window, excludeBookingID)
}

func (c *AvailabilityChecker) check(ctx context.Context, ids []string, window timeslot.DateRange, excludeBookingID string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if window.Until.Before(window.From) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRange, timeslot.ErrInvalidRange)
	}

	reserved, err := c.repo.FindReservedItems(ctx, ids, window, excludeBookingID)
	if err != nil {
		metrics.IncConflictCheck("inventory", "error")
		c.logger.Error().Err(err).Strs("items", ids).Msg("availability check failed")
		return nil, fmt.Errorf("%w: %w", ErrCheckFailed, err)
	}

	if len(reserved) > 0 {
		metrics.IncConflictCheck("inventory", "conflict")
	} else {
		metrics.IncConflictCheck("inventory", "clear")
	}
	return reserved, nil
}
