package service

import (
	"context"
	"fmt"
	"time"

	"studiodesk/internal/domain"
	"studiodesk/internal/metrics"
	"studiodesk/internal/models"
	"studiodesk/internal/timeslot"

	"github.com/rs/zerolog"
)

// ConflictChecker finds active studio bookings overlapping a requested slot.
type ConflictChecker struct {
	repo   domain.BookingRepository
	logger *zerolog.Logger
}

func NewConflictChecker(repo domain.BookingRepository, logger *zerolog.Logger) *ConflictChecker {
	return &ConflictChecker{repo: repo, logger: logger}
}

// Check returns the active bookings on date overlapping rng, skipping
// excludeID. A storage failure is returned as ErrCheckFailed.
func (c *ConflictChecker) Check(ctx context.Context, date time.Time, rng timeslot.Range, excludeID string) ([]*models.Booking, error) {
	if err := rng.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRange, err)
	}

	candidates, err := c.repo.FindOverlappingBookings(ctx, timeslot.Day(date), rng, excludeID)
	if err != nil {
		metrics.IncConflictCheck("studio", "error")
		c.logger.Error().Err(err).Str("date", timeslot.FormatDate(date)).Str("range", rng.String()).Msg("conflict check failed")
		return nil, fmt.Errorf("%w: %w", ErrCheckFailed, err)
	}

	conflicts := make([]*models.Booking, 0, len(candidates))
	for _, b := range candidates {
		if !b.Active() || b.ID == excludeID || !timeslot.Overlaps(b.Range(), rng) {
			continue
		}
		conflicts = append(conflicts, b)
	}

	if len(conflicts) > 0 {
		metrics.IncConflictCheck("studio", "conflict")
	} else {
		metrics.IncConflictCheck("studio", "clear")
	}
	return conflicts, nil
}

func (c *ConflictChecker) CheckConflicts(ctx context.Context, date time.Time, rng timeslot.Range, excludeID string) (*models.ConflictCheckResult, error) {
	conflicts, err := c.Check(ctx, date, rng, excludeID)
	if err != nil {
		return nil, err
	}

	result := &models.ConflictCheckResult{
		HasConflict:         len(conflicts) > 0,
		ConflictingBookings: make([]string, 0, len(conflicts)),
	}
	for _, b := range conflicts {
		result.ConflictingBookings = append(result.ConflictingBookings, b.ID)
	}
	return result, nil
}
