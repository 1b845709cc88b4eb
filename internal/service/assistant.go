package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"studiodesk/internal/domain"
	"studiodesk/internal/metrics"
	"studiodesk/internal/models"
	"studiodesk/internal/timeslot"

	"github.com/rs/zerolog"
)

const defaultOracleTimeout = 8 * time.Second

// SmartBookingRequest is a candidate booking to evaluate.
type SmartBookingRequest struct {
	Date             time.Time      `json:"date"`
	Start            timeslot.Clock `json:"start_time"`
	End              timeslot.Clock `json:"end_time"`
	ItemIDs          []string       `json:"item_ids"`
	RequiredTags     []string       `json:"required_tags"`
	ExcludeBookingID string         `json:"exclude_booking_id,omitempty"`
}

type AssistantOptions struct {
	Hours            timeslot.Range
	SlotStep         int
	AlternativeSlots int
	OracleTimeout    time.Duration
}

// Assistant combines the studio and inventory checks into one conflict
// report with alternatives and a suggestion. It never writes.
type Assistant struct {
	bookings     domain.BookingRepository
	inventory    domain.InventoryRepository
	conflicts    *ConflictChecker
	availability *AvailabilityChecker
	matcher      *TagMatcher
	oracle       domain.Oracle
	opts         AssistantOptions
	logger       *zerolog.Logger
}

func NewAssistant(
	bookings domain.BookingRepository,
	inventory domain.InventoryRepository,
	conflicts *ConflictChecker,
	availability *AvailabilityChecker,
	matcher *TagMatcher,
	oracle domain.Oracle,
	opts AssistantOptions,
	logger *zerolog.Logger,
) *Assistant {
	if opts.SlotStep <= 0 {
		opts.SlotStep = models.DefaultSlotStepMinutes
	}
	if opts.AlternativeSlots <= 0 {
		opts.AlternativeSlots = models.DefaultAlternativeSlots
	}
	if opts.OracleTimeout <= 0 {
		opts.OracleTimeout = defaultOracleTimeout
	}
	return &Assistant{
		bookings:     bookings,
		inventory:    inventory,
		conflicts:    conflicts,
		availability: availability,
		matcher:      matcher,
		oracle:       oracle,
		opts:         opts,
		logger:       logger,
	}
}

// CheckSmartBooking evaluates req. Only storage failures are returned as
// errors; oracle failures degrade to the template suggestion.
func (a *Assistant) CheckSmartBooking(ctx context.Context, req SmartBookingRequest) (*models.ConflictReport, error) {
	started := time.Now()
	defer func() { metrics.ObserveAssistant(time.Since(started)) }()

	rng, err := timeslot.NewRange(req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRange, err)
	}
	date := timeslot.Day(req.Date)
	window := timeslot.SingleDay(date)

	var (
		wg        sync.WaitGroup
		conflicts []*models.Booking
		reserved  []string
		cErr      error
		aErr      error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		conflicts, cErr = a.conflicts.Check(ctx, date, rng, req.ExcludeBookingID)
	}()
	go func() {
		defer wg.Done()
		reserved, aErr = a.availability.CheckExcluding(ctx, req.ItemIDs, window, req.ExcludeBookingID)
	}()
	wg.Wait()

	if cErr != nil {
		return nil, cErr
	}
	if aErr != nil {
		return nil, aErr
	}

	if len(conflicts) == 0 && len(reserved) == 0 {
		return &models.ConflictReport{
			HasConflict:          false,
			ConflictingBookings:  []models.BookingSummary{},
			UnavailableResources: []string{},
			AlternativeResources: []models.ResourceSummary{},
			AlternativeSlots:     []timeslot.Range{},
		}, nil
	}

	report := &models.ConflictReport{
		HasConflict:          true,
		ConflictingBookings:  make([]models.BookingSummary, 0, len(conflicts)),
		UnavailableResources: make([]string, 0, len(reserved)),
		AlternativeResources: []models.ResourceSummary{},
		AlternativeSlots:     []timeslot.Range{},
	}
	for _, b := range conflicts {
		report.ConflictingBookings = append(report.ConflictingBookings, models.SummarizeBooking(b))
	}

	requested, err := a.inventory.GetInventoryItems(ctx, req.ItemIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCheckFailed, err)
	}
	byID := make(map[string]*models.InventoryItem, len(requested))
	for _, item := range requested {
		byID[item.ID] = item
	}
	for _, id := range reserved {
		if item, ok := byID[id]; ok {
			report.UnavailableResources = append(report.UnavailableResources, item.Name)
		} else {
			report.UnavailableResources = append(report.UnavailableResources, id)
		}
	}

	tags := a.requiredTags(req, reserved, byID)
	if err := a.fillAlternatives(ctx, report, req, window, tags); err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		if err := a.fillSlots(ctx, report, date, rng, req.ExcludeBookingID); err != nil {
			return nil, err
		}
	}

	report.Suggestion, report.SuggestionSource = a.suggest(ctx, req, rng, report, tags)
	return report, nil
}

// requiredTags prefers explicit tags, then the tags of the requested items
// that turned out unavailable, then the tags of every requested item.
func (a *Assistant) requiredTags(req SmartBookingRequest, reserved []string, byID map[string]*models.InventoryItem) []string {
	if tags := models.NormalizeTags(req.RequiredTags); len(tags) > 0 {
		return tags
	}

	source := reserved
	if len(source) == 0 {
		source = req.ItemIDs
	}
	var tags []string
	for _, id := range source {
		if item, ok := byID[id]; ok {
			tags = append(tags, item.Tags...)
		}
	}
	return models.NormalizeTags(tags)
}

func (a *Assistant) fillAlternatives(ctx context.Context, report *models.ConflictReport, req SmartBookingRequest, window timeslot.DateRange, tags []string) error {
	busy, err := a.inventory.ReservedItemsInRange(ctx, window)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCheckFailed, err)
	}

	exclude := make(map[string]bool, len(req.ItemIDs)+len(busy))
	for _, id := range req.ItemIDs {
		exclude[id] = true
	}
	for _, id := range busy {
		exclude[id] = true
	}

	alternatives, err := a.matcher.Alternatives(ctx, tags, exclude)
	if err != nil {
		return err
	}
	for _, item := range alternatives {
		report.AlternativeResources = append(report.AlternativeResources, models.ResourceSummary{
			ID:       item.ID,
			Name:     item.Name,
			Category: item.Category,
		})
	}
	return nil
}

func (a *Assistant) fillSlots(ctx context.Context, report *models.ConflictReport, date time.Time, rng timeslot.Range, excludeID string) error {
	wholeDay := timeslot.Range{Start: 0, End: timeslot.NewClock(24, 0)}
	sameDay, err := a.bookings.FindOverlappingBookings(ctx, date, wholeDay, excludeID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCheckFailed, err)
	}

	busy := make([]timeslot.Range, 0, len(sameDay))
	for _, b := range sameDay {
		if b.Active() {
			busy = append(busy, b.Range())
		}
	}

	length := int(rng.Duration() / time.Minute)
	free := timeslot.FreeSlots(a.opts.Hours.Start, a.opts.Hours.End, length, a.opts.SlotStep, busy, 0)
	free = timeslot.Nearest(free, rng.Start)
	if len(free) > a.opts.AlternativeSlots {
		free = free[:a.opts.AlternativeSlots]
	}
	report.AlternativeSlots = append(report.AlternativeSlots, free...)
	return nil
}

type oracleResult struct {
	text string
	err  error
}

func (a *Assistant) suggest(ctx context.Context, req SmartBookingRequest, rng timeslot.Range, report *models.ConflictReport, tags []string) (string, string) {
	fallback := FallbackSuggestion(report)
	if a.oracle == nil {
		return fallback, models.SuggestionFallback
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.OracleTimeout)
	defer cancel()

	prompt := BuildSuggestionPrompt(req.Date, rng, report, tags)
	done := make(chan oracleResult, 1)
	go func() {
		text, err := a.oracle.Complete(ctx, prompt)
		done <- oracleResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		metrics.IncOracle("timeout")
		a.logger.Warn().Err(ctx.Err()).Msg("oracle timed out, using fallback suggestion")
		return fallback, models.SuggestionFallback
	case res := <-done:
		if res.err != nil {
			metrics.IncOracle("error")
			a.logger.Warn().Err(res.err).Msg("oracle failed, using fallback suggestion")
			return fallback, models.SuggestionFallback
		}
		text := strings.TrimSpace(res.text)
		if text == "" {
			metrics.IncOracle("empty")
			a.logger.Warn().Msg("oracle returned empty suggestion, using fallback")
			return fallback, models.SuggestionFallback
		}
		metrics.IncOracle("ok")
		return text, models.SuggestionOracle
	}
}

// BuildSuggestionPrompt renders the conflict report for the oracle.
func BuildSuggestionPrompt(date time.Time, rng timeslot.Range, report *models.ConflictReport, tags []string) string {
	var sb strings.Builder
	sb.WriteString("You help studio staff resolve a booking conflict. Answer in two sentences at most.\n")
	fmt.Fprintf(&sb, "Requested: %s %s\n", timeslot.FormatDate(date), rng)

	if len(report.ConflictingBookings) > 0 {
		sb.WriteString("Overlapping bookings:\n")
		for _, b := range report.ConflictingBookings {
			fmt.Fprintf(&sb, "- %s %s-%s\n", b.Name, b.Start, b.End)
		}
	}
	if len(report.UnavailableResources) > 0 {
		fmt.Fprintf(&sb, "Unavailable equipment: %s\n", strings.Join(report.UnavailableResources, ", "))
	}
	if len(tags) > 0 {
		fmt.Fprintf(&sb, "Required tags: %s\n", strings.Join(tags, ", "))
	}
	if len(report.AlternativeResources) > 0 {
		sb.WriteString("Alternative equipment:\n")
		for _, r := range report.AlternativeResources {
			fmt.Fprintf(&sb, "- %s (%s)\n", r.Name, r.Category)
		}
	} else {
		sb.WriteString("Alternative equipment: none\n")
	}
	if len(report.AlternativeSlots) > 0 {
		fmt.Fprintf(&sb, "Free times that day: %s\n", joinRanges(report.AlternativeSlots))
	}
	sb.WriteString("Only suggest alternatives matching required tags, and only from the lists above.")
	return sb.String()
}

// FallbackSuggestion is the deterministic suggestion used without the
// oracle. It is never blank.
func FallbackSuggestion(report *models.ConflictReport) string {
	var parts []string

	if len(report.ConflictingBookings) > 0 {
		booked := make([]string, 0, len(report.ConflictingBookings))
		for _, b := range report.ConflictingBookings {
			booked = append(booked, fmt.Sprintf("%s %s-%s", b.Name, b.Start, b.End))
		}
		parts = append(parts, fmt.Sprintf("Studio is already booked: %s.", strings.Join(booked, ", ")))
		if len(report.AlternativeSlots) > 0 {
			parts = append(parts, fmt.Sprintf("Free times that day: %s.", joinRanges(report.AlternativeSlots)))
		} else {
			parts = append(parts, "No free slot of the same length that day.")
		}
	}

	if len(report.UnavailableResources) > 0 {
		parts = append(parts, fmt.Sprintf("Resources unavailable: %s.", strings.Join(report.UnavailableResources, ", ")))
		if len(report.AlternativeResources) > 0 {
			names := make([]string, 0, len(report.AlternativeResources))
			for _, r := range report.AlternativeResources {
				names = append(names, r.Name)
			}
			parts = append(parts, fmt.Sprintf("Matching alternatives: %s.", strings.Join(names, ", ")))
		} else {
			parts = append(parts, "No matching alternatives available.")
		}
	}

	if len(parts) == 0 {
		return "The requested slot is not available."
	}
	return strings.Join(parts, " ")
}

func joinRanges(ranges []timeslot.Range) string {
	out := make([]string, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, r.String())
	}
	return strings.Join(out, ", ")
}
