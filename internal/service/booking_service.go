package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studiodesk/internal/config"
	"studiodesk/internal/database"
	"studiodesk/internal/domain"
	"studiodesk/internal/events"
	"studiodesk/internal/models"
	"studiodesk/internal/timeslot"

	"github.com/rs/zerolog"
)

const (
	SyncUpsert       = "upsert"
	SyncUpdateStatus = "update_status"

	defaultBookingType = "session"
	defaultLockTTL     = 10 * time.Second
)

// CreateBookingRequest is a new studio booking with optional equipment.
type CreateBookingRequest struct {
	Date        time.Time      `json:"date"`
	Start       timeslot.Clock `json:"start_time"`
	End         timeslot.Clock `json:"end_time"`
	BookingType string         `json:"booking_type"`
	EventName   string         `json:"event_name"`
	ClientID    string         `json:"client_id"`
	Notes       string         `json:"notes"`
	Blocked     bool           `json:"blocked"`
	ItemIDs     []string       `json:"item_ids"`
}

type BookingDeps struct {
	Bookings     domain.BookingRepository
	Inventory    domain.InventoryRepository
	Staff        domain.StaffRepository
	Conflicts    *ConflictChecker
	Availability *AvailabilityChecker
	Locker       domain.SlotLocker
	Notifier     domain.Notifier
	EventBus     domain.EventPublisher
	SheetsWorker domain.SyncWorker
}

type BookingService struct {
	repo           domain.BookingRepository
	inventory      domain.InventoryRepository
	staff          domain.StaffRepository
	conflicts      *ConflictChecker
	availability   *AvailabilityChecker
	locker         domain.SlotLocker
	notifier       domain.Notifier
	eventBus       domain.EventPublisher
	sheetsWorker   domain.SyncWorker
	lockTTL        time.Duration
	checklistTasks []config.ChecklistTask
	logger         *zerolog.Logger
}

func NewBookingService(deps BookingDeps, cfg config.BookingConfig, logger *zerolog.Logger) *BookingService {
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	tasks := cfg.ChecklistTasks
	if len(tasks) == 0 {
		tasks = config.DefaultChecklistTasks()
	}
	return &BookingService{
		repo:           deps.Bookings,
		inventory:      deps.Inventory,
		staff:          deps.Staff,
		conflicts:      deps.Conflicts,
		availability:   deps.Availability,
		locker:         deps.Locker,
		notifier:       deps.Notifier,
		eventBus:       deps.EventBus,
		sheetsWorker:   deps.SheetsWorker,
		lockTTL:        lockTTL,
		checklistTasks: tasks,
		logger:         logger,
	}
}

// CreateBooking validates the slot and equipment and stores the booking as
// pending. Admins are notified of the new request.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest, actorID string) (*models.Booking, error) {
	rng, err := timeslot.NewRange(req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRange, err)
	}
	date := timeslot.Day(req.Date)
	itemIDs := dedupe(req.ItemIDs)

	conflicts, err := s.conflicts.Check(ctx, date, rng, "")
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, slotConflictError(conflicts)
	}

	if err := s.ensureEquipment(ctx, itemIDs, timeslot.SingleDay(date), ""); err != nil {
		return nil, err
	}

	booking := &models.Booking{
		Date:        date,
		Start:       rng.Start,
		End:         rng.End,
		BookingType: req.BookingType,
		EventName:   strings.TrimSpace(req.EventName),
		Status:      models.StatusPending,
		ClientID:    req.ClientID,
		Notes:       req.Notes,
		Blocked:     req.Blocked,
	}
	if booking.BookingType == "" {
		booking.BookingType = defaultBookingType
	}

	err = s.withSlotLock(ctx, date, func() error {
		return s.repo.CreateBookingWithLock(ctx, booking, itemIDs)
	})
	if err != nil {
		return nil, s.mapWriteError(err, booking, actorID)
	}

	s.logger.Info().Str("booking_id", booking.ID).Str("date", timeslot.FormatDate(date)).
		Str("range", rng.String()).Str("actor", actorID).Msg("booking created")

	s.publishEvent(events.EventBookingCreated, booking, itemIDs, actorID)
	s.enqueueSync(ctx, booking, SyncUpsert)
	s.notifyAdmins(ctx, "New booking request",
		fmt.Sprintf("%s on %s %s requires approval.", booking.DisplayName(), timeslot.FormatDate(date), rng),
		booking)

	return booking, nil
}

// ConfirmBooking moves a pending booking to confirmed. A booking awaiting a
// reschedule is confirmed by approving the move. Confirming an already
// confirmed booking is a no-op.
func (s *BookingService) ConfirmBooking(ctx context.Context, id string, version int64, actorID string) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	switch b.Status {
	case models.StatusConfirmed:
		return b, nil
	case models.StatusRescheduleRequested:
		return s.ApproveReschedule(ctx, id, version, actorID)
	}
	if !models.CanTransition(b.Status, models.StatusConfirmed) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, models.StatusConfirmed)
	}
	if err := s.recheckBeforeConfirm(ctx, b); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateBookingStatusWithVersion(ctx, id, version, models.StatusConfirmed); err != nil {
		return nil, s.mapWriteError(err, b, actorID)
	}

	updated, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	s.onConfirmed(ctx, updated, actorID, events.EventBookingConfirmed)
	return updated, nil
}

// recheckBeforeConfirm re-runs the slot and equipment checks for a pending
// booking. Items may have gone into maintenance since the request was made.
func (s *BookingService) recheckBeforeConfirm(ctx context.Context, b *models.Booking) error {
	conflicts, err := s.conflicts.Check(ctx, b.Date, b.Range(), b.ID)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return slotConflictError(conflicts)
	}

	reservations, err := s.inventory.GetReservationsByBooking(ctx, b.ID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCheckFailed, err)
	}
	ids := make([]string, 0, len(reservations))
	for _, r := range reservations {
		ids = append(ids, r.InventoryID)
	}
	return s.ensureEquipment(ctx, ids, timeslot.SingleDay(b.Date), b.ID)
}

// RequestReschedule records a requested move of a confirmed booking. The
// original slot stays held; an overlap at the requested slot is flagged,
// not rejected.
func (s *BookingService) RequestReschedule(ctx context.Context, id string, version int64, date time.Time, rng timeslot.Range, actorID string) (*models.Booking, error) {
	if err := rng.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRange, err)
	}
	date = timeslot.Day(date)

	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(b.Status, models.StatusRescheduleRequested) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, models.StatusRescheduleRequested)
	}

	conflicts, err := s.conflicts.Check(ctx, date, rng, id)
	if err != nil {
		return nil, err
	}

	info := &models.RescheduleInfo{
		OriginalDate:   b.Date,
		OriginalStart:  b.Start,
		OriginalEnd:    b.End,
		RequestedDate:  date,
		RequestedStart: rng.Start,
		RequestedEnd:   rng.End,
		HasConflict:    len(conflicts) > 0,
		RequestedBy:    actorID,
		RequestedAt:    time.Now(),
	}
	if err := s.repo.SaveRescheduleRequest(ctx, id, version, info); err != nil {
		return nil, err
	}

	updated, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("%s asks to move from %s %s to %s %s.", updated.DisplayName(),
		timeslot.FormatDate(info.OriginalDate), b.Range(), timeslot.FormatDate(date), rng)
	if info.HasConflict {
		message += " The requested slot overlaps another booking."
	}
	s.publishEvent(events.EventRescheduleRequested, updated, nil, actorID)
	s.enqueueSync(ctx, updated, SyncUpdateStatus)
	s.notifyAdmins(ctx, "Reschedule requested", message, updated)

	return updated, nil
}

// ApproveReschedule moves the booking and its equipment to the requested
// slot and confirms it. The slot is re-checked first.
func (s *BookingService) ApproveReschedule(ctx context.Context, id string, version int64, actorID string) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != models.StatusRescheduleRequested || b.Reschedule == nil {
		return nil, fmt.Errorf("%w: %s has no pending reschedule", ErrInvalidTransition, b.Status)
	}
	info := b.Reschedule

	conflicts, err := s.conflicts.Check(ctx, info.RequestedDate, info.RequestedRange(), id)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, slotConflictError(conflicts)
	}

	if !info.RequestedDate.Equal(b.Date) {
		reservations, err := s.inventory.GetReservationsByBooking(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCheckFailed, err)
		}
		ids := make([]string, 0, len(reservations))
		for _, r := range reservations {
			ids = append(ids, r.InventoryID)
		}
		reserved, err := s.availability.CheckExcluding(ctx, ids, timeslot.SingleDay(info.RequestedDate), id)
		if err != nil {
			return nil, err
		}
		if len(reserved) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrResourceUnavailable, strings.Join(reserved, ", "))
		}
	}

	var updated *models.Booking
	err = s.withSlotLock(ctx, info.RequestedDate, func() error {
		var applyErr error
		updated, applyErr = s.repo.ApplyReschedule(ctx, id, version)
		return applyErr
	})
	if err != nil {
		return nil, s.mapWriteError(err, b, actorID)
	}

	s.onConfirmed(ctx, updated, actorID, events.EventRescheduleApproved)
	return updated, nil
}

// CancelBooking cancels the booking and releases its equipment.
func (s *BookingService) CancelBooking(ctx context.Context, id string, version int64, actorID string) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(b.Status, models.StatusCancelled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, models.StatusCancelled)
	}

	if err := s.repo.CancelBookingWithVersion(ctx, id, version); err != nil {
		return nil, err
	}

	updated, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("booking_id", id).Str("actor", actorID).Msg("booking cancelled")
	s.publishEvent(events.EventBookingCancelled, updated, nil, actorID)
	s.enqueueSync(ctx, updated, SyncUpdateStatus)
	return updated, nil
}

// AssignEquipment reserves items for an active booking's date.
func (s *BookingService) AssignEquipment(ctx context.Context, id string, itemIDs []string, actorID string) ([]*models.InventoryReservation, error) {
	itemIDs = dedupe(itemIDs)
	if len(itemIDs) == 0 {
		return nil, fmt.Errorf("%w: no items requested", ErrResourceUnavailable)
	}

	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.Active() {
		return nil, fmt.Errorf("%w: booking is %s", ErrInvalidTransition, b.Status)
	}

	window := timeslot.SingleDay(b.Date)
	if err := s.ensureEquipment(ctx, itemIDs, window, id); err != nil {
		return nil, err
	}

	reservations, err := s.inventory.CreateReservations(ctx, id, itemIDs, window)
	if err != nil {
		if errors.Is(err, database.ErrNotAvailable) {
			return nil, fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
		}
		return nil, err
	}

	s.publishEvent(events.EventEquipmentAssigned, b, itemIDs, actorID)
	return reservations, nil
}

// RemoveEquipment releases one reserved item from an active booking.
func (s *BookingService) RemoveEquipment(ctx context.Context, id, itemID, actorID string) error {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	if !b.Active() {
		return fmt.Errorf("%w: booking is %s", ErrInvalidTransition, b.Status)
	}

	if err := s.inventory.DeleteReservation(ctx, id, itemID); err != nil {
		return err
	}

	s.logger.Info().Str("booking_id", id).Str("item_id", itemID).Str("actor", actorID).Msg("equipment released")
	s.publishEvent(events.EventEquipmentRemoved, b, []string{itemID}, actorID)
	s.enqueueSync(ctx, b, SyncUpsert)
	return nil
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *BookingService) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRange, timeslot.ErrInvalidRange)
	}
	return s.repo.GetBookingsByDateRange(ctx, start, end)
}

func (s *BookingService) GetChecklist(ctx context.Context, bookingID string) ([]*models.ChecklistTask, error) {
	return s.repo.GetChecklistTasks(ctx, bookingID)
}

func (s *BookingService) GetReservations(ctx context.Context, bookingID string) ([]*models.InventoryReservation, error) {
	return s.inventory.GetReservationsByBooking(ctx, bookingID)
}

// onConfirmed runs the side effects of entering confirmed from any other
// status.
func (s *BookingService) onConfirmed(ctx context.Context, b *models.Booking, actorID, eventType string) {
	tasks := make([]*models.ChecklistTask, 0, len(s.checklistTasks))
	for _, t := range s.checklistTasks {
		tasks = append(tasks, &models.ChecklistTask{TaskType: t.Type, Title: t.Title})
	}
	created, err := s.repo.CreateChecklistTasks(ctx, b.ID, tasks)
	if err != nil {
		s.logger.Error().Err(err).Str("booking_id", b.ID).Msg("create checklist tasks error")
	} else {
		s.logger.Debug().Str("booking_id", b.ID).Int("created", created).Msg("checklist tasks ensured")
	}

	s.publishEvent(eventType, b, nil, actorID)
	s.enqueueSync(ctx, b, SyncUpsert)
	s.notifyAdmins(ctx, "Booking confirmed",
		fmt.Sprintf("%s on %s %s is confirmed.", b.DisplayName(), timeslot.FormatDate(b.Date), b.Range()),
		b)
}

func (s *BookingService) ensureEquipment(ctx context.Context, itemIDs []string, window timeslot.DateRange, excludeBookingID string) error {
	if len(itemIDs) == 0 {
		return nil
	}

	items, err := s.inventory.GetInventoryItems(ctx, itemIDs)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCheckFailed, err)
	}
	found := make(map[string]*models.InventoryItem, len(items))
	for _, item := range items {
		found[item.ID] = item
	}
	for _, id := range itemIDs {
		item, ok := found[id]
		if !ok {
			return fmt.Errorf("inventory item %s: %w", id, database.ErrNotFound)
		}
		if item.Status == models.ItemMaintenance {
			return fmt.Errorf("%w: %s is in maintenance", ErrResourceUnavailable, item.Name)
		}
	}

	reserved, err := s.availability.CheckExcluding(ctx, itemIDs, window, excludeBookingID)
	if err != nil {
		return err
	}
	if len(reserved) > 0 {
		names := make([]string, 0, len(reserved))
		for _, id := range reserved {
			names = append(names, found[id].Name)
		}
		return fmt.Errorf("%w: %s", ErrResourceUnavailable, strings.Join(names, ", "))
	}
	return nil
}

// withSlotLock serializes writers for one studio date. A held lock is
// reported as a concurrent write conflict.
func (s *BookingService) withSlotLock(ctx context.Context, date time.Time, fn func() error) error {
	if s.locker == nil {
		return fn()
	}

	key := timeslot.FormatDate(date)
	token, err := s.locker.Acquire(ctx, key, s.lockTTL)
	if errors.Is(err, domain.ErrLockHeld) {
		return database.ErrConcurrentWriteConflict
	}
	if err != nil {
		return fmt.Errorf("failed to lock studio date %s: %w", key, err)
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("slot lock release error")
		}
	}()

	return fn()
}

func (s *BookingService) mapWriteError(err error, b *models.Booking, actorID string) error {
	switch {
	case errors.Is(err, database.ErrConcurrentWriteConflict):
		s.publishEvent(events.EventConflictWriteBlocked, b, nil, actorID)
		return err
	case errors.Is(err, database.ErrNotAvailable):
		return fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
	}
	return err
}

func (s *BookingService) publishEvent(eventType string, b *models.Booking, itemIDs []string, actorID string) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID: b.ID,
		Status:    b.Status,
		Date:      timeslot.FormatDate(b.Date),
		StartTime: b.Start.String(),
		EndTime:   b.End.String(),
		ItemIDs:   itemIDs,
		ChangedBy: actorID,
		At:        time.Now(),
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", b.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, b *models.Booking, taskType string) {
	if s.sheetsWorker == nil {
		return
	}

	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, b); err != nil {
		s.logger.Error().Err(err).Str("booking_id", b.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}

func (s *BookingService) notifyAdmins(ctx context.Context, title, message string, b *models.Booking) {
	if s.notifier == nil || s.staff == nil {
		return
	}

	admins, err := s.staff.GetStaffByRole(ctx, models.RoleAdmin)
	if err != nil {
		s.logger.Error().Err(err).Msg("load admins error")
		return
	}
	if len(admins) == 0 {
		return
	}

	recipients := make([]string, 0, len(admins))
	for _, a := range admins {
		recipients = append(recipients, a.ID)
	}
	payload := map[string]any{
		"booking_id": b.ID,
		"status":     b.Status,
		"date":       timeslot.FormatDate(b.Date),
		"start_time": b.Start.String(),
		"end_time":   b.End.String(),
	}
	if err := s.notifier.Notify(ctx, recipients, title, message, payload); err != nil {
		s.logger.Error().Err(err).Str("booking_id", b.ID).Msg("notify admins error")
	}
}

func slotConflictError(conflicts []*models.Booking) error {
	names := make([]string, 0, len(conflicts))
	for _, b := range conflicts {
		names = append(names, fmt.Sprintf("%s %s", b.DisplayName(), b.Range()))
	}
	return fmt.Errorf("%w: %s", ErrSlotConflict, strings.Join(names, ", "))
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
