package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"studiodesk/internal/config"
	"studiodesk/internal/database"
	"studiodesk/internal/events"
	"studiodesk/internal/models"
	"studiodesk/internal/repository"
	"studiodesk/internal/timeslot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bookingFixture struct {
	db       *database.DB
	svc      *BookingService
	locker   *repository.MemorySlotLocker
	notifier *recordingNotifier
	sync     *recordingSync

	mu     sync.Mutex
	events []string
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()
	db := newTestDB(t)
	logger := newTestLogger()
	ctx := context.Background()

	require.NoError(t, db.UpsertStaff(ctx, &models.Staff{ID: "admin-1", Name: "Alex", Role: models.RoleAdmin, TelegramChatID: 100}))
	require.NoError(t, db.UpsertStaff(ctx, &models.Staff{ID: "staff-1", Name: "Sam", Role: models.RoleStaff}))
	seedInventory(t, db,
		&models.InventoryItem{ID: "cam-1", Name: "Camera One", Category: "camera", Tags: []string{"camera"}},
		&models.InventoryItem{ID: "cam-2", Name: "Camera Two", Category: "camera", Tags: []string{"camera"}},
		&models.InventoryItem{ID: "fog", Name: "Fog machine", Category: "fx", Status: models.ItemMaintenance},
	)

	f := &bookingFixture{
		db:       db,
		locker:   repository.NewMemorySlotLocker(),
		notifier: &recordingNotifier{},
		sync:     &recordingSync{},
	}

	bus := events.NewEventBus()
	bus.SubscribeAll(func(e *events.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events = append(f.events, e.Type)
		return nil
	})

	f.svc = NewBookingService(BookingDeps{
		Bookings:     db,
		Inventory:    db,
		Staff:        db,
		Conflicts:    NewConflictChecker(db, logger),
		Availability: NewAvailabilityChecker(db, logger),
		Locker:       f.locker,
		Notifier:     f.notifier,
		EventBus:     bus,
		SheetsWorker: f.sync,
	}, config.BookingConfig{}, logger)
	return f
}

func (f *bookingFixture) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func bookingRequest(t *testing.T, date, start, end string, itemIDs ...string) CreateBookingRequest {
	r := mustRange(t, start, end)
	return CreateBookingRequest{
		Date:      mustDate(t, date),
		Start:     r.Start,
		End:       r.End,
		EventName: "Portrait " + start,
		ItemIDs:   itemIDs,
	}
}

func (f *bookingFixture) create(t *testing.T, date, start, end string, itemIDs ...string) *models.Booking {
	t.Helper()
	b, err := f.svc.CreateBooking(context.Background(), bookingRequest(t, date, start, end, itemIDs...), "client-1")
	require.NoError(t, err)
	return b
}

func (f *bookingFixture) confirm(t *testing.T, b *models.Booking) *models.Booking {
	t.Helper()
	confirmed, err := f.svc.ConfirmBooking(context.Background(), b.ID, b.Version, "admin-1")
	require.NoError(t, err)
	return confirmed
}

func TestBookingService_CreateBooking(t *testing.T) {
	f := newBookingFixture(t)

	b := f.create(t, "2024-06-01", "10:00", "12:00", "cam-1", "cam-1", " ")
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, models.StatusPending, b.Status)
	assert.Equal(t, defaultBookingType, b.BookingType)
	assert.Equal(t, int64(1), b.Version)

	reservations, err := f.svc.GetReservations(context.Background(), b.ID)
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	assert.Equal(t, "cam-1", reservations[0].InventoryID)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "New booking request", f.notifier.sent[0].Title)
	assert.Equal(t, []string{"admin-1"}, f.notifier.sent[0].Recipients)
	assert.Equal(t, b.ID, f.notifier.sent[0].Payload["booking_id"])

	assert.Equal(t, []string{events.EventBookingCreated}, f.eventTypes())
	assert.Equal(t, []string{SyncUpsert + ":" + b.ID}, f.sync.tasks)
}

func TestBookingService_CreateBookingConflicts(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()
	existing := f.create(t, "2024-06-01", "10:00", "12:00", "cam-1")

	t.Run("OverlappingSlot", func(t *testing.T) {
		_, err := f.svc.CreateBooking(ctx, bookingRequest(t, "2024-06-01", "11:00", "13:00"), "client-2")
		assert.ErrorIs(t, err, ErrSlotConflict)
		assert.Contains(t, err.Error(), "Portrait 10:00")
	})

	t.Run("BackToBackAllowed", func(t *testing.T) {
		_, err := f.svc.CreateBooking(ctx, bookingRequest(t, "2024-06-01", "12:00", "13:00"), "client-2")
		assert.NoError(t, err)
	})

	t.Run("ReservedItem", func(t *testing.T) {
		_, err := f.svc.CreateBooking(ctx, bookingRequest(t, "2024-06-01", "15:00", "16:00", "cam-1"), "client-2")
		assert.ErrorIs(t, err, ErrResourceUnavailable)
		assert.Contains(t, err.Error(), "Camera One")
	})

	t.Run("MaintenanceItem", func(t *testing.T) {
		_, err := f.svc.CreateBooking(ctx, bookingRequest(t, "2024-06-02", "15:00", "16:00", "fog"), "client-2")
		assert.ErrorIs(t, err, ErrResourceUnavailable)
	})

	t.Run("UnknownItem", func(t *testing.T) {
		_, err := f.svc.CreateBooking(ctx, bookingRequest(t, "2024-06-02", "15:00", "16:00", "nope"), "client-2")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("InvalidRange", func(t *testing.T) {
		req := bookingRequest(t, "2024-06-02", "15:00", "16:00")
		req.Start, req.End = req.End, req.Start
		_, err := f.svc.CreateBooking(ctx, req, "client-2")
		assert.ErrorIs(t, err, ErrInvalidRange)
	})

	t.Run("CancelledFreesSlot", func(t *testing.T) {
		_, err := f.svc.CancelBooking(ctx, existing.ID, existing.Version, "admin-1")
		require.NoError(t, err)
		_, err = f.svc.CreateBooking(ctx, bookingRequest(t, "2024-06-01", "10:00", "11:00", "cam-1"), "client-2")
		assert.NoError(t, err)
	})
}

func TestBookingService_CreateBookingLockHeld(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	token, err := f.locker.Acquire(ctx, "2024-06-01", time.Minute)
	require.NoError(t, err)

	_, err = f.svc.CreateBooking(ctx, bookingRequest(t, "2024-06-01", "10:00", "11:00"), "client-1")
	assert.ErrorIs(t, err, database.ErrConcurrentWriteConflict)
	assert.Contains(t, f.eventTypes(), events.EventConflictWriteBlocked)

	require.NoError(t, f.locker.Release(ctx, "2024-06-01", token))
	_, err = f.svc.CreateBooking(ctx, bookingRequest(t, "2024-06-01", "10:00", "11:00"), "client-1")
	assert.NoError(t, err)
}

func TestBookingService_ConfirmBooking(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()
	b := f.create(t, "2024-06-01", "10:00", "12:00")

	confirmed := f.confirm(t, b)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)
	assert.Equal(t, int64(2), confirmed.Version)

	tasks, err := f.svc.GetChecklist(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, len(config.DefaultChecklistTasks()))

	t.Run("AlreadyConfirmedIsNoop", func(t *testing.T) {
		again, err := f.svc.ConfirmBooking(ctx, b.ID, confirmed.Version, "admin-1")
		require.NoError(t, err)
		assert.Equal(t, confirmed.Version, again.Version)

		tasks, err := f.svc.GetChecklist(ctx, b.ID)
		require.NoError(t, err)
		assert.Len(t, tasks, len(config.DefaultChecklistTasks()))
		assert.Equal(t, []string{"New booking request", "Booking confirmed"}, f.notifier.titles())
	})

	t.Run("CancelledCannotBeConfirmed", func(t *testing.T) {
		cancelled, err := f.svc.CancelBooking(ctx, b.ID, confirmed.Version, "admin-1")
		require.NoError(t, err)
		_, err = f.svc.ConfirmBooking(ctx, b.ID, cancelled.Version, "admin-1")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := f.svc.ConfirmBooking(ctx, "missing", 1, "admin-1")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})
}

func TestBookingService_ConfirmStaleVersion(t *testing.T) {
	f := newBookingFixture(t)
	b := f.create(t, "2024-06-01", "10:00", "12:00")

	_, err := f.svc.ConfirmBooking(context.Background(), b.ID, b.Version+5, "admin-1")
	assert.ErrorIs(t, err, database.ErrConcurrentModification)

	current, err := f.svc.GetBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, current.Status)
}

func TestBookingService_RescheduleFlow(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()
	b := f.confirm(t, f.create(t, "2024-06-01", "10:00", "12:00", "cam-1"))

	requested, err := f.svc.RequestReschedule(ctx, b.ID, b.Version, mustDate(t, "2024-06-03"), mustRange(t, "14:00", "16:00"), "client-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRescheduleRequested, requested.Status)
	require.NotNil(t, requested.Reschedule)
	assert.False(t, requested.Reschedule.HasConflict)
	assert.Equal(t, "2024-06-03", timeslot.FormatDate(requested.Reschedule.RequestedDate))

	// The original slot is still held while the request is pending.
	_, err = f.svc.CreateBooking(ctx, bookingRequest(t, "2024-06-01", "11:00", "12:00"), "client-2")
	assert.ErrorIs(t, err, ErrSlotConflict)

	approved, err := f.svc.ApproveReschedule(ctx, b.ID, requested.Version, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, approved.Status)
	assert.Equal(t, "2024-06-03", timeslot.FormatDate(approved.Date))
	assert.Equal(t, "14:00-16:00", approved.Range().String())

	reservations, err := f.svc.GetReservations(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	assert.Equal(t, "2024-06-03", timeslot.FormatDate(reservations[0].ReservedFrom))

	// The old slot is free again.
	_, err = f.svc.CreateBooking(ctx, bookingRequest(t, "2024-06-01", "10:00", "12:00", "cam-1"), "client-2")
	assert.NoError(t, err)

	assert.Contains(t, f.notifier.titles(), "Reschedule requested")
	assert.Contains(t, f.eventTypes(), events.EventRescheduleApproved)
}

func TestBookingService_RescheduleConflict(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()
	b := f.confirm(t, f.create(t, "2024-06-01", "10:00", "12:00"))
	f.create(t, "2024-06-01", "14:00", "15:00")

	requested, err := f.svc.RequestReschedule(ctx, b.ID, b.Version, mustDate(t, "2024-06-01"), mustRange(t, "13:30", "14:30"), "client-1")
	require.NoError(t, err)
	assert.True(t, requested.Reschedule.HasConflict)
	assert.Contains(t, f.notifier.sent[len(f.notifier.sent)-1].Message, "overlaps another booking")

	_, err = f.svc.ApproveReschedule(ctx, b.ID, requested.Version, "admin-1")
	assert.ErrorIs(t, err, ErrSlotConflict)

	current, err := f.svc.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRescheduleRequested, current.Status)
	assert.Equal(t, "10:00-12:00", current.Range().String())
}

func TestBookingService_RescheduleEquipmentTaken(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()
	b := f.confirm(t, f.create(t, "2024-06-01", "10:00", "12:00", "cam-1"))
	f.create(t, "2024-06-05", "08:00", "09:00", "cam-1")

	requested, err := f.svc.RequestReschedule(ctx, b.ID, b.Version, mustDate(t, "2024-06-05"), mustRange(t, "10:00", "12:00"), "client-1")
	require.NoError(t, err)

	_, err = f.svc.ApproveReschedule(ctx, b.ID, requested.Version, "admin-1")
	assert.ErrorIs(t, err, ErrResourceUnavailable)
}

func TestBookingService_RescheduleRules(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	pending := f.create(t, "2024-06-01", "10:00", "12:00")
	_, err := f.svc.RequestReschedule(ctx, pending.ID, pending.Version, mustDate(t, "2024-06-02"), mustRange(t, "10:00", "12:00"), "client-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.ApproveReschedule(ctx, pending.ID, pending.Version, "admin-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	confirmed := f.confirm(t, pending)
	inverted := timeslot.Range{Start: timeslot.MustClock("12:00"), End: timeslot.MustClock("10:00")}
	_, err = f.svc.RequestReschedule(ctx, confirmed.ID, confirmed.Version, mustDate(t, "2024-06-02"), inverted, "client-1")
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestBookingService_ConfirmDelegatesToApprove(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()
	b := f.confirm(t, f.create(t, "2024-06-01", "10:00", "12:00"))

	requested, err := f.svc.RequestReschedule(ctx, b.ID, b.Version, mustDate(t, "2024-06-01"), mustRange(t, "15:00", "17:00"), "client-1")
	require.NoError(t, err)

	confirmed, err := f.svc.ConfirmBooking(ctx, b.ID, requested.Version, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)
	assert.Equal(t, "15:00-17:00", confirmed.Range().String())
}

func TestBookingService_CancelBooking(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()
	b := f.create(t, "2024-06-01", "10:00", "12:00", "cam-1")

	cancelled, err := f.svc.CancelBooking(ctx, b.ID, b.Version, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	reservations, err := f.svc.GetReservations(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, reservations)

	_, err = f.svc.CancelBooking(ctx, b.ID, cancelled.Version, "admin-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.Contains(t, f.sync.tasks, SyncUpdateStatus+":"+b.ID)
	assert.Contains(t, f.eventTypes(), events.EventBookingCancelled)
}

func TestBookingService_AssignEquipment(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()
	first := f.create(t, "2024-06-01", "10:00", "12:00")
	second := f.create(t, "2024-06-01", "13:00", "14:00")

	reservations, err := f.svc.AssignEquipment(ctx, first.ID, []string{"cam-1", "cam-2"}, "admin-1")
	require.NoError(t, err)
	assert.Len(t, reservations, 2)

	// Assigning again to the same booking is idempotent.
	_, err = f.svc.AssignEquipment(ctx, first.ID, []string{"cam-1"}, "admin-1")
	assert.NoError(t, err)

	_, err = f.svc.AssignEquipment(ctx, second.ID, []string{"cam-2"}, "admin-1")
	assert.ErrorIs(t, err, ErrResourceUnavailable)

	_, err = f.svc.AssignEquipment(ctx, second.ID, nil, "admin-1")
	assert.ErrorIs(t, err, ErrResourceUnavailable)

	_, err = f.svc.AssignEquipment(ctx, second.ID, []string{"fog"}, "admin-1")
	assert.ErrorIs(t, err, ErrResourceUnavailable)

	cancelled, err := f.svc.CancelBooking(ctx, second.ID, second.Version, "admin-1")
	require.NoError(t, err)
	_, err = f.svc.AssignEquipment(ctx, cancelled.ID, []string{"cam-1"}, "admin-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.Contains(t, f.eventTypes(), events.EventEquipmentAssigned)
}

func TestBookingService_ConfirmRechecksEquipment(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()
	b := f.create(t, "2024-06-01", "10:00", "12:00", "cam-1")

	require.NoError(t, f.db.LogMaintenance(ctx, &models.MaintenanceLog{ItemID: "cam-1", Action: "start", LoggedBy: "staff-1"}, models.ItemMaintenance))

	_, err := f.svc.ConfirmBooking(ctx, b.ID, b.Version, "admin-1")
	assert.ErrorIs(t, err, ErrResourceUnavailable)

	current, err := f.svc.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, current.Status)
	tasks, err := f.svc.GetChecklist(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	// releasing the broken camera unblocks confirmation
	require.NoError(t, f.svc.RemoveEquipment(ctx, b.ID, "cam-1", "admin-1"))
	confirmed := f.confirm(t, current)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)
}

func TestBookingService_RemoveEquipment(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()
	b := f.create(t, "2024-06-01", "10:00", "12:00", "cam-1", "cam-2")

	require.NoError(t, f.svc.RemoveEquipment(ctx, b.ID, "cam-1", "admin-1"))

	reservations, err := f.svc.GetReservations(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	assert.Equal(t, "cam-2", reservations[0].InventoryID)
	assert.Contains(t, f.eventTypes(), events.EventEquipmentRemoved)
	assert.Contains(t, f.sync.tasks, SyncUpsert+":"+b.ID)

	// the released item can go to another booking on the same day
	other := f.create(t, "2024-06-01", "13:00", "14:00")
	_, err = f.svc.AssignEquipment(ctx, other.ID, []string{"cam-1"}, "admin-1")
	assert.NoError(t, err)

	t.Run("NotReserved", func(t *testing.T) {
		err := f.svc.RemoveEquipment(ctx, b.ID, "cam-1", "admin-1")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("MissingBooking", func(t *testing.T) {
		err := f.svc.RemoveEquipment(ctx, "missing", "cam-2", "admin-1")
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("CancelledBooking", func(t *testing.T) {
		cancelled, err := f.svc.CancelBooking(ctx, other.ID, other.Version, "admin-1")
		require.NoError(t, err)
		err = f.svc.RemoveEquipment(ctx, cancelled.ID, "cam-1", "admin-1")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestBookingService_GetBookingsByDateRange(t *testing.T) {
	f := newBookingFixture(t)
	f.create(t, "2024-06-01", "10:00", "12:00")
	f.create(t, "2024-06-03", "10:00", "12:00")
	f.create(t, "2024-06-10", "10:00", "12:00")

	got, err := f.svc.GetBookingsByDateRange(context.Background(), mustDate(t, "2024-06-01"), mustDate(t, "2024-06-05"))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = f.svc.GetBookingsByDateRange(context.Background(), mustDate(t, "2024-06-05"), mustDate(t, "2024-06-01"))
	assert.ErrorIs(t, err, ErrInvalidRange)
}
