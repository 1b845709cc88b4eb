package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"studiodesk/internal/database"
	"studiodesk/internal/models"
	"studiodesk/internal/timeslot"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockBookingRepository) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

func (m *MockBookingRepository) FindOverlappingBookings(ctx context.Context, date time.Time, rng timeslot.Range, excludeID string) ([]*models.Booking, error) {
	args := m.Called(ctx, date, rng, excludeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

func (m *MockBookingRepository) CreateBookingWithLock(ctx context.Context, b *models.Booking, itemIDs []string) error {
	return m.Called(ctx, b, itemIDs).Error(0)
}

func (m *MockBookingRepository) UpdateBookingStatusWithVersion(ctx context.Context, id string, v int64, s string) error {
	return m.Called(ctx, id, v, s).Error(0)
}

func (m *MockBookingRepository) SaveRescheduleRequest(ctx context.Context, id string, v int64, info *models.RescheduleInfo) error {
	return m.Called(ctx, id, v, info).Error(0)
}

func (m *MockBookingRepository) ApplyReschedule(ctx context.Context, id string, v int64) (*models.Booking, error) {
	args := m.Called(ctx, id, v)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockBookingRepository) CancelBookingWithVersion(ctx context.Context, id string, v int64) error {
	return m.Called(ctx, id, v).Error(0)
}

func (m *MockBookingRepository) CreateChecklistTasks(ctx context.Context, id string, tasks []*models.ChecklistTask) (int, error) {
	args := m.Called(ctx, id, tasks)
	return args.Int(0), args.Error(1)
}

func (m *MockBookingRepository) GetChecklistTasks(ctx context.Context, id string) ([]*models.ChecklistTask, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ChecklistTask), args.Error(1)
}

type MockInventoryRepository struct {
	mock.Mock
}

func (m *MockInventoryRepository) FindReservedItems(ctx context.Context, ids []string, w timeslot.DateRange, exclude string) ([]string, error) {
	args := m.Called(ctx, ids, w, exclude)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockInventoryRepository) ReservedItemsInRange(ctx context.Context, w timeslot.DateRange) ([]string, error) {
	args := m.Called(ctx, w)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockInventoryRepository) CreateReservations(ctx context.Context, bookingID string, ids []string, w timeslot.DateRange) ([]*models.InventoryReservation, error) {
	args := m.Called(ctx, bookingID, ids, w)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.InventoryReservation), args.Error(1)
}

func (m *MockInventoryRepository) GetReservationsByBooking(ctx context.Context, bookingID string) ([]*models.InventoryReservation, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.InventoryReservation), args.Error(1)
}

func (m *MockInventoryRepository) DeleteReservation(ctx context.Context, bookingID, itemID string) error {
	return m.Called(ctx, bookingID, itemID).Error(0)
}

func (m *MockInventoryRepository) GetReservationsInRange(ctx context.Context, w timeslot.DateRange) ([]*models.InventoryReservation, error) {
	args := m.Called(ctx, w)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.InventoryReservation), args.Error(1)
}

func (m *MockInventoryRepository) ListInventoryItems(ctx context.Context) ([]*models.InventoryItem, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.InventoryItem), args.Error(1)
}

func (m *MockInventoryRepository) GetInventoryItem(ctx context.Context, id string) (*models.InventoryItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InventoryItem), args.Error(1)
}

func (m *MockInventoryRepository) GetInventoryItems(ctx context.Context, ids []string) ([]*models.InventoryItem, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.InventoryItem), args.Error(1)
}

func (m *MockInventoryRepository) UpsertInventoryItem(ctx context.Context, item *models.InventoryItem) error {
	return m.Called(ctx, item).Error(0)
}

func (m *MockInventoryRepository) LogMaintenance(ctx context.Context, entry *models.MaintenanceLog, status string) error {
	return m.Called(ctx, entry, status).Error(0)
}

func (m *MockInventoryRepository) GetMaintenanceLogs(ctx context.Context, itemID string) ([]*models.MaintenanceLog, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.MaintenanceLog), args.Error(1)
}

type oracleFunc func(ctx context.Context, prompt string) (string, error)

func (f oracleFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type sentNotification struct {
	Recipients []string
	Title      string
	Message    string
	Payload    map[string]any
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, recipients []string, title, message string, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Recipients: recipients, Title: title, Message: message, Payload: payload})
	return nil
}

func (n *recordingNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Title)
	}
	return out
}

type recordingSync struct {
	mu    sync.Mutex
	tasks []string
}

func (r *recordingSync) EnqueueTask(_ context.Context, taskType string, b *models.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, taskType+":"+b.ID)
	return nil
}

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(":memory:", newTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := timeslot.ParseDate(s)
	require.NoError(t, err)
	return d
}

func mustRange(t *testing.T, start, end string) timeslot.Range {
	t.Helper()
	r, err := timeslot.ParseRange(start, end)
	require.NoError(t, err)
	return r
}

// seedBooking inserts a booking straight into storage.
func seedBooking(t *testing.T, db *database.DB, date, start, end, status string, itemIDs ...string) *models.Booking {
	t.Helper()
	r := mustRange(t, start, end)
	b := &models.Booking{
		Date:        mustDate(t, date),
		Start:       r.Start,
		End:         r.End,
		BookingType: "photo",
		EventName:   "Shoot " + start,
		Status:      status,
	}
	require.NoError(t, db.CreateBookingWithLock(context.Background(), b, itemIDs))
	return b
}

func seedInventory(t *testing.T, db *database.DB, items ...*models.InventoryItem) {
	t.Helper()
	for _, item := range items {
		require.NoError(t, db.UpsertInventoryItem(context.Background(), item))
	}
}
