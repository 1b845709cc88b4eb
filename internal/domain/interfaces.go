package domain

import (
	"context"
	"errors"
	"time"

	"studiodesk/internal/models"
	"studiodesk/internal/timeslot"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrLockHeld is returned by SlotLocker.Acquire when another writer owns the key.
var ErrLockHeld = errors.New("slot lock is held")

type BookingRepository interface {
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
	FindOverlappingBookings(ctx context.Context, date time.Time, rng timeslot.Range, excludeID string) ([]*models.Booking, error)
	CreateBookingWithLock(ctx context.Context, booking *models.Booking, itemIDs []string) error
	UpdateBookingStatusWithVersion(ctx context.Context, id string, version int64, status string) error
	SaveRescheduleRequest(ctx context.Context, id string, version int64, info *models.RescheduleInfo) error
	ApplyReschedule(ctx context.Context, id string, version int64) (*models.Booking, error)
	CancelBookingWithVersion(ctx context.Context, id string, version int64) error
	CreateChecklistTasks(ctx context.Context, bookingID string, tasks []*models.ChecklistTask) (int, error)
	GetChecklistTasks(ctx context.Context, bookingID string) ([]*models.ChecklistTask, error)
}

type InventoryRepository interface {
	FindReservedItems(ctx context.Context, ids []string, window timeslot.DateRange, excludeBookingID string) ([]string, error)
	ReservedItemsInRange(ctx context.Context, window timeslot.DateRange) ([]string, error)
	CreateReservations(ctx context.Context, bookingID string, itemIDs []string, window timeslot.DateRange) ([]*models.InventoryReservation, error)
	GetReservationsByBooking(ctx context.Context, bookingID string) ([]*models.InventoryReservation, error)
	DeleteReservation(ctx context.Context, bookingID, itemID string) error
	GetReservationsInRange(ctx context.Context, window timeslot.DateRange) ([]*models.InventoryReservation, error)
	ListInventoryItems(ctx context.Context) ([]*models.InventoryItem, error)
	GetInventoryItem(ctx context.Context, id string) (*models.InventoryItem, error)
	GetInventoryItems(ctx context.Context, ids []string) ([]*models.InventoryItem, error)
	UpsertInventoryItem(ctx context.Context, item *models.InventoryItem) error
	LogMaintenance(ctx context.Context, entry *models.MaintenanceLog, status string) error
	GetMaintenanceLogs(ctx context.Context, itemID string) ([]*models.MaintenanceLog, error)
}

type StaffRepository interface {
	UpsertStaff(ctx context.Context, s *models.Staff) error
	GetStaff(ctx context.Context, id string) (*models.Staff, error)
	GetStaffByRole(ctx context.Context, role string) ([]*models.Staff, error)
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotifications(ctx context.Context, recipientID string, unreadOnly bool) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// Oracle turns a prompt into a short natural-language answer.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Notifier delivers a message to staff members by id.
type Notifier interface {
	Notify(ctx context.Context, recipients []string, title, message string, payload map[string]any) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error
}

// SlotLocker serializes writers on a key. Acquire returns a token that must
// be handed back to Release; Release with a stale token is a no-op.
type SlotLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)
	Release(ctx context.Context, key, token string) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	DeleteBookingRow(ctx context.Context, bookingID string) error
	UpdateBookingStatus(ctx context.Context, bookingID, status string) error
}
