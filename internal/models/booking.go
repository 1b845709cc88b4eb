package models

import (
	"time"

	"studiodesk/internal/timeslot"
)

type Booking struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Start       timeslot.Clock  `json:"start_time"`
	End         timeslot.Clock  `json:"end_time"`
	BookingType string          `json:"booking_type"`
	EventName   string          `json:"event_name,omitempty"`
	Status      string          `json:"status"` // pending, confirmed, cancelled, reschedule_requested
	ClientID    string          `json:"client_id,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	Blocked     bool            `json:"blocked"`
	Reschedule  *RescheduleInfo `json:"reschedule,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Version     int64           `json:"version"`
}

// Range returns the booking's wall-clock interval.
func (b *Booking) Range() timeslot.Range {
	return timeslot.Range{Start: b.Start, End: b.End}
}

// Active reports whether the booking occupies the studio.
func (b *Booking) Active() bool {
	return b.Status != StatusCancelled
}

// DisplayName is what staff see in conflict reports and notifications.
func (b *Booking) DisplayName() string {
	if b.EventName != "" {
		return b.EventName
	}
	if b.Blocked {
		return "Blocked"
	}
	return b.BookingType
}

// RescheduleInfo is the pending move of a confirmed booking.
type RescheduleInfo struct {
	OriginalDate   time.Time      `json:"original_date"`
	OriginalStart  timeslot.Clock `json:"original_start_time"`
	OriginalEnd    timeslot.Clock `json:"original_end_time"`
	RequestedDate  time.Time      `json:"requested_date"`
	RequestedStart timeslot.Clock `json:"requested_start_time"`
	RequestedEnd   timeslot.Clock `json:"requested_end_time"`
	HasConflict    bool           `json:"has_conflict"`
	RequestedBy    string         `json:"requested_by"`
	RequestedAt    time.Time      `json:"requested_at"`
}

func (r *RescheduleInfo) RequestedRange() timeslot.Range {
	return timeslot.Range{Start: r.RequestedStart, End: r.RequestedEnd}
}

// BookingSummary is the trimmed view of a booking used in conflict reports.
type BookingSummary struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Date  string         `json:"date"`
	Start timeslot.Clock `json:"start_time"`
	End   timeslot.Clock `json:"end_time"`
}

func SummarizeBooking(b *Booking) BookingSummary {
	return BookingSummary{
		ID:    b.ID,
		Name:  b.DisplayName(),
		Date:  timeslot.FormatDate(b.Date),
		Start: b.Start,
		End:   b.End,
	}
}
