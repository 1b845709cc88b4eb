package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"studiodesk/internal/models"
	"studiodesk/internal/timeslot"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

func bookingSelect() sq.SelectBuilder {
	return sq.Select(
		"b.id", "b.date", "b.start_time", "b.end_time", "b.booking_type", "b.event_name",
		"b.status", "b.client_id", "b.notes", "b.blocked", "b.version", "b.created_at", "b.updated_at",
		"r.original_date", "r.original_start_time", "r.original_end_time",
		"r.requested_date", "r.requested_start_time", "r.requested_end_time",
		"r.has_conflict", "r.requested_by", "r.requested_at",
	).From("bookings b").LeftJoin("booking_reschedules r ON r.booking_id = b.id")
}

func scanBooking(row scanner) (*models.Booking, error) {
	var (
		b                   models.Booking
		date, start, end    string
		origDate, origStart sql.NullString
		origEnd, reqDate    sql.NullString
		reqStart, reqEnd    sql.NullString
		hasConflict         sql.NullBool
		requestedBy         sql.NullString
		requestedAt         sql.NullTime
	)
	err := row.Scan(
		&b.ID, &date, &start, &end, &b.BookingType, &b.EventName,
		&b.Status, &b.ClientID, &b.Notes, &b.Blocked, &b.Version, &b.CreatedAt, &b.UpdatedAt,
		&origDate, &origStart, &origEnd, &reqDate, &reqStart, &reqEnd,
		&hasConflict, &requestedBy, &requestedAt,
	)
	if err != nil {
		return nil, err
	}

	if b.Date, err = timeslot.ParseDate(date); err != nil {
		return nil, fmt.Errorf("failed to parse booking date %s: %w", date, err)
	}
	if b.Start, err = timeslot.ParseClock(start); err != nil {
		return nil, fmt.Errorf("failed to parse booking start %s: %w", start, err)
	}
	if b.End, err = timeslot.ParseClock(end); err != nil {
		return nil, fmt.Errorf("failed to parse booking end %s: %w", end, err)
	}

	if origDate.Valid {
		info := &models.RescheduleInfo{
			HasConflict: hasConflict.Bool,
			RequestedBy: requestedBy.String,
			RequestedAt: requestedAt.Time,
		}
		if info.OriginalDate, err = timeslot.ParseDate(origDate.String); err != nil {
			return nil, err
		}
		if info.RequestedDate, err = timeslot.ParseDate(reqDate.String); err != nil {
			return nil, err
		}
		if info.OriginalStart, err = timeslot.ParseClock(origStart.String); err != nil {
			return nil, err
		}
		if info.OriginalEnd, err = timeslot.ParseClock(origEnd.String); err != nil {
			return nil, err
		}
		if info.RequestedStart, err = timeslot.ParseClock(reqStart.String); err != nil {
			return nil, err
		}
		if info.RequestedEnd, err = timeslot.ParseClock(reqEnd.String); err != nil {
			return nil, err
		}
		b.Reschedule = info
	}

	return &b, nil
}

func queryBookings(ctx context.Context, r runner, q sq.SelectBuilder, op string) ([]*models.Booking, error) {
	query, args, err := toSQL(q)
	if err != nil {
		return nil, err
	}

	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return bookings, nil
}

func insertBooking(ctx context.Context, r runner, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	if booking.Status == "" {
		booking.Status = models.StatusPending
	}
	now := time.Now()

	query, args, err := toSQL(sq.Insert("bookings").
		Columns("id", "date", "start_time", "end_time", "booking_type", "event_name",
			"status", "client_id", "notes", "blocked", "version", "created_at", "updated_at").
		Values(booking.ID, timeslot.FormatDate(booking.Date), booking.Start.String(), booking.End.String(),
			booking.BookingType, booking.EventName, booking.Status, booking.ClientID, booking.Notes,
			booking.Blocked, 1, now, now))
	if err != nil {
		return err
	}

	if _, err := r.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create booking: %w", mapWriteError(err))
	}

	booking.Date = timeslot.Day(booking.Date)
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

// CreateBooking inserts a booking without the in-transaction re-check. The
// overlap trigger still rejects double bookings.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	return insertBooking(ctx, db.DB, booking)
}

// CreateBookingWithLock re-checks the studio slot and the requested items
// inside one transaction, then inserts the booking and its reservations.
func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking, itemIDs []string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		// 1. Re-check the slot inside the transaction
		overlapping, err := findOverlapping(ctx, tx, booking.Date, booking.Range(), "")
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			return ErrConcurrentWriteConflict
		}

		// 2. Re-check equipment for the booking date
		window := timeslot.SingleDay(booking.Date)
		if len(itemIDs) > 0 {
			reserved, err := findReserved(ctx, tx, itemIDs, window, "")
			if err != nil {
				return err
			}
			if len(reserved) > 0 {
				return fmt.Errorf("%w: %s", ErrNotAvailable, strings.Join(reserved, ", "))
			}
		}

		// 3. Write
		if err := insertBooking(ctx, tx, booking); err != nil {
			return err
		}
		_, err = insertReservations(ctx, tx, booking.ID, itemIDs, window)
		return err
	})
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return getBooking(ctx, db.DB, id)
}

func getBooking(ctx context.Context, r runner, id string) (*models.Booking, error) {
	query, args, err := toSQL(bookingSelect().Where(sq.Eq{"b.id": id}))
	if err != nil {
		return nil, err
	}

	b, err := scanBooking(r.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get booking", err)
	}
	return b, nil
}

// GetBookingsByDateRange returns every booking between two dates inclusive,
// cancelled ones included.
func (db *DB) GetBookingsByDateRange(ctx context.Context, startDate, endDate time.Time) ([]*models.Booking, error) {
	q := bookingSelect().
		Where(sq.GtOrEq{"b.date": timeslot.FormatDate(startDate)}).
		Where(sq.LtOrEq{"b.date": timeslot.FormatDate(endDate)}).
		OrderBy("b.date ASC", "b.start_time ASC")
	return queryBookings(ctx, db.DB, q, "get bookings by date range")
}

// FindOverlappingBookings returns active bookings on date whose range
// overlaps rng, skipping excludeID.
func (db *DB) FindOverlappingBookings(ctx context.Context, date time.Time, rng timeslot.Range, excludeID string) ([]*models.Booking, error) {
	return findOverlapping(ctx, db.DB, date, rng, excludeID)
}

func findOverlapping(ctx context.Context, r runner, date time.Time, rng timeslot.Range, excludeID string) ([]*models.Booking, error) {
	q := bookingSelect().
		Where(sq.Eq{"b.date": timeslot.FormatDate(date)}).
		Where(sq.NotEq{"b.status": models.StatusCancelled}).
		Where(sq.Lt{"b.start_time": rng.End.String()}).
		Where(sq.Gt{"b.end_time": rng.Start.String()}).
		OrderBy("b.start_time ASC", "b.id ASC")
	if excludeID != "" {
		q = q.Where(sq.NotEq{"b.id": excludeID})
	}
	return queryBookings(ctx, r, q, "find overlapping bookings")
}

func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id string, fromVersion int64, status string) error {
	query, args, err := toSQL(sq.Update("bookings").
		Set("status", status).
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id, "version": fromVersion}))
	if err != nil {
		return err
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", mapWriteError(err))
	}
	return checkAffected(result)
}

// SaveRescheduleRequest moves the booking to reschedule_requested and stores
// the requested slot. The original slot stays held.
func (db *DB) SaveRescheduleRequest(ctx context.Context, id string, fromVersion int64, info *models.RescheduleInfo) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
			models.StatusRescheduleRequested, time.Now(), id, fromVersion)
		if err != nil {
			return fmt.Errorf("failed to update booking status: %w", mapWriteError(err))
		}
		if err := checkAffected(result); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO booking_reschedules (
				booking_id, original_date, original_start_time, original_end_time,
				requested_date, requested_start_time, requested_end_time,
				has_conflict, requested_by, requested_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(booking_id) DO UPDATE SET
				original_date = excluded.original_date,
				original_start_time = excluded.original_start_time,
				original_end_time = excluded.original_end_time,
				requested_date = excluded.requested_date,
				requested_start_time = excluded.requested_start_time,
				requested_end_time = excluded.requested_end_time,
				has_conflict = excluded.has_conflict,
				requested_by = excluded.requested_by,
				requested_at = excluded.requested_at`,
			id,
			timeslot.FormatDate(info.OriginalDate), info.OriginalStart.String(), info.OriginalEnd.String(),
			timeslot.FormatDate(info.RequestedDate), info.RequestedStart.String(), info.RequestedEnd.String(),
			info.HasConflict, info.RequestedBy, info.RequestedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save reschedule request: %w", err)
		}
		return nil
	})
}

// ApplyReschedule moves the booking to its requested slot, shifts its
// reservations by the same number of days and confirms it.
func (db *DB) ApplyReschedule(ctx context.Context, id string, fromVersion int64) (*models.Booking, error) {
	var updated *models.Booking
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		b, err := getBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if b.Reschedule == nil {
			return fmt.Errorf("reschedule request for booking %s: %w", id, ErrNotFound)
		}
		info := b.Reschedule

		overlapping, err := findOverlapping(ctx, tx, info.RequestedDate, info.RequestedRange(), id)
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			return ErrConcurrentWriteConflict
		}

		shiftDays := int(info.RequestedDate.Sub(b.Date).Hours() / 24)
		if shiftDays != 0 {
			if err := shiftReservations(ctx, tx, id, shiftDays); err != nil {
				return err
			}
		}

		now := time.Now()
		result, err := tx.ExecContext(ctx, `UPDATE bookings
			SET date = ?, start_time = ?, end_time = ?, status = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`,
			timeslot.FormatDate(info.RequestedDate), info.RequestedStart.String(), info.RequestedEnd.String(),
			models.StatusConfirmed, now, id, fromVersion)
		if err != nil {
			return fmt.Errorf("failed to apply reschedule: %w", mapWriteError(err))
		}
		if err := checkAffected(result); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM booking_reschedules WHERE booking_id = ?`, id); err != nil {
			return fmt.Errorf("failed to clear reschedule request: %w", err)
		}

		updated, err = getBooking(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CancelBookingWithVersion cancels the booking and releases its equipment.
func (db *DB) CancelBookingWithVersion(ctx context.Context, id string, fromVersion int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
			models.StatusCancelled, time.Now(), id, fromVersion)
		if err != nil {
			return fmt.Errorf("failed to cancel booking: %w", err)
		}
		if err := checkAffected(result); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM inventory_reservations WHERE booking_id = ?`, id); err != nil {
			return fmt.Errorf("failed to release reservations: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM booking_reschedules WHERE booking_id = ?`, id); err != nil {
			return fmt.Errorf("failed to clear reschedule request: %w", err)
		}
		return nil
	})
}
