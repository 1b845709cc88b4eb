package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"studiodesk/internal/models"
	"studiodesk/internal/timeslot"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// reservedSelect finds items with a reservation intersecting window whose
// booking is still active. A nil ids slice means every item.
func reservedSelect(ids []string, window timeslot.DateRange, excludeBookingID string) sq.SelectBuilder {
	q := sq.Select("DISTINCT r.inventory_id").
		From("inventory_reservations r").
		Join("bookings b ON b.id = r.booking_id").
		Where(sq.LtOrEq{"r.reserved_from": timeslot.FormatDate(window.Until)}).
		Where(sq.GtOrEq{"r.reserved_until": timeslot.FormatDate(window.From)}).
		Where(sq.NotEq{"b.status": models.StatusCancelled}).
		OrderBy("r.inventory_id ASC")
	if ids != nil {
		q = q.Where(sq.Eq{"r.inventory_id": ids})
	}
	if excludeBookingID != "" {
		q = q.Where(sq.NotEq{"r.booking_id": excludeBookingID})
	}
	return q
}

func findReserved(ctx context.Context, r runner, ids []string, window timeslot.DateRange, excludeBookingID string) ([]string, error) {
	query, args, err := toSQL(reservedSelect(ids, window, excludeBookingID))
	if err != nil {
		return nil, err
	}

	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("find reserved items", err)
	}
	defer rows.Close()

	var reserved []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("find reserved items", err)
		}
		reserved = append(reserved, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("find reserved items", err)
	}
	return reserved, nil
}

// FindReservedItems returns the subset of ids already reserved in window.
func (db *DB) FindReservedItems(ctx context.Context, ids []string, window timeslot.DateRange, excludeBookingID string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return findReserved(ctx, db.DB, ids, window, excludeBookingID)
}

// ReservedItemsInRange returns every item reserved in window.
func (db *DB) ReservedItemsInRange(ctx context.Context, window timeslot.DateRange) ([]string, error) {
	return findReserved(ctx, db.DB, nil, window, "")
}

func insertReservations(ctx context.Context, r runner, bookingID string, itemIDs []string, window timeslot.DateRange) ([]*models.InventoryReservation, error) {
	now := time.Now()
	reservations := make([]*models.InventoryReservation, 0, len(itemIDs))
	for _, itemID := range itemIDs {
		res := &models.InventoryReservation{
			ID:            uuid.NewString(),
			InventoryID:   itemID,
			BookingID:     bookingID,
			ReservedFrom:  window.From,
			ReservedUntil: window.Until,
			CreatedAt:     now,
		}
		_, err := r.ExecContext(ctx, `INSERT INTO inventory_reservations
				(id, inventory_id, booking_id, reserved_from, reserved_until, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(inventory_id, booking_id) DO UPDATE SET
				reserved_from = excluded.reserved_from,
				reserved_until = excluded.reserved_until`,
			res.ID, res.InventoryID, res.BookingID,
			timeslot.FormatDate(res.ReservedFrom), timeslot.FormatDate(res.ReservedUntil), res.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to reserve item %s: %w", itemID, err)
		}
		reservations = append(reservations, res)
	}
	return reservations, nil
}

// CreateReservations checks and reserves items for a booking in one
// transaction. Items already reserved by the same booking are updated.
func (db *DB) CreateReservations(ctx context.Context, bookingID string, itemIDs []string, window timeslot.DateRange) ([]*models.InventoryReservation, error) {
	var created []*models.InventoryReservation
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		reserved, err := findReserved(ctx, tx, itemIDs, window, bookingID)
		if err != nil {
			return err
		}
		if len(reserved) > 0 {
			return fmt.Errorf("%w: %s", ErrNotAvailable, strings.Join(reserved, ", "))
		}
		created, err = insertReservations(ctx, tx, bookingID, itemIDs, window)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func shiftReservations(ctx context.Context, tx *sql.Tx, bookingID string, days int) error {
	reservations, err := reservationsByBooking(ctx, tx, bookingID)
	if err != nil {
		return err
	}

	for _, res := range reservations {
		window := timeslot.DateRange{
			From:  res.ReservedFrom.AddDate(0, 0, days),
			Until: res.ReservedUntil.AddDate(0, 0, days),
		}
		taken, err := findReserved(ctx, tx, []string{res.InventoryID}, window, bookingID)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return fmt.Errorf("%w: %s", ErrNotAvailable, res.InventoryID)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE inventory_reservations SET reserved_from = ?, reserved_until = ? WHERE id = ?`,
			timeslot.FormatDate(window.From), timeslot.FormatDate(window.Until), res.ID); err != nil {
			return fmt.Errorf("failed to move reservation %s: %w", res.ID, err)
		}
	}
	return nil
}

func reservationsByBooking(ctx context.Context, r runner, bookingID string) ([]*models.InventoryReservation, error) {
	q := reservationSelect().Where(sq.Eq{"booking_id": bookingID}).OrderBy("inventory_id ASC")
	return queryReservations(ctx, r, q)
}

func (db *DB) GetReservationsByBooking(ctx context.Context, bookingID string) ([]*models.InventoryReservation, error) {
	return reservationsByBooking(ctx, db.DB, bookingID)
}

// GetReservationsInRange lists reservations intersecting window, for exports.
func (db *DB) GetReservationsInRange(ctx context.Context, window timeslot.DateRange) ([]*models.InventoryReservation, error) {
	q := reservationSelect().
		Where(sq.LtOrEq{"reserved_from": timeslot.FormatDate(window.Until)}).
		Where(sq.GtOrEq{"reserved_until": timeslot.FormatDate(window.From)}).
		OrderBy("reserved_from ASC", "inventory_id ASC")
	return queryReservations(ctx, db.DB, q)
}

func (db *DB) DeleteReservation(ctx context.Context, bookingID, itemID string) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM inventory_reservations WHERE booking_id = ? AND inventory_id = ?`, bookingID, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete reservation: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("reservation %s/%s: %w", bookingID, itemID, ErrNotFound)
	}
	return nil
}

func reservationSelect() sq.SelectBuilder {
	return sq.Select("id", "inventory_id", "booking_id", "reserved_from", "reserved_until", "created_at").
		From("inventory_reservations")
}

func queryReservations(ctx context.Context, r runner, q sq.SelectBuilder) ([]*models.InventoryReservation, error) {
	query, args, err := toSQL(q)
	if err != nil {
		return nil, err
	}

	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("get reservations", err)
	}
	defer rows.Close()

	var out []*models.InventoryReservation
	for rows.Next() {
		var (
			res         models.InventoryReservation
			from, until string
		)
		if err := rows.Scan(&res.ID, &res.InventoryID, &res.BookingID, &from, &until, &res.CreatedAt); err != nil {
			return nil, storageErr("scan reservation", err)
		}
		if res.ReservedFrom, err = timeslot.ParseDate(from); err != nil {
			return nil, err
		}
		if res.ReservedUntil, err = timeslot.ParseDate(until); err != nil {
			return nil, err
		}
		out = append(out, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("get reservations", err)
	}
	return out, nil
}
