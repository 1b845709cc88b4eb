package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	// ErrStorageQuery wraps any failed read used by a conflict decision.
	ErrStorageQuery = errors.New("storage query failed")
	// ErrConcurrentWriteConflict means the slot was taken between the check
	// and the write.
	ErrConcurrentWriteConflict = errors.New("someone else just booked this slot, please retry")
	// ErrConcurrentModification means the row version changed under us.
	ErrConcurrentModification = errors.New("booking was modified concurrently")
	ErrNotFound               = errors.New("not found")
	// ErrNotAvailable means an inventory item is already reserved for the window.
	ErrNotAvailable = errors.New("inventory item is not available")
)

const overlapTriggerMsg = "booking_overlap"

type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		// Создаем директорию для БД, если её нет
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps :memory: alive.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := sqlDB.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{DB: sqlDB, path: path, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Бронирования студии: даты YYYY-MM-DD, время HH:MM
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            date TEXT NOT NULL,
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            booking_type TEXT NOT NULL,
            event_name TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            client_id TEXT NOT NULL DEFAULT '',
            notes TEXT NOT NULL DEFAULT '',
            blocked BOOLEAN NOT NULL DEFAULT 0,
            version INTEGER NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            CHECK (start_time < end_time)
        )`,
		`CREATE TABLE IF NOT EXISTS booking_reschedules (
            booking_id TEXT PRIMARY KEY REFERENCES bookings(id) ON DELETE CASCADE,
            original_date TEXT NOT NULL,
            original_start_time TEXT NOT NULL,
            original_end_time TEXT NOT NULL,
            requested_date TEXT NOT NULL,
            requested_start_time TEXT NOT NULL,
            requested_end_time TEXT NOT NULL,
            has_conflict BOOLEAN NOT NULL DEFAULT 0,
            requested_by TEXT NOT NULL DEFAULT '',
            requested_at DATETIME NOT NULL
        )`,
		// Оборудование и резервы
		`CREATE TABLE IF NOT EXISTS inventory_items (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            category TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'available',
            tags TEXT NOT NULL DEFAULT '[]',
            notes TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS inventory_reservations (
            id TEXT PRIMARY KEY,
            inventory_id TEXT NOT NULL REFERENCES inventory_items(id),
            booking_id TEXT NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
            reserved_from TEXT NOT NULL,
            reserved_until TEXT NOT NULL,
            created_at DATETIME NOT NULL,
            UNIQUE (inventory_id, booking_id),
            CHECK (reserved_from <= reserved_until)
        )`,
		`CREATE TABLE IF NOT EXISTS maintenance_logs (
            id TEXT PRIMARY KEY,
            item_id TEXT NOT NULL REFERENCES inventory_items(id),
            action TEXT NOT NULL,
            notes TEXT NOT NULL DEFAULT '',
            logged_by TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS checklist_tasks (
            id TEXT PRIMARY KEY,
            booking_id TEXT NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
            task_type TEXT NOT NULL,
            title TEXT NOT NULL,
            done BOOLEAN NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL,
            UNIQUE (booking_id, task_type)
        )`,
		`CREATE TABLE IF NOT EXISTS staff (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            role TEXT NOT NULL,
            telegram_chat_id INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS notifications (
            id TEXT PRIMARY KEY,
            recipient_id TEXT NOT NULL,
            title TEXT NOT NULL,
            message TEXT NOT NULL,
            payload TEXT NOT NULL DEFAULT '{}',
            is_read BOOLEAN NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            booking_id TEXT NOT NULL,
            payload TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		// Последний рубеж против двойного бронирования
		`CREATE TRIGGER IF NOT EXISTS trg_bookings_overlap_insert
        BEFORE INSERT ON bookings
        WHEN NEW.status != 'cancelled'
        BEGIN
            SELECT RAISE(ABORT, 'booking_overlap')
            WHERE EXISTS (
                SELECT 1 FROM bookings b
                WHERE b.date = NEW.date
                  AND b.status != 'cancelled'
                  AND b.start_time < NEW.end_time
                  AND NEW.start_time < b.end_time
            );
        END`,
		`CREATE TRIGGER IF NOT EXISTS trg_bookings_overlap_update
        BEFORE UPDATE OF date, start_time, end_time, status ON bookings
        WHEN NEW.status != 'cancelled'
        BEGIN
            SELECT RAISE(ABORT, 'booking_overlap')
            WHERE EXISTS (
                SELECT 1 FROM bookings b
                WHERE b.id != NEW.id
                  AND b.date = NEW.date
                  AND b.status != 'cancelled'
                  AND b.start_time < NEW.end_time
                  AND NEW.start_time < b.end_time
            );
        END`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_date ON bookings(date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_inventory ON inventory_reservations(inventory_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_booking ON inventory_reservations(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// runner is satisfied by *sql.DB and *sql.Tx.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapWriteError(err))
	}
	return nil
}

// mapWriteError turns the overlap trigger abort into ErrConcurrentWriteConflict.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint &&
		strings.Contains(sqliteErr.Error(), overlapTriggerMsg) {
		return ErrConcurrentWriteConflict
	}
	if strings.Contains(err.Error(), overlapTriggerMsg) {
		return ErrConcurrentWriteConflict
	}
	return err
}

// storageErr tags read failures so callers never mistake them for "no rows".
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageQuery, op, err)
}

func toSQL(b sq.Sqlizer) (string, []interface{}, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build query: %w", err)
	}
	return query, args, nil
}

func checkAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}
