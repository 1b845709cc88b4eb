package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"studiodesk/internal/models"

	"github.com/google/uuid"
)

func (db *DB) UpsertStaff(ctx context.Context, s *models.Staff) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	_, err := db.ExecContext(ctx, `INSERT INTO staff (id, name, role, telegram_chat_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			telegram_chat_id = excluded.telegram_chat_id`,
		s.ID, s.Name, s.Role, s.TelegramChatID, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert staff: %w", err)
	}
	return nil
}

func (db *DB) GetStaff(ctx context.Context, id string) (*models.Staff, error) {
	var s models.Staff
	err := db.QueryRowContext(ctx, `SELECT id, name, role, telegram_chat_id, created_at FROM staff WHERE id = ?`, id).
		Scan(&s.ID, &s.Name, &s.Role, &s.TelegramChatID, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("staff %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staff: %w", err)
	}
	return &s, nil
}

// GetStaffByRole lists staff with the given role; an empty role lists everyone.
func (db *DB) GetStaffByRole(ctx context.Context, role string) ([]*models.Staff, error) {
	query := `SELECT id, name, role, telegram_chat_id, created_at FROM staff`
	var args []interface{}
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, role)
	}
	query += ` ORDER BY name ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get staff: %w", err)
	}
	defer rows.Close()

	var staff []*models.Staff
	for rows.Next() {
		var s models.Staff
		if err := rows.Scan(&s.ID, &s.Name, &s.Role, &s.TelegramChatID, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan staff: %w", err)
		}
		staff = append(staff, &s)
	}
	return staff, rows.Err()
}

// CreateChecklistTasks inserts tasks for a booking, skipping task types that
// already exist. Returns how many rows were inserted.
func (db *DB) CreateChecklistTasks(ctx context.Context, bookingID string, tasks []*models.ChecklistTask) (int, error) {
	inserted := 0
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		for _, task := range tasks {
			if task.ID == "" {
				task.ID = uuid.NewString()
			}
			task.BookingID = bookingID
			task.CreatedAt = now

			result, err := tx.ExecContext(ctx, `INSERT INTO checklist_tasks (id, booking_id, task_type, title, done, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(booking_id, task_type) DO NOTHING`,
				task.ID, bookingID, task.TaskType, task.Title, task.Done, now)
			if err != nil {
				return fmt.Errorf("failed to create checklist task %s: %w", task.TaskType, err)
			}
			if rows, _ := result.RowsAffected(); rows > 0 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (db *DB) GetChecklistTasks(ctx context.Context, bookingID string) ([]*models.ChecklistTask, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, booking_id, task_type, title, done, created_at
		FROM checklist_tasks WHERE booking_id = ? ORDER BY task_type ASC`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get checklist tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.ChecklistTask
	for rows.Next() {
		var t models.ChecklistTask
		if err := rows.Scan(&t.ID, &t.BookingID, &t.TaskType, &t.Title, &t.Done, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checklist task: %w", err)
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Payload == "" {
		n.Payload = "{}"
	}
	n.CreatedAt = time.Now()
	_, err := db.ExecContext(ctx, `INSERT INTO notifications (id, recipient_id, title, message, payload, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.RecipientID, n.Title, n.Message, n.Payload, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (db *DB) GetNotifications(ctx context.Context, recipientID string, unreadOnly bool) ([]*models.Notification, error) {
	query := `SELECT id, recipient_id, title, message, payload, is_read, created_at
		FROM notifications WHERE recipient_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.QueryContext(ctx, query, recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &n.Payload, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (db *DB) MarkNotificationRead(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}
