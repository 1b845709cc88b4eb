package models

import "time"

type Staff struct {
	ID             string    `json:"id" yaml:"id"`
	Name           string    `json:"name" yaml:"name"`
	Role           string    `json:"role" yaml:"role"`
	TelegramChatID int64     `json:"telegram_chat_id,omitempty" yaml:"telegram_chat_id"`
	CreatedAt      time.Time `json:"created_at" yaml:"-"`
}

func (s *Staff) IsAdmin() bool {
	return s.Role == RoleAdmin
}

type ChecklistTask struct {
	ID        string    `json:"id"`
	BookingID string    `json:"booking_id"`
	TaskType  string    `json:"task_type"`
	Title     string    `json:"title"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"created_at"`
}

type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Payload     string    `json:"payload"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}
