package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"studiodesk/internal/domain"
	"studiodesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Dispatcher stores an in-app notification per recipient and, when a
// Telegram sender is configured, pushes the message to the staff member's
// chat.
type Dispatcher struct {
	store  domain.NotificationStore
	staff  domain.StaffRepository
	sender domain.TelegramSender
	logger *zerolog.Logger
}

func NewDispatcher(store domain.NotificationStore, staff domain.StaffRepository, sender domain.TelegramSender, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:  store,
		staff:  staff,
		sender: sender,
		logger: logger,
	}
}

// Notify returns the joined storage errors. Telegram delivery failures are
// logged only; the in-app notification is the record.
func (d *Dispatcher) Notify(ctx context.Context, recipients []string, title, message string, payload map[string]any) error {
	raw := "{}"
	if len(payload) > 0 {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode notification payload: %w", err)
		}
		raw = string(data)
	}

	var errs []error
	for _, recipient := range recipients {
		n := &models.Notification{
			RecipientID: recipient,
			Title:       title,
			Message:     message,
			Payload:     raw,
		}
		if err := d.store.CreateNotification(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("store notification for %s: %w", recipient, err))
			continue
		}
		d.sendTelegram(ctx, recipient, title, message)
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) sendTelegram(ctx context.Context, recipient, title, message string) {
	if d.sender == nil || d.staff == nil {
		return
	}

	member, err := d.staff.GetStaff(ctx, recipient)
	if err != nil {
		d.logger.Debug().Err(err).Str("recipient", recipient).Msg("skip telegram: staff lookup failed")
		return
	}
	if member.TelegramChatID == 0 {
		return
	}

	msg := tgbotapi.NewMessage(member.TelegramChatID, formatMessage(title, message))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := d.sender.Send(msg); err != nil {
		d.logger.Warn().Err(err).Str("recipient", recipient).Int64("chat_id", member.TelegramChatID).Msg("telegram send failed")
	}
}

// Unread lists a recipient's unread notifications, newest first.
func (d *Dispatcher) Unread(ctx context.Context, recipient string) ([]*models.Notification, error) {
	return d.store.GetNotifications(ctx, recipient, true)
}

func (d *Dispatcher) All(ctx context.Context, recipient string) ([]*models.Notification, error) {
	return d.store.GetNotifications(ctx, recipient, false)
}

func (d *Dispatcher) MarkRead(ctx context.Context, id string) error {
	return d.store.MarkNotificationRead(ctx, id)
}

func formatMessage(title, message string) string {
	return fmt.Sprintf("*%s*\n%s", escapeMarkdown(title), escapeMarkdown(message))
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
