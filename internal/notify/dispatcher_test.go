package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"studiodesk/internal/database"
	"studiodesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func setup(t *testing.T) (*database.DB, *zerolog.Logger) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.UpsertStaff(ctx, &models.Staff{ID: "admin-1", Name: "Alex", Role: models.RoleAdmin, TelegramChatID: 555}))
	require.NoError(t, db.UpsertStaff(ctx, &models.Staff{ID: "admin-2", Name: "Robin", Role: models.RoleAdmin}))
	return db, &logger
}

func TestDispatcher_Notify(t *testing.T) {
	db, logger := setup(t)
	sender := new(MockSender)
	d := NewDispatcher(db, db, sender, logger)
	ctx := context.Background()

	sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == 555 && msg.Text == "*Booking confirmed*\nPortrait\\_A is confirmed."
	})).Return(tgbotapi.Message{}, nil).Once()

	err := d.Notify(ctx, []string{"admin-1", "admin-2"}, "Booking confirmed", "Portrait_A is confirmed.",
		map[string]any{"booking_id": "b-1"})
	require.NoError(t, err)
	sender.AssertExpectations(t)

	for _, id := range []string{"admin-1", "admin-2"} {
		unread, err := d.Unread(ctx, id)
		require.NoError(t, err)
		require.Len(t, unread, 1, id)
		assert.Equal(t, "Booking confirmed", unread[0].Title)

		var payload map[string]any
		require.NoError(t, json.Unmarshal([]byte(unread[0].Payload), &payload))
		assert.Equal(t, "b-1", payload["booking_id"])
	}
}

func TestDispatcher_MarkRead(t *testing.T) {
	db, logger := setup(t)
	d := NewDispatcher(db, db, nil, logger)
	ctx := context.Background()

	require.NoError(t, d.Notify(ctx, []string{"admin-2"}, "New booking request", "Needs approval.", nil))

	unread, err := d.Unread(ctx, "admin-2")
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "{}", unread[0].Payload)

	require.NoError(t, d.MarkRead(ctx, unread[0].ID))

	unread, err = d.Unread(ctx, "admin-2")
	require.NoError(t, err)
	assert.Empty(t, unread)

	all, err := d.All(ctx, "admin-2")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Read)

	assert.ErrorIs(t, d.MarkRead(ctx, "missing"), database.ErrNotFound)
}

func TestDispatcher_TelegramFailureIsNotFatal(t *testing.T) {
	db, logger := setup(t)
	sender := new(MockSender)
	d := NewDispatcher(db, db, sender, logger)

	sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, errors.New("chat not found")).Once()

	err := d.Notify(context.Background(), []string{"admin-1"}, "Reschedule requested", "Move it.", nil)
	require.NoError(t, err)

	unread, err := d.Unread(context.Background(), "admin-1")
	require.NoError(t, err)
	assert.Len(t, unread, 1)
}

func TestDispatcher_UnknownRecipientSkipsTelegram(t *testing.T) {
	db, logger := setup(t)
	sender := new(MockSender)
	d := NewDispatcher(db, db, sender, logger)

	require.NoError(t, d.Notify(context.Background(), []string{"ghost"}, "Title", "Body", nil))
	sender.AssertNotCalled(t, "Send", mock.Anything)
}
