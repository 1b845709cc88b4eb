package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"studiodesk/internal/database"
	"studiodesk/internal/domain"
	"studiodesk/internal/models"
	"studiodesk/internal/timeslot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestAssistant(t *testing.T, db *database.DB, oracle domain.Oracle, timeout time.Duration) *Assistant {
	t.Helper()
	logger := newTestLogger()
	return NewAssistant(
		db, db,
		NewConflictChecker(db, logger),
		NewAvailabilityChecker(db, logger),
		NewTagMatcher(db, 5),
		oracle,
		AssistantOptions{
			Hours:            mustRange(t, "09:00", "18:00"),
			SlotStep:         30,
			AlternativeSlots: 3,
			OracleTimeout:    timeout,
		},
		logger,
	)
}

func smartRequest(t *testing.T, date, start, end string, itemIDs ...string) SmartBookingRequest {
	r := mustRange(t, start, end)
	return SmartBookingRequest{Date: mustDate(t, date), Start: r.Start, End: r.End, ItemIDs: itemIDs}
}

func seedStudioInventory(t *testing.T, db *database.DB) {
	seedInventory(t, db,
		&models.InventoryItem{ID: "cam-1", Name: "Camera One", Category: "camera", Tags: []string{"camera", "4k"}},
		&models.InventoryItem{ID: "cam-2", Name: "Camera Two", Category: "camera", Tags: []string{"camera"}},
		&models.InventoryItem{ID: "cam-3", Name: "Camera Three", Category: "camera", Tags: []string{"Camera"}},
		&models.InventoryItem{ID: "mic-1", Name: "Mic", Category: "audio", Tags: []string{"audio"}},
	)
}

func TestAssistant_NoConflict(t *testing.T) {
	db := newTestDB(t)
	seedStudioInventory(t, db)
	seedBooking(t, db, "2024-06-01", "10:00", "12:00", models.StatusConfirmed, "cam-1")

	called := false
	oracle := oracleFunc(func(context.Context, string) (string, error) {
		called = true
		return "unused", nil
	})
	a := newTestAssistant(t, db, oracle, time.Second)

	report, err := a.CheckSmartBooking(context.Background(), smartRequest(t, "2024-06-01", "12:00", "13:00", "cam-2"))
	require.NoError(t, err)
	assert.False(t, report.HasConflict)
	assert.Empty(t, report.ConflictingBookings)
	assert.Empty(t, report.UnavailableResources)
	assert.Empty(t, report.AlternativeResources)
	assert.Empty(t, report.AlternativeSlots)
	assert.Empty(t, report.Suggestion)
	assert.False(t, called)
}

func TestAssistant_StudioConflictWithOracle(t *testing.T) {
	db := newTestDB(t)
	seedStudioInventory(t, db)
	existing := seedBooking(t, db, "2024-06-01", "10:00", "12:00", models.StatusConfirmed)

	var prompt string
	oracle := oracleFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "  Try 12:00 instead.  ", nil
	})
	a := newTestAssistant(t, db, oracle, time.Second)

	report, err := a.CheckSmartBooking(context.Background(), smartRequest(t, "2024-06-01", "11:00", "12:00"))
	require.NoError(t, err)
	assert.True(t, report.HasConflict)
	require.Len(t, report.ConflictingBookings, 1)
	assert.Equal(t, existing.ID, report.ConflictingBookings[0].ID)
	assert.Equal(t, "Shoot 10:00", report.ConflictingBookings[0].Name)

	// Nearest one-hour slots around 11:00 that avoid 10:00-12:00.
	require.Len(t, report.AlternativeSlots, 3)
	assert.Equal(t, "12:00-13:00", report.AlternativeSlots[0].String())
	assert.Equal(t, "12:30-13:30", report.AlternativeSlots[1].String())
	assert.Equal(t, "09:00-10:00", report.AlternativeSlots[2].String())

	assert.Equal(t, "Try 12:00 instead.", report.Suggestion)
	assert.Equal(t, models.SuggestionOracle, report.SuggestionSource)
	assert.Contains(t, prompt, "Shoot 10:00")
	assert.Contains(t, prompt, "Only suggest alternatives matching required tags")
}

func TestAssistant_ResourceConflictAlternatives(t *testing.T) {
	db := newTestDB(t)
	seedStudioInventory(t, db)
	// Different studio time but the same day, so cam-1 and cam-2 are reserved.
	seedBooking(t, db, "2024-06-01", "08:00", "09:00", models.StatusConfirmed, "cam-1")
	seedBooking(t, db, "2024-06-01", "19:00", "20:00", models.StatusPending, "cam-2")

	a := newTestAssistant(t, db, nil, time.Second)

	report, err := a.CheckSmartBooking(context.Background(), smartRequest(t, "2024-06-01", "12:00", "13:00", "cam-1", "mic-1"))
	require.NoError(t, err)
	assert.True(t, report.HasConflict)
	assert.Empty(t, report.ConflictingBookings)
	assert.Equal(t, []string{"Camera One"}, report.UnavailableResources)
	assert.Empty(t, report.AlternativeSlots)

	// Tags come from the reserved item, cam-2 is busy that day.
	require.Len(t, report.AlternativeResources, 1)
	assert.Equal(t, "cam-3", report.AlternativeResources[0].ID)

	assert.Equal(t, models.SuggestionFallback, report.SuggestionSource)
	assert.Equal(t, "Resources unavailable: Camera One. Matching alternatives: Camera Three.", report.Suggestion)
}

func TestAssistant_ExplicitTagsWin(t *testing.T) {
	db := newTestDB(t)
	seedStudioInventory(t, db)
	seedBooking(t, db, "2024-06-01", "08:00", "09:00", models.StatusConfirmed, "cam-1")

	a := newTestAssistant(t, db, nil, time.Second)

	req := smartRequest(t, "2024-06-01", "12:00", "13:00", "cam-1")
	req.RequiredTags = []string{"AUDIO"}
	report, err := a.CheckSmartBooking(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, report.AlternativeResources, 1)
	assert.Equal(t, "mic-1", report.AlternativeResources[0].ID)
}

func TestAssistant_OracleFailuresFallBack(t *testing.T) {
	tests := []struct {
		name   string
		oracle domain.Oracle
	}{
		{"Error", oracleFunc(func(context.Context, string) (string, error) {
			return "", errors.New("upstream 502")
		})},
		{"Empty", oracleFunc(func(context.Context, string) (string, error) {
			return "   ", nil
		})},
		{"Timeout", oracleFunc(func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			return "too late", nil
		})},
		{"IgnoresContext", oracleFunc(func(context.Context, string) (string, error) {
			time.Sleep(500 * time.Millisecond)
			return "too late", nil
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			seedBooking(t, db, "2024-06-01", "10:00", "12:00", models.StatusConfirmed)
			a := newTestAssistant(t, db, tt.oracle, 50*time.Millisecond)

			started := time.Now()
			report, err := a.CheckSmartBooking(context.Background(), smartRequest(t, "2024-06-01", "10:00", "11:00"))
			require.NoError(t, err)
			assert.Less(t, time.Since(started), 400*time.Millisecond)
			assert.True(t, report.HasConflict)
			assert.Equal(t, models.SuggestionFallback, report.SuggestionSource)
			assert.NotEmpty(t, strings.TrimSpace(report.Suggestion))
			assert.True(t, strings.HasPrefix(report.Suggestion, "Studio is already booked: Shoot 10:00 10:00-12:00."))
		})
	}
}

func TestAssistant_ExcludeOwnBooking(t *testing.T) {
	db := newTestDB(t)
	seedStudioInventory(t, db)
	own := seedBooking(t, db, "2024-06-01", "10:00", "12:00", models.StatusConfirmed, "cam-1")

	a := newTestAssistant(t, db, nil, time.Second)

	req := smartRequest(t, "2024-06-01", "11:00", "13:00", "cam-1")
	req.ExcludeBookingID = own.ID
	report, err := a.CheckSmartBooking(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, report.HasConflict)
}

func TestAssistant_InvalidRange(t *testing.T) {
	db := newTestDB(t)
	a := newTestAssistant(t, db, nil, time.Second)

	req := SmartBookingRequest{Date: mustDate(t, "2024-06-01"), Start: timeslot.MustClock("12:00"), End: timeslot.MustClock("11:00")}
	_, err := a.CheckSmartBooking(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestAssistant_StorageFailure(t *testing.T) {
	bookings := new(MockBookingRepository)
	inventory := new(MockInventoryRepository)
	logger := newTestLogger()
	a := NewAssistant(
		bookings, inventory,
		NewConflictChecker(bookings, logger),
		NewAvailabilityChecker(inventory, logger),
		NewTagMatcher(inventory, 5),
		nil,
		AssistantOptions{Hours: mustRange(t, "09:00", "18:00")},
		logger,
	)

	bookings.On("FindOverlappingBookings", mock.Anything, mock.Anything, mock.Anything, "").
		Return(nil, database.ErrStorageQuery)
	inventory.On("FindReservedItems", mock.Anything, []string{"cam-1"}, mock.Anything, "").
		Return([]string{}, nil)

	report, err := a.CheckSmartBooking(context.Background(), smartRequest(t, "2024-06-01", "10:00", "11:00", "cam-1"))
	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrCheckFailed)
	assert.ErrorIs(t, err, database.ErrStorageQuery)
}

func TestFallbackSuggestion(t *testing.T) {
	t.Run("NeverBlank", func(t *testing.T) {
		assert.Equal(t, "The requested slot is not available.", FallbackSuggestion(&models.ConflictReport{HasConflict: true}))
	})

	t.Run("StudioWithoutFreeSlot", func(t *testing.T) {
		report := &models.ConflictReport{
			ConflictingBookings: []models.BookingSummary{{Name: "Podcast", Start: timeslot.MustClock("09:00"), End: timeslot.MustClock("18:00")}},
		}
		assert.Equal(t, "Studio is already booked: Podcast 09:00-18:00. No free slot of the same length that day.", FallbackSuggestion(report))
	})

	t.Run("ResourcesWithoutAlternatives", func(t *testing.T) {
		report := &models.ConflictReport{UnavailableResources: []string{"Drone"}}
		assert.Equal(t, "Resources unavailable: Drone. No matching alternatives available.", FallbackSuggestion(report))
	})
}

func TestBuildSuggestionPrompt(t *testing.T) {
	report := &models.ConflictReport{
		UnavailableResources: []string{"Camera One"},
		AlternativeSlots:     []timeslot.Range{mustRange(t, "13:00", "14:00")},
	}
	prompt := BuildSuggestionPrompt(mustDate(t, "2024-06-01"), mustRange(t, "10:00", "11:00"), report, []string{"camera"})

	assert.Contains(t, prompt, "Requested: 2024-06-01 10:00-11:00")
	assert.Contains(t, prompt, "Unavailable equipment: Camera One")
	assert.Contains(t, prompt, "Required tags: camera")
	assert.Contains(t, prompt, "Alternative equipment: none")
	assert.Contains(t, prompt, "Free times that day: 13:00-14:00")
}
