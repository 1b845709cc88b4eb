package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"studiodesk/internal/config"
	"studiodesk/internal/database"
	"studiodesk/internal/events"
	"studiodesk/internal/export"
	"studiodesk/internal/models"
	"studiodesk/internal/notify"
	"studiodesk/internal/repository"
	"studiodesk/internal/service"
	"studiodesk/internal/timeslot"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	db     *database.DB
	svc    Services
	locker *repository.MemorySlotLocker
	server *HTTPServer
	ts     *httptest.Server
}

func openConfig() config.APIConfig {
	return config.APIConfig{Enabled: true, HTTP: config.APIHTTPConfig{Enabled: true}}
}

func newAPIFixture(t *testing.T, cfg config.APIConfig) *apiFixture {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.UpsertStaff(ctx, &models.Staff{ID: "admin-1", Name: "Alex", Role: models.RoleAdmin}))
	for _, item := range []*models.InventoryItem{
		{ID: "cam-1", Name: "Camera One", Category: "camera", Tags: []string{"camera"}},
		{ID: "cam-2", Name: "Camera Two", Category: "camera", Tags: []string{"camera"}},
	} {
		require.NoError(t, db.UpsertInventoryItem(ctx, item))
	}

	bus := events.NewEventBus()
	conflicts := service.NewConflictChecker(db, &logger)
	availability := service.NewAvailabilityChecker(db, &logger)
	hours, err := timeslot.ParseRange("09:00", "18:00")
	require.NoError(t, err)

	dispatcher := notify.NewDispatcher(db, db, nil, &logger)
	locker := repository.NewMemorySlotLocker()

	svc := Services{
		Conflicts:    conflicts,
		Availability: availability,
		Assistant: service.NewAssistant(db, db, conflicts, availability, service.NewTagMatcher(db, 5), nil,
			service.AssistantOptions{Hours: hours, SlotStep: 30, AlternativeSlots: 3}, &logger),
		Bookings: service.NewBookingService(service.BookingDeps{
			Bookings:     db,
			Inventory:    db,
			Staff:        db,
			Conflicts:    conflicts,
			Availability: availability,
			Locker:       locker,
			Notifier:     dispatcher,
			EventBus:     bus,
		}, config.BookingConfig{}, &logger),
		Inventory:     service.NewInventoryService(db, bus, &logger),
		Notifications: dispatcher,
		Exporter:      export.NewExporter(db, db, t.TempDir(), &logger),
		Health:        db.PingContext,
	}

	server := NewHTTPServer(cfg, svc, &logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &apiFixture{db: db, svc: svc, locker: locker, server: server, ts: ts}
}

// do sends body as JSON with optional header pairs and decodes the reply
// into out when out is non-nil.
func (f *apiFixture) do(t *testing.T, method, path string, body any, out any, headers ...string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			b, err := json.Marshal(body)
			require.NoError(t, err)
			raw = string(b)
		}
		reader = bytes.NewBufferString(raw)
	}

	req, err := http.NewRequest(method, f.ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (f *apiFixture) createBooking(t *testing.T, date, start, end string, itemIDs ...string) *models.Booking {
	t.Helper()
	var b models.Booking
	resp := f.do(t, http.MethodPost, "/api/v1/bookings", createBookingRequest{
		Date:        date,
		StartTime:   start,
		EndTime:     end,
		BookingType: "photo",
		EventName:   "Session " + start,
		ItemIDs:     itemIDs,
	}, &b)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return &b
}

type errorBody struct {
	Error string `json:"error"`
}
