package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"studiodesk/internal/config"
	"studiodesk/internal/export"
	"studiodesk/internal/metrics"
	"studiodesk/internal/notify"
	"studiodesk/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Services are the operations exposed over HTTP and gRPC.
type Services struct {
	Conflicts     *service.ConflictChecker
	Availability  *service.AvailabilityChecker
	Assistant     *service.Assistant
	Bookings      *service.BookingService
	Inventory     *service.InventoryService
	Notifications *notify.Dispatcher
	Exporter      *export.Exporter
	Health        func(ctx context.Context) error
}

// HTTPServer exposes the booking engine as a JSON API.
type HTTPServer struct {
	cfg    config.APIConfig
	svc    Services
	server *http.Server
	auth   *authenticator
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	l := logger.With().Str("component", "http").Logger()
	srv := &HTTPServer{cfg: cfg, svc: svc, auth: newAuthenticator(cfg), logger: &l}

	mux := http.NewServeMux()
	srv.route(mux, "POST /api/v1/conflicts/check", permReadAvailability, srv.handleCheckConflicts)
	srv.route(mux, "POST /api/v1/availability/check", permReadAvailability, srv.handleCheckAvailability)
	srv.route(mux, "POST /api/v1/assistant/check", permReadAvailability, srv.handleSmartCheck)

	srv.route(mux, "POST /api/v1/bookings", permWriteBookings, srv.handleCreateBooking)
	srv.route(mux, "GET /api/v1/bookings", permReadBookings, srv.handleListBookings)
	srv.route(mux, "GET /api/v1/bookings/{id}", permReadBookings, srv.handleGetBooking)
	srv.route(mux, "POST /api/v1/bookings/{id}/confirm", permWriteBookings, srv.handleConfirm)
	srv.route(mux, "POST /api/v1/bookings/{id}/cancel", permWriteBookings, srv.handleCancel)
	srv.route(mux, "POST /api/v1/bookings/{id}/reschedule", permWriteBookings, srv.handleReschedule)
	srv.route(mux, "POST /api/v1/bookings/{id}/reschedule/approve", permWriteBookings, srv.handleApproveReschedule)
	srv.route(mux, "POST /api/v1/bookings/{id}/equipment", permWriteBookings, srv.handleAssignEquipment)
	srv.route(mux, "DELETE /api/v1/bookings/{id}/equipment/{itemID}", permWriteBookings, srv.handleRemoveEquipment)

	srv.route(mux, "GET /api/v1/inventory", permReadBookings, srv.handleListInventory)
	srv.route(mux, "POST /api/v1/inventory/{id}/maintenance", permWriteInventory, srv.handleMaintenance)

	srv.route(mux, "GET /api/v1/notifications", permReadBookings, srv.handleNotifications)
	srv.route(mux, "POST /api/v1/notifications/{id}/read", permReadBookings, srv.handleMarkRead)

	srv.route(mux, "GET /api/v1/export", permReadBookings, srv.handleExport)

	mux.HandleFunc("GET /healthz", srv.handleHealth)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Handler returns the root handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) route(mux *http.ServeMux, pattern, permission string, h http.HandlerFunc) {
	mux.Handle(pattern, s.authMiddleware(permission, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(pattern)
		h(w, r)
	})))
}

func (s *HTTPServer) authMiddleware(permission string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Enabled || !s.cfg.HTTP.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		if s.cfg.Auth.Enabled {
			client, err := s.auth.authenticate(r.Header.Get(s.auth.apiKeyHeader), r.Header.Get(s.auth.extraHeader), permission)
			if err != nil {
				code := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					code = http.StatusForbidden
				}
				writeError(w, code, err.Error())
				return
			}
			ctx = withActor(ctx, clientActor(client))
		} else if actor := strings.TrimSpace(r.Header.Get(actorHeader)); actor != "" {
			ctx = withActor(ctx, actor)
		}

		if !s.auth.limiter.allow(s.httpClientKey(r)) {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *HTTPServer) httpClientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(s.auth.apiKeyHeader)); apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDMetadataKey))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDMetadataKey, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body", errBadRequest)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
