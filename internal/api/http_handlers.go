package api

import (
	"fmt"
	"net/http"
	"strings"

	"studiodesk/internal/export"
	"studiodesk/internal/models"
)

func (s *HTTPServer) handleCheckConflicts(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	date, rng, err := req.parse()
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	res, err := s.svc.Conflicts.CheckConflicts(r.Context(), date, rng, req.ExcludeBookingID)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleCheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	window, err := req.window()
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	unavailable, err := s.svc.Availability.CheckExcluding(r.Context(), req.ItemIDs, window, req.ExcludeBookingID)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	if unavailable == nil {
		unavailable = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"unavailable": unavailable})
}

func (s *HTTPServer) handleSmartCheck(w http.ResponseWriter, r *http.Request) {
	var req smartBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	in, err := req.toService()
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	report, err := s.svc.Assistant.CheckSmartBooking(r.Context(), in)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	in, err := req.toService()
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	booking, err := s.svc.Bookings.CreateBooking(r.Context(), in, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	window, err := parseWindow(q.Get("from"), q.Get("to"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	bookings, err := s.svc.Bookings.GetBookingsByDateRange(r.Context(), window.From, window.Until)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	booking, err := s.svc.Bookings.GetBooking(ctx, id)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	checklist, err := s.svc.Bookings.GetChecklist(ctx, id)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	reservations, err := s.svc.Bookings.GetReservations(ctx, id)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"booking":      booking,
		"checklist":    checklist,
		"reservations": reservations,
	})
}

func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req versionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	booking, err := s.svc.Bookings.ConfirmBooking(r.Context(), r.PathValue("id"), req.Version, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req versionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	booking, err := s.svc.Bookings.CancelBooking(r.Context(), r.PathValue("id"), req.Version, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	date, rng, err := slotRequest{Date: req.Date, StartTime: req.StartTime, EndTime: req.EndTime}.parse()
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	booking, err := s.svc.Bookings.RequestReschedule(r.Context(), r.PathValue("id"), req.Version, date, rng, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleApproveReschedule(w http.ResponseWriter, r *http.Request) {
	var req versionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	booking, err := s.svc.Bookings.ApproveReschedule(r.Context(), r.PathValue("id"), req.Version, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleAssignEquipment(w http.ResponseWriter, r *http.Request) {
	var req equipmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	reservations, err := s.svc.Bookings.AssignEquipment(r.Context(), r.PathValue("id"), req.ItemIDs, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": reservations})
}

func (s *HTTPServer) handleRemoveEquipment(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Bookings.RemoveEquipment(r.Context(), r.PathValue("id"), r.PathValue("itemID"), actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListInventory(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.Inventory.ListItems(r.Context())
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	if items == nil {
		items = []*models.InventoryItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	item, err := s.svc.Inventory.LogMaintenance(r.Context(), r.PathValue("id"), req.Action, req.Notes, actorFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recipient := actorFromContext(ctx)
	if recipient == "" {
		writeServiceError(w, s.logger, fmt.Errorf("%w: actor is required", errBadRequest))
		return
	}

	var (
		list []*models.Notification
		err  error
	)
	if strings.EqualFold(r.URL.Query().Get("unread"), "true") {
		list, err = s.svc.Notifications.Unread(ctx, recipient)
	} else {
		list, err = s.svc.Notifications.All(ctx, recipient)
	}
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	if list == nil {
		list = []*models.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (s *HTTPServer) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Notifications.MarkRead(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

const maxExportDays = 366

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	window, err := parseWindow(q.Get("from"), q.Get("to"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	if window.Days() > maxExportDays {
		writeServiceError(w, s.logger, fmt.Errorf("%w: export covers at most %d days", errBadRequest, maxExportDays))
		return
	}

	f, err := s.svc.Exporter.Build(r.Context(), window)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.FileName(window)))
	w.WriteHeader(http.StatusOK)
	if _, err := f.WriteTo(w); err != nil {
		s.logger.Error().Err(err).Msg("write export")
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.svc.Health != nil {
		if err := s.svc.Health(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
