package api

import (
	"fmt"
	"strings"
	"time"

	"studiodesk/internal/service"
	"studiodesk/internal/timeslot"
)

// Wire formats: dates are YYYY-MM-DD, times HH:MM.

type slotRequest struct {
	Date             string `json:"date"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	ExcludeBookingID string `json:"exclude_booking_id"`
}

func (r slotRequest) parse() (time.Time, timeslot.Range, error) {
	date, err := parseDate("date", r.Date)
	if err != nil {
		return time.Time{}, timeslot.Range{}, err
	}
	rng, err := timeslot.ParseRange(r.StartTime, r.EndTime)
	if err != nil {
		return time.Time{}, timeslot.Range{}, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return date, rng, nil
}

type availabilityRequest struct {
	ItemIDs          []string `json:"item_ids"`
	From             string   `json:"from"`
	Until            string   `json:"until"`
	ExcludeBookingID string   `json:"exclude_booking_id"`
}

// window accepts a single day when until is omitted.
func (r availabilityRequest) window() (timeslot.DateRange, error) {
	return parseWindow(r.From, r.Until)
}

type smartBookingRequest struct {
	slotRequest
	ItemIDs      []string `json:"item_ids"`
	RequiredTags []string `json:"required_tags"`
}

func (r smartBookingRequest) toService() (service.SmartBookingRequest, error) {
	date, rng, err := r.parse()
	if err != nil {
		return service.SmartBookingRequest{}, err
	}
	return service.SmartBookingRequest{
		Date:             date,
		Start:            rng.Start,
		End:              rng.End,
		ItemIDs:          r.ItemIDs,
		RequiredTags:     r.RequiredTags,
		ExcludeBookingID: r.ExcludeBookingID,
	}, nil
}

type createBookingRequest struct {
	Date        string   `json:"date"`
	StartTime   string   `json:"start_time"`
	EndTime     string   `json:"end_time"`
	BookingType string   `json:"booking_type"`
	EventName   string   `json:"event_name"`
	ClientID    string   `json:"client_id"`
	Notes       string   `json:"notes"`
	Blocked     bool     `json:"blocked"`
	ItemIDs     []string `json:"item_ids"`
}

func (r createBookingRequest) toService() (service.CreateBookingRequest, error) {
	date, rng, err := slotRequest{Date: r.Date, StartTime: r.StartTime, EndTime: r.EndTime}.parse()
	if err != nil {
		return service.CreateBookingRequest{}, err
	}
	return service.CreateBookingRequest{
		Date:        date,
		Start:       rng.Start,
		End:         rng.End,
		BookingType: r.BookingType,
		EventName:   r.EventName,
		ClientID:    r.ClientID,
		Notes:       r.Notes,
		Blocked:     r.Blocked,
		ItemIDs:     r.ItemIDs,
	}, nil
}

type versionRequest struct {
	Version int64 `json:"version"`
}

type rescheduleRequest struct {
	Version   int64  `json:"version"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type equipmentRequest struct {
	ItemIDs []string `json:"item_ids"`
}

type maintenanceRequest struct {
	Action string `json:"action"`
	Notes  string `json:"notes"`
}

func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", errBadRequest, field)
	}
	d, err := timeslot.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid %s; expected YYYY-MM-DD", errBadRequest, field)
	}
	return d, nil
}

func parseWindow(from, until string) (timeslot.DateRange, error) {
	start, err := parseDate("from", from)
	if err != nil {
		return timeslot.DateRange{}, err
	}
	end := start
	if strings.TrimSpace(until) != "" {
		if end, err = parseDate("until", until); err != nil {
			return timeslot.DateRange{}, err
		}
	}
	w, err := timeslot.NewDateRange(start, end)
	if err != nil {
		return timeslot.DateRange{}, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return w, nil
}
