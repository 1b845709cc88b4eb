package models

import "studiodesk/internal/timeslot"

// ConflictCheckResult is the answer to a plain slot conflict check.
type ConflictCheckResult struct {
	HasConflict         bool     `json:"has_conflict"`
	ConflictingBookings []string `json:"conflicting_bookings"`
}

// ConflictReport is produced by the smart booking assistant. It is transient
// and never persisted.
type ConflictReport struct {
	HasConflict          bool              `json:"has_conflict"`
	ConflictingBookings  []BookingSummary  `json:"conflicting_bookings"`
	UnavailableResources []string          `json:"unavailable_resources"`
	AlternativeResources []ResourceSummary `json:"alternative_resources"`
	AlternativeSlots     []timeslot.Range  `json:"alternative_slots"`
	Suggestion           string            `json:"suggestion"`
	SuggestionSource     string            `json:"suggestion_source,omitempty"`
}
