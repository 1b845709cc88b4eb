package models

const (
	StatusPending             = "pending"
	StatusConfirmed           = "confirmed"
	StatusCancelled           = "cancelled"
	StatusRescheduleRequested = "reschedule_requested"
)

const (
	ItemAvailable   = "available"
	ItemInUse       = "in_use"
	ItemMaintenance = "maintenance"
)

const (
	MaintenanceUsed     = "used"
	MaintenanceRepaired = "repaired"
	MaintenanceCleaned  = "cleaned"
	MaintenanceFlagged  = "flagged"
	MaintenanceCleared  = "cleared"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

const (
	SuggestionOracle   = "oracle"
	SuggestionFallback = "fallback"
)

const (
	// DefaultAlternativesFallbackSize is the size of the default alternative
	// pool when no tags are known.
	DefaultAlternativesFallbackSize = 5

	// DefaultAlternativeSlots caps suggested free time ranges.
	DefaultAlternativeSlots = 3

	// DefaultSlotStepMinutes is the grid for alternative slot starts.
	DefaultSlotStepMinutes = 30
)

var bookingTransitions = map[string][]string{
	StatusPending:             {StatusConfirmed, StatusCancelled},
	StatusConfirmed:           {StatusRescheduleRequested, StatusCancelled},
	StatusRescheduleRequested: {StatusConfirmed, StatusCancelled},
}

// CanTransition reports whether a booking may move from one status to another.
// Cancelled is terminal.
func CanTransition(from, to string) bool {
	for _, allowed := range bookingTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsValidStatus reports whether s is a known booking status.
func IsValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusRescheduleRequested:
		return true
	}
	return false
}

var maintenanceStatus = map[string]string{
	MaintenanceUsed:     ItemInUse,
	MaintenanceFlagged:  ItemMaintenance,
	MaintenanceRepaired: ItemAvailable,
	MaintenanceCleaned:  ItemAvailable,
	MaintenanceCleared:  ItemAvailable,
}

// StatusForMaintenance maps a maintenance action to the resulting item status.
func StatusForMaintenance(action string) (string, bool) {
	s, ok := maintenanceStatus[action]
	return s, ok
}
