package models

import (
	"strings"
	"time"
)

type InventoryItem struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Category  string    `json:"category" yaml:"category"`
	Status    string    `json:"status" yaml:"status"`
	Tags      []string  `json:"tags" yaml:"tags"`
	Notes     string    `json:"notes,omitempty" yaml:"notes"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// NormalizedTags returns lower-cased, trimmed, non-empty tags.
func (i *InventoryItem) NormalizedTags() []string {
	return NormalizeTags(i.Tags)
}

// NormalizeTags lower-cases and trims tags, dropping blanks and duplicates.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

type InventoryReservation struct {
	ID            string    `json:"id"`
	InventoryID   string    `json:"inventory_id"`
	BookingID     string    `json:"booking_id"`
	ReservedFrom  time.Time `json:"reserved_from"`
	ReservedUntil time.Time `json:"reserved_until"`
	CreatedAt     time.Time `json:"created_at"`
}

type MaintenanceLog struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	Action    string    `json:"action"`
	Notes     string    `json:"notes,omitempty"`
	LoggedBy  string    `json:"logged_by"`
	CreatedAt time.Time `json:"created_at"`
}

// ResourceSummary is an inventory item as shown in conflict reports.
type ResourceSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}
