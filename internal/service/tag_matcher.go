package service

import (
	"context"
	"fmt"
	"sort"

	"studiodesk/internal/domain"
	"studiodesk/internal/models"
)

// MatchByTags returns available items sharing at least one tag with
// required. Tags compare case-insensitively after trimming. With no usable
// tags it returns the first fallbackSize available items in pool order, a
// plain default pool rather than a ranking. Tag matches are sorted by name
// then id.
func MatchByTags(required []string, pool []*models.InventoryItem, fallbackSize int) []*models.InventoryItem {
	wanted := make(map[string]struct{})
	for _, tag := range models.NormalizeTags(required) {
		wanted[tag] = struct{}{}
	}

	var out []*models.InventoryItem
	if len(wanted) == 0 {
		if fallbackSize <= 0 {
			fallbackSize = models.DefaultAlternativesFallbackSize
		}
		for _, item := range pool {
			if item.Status != models.ItemAvailable {
				continue
			}
			out = append(out, item)
			if len(out) >= fallbackSize {
				break
			}
		}
		return out
	}

	for _, item := range pool {
		if item.Status != models.ItemAvailable {
			continue
		}
		for _, tag := range item.NormalizedTags() {
			if _, ok := wanted[tag]; ok {
				out = append(out, item)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// TagMatcher looks up alternative equipment against current inventory.
type TagMatcher struct {
	repo         domain.InventoryRepository
	fallbackSize int
}

func NewTagMatcher(repo domain.InventoryRepository, fallbackSize int) *TagMatcher {
	return &TagMatcher{repo: repo, fallbackSize: fallbackSize}
}

// Alternatives reads inventory fresh and matches it against required,
// skipping any id in exclude.
func (m *TagMatcher) Alternatives(ctx context.Context, required []string, exclude map[string]bool) ([]*models.InventoryItem, error) {
	items, err := m.repo.ListInventoryItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCheckFailed, err)
	}

	pool := make([]*models.InventoryItem, 0, len(items))
	for _, item := range items {
		if exclude[item.ID] {
			continue
		}
		pool = append(pool, item)
	}
	return MatchByTags(required, pool, m.fallbackSize), nil
}
