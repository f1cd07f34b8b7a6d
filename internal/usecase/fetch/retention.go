package fetch

import (
	"context"
	"fmt"
	"time"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/repository"
)

// ItemRetention applies a source's retention settings (RetentionDays and
// MaxItems) through the item repository.
type ItemRetention struct {
	items repository.ItemRepository
	now   func() time.Time
}

func NewItemRetention(items repository.ItemRepository) *ItemRetention {
	return &ItemRetention{items: items, now: time.Now}
}

// Prune implements RetentionPruner. A source with neither limit set is left alone.
func (r *ItemRetention) Prune(ctx context.Context, src *entity.Source, strategy entity.RetentionStrategy) (int64, error) {
	criteria := repository.PruneCriteria{Strategy: strategy}
	if src.RetentionDays > 0 {
		cutoff := r.now().AddDate(0, 0, -src.RetentionDays)
		criteria.OlderThan = &cutoff
	}
	if src.MaxItems > 0 {
		criteria.KeepNewest = src.MaxItems
	}
	if criteria.OlderThan == nil && criteria.KeepNewest == 0 {
		return 0, nil
	}

	n, err := r.items.Prune(ctx, src.ID, criteria)
	if err != nil {
		return 0, fmt.Errorf("Prune: %w", err)
	}
	return n, nil
}
