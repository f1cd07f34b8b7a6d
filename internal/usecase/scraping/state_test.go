package scraping_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/usecase/events"
	"feed-monitor/internal/usecase/scraping"
)

func TestState_ClearInflight(t *testing.T) {
	tests := []struct {
		from    entity.ScrapeStatus
		want    entity.ScrapeStatus
		changed bool
	}{
		{entity.ScrapeStatusProcessing, entity.ScrapeStatusNone, true},
		{entity.ScrapeStatusPending, entity.ScrapeStatusNone, true},
		{entity.ScrapeStatusSuccess, entity.ScrapeStatusSuccess, false},
		{entity.ScrapeStatusFailed, entity.ScrapeStatusFailed, false},
		{entity.ScrapeStatusNone, entity.ScrapeStatusNone, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_", func(t *testing.T) {
			items := newMemItems(&entity.Item{ID: 1, ScrapeStatus: tt.from})
			state := scraping.NewState(items, nil)

			changed, err := state.ClearInflight(context.Background(), 1)

			require.NoError(t, err)
			assert.Equal(t, tt.changed, changed)
			assert.Equal(t, tt.want, items.status(1))
		})
	}
}

func TestState_Lifecycle(t *testing.T) {
	items := newMemItems(&entity.Item{ID: 1})
	bus := events.NewBus(nil)
	var seen []entity.ScrapeStatus
	bus.OnItemStateChanged(events.ItemStateChangedFunc(func(_ context.Context, ev events.ItemStateChanged) error {
		seen = append(seen, ev.To)
		return nil
	}))
	state := scraping.NewState(items, bus)
	ctx := context.Background()

	ok, err := state.MarkProcessing(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "processing requires an in-flight item")

	ok, _ = state.MarkPending(ctx, 1)
	assert.True(t, ok)
	ok, _ = state.MarkPending(ctx, 1)
	assert.False(t, ok, "already pending")

	ok, _ = state.MarkProcessing(ctx, 1)
	assert.True(t, ok)

	ok, err = state.MarkSuccess(ctx, 1, "body")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = state.MarkFailed(ctx, 1)
	assert.False(t, ok, "success is terminal for MarkFailed")

	assert.Equal(t, []entity.ScrapeStatus{
		entity.ScrapeStatusPending,
		entity.ScrapeStatusProcessing,
		entity.ScrapeStatusSuccess,
	}, seen)
}

func TestState_FailedItemCanBeQueuedAgain(t *testing.T) {
	items := newMemItems(&entity.Item{ID: 1, ScrapeStatus: entity.ScrapeStatusFailed})
	ok, err := scraping.NewState(items, nil).MarkPending(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, entity.ScrapeStatusPending, items.status(1))
}

func TestState_Requeue(t *testing.T) {
	tests := []struct {
		from    entity.ScrapeStatus
		want    entity.ScrapeStatus
		changed bool
	}{
		{entity.ScrapeStatusProcessing, entity.ScrapeStatusPending, true},
		{entity.ScrapeStatusPending, entity.ScrapeStatusPending, false},
		{entity.ScrapeStatusSuccess, entity.ScrapeStatusSuccess, false},
		{entity.ScrapeStatusNone, entity.ScrapeStatusNone, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_", func(t *testing.T) {
			items := newMemItems(&entity.Item{ID: 1, ScrapeStatus: tt.from})

			changed, err := scraping.NewState(items, nil).Requeue(context.Background(), 1)

			require.NoError(t, err)
			assert.Equal(t, tt.changed, changed)
			assert.Equal(t, tt.want, items.status(1))
		})
	}
}

func TestState_MarkProcessingAcceptsAbandonedItem(t *testing.T) {
	items := newMemItems(&entity.Item{ID: 1, ScrapeStatus: entity.ScrapeStatusProcessing})
	ok, err := scraping.NewState(items, nil).MarkProcessing(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, entity.ScrapeStatusProcessing, items.status(1))
}
