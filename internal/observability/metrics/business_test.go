package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-monitor/internal/domain/entity"
	"feed-monitor/internal/usecase/events"
)

func TestRecordRetryDecision(t *testing.T) {
	before := testutil.ToFloat64(RetryDecisionsTotal.WithLabelValues("http_5xx", "open_circuit"))

	RecordRetryDecision("http_5xx", true)
	RecordRetryDecision("http_5xx", false)

	after := testutil.ToFloat64(RetryDecisionsTotal.WithLabelValues("http_5xx", "open_circuit"))
	assert.Equal(t, before+1, after)
}

func TestRecordHealthTransition_IgnoresNoop(t *testing.T) {
	before := testutil.ToFloat64(HealthTransitionsTotal.WithLabelValues("healthy", "healthy"))
	RecordHealthTransition("healthy", "healthy")
	assert.Equal(t, before, testutil.ToFloat64(HealthTransitionsTotal.WithLabelValues("healthy", "healthy")))

	before = testutil.ToFloat64(HealthTransitionsTotal.WithLabelValues("warning", "auto_paused"))
	RecordHealthTransition("warning", "auto_paused")
	assert.Equal(t, before+1, testutil.ToFloat64(HealthTransitionsTotal.WithLabelValues("warning", "auto_paused")))
}

func TestRecordFetchItems(t *testing.T) {
	before := testutil.ToFloat64(FetchItemsTotal.WithLabelValues("created"))
	RecordFetchItems(3, 0, 0)
	assert.Equal(t, before+3, testutil.ToFloat64(FetchItemsTotal.WithLabelValues("created")))
}

func TestMetricsFunctions_AllCallable(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordFetchRun("fetched", time.Second)
		RecordFetchRun("skipped", 0)
		RecordLockContention()
		RecordSchedulerEnqueued("fetch", 4)
		RecordStalledFetchesReset(1)
		RecordScrapesRecovered(2)
		RecordScrapeOutcome("success")
		RecordJobProcessed("fetch_source", "success", 20*time.Millisecond)
		UpdateSourcesTotal(12)
		RecordDBQuery("claim_due_sources", time.Millisecond)
		UpdateDBConnectionStats(3, 7)
	})
}

func TestInstrumentation_OnFetchCompleted(t *testing.T) {
	inst := NewInstrumentation()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("skipped run", func(t *testing.T) {
		before := testutil.ToFloat64(FetchRunsTotal.WithLabelValues("skipped"))
		err := inst.OnFetchCompleted(context.Background(), events.FetchCompleted{
			Source: &entity.Source{ID: 1}, Skipped: true, StartedAt: start, FinishedAt: start,
		})
		require.NoError(t, err)
		assert.Equal(t, before+1, testutil.ToFloat64(FetchRunsTotal.WithLabelValues("skipped")))
	})

	t.Run("failed run with circuit decision", func(t *testing.T) {
		beforeRuns := testutil.ToFloat64(FetchRunsTotal.WithLabelValues("failed"))
		beforeDecisions := testutil.ToFloat64(RetryDecisionsTotal.WithLabelValues("timeout", "open_circuit"))

		err := inst.OnFetchCompleted(context.Background(), events.FetchCompleted{
			Source: &entity.Source{ID: 1},
			Result: &entity.FetchResult{
				Outcome: entity.FetchOutcomeFailed,
				Err:     errors.New("timed out"),
				Retry:   &entity.RetryDecision{Class: "timeout", OpenCircuit: true},
			},
			StartedAt:  start,
			FinishedAt: start.Add(2 * time.Second),
		})
		require.NoError(t, err)
		assert.Equal(t, beforeRuns+1, testutil.ToFloat64(FetchRunsTotal.WithLabelValues("failed")))
		assert.Equal(t, beforeDecisions+1, testutil.ToFloat64(RetryDecisionsTotal.WithLabelValues("timeout", "open_circuit")))
	})
}

func TestInstrumentation_RegistersOnBus(t *testing.T) {
	bus := events.NewBus(nil)
	assert.Equal(t, 2, bus.Register(NewInstrumentation()))
}
