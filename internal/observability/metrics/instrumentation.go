package metrics

import (
	"context"

	"feed-monitor/internal/usecase/events"
)

// Instrumentation records pipeline metrics from bus events.
// Register it with events.Bus.Register.
type Instrumentation struct{}

// NewInstrumentation creates the metrics event listener.
func NewInstrumentation() *Instrumentation {
	return &Instrumentation{}
}

func (i *Instrumentation) OnFetchCompleted(_ context.Context, ev events.FetchCompleted) error {
	if !ev.Executed() {
		outcome := "aborted"
		if ev.Skipped {
			outcome = "skipped"
		}
		RecordFetchRun(outcome, 0)
		return nil
	}

	res := ev.Result
	RecordFetchRun(string(res.Outcome), ev.FinishedAt.Sub(ev.StartedAt))
	RecordFetchItems(res.Items.Created, res.Items.Updated, res.Items.Failed)
	if res.Retry != nil {
		RecordRetryDecision(res.Retry.Class, res.Retry.OpenCircuit)
	}
	return nil
}

func (i *Instrumentation) OnItemScraped(_ context.Context, ev events.ItemScraped) error {
	RecordScrapeOutcome(string(ev.Status))
	return nil
}
