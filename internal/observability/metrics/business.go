package metrics

import (
	"time"
)

// RecordFetchRun records one fetch run. Duration is ignored for runs that
// never executed (skipped or aborted).
func RecordFetchRun(outcome string, duration time.Duration) {
	FetchRunsTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		FetchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

// RecordFetchItems records the item processing counts of a fetch.
func RecordFetchItems(created, updated, failed int) {
	if created > 0 {
		FetchItemsTotal.WithLabelValues("created").Add(float64(created))
	}
	if updated > 0 {
		FetchItemsTotal.WithLabelValues("updated").Add(float64(updated))
	}
	if failed > 0 {
		FetchItemsTotal.WithLabelValues("failed").Add(float64(failed))
	}
}

// RecordRetryDecision records a retry policy decision for an error class.
func RecordRetryDecision(class string, openCircuit bool) {
	decision := "retry"
	if openCircuit {
		decision = "open_circuit"
	}
	RetryDecisionsTotal.WithLabelValues(class, decision).Inc()
}

// RecordLockContention records a fetch run that found its source lock held.
func RecordLockContention() {
	LockContentionTotal.Inc()
}

// RecordSchedulerEnqueued records how many jobs a scheduler pass enqueued.
// Pipeline should be "fetch" or "scrape".
func RecordSchedulerEnqueued(pipeline string, count int) {
	SchedulerEnqueuedTotal.WithLabelValues(pipeline).Add(float64(count))
}

// RecordStalledFetchesReset records sources reset by the stalled fetch reconciler.
func RecordStalledFetchesReset(count int) {
	StalledFetchesTotal.Add(float64(count))
}

// RecordScrapesRecovered records items cleared by the scrape reconciler.
func RecordScrapesRecovered(count int) {
	ScrapesRecoveredTotal.Add(float64(count))
}

// RecordHealthTransition records a change of a source's health status.
func RecordHealthTransition(from, to string) {
	if from == to {
		return
	}
	HealthTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordScrapeOutcome records a finished scrape attempt.
func RecordScrapeOutcome(status string) {
	ScrapeOutcomesTotal.WithLabelValues(status).Inc()
}

// RecordJobProcessed records a job handled by a worker.
// Result should be "success", "retry" or "dead".
func RecordJobProcessed(kind, result string, duration time.Duration) {
	JobsProcessedTotal.WithLabelValues(kind, result).Inc()
	JobDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// UpdateSourcesTotal updates the number of active sources.
// This gauge should be updated periodically to reflect the current state.
func UpdateSourcesTotal(count int) {
	SourcesTotal.Set(float64(count))
}

// RecordDBQuery records the duration of a database query operation.
// Operation should describe the query type (e.g., "claim_due_sources", "claim_jobs").
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
