package metrics

import (
	"strconv"
	"time"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

func (m *Metrics) ObserveStage(stage string, outcome domain.StageOutcome, duration time.Duration) {
	if stage == "" {
		stage = "unknown"
	}
	m.stageDuration.WithLabelValues(stage, string(outcome)).Observe(duration.Seconds())
}

func (m *Metrics) ObserveQuery(_ time.Duration, results int, degraded bool) {
	m.queriesTotal.WithLabelValues(strconv.FormatBool(degraded)).Inc()
	m.queryResults.Observe(float64(results))
}

func (m *Metrics) ObserveIndexing(source string, stats domain.IngestStats, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ingestRuns.WithLabelValues(source, status).Inc()
	m.ingestDuration.WithLabelValues(source).Observe(duration.Seconds())
	if stats.Pages > 0 {
		m.ingestPages.WithLabelValues(source).Add(float64(stats.Pages))
	}
	if stats.Items > 0 {
		m.ingestItems.WithLabelValues(source).Add(float64(stats.Items))
	}
}

func (m *Metrics) StartJob() {
	m.jobsInFlight.Inc()
}

func (m *Metrics) FinishJob(source string, err error) {
	m.jobsInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.jobsTotal.WithLabelValues(source, status).Inc()
}

func (m *Metrics) ObserveQueueLag(source string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(source).Observe(lag.Seconds())
}
