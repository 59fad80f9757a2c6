package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PromptsTotal counts prompt dispatch attempts by result (sent, failed, skipped).
	PromptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_prompts_total",
		Help: "The total number of prompt dispatch attempts by result",
	}, []string{"result"})

	// CyclesTotal counts scheduler cycles.
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkin_scheduler_cycles_total",
		Help: "The total number of scheduler cycles run",
	})

	// DispatchDuration observes notifier latency for prompts.
	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkin_dispatch_duration_seconds",
		Help:    "Prompt dispatch latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// EventsTotal counts inbound deliveries by terminal outcome.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_events_total",
		Help: "The total number of inbound deliveries by outcome",
	}, []string{"outcome"})

	// AcknowledgmentsTotal counts best-effort reply acknowledgments by result.
	AcknowledgmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_acknowledgments_total",
		Help: "The total number of reply acknowledgments by result",
	}, []string{"result"})
)
