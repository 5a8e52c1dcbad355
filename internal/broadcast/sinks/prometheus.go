package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/talbz/holmes-ma/internal/event"
)

// PrometheusSink exports crawl progress metrics via Prometheus. It owns all
// collectors for runs started/completed and per-club outcomes.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	clubsScraped  *prometheus.CounterVec
	recordsTotal  prometheus.Counter
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawl_runs_started_total",
			Help: "Total crawl runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_runs_completed_total",
			Help: "Total crawl runs completed partitioned by terminal state.",
		}, []string{"state"}),
		clubsScraped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_clubs_total",
			Help: "Club scrape completions partitioned by result.",
		}, []string{"result"}),
		recordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawl_schedule_records_total",
			Help: "Schedule records collected across all runs.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.clubsScraped,
		s.recordsTotal,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register crawl collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors from one status event. It is safe
// for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, evt event.Event) error {
	switch evt.Kind {
	case event.KindJobStarted:
		s.runsStarted.Inc()
	case event.KindClubSucceeded:
		s.clubsScraped.WithLabelValues("success").Inc()
		if evt.Records > 0 {
			s.recordsTotal.Add(float64(evt.Records))
		}
	case event.KindClubFailed:
		s.clubsScraped.WithLabelValues("failed").Inc()
	case event.KindJobFinished:
		s.runsCompleted.WithLabelValues(string(evt.JobState)).Inc()
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
