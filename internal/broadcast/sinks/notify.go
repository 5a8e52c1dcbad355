package sinks

import (
	"context"
	"fmt"

	"github.com/talbz/holmes-ma/internal/event"
	"github.com/talbz/holmes-ma/internal/notify"
)

// NotifySink forwards run completions to the configured notifier. All other
// event kinds are ignored.
type NotifySink struct {
	notifier notify.Notifier
}

// NewNotifySink wraps a notifier in the sink interface.
func NewNotifySink(n notify.Notifier) *NotifySink {
	return &NotifySink{notifier: n}
}

// Consume publishes a summary when the run reaches a terminal state.
func (s *NotifySink) Consume(ctx context.Context, evt event.Event) error {
	if evt.Kind != event.KindJobFinished {
		return nil
	}
	summary := notify.Summary{
		RunID:         evt.JobID,
		State:         string(evt.JobState),
		Succeeded:     evt.Succeeded,
		Failed:        evt.Failed,
		StoppedEarly:  evt.StoppedEarly,
		CriticalError: evt.CriticalError,
		FinishedAt:    evt.TS,
	}
	if err := s.notifier.NotifyFinished(ctx, summary); err != nil {
		return fmt.Errorf("notify run finished: %w", err)
	}
	return nil
}

// Close shuts the notifier down.
func (s *NotifySink) Close(context.Context) error {
	return s.notifier.Close()
}
