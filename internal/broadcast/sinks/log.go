package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/talbz/holmes-ma/internal/event"
)

// LogSink emits structured logs for debugging status streams. It is useful
// during development or audits where a durable store is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the event using structured fields.
func (s *LogSink) Consume(_ context.Context, evt event.Event) error {
	fields := []zap.Field{
		zap.String("kind", string(evt.Kind)),
		zap.Time("ts", evt.TS),
		zap.String("job_id", evt.JobID.String()),
	}
	if evt.Club != "" {
		fields = append(fields, zap.String("club", evt.Club))
	}
	if evt.Day != "" {
		fields = append(fields, zap.String("day", evt.Day))
	}
	if evt.Reason != "" {
		fields = append(fields, zap.String("reason", evt.Reason))
	}
	if evt.Kind == event.KindProgress {
		fields = append(fields, zap.Int("percent", evt.Percent))
	}
	if evt.Kind == event.KindJobFinished {
		fields = append(fields,
			zap.String("job_state", string(evt.JobState)),
			zap.Int("succeeded", evt.Succeeded),
			zap.Int("failed", evt.Failed),
			zap.Bool("stopped_early", evt.StoppedEarly),
			zap.Bool("critical_error", evt.CriticalError),
		)
	}
	s.logger.Info("status event", fields...)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
