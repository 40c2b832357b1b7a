package alerting

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes alerts to the structured log. It is the default channel
// when no external sink is configured, and never fails.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "alert_log").Logger()}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, alert Alert) error {
	evt := s.logger.Warn()
	if alert.Priority == PriorityCritical {
		evt = s.logger.Error()
	}
	evt.Str("pool", alert.Pool).
		Str("kind", string(alert.Kind)).
		Str("priority", string(alert.Priority)).
		Str("phase", alert.Phase.String()).
		Time("at", alert.Timestamp).
		Uint64("block", alert.BlockHeight).
		Msg(alert.Message)
	return nil
}

var _ Sink = (*LogSink)(nil)
