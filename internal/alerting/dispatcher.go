package alerting

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/metrics"
)

// Sink 定义告警输送接口。
type Sink interface {
	Name() string
	Send(ctx context.Context, alert Alert) error
}

// Dispatcher fans alerts out to every configured sink. Delivery is
// fire-and-forget: a failing sink is logged and counted, and neither
// blocks the remaining sinks nor feeds back into detection. There is no
// deduplication; one anomaly per tick yields one alert per tick.
type Dispatcher struct {
	sinks    []Sink
	counters *SuppressionCounters
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewDispatcher 构造告警分发器。metrics 可为 nil。
func NewDispatcher(sinks []Sink, counters *SuppressionCounters, m *metrics.Metrics, logger zerolog.Logger) *Dispatcher {
	if counters == nil {
		counters = NewSuppressionCounters()
	}
	return &Dispatcher{
		sinks:    sinks,
		counters: counters,
		metrics:  m,
		logger:   logger.With().Str("component", "alert_dispatcher").Logger(),
	}
}

// Counters exposes the shared suppression counters.
func (d *Dispatcher) Counters() *SuppressionCounters { return d.counters }

// Dispatch delivers one alert to every sink. Failures stay inside the
// dispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, alert Alert) {
	evt := d.logger.Warn()
	if alert.Priority == PriorityCritical {
		evt = d.logger.Error()
	}
	evt.Str("pool", alert.Pool).
		Str("kind", string(alert.Kind)).
		Str("priority", string(alert.Priority)).
		Str("phase", alert.Phase.String()).
		Uint64("block", alert.BlockHeight).
		Msg(alert.Message)

	if d.metrics != nil {
		d.metrics.AlertsTotal.WithLabelValues(alert.Pool, string(alert.Kind), string(alert.Priority)).Inc()
	}

	for _, sink := range d.sinks {
		if err := sink.Send(ctx, alert); err != nil {
			d.logger.Error().Err(err).
				Str("sink", sink.Name()).
				Str("pool", alert.Pool).
				Str("kind", string(alert.Kind)).
				Msg("告警发送失败")
			if d.metrics != nil {
				d.metrics.SinkFailuresTotal.WithLabelValues(sink.Name()).Inc()
			}
		}
	}
}

// DispatchBatch delivers the alerts of one detection pass in order.
func (d *Dispatcher) DispatchBatch(ctx context.Context, alerts []Alert) {
	for _, a := range alerts {
		d.Dispatch(ctx, a)
	}
}

// NoteSuppressed records an alert withheld by the flat phase. Detection
// itself stays a pure computation; the bookkeeping lives here.
func (d *Dispatcher) NoteSuppressed(pool string, kind Kind) {
	total := d.counters.Inc(pool, kind)
	if d.metrics != nil {
		d.metrics.SuppressedTotal.WithLabelValues(pool, string(kind)).Inc()
	}
	d.logger.Debug().
		Str("pool", pool).
		Str("kind", string(kind)).
		Uint64("total", total).
		Msg("flat 阶段抑制告警")
}
