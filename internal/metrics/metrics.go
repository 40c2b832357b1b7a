// Package metrics exposes the monitor's Prometheus instrumentation.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "curvewatcher"

// Metrics bundles every collector the monitor records into. Collectors are
// registered against the injected registerer so tests can use a private
// registry.
type Metrics struct {
	PollsTotal        *prometheus.CounterVec
	PollDuration      *prometheus.HistogramVec
	AlertsTotal       *prometheus.CounterVec
	SuppressedTotal   *prometheus.CounterVec
	SinkFailuresTotal *prometheus.CounterVec
	ResubscribesTotal *prometheus.CounterVec

	PhaseFlag    *prometheus.GaugeVec
	ReserveUSD   *prometheus.GaugeVec
	SpotPriceUSD *prometheus.GaugeVec
	ReserveRatio *prometheus.GaugeVec
	HistorySize  *prometheus.GaugeVec
}

// New registers all collectors with reg and returns the bundle.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PollsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Snapshot polls per pool and outcome",
		}, []string{"pool", "outcome"}),
		PollDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of one snapshot poll including contract reads",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pool"}),
		AlertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts dispatched per pool, kind and priority",
		}, []string{"pool", "kind", "priority"}),
		SuppressedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suppressed_alerts_total",
			Help:      "Alerts withheld while a pool is in the flat phase",
		}, []string{"pool", "kind"}),
		SinkFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Failed alert deliveries per sink",
		}, []string{"sink"}),
		ResubscribesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_resubscribes_total",
			Help:      "Phase event subscription restarts per pool",
		}, []string{"pool"}),
		PhaseFlag: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_phase",
			Help:      "Current pricing phase (0 flat, 1 bonding curve)",
		}, []string{"pool"}),
		ReserveUSD: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_reserve_usd",
			Help:      "Latest reserve balance in USD",
		}, []string{"pool"}),
		SpotPriceUSD: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_spot_price_usd",
			Help:      "Latest spot price in USD",
		}, []string{"pool"}),
		ReserveRatio: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_reserve_ratio",
			Help:      "Latest reserve / (price x supply) ratio",
		}, []string{"pool"}),
		HistorySize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_size",
			Help:      "Snapshots currently held in the in-memory window",
		}, []string{"pool"}),
	}
}

// Server serves the /metrics endpoint.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer wires reg into a promhttp handler listening on addr.
func NewServer(addr string, reg *prometheus.Registry, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &Server{
		srv:    &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		logger: logger.With().Str("component", "metrics_server").Logger(),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("metrics endpoint listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
