package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/alerting"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/chain"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/config"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/metrics"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/service"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/storage"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newReader() *chain.Reader {
	return chain.NewReader(chain.Options{
		RPCURL:         a.Config.Ethereum.RPCURL,
		WSURL:          a.Config.Ethereum.WSURL,
		Timeout:        a.Config.Ethereum.RequestTimeout,
		ReserveUSDRate: decimal.NewFromFloat(a.Config.Ethereum.ReserveUSDRate),
	}, a.Logger)
}

// newSinks assembles the alert delivery channels. The structured log sink
// is always present; Telegram and webhook are opt-in.
func (a *App) newSinks() []alerting.Sink {
	sinks := []alerting.Sink{alerting.NewLogSink(a.Logger)}

	timeout := a.Config.Alerting.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if tg := a.Config.Alerting.Telegram; tg.Enabled {
		sinks = append(sinks, alerting.NewTelegramSink(tg.BotToken, tg.ChatID, tg.APIBase, timeout, a.Logger))
	}
	if wh := a.Config.Alerting.Webhook; wh.Enabled {
		sinks = append(sinks, alerting.NewWebhookSink(wh.URL, wh.Headers, timeout, a.Logger))
	}
	return sinks
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, storage.PoolSettings{
		DSN:             a.Config.Database.DSN,
		MaxOpenConns:    a.Config.Database.MaxOpenConns,
		MaxIdleConns:    a.Config.Database.MaxIdleConns,
		ConnMaxLifetime: a.Config.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; snapshot archive disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	var snapStore storage.SnapshotStore
	if store != nil {
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		snapStore = store

		// Only one instance should archive a given deployment; a second
		// instance keeps alerting but skips the writes.
		if key := a.Config.Scheduler.AdvisoryLockKey; key != 0 {
			unlock, acquired, lockErr := store.TryAdvisoryLock(ctx, key)
			if lockErr != nil {
				return lockErr
			}
			if !acquired {
				a.Logger.Warn().Int64("key", key).Msg("advisory lock 已被其他实例持有, 本实例停用归档")
				snapStore = nil
			} else {
				defer unlock()
			}
		}
	}

	var m *metrics.Metrics
	if a.Config.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		m = metrics.New(registry)
		srv := metrics.NewServer(a.Config.Metrics.Addr, registry, a.Logger)
		go func() {
			if err := srv.Run(ctx); err != nil {
				a.Logger.Error().Err(err).Msg("metrics server terminated")
			}
		}()
	}

	reader := a.newReader()
	defer reader.Close()

	var subscriber chain.LogSubscriber
	if a.Config.Ethereum.WSURL != "" {
		subscriber = reader
	} else {
		a.Logger.Warn().Msg("ethereum.ws_url not configured; phase changes surface on the next poll")
	}

	dispatcher := alerting.NewDispatcher(a.newSinks(), alerting.NewSuppressionCounters(), m, a.Logger)
	svc := service.New(a.Config, reader, subscriber, dispatcher, snapStore, m, a.Logger)

	a.Logger.Info().Str("version", version.Version).Msg("starting monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting archived snapshots.
type ExportOptions struct {
	Pool      string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Pool  string
	Limit int
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	Pool      string
	FromBlock uint64
	ToBlock   uint64
	Step      uint64
	DryRun    bool
}

// SimulateOptions feed the synthetic detector run.
type SimulateOptions struct {
	Pool        string
	Phase       string
	ReserveFrom float64
	ReserveTo   float64
	Price       float64
	Supply      float64
	Fees        float64
	Paused      bool
}

// poolRef resolves a pool name to its configured reference. An empty name
// selects the first configured pool.
func (a *App) poolRef(name string) (chain.PoolRef, config.PoolConfig, error) {
	if len(a.Config.Pools) == 0 {
		return chain.PoolRef{}, config.PoolConfig{}, errors.New("配置中没有任何池")
	}
	if name == "" {
		p := a.Config.Pools[0]
		return chain.PoolRef{Name: p.Name, Address: p.Address, ReserveUSDRate: decimal.NewFromFloat(p.ReserveUSDRate)}, p, nil
	}
	for _, p := range a.Config.Pools {
		if p.Name == name {
			return chain.PoolRef{Name: p.Name, Address: p.Address, ReserveUSDRate: decimal.NewFromFloat(p.ReserveUSDRate)}, p, nil
		}
	}
	return chain.PoolRef{}, config.PoolConfig{}, errors.New("未找到名为 " + name + " 的池")
}
