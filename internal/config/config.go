package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Ethereum   EthereumConfig   `mapstructure:"ethereum"`
	History    HistoryConfig    `mapstructure:"history"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Pools      []PoolConfig     `mapstructure:"pools"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN
// disables the snapshot archive entirely.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the per-pool poll cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToTick     bool          `mapstructure:"align_to_tick"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// EthereumConfig covers on-chain data access. ws_url is optional; without
// it the event fast path stays off and phase changes surface via polling.
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	WSURL          string        `mapstructure:"ws_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ReserveUSDRate float64       `mapstructure:"reserve_usd_rate"`
}

// HistoryConfig sizes the in-memory snapshot window.
type HistoryConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// ThresholdsConfig defines anomaly detection thresholds. At the top level
// a zero disables the check; inside a pool override a zero inherits the
// top-level value and a negative value disables the check for that pool.
type ThresholdsConfig struct {
	ReserveDropPct     float64       `mapstructure:"reserve_drop_pct"`
	ReserveDropWindow  time.Duration `mapstructure:"reserve_drop_window"`
	PriceSpikePct      float64       `mapstructure:"price_spike_pct"`
	PriceSpikeWindow   time.Duration `mapstructure:"price_spike_window"`
	SupplyChangePct    float64       `mapstructure:"supply_change_pct"`
	SupplyChangeWindow time.Duration `mapstructure:"supply_change_window"`
	MinReserveUSD      float64       `mapstructure:"min_reserve_usd"`
	MaxTreasuryFeesUSD float64       `mapstructure:"max_treasury_fees_usd"`
	PausedAfter        time.Duration `mapstructure:"paused_duration"`
	TolerancePct       float64       `mapstructure:"invariant_tolerance_pct"`
}

// PoolConfig declares one monitored pool contract.
type PoolConfig struct {
	Name           string           `mapstructure:"name"`
	Address        string           `mapstructure:"address"`
	ReserveUSDRate float64          `mapstructure:"reserve_usd_rate"`
	Thresholds     ThresholdsConfig `mapstructure:"thresholds"`
}

// AlertingConfig defines alert routing. The structured log always carries
// alerts; external channels are opt-in.
type AlertingConfig struct {
	RequestTimeout time.Duration  `mapstructure:"request_timeout"`
	Telegram       TelegramConfig `mapstructure:"telegram"`
	Webhook        WebhookConfig  `mapstructure:"webhook"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// WebhookConfig 描述 webhook 告警参数。
type WebhookConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CURVEWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "curvewatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "10s")
	v.SetDefault("scheduler.align_to_tick", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x484f4b55))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("ethereum.request_timeout", "10s")
	v.SetDefault("ethereum.reserve_usd_rate", 1.0)

	v.SetDefault("history.capacity", 300)

	v.SetDefault("thresholds.reserve_drop_pct", 20.0)
	v.SetDefault("thresholds.reserve_drop_window", "1h")
	v.SetDefault("thresholds.price_spike_pct", 15.0)
	v.SetDefault("thresholds.price_spike_window", "10m")
	v.SetDefault("thresholds.supply_change_pct", 10.0)
	v.SetDefault("thresholds.supply_change_window", "1h")
	v.SetDefault("thresholds.min_reserve_usd", 1000.0)
	v.SetDefault("thresholds.max_treasury_fees_usd", 0.0)
	v.SetDefault("thresholds.paused_duration", "0s")
	v.SetDefault("thresholds.invariant_tolerance_pct", 5.0)

	v.SetDefault("alerting.request_timeout", "10s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.webhook.enabled", false)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.History.Capacity <= 0 {
		return fmt.Errorf("history.capacity must be greater than zero")
	}
	if c.Thresholds.TolerancePct < 0 {
		return fmt.Errorf("thresholds.invariant_tolerance_pct cannot be negative")
	}

	seen := make(map[string]bool, len(c.Pools))
	for i, p := range c.Pools {
		if p.Name == "" {
			return fmt.Errorf("pools[%d].name 必须配置", i)
		}
		if p.Address == "" {
			return fmt.Errorf("pools[%d].address 必须配置", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("pool 名称重复: %s", p.Name)
		}
		seen[p.Name] = true
	}

	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Alerting.Webhook.Enabled && c.Alerting.Webhook.URL == "" {
		return fmt.Errorf("alerting.webhook.url 必须配置")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr 必须配置")
	}

	return nil
}

// PoolThresholds merges a pool's override block with the top-level
// thresholds. Zero fields inherit; negative fields disable.
func (c *Config) PoolThresholds(p PoolConfig) ThresholdsConfig {
	merged := c.Thresholds
	o := p.Thresholds

	if o.ReserveDropPct != 0 {
		merged.ReserveDropPct = o.ReserveDropPct
	}
	if o.ReserveDropWindow != 0 {
		merged.ReserveDropWindow = o.ReserveDropWindow
	}
	if o.PriceSpikePct != 0 {
		merged.PriceSpikePct = o.PriceSpikePct
	}
	if o.PriceSpikeWindow != 0 {
		merged.PriceSpikeWindow = o.PriceSpikeWindow
	}
	if o.SupplyChangePct != 0 {
		merged.SupplyChangePct = o.SupplyChangePct
	}
	if o.SupplyChangeWindow != 0 {
		merged.SupplyChangeWindow = o.SupplyChangeWindow
	}
	if o.MinReserveUSD != 0 {
		merged.MinReserveUSD = o.MinReserveUSD
	}
	if o.MaxTreasuryFeesUSD != 0 {
		merged.MaxTreasuryFeesUSD = o.MaxTreasuryFeesUSD
	}
	if o.PausedAfter != 0 {
		merged.PausedAfter = o.PausedAfter
	}
	if o.TolerancePct != 0 {
		merged.TolerancePct = o.TolerancePct
	}
	return merged
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
