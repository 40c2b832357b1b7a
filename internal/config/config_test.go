package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: curvewatcher\n"))
	if err != nil {
		t.Fatalf("加载默认配置失败: %v", err)
	}

	if cfg.Scheduler.Interval != 10*time.Second {
		t.Fatalf("默认轮询间隔期望 10s, 实际 %s", cfg.Scheduler.Interval)
	}
	if !cfg.Scheduler.AlignToTick {
		t.Fatal("默认应对齐轮询")
	}
	if cfg.History.Capacity != 300 {
		t.Fatalf("默认历史容量期望 300, 实际 %d", cfg.History.Capacity)
	}
	if cfg.Thresholds.ReserveDropPct != 20 || cfg.Thresholds.ReserveDropWindow != time.Hour {
		t.Fatalf("默认储备跌幅阈值不正确: %+v", cfg.Thresholds)
	}
	if cfg.Thresholds.PriceSpikeWindow != 10*time.Minute {
		t.Fatalf("默认价格窗口期望 10m, 实际 %s", cfg.Thresholds.PriceSpikeWindow)
	}
	if cfg.Thresholds.TolerancePct != 5 {
		t.Fatalf("默认容差期望 5, 实际 %v", cfg.Thresholds.TolerancePct)
	}
	if cfg.Ethereum.ReserveUSDRate != 1 {
		t.Fatalf("默认储备汇率期望 1, 实际 %v", cfg.Ethereum.ReserveUSDRate)
	}
	if cfg.Metrics.Enabled {
		t.Fatal("metrics 默认应关闭")
	}
}

func TestLoadPools(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
pools:
  - name: hokusai-main
    address: "0x00000000000000000000000000000000000000aa"
  - name: hokusai-test
    address: "0x00000000000000000000000000000000000000bb"
    reserve_usd_rate: 0.5
    thresholds:
      reserve_drop_pct: 30
      min_reserve_usd: -1
`))
	if err != nil {
		t.Fatalf("加载池配置失败: %v", err)
	}

	if len(cfg.Pools) != 2 {
		t.Fatalf("应解析两个池, 实际 %d", len(cfg.Pools))
	}

	main := cfg.PoolThresholds(cfg.Pools[0])
	if main.ReserveDropPct != 20 || main.MinReserveUSD != 1000 {
		t.Fatalf("无覆盖时应继承全局阈值: %+v", main)
	}

	test := cfg.PoolThresholds(cfg.Pools[1])
	if test.ReserveDropPct != 30 {
		t.Fatalf("覆盖值应生效: %v", test.ReserveDropPct)
	}
	if test.MinReserveUSD != -1 {
		t.Fatalf("负值应透传以停用检查: %v", test.MinReserveUSD)
	}
	if test.PriceSpikePct != 15 {
		t.Fatalf("未覆盖字段应继承: %v", test.PriceSpikePct)
	}
}

func TestValidateRejectsBadPools(t *testing.T) {
	if _, err := Load(writeConfig(t, `
pools:
  - name: hokusai-main
    address: "0xaa"
  - name: hokusai-main
    address: "0xbb"
`)); err == nil {
		t.Fatal("重复池名应报错")
	}

	if _, err := Load(writeConfig(t, `
pools:
  - name: hokusai-main
`)); err == nil {
		t.Fatal("缺少地址应报错")
	}
}

func TestValidateTelegram(t *testing.T) {
	if _, err := Load(writeConfig(t, `
alerting:
  telegram:
    enabled: true
`)); err == nil {
		t.Fatal("telegram 开启但缺少 token 应报错")
	}
}

func TestValidateWebhook(t *testing.T) {
	if _, err := Load(writeConfig(t, `
alerting:
  webhook:
    enabled: true
`)); err == nil {
		t.Fatal("webhook 开启但缺少 url 应报错")
	}
}

func TestValidateScheduler(t *testing.T) {
	if _, err := Load(writeConfig(t, "scheduler:\n  interval: 0s\n")); err == nil {
		t.Fatal("非法轮询间隔应报错")
	}
}
