package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/state"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func sampleAlert() Alert {
	return NewFromEvent("hokusai-main", KindReserveDrop, state.PhaseBondingCurve,
		time.Unix(1700000000, 0).UTC(), 123, "reserve dropped 25.00% within 1h0m0s",
		DeltaPayload{
			Metric:    "reserve_usd",
			From:      decimal.NewFromInt(100),
			To:        decimal.NewFromInt(75),
			ChangePct: decimal.NewFromInt(-25),
			Window:    time.Hour,
		})
}

func TestTelegramSinkSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	sink := NewTelegramSink("token", "chat", srv.URL, time.Second, testLogger())
	if err := sink.Send(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("Telegram Send 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	text := received["text"]
	if !strings.Contains(text, "reserve_drop") || !strings.Contains(text, "hokusai-main") {
		t.Fatalf("消息应包含告警类别与池名: %q", text)
	}
	if !strings.Contains(text, "-25.00%") {
		t.Fatalf("消息应包含变化幅度: %q", text)
	}
}

func TestTelegramSinkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	sink := NewTelegramSink("token", "chat", srv.URL, time.Second, testLogger())
	if err := sink.Send(context.Background(), sampleAlert()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestWebhookSinkPostsEnvelope(t *testing.T) {
	var envelope struct {
		Pool        string          `json:"pool"`
		Kind        Kind            `json:"kind"`
		Priority    Priority        `json:"priority"`
		Phase       string          `json:"phase"`
		BlockHeight uint64          `json:"block_height"`
		Message     string          `json:"message"`
		Payload     json.RawMessage `json:"payload"`
	}
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
			t.Fatalf("解析 webhook 请求失败: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, map[string]string{"Authorization": "Bearer abc"}, time.Second, testLogger())
	if err := sink.Send(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("webhook Send 应成功: %v", err)
	}

	if gotAuth != "Bearer abc" {
		t.Fatalf("应带上自定义 header, 实际 %q", gotAuth)
	}
	if envelope.Kind != KindReserveDrop || envelope.Priority != PriorityHigh || envelope.Pool != "hokusai-main" {
		t.Fatalf("envelope 字段不正确: %+v", envelope)
	}
	if envelope.Phase != "bonding_curve" {
		t.Fatalf("phase 应序列化为字符串: %q", envelope.Phase)
	}
	if envelope.BlockHeight != 123 {
		t.Fatalf("区块高度不正确: %d", envelope.BlockHeight)
	}
	if !strings.Contains(string(envelope.Payload), `"window_seconds":3600`) {
		t.Fatalf("payload 应以秒表示窗口: %s", envelope.Payload)
	}
}

func TestWebhookSinkRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, nil, time.Second, testLogger())
	if err := sink.Send(context.Background(), sampleAlert()); err == nil {
		t.Fatal("非 2xx 状态应报错")
	}
}

type recordingSink struct {
	name string
	got  []Alert
	err  error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Send(_ context.Context, a Alert) error {
	s.got = append(s.got, a)
	return s.err
}

func TestDispatcherIsolatesSinkFailures(t *testing.T) {
	bad := &recordingSink{name: "bad", err: errors.New("boom")}
	good := &recordingSink{name: "good"}
	d := NewDispatcher([]Sink{bad, good}, nil, nil, testLogger())

	d.DispatchBatch(context.Background(), []Alert{sampleAlert(), sampleAlert()})

	if len(bad.got) != 2 || len(good.got) != 2 {
		t.Fatalf("失败的 sink 不应影响其余 sink: bad=%d good=%d", len(bad.got), len(good.got))
	}
}

func TestDispatcherNoteSuppressed(t *testing.T) {
	d := NewDispatcher(nil, nil, nil, testLogger())

	d.NoteSuppressed("hokusai-main", KindPriceSpike)
	d.NoteSuppressed("hokusai-main", KindPriceSpike)
	d.NoteSuppressed("hokusai-main", KindLowReserve)
	d.NoteSuppressed("other", KindPriceSpike)

	c := d.Counters()
	if got := c.Get("hokusai-main", KindPriceSpike); got != 2 {
		t.Fatalf("price_spike 抑制计数期望 2, 实际 %d", got)
	}
	if got := c.Get("hokusai-main", KindLowReserve); got != 1 {
		t.Fatalf("low_reserve 抑制计数期望 1, 实际 %d", got)
	}
	snap := c.Snapshot()
	if snap["other"][KindPriceSpike] != 1 {
		t.Fatalf("快照应含其他池计数: %+v", snap)
	}
	// The snapshot is a copy.
	snap["other"][KindPriceSpike] = 99
	if c.Get("other", KindPriceSpike) != 1 {
		t.Fatal("修改快照不应影响原计数")
	}
}

func TestPriorityFor(t *testing.T) {
	cases := map[Kind]Priority{
		KindPaused:          PriorityCritical,
		KindSupplyInvariant: PriorityCritical,
		KindReserveDrop:     PriorityHigh,
		KindPriceSpike:      PriorityHigh,
		KindSupplyAnomaly:   PriorityHigh,
		KindLowReserve:      PriorityHigh,
		KindHighFees:        PriorityMedium,
		KindPhaseTransition: PriorityMedium,
	}
	for kind, want := range cases {
		if got := PriorityFor(kind); got != want {
			t.Fatalf("%s 优先级期望 %s, 实际 %s", kind, want, got)
		}
	}
}
