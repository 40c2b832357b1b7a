package watcher

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/alerting"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/chain"
	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/state"
)

type fakeSub struct {
	errCh chan error
}

func (f *fakeSub) Err() <-chan error { return f.errCh }
func (f *fakeSub) Unsubscribe()      {}

type fakeSubscriber struct {
	mu       sync.Mutex
	failures int
	sinks    []chan<- types.Log
	subs     []*fakeSub
	calls    int
}

func (f *fakeSubscriber) SubscribePhaseLogs(_ context.Context, _ chain.PoolRef, sink chan<- types.Log) (chain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, context.DeadlineExceeded
	}
	sub := &fakeSub{errCh: make(chan error, 1)}
	f.sinks = append(f.sinks, sink)
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeSubscriber) wait(t *testing.T, n int) (chan<- types.Log, *fakeSub) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		if len(f.subs) >= n {
			sink, sub := f.sinks[n-1], f.subs[n-1]
			f.mu.Unlock()
			return sink, sub
		}
		f.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("订阅 %d 未建立", n)
	return nil, nil
}

func (f *fakeSubscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTicker struct {
	wakes atomic.Int64
}

func (f *fakeTicker) Wake() { f.wakes.Add(1) }

type captureSink struct {
	mu  sync.Mutex
	got []alerting.Alert
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Send(_ context.Context, a alerting.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, a)
	return nil
}

func (s *captureSink) alerts() []alerting.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]alerting.Alert(nil), s.got...)
}

// word left-pads one ABI word, matching the static encoding of the
// PhaseTransition arguments.
func word(v int64) []byte {
	b := make([]byte, 32)
	big.NewInt(v).FillBytes(b)
	return b
}

func transitionLog(from, to, reserve, ts int64, height uint64, removed bool) types.Log {
	data := append(word(from), word(to)...)
	data = append(data, word(reserve)...)
	data = append(data, word(ts)...)
	return types.Log{Data: data, BlockNumber: height, Removed: removed}
}

func newTestWatcher(sub chain.LogSubscriber, cell *state.PhaseCell, ticker TickController, sink alerting.Sink) *Watcher {
	d := alerting.NewDispatcher([]alerting.Sink{sink}, nil, nil, zerolog.Nop())
	return New(chain.PoolRef{Name: "hokusai-main", Address: "0x1"}, sub, cell, ticker, d, nil,
		Options{ResubscribeMin: 10 * time.Millisecond, ResubscribeMax: 50 * time.Millisecond}, zerolog.Nop())
}

func TestWatcherHandlesTransitionEvent(t *testing.T) {
	subscriber := &fakeSubscriber{}
	cell := &state.PhaseCell{}
	ticker := &fakeTicker{}
	sink := &captureSink{}
	w := newTestWatcher(subscriber, cell, ticker, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	sinkCh, _ := subscriber.wait(t, 1)
	sinkCh <- transitionLog(0, 1, 5000, 1700000000, 321, false)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sink.alerts()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	alerts := sink.alerts()
	if len(alerts) != 1 {
		t.Fatalf("应派发一条告警, 实际 %d", len(alerts))
	}
	a := alerts[0]
	if a.Kind != alerting.KindPhaseTransition || a.Priority != alerting.PriorityMedium {
		t.Fatalf("告警类别不正确: %+v", a)
	}
	if a.BlockHeight != 321 {
		t.Fatalf("区块高度不正确: %d", a.BlockHeight)
	}
	p := a.Payload.(alerting.TransitionPayload)
	if p.From != state.PhaseFlat || p.To != state.PhaseBondingCurve || p.Source != "event" {
		t.Fatalf("payload 不正确: %+v", p)
	}

	if phase, ok := cell.Load(); !ok || phase != state.PhaseBondingCurve {
		t.Fatalf("事件应更新 phase 缓存: %v %v", phase, ok)
	}
	if ticker.wakes.Load() == 0 {
		t.Fatal("事件应唤醒轮询")
	}
}

func TestWatcherSkipsAlreadyPolledPhase(t *testing.T) {
	subscriber := &fakeSubscriber{}
	cell := &state.PhaseCell{}
	cell.Store(state.PhaseBondingCurve)
	ticker := &fakeTicker{}
	sink := &captureSink{}
	w := newTestWatcher(subscriber, cell, ticker, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	sinkCh, _ := subscriber.wait(t, 1)
	sinkCh <- transitionLog(0, 1, 5000, 1700000000, 321, false)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ticker.wakes.Load() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if len(sink.alerts()) != 0 {
		t.Fatal("轮询已记录的 phase 不应重复告警")
	}
	if ticker.wakes.Load() == 0 {
		t.Fatal("事件仍应唤醒轮询")
	}
}

func TestWatcherReorgInvalidatesCache(t *testing.T) {
	subscriber := &fakeSubscriber{}
	cell := &state.PhaseCell{}
	cell.Store(state.PhaseBondingCurve)
	ticker := &fakeTicker{}
	sink := &captureSink{}
	w := newTestWatcher(subscriber, cell, ticker, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	sinkCh, _ := subscriber.wait(t, 1)
	sinkCh <- transitionLog(0, 1, 5000, 1700000000, 321, true)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ticker.wakes.Load() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, ok := cell.Load(); ok {
		t.Fatal("重组事件应清空 phase 缓存")
	}
	if len(sink.alerts()) != 0 {
		t.Fatal("重组事件不应派发告警")
	}
	if ticker.wakes.Load() == 0 {
		t.Fatal("重组事件应唤醒轮询")
	}
}

func TestWatcherResubscribesAfterFailure(t *testing.T) {
	subscriber := &fakeSubscriber{failures: 2}
	w := newTestWatcher(subscriber, &state.PhaseCell{}, &fakeTicker{}, &captureSink{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	subscriber.wait(t, 1)
	if subscriber.callCount() < 3 {
		t.Fatalf("两次失败后应第三次重试成功, 调用次数 %d", subscriber.callCount())
	}
}

func TestWatcherResubscribesAfterStreamError(t *testing.T) {
	subscriber := &fakeSubscriber{}
	w := newTestWatcher(subscriber, &state.PhaseCell{}, &fakeTicker{}, &captureSink{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	_, sub := subscriber.wait(t, 1)
	sub.errCh <- context.DeadlineExceeded

	subscriber.wait(t, 2)
}
