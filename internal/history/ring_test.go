package history

import (
	"errors"
	"testing"
	"time"

	"github.com/Hokusai-protocol/hokusai-token-sub002/internal/state"
)

var t0 = time.Unix(1700000000, 0).UTC()

func snapAt(sec int64, height uint64) *state.Snapshot {
	return &state.Snapshot{Timestamp: t0.Add(time.Duration(sec) * time.Second), BlockHeight: height}
}

func TestRingAppendAndEvict(t *testing.T) {
	r := NewRing(3)
	for i := int64(0); i < 5; i++ {
		if err := r.Append(snapAt(i*10, uint64(100+i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	if r.Len() != 3 {
		t.Fatalf("len 期望 3, 实际 %d", r.Len())
	}
	got := r.Snapshots()
	if got[0].BlockHeight != 102 || got[2].BlockHeight != 104 {
		t.Fatalf("应淘汰最旧条目: %d..%d", got[0].BlockHeight, got[2].BlockHeight)
	}
	if r.Latest().BlockHeight != 104 {
		t.Fatalf("latest 期望 104, 实际 %d", r.Latest().BlockHeight)
	}
	if r.Previous().BlockHeight != 103 {
		t.Fatalf("previous 期望 103, 实际 %d", r.Previous().BlockHeight)
	}
}

func TestRingRejectsNonMonotonic(t *testing.T) {
	r := NewRing(4)
	if err := r.Append(snapAt(10, 100)); err != nil {
		t.Fatal(err)
	}

	// Same timestamp.
	if err := r.Append(snapAt(10, 101)); !errors.Is(err, ErrNonMonotonic) {
		t.Fatalf("重复时间戳应拒绝, 实际 %v", err)
	}
	// Earlier timestamp.
	if err := r.Append(snapAt(5, 101)); !errors.Is(err, ErrNonMonotonic) {
		t.Fatalf("回退时间戳应拒绝, 实际 %v", err)
	}
	// Lower block height.
	if err := r.Append(snapAt(20, 99)); !errors.Is(err, ErrNonMonotonic) {
		t.Fatalf("回退区块高度应拒绝, 实际 %v", err)
	}
	// Equal block height is fine (several polls inside one block).
	if err := r.Append(snapAt(20, 100)); err != nil {
		t.Fatalf("同块高度应接受: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("被拒绝的快照不应入环, len=%d", r.Len())
	}
}

func TestRingEarliestWithin(t *testing.T) {
	r := NewRing(10)
	for i := int64(0); i < 6; i++ {
		if err := r.Append(snapAt(i*60, uint64(i))); err != nil {
			t.Fatal(err)
		}
	}
	now := t0.Add(5 * time.Minute)

	base := r.EarliestWithin(2*time.Minute, now)
	if base == nil || base.BlockHeight != 3 {
		t.Fatalf("窗口基准应为 t+180s 的快照, 实际 %+v", base)
	}

	// Boundary: an entry exactly at now-window is inside the window.
	base = r.EarliestWithin(3*time.Minute, now)
	if base == nil || base.BlockHeight != 2 {
		t.Fatalf("边界快照应计入窗口, 实际 %+v", base)
	}

	if r.EarliestWithin(30*time.Second, t0.Add(time.Hour)) != nil {
		t.Fatal("窗口内无快照时应返回 nil")
	}
	if NewRing(4).EarliestWithin(time.Minute, now) != nil {
		t.Fatal("空环应返回 nil")
	}
}

func TestRingEmpty(t *testing.T) {
	r := NewRing(0)
	if r.Capacity() != DefaultCapacity {
		t.Fatalf("非法容量应回退默认值, 实际 %d", r.Capacity())
	}
	if r.Latest() != nil || r.Previous() != nil || r.Len() != 0 {
		t.Fatal("空环的访问器应返回零值")
	}
	if err := r.Append(nil); err == nil {
		t.Fatal("nil 快照应报错")
	}
}
