package engine

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSchedulerAdvancesAndNotifies(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sched := NewScheduler(start, 10*time.Millisecond, RealTime)

	var mu sync.Mutex
	var ticks []time.Time
	sched.AddListener(func(ts time.Time) {
		mu.Lock()
		defer mu.Unlock()
		ticks = append(ticks, ts)
	})

	done := sched.Run(context.Background(), 50*time.Millisecond)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ticks) != 5 {
		t.Fatalf("ticks = %d, want 5", len(ticks))
	}
	if want := start.Add(10 * time.Millisecond); !ticks[0].Equal(want) {
		t.Errorf("first tick = %v, want %v", ticks[0], want)
	}
	if want := start.Add(50 * time.Millisecond); !sched.Now().Equal(want) {
		t.Errorf("final survey time = %v, want %v", sched.Now(), want)
	}
}

func TestSchedulerAcceleratedRunsFasterThanWallClock(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sched := NewScheduler(start, time.Second, Accelerated)

	var count int
	sched.AddListener(func(time.Time) { count++ })

	began := time.Now()
	done := sched.Run(context.Background(), time.Hour)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("accelerated run did not finish")
	}

	if count != 3600 {
		t.Fatalf("ticks = %d, want 3600", count)
	}
	if elapsed := time.Since(began); elapsed > 2*time.Second {
		t.Errorf("accelerated hour took %v of wall time", elapsed)
	}
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	sched := NewScheduler(time.Now(), 5*time.Millisecond, RealTime)
	ctx, cancel := context.WithCancel(context.Background())

	done := sched.Run(ctx, 0)
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
