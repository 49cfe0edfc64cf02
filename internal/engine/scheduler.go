package engine

import (
	"context"
	"sync"
	"time"
)

// Mode describes how the Scheduler advances survey time.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still
	// stepping by Interval, for replaying recorded surveys.
	Accelerated
)

// Scheduler drives periodic recomputes and notifies registered
// listeners on every tick. It implements Clock so the engine can
// timestamp snapshots with survey time instead of wall time.
type Scheduler struct {
	mu        sync.RWMutex
	StartTime time.Time
	Interval  time.Duration
	Mode      Mode

	// currentTime tracks survey time as the scheduler advances.
	currentTime time.Time

	listeners []func(time.Time)
}

// NewScheduler constructs a scheduler.
func NewScheduler(start time.Time, interval time.Duration, mode Mode) *Scheduler {
	return &Scheduler{
		StartTime:   start,
		Interval:    interval,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current survey time. Implements Clock.
func (s *Scheduler) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentTime
}

// AddListener registers a callback invoked on every tick. Listeners
// must be registered before Run is called.
func (s *Scheduler) AddListener(fn func(time.Time)) {
	s.listeners = append(s.listeners, fn)
}

// Run advances the scheduler for the specified duration in a separate
// goroutine, or until ctx is cancelled. A non-positive duration runs
// until cancellation. It returns a channel that is closed when the
// scheduler finishes.
func (s *Scheduler) Run(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		s.mu.Lock()
		surveyTime := s.StartTime
		s.currentTime = surveyTime
		s.mu.Unlock()

		elapsed := time.Duration(0)

		var ticker *time.Ticker
		if s.Mode == RealTime {
			ticker = time.NewTicker(s.Interval)
			defer ticker.Stop()
		}

		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			if ticker != nil {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			} else if ctx.Err() != nil {
				return
			}

			surveyTime = surveyTime.Add(s.Interval)
			elapsed += s.Interval

			s.mu.Lock()
			s.currentTime = surveyTime
			s.mu.Unlock()

			for _, fn := range s.listeners {
				fn(surveyTime)
			}
		}
	}()
	return done
}
