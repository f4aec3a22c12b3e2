package refresh

import (
	"context"
	"sync"
	"time"

	"stockpane/internal/config"
)

// Scheduler runs a task immediately and then on every interval tick until
// stopped. The task runs on the scheduler's own goroutine, never on the
// caller's; it reports results through whatever hand-off it closes over.
// Ticks that arrive while the task is still running are dropped.
type Scheduler struct {
	interval time.Duration
	task     func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a stopped Scheduler. A non-positive interval selects
// the default poll interval.
func NewScheduler(interval time.Duration, task func(ctx context.Context)) *Scheduler {
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}
	return &Scheduler{interval: interval, task: task}
}

// Start launches the task loop. It is a no-op if the loop is already
// running. The loop also ends when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running() {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.task(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.task(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for a running task to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop has been started and has not ended.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running()
}

// running reports whether the loop goroutine is alive. Callers hold mu.
func (s *Scheduler) running() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}
