package selection

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler periodically advances turns whose deadline passed.
type Scheduler struct {
	mu       sync.RWMutex
	service  *Service
	logger   *slog.Logger
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewScheduler(svc *Service, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		service:  svc,
		logger:   logger,
		interval: interval,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	n, err := s.service.AdvanceExpired(ctx)
	if err != nil {
		s.logger.Error("selection scheduler: advance expired", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("selection scheduler: advanced expired turns", "count", n)
	}
}
