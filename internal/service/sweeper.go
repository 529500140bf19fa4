package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"caselore/internal/config"
	"caselore/internal/tier"
)

const defaultSweepInterval = 5 * time.Minute

// SweeperService periodically reclaims expired investigation leases and
// purges expired cache entries.
type SweeperService struct {
	queue  *InvestigationQueue
	cache  *tier.ResultCache
	policy config.Policy
	logger *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewSweeperService(queue *InvestigationQueue, cache *tier.ResultCache, policy config.Policy, logger *zap.Logger) *SweeperService {
	return &SweeperService{
		queue:    queue,
		cache:    cache,
		policy:   policy,
		logger:   logger,
		interval: defaultSweepInterval,
		stopCh:   make(chan struct{}),
	}
}

func (s *SweeperService) SetInterval(d time.Duration) {
	s.interval = d
}

// Start runs the sweeper on a periodic schedule in a background goroutine.
func (s *SweeperService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("sweeper started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				s.run(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("sweeper stopped")
				return
			}
		}
	}()
}

func (s *SweeperService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *SweeperService) run(ctx context.Context) {
	if s.queue != nil {
		if n := s.queue.SweepExpiredLeases(ctx, s.policy.InvestigationLeaseTimeout); n > 0 {
			s.logger.Info("requeued expired leases", zap.Int("count", n))
		}
	}
	if s.cache != nil {
		purged, err := s.cache.Purge(ctx)
		if err != nil {
			s.logger.Error("cache purge failed", zap.Error(err))
			return
		}
		if purged > 0 {
			s.logger.Info("purged expired cache entries", zap.Int("count", purged))
		}
	}
}
