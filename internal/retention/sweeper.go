// Package retention deletes delivery rows past the retention horizon. The
// sweep runs on a fixed cadence, hard-deletes, and is idempotent: finding
// nothing to delete is a normal outcome, not an error.
package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quillhq/hookrelay/internal/clock"
	"github.com/quillhq/hookrelay/internal/observability"
	"github.com/quillhq/hookrelay/internal/repository"
)

type Config struct {
	// Interval is the sweep cadence (default: 24h).
	Interval time.Duration
	// Horizon is how long delivery rows are kept (default: 7 days).
	Horizon time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval: 24 * time.Hour,
		Horizon:  7 * 24 * time.Hour,
	}
}

// Sweeper runs the retention sweep on a ticker. With a Lock configured,
// only the instance holding the lock sweeps, so multi-instance deployments
// delete each batch once.
type Sweeper struct {
	config     Config
	deliveries repository.DeliveryRepository
	clock      clock.Clock
	lock       Lock
	logger     *slog.Logger
	metrics    *observability.Metrics

	wg     sync.WaitGroup
	stopCh chan struct{}
}

func NewSweeper(deliveries repository.DeliveryRepository, config Config, clk clock.Clock, logger *slog.Logger) *Sweeper {
	if config.Interval == 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.Horizon == 0 {
		config.Horizon = DefaultConfig().Horizon
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		config:     config,
		deliveries: deliveries,
		clock:      clk,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// WithLock makes sweeps conditional on holding the distributed lock.
func (s *Sweeper) WithLock(lock Lock) *Sweeper {
	s.lock = lock
	return s
}

func (s *Sweeper) WithMetrics(m *observability.Metrics) *Sweeper {
	s.metrics = m
	return s
}

// Start begins sweeping. Blocks until Stop is called or ctx is cancelled.
// Sweeps once immediately, then on the interval.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()

	s.logger.Info("retention sweeper started",
		"interval", s.config.Interval,
		"horizon", s.config.Horizon,
	)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Stop signals Start to return and waits for any in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// Sweep deletes every delivery row older than the horizon and logs the count.
func (s *Sweeper) Sweep(ctx context.Context) {
	if s.lock != nil {
		held, err := s.lock.TryAcquire(ctx)
		if err != nil {
			s.logger.Warn("retention lock unavailable, sweeping anyway", "error", err)
		} else if !held {
			s.logger.Debug("retention lock held elsewhere, skipping sweep")
			return
		} else {
			defer func() {
				if err := s.lock.Release(ctx); err != nil {
					s.logger.Warn("failed to release retention lock", "error", err)
				}
			}()
		}
	}

	cutoff := s.clock.Now().Add(-s.config.Horizon)
	deleted, err := s.deliveries.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention sweep failed", "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.RetentionDeleted.Add(float64(deleted))
	}
	s.logger.Info("retention sweep complete", "deleted", deleted, "cutoff", cutoff)
}
