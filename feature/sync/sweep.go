package sync

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// SweepResult is the combined outcome of one reconciliation sweep.
type SweepResult struct {
	Directory []*MergeReport `json:"directory"`
	Shares    *ShareReport   `json:"shares,omitempty"`
	At        time.Time      `json:"at"`
}

// Sweeper periodically re-pulls every source as a safety net for missed
// change notifications. Overlapping triggers (the ticker plus manual sync
// requests) collapse into a single run through singleflight.
type Sweeper struct {
	reconciler *Reconciler
	interval   time.Duration
	logger     *zap.Logger
	sf         singleflight.Group
}

// NewSweeper creates a sweeper with the given interval.
func NewSweeper(reconciler *Reconciler, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		reconciler: reconciler,
		interval:   interval,
		logger:     logger,
	}
}

// Run executes sweeps on the configured interval until the context ends.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Reconciliation sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Reconciliation sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Warn("Sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep runs one reconciliation pass over all sources. Concurrent callers
// share a single run and its result.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	result, err, shared := s.sf.Do("sweep", func() (interface{}, error) {
		res := &SweepResult{At: time.Now()}
		if len(s.reconciler.profiles) > 0 {
			res.Directory = s.reconciler.PullDirectory(ctx)
		}

		shares, err := s.reconciler.PullShares(ctx)
		if err != nil {
			// A failed listing must never look like a mass revocation;
			// report it and keep the current views.
			return res, err
		}
		res.Shares = shares
		return res, nil
	})
	if shared {
		s.logger.Debug("Sweep joined an in-flight run")
	}
	if result == nil {
		return nil, err
	}
	return result.(*SweepResult), err
}
