package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"contact-manager/feature/sync/directory"

	"go.uber.org/zap"
)

// Result is the outcome of a full synchronization run.
type Result struct {
	Directory []*MergeReport `json:"directory"`
	Shares    *ShareReport   `json:"shares,omitempty"`
	Push      *PushReport    `json:"push,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}

// Service runs synchronization operations and remembers the last outcome.
type Service struct {
	reconciler *Reconciler
	sweeper    *Sweeper
	logger     *zap.Logger

	mu   sync.Mutex
	last *Result
}

// NewService creates the sync service.
func NewService(reconciler *Reconciler, sweeper *Sweeper, logger *zap.Logger) *Service {
	return &Service{
		reconciler: reconciler,
		sweeper:    sweeper,
		logger:     logger,
	}
}

// Reconciler exposes the underlying reconciler.
func (s *Service) Reconciler() *Reconciler {
	return s.reconciler
}

// Sweeper exposes the background sweeper for the server lifecycle.
func (s *Service) Sweeper() *Sweeper {
	return s.sweeper
}

// SyncNow runs a full pass: pull from every directory profile, pull the
// incoming shares, then push local changes out.
func (s *Service) SyncNow(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{StartedAt: start}

	if len(s.reconciler.profiles) > 0 {
		res.Directory = s.reconciler.PullDirectory(ctx)
	}

	shares, err := s.reconciler.PullShares(ctx)
	if err != nil {
		s.logger.Warn("Share pull failed during sync", zap.Error(err))
	} else {
		res.Shares = shares
	}

	if len(s.reconciler.profiles) > 0 {
		res.Push = s.reconciler.PushOutbound(ctx)
	}

	res.Duration = time.Since(start)
	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
	return res, nil
}

// Pull runs the inbound half only.
func (s *Service) Pull(ctx context.Context) (*SweepResult, error) {
	return s.sweeper.Sweep(ctx)
}

// Push runs the outbound half only.
func (s *Service) Push(ctx context.Context) (*PushReport, error) {
	if len(s.reconciler.profiles) == 0 {
		return nil, fmt.Errorf("no directory profiles configured")
	}
	return s.reconciler.PushOutbound(ctx), nil
}

// LastResult returns the most recent full sync outcome, if any.
func (s *Service) LastResult() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Profiles returns the configured directory profiles.
func (s *Service) Profiles() []directory.Profile {
	return s.reconciler.profiles
}
