package paidquiz

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const defaultSweepInterval = 5 * time.Minute

// SweepResult counts what one sweep pass changed
type SweepResult struct {
	ExpiredSets       int64 `json:"expired_sets"`
	AbandonedSessions int64 `json:"abandoned_sessions"`
}

// Sweeper periodically expires cached question sets and abandons stale
// sessions
type Sweeper struct {
	cache    *QuestionCache
	sessions *SessionManager
	interval time.Duration
	logger   log.Logger
}

// NewSweeper creates a new sweeper
func NewSweeper(cache *QuestionCache, sessions *SessionManager, interval time.Duration, logger log.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{cache: cache, sessions: sessions, interval: interval, logger: orNop(logger)}
}

// SweepOnce runs both sweeps. A failure in one does not skip the other.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	var firstErr error

	expired, err := s.cache.SweepExpired(ctx)
	if err != nil {
		level.Error(s.logger).Log("msg", "question set sweep failed", "err", err)
		firstErr = err
	}
	result.ExpiredSets = expired

	abandoned, err := s.sessions.AbandonStale(ctx)
	if err != nil {
		level.Error(s.logger).Log("msg", "session sweep failed", "err", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	result.AbandonedSessions = abandoned

	level.Debug(s.logger).Log("msg", "sweep finished", "expired_sets", result.ExpiredSets, "abandoned_sessions", result.AbandonedSessions)
	return result, firstErr
}

// Run sweeps on every tick until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) error {
	level.Info(s.logger).Log("msg", "sweeper started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			level.Info(s.logger).Log("msg", "sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}
