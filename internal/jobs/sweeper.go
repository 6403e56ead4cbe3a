package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const sweepTimeout = 2 * time.Minute

var errMissingSchedule = errors.New("jobs: sweep schedule is required")

// LinkSweeper deactivates expired contribution links.
type LinkSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// LeaderboardSweeper re-derives every leaderboard bucket. Because ranking
// is a pure recomputation from completed phrases it is safe to run on a
// schedule as a catch-up for refreshes that failed inline.
type LeaderboardSweeper interface {
	RerankAll(ctx context.Context) error
}

// SweeperConfig describes the scheduled maintenance jobs.
type SweeperConfig struct {
	Schedule    string
	Links       LinkSweeper
	Leaderboard LeaderboardSweeper
	Logger      *zap.Logger
}

// Sweeper runs the expiry and leaderboard catch-up sweeps on a cron
// schedule.
type Sweeper struct {
	config SweeperConfig
	cron   *cron.Cron
	logger *zap.Logger
}

// NewSweeper constructs the sweeper.
func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Schedule == "" {
		return nil, errMissingSchedule
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{config: cfg, cron: cron.New(), logger: logger}, nil
}

// Start registers the sweep entries and begins the schedule.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.config.Schedule, s.runOnce); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("maintenance sweeper started", zap.String("schedule", s.config.Schedule))
	return nil
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.logger.Info("maintenance sweeper stopped")
	}
}

// RunOnce executes both sweeps immediately. Exposed for startup catch-up
// and tests; the cron entries call the same path.
func (s *Sweeper) RunOnce(ctx context.Context) {
	if s.config.Links != nil {
		if swept, err := s.config.Links.SweepExpired(ctx); err != nil {
			s.logger.Warn("contribution link sweep failed", zap.Error(err))
		} else if swept > 0 {
			s.logger.Info("contribution link sweep finished", zap.Int64("deactivated", swept))
		}
	}
	if s.config.Leaderboard != nil {
		if err := s.config.Leaderboard.RerankAll(ctx); err != nil {
			s.logger.Warn("leaderboard catch-up sweep failed", zap.Error(err))
		}
	}
}

func (s *Sweeper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	s.RunOnce(ctx)
}
