package jobs

import (
	"context"
	"errors"
	"testing"
)

type fakeLinkSweeper struct {
	calls int
	swept int64
	err   error
}

func (f *fakeLinkSweeper) SweepExpired(context.Context) (int64, error) {
	f.calls++
	return f.swept, f.err
}

type fakeLeaderboardSweeper struct {
	calls int
	err   error
}

func (f *fakeLeaderboardSweeper) RerankAll(context.Context) error {
	f.calls++
	return f.err
}

func TestNewSweeperRequiresSchedule(t *testing.T) {
	if _, err := NewSweeper(SweeperConfig{}); !errors.Is(err, errMissingSchedule) {
		t.Fatalf("expected schedule error, got %v", err)
	}
}

func TestRunOnceExecutesBothSweeps(t *testing.T) {
	links := &fakeLinkSweeper{swept: 2}
	board := &fakeLeaderboardSweeper{}
	sweeper, err := NewSweeper(SweeperConfig{
		Schedule:    "*/15 * * * *",
		Links:       links,
		Leaderboard: board,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	sweeper.RunOnce(context.Background())
	if links.calls != 1 {
		t.Fatalf("expected one link sweep, got %d", links.calls)
	}
	if board.calls != 1 {
		t.Fatalf("expected one leaderboard sweep, got %d", board.calls)
	}
}

func TestRunOnceContinuesPastLinkFailure(t *testing.T) {
	links := &fakeLinkSweeper{err: errors.New("storage offline")}
	board := &fakeLeaderboardSweeper{}
	sweeper, err := NewSweeper(SweeperConfig{
		Schedule:    "*/15 * * * *",
		Links:       links,
		Leaderboard: board,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	sweeper.RunOnce(context.Background())
	if board.calls != 1 {
		t.Fatal("leaderboard sweep must run even when the link sweep fails")
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	sweeper, err := NewSweeper(SweeperConfig{Schedule: "not a cron spec"})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if err := sweeper.Start(); err == nil {
		t.Fatal("expected cron parse error")
	}
}

func TestStartAndStop(t *testing.T) {
	sweeper, err := NewSweeper(SweeperConfig{Schedule: "*/15 * * * *"})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if err := sweeper.Start(); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	sweeper.Stop()
}
