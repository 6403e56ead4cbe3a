package events

import (
	"context"

	"go.uber.org/zap"
)

// The realtime push transport lives outside this service. The core only
// ever fires events at a Sink and never waits on delivery; a production
// deployment plugs the transport in behind this interface.

// PhraseTargeted notifies a player that a new phrase was earmarked for them.
type PhraseTargeted struct {
	PlayerID string
	PhraseID string
	Source   string
}

// PhraseCompleted notifies listeners that a completion was recorded.
type PhraseCompleted struct {
	PlayerID   string
	PhraseID   string
	FinalScore int
}

// LinkConsumed notifies the link owner that a contribution arrived.
type LinkConsumed struct {
	OwnerPlayerID   string
	PhraseID        string
	ContributorName string
	RemainingUses   int
}

// Sink receives fire-and-forget game events.
type Sink interface {
	PhraseTargeted(ctx context.Context, event PhraseTargeted)
	PhraseCompleted(ctx context.Context, event PhraseCompleted)
	LinkConsumed(ctx context.Context, event LinkConsumed)
}

// LogSink writes events to the structured log. It stands in for the
// realtime transport in tests and single-node deployments.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink constructs a LogSink; a nil logger falls back to a no-op.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) PhraseTargeted(_ context.Context, event PhraseTargeted) {
	s.logger.Info("event phrase_targeted",
		zap.String("player_id", event.PlayerID),
		zap.String("phrase_id", event.PhraseID),
		zap.String("source", event.Source))
}

func (s *LogSink) PhraseCompleted(_ context.Context, event PhraseCompleted) {
	s.logger.Info("event phrase_completed",
		zap.String("player_id", event.PlayerID),
		zap.String("phrase_id", event.PhraseID),
		zap.Int("final_score", event.FinalScore))
}

func (s *LogSink) LinkConsumed(_ context.Context, event LinkConsumed) {
	s.logger.Info("event link_consumed",
		zap.String("owner_player_id", event.OwnerPlayerID),
		zap.String("phrase_id", event.PhraseID),
		zap.String("contributor", event.ContributorName),
		zap.Int("remaining_uses", event.RemainingUses))
}
