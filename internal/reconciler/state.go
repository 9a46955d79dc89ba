package reconciler

import (
	"wizard_client/internal/domain"
)

// NoRound is LastKnownRound before the first snapshot
const NoRound = -1

// SessionState is the per-round client state derived from server pushes
type SessionState struct {
	LastKnownRound         int     `json:"lastKnownRound"`
	HasSubmittedPrediction bool    `json:"hasSubmittedPrediction"`
	ActiveError            *string `json:"activeError"`
	ShowRoundSummary       bool    `json:"showRoundSummary"`

	GameID     string `json:"gameId"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

func initialState() SessionState {
	return SessionState{LastKnownRound: NoRound}
}

// Event is what the reconciler consumes. The set is closed: SnapshotEvent,
// ScoreboardEvent and ErrorEvent.
type Event interface {
	event()
}

type SnapshotEvent struct {
	Snapshot domain.GameSnapshot
}

type ScoreboardEvent struct {
	Entries []domain.ScoreboardEntry
}

type ErrorEvent struct {
	Message string
}

func (SnapshotEvent) event()   {}
func (ScoreboardEvent) event() {}
func (ErrorEvent) event()      {}

// View is an immutable copy of everything the reconciler holds.
// Nothing in it is shared with the reconciler.
type View struct {
	SessionState
	Snapshot       *domain.GameSnapshot     `json:"snapshot"`
	Scoreboard     []domain.ScoreboardEntry `json:"scoreboard"`
	Cheats         map[string]bool          `json:"cheats"`
	HasGameStarted bool                     `json:"hasGameStarted"`
}

// ErrorText is ActiveError or "" when there is none
func (v View) ErrorText() string {
	if v.ActiveError == nil {
		return ""
	}
	return *v.ActiveError
}

func cloneScoreboard(in []domain.ScoreboardEntry) []domain.ScoreboardEntry {
	if in == nil {
		return nil
	}
	out := make([]domain.ScoreboardEntry, len(in))
	for i, e := range in {
		out[i] = domain.ScoreboardEntry(domain.Player(e).Clone())
	}
	return out
}
