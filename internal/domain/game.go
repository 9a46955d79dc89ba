package domain

// GameStatus is the server-side phase of a game
type GameStatus string

const (
	StatusLobby           GameStatus = "LOBBY"
	StatusPrediction      GameStatus = "PREDICTION"
	StatusPlaying         GameStatus = "PLAYING"
	StatusRoundEndSummary GameStatus = "ROUND_END_SUMMARY"
	StatusEnded           GameStatus = "ENDED"
)

func (s GameStatus) Valid() bool {
	switch s {
	case StatusLobby, StatusPrediction, StatusPlaying, StatusRoundEndSummary, StatusEnded:
		return true
	}
	return false
}

// Player as pushed inside a GameSnapshot. The codec also insists that
// playerName, score and ready are present, even when zero.
type Player struct {
	PlayerID    string `json:"playerId" validate:"required"`
	PlayerName  string `json:"playerName"`
	Score       int    `json:"score"`
	Ready       bool   `json:"ready"`
	TricksWon   int    `json:"tricksWon"`
	Prediction  *int   `json:"prediction"`
	RoundScores []int  `json:"roundScores,omitempty"`
}

// ScoreboardEntry is the standalone scoreboard row. Same wire shape as Player,
// but it arrives on its own topic and is not kept in step with the snapshot.
type ScoreboardEntry Player

// GameSnapshot is the full game state pushed to one player.
// It is replaced wholesale on every update, never patched.
type GameSnapshot struct {
	GameID                    string     `json:"gameId" validate:"required"`
	Status                    GameStatus `json:"status" validate:"required,oneof=LOBBY PREDICTION PLAYING ROUND_END_SUMMARY ENDED"`
	CurrentPlayerID           *string    `json:"currentPlayerId"`
	Players                   []Player   `json:"players" validate:"required,dive"`
	HandCards                 []Card     `json:"handCards" validate:"required"`
	LastPlayedCard            *string    `json:"lastPlayedCard"`
	LastTrickWinnerID         *string    `json:"lastTrickWinnerId"`
	TrumpCard                 *Card      `json:"trumpCard"`
	CurrentRound              int        `json:"currentRound"`
	CurrentPredictionPlayerID *string    `json:"currentPredictionPlayerId"`
}

// Clone returns a deep copy so readers never share slices with the writer
func (g GameSnapshot) Clone() GameSnapshot {
	out := g
	out.CurrentPlayerID = cloneString(g.CurrentPlayerID)
	out.LastPlayedCard = cloneString(g.LastPlayedCard)
	out.LastTrickWinnerID = cloneString(g.LastTrickWinnerID)
	out.CurrentPredictionPlayerID = cloneString(g.CurrentPredictionPlayerID)
	if g.TrumpCard != nil {
		c := *g.TrumpCard
		out.TrumpCard = &c
	}
	if g.Players != nil {
		out.Players = make([]Player, len(g.Players))
		for i, p := range g.Players {
			out.Players[i] = p.Clone()
		}
	}
	if g.HandCards != nil {
		out.HandCards = append([]Card(nil), g.HandCards...)
	}
	return out
}

// FindPlayer returns the player with the given id, if present
func (g GameSnapshot) FindPlayer(playerID string) (Player, bool) {
	for _, p := range g.Players {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return Player{}, false
}

func (p Player) Clone() Player {
	out := p
	if p.Prediction != nil {
		v := *p.Prediction
		out.Prediction = &v
	}
	if p.RoundScores != nil {
		out.RoundScores = append([]int(nil), p.RoundScores...)
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
