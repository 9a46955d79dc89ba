package domain

// Outbound destinations
const (
	DestJoin          = "/app/game/join"
	DestPredict       = "/app/game/predict"
	DestPlay          = "/app/game/play"
	DestStart         = "/app/game/start"
	DestProceed       = "/app/game/proceedToNextRound"
	DestForceEnd      = "/app/game/forceEnd"
	DestReturnToLobby = "/app/game/returnToLobby"
)

// Inbound topics
func GameTopic(playerID string) string { return "/topic/game/" + playerID }
func ScoreboardTopic(gameID string) string { return "/topic/game/" + gameID + "/scoreboard" }
func ErrorTopic(playerID string) string { return "/topic/errors/" + playerID }

// Command is any outbound record the codec can encode
type Command interface {
	Destination() string
}

// JoinRequest - /app/game/join
type JoinRequest struct {
	GameID     string `json:"gameId" validate:"required"`
	PlayerID   string `json:"playerId" validate:"required"`
	PlayerName string `json:"playerName,omitempty"`
	Card       string `json:"card,omitempty"`
	Action     string `json:"action,omitempty"`
}

func (JoinRequest) Destination() string { return DestJoin }

// PredictionRequest - /app/game/predict
type PredictionRequest struct {
	GameID     string `json:"gameId" validate:"required"`
	PlayerID   string `json:"playerId" validate:"required"`
	Prediction int    `json:"prediction" validate:"min=0"`
}

func (PredictionRequest) Destination() string { return DestPredict }

// PlayCardRequest - /app/game/play
type PlayCardRequest struct {
	GameID   string `json:"gameId" validate:"required"`
	PlayerID string `json:"playerId" validate:"required"`
	Card     string `json:"card" validate:"required"`
	Cheating bool   `json:"cheating,omitempty"`
}

func (PlayCardRequest) Destination() string { return DestPlay }

// GameIDKind selects which bare-game-id command is meant
type GameIDKind int

const (
	KindStartGame GameIDKind = iota
	KindProceedToNextRound
	KindForceEndGame
	KindReturnToLobby
)

func (k GameIDKind) String() string {
	switch k {
	case KindStartGame:
		return "start"
	case KindProceedToNextRound:
		return "proceed"
	case KindForceEndGame:
		return "force-end"
	case KindReturnToLobby:
		return "return-to-lobby"
	}
	return "unknown"
}

// GameIDCommand is sent as a quoted JSON string, not an object
type GameIDCommand struct {
	Kind   GameIDKind
	GameID string `validate:"required"`
}

func (c GameIDCommand) Destination() string {
	switch c.Kind {
	case KindProceedToNextRound:
		return DestProceed
	case KindForceEndGame:
		return DestForceEnd
	case KindReturnToLobby:
		return DestReturnToLobby
	default:
		return DestStart
	}
}
