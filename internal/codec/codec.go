// Package codec converts between command/event records and the JSON text
// carried in STOMP frame bodies. It is stateless and never panics: every
// decode problem comes back as an error wrapping domain.ErrMalformedPayload.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"wizard_client/internal/domain"
)

// TopicKind tells DecodeEvent which record a frame carries
type TopicKind int

const (
	TopicGame TopicKind = iota
	TopicScoreboard
	TopicError
)

func (k TopicKind) String() string {
	switch k {
	case TopicGame:
		return "game"
	case TopicScoreboard:
		return "scoreboard"
	case TopicError:
		return "error"
	}
	return "unknown"
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// EncodeCommand serializes an outbound command to one line of JSON.
// Bare game-id commands become a quoted JSON string so the server's
// deserializer sees a string primitive.
func EncodeCommand(cmd domain.Command) (string, error) {
	switch c := cmd.(type) {
	case domain.GameIDCommand:
		if err := validate.Struct(c); err != nil {
			return "", fmt.Errorf("%w: %s: game id missing", domain.ErrPreconditionNotMet, c.Kind)
		}
		return marshal(c.GameID)
	case domain.JoinRequest, domain.PredictionRequest, domain.PlayCardRequest:
		if err := validate.Struct(c); err != nil {
			return "", classify(err)
		}
		return marshal(c)
	case nil:
		return "", fmt.Errorf("%w: nil command", domain.ErrPreconditionNotMet)
	default:
		return "", fmt.Errorf("codec: unsupported command %T", cmd)
	}
}

// classify splits validation failures: missing routing ids are a
// precondition, anything else is an invalid command
func classify(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidCommand, err)
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" && (fe.Field() == "GameID" || fe.Field() == "PlayerID") {
			return fmt.Errorf("%w: %s missing", domain.ErrPreconditionNotMet, fe.Field())
		}
	}
	fe := verrs[0]
	return fmt.Errorf("%w: %s fails %s", domain.ErrInvalidCommand, fe.Field(), fe.Tag())
}

func marshal(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// DecodeEvent dispatches on the topic kind. The concrete result is
// domain.GameSnapshot, []domain.ScoreboardEntry or string.
func DecodeEvent(kind TopicKind, text string) (any, error) {
	switch kind {
	case TopicGame:
		return DecodeGameSnapshot(text)
	case TopicScoreboard:
		return DecodeScoreboard(text)
	case TopicError:
		return DecodeError(text)
	}
	return nil, fmt.Errorf("%w: unknown topic kind %d", domain.ErrMalformedPayload, kind)
}

// playerKeys must be present on every player row. Their zero values
// (score 0, ready false, empty name) are legal, so validate tags can't
// tell a missing key from a real one.
var playerKeys = []string{"playerId", "playerName", "score", "ready"}

func requireKeys(raw json.RawMessage, keys []string) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	for _, k := range keys {
		if _, ok := fields[k]; !ok {
			return fmt.Errorf("missing %q", k)
		}
	}
	return nil
}

// DecodeGameSnapshot decodes a /topic/game/{playerId} frame.
// Unknown fields are ignored, missing required fields are an error.
func DecodeGameSnapshot(text string) (domain.GameSnapshot, error) {
	var g domain.GameSnapshot
	if err := json.Unmarshal([]byte(text), &g); err != nil {
		return domain.GameSnapshot{}, malformed("game snapshot", err)
	}
	if err := validate.Struct(&g); err != nil {
		return domain.GameSnapshot{}, malformed("game snapshot", err)
	}

	var rows struct {
		Players []json.RawMessage `json:"players"`
	}
	if err := json.Unmarshal([]byte(text), &rows); err != nil {
		return domain.GameSnapshot{}, malformed("game snapshot", err)
	}
	for i, p := range rows.Players {
		if err := requireKeys(p, playerKeys); err != nil {
			return domain.GameSnapshot{}, malformed(fmt.Sprintf("game snapshot players[%d]", i), err)
		}
	}
	return g, nil
}

// DecodeScoreboard decodes a /topic/game/{gameId}/scoreboard frame (JSON array)
func DecodeScoreboard(text string) ([]domain.ScoreboardEntry, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal([]byte(text), &rows); err != nil {
		return nil, malformed("scoreboard", err)
	}
	if rows == nil {
		return nil, malformed("scoreboard", fmt.Errorf("null array"))
	}

	entries := make([]domain.ScoreboardEntry, len(rows))
	for i, row := range rows {
		if err := json.Unmarshal(row, &entries[i]); err != nil {
			return nil, malformed(fmt.Sprintf("scoreboard[%d]", i), err)
		}
		if err := requireKeys(row, playerKeys); err != nil {
			return nil, malformed(fmt.Sprintf("scoreboard[%d]", i), err)
		}
		if err := validate.Struct(&entries[i]); err != nil {
			return nil, malformed(fmt.Sprintf("scoreboard[%d]", i), err)
		}
	}
	return entries, nil
}

// DecodeError decodes a /topic/errors/{playerId} frame. The body is plain
// text; a JSON string literal is unquoted for servers that serialize it.
func DecodeError(text string) (string, error) {
	msg := strings.TrimSpace(text)
	if strings.HasPrefix(msg, `"`) {
		var s string
		if err := json.Unmarshal([]byte(msg), &s); err == nil {
			msg = strings.TrimSpace(s)
		}
	}
	if msg == "" {
		return "", malformed("error", fmt.Errorf("empty body"))
	}
	return msg, nil
}

// DecodeJoinRequest reads back what EncodeCommand produced for a join
func DecodeJoinRequest(text string) (domain.JoinRequest, error) {
	var r domain.JoinRequest
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return domain.JoinRequest{}, malformed("join request", err)
	}
	if err := validate.Struct(&r); err != nil {
		return domain.JoinRequest{}, malformed("join request", err)
	}
	return r, nil
}

func malformed(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrMalformedPayload, what, err)
}
