package domain

import (
	"fmt"
	"strings"
)

const (
	CardTypeNumber = "NUMBER"
	CardTypeWizard = "WIZARD"
	CardTypeJester = "JESTER"

	ColorSpecial = "SPECIAL"
)

// Card descriptor as sent in handCards / trumpCard
type Card struct {
	Color string `json:"color"`
	Value string `json:"value"`
	Type  string `json:"type"`
}

// Token is the string the server expects in a play command:
// WIZARD, JESTER or COLOR_VALUE.
func (c Card) Token() string {
	switch strings.ToUpper(c.Type) {
	case CardTypeWizard:
		return CardTypeWizard
	case CardTypeJester:
		return CardTypeJester
	}
	return strings.ToUpper(c.Color) + "_" + c.Value
}

// ParseCardToken is the inverse of Card.Token
func ParseCardToken(token string) (Card, error) {
	t := strings.TrimSpace(token)
	switch {
	case strings.EqualFold(t, CardTypeWizard):
		return Card{Color: ColorSpecial, Value: "0", Type: CardTypeWizard}, nil
	case strings.EqualFold(t, CardTypeJester):
		return Card{Color: ColorSpecial, Value: "0", Type: CardTypeJester}, nil
	}

	color, value, ok := strings.Cut(t, "_")
	if !ok || color == "" || value == "" {
		return Card{}, fmt.Errorf("invalid card token %q", token)
	}
	return Card{Color: strings.ToUpper(color), Value: value, Type: CardTypeNumber}, nil
}
