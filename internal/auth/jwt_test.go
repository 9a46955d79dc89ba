package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerRoundTrip(t *testing.T) {
	s, err := NewSigner("test-secret", time.Hour)
	require.NoError(t, err)

	tok, err := s.Generate("player-abc")
	require.NoError(t, err)

	sub, err := s.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "player-abc", sub)
}

func TestSignerRejectsForeignToken(t *testing.T) {
	a, _ := NewSigner("secret-a", 0)
	b, _ := NewSigner("secret-b", 0)

	tok, err := a.Generate("p1")
	require.NoError(t, err)

	_, err = b.Parse(tok)
	assert.Error(t, err)

	_, err = a.Parse(tok + "x")
	assert.Error(t, err)
}

func TestSignerRejectsExpiredToken(t *testing.T) {
	s, _ := NewSigner("secret", time.Nanosecond)
	s.ttl = -time.Minute

	tok, err := s.Generate("p1")
	require.NoError(t, err)

	_, err = s.Parse(tok)
	assert.Error(t, err)
}

func TestNewSignerNeedsSecret(t *testing.T) {
	_, err := NewSigner("", time.Hour)
	assert.Error(t, err)
}
