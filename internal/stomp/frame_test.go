package stomp

import (
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeSend(t *testing.T) {
	f := frame.New(frame.SEND, frame.Destination, "/app/game/join", frame.ContentType, "application/json")
	f.Body = []byte(`{"gameId":"g1","playerId":"p1"}`)

	raw, err := Encode(f)
	require.NoError(t, err)
	assert.Equal(t, byte(0), raw[len(raw)-1])

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, frame.SEND, got.Command)
	assert.Equal(t, "/app/game/join", got.Header.Get(frame.Destination))
	assert.Equal(t, "31", got.Header.Get(frame.ContentLength))
	assert.Equal(t, f.Body, got.Body)
}

func TestEncodeWithoutBodyHasNoContentLength(t *testing.T) {
	raw, err := Encode(frame.New(frame.DISCONNECT))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), frame.ContentLength)
}

func TestDecodeMessageWithoutContentLength(t *testing.T) {
	raw := []byte("MESSAGE\nsubscription:abc\nmessage-id:1\ndestination:/topic/errors/p1\n\nZug nicht erlaubt\x00")

	f, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, frame.MESSAGE, f.Command)
	assert.Equal(t, "abc", f.Header.Get(frame.Subscription))
	assert.Equal(t, "Zug nicht erlaubt", string(f.Body))
}

func TestDecodeSkipsLeadingHeartbeats(t *testing.T) {
	raw := []byte("\n\nCONNECTED\nversion:1.2\nheart-beat:0,0\n\n\x00")

	f, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, frame.CONNECTED, f.Command)
	assert.Equal(t, "1.2", f.Header.Get(frame.Version))
	assert.Empty(t, f.Body)
}

func TestHeaderEscapingRoundTrip(t *testing.T) {
	f := frame.New(frame.MESSAGE, frame.Destination, "/topic/a:b", "note", "line1\nline2")
	raw, err := Encode(f)
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "/topic/a:b", got.Header.Get(frame.Destination))
	assert.Equal(t, "line1\nline2", got.Header.Get("note"))
}

func TestRepeatedHeaderFirstWins(t *testing.T) {
	f, err := Decode([]byte("MESSAGE\nfoo:1\nfoo:2\n\n\x00"))
	require.NoError(t, err)
	assert.Equal(t, "1", f.Header.Get("foo"))
}

func TestDecodeErrors(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"no terminator":  "SEND\ndestination:/x",
		"bad header":     "SEND\nnocolon\n\n\x00",
		"content-length": "SEND\ncontent-length:99\n\nshort\x00",
	}
	for name, raw := range cases {
		_, err := Decode([]byte(raw))
		assert.Error(t, err, name)
	}

	_, err := Decode([]byte("SEND\ndestination:/x"))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestIsHeartbeat(t *testing.T) {
	assert.True(t, IsHeartbeat([]byte("\n")))
	assert.True(t, IsHeartbeat([]byte("\r\n")))
	assert.False(t, IsHeartbeat([]byte("MESSAGE\n\n\x00")))
}

func TestHeartBeat(t *testing.T) {
	cx, cy := HeartBeat(frame.New(frame.CONNECTED, frame.HeartBeat, "10000,5000"))
	assert.Equal(t, 10*time.Second, cx)
	assert.Equal(t, 5*time.Second, cy)

	cx, cy = HeartBeat(frame.New(frame.CONNECTED))
	assert.Zero(t, cx)
	assert.Zero(t, cy)

	cx, cy = HeartBeat(frame.New(frame.CONNECTED, frame.HeartBeat, "soon"))
	assert.Zero(t, cx)
	assert.Zero(t, cy)
}
