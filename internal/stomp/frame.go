// Package stomp moves go-stomp frames over WebSocket, where every text
// message carries exactly one frame.
package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
)

// Subprotocols offered during the WebSocket upgrade
var Subprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

var ErrTruncated = errors.New("stomp: truncated frame")

// IsHeartbeat reports whether a raw message is an EOL-only heart-beat
func IsHeartbeat(data []byte) bool {
	return len(bytes.Trim(data, "\r\n")) == 0
}

// Encode renders f with its trailing NUL. Frames with a body always carry
// content-length.
func Encode(f *frame.Frame) ([]byte, error) {
	if f.Header == nil {
		f.Header = frame.NewHeader()
	}
	if len(f.Body) > 0 {
		f.Header.Set(frame.ContentLength, strconv.Itoa(len(f.Body)))
	}
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return nil, fmt.Errorf("stomp: encode %s: %w", f.Command, err)
	}
	return buf.Bytes(), nil
}

// Decode reads the frame in one message. EOLs in front of it (heart-beats
// glued to a frame) are skipped. Heart-beat-only messages are an error;
// check IsHeartbeat first.
func Decode(data []byte) (*frame.Frame, error) {
	r := frame.NewReader(bytes.NewReader(data))
	for {
		f, err := r.Read()
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil, ErrTruncated
		case err != nil:
			return nil, fmt.Errorf("stomp: decode: %w", err)
		case f != nil:
			return f, nil
		}
	}
}

// HeartBeat parses a heart-beat header into (can send, wants to receive).
// A missing or malformed header means no heart-beats.
func HeartBeat(f *frame.Frame) (time.Duration, time.Duration) {
	v, ok := f.Header.Contains(frame.HeartBeat)
	if !ok {
		return 0, 0
	}
	cx, cy, err := frame.ParseHeartBeat(v)
	if err != nil {
		return 0, 0
	}
	return cx, cy
}
