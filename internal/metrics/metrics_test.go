package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FramesReceived.WithLabelValues("game").Inc()
	m.FramesMalformed.WithLabelValues("game").Add(2)
	m.CommandsSent.WithLabelValues("/app/game/join", "ok").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesReceived.WithLabelValues("game")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesMalformed.WithLabelValues("game")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["wizard_frames_received_total"])
	assert.True(t, names["wizard_commands_sent_total"])
}

func TestDiscardDoesNotRegister(t *testing.T) {
	// registering twice on the default registry would panic
	Discard()
	Discard()
}
