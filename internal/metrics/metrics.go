package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	FramesReceived  *prometheus.CounterVec
	FramesMalformed *prometheus.CounterVec
	FramesUnrouted  prometheus.Counter
	CommandsSent    *prometheus.CounterVec
	ConnectAttempts *prometheus.CounterVec
	RLRequests      *prometheus.CounterVec
	RLBlocked       *prometheus.CounterVec
}

// New creates the collectors and registers them on reg (nil = don't register)
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wizard_frames_received_total",
				Help: "Frames received per subscription topic kind",
			},
			[]string{"topic"},
		),
		FramesMalformed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wizard_frames_malformed_total",
				Help: "Frames skipped because they could not be decoded",
			},
			[]string{"topic"},
		),
		FramesUnrouted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wizard_frames_unrouted_total",
				Help: "MESSAGE frames for a subscription id that is no longer active",
			},
		),
		CommandsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wizard_commands_sent_total",
				Help: "Outbound commands by destination and result",
			},
			[]string{"destination", "result"},
		),
		ConnectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wizard_connect_attempts_total",
				Help: "Connection attempts by result",
			},
			[]string{"result"},
		),
		RLRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limiter_requests_total",
				Help: "Total requests seen by the rate limiter",
			},
			[]string{"endpoint"},
		),
		RLBlocked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limiter_blocked_total",
				Help: "Total requests blocked by the rate limiter",
			},
			[]string{"endpoint"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.FramesReceived,
			m.FramesMalformed,
			m.FramesUnrouted,
			m.CommandsSent,
			m.ConnectAttempts,
			m.RLRequests,
			m.RLBlocked,
		)
	}
	return m
}

// Discard returns unregistered collectors, handy as a default
func Discard() *Metrics {
	return New(nil)
}
