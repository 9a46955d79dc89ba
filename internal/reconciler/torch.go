package reconciler

import (
	"log/slog"
	"sync"
	"time"

	"wizard_client/internal/logger"
)

// CheatFlashDuration is how long the torch stays on when cheating is armed
const CheatFlashDuration = 5 * time.Second

// Torch turns a light on for d and then off again
type Torch interface {
	Flash(d time.Duration)
}

// LogTorch is a Torch without hardware: it logs on and off.
// A new Flash replaces a running one.
type LogTorch struct {
	log *slog.Logger

	mu    sync.Mutex
	on    bool
	gen   uint64
	timer *time.Timer
}

func NewLogTorch(log *slog.Logger) *LogTorch {
	if log == nil {
		log = logger.Component("torch")
	}
	return &LogTorch{log: log}
}

func (t *LogTorch) Flash(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.on = true
	t.log.Info("LogTorch.Flash: on", "duration", d)
	t.timer = time.AfterFunc(d, func() { t.off(gen) })
}

func (t *LogTorch) off(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen || !t.on {
		return
	}
	t.on = false
	t.log.Info("LogTorch: off")
}

func (t *LogTorch) On() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.on
}

// Stop cancels a running flash and turns the torch off
func (t *LogTorch) Stop() {
	t.mu.Lock()
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()
	t.off(gen)
}
