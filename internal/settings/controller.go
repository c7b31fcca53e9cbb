package settings

import (
	"log/slog"
	"sync"

	"go.klb.dev/snaplens/internal/policy"
)

// Controller is the daemon's live mode switch. The pause flag layers over
// the configured mode, so resuming restores whatever mode was set before
// the pause.
type Controller struct {
	mu     sync.RWMutex
	mode   policy.Mode
	paused bool
}

// NewController seeds the switch from persisted settings.
func NewController(mode policy.Mode, paused bool) *Controller {
	return &Controller{mode: normalize(mode), paused: paused}
}

// Effective is the mode detection should act on right now.
func (c *Controller) Effective() policy.Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.paused {
		return policy.ModePaused
	}
	return c.mode
}

// Mode returns the configured mode, ignoring the pause flag.
func (c *Controller) Mode() policy.Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// SetMode changes the configured mode. Invalid values are coerced to
// always-on, the same treatment a corrupt settings file gets.
func (c *Controller) SetMode(m policy.Mode) {
	m = normalize(m)
	c.mu.Lock()
	c.mode = m
	c.mu.Unlock()
}

func (c *Controller) Paused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused
}

func (c *Controller) SetPaused(p bool) {
	c.mu.Lock()
	c.paused = p
	c.mu.Unlock()
}

func normalize(m policy.Mode) policy.Mode {
	if m.Valid() {
		return m
	}
	slog.Warn("invalid mode, falling back to always-on", "mode", int(m))
	return policy.ModeAlwaysOn
}
