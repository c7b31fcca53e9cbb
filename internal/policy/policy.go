// Package policy decides whether a new clipboard image was user-initiated.
//
// The decision core is a pure function over three inputs (the activation
// mode, whether an explicit trigger token is waiting, and whether a capture
// tool ran recently enough), so the full rule table is exercised directly in
// tests. Evaluate is the thin wrapper that gathers those inputs from the
// live stores, including the one permitted side effect: atomically consuming
// the trigger token.
package policy

import (
	"time"

	"go.klb.dev/snaplens/internal/trigger"
)

// DefaultWindow is how long after a capture-tool sighting a new clipboard
// image still counts as that tool's output.
const DefaultWindow = 4 * time.Second

// Reason explains a verdict in logs, history rows, and status output.
type Reason string

const (
	ReasonPaused     Reason = "paused"
	ReasonToken      Reason = "token"
	ReasonCorrelated Reason = "process-correlated"
	ReasonNoToken    Reason = "no-token"
	ReasonStale      Reason = "no-recent-capture-tool"
)

// Verdict is the outcome of evaluating one new clipboard image.
type Verdict struct {
	Accept bool
	Reason Reason
	Token  string // id of the consumed token, when one was waiting
}

// ModeSource yields the current effective mode.
type ModeSource interface {
	Effective() Mode
}

// TokenSource atomically consumes the armed token, if any.
type TokenSource interface {
	Consume() (trigger.Token, bool)
}

// SightingSource yields the last capture-tool sighting.
type SightingSource interface {
	Last() (time.Time, bool)
}

// Policy evaluates new clipboard images. It performs no I/O and holds no
// locks of its own; the sources it reads are internally synchronised.
type Policy struct {
	Window    time.Duration // 0 = DefaultWindow
	Modes     ModeSource
	Tokens    TokenSource
	Sightings SightingSource
}

// Evaluate decides whether the new image present at now was user-initiated.
//
// When the mode is Paused nothing is read and nothing is consumed: pausing
// must not eat a pending snip token. In any other mode a waiting token is
// consumed before the rules run, so a token authorises exactly one event no
// matter which rule ends up accepting it.
func (p *Policy) Evaluate(now time.Time) Verdict {
	mode := p.Modes.Effective()
	if mode == ModePaused {
		return Verdict{Reason: ReasonPaused}
	}

	tok, tokenPresent := p.Tokens.Consume()

	correlated := false
	if last, ok := p.Sightings.Last(); ok {
		// Inclusive upper bound; a negative elapsed means the sighting
		// is from a skewed future and proves nothing.
		if d := now.Sub(last); d >= 0 && d <= p.window() {
			correlated = true
		}
	}

	v := decide(mode, tokenPresent, correlated)
	if tokenPresent {
		v.Token = tok.ID
	}
	return v
}

func (p *Policy) window() time.Duration {
	if p.Window <= 0 {
		return DefaultWindow
	}
	return p.Window
}

// decide is the pure core: no clocks, no stores, just the rule table.
// mode is never ModePaused here; Evaluate short-circuits that first.
func decide(mode Mode, tokenPresent, correlated bool) Verdict {
	switch {
	case tokenPresent:
		// An explicit user action wins regardless of timing.
		return Verdict{Accept: true, Reason: ReasonToken}
	case mode == ModeTrayOnly:
		return Verdict{Reason: ReasonNoToken}
	case correlated:
		return Verdict{Accept: true, Reason: ReasonCorrelated}
	default:
		return Verdict{Reason: ReasonStale}
	}
}
