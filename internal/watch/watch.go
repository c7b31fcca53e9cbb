// Package watch runs the clipboard side of snip detection.
//
// The watcher polls the clipboard, fingerprints whatever image-like content
// is there, and consults the acceptance policy exactly once per genuinely
// new image. Whether the policy accepts or rejects, the fingerprint is
// remembered so the same image is never offered twice — only clearing the
// clipboard (or copying something else) re-arms detection for it.
package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.klb.dev/snaplens/internal/clip"
	"go.klb.dev/snaplens/internal/fingerprint"
	"go.klb.dev/snaplens/internal/policy"
)

// DefaultInterval is the clipboard poll cadence.
const DefaultInterval = 300 * time.Millisecond

// Dispatch receives accepted content. It must not block: the engine hands
// the work to a bounded pool and returns.
type Dispatch func(c clip.Content, fp fingerprint.Value, v policy.Verdict)

// ModeSource mirrors policy.ModeSource. The watcher checks it before
// touching the clipboard so Paused means genuinely idle, not
// read-and-discard.
type ModeSource interface {
	Effective() policy.Mode
}

// Counters are cumulative totals for status output.
type Counters struct {
	Scans    int64 `json:"scans"`
	Changes  int64 `json:"changes"`
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
}

// Config configures a Watcher. Source, Modes, Policy, and Dispatch are
// required.
type Config struct {
	Source   clip.Source
	Modes    ModeSource
	Policy   *policy.Policy
	Interval time.Duration // 0 = DefaultInterval
	Dispatch Dispatch
}

// Watcher owns the clipboard fingerprint state.
type Watcher struct {
	cfg Config

	mu       sync.Mutex // guards last, tracking, counters
	last     fingerprint.Value
	tracking bool
	counters Counters
}

// New builds a Watcher from cfg.
func New(cfg Config) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Watcher{cfg: cfg}
}

// Run polls the clipboard until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	slog.Info("clipboard watcher started",
		"source", w.cfg.Source.Name(),
		"interval", w.cfg.Interval,
	)
	t := time.NewTicker(w.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.scan(time.Now())
		}
	}
}

// Counters returns a snapshot of the cumulative totals.
func (w *Watcher) Counters() Counters {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.counters
}

// scan performs one poll iteration. The lock is never held across the
// clipboard read, the policy evaluation, or the dispatch.
func (w *Watcher) scan(now time.Time) {
	if w.cfg.Modes.Effective() == policy.ModePaused {
		return
	}

	w.mu.Lock()
	w.counters.Scans++
	w.mu.Unlock()

	content, err := w.cfg.Source.Snapshot()
	if err != nil {
		// Transient read failure: same treatment as an empty clipboard.
		slog.Debug("clipboard read failed", "err", err)
		content = clip.None()
	}

	if content.IsNone() {
		w.mu.Lock()
		if w.tracking {
			w.tracking = false
			slog.Debug("clipboard cleared, forgetting last image")
		}
		w.mu.Unlock()
		return
	}

	fp, err := fingerprintOf(content)
	if err != nil {
		// Unreadable file path etc. — treat as no image present.
		slog.Debug("fingerprint failed", "origin", content.Origin(), "err", err)
		w.mu.Lock()
		w.tracking = false
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	seen := w.tracking && w.last == fp
	w.mu.Unlock()
	if seen {
		return
	}

	v := w.cfg.Policy.Evaluate(now)

	// Remember the image whether or not it was accepted: a rejected image
	// must not be re-offered every tick.
	w.mu.Lock()
	w.last, w.tracking = fp, true
	w.counters.Changes++
	if v.Accept {
		w.counters.Accepted++
	} else {
		w.counters.Rejected++
	}
	w.mu.Unlock()

	if v.Accept {
		slog.Info("clipboard image accepted",
			"fingerprint", fp.String(),
			"origin", content.Origin(),
			"reason", v.Reason,
		)
		w.cfg.Dispatch(content, fp, v)
		return
	}
	slog.Debug("clipboard image rejected",
		"fingerprint", fp.String(),
		"origin", content.Origin(),
		"reason", v.Reason,
	)
}

func fingerprintOf(c clip.Content) (fingerprint.Value, error) {
	if c.Kind == clip.KindFile {
		return fingerprint.File(c.Path)
	}
	return fingerprint.Bytes(c.Data), nil
}
