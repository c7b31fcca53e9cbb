// Package procwatch tracks when an OS screenshot tool was last seen running.
//
// A watcher polls the process table and stamps a shared Sightings record on
// every tick in which a known capture-tool name is present. The acceptance
// policy reads the stamp to decide whether a clipboard image arrived close
// enough to capture-tool activity to count as user-initiated.
package procwatch

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// DefaultInterval is the process poll cadence.
const DefaultInterval = 750 * time.Millisecond

// Sightings records the most recent moment a capture tool was observed.
// Written by the watcher goroutine, read by the policy; the lock covers
// field access only.
type Sightings struct {
	mu   sync.Mutex
	at   time.Time
	seen bool
}

// Stamp records a sighting at t.
func (s *Sightings) Stamp(t time.Time) {
	s.mu.Lock()
	s.at, s.seen = t, true
	s.mu.Unlock()
}

// Last returns the most recent sighting, if any.
func (s *Sightings) Last() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.at, s.seen
}

// Lister enumerates the names of running processes. The watcher accepts the
// interface so tests can feed it synthetic process tables.
type Lister interface {
	ProcessNames(ctx context.Context) ([]string, error)
}

// SystemLister reads the real process table.
type SystemLister struct{}

// ProcessNames returns the name of every running process. Individual
// processes that vanish between listing and inspection are skipped.
func (SystemLister) ProcessNames(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Config configures a Watcher. Zero fields take defaults; Sightings is
// required.
type Config struct {
	Lister    Lister        // nil = SystemLister
	Names     []string      // nil = DefaultNames()
	Interval  time.Duration // 0 = DefaultInterval
	Sightings *Sightings
}

// Watcher polls the process table for capture tools.
type Watcher struct {
	lister    Lister
	names     map[string]struct{}
	interval  time.Duration
	sightings *Sightings
	active    bool // previous scan saw a capture tool; watcher goroutine only
}

// New builds a Watcher from cfg.
func New(cfg Config) *Watcher {
	if cfg.Lister == nil {
		cfg.Lister = SystemLister{}
	}
	if len(cfg.Names) == 0 {
		cfg.Names = DefaultNames()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	names := make(map[string]struct{}, len(cfg.Names))
	for _, n := range cfg.Names {
		names[strings.ToLower(n)] = struct{}{}
	}
	return &Watcher{
		lister:    cfg.Lister,
		names:     names,
		interval:  cfg.Interval,
		sightings: cfg.Sightings,
	}
}

// Run polls the process table until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	slog.Info("process watcher started",
		"interval", w.interval,
		"names", len(w.names),
	)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.scan(ctx, time.Now())
		}
	}
}

// scan performs one poll iteration. A listing failure is transient: log at
// debug and wait for the next tick.
func (w *Watcher) scan(ctx context.Context, now time.Time) {
	names, err := w.lister.ProcessNames(ctx)
	if err != nil {
		slog.Debug("process scan failed", "err", err)
		return
	}

	hit := ""
	for _, n := range names {
		if _, ok := w.names[strings.ToLower(n)]; ok {
			hit = n
			break
		}
	}
	if hit == "" {
		if w.active {
			w.active = false
			slog.Debug("capture tool gone")
		}
		return
	}

	w.sightings.Stamp(now)
	if !w.active {
		w.active = true
		slog.Debug("capture tool running", "name", hit)
	}
}

// DefaultNames returns the capture-tool process names for this OS.
func DefaultNames() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"SnippingTool.exe", "ScreenClippingHost.exe", "ScreenSketch.exe"}
	case "darwin":
		return []string{"screencaptureui", "Screenshot"}
	default:
		return []string{"gnome-screenshot", "flameshot", "spectacle", "ksnip", "grim"}
	}
}
