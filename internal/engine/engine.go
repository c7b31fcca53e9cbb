// Package engine wires the detection pipeline into one runnable daemon
// core: process watcher, clipboard watcher, acceptance policy, delivery
// pool, capture history, and the shared settings file.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.klb.dev/snaplens/internal/clip"
	"go.klb.dev/snaplens/internal/deliver"
	"go.klb.dev/snaplens/internal/fingerprint"
	"go.klb.dev/snaplens/internal/history"
	"go.klb.dev/snaplens/internal/launch"
	"go.klb.dev/snaplens/internal/message"
	"go.klb.dev/snaplens/internal/policy"
	"go.klb.dev/snaplens/internal/procwatch"
	"go.klb.dev/snaplens/internal/settings"
	"go.klb.dev/snaplens/internal/tasks"
	"go.klb.dev/snaplens/internal/trigger"
	"go.klb.dev/snaplens/internal/watch"
)

// Defaults for the delivery pool.
const (
	DefaultWorkers    = 2
	DefaultQueueSize  = 8
	DefaultDrainGrace = 5 * time.Second
)

// Config assembles an Engine. Source, Modes, Tokens, and Pipeline are
// required; History and Desktop are optional.
type Config struct {
	Version  string
	Source   clip.Source
	Modes    *settings.Controller
	Tokens   *trigger.Store
	Pipeline *deliver.Pipeline
	Desktop  *launch.Desktop
	History  *history.Store

	ProcNames    []string
	ProcLister   procwatch.Lister // nil = real process table
	ProcInterval time.Duration
	ClipInterval time.Duration
	Window       time.Duration

	Workers    int
	QueueSize  int
	DrainGrace time.Duration

	SettingsPath string // empty disables persistence
}

// Engine owns the two watchers and the delivery pool.
type Engine struct {
	cfg       Config
	sightings *procwatch.Sightings
	procs     *procwatch.Watcher
	clips     *watch.Watcher
	pool      *tasks.Pool
	startedAt time.Time

	delivered atomic.Int64
	failed    atomic.Int64

	mu            sync.Mutex // guards lastURL, lastFileToken
	lastURL       string
	lastFileToken string
}

// New builds an Engine from cfg.
func New(cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.DrainGrace <= 0 {
		cfg.DrainGrace = DefaultDrainGrace
	}

	e := &Engine{
		cfg:       cfg,
		sightings: &procwatch.Sightings{},
		startedAt: time.Now(),
	}
	e.procs = procwatch.New(procwatch.Config{
		Lister:    cfg.ProcLister,
		Names:     cfg.ProcNames,
		Interval:  cfg.ProcInterval,
		Sightings: e.sightings,
	})
	e.clips = watch.New(watch.Config{
		Source: cfg.Source,
		Modes:  cfg.Modes,
		Policy: &policy.Policy{
			Window:    cfg.Window,
			Modes:     cfg.Modes,
			Tokens:    cfg.Tokens,
			Sightings: e.sightings,
		},
		Interval: cfg.ClipInterval,
		Dispatch: e.dispatch,
	})
	e.pool = tasks.New(cfg.Workers, cfg.QueueSize)
	return e
}

// Prime records the settings present at startup. The startup file's
// trigger token is treated as already seen: armed tokens never expire,
// but a token written before the daemon started must not fire.
func (e *Engine) Prime(f settings.File) {
	e.mu.Lock()
	e.lastFileToken = f.TriggerToken
	e.lastURL = f.LastURL
	e.mu.Unlock()
}

// Run blocks until ctx is cancelled, then drains in-flight deliveries.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.procs.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		e.clips.Run(ctx)
	}()
	wg.Wait()

	if !e.pool.Drain(e.cfg.DrainGrace) {
		slog.Warn("deliveries still in flight at shutdown", "grace", e.cfg.DrainGrace)
	}
}

// dispatch hands an accepted image to the pool. Runs on the clipboard
// watcher goroutine, so it must not block.
func (e *Engine) dispatch(c clip.Content, fp fingerprint.Value, v policy.Verdict) {
	if !e.pool.Submit(func() { e.deliverOne(c, fp, v) }) {
		e.failed.Add(1)
		slog.Warn("delivery queue full, dropping capture", "fingerprint", fp)
	}
}

func (e *Engine) deliverOne(c clip.Content, fp fingerprint.Value, v policy.Verdict) {
	ctx := context.Background()
	out := e.cfg.Pipeline.Deliver(ctx, c)

	rec := history.Entry{
		At:          time.Now(),
		Origin:      c.Origin(),
		Fingerprint: fp.String(),
		Reason:      string(v.Reason),
		URL:         out.URL,
		DurationMS:  out.Elapsed.Milliseconds(),
	}
	if out.OK {
		e.delivered.Add(1)
		e.mu.Lock()
		e.lastURL = out.URL
		e.mu.Unlock()
		slog.Info("capture delivered",
			"url", out.URL,
			"search", out.SearchURL,
			"reason", v.Reason,
			"elapsed", out.Elapsed,
		)
		e.persist(func(f *settings.File) { f.LastURL = out.URL })
	} else {
		e.failed.Add(1)
		rec.Error = out.Err.Error()
		slog.Error("capture delivery failed",
			"stage", out.Stage,
			"error", out.Err,
			"elapsed", out.Elapsed,
		)
	}
	if e.cfg.History != nil {
		if err := e.cfg.History.Record(ctx, &rec); err != nil {
			slog.Warn("recording capture failed", "error", err)
		}
	}
}

// Arm arms a one-shot trigger token and, when launchTool is set, starts
// the capture tool. Returns the token id.
func (e *Engine) Arm(launchTool bool) string {
	tok := e.cfg.Tokens.Arm("")
	slog.Info("trigger armed", "token", tok.ID, "launch", launchTool)
	if launchTool && e.cfg.Desktop != nil {
		if err := e.cfg.Desktop.StartCapture(context.Background()); err != nil {
			slog.Warn("starting capture tool failed", "error", err)
		}
	}
	return tok.ID
}

// SetMode changes the configured mode and persists it.
func (e *Engine) SetMode(m policy.Mode) {
	e.cfg.Modes.SetMode(m)
	e.persist(func(f *settings.File) { f.Mode = int(e.cfg.Modes.Mode()) })
	slog.Info("mode changed", "mode", e.cfg.Modes.Mode())
}

// SetPaused flips the pause flag and persists it.
func (e *Engine) SetPaused(p bool) {
	e.cfg.Modes.SetPaused(p)
	e.persist(func(f *settings.File) { f.Paused = p })
	if p {
		slog.Info("detection paused")
	} else {
		slog.Info("detection resumed")
	}
}

// ApplySettings folds a changed settings file into the running daemon.
// The trigger token arms only when it differs from the last token seen in
// the file, so tokens are one-shot even though the file keeps them.
func (e *Engine) ApplySettings(f settings.File) {
	e.cfg.Modes.SetMode(policy.Mode(f.Mode))
	e.cfg.Modes.SetPaused(f.Paused)

	e.mu.Lock()
	last := e.lastFileToken
	e.lastFileToken = f.TriggerToken
	e.mu.Unlock()

	if f.TriggerToken != "" && f.TriggerToken != last {
		e.cfg.Tokens.Arm(f.TriggerToken)
		slog.Info("trigger armed from settings file", "token", f.TriggerToken)
	}
}

// Status snapshots the daemon for STATUS responses.
func (e *Engine) Status() message.StatusInfo {
	c := e.clips.Counters()
	info := message.StatusInfo{
		Version:   e.cfg.Version,
		Mode:      e.cfg.Modes.Mode().String(),
		Paused:    e.cfg.Modes.Paused(),
		Armed:     e.cfg.Tokens.Armed(),
		Backend:   e.cfg.Source.Name(),
		StartedAt: e.startedAt,
		Scans:     c.Scans,
		Changes:   c.Changes,
		Accepted:  c.Accepted,
		Rejected:  c.Rejected,
		Delivered: e.delivered.Load(),
		Failed:    e.failed.Load(),
	}
	if at, ok := e.sightings.Last(); ok {
		info.LastSighting = &at
	}
	e.mu.Lock()
	info.LastURL = e.lastURL
	e.mu.Unlock()
	return info
}

// Recent returns up to limit history entries as wire records, newest
// first. Without a history store it returns nothing.
func (e *Engine) Recent(ctx context.Context, limit int) ([]message.HistoryEntry, error) {
	if e.cfg.History == nil {
		return nil, nil
	}
	rows, err := e.cfg.History.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]message.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, message.HistoryEntry{
			At:          r.At,
			Origin:      r.Origin,
			Fingerprint: r.Fingerprint,
			Reason:      r.Reason,
			URL:         r.URL,
			Error:       r.Error,
			DurationMS:  r.DurationMS,
		})
	}
	return out, nil
}

func (e *Engine) persist(mutate func(*settings.File)) {
	if e.cfg.SettingsPath == "" {
		return
	}
	if _, err := settings.Update(e.cfg.SettingsPath, mutate); err != nil {
		slog.Warn("persisting settings failed", "path", e.cfg.SettingsPath, "error", err)
	}
}
