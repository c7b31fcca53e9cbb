package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.klb.dev/snaplens/internal/clip"
	"go.klb.dev/snaplens/internal/fingerprint"
	"go.klb.dev/snaplens/internal/policy"
	"go.klb.dev/snaplens/internal/procwatch"
	"go.klb.dev/snaplens/internal/trigger"
)

type fakeSource struct {
	mu    sync.Mutex
	c     clip.Content
	err   error
	reads int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Snapshot() (clip.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.c, f.err
}

func (f *fakeSource) Close() {}

func (f *fakeSource) set(c clip.Content, err error) {
	f.mu.Lock()
	f.c, f.err = c, err
	f.mu.Unlock()
}

func (f *fakeSource) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

type settableMode struct {
	mu sync.Mutex
	m  policy.Mode
}

func (s *settableMode) Effective() policy.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m
}

func (s *settableMode) set(m policy.Mode) {
	s.mu.Lock()
	s.m = m
	s.mu.Unlock()
}

type recorded struct {
	c  clip.Content
	fp fingerprint.Value
	v  policy.Verdict
}

type recorder struct {
	mu  sync.Mutex
	got []recorded
}

func (r *recorder) dispatch(c clip.Content, fp fingerprint.Value, v policy.Verdict) {
	r.mu.Lock()
	r.got = append(r.got, recorded{c, fp, v})
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func (r *recorder) last(t *testing.T) recorded {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.got) == 0 {
		t.Fatal("nothing dispatched")
	}
	return r.got[len(r.got)-1]
}

type harness struct {
	w         *Watcher
	source    *fakeSource
	modes     *settableMode
	tokens    *trigger.Store
	sightings *procwatch.Sightings
	sink      *recorder
}

func newHarness(mode policy.Mode) *harness {
	h := &harness{
		source:    &fakeSource{},
		modes:     &settableMode{m: mode},
		tokens:    &trigger.Store{},
		sightings: &procwatch.Sightings{},
		sink:      &recorder{},
	}
	h.w = New(Config{
		Source: h.source,
		Modes:  h.modes,
		Policy: &policy.Policy{
			Window:    4 * time.Second,
			Modes:     h.modes,
			Tokens:    h.tokens,
			Sightings: h.sightings,
		},
		Dispatch: h.sink.dispatch,
	})
	return h
}

func TestSnipFlowDelivered(t *testing.T) {
	h := newHarness(policy.ModeAlwaysOn)
	now := time.Now()

	// Capture tool seen, then a new image lands on the clipboard.
	h.sightings.Stamp(now.Add(-time.Second))
	img := clip.Image([]byte("png bytes"))
	h.source.set(img, nil)

	h.w.scan(now)

	if h.sink.count() != 1 {
		t.Fatalf("dispatched %d times, want 1", h.sink.count())
	}
	got := h.sink.last(t)
	if got.v.Reason != policy.ReasonCorrelated {
		t.Fatalf("reason = %q, want %q", got.v.Reason, policy.ReasonCorrelated)
	}
	if got.fp != fingerprint.Bytes(img.Data) {
		t.Fatal("dispatched fingerprint does not match content")
	}

	// The same image on later ticks is not a new event.
	h.w.scan(now.Add(time.Second))
	h.w.scan(now.Add(2 * time.Second))
	if h.sink.count() != 1 {
		t.Fatalf("same image re-dispatched: %d", h.sink.count())
	}

	c := h.w.Counters()
	if c.Changes != 1 || c.Accepted != 1 || c.Rejected != 0 {
		t.Fatalf("counters = %+v", c)
	}
}

func TestStaleImageRejectedOnce(t *testing.T) {
	h := newHarness(policy.ModeAlwaysOn)
	now := time.Now()

	// No sighting, no token: an old image pasted from somewhere.
	h.source.set(clip.Image([]byte("stale")), nil)

	h.w.scan(now)
	h.w.scan(now.Add(time.Second))
	h.w.scan(now.Add(2 * time.Second))

	if h.sink.count() != 0 {
		t.Fatalf("stale image delivered %d times", h.sink.count())
	}
	c := h.w.Counters()
	if c.Rejected != 1 {
		t.Fatalf("rejected %d times, want exactly 1 evaluation", c.Rejected)
	}
}

func TestClearThenRecopyIsNewEvent(t *testing.T) {
	h := newHarness(policy.ModeAlwaysOn)
	now := time.Now()
	img := clip.Image([]byte("twice"))

	h.source.set(img, nil)
	h.w.scan(now)

	// Clipboard emptied: tracked fingerprint is forgotten.
	h.source.set(clip.None(), nil)
	h.w.scan(now.Add(time.Second))

	// The same bytes copied again are a fresh event.
	h.source.set(img, nil)
	h.w.scan(now.Add(2 * time.Second))

	if c := h.w.Counters(); c.Changes != 2 {
		t.Fatalf("changes = %d, want 2 (re-copy after clear)", c.Changes)
	}
}

func TestTrayOnlyRequiresToken(t *testing.T) {
	h := newHarness(policy.ModeTrayOnly)
	now := time.Now()

	// Correlation alone is not enough in tray-only mode.
	h.sightings.Stamp(now.Add(-time.Second))
	h.source.set(clip.Image([]byte("one")), nil)
	h.w.scan(now)
	if h.sink.count() != 0 {
		t.Fatal("tray-only delivered without a token")
	}

	// Armed token accepts the next new image and is spent by it.
	h.tokens.Arm("snip-1")
	h.source.set(clip.Image([]byte("two")), nil)
	h.w.scan(now.Add(time.Second))
	if h.sink.count() != 1 {
		t.Fatalf("token-armed image not delivered")
	}
	if got := h.sink.last(t); got.v.Reason != policy.ReasonToken || got.v.Token != "snip-1" {
		t.Fatalf("verdict = %+v", got.v)
	}

	h.source.set(clip.Image([]byte("three")), nil)
	h.w.scan(now.Add(2 * time.Second))
	if h.sink.count() != 1 {
		t.Fatal("spent token authorised a second image")
	}
}

func TestPausedTouchesNothing(t *testing.T) {
	h := newHarness(policy.ModePaused)
	h.tokens.Arm("survives")
	h.source.set(clip.Image([]byte("ignored")), nil)

	h.w.scan(time.Now())
	h.w.scan(time.Now())

	if h.source.readCount() != 0 {
		t.Fatalf("paused watcher read the clipboard %d times", h.source.readCount())
	}
	if !h.tokens.Armed() {
		t.Fatal("paused watcher consumed the token")
	}
	if c := h.w.Counters(); c.Scans != 0 {
		t.Fatalf("paused iterations counted as scans: %+v", c)
	}

	// Resuming picks the image up as a fresh event.
	h.modes.set(policy.ModeTrayOnly)
	h.w.scan(time.Now())
	if h.sink.count() != 1 {
		t.Fatal("image not delivered after resume with armed token")
	}
}

func TestReadErrorResetsTracking(t *testing.T) {
	h := newHarness(policy.ModeAlwaysOn)
	now := time.Now()
	img := clip.Image([]byte("flaky"))

	h.source.set(img, nil)
	h.w.scan(now)
	if c := h.w.Counters(); c.Changes != 1 {
		t.Fatalf("changes = %d", c.Changes)
	}

	// A failed read behaves like an empty clipboard.
	h.source.set(clip.None(), errors.New("backend busy"))
	h.w.scan(now.Add(time.Second))

	h.source.set(img, nil)
	h.w.scan(now.Add(2 * time.Second))
	if c := h.w.Counters(); c.Changes != 2 {
		t.Fatalf("image after read error not treated as new: changes = %d", c.Changes)
	}
}

func TestFilePathContent(t *testing.T) {
	h := newHarness(policy.ModeAlwaysOn)
	now := time.Now()

	path := filepath.Join(t.TempDir(), "shot.png")
	if err := os.WriteFile(path, []byte("file pixels"), 0o644); err != nil {
		t.Fatal(err)
	}

	h.sightings.Stamp(now.Add(-time.Second))
	h.source.set(clip.File(path), nil)
	h.w.scan(now)

	if h.sink.count() != 1 {
		t.Fatal("file-path content not delivered")
	}
	got := h.sink.last(t)
	if got.c.Kind != clip.KindFile || got.c.Path != path {
		t.Fatalf("dispatched content = %+v", got.c)
	}
	want, err := fingerprint.File(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.fp != want {
		t.Fatal("file fingerprinted by something other than content")
	}

	// Vanished file reads as no image and resets tracking.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	h.w.scan(now.Add(time.Second))
	if h.sink.count() != 1 {
		t.Fatal("missing file delivered")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(policy.ModeAlwaysOn)
	h.w.cfg.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
