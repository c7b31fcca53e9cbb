package engine

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.klb.dev/snaplens/internal/clip"
	"go.klb.dev/snaplens/internal/deliver"
	"go.klb.dev/snaplens/internal/history"
	"go.klb.dev/snaplens/internal/policy"
	"go.klb.dev/snaplens/internal/settings"
	"go.klb.dev/snaplens/internal/trigger"
)

// settableSource is a clipboard whose content tests can swap.
type settableSource struct {
	mu sync.Mutex
	c  clip.Content
}

func (s *settableSource) Name() string { return "test clipboard" }
func (s *settableSource) Snapshot() (clip.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c, nil
}
func (s *settableSource) Close() {}
func (s *settableSource) Set(c clip.Content) {
	s.mu.Lock()
	s.c = c
	s.mu.Unlock()
}

// idleLister never reports a capture tool.
type idleLister struct{}

func (idleLister) ProcessNames(context.Context) ([]string, error) { return nil, nil }

// busyLister always reports the watched tool as running.
type busyLister struct{}

func (busyLister) ProcessNames(context.Context) ([]string, error) {
	return []string{"flameshot"}, nil
}

func newTestEngine(t *testing.T, uploadReply string) (*Engine, *settableSource, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, uploadReply)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	settingsPath := filepath.Join(dir, "settings.json")
	store, err := history.Open(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	src := &settableSource{}
	e := New(Config{
		Version: "test",
		Source:  src,
		Modes:   settings.NewController(policy.ModeAlwaysOn, false),
		Tokens:  &trigger.Store{},
		Pipeline: deliver.New(deliver.Config{
			UploadURL: srv.URL,
			URLPrefix: "https://files.example.test/",
		}),
		History:      store,
		ProcNames:    []string{"no-such-capture-tool"},
		ProcLister:   idleLister{},
		ProcInterval: time.Hour,
		ClipInterval: 5 * time.Millisecond,
		SettingsPath: settingsPath,
	})
	return e, src, settingsPath
}

func run(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestArmedTokenDelivers(t *testing.T) {
	e, src, settingsPath := newTestEngine(t, "https://files.example.test/armed.png")
	run(t, e)

	e.Arm(false)
	src.Set(clip.Image([]byte("snip bytes")))

	waitFor(t, "history row", func() bool {
		rows, err := e.Recent(context.Background(), 5)
		return err == nil && len(rows) == 1
	})

	st := e.Status()
	if st.Delivered != 1 || st.Failed != 0 {
		t.Fatalf("delivered=%d failed=%d", st.Delivered, st.Failed)
	}
	if st.LastURL != "https://files.example.test/armed.png" {
		t.Fatalf("last URL = %q", st.LastURL)
	}
	if st.Armed {
		t.Fatal("token still armed after delivery")
	}
	if st.Backend != "test clipboard" {
		t.Fatalf("backend = %q", st.Backend)
	}

	rows, err := e.Recent(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].Reason != "token" || rows[0].URL != st.LastURL || rows[0].Origin != "inline" {
		t.Fatalf("history row = %+v", rows[0])
	}

	f, err := settings.Load(settingsPath)
	if err != nil {
		t.Fatal(err)
	}
	if f.LastURL != st.LastURL {
		t.Fatalf("settings last_url = %q", f.LastURL)
	}
}

func TestCorrelatedSightingDelivers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "https://files.example.test/snip.png")
	}))
	t.Cleanup(srv.Close)

	src := &settableSource{}
	e := New(Config{
		Version: "test",
		Source:  src,
		Modes:   settings.NewController(policy.ModeAlwaysOn, false),
		Tokens:  &trigger.Store{},
		Pipeline: deliver.New(deliver.Config{
			UploadURL: srv.URL,
			URLPrefix: "https://files.example.test/",
		}),
		ProcNames:    []string{"flameshot"},
		ProcLister:   busyLister{},
		ProcInterval: 5 * time.Millisecond,
		ClipInterval: 5 * time.Millisecond,
	})
	run(t, e)

	// Let the process watcher stamp a sighting before the image lands.
	waitFor(t, "tool sighting", func() bool {
		return e.Status().LastSighting != nil
	})
	src.Set(clip.Image([]byte("snipped pixels")))

	waitFor(t, "correlated delivery", func() bool {
		return e.Status().Delivered == 1
	})
	st := e.Status()
	if st.LastURL != "https://files.example.test/snip.png" {
		t.Fatalf("last URL = %q", st.LastURL)
	}
	if st.Accepted != 1 || st.Failed != 0 {
		t.Fatalf("accepted=%d failed=%d", st.Accepted, st.Failed)
	}
}

func TestFailedUploadRecorded(t *testing.T) {
	e, src, settingsPath := newTestEngine(t, "<html>down for maintenance</html>")
	run(t, e)

	e.Arm(false)
	src.Set(clip.Image([]byte("payload")))

	waitFor(t, "failure count", func() bool { return e.Status().Failed == 1 })

	rows, err := e.Recent(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Error == "" || rows[0].URL != "" {
		t.Fatalf("history rows = %+v", rows)
	}
	if f, _ := settings.Load(settingsPath); f.LastURL != "" {
		t.Fatalf("failed delivery persisted last_url %q", f.LastURL)
	}
}

func TestStaleFileTokenNeverFires(t *testing.T) {
	e, _, _ := newTestEngine(t, "https://files.example.test/x.png")
	e.Prime(settings.File{TriggerToken: "startup-token"})

	e.ApplySettings(settings.File{Mode: int(policy.ModeAlwaysOn), TriggerToken: "startup-token"})
	if e.Status().Armed {
		t.Fatal("startup token armed the trigger")
	}

	e.ApplySettings(settings.File{Mode: int(policy.ModeAlwaysOn), TriggerToken: "fresh-token"})
	if !e.Status().Armed {
		t.Fatal("fresh token did not arm the trigger")
	}

	// The same token again is a no-op, not a re-arm.
	e.cfg.Tokens.Consume()
	e.ApplySettings(settings.File{Mode: int(policy.ModeAlwaysOn), TriggerToken: "fresh-token"})
	if e.Status().Armed {
		t.Fatal("unchanged token re-armed the trigger")
	}
}

func TestApplySettingsChangesMode(t *testing.T) {
	e, _, _ := newTestEngine(t, "https://files.example.test/x.png")
	e.ApplySettings(settings.File{Mode: int(policy.ModeTrayOnly), Paused: true})
	st := e.Status()
	if st.Mode != "tray-only" || !st.Paused {
		t.Fatalf("status mode=%q paused=%v", st.Mode, st.Paused)
	}
}

func TestSetModeAndPausePersist(t *testing.T) {
	e, _, settingsPath := newTestEngine(t, "https://files.example.test/x.png")
	e.SetMode(policy.ModeTrayOnly)
	e.SetPaused(true)

	f, err := settings.Load(settingsPath)
	if err != nil {
		t.Fatal(err)
	}
	if f.Mode != int(policy.ModeTrayOnly) || !f.Paused {
		t.Fatalf("persisted settings = %+v", f)
	}

	e.SetPaused(false)
	f, err = settings.Load(settingsPath)
	if err != nil {
		t.Fatal(err)
	}
	if f.Paused || f.Mode != int(policy.ModeTrayOnly) {
		t.Fatalf("resume lost mode: %+v", f)
	}
}
