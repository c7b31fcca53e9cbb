package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	base := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{At: base, Origin: "inline", Fingerprint: "00000000000000aa", Reason: "token", URL: "https://files.example.test/1.png", DurationMS: 420},
		{At: base.Add(time.Minute), Origin: "file", Fingerprint: "00000000000000bb", Reason: "process-correlated", Error: "image host returned 412", DurationMS: 120},
		{At: base.Add(2 * time.Minute), Origin: "inline", Fingerprint: "00000000000000cc", Reason: "token", URL: "https://files.example.test/3.png", DurationMS: 310},
	}
	for i := range entries {
		if err := s.Record(ctx, &entries[i]); err != nil {
			t.Fatal(err)
		}
		if entries[i].ID == 0 {
			t.Fatal("Record left ID unset")
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent(2) returned %d rows", len(got))
	}
	if got[0].Fingerprint != "00000000000000cc" || got[1].Fingerprint != "00000000000000bb" {
		t.Fatalf("rows out of order: %q then %q", got[0].Fingerprint, got[1].Fingerprint)
	}
	if !got[0].At.Equal(entries[2].At) {
		t.Fatalf("timestamp = %v, want %v", got[0].At, entries[2].At)
	}
	if got[1].Error != "image host returned 412" || got[1].URL != "" {
		t.Fatalf("failed entry roundtrip: %+v", got[1])
	}
}

func TestRecentOnEmptyStore(t *testing.T) {
	s := openTest(t)
	got, err := s.Recent(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("empty store returned %d rows", len(got))
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		e := Entry{At: time.Now(), Origin: "inline", Fingerprint: "f", Reason: "token"}
		if err := s.Record(ctx, &e); err != nil {
			t.Fatal(err)
		}
	}
	n, err := s.Prune(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("pruned %d rows, want 3", n)
	}
	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("%d rows survive, want 2", len(got))
	}
	if got[0].ID != 5 || got[1].ID != 4 {
		t.Fatalf("wrong survivors: ids %d, %d", got[0].ID, got[1].ID)
	}
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	e := Entry{At: time.Now(), Origin: "inline", Fingerprint: "deadbeef", Reason: "token"}
	if err := s.Record(context.Background(), &e); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	got, err := s2.Recent(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Fingerprint != "deadbeef" {
		t.Fatalf("reopened store returned %+v", got)
	}
}
