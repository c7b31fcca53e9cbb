package trigger

import (
	"sync"
	"testing"
)

func TestArmConsume(t *testing.T) {
	var s Store

	if s.Armed() {
		t.Fatal("zero store reports armed")
	}
	if _, ok := s.Consume(); ok {
		t.Fatal("consumed a token from an empty slot")
	}

	armed := s.Arm("")
	if armed.ID == "" {
		t.Fatal("Arm did not assign an id")
	}
	if armed.ArmedAt.IsZero() {
		t.Fatal("Arm did not timestamp")
	}
	if !s.Armed() {
		t.Fatal("store not armed after Arm")
	}

	got, ok := s.Consume()
	if !ok || got.ID != armed.ID {
		t.Fatalf("Consume = (%v, %v), want id %s", got, ok, armed.ID)
	}
	if s.Armed() {
		t.Fatal("slot not cleared by Consume")
	}
	if _, ok := s.Consume(); ok {
		t.Fatal("token consumed twice")
	}
}

func TestArmSupersedes(t *testing.T) {
	var s Store

	s.Arm("first")
	second := s.Arm("second")

	got, ok := s.Consume()
	if !ok || got.ID != second.ID {
		t.Fatalf("Consume = (%v, %v), want superseding token %q", got, ok, second.ID)
	}
	if _, ok := s.Consume(); ok {
		t.Fatal("superseded token still consumable")
	}
}

func TestConsumeExactlyOnce(t *testing.T) {
	var s Store
	s.Arm("contested")

	const racers = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := s.Consume(); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 {
		t.Fatalf("%d goroutines consumed the token, want exactly 1", wins)
	}
}

func TestArmKeepsGivenID(t *testing.T) {
	var s Store
	tok := s.Arm("settings-file-token")
	if tok.ID != "settings-file-token" {
		t.Fatalf("Arm rewrote id to %q", tok.ID)
	}
}
