package realtime

import (
	"testing"
	"time"
)

type expiry struct {
	noteID     string
	email      string
	generation uint64
}

func newTestDebouncer(quiet time.Duration) (*TypingDebouncer, chan expiry) {
	expiries := make(chan expiry, 16)
	debouncer := NewTypingDebouncer(quiet, func(noteID, email string, generation uint64) {
		expiries <- expiry{noteID: noteID, email: email, generation: generation}
	})
	return debouncer, expiries
}

func TestTypingDebouncerFiresAfterQuietPeriod(t *testing.T) {
	debouncer, expiries := newTestDebouncer(20 * time.Millisecond)
	debouncer.Signal("note-1", "alice@example.com")

	select {
	case fired := <-expiries:
		if fired.noteID != "note-1" || fired.email != "alice@example.com" {
			t.Fatalf("unexpected expiry: %#v", fired)
		}
		if !debouncer.Expire(fired.noteID, fired.email, fired.generation) {
			t.Fatal("expected live expiry to be confirmed")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected expiry within deadline")
	}

	if debouncer.Pending("note-1", "alice@example.com") {
		t.Fatal("expected entry cleared after expiry")
	}
}

func TestTypingDebouncerSignalResetsTimer(t *testing.T) {
	debouncer, expiries := newTestDebouncer(60 * time.Millisecond)
	debouncer.Signal("note-1", "alice@example.com")
	time.Sleep(20 * time.Millisecond)
	debouncer.Signal("note-1", "alice@example.com")

	var fired expiry
	select {
	case fired = <-expiries:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected expiry within deadline")
	}
	if !debouncer.Expire(fired.noteID, fired.email, fired.generation) {
		t.Fatal("expected latest generation to be live")
	}

	select {
	case extra := <-expiries:
		t.Fatalf("expected a single expiry, got extra %#v", extra)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestTypingDebouncerCancelSuppressesExpiry(t *testing.T) {
	debouncer, expiries := newTestDebouncer(20 * time.Millisecond)
	debouncer.Signal("note-1", "alice@example.com")
	debouncer.Cancel("note-1", "alice@example.com")

	select {
	case fired := <-expiries:
		// The timer may have fired before Stop won the race; the generation
		// guard must then reject it.
		if debouncer.Expire(fired.noteID, fired.email, fired.generation) {
			t.Fatal("expected cancelled expiry to be rejected")
		}
	case <-time.After(100 * time.Millisecond):
	}

	if debouncer.Pending("note-1", "alice@example.com") {
		t.Fatal("expected no pending timer after cancel")
	}
}

func TestTypingDebouncerExpireRejectsStaleGeneration(t *testing.T) {
	debouncer, _ := newTestDebouncer(time.Hour)
	debouncer.Signal("note-1", "alice@example.com")
	debouncer.Signal("note-1", "alice@example.com")

	if debouncer.Expire("note-1", "alice@example.com", 1) {
		t.Fatal("expected stale generation to be rejected")
	}
	if !debouncer.Pending("note-1", "alice@example.com") {
		t.Fatal("expected live timer to survive stale expiry")
	}
}

func TestTypingDebouncerCancelAbsentPairIsNoOp(t *testing.T) {
	debouncer, _ := newTestDebouncer(time.Hour)
	debouncer.Cancel("note-1", "alice@example.com")
}
