package realtime

import "time"

// DefaultTypingQuietPeriod is the idle window after the last typing signal
// before a stop-typing broadcast fires.
const DefaultTypingQuietPeriod = 2000 * time.Millisecond

type typingKey struct {
	noteID string
	email  string
}

type typingEntry struct {
	timer      *time.Timer
	generation uint64
}

// TypingDebouncer converts bursts of typing signals into a trailing stop
// event per (note, identity) pair. At most one timer is live per pair; each
// new signal replaces the previous one. Expiry does not act directly: the
// expired callback re-enters the owning hub's mailbox, and the hub confirms
// the firing via Expire so a timer cancelled after it fired is ignored.
// Not safe for concurrent use; the hub loop owns all methods except the
// callback invocation scheduled by time.AfterFunc.
type TypingDebouncer struct {
	quiet      time.Duration
	entries    map[typingKey]*typingEntry
	generation uint64
	expired    func(noteID, email string, generation uint64)
}

// NewTypingDebouncer constructs a debouncer. The expired callback fires from a
// timer goroutine after the quiet period elapses without a fresh signal.
func NewTypingDebouncer(quiet time.Duration, expired func(noteID, email string, generation uint64)) *TypingDebouncer {
	if quiet <= 0 {
		quiet = DefaultTypingQuietPeriod
	}
	return &TypingDebouncer{
		quiet:   quiet,
		entries: make(map[typingKey]*typingEntry),
		expired: expired,
	}
}

// Signal records a typing signal, replacing any pending stop-timer for the
// pair.
func (d *TypingDebouncer) Signal(noteID, email string) {
	key := typingKey{noteID: noteID, email: email}
	if entry, ok := d.entries[key]; ok {
		entry.timer.Stop()
	}
	d.generation++
	generation := d.generation
	d.entries[key] = &typingEntry{
		generation: generation,
		timer: time.AfterFunc(d.quiet, func() {
			d.expired(noteID, email, generation)
		}),
	}
}

// Expire confirms a timer firing. It reports true when the firing matches the
// live entry, clearing it; a stale firing (cancelled or replaced after the
// timer went off) reports false and must not broadcast.
func (d *TypingDebouncer) Expire(noteID, email string, generation uint64) bool {
	key := typingKey{noteID: noteID, email: email}
	entry, ok := d.entries[key]
	if !ok || entry.generation != generation {
		return false
	}
	delete(d.entries, key)
	return true
}

// Cancel drops any pending stop-timer for the pair without broadcasting.
// Cancelling an absent pair is a no-op.
func (d *TypingDebouncer) Cancel(noteID, email string) {
	key := typingKey{noteID: noteID, email: email}
	entry, ok := d.entries[key]
	if !ok {
		return
	}
	entry.timer.Stop()
	delete(d.entries, key)
}

// Pending reports whether a stop-timer is live for the pair.
func (d *TypingDebouncer) Pending(noteID, email string) bool {
	_, ok := d.entries[typingKey{noteID: noteID, email: email}]
	return ok
}
