package realtime

// PresenceRegistry tracks which identities are subscribed to each note
// channel. Counts are kept per (note, email) pair so a user holding several
// simultaneous connections to the same note stays present until the last one
// leaves. Not safe for concurrent use; the hub loop owns it.
type PresenceRegistry struct {
	counts map[string]map[string]int
}

// NewPresenceRegistry constructs an empty registry.
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{counts: make(map[string]map[string]int)}
}

// Add registers one subscription of the identity on the note channel.
func (r *PresenceRegistry) Add(noteID, email string) {
	if noteID == "" || email == "" {
		return
	}
	members := r.counts[noteID]
	if members == nil {
		members = make(map[string]int)
		r.counts[noteID] = members
	}
	members[email]++
}

// Remove drops one subscription of the identity on the note channel. The
// identity leaves the presence set only when its last subscription is removed.
// Removing a non-member is a no-op.
func (r *PresenceRegistry) Remove(noteID, email string) {
	members := r.counts[noteID]
	if members == nil {
		return
	}
	count, ok := members[email]
	if !ok {
		return
	}
	if count <= 1 {
		delete(members, email)
		if len(members) == 0 {
			delete(r.counts, noteID)
		}
		return
	}
	members[email] = count - 1
}

// Snapshot returns the distinct identities currently subscribed to the note
// channel. Order is unspecified.
func (r *PresenceRegistry) Snapshot(noteID string) []string {
	members := r.counts[noteID]
	emails := make([]string, 0, len(members))
	for email := range members {
		emails = append(emails, email)
	}
	return emails
}
