package main

import "github.com/google/uuid"

type replyMark uint8

const (
	replyPending replyMark = iota + 1
	replySent
)

// replyLedger records counterparties already auto-replied to during the
// current offline streak. It is not safe for concurrent use; presenceBot
// guards it with its state mutex.
//
// Entries are only ever bulk-cleared. Every clear starts a new generation
// (and streak id) so in-flight sends started under an older generation can
// tell their reservation is gone.
type replyLedger struct {
	entries    map[string]replyMark
	generation uint64
	streakID   string
}

func newReplyLedger() *replyLedger {
	return &replyLedger{
		entries:  make(map[string]replyMark),
		streakID: uuid.NewString(),
	}
}

// contains reports whether id is recorded, including pending reservations.
func (l *replyLedger) contains(id string) bool {
	_, ok := l.entries[id]
	return ok
}

// reserve marks id as in flight and returns the generation the reservation
// belongs to. ok is false when id is already present.
func (l *replyLedger) reserve(id string) (gen uint64, ok bool) {
	if l.contains(id) {
		return l.generation, false
	}
	l.entries[id] = replyPending
	return l.generation, true
}

// confirm turns a reservation into a sent entry. It is a no-op when the
// ledger was cleared since the reservation.
func (l *replyLedger) confirm(id string, gen uint64) bool {
	if gen != l.generation {
		return false
	}
	l.entries[id] = replySent
	return true
}

// release drops a reservation after a failed send so the next qualifying
// message can retry.
func (l *replyLedger) release(id string, gen uint64) {
	if gen != l.generation {
		return
	}
	if l.entries[id] == replyPending {
		delete(l.entries, id)
	}
}

// clear empties the ledger and starts a new streak. It returns how many
// entries were dropped.
func (l *replyLedger) clear() int {
	n := len(l.entries)
	clear(l.entries)
	l.generation++
	l.streakID = uuid.NewString()
	return n
}

// sentCount counts confirmed replies, ignoring reservations still in flight.
func (l *replyLedger) sentCount() int {
	n := 0
	for _, m := range l.entries {
		if m == replySent {
			n++
		}
	}
	return n
}
