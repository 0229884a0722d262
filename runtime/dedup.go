package runtime

import (
	"sync"
	"time"

	"room-relay/domain"
)

type dedupKey struct {
	room   domain.RoomID
	sender string
}

type dedupEntry struct {
	text string
	at   time.Time
}

// DedupFilter suppresses rapid identical repeats of a text message from
// the same sender in the same room. It is a sliding single-slot cache,
// not a window log: only the most recent accepted message per pair is
// remembered, so an A-B-A sequence is never suppressed, only immediate
// A-A repeats within the window. Entries are lost on restart, which is
// acceptable: dedup is a best-effort UX guard, not a correctness
// guarantee.
type DedupFilter struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[dedupKey]dedupEntry
}

func NewDedupFilter(window time.Duration) *DedupFilter {
	return &DedupFilter{window: window, entries: make(map[dedupKey]dedupEntry)}
}

// ShouldSuppress reports whether the message is an immediate repeat.
// A suppressed message leaves the cached entry untouched; an accepted
// one overwrites it with (text, now).
func (f *DedupFilter) ShouldSuppress(room domain.RoomID, sender, text string, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := dedupKey{room: room, sender: sender}
	entry, ok := f.entries[key]
	if ok && entry.text == text && now.Sub(entry.at) < f.window {
		return true
	}
	f.entries[key] = dedupEntry{text: text, at: now}
	return false
}
