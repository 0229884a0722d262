package observability

import "sync/atomic"

// RelayMetrics aggregates counters for the relay hot path.
// All fields are atomic; the struct is shared by the handler, the store
// and the background workers and must be passed by pointer.
type RelayMetrics struct {
	MessagesStored     atomic.Uint64
	FilesStored        atomic.Uint64
	MessagesSuppressed atomic.Uint64
	MessagesDropped    atomic.Uint64
	MessagesPurged     atomic.Uint64
	CommandsDropped    atomic.Uint64
	PushFailures       atomic.Uint64
}

// Snapshot returns a loggable view of the counters.
func (m *RelayMetrics) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"messages_stored":     m.MessagesStored.Load(),
		"files_stored":        m.FilesStored.Load(),
		"messages_suppressed": m.MessagesSuppressed.Load(),
		"messages_dropped":    m.MessagesDropped.Load(),
		"messages_purged":     m.MessagesPurged.Load(),
		"commands_dropped":    m.CommandsDropped.Load(),
		"push_failures":       m.PushFailures.Load(),
	}
}
