package eventstore

import (
	"context"
	"sync"

	"github.com/eaglebank/ledger/shared/events"
)

// MemoryLog is an in-process Log and Outbox.
type MemoryLog struct {
	mu      sync.Mutex
	streams map[string][]events.Record
	pending []events.Record
	notify  chan struct{}
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		streams: make(map[string][]events.Record),
		notify:  make(chan struct{}, 1),
	}
}

func (l *MemoryLog) Load(_ context.Context, streamID string) ([]events.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stream := l.streams[streamID]
	out := make([]events.Record, len(stream))
	copy(out, stream)
	return out, nil
}

func (l *MemoryLog) Append(_ context.Context, streamID string, expectedVersion int64, records []events.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	current := int64(len(l.streams[streamID])) - 1
	if current != expectedVersion {
		return &ConcurrencyError{StreamID: streamID, ExpectedVersion: expectedVersion}
	}
	l.streams[streamID] = append(l.streams[streamID], records...)
	l.pending = append(l.pending, records...)
	select {
	case l.notify <- struct{}{}:
	default:
	}
	return nil
}

func (l *MemoryLog) Pending(_ context.Context, limit int) ([]events.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.pending)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]events.Record, n)
	copy(out, l.pending[:n])
	return out, nil
}

func (l *MemoryLog) MarkPublished(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	done := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		done[id] = struct{}{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.pending[:0]
	for _, r := range l.pending {
		if _, ok := done[r.ID]; !ok {
			kept = append(kept, r)
		}
	}
	l.pending = kept
	return nil
}

// Appended is signalled after each successful append. Relays use it to wake
// up early instead of waiting for the next poll.
func (l *MemoryLog) Appended() <-chan struct{} { return l.notify }
