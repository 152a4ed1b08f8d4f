package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Aggregate type names. They prefix stream ids.
const (
	TypeAccount           = "Account"
	TypeCustomer          = "Customer"
	TypeTransfer          = "Transfer"
	TypeLedgerTransaction = "LedgerTransaction"
	TypeSettlementAccount = "SettlementAccount"
)

// Event is an immutable domain fact.
type Event interface {
	EventType() string
	OccurredAt() time.Time
}

// Meta carries the fields every event shares.
type Meta struct {
	At time.Time `json:"occurredAt"`
}

func (m Meta) OccurredAt() time.Time { return m.At }

func newMeta() Meta { return Meta{At: now()} }

var now = func() time.Time { return time.Now().UTC() }

// Aggregate is what a repository needs to load and save an aggregate.
type Aggregate interface {
	ID() uuid.UUID
	Version() int64
	Uncommitted() []Event
	MarkCommitted()
	Load(history []Event) error
}

// Fold moves state to the next version. It may update maps held by state in
// place, so only the returned state is valid afterwards.
type Fold[S any] func(state S, event Event) (S, error)

// Base is the replay engine shared by all aggregates. Version is the version
// of the last event applied, -1 when no stream exists yet.
type Base[S any] struct {
	id      uuid.UUID
	state   S
	version int64
	pending []Event
	fold    Fold[S]
}

func newBase[S any](id uuid.UUID, fold Fold[S]) Base[S] {
	return Base[S]{id: id, version: -1, fold: fold}
}

func (b *Base[S]) ID() uuid.UUID    { return b.id }
func (b *Base[S]) Version() int64   { return b.version }
func (b *Base[S]) State() S         { return b.state }
func (b *Base[S]) Exists() bool     { return b.version >= 0 || len(b.pending) > 0 }
func (b *Base[S]) HasPending() bool { return len(b.pending) > 0 }

// Load replays history onto the aggregate, one version per event.
func (b *Base[S]) Load(history []Event) error {
	for _, e := range history {
		next, err := b.fold(b.state, e)
		if err != nil {
			return err
		}
		b.state = next
		b.version++
	}
	return nil
}

// Uncommitted returns a copy of the raised but unsaved events.
func (b *Base[S]) Uncommitted() []Event {
	out := make([]Event, len(b.pending))
	copy(out, b.pending)
	return out
}

// MarkCommitted advances the version past the pending events and clears them.
func (b *Base[S]) MarkCommitted() {
	b.version += int64(len(b.pending))
	b.pending = nil
}

func (b *Base[S]) raise(e Event) error {
	next, err := b.fold(b.state, e)
	if err != nil {
		return err
	}
	b.state = next
	b.pending = append(b.pending, e)
	return nil
}

// StreamID returns the conventional stream id for an aggregate instance.
func StreamID(aggregateType string, id uuid.UUID) string {
	return aggregateType + "-" + id.String()
}

// ParseStreamID splits a stream id into its aggregate type and id.
func ParseStreamID(streamID string) (string, uuid.UUID, error) {
	aggregateType, rest, ok := strings.Cut(streamID, "-")
	if !ok {
		return "", uuid.Nil, fmt.Errorf("malformed stream id %q", streamID)
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("malformed stream id %q: %w", streamID, err)
	}
	return aggregateType, id, nil
}

func unknownEvent(aggregateType string, e Event) error {
	return fmt.Errorf("%s cannot apply event %T", aggregateType, e)
}
