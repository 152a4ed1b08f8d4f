package projection

import (
	"context"
	"fmt"

	"github.com/eaglebank/ledger/ledger-service/internal/domain"
	"github.com/eaglebank/ledger/ledger-service/internal/eventstore"
	"github.com/eaglebank/ledger/ledger-service/internal/metrics"
	"github.com/eaglebank/ledger/ledger-service/internal/readstore"
	"github.com/eaglebank/ledger/shared/events"
)

// Handler maintains one read model. Apply reports what it did with the event
// as one of the metrics result labels.
type Handler interface {
	Name() string
	EventTypes() []string
	Apply(ctx context.Context, env eventstore.Envelope) (string, error)
}

// foldFunc applies one event to a row. It must also set the row's version to
// env.Version.
type foldFunc[T any] func(ctx context.Context, row T, env eventstore.Envelope) (T, error)

func entityID(env eventstore.Envelope) (string, error) {
	_, id, err := domain.ParseStreamID(env.StreamID)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// tracked keeps a row per stream in step with the stream's version:
// redeliveries are skipped, the next version is folded in, and a missing row
// or a gap is rebuilt from the stream's own history.
type tracked[T any] struct {
	store   readstore.Store[T]
	events  eventstore.EventStore
	version func(T) int64
	fold    foldFunc[T]
}

func (p *tracked[T]) apply(ctx context.Context, id string, env eventstore.Envelope) (string, error) {
	row, found, err := p.store.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("read row %s: %w", id, err)
	}
	if found && env.Version <= p.version(row) {
		return metrics.ResultSkipped, nil
	}
	if found && env.Version == p.version(row)+1 {
		next, err := p.fold(ctx, row, env)
		if err != nil {
			return "", err
		}
		return metrics.ResultApplied, p.store.Upsert(ctx, id, next)
	}

	next, err := p.rebuild(ctx, env)
	if err != nil {
		return "", err
	}
	return metrics.ResultRebuilt, p.store.Upsert(ctx, id, next)
}

func (p *tracked[T]) rebuild(ctx context.Context, env eventstore.Envelope) (T, error) {
	var row T
	history, err := p.events.LoadEvents(ctx, env.StreamID)
	if err != nil {
		return row, fmt.Errorf("rebuild %s: %w", env.StreamID, err)
	}
	if int64(len(history)) <= env.Version {
		return row, fmt.Errorf("rebuild %s: stream has %d events, feed is at version %d",
			env.StreamID, len(history), env.Version)
	}
	for v := int64(0); v <= env.Version; v++ {
		row, err = p.fold(ctx, row, historyEnvelope(env.StreamID, v, history[v]))
		if err != nil {
			return row, err
		}
	}
	return row, nil
}

func historyEnvelope(streamID string, version int64, e domain.Event) eventstore.Envelope {
	return eventstore.Envelope{
		RecordID:  events.RecordID(streamID, version),
		StreamID:  streamID,
		Version:   version,
		Timestamp: e.OccurredAt(),
		Event:     e,
	}
}
