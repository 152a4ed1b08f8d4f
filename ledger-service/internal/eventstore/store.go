package eventstore

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/eaglebank/ledger/ledger-service/internal/domain"
	"github.com/eaglebank/ledger/shared/events"
)

// Log is the external append-only event log.
type Log interface {
	// Load returns a stream's records in version order.
	Load(ctx context.Context, streamID string) ([]events.Record, error)
	// Append writes records atomically if the stream's current version equals
	// expectedVersion, otherwise it returns a *ConcurrencyError.
	Append(ctx context.Context, streamID string, expectedVersion int64, records []events.Record) error
}

// Outbox exposes appended records that the change feed has not delivered yet.
type Outbox interface {
	Pending(ctx context.Context, limit int) ([]events.Record, error)
	MarkPublished(ctx context.Context, ids []string) error
}

// EventStore is the typed view of the log used by repositories and
// projections.
type EventStore interface {
	LoadEvents(ctx context.Context, streamID string) ([]domain.Event, error)
	AppendEvents(ctx context.Context, streamID string, evs []domain.Event, expectedVersion int64) error
}

// Store adapts a Log to domain events.
type Store struct {
	log   Log
	codec *Codec
}

func NewStore(log Log, codec *Codec) *Store {
	return &Store{log: log, codec: codec}
}

// LoadEvents returns the stream's events, or an empty slice if it never existed.
func (s *Store) LoadEvents(ctx context.Context, streamID string) ([]domain.Event, error) {
	records, err := s.log.Load(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("load stream %s: %w", streamID, err)
	}
	out := make([]domain.Event, 0, len(records))
	for _, r := range records {
		e, err := s.codec.Decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// AppendEvents assigns versions expectedVersion+1.. and appends them as one
// batch. The span on ctx, if any, is stamped onto each record.
func (s *Store) AppendEvents(ctx context.Context, streamID string, evs []domain.Event, expectedVersion int64) error {
	if len(evs) == 0 {
		return nil
	}
	sc := trace.SpanContextFromContext(ctx)
	records := make([]events.Record, 0, len(evs))
	for i, e := range evs {
		r, err := s.codec.Encode(streamID, expectedVersion+1+int64(i), e)
		if err != nil {
			return err
		}
		if sc.IsValid() {
			r.TraceID = sc.TraceID().String()
			r.SpanID = sc.SpanID().String()
		}
		records = append(records, r)
	}
	return s.log.Append(ctx, streamID, expectedVersion, records)
}
