package eventstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/eaglebank/ledger/ledger-service/internal/domain"
	"github.com/eaglebank/ledger/shared/events"
)

// Envelope is a decoded record: the domain event plus where it sits.
type Envelope struct {
	RecordID  string
	StreamID  string
	Version   int64
	Timestamp time.Time
	Event     domain.Event
}

// Codec converts between domain events and wire records using a closed
// registry.
type Codec struct {
	decoders map[string]domain.Decoder
}

func NewCodec() *Codec {
	return &Codec{decoders: domain.Decoders()}
}

func (c *Codec) Encode(streamID string, version int64, e domain.Event) (events.Record, error) {
	if _, ok := c.decoders[e.EventType()]; !ok {
		return events.Record{}, fmt.Errorf("%w: %s", ErrUnknownEventType, e.EventType())
	}
	data, err := json.Marshal(e)
	if err != nil {
		return events.Record{}, fmt.Errorf("encode %s: %w", e.EventType(), err)
	}
	return events.Record{
		ID:        events.RecordID(streamID, version),
		StreamID:  streamID,
		EventType: e.EventType(),
		Version:   version,
		Data:      data,
		Timestamp: e.OccurredAt(),
	}, nil
}

func (c *Codec) Decode(r events.Record) (domain.Event, error) {
	dec, ok := c.decoders[r.EventType]
	if !ok {
		return nil, fmt.Errorf("%w: %s in record %s", ErrUnknownEventType, r.EventType, r.ID)
	}
	e, err := dec(r.Data)
	if err != nil {
		return nil, fmt.Errorf("decode record %s: %w", r.ID, err)
	}
	return e, nil
}

func (c *Codec) DecodeEnvelope(r events.Record) (Envelope, error) {
	e, err := c.Decode(r)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		RecordID:  r.ID,
		StreamID:  r.StreamID,
		Version:   r.Version,
		Timestamp: r.Timestamp,
		Event:     e,
	}, nil
}
