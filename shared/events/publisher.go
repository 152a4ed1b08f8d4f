package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher appends records to a Redis stream.
type Publisher struct {
	client *redis.Client
	stream string
}

func NewPublisher(client *redis.Client, stream string) *Publisher {
	if stream == "" {
		stream = LedgerEventsStream
	}
	return &Publisher{client: client, stream: stream}
}

// Publish writes records in order using a single pipeline round trip.
func (p *Publisher) Publish(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	pipe := p.client.Pipeline()
	for _, r := range records {
		recordJSON, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal record %s: %w", r.ID, err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			Values: map[string]any{
				"event": recordJSON,
			},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish records: %w", err)
	}
	return nil
}

// Handle adapts the publisher to a BatchHandler. The batch succeeds or fails
// as a whole, and a failed batch is deferred.
func (p *Publisher) Handle(ctx context.Context, records []Record) []error {
	errs := make([]error, len(records))
	if err := p.Publish(ctx, records...); err != nil {
		for i := range errs {
			errs[i] = fmt.Errorf("%w: %w", ErrDeferred, err)
		}
	}
	return errs
}
