package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eaglebank/ledger/shared/logger"
)

// BatchHandler processes records in order and returns one error slot per
// record. A nil slot acknowledges the record.
type BatchHandler func(ctx context.Context, records []Record) []error

// ErrDeferred marks a slot that failed for a reason outside the record itself,
// such as an unreachable sink or an earlier failed record of the same stream.
var ErrDeferred = errors.New("record deferred")

type Subscriber struct {
	client        *redis.Client
	log           *logger.Logger
	group         string
	consumer      string
	stream        string
	handler       BatchHandler
	batchSize     int64
	blockDuration time.Duration
	minIdle       time.Duration
}

type SubscriberConfig struct {
	Group         string
	Consumer      string
	Stream        string
	Handler       BatchHandler
	BatchSize     int64
	BlockDuration time.Duration
	// MinIdle is how long a delivered but unacknowledged message waits before
	// this consumer reclaims it for redelivery.
	MinIdle time.Duration
}

func NewSubscriber(client *redis.Client, log *logger.Logger, config SubscriberConfig) *Subscriber {
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.BlockDuration == 0 {
		config.BlockDuration = 5 * time.Second
	}
	if config.MinIdle == 0 {
		config.MinIdle = 30 * time.Second
	}
	if config.Stream == "" {
		config.Stream = LedgerEventsStream
	}

	return &Subscriber{
		client:        client,
		log:           log.With("stream", config.Stream, "group", config.Group, "consumer", config.Consumer),
		group:         config.Group,
		consumer:      config.Consumer,
		stream:        config.Stream,
		handler:       config.Handler,
		batchSize:     config.BatchSize,
		blockDuration: config.BlockDuration,
		minIdle:       config.MinIdle,
	}
}

func (s *Subscriber) Start(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	s.log.Info("subscriber started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("subscriber stopping")
			return ctx.Err()
		default:
			if err := s.reclaim(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("reclaiming pending messages failed", "error", err)
			}
			if err := s.readMessages(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("reading messages failed", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (s *Subscriber) readMessages(ctx context.Context) error {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    s.batchSize,
		Block:    s.blockDuration,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		s.process(ctx, stream.Messages)
	}
	return nil
}

// reclaim takes over messages another delivery left unacknowledged for longer
// than minIdle, so failed records are retried.
func (s *Subscriber) reclaim(ctx context.Context) error {
	messages, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		MinIdle:  s.minIdle,
		Start:    "0-0",
		Count:    s.batchSize,
		Consumer: s.consumer,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to autoclaim: %w", err)
	}
	if len(messages) > 0 {
		s.log.Info("reclaimed pending messages", "count", len(messages))
		s.process(ctx, messages)
	}
	return nil
}

func (s *Subscriber) process(ctx context.Context, messages []redis.XMessage) {
	records := make([]Record, 0, len(messages))
	ids := make([]string, 0, len(messages))
	for _, message := range messages {
		record, err := decodeMessage(message)
		if err != nil {
			// Leave it pending; it will surface again through reclaim.
			s.log.Error("undecodable message", "messageId", message.ID, "error", err)
			continue
		}
		records = append(records, record)
		ids = append(ids, message.ID)
	}
	if len(records) == 0 {
		return
	}

	errs := s.handler(ctx, records)
	for i, id := range ids {
		if i < len(errs) && errs[i] != nil {
			// Don't ACK failed messages - they'll be retried
			s.log.Warn("record failed", "messageId", id, "recordId", records[i].ID, "error", errs[i])
			continue
		}
		if err := s.client.XAck(ctx, s.stream, s.group, id).Err(); err != nil {
			s.log.Warn("ack failed", "messageId", id, "error", err)
		}
	}
}

func decodeMessage(message redis.XMessage) (Record, error) {
	raw, ok := message.Values["event"].(string)
	if !ok {
		return Record{}, fmt.Errorf("invalid message format")
	}
	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return record, nil
}
