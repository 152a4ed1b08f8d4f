package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eaglebank/ledger/ledger-service/internal/eventstore"
	"github.com/eaglebank/ledger/ledger-service/internal/metrics"
	"github.com/eaglebank/ledger/shared/events"
	"github.com/eaglebank/ledger/shared/logger"
)

type RelayConfig struct {
	Interval  time.Duration
	BatchSize int
	// MaxAttempts is how many times a record may fail before it is
	// dead-lettered. Deferred failures do not count.
	MaxAttempts int
	// Wake, if set, triggers a flush before the next tick.
	Wake <-chan struct{}
}

// Relay moves appended records from the outbox to a sink, marking each one
// published only after the sink accepted it or it ran out of attempts.
type Relay struct {
	outbox      eventstore.Outbox
	sink        events.BatchHandler
	log         *logger.Logger
	metrics     *metrics.Collector
	interval    time.Duration
	batch       int
	maxAttempts int
	wake        <-chan struct{}
	// attempts is only touched by Flush, which is not run concurrently.
	attempts map[string]int
}

func NewRelay(outbox eventstore.Outbox, sink events.BatchHandler, log *logger.Logger, m *metrics.Collector, cfg RelayConfig) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Relay{
		outbox:      outbox,
		sink:        sink,
		log:         log,
		metrics:     m,
		interval:    cfg.Interval,
		batch:       cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		wake:        cfg.Wake,
		attempts:    make(map[string]int),
	}
}

// Run flushes on every tick or wake-up until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("relay started", "interval", r.interval, "batch", r.batch, "maxAttempts", r.maxAttempts)
	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.log.Warn("relay flush failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping")
			return ctx.Err()
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

// Flush delivers batches until the outbox is drained or a batch had
// failures, which are left pending for the next flush. It returns the number
// of records published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		records, err := r.outbox.Pending(ctx, r.batch)
		if err != nil {
			return total, fmt.Errorf("read outbox: %w", err)
		}
		if len(records) == 0 {
			return total, nil
		}

		errs := r.sink(ctx, records)
		published := make([]string, 0, len(records))
		delivered := 0
		for i, rec := range records {
			var err error
			if i < len(errs) {
				err = errs[i]
			}
			if err == nil {
				delete(r.attempts, rec.ID)
				published = append(published, rec.ID)
				delivered++
				continue
			}
			if r.exhausted(rec, err) {
				published = append(published, rec.ID)
			}
		}
		if err := r.outbox.MarkPublished(ctx, published); err != nil {
			return total, fmt.Errorf("mark published: %w", err)
		}
		r.metrics.RecordRelay(delivered, len(records)-delivered)
		total += delivered

		if len(published) < len(records) {
			return total, nil
		}
	}
}

// exhausted counts a failed delivery of rec and reports whether rec has used
// up its attempts. Such a record is dropped from the outbox with a critical
// log line naming it, so the records behind it keep flowing.
func (r *Relay) exhausted(rec events.Record, err error) bool {
	if errors.Is(err, events.ErrDeferred) {
		r.log.Debug("record deferred", "recordId", rec.ID, "error", err)
		return false
	}
	r.attempts[rec.ID]++
	attempts := r.attempts[rec.ID]
	if attempts < r.maxAttempts {
		r.log.Warn("record not delivered", "recordId", rec.ID, "eventType", rec.EventType, "attempt", attempts, "error", err)
		return false
	}
	delete(r.attempts, rec.ID)
	r.log.Error("record dead-lettered",
		"recordId", rec.ID,
		"streamId", rec.StreamID,
		"eventType", rec.EventType,
		"attempts", attempts,
		"error", err,
		"severity", "critical",
	)
	r.metrics.RecordDeadLetter(rec.EventType)
	return true
}
