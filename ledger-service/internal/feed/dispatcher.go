package feed

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/eaglebank/ledger/ledger-service/internal/eventstore"
	"github.com/eaglebank/ledger/ledger-service/internal/metrics"
	"github.com/eaglebank/ledger/shared/events"
	"github.com/eaglebank/ledger/shared/logger"
)

// Handler consumes decoded change feed events. Handle must tolerate
// redelivery of the same record.
type Handler interface {
	Name() string
	EventTypes() []string
	Handle(ctx context.Context, env eventstore.Envelope) error
}

// Dispatcher fans a batch of records out to handlers. Streams run in
// parallel; the records of one stream run in version order, and once one
// fails the rest of that stream's records in the batch fail with it.
type Dispatcher struct {
	codec       *eventstore.Codec
	byType      map[string][]Handler
	parallelism int
	log         *logger.Logger
	metrics     *metrics.Collector
}

func NewDispatcher(codec *eventstore.Codec, log *logger.Logger, m *metrics.Collector, parallelism int, handlers ...Handler) *Dispatcher {
	if parallelism <= 0 {
		parallelism = 8
	}
	d := &Dispatcher{
		codec:       codec,
		byType:      make(map[string][]Handler),
		parallelism: parallelism,
		log:         log,
		metrics:     m,
	}
	for _, h := range handlers {
		for _, t := range h.EventTypes() {
			d.byType[t] = append(d.byType[t], h)
		}
	}
	return d
}

// Handle satisfies events.BatchHandler.
func (d *Dispatcher) Handle(ctx context.Context, records []events.Record) []error {
	errs := make([]error, len(records))

	lanes := make(map[string][]int)
	var order []string
	for i, r := range records {
		if _, ok := lanes[r.StreamID]; !ok {
			order = append(order, r.StreamID)
		}
		lanes[r.StreamID] = append(lanes[r.StreamID], i)
	}

	var g errgroup.Group
	g.SetLimit(d.parallelism)
	for _, stream := range order {
		lane := lanes[stream]
		g.Go(func() error {
			d.runLane(ctx, records, lane, errs)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// runLane writes only the errs slots of its own records.
func (d *Dispatcher) runLane(ctx context.Context, records []events.Record, lane []int, errs []error) {
	var blocked string
	for _, i := range lane {
		if blocked != "" {
			errs[i] = fmt.Errorf("record %s held back after %s failed: %w", records[i].ID, blocked, events.ErrDeferred)
			continue
		}
		if err := d.dispatch(ctx, records[i]); err != nil {
			errs[i] = err
			blocked = records[i].ID
			d.log.Warn("dispatch failed", "recordId", records[i].ID, "eventType", records[i].EventType, "error", err)
		}
		d.metrics.RecordDispatch(errs[i])
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, r events.Record) error {
	env, err := d.codec.DecodeEnvelope(r)
	if err != nil {
		return err
	}
	for _, h := range d.byType[r.EventType] {
		if err := h.Handle(ctx, env); err != nil {
			return fmt.Errorf("%s: %w", h.Name(), err)
		}
	}
	return nil
}
