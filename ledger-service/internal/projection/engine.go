package projection

import (
	"context"
	"fmt"
	"sort"

	"github.com/eaglebank/ledger/ledger-service/internal/eventstore"
	"github.com/eaglebank/ledger/ledger-service/internal/metrics"
	"github.com/eaglebank/ledger/ledger-service/internal/readstore"
	"github.com/eaglebank/ledger/shared/events"
	"github.com/eaglebank/ledger/shared/logger"
)

// Engine routes change feed events to the read model handlers registered
// for their type, then tells subscribers about the new state.
type Engine struct {
	byType  map[string][]Handler
	bus     events.Bus
	log     *logger.Logger
	metrics *metrics.Collector
}

// NewEngine indexes handlers by the event types they declare. Handlers of the
// same type run in registration order.
func NewEngine(bus events.Bus, log *logger.Logger, m *metrics.Collector, handlers ...Handler) *Engine {
	e := &Engine{
		byType:  make(map[string][]Handler),
		bus:     bus,
		log:     log,
		metrics: m,
	}
	for _, h := range handlers {
		for _, t := range h.EventTypes() {
			e.byType[t] = append(e.byType[t], h)
		}
	}
	return e
}

func (e *Engine) Name() string { return "projections" }

func (e *Engine) EventTypes() []string {
	types := make([]string, 0, len(e.byType))
	for t := range e.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Handle applies env to every interested handler and stops at the first
// failure. A notification goes out only if some handler changed a row.
func (e *Engine) Handle(ctx context.Context, env eventstore.Envelope) error {
	changed := false
	for _, h := range e.byType[env.Event.EventType()] {
		outcome, err := h.Apply(ctx, env)
		if err != nil {
			e.metrics.RecordProjection(h.Name(), metrics.ResultError)
			return fmt.Errorf("%s projection, record %s: %w", h.Name(), env.RecordID, err)
		}
		e.metrics.RecordProjection(h.Name(), outcome)
		if outcome != metrics.ResultSkipped {
			changed = true
		}
	}
	if changed {
		e.notify(ctx, env)
	}
	return nil
}

func (e *Engine) notify(ctx context.Context, env eventstore.Envelope) {
	id, err := entityID(env)
	if err != nil {
		e.log.Warn("Skipping notification for malformed stream", "streamId", env.StreamID, "error", err)
		return
	}
	msg := events.Notification{EntityID: id, State: env.Event.EventType()}
	if err := e.bus.Publish(ctx, events.Channel(env.StreamID), msg); err != nil {
		e.log.Warn("Failed to publish notification", "streamId", env.StreamID, "state", msg.State, "error", err)
	}
}

// Handlers builds the standard read model handlers over views. Each partition
// has exactly one handler writing it.
func Handlers(views readstore.Stores, store eventstore.EventStore) []Handler {
	return []Handler{
		NewAccountProjection(views.Accounts, views.Transactions, store),
		NewCustomerProjection(views.Customers, store),
		NewTransferProjection(views.Transfers, store),
		NewLedgerProjection(views.Ledger),
		NewSettlementProjection(views.Settlement, store),
	}
}
