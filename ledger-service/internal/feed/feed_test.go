package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eaglebank/ledger/ledger-service/internal/domain"
	"github.com/eaglebank/ledger/ledger-service/internal/eventstore"
	"github.com/eaglebank/ledger/ledger-service/internal/metrics"
	"github.com/eaglebank/ledger/shared/events"
	"github.com/eaglebank/ledger/shared/logger"
)

type mockHandler struct {
	name     string
	types    []string
	handleFn func(ctx context.Context, env eventstore.Envelope) error
}

func (m *mockHandler) Name() string         { return m.name }
func (m *mockHandler) EventTypes() []string { return m.types }
func (m *mockHandler) Handle(ctx context.Context, env eventstore.Envelope) error {
	if m.handleFn != nil {
		return m.handleFn(ctx, env)
	}
	return fmt.Errorf("not configured")
}

func appendDeposits(t *testing.T, store *eventstore.Store, streamID string, n int) {
	t.Helper()
	evs := make([]domain.Event, n)
	for i := range evs {
		evs[i] = domain.FundsDeposited{AccountID: uuid.New(), Amount: decimal.NewFromInt(int64(i + 1))}
	}
	if err := store.AppendEvents(context.Background(), streamID, evs, -1); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestRelayFlushPublishesEverything(t *testing.T) {
	log := eventstore.NewMemoryLog()
	store := eventstore.NewStore(log, eventstore.NewCodec())
	appendDeposits(t, store, "Account-a", 3)
	appendDeposits(t, store, "Account-b", 2)

	var seen []string
	sink := func(_ context.Context, records []events.Record) []error {
		for _, r := range records {
			seen = append(seen, r.ID)
		}
		return make([]error, len(records))
	}
	relay := NewRelay(log, sink, logger.Nop(), nil, RelayConfig{BatchSize: 2})

	n, err := relay.Flush(context.Background())
	if err != nil || n != 5 {
		t.Fatalf("expected 5 published got %d, err %v", n, err)
	}
	if seen[0] != "Account-a:0" || seen[4] != "Account-b:1" {
		t.Errorf("records delivered out of append order: %v", seen)
	}
	if pending, _ := log.Pending(context.Background(), 0); len(pending) != 0 {
		t.Errorf("expected empty outbox got %d", len(pending))
	}
}

func TestRelayKeepsFailedRecordsPending(t *testing.T) {
	log := eventstore.NewMemoryLog()
	store := eventstore.NewStore(log, eventstore.NewCodec())
	appendDeposits(t, store, "Account-a", 2)

	sink := func(_ context.Context, records []events.Record) []error {
		errs := make([]error, len(records))
		for i, r := range records {
			if r.ID == "Account-a:1" {
				errs[i] = errors.New("projection unavailable")
			}
		}
		return errs
	}
	relay := NewRelay(log, sink, logger.Nop(), nil, RelayConfig{})
	n, _ := relay.Flush(context.Background())
	pending, _ := log.Pending(context.Background(), 0)
	if n != 1 || len(pending) != 1 || pending[0].ID != "Account-a:1" {
		t.Errorf("expected only Account-a:1 pending, published %d, pending %+v", n, pending)
	}
}

func TestRelayDeliversRecordsAppendedBySink(t *testing.T) {
	log := eventstore.NewMemoryLog()
	store := eventstore.NewStore(log, eventstore.NewCodec())
	appendDeposits(t, store, "Account-a", 1)

	calls := 0
	sink := func(ctx context.Context, records []events.Record) []error {
		calls++
		if calls == 1 {
			appendDeposits(t, store, "Account-b", 1)
		}
		return make([]error, len(records))
	}
	relay := NewRelay(log, sink, logger.Nop(), nil, RelayConfig{})
	if n, _ := relay.Flush(context.Background()); n != 2 || calls != 2 {
		t.Errorf("expected 2 records over 2 batches, got %d over %d", n, calls)
	}
}

func TestRelayRunWakesOnAppend(t *testing.T) {
	log := eventstore.NewMemoryLog()
	store := eventstore.NewStore(log, eventstore.NewCodec())
	delivered := make(chan string, 4)
	sink := func(_ context.Context, records []events.Record) []error {
		for _, r := range records {
			delivered <- r.ID
		}
		return make([]error, len(records))
	}
	relay := NewRelay(log, sink, logger.Nop(), nil, RelayConfig{Interval: time.Hour, Wake: log.Appended()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	appendDeposits(t, store, "Account-a", 1)
	select {
	case id := <-delivered:
		if id != "Account-a:0" {
			t.Errorf("unexpected record %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not wake on append")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled got %v", err)
	}
}

func record(t *testing.T, streamID string, version int64) events.Record {
	t.Helper()
	r, err := eventstore.NewCodec().Encode(streamID, version, domain.FundsDeposited{Amount: decimal.NewFromInt(1)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return r
}

func TestDispatcherOrdersAndBlocksPerStream(t *testing.T) {
	var mu sync.Mutex
	seen := map[string][]int64{}
	h := &mockHandler{
		name:  "recorder",
		types: []string{"FundsDeposited"},
		handleFn: func(_ context.Context, env eventstore.Envelope) error {
			mu.Lock()
			seen[env.StreamID] = append(seen[env.StreamID], env.Version)
			mu.Unlock()
			if env.StreamID == "Account-a" && env.Version == 1 {
				return errors.New("boom")
			}
			return nil
		},
	}
	d := NewDispatcher(eventstore.NewCodec(), logger.Nop(), nil, 4, h)

	records := []events.Record{
		record(t, "Account-a", 0),
		record(t, "Account-b", 0),
		record(t, "Account-a", 1),
		record(t, "Account-b", 1),
		record(t, "Account-a", 2),
	}
	errs := d.Handle(context.Background(), records)

	want := []bool{false, false, true, false, true}
	for i, failed := range want {
		if (errs[i] != nil) != failed {
			t.Errorf("record %s: expected failed=%v got %v", records[i].ID, failed, errs[i])
		}
	}
	if got := seen["Account-a"]; len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("expected Account-a to stop after version 1, saw %v", got)
	}
	if got := seen["Account-b"]; len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("expected Account-b in order, saw %v", got)
	}
}

func TestDispatcherFailsUnknownEventType(t *testing.T) {
	d := NewDispatcher(eventstore.NewCodec(), logger.Nop(), nil, 1)
	errs := d.Handle(context.Background(), []events.Record{{
		ID: "Account-a:0", StreamID: "Account-a", EventType: "AccountFrozen", Data: json.RawMessage(`{}`),
	}})
	if !errors.Is(errs[0], eventstore.ErrUnknownEventType) {
		t.Errorf("expected unknown event type error got %v", errs[0])
	}
}

func TestDispatcherRunsHandlersInOrder(t *testing.T) {
	var calls []string
	mk := func(name string) *mockHandler {
		return &mockHandler{name: name, types: []string{"FundsDeposited"}, handleFn: func(context.Context, eventstore.Envelope) error {
			calls = append(calls, name)
			return nil
		}}
	}
	d := NewDispatcher(eventstore.NewCodec(), logger.Nop(), nil, 1, mk("projections"), mk("saga"))
	_ = d.Handle(context.Background(), []events.Record{record(t, "Account-a", 0)})
	if len(calls) != 2 || calls[0] != "projections" || calls[1] != "saga" {
		t.Errorf("unexpected handler order %v", calls)
	}
}

func observedLogger() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return &logger.Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestRelayDeadLettersRecordThatKeepsFailing(t *testing.T) {
	ctx := context.Background()
	log := eventstore.NewMemoryLog()
	store := eventstore.NewStore(log, eventstore.NewCodec())
	appendDeposits(t, store, "Account-a", 2)
	appendDeposits(t, store, "Account-b", 1)

	var delivered []string
	h := &mockHandler{
		name:  "recorder",
		types: []string{"FundsDeposited"},
		handleFn: func(_ context.Context, env eventstore.Envelope) error {
			if env.RecordID == "Account-a:0" {
				return errors.New("cannot decode amount")
			}
			delivered = append(delivered, env.RecordID)
			return nil
		},
	}
	m := metrics.New()
	relayLog, logs := observedLogger()
	d := NewDispatcher(eventstore.NewCodec(), logger.Nop(), nil, 1, h)
	relay := NewRelay(log, d.Handle, relayLog, m, RelayConfig{MaxAttempts: 3})

	for attempt := 1; attempt <= 2; attempt++ {
		_, _ = relay.Flush(ctx)
		if pending, _ := log.Pending(ctx, 0); len(pending) != 2 {
			t.Fatalf("flush %d: expected Account-a pending behind its failure, got %d records", attempt, len(pending))
		}
	}
	_, _ = relay.Flush(ctx)
	pending, _ := log.Pending(ctx, 0)
	if len(pending) != 1 || pending[0].ID != "Account-a:1" {
		t.Fatalf("expected only Account-a:1 left after dead-lettering, got %+v", pending)
	}
	_, _ = relay.Flush(ctx)
	if pending, _ := log.Pending(ctx, 0); len(pending) != 0 {
		t.Errorf("expected drained outbox got %d", len(pending))
	}
	if len(delivered) != 2 || delivered[0] != "Account-b:0" || delivered[1] != "Account-a:1" {
		t.Errorf("unexpected deliveries %v", delivered)
	}

	dead := logs.FilterMessage("record dead-lettered").All()
	if len(dead) != 1 {
		t.Fatalf("expected one dead-letter log line got %d", len(dead))
	}
	fields := dead[0].ContextMap()
	if dead[0].Level != zap.ErrorLevel || fields["recordId"] != "Account-a:0" || fields["severity"] != "critical" {
		t.Errorf("unexpected dead-letter entry %v %v", dead[0].Level, fields)
	}
	expected := `
# HELP ledger_feed_dead_letters_total Outbox records dropped after exhausting their delivery attempts
# TYPE ledger_feed_dead_letters_total counter
ledger_feed_dead_letters_total{event_type="FundsDeposited"} 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "ledger_feed_dead_letters_total"); err != nil {
		t.Error(err)
	}
}

func TestRelayPoisonedBatchDoesNotStall(t *testing.T) {
	ctx := context.Background()
	log := eventstore.NewMemoryLog()
	store := eventstore.NewStore(log, eventstore.NewCodec())
	appendDeposits(t, store, "Account-a", 1)
	appendDeposits(t, store, "Account-b", 1)
	appendDeposits(t, store, "Account-c", 1)

	var seen []string
	sink := func(_ context.Context, records []events.Record) []error {
		errs := make([]error, len(records))
		for i, r := range records {
			seen = append(seen, r.ID)
			if r.StreamID != "Account-c" {
				errs[i] = errors.New("poisoned")
			}
		}
		return errs
	}
	relay := NewRelay(log, sink, logger.Nop(), nil, RelayConfig{BatchSize: 2, MaxAttempts: 2})

	if n, _ := relay.Flush(ctx); n != 0 {
		t.Fatalf("expected nothing delivered on the first flush, got %d", n)
	}
	if n, _ := relay.Flush(ctx); n != 1 {
		t.Errorf("expected Account-c:0 delivered once the batch was dead-lettered, got %d", n)
	}
	if seen[len(seen)-1] != "Account-c:0" {
		t.Errorf("expected Account-c:0 to reach the sink, saw %v", seen)
	}
	if pending, _ := log.Pending(ctx, 0); len(pending) != 0 {
		t.Errorf("expected drained outbox got %d", len(pending))
	}
}

func TestRelayDeferredFailuresSpendNoAttempts(t *testing.T) {
	ctx := context.Background()
	log := eventstore.NewMemoryLog()
	store := eventstore.NewStore(log, eventstore.NewCodec())
	appendDeposits(t, store, "Account-a", 2)

	sink := func(_ context.Context, records []events.Record) []error {
		errs := make([]error, len(records))
		for i := range errs {
			errs[i] = fmt.Errorf("%w: connection refused", events.ErrDeferred)
		}
		return errs
	}
	relay := NewRelay(log, sink, logger.Nop(), nil, RelayConfig{MaxAttempts: 1})
	for i := 0; i < 5; i++ {
		_, _ = relay.Flush(ctx)
	}
	if pending, _ := log.Pending(ctx, 0); len(pending) != 2 {
		t.Errorf("expected both records kept for a sink outage, got %d", len(pending))
	}
}

func TestDispatcherDefersHeldBackRecords(t *testing.T) {
	h := &mockHandler{name: "failing", types: []string{"FundsDeposited"}, handleFn: func(context.Context, eventstore.Envelope) error {
		return errors.New("boom")
	}}
	d := NewDispatcher(eventstore.NewCodec(), logger.Nop(), nil, 1, h)
	errs := d.Handle(context.Background(), []events.Record{record(t, "Account-a", 0), record(t, "Account-a", 1)})
	if errors.Is(errs[0], events.ErrDeferred) {
		t.Errorf("the failing record itself must not be deferred: %v", errs[0])
	}
	if !errors.Is(errs[1], events.ErrDeferred) {
		t.Errorf("expected held back record deferred got %v", errs[1])
	}
}
