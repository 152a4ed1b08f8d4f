package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eaglebank/ledger/ledger-service/internal/domain"
	"github.com/eaglebank/ledger/shared/events"
	"github.com/eaglebank/ledger/shared/logger"
)

func newEventsRouter(bus events.Bus, timeout time.Duration) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewEventsHandler(bus, logger.Nop(), timeout)
	r.GET("/v1/accounts/:accountId/events", h.Wait(domain.TypeAccount, "accountId"))
	return r
}

func waitForSubscriber(t *testing.T, bus *events.MemoryBus, topic string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for bus.Subscribers(topic) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no subscriber registered")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWaitWritesMatchingNotification(t *testing.T) {
	bus := events.NewMemoryBus()
	r := newEventsRouter(bus, 2*time.Second)
	id := uuid.New()
	topic := events.ChannelFor(domain.TypeAccount)

	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/accounts/"+id.String()+"/events", nil))
	}()

	waitForSubscriber(t, bus, topic)
	ctx := context.Background()
	_ = bus.Publish(ctx, topic, events.Notification{EntityID: uuid.NewString(), State: "FundsDeposited"})
	_ = bus.Publish(ctx, topic, events.Notification{EntityID: id.String(), State: "AccountClosed"})
	<-done

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	want := `data: {"entityId":"` + id.String() + `","state":"AccountClosed"}` + "\n\n"
	if w.Body.String() != want {
		t.Errorf("expected %q, got %q", want, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected event stream content type, got %q", ct)
	}
	if n := bus.Subscribers(topic); n != 0 {
		t.Errorf("expected subscription released, %d open", n)
	}
}

func TestWaitTimesOut(t *testing.T) {
	bus := events.NewMemoryBus()
	r := newEventsRouter(bus, 20*time.Millisecond)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/accounts/"+uuid.NewString()+"/events", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("expected no frame, got %q", w.Body.String())
	}
	if n := bus.Subscribers(events.ChannelFor(domain.TypeAccount)); n != 0 {
		t.Errorf("expected subscription released, %d open", n)
	}
}

func TestWaitReleasesOnClientCancel(t *testing.T) {
	bus := events.NewMemoryBus()
	r := newEventsRouter(bus, time.Minute)
	topic := events.ChannelFor(domain.TypeAccount)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/"+uuid.NewString()+"/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ServeHTTP(w, req)
	}()

	waitForSubscriber(t, bus, topic)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after cancel")
	}
	if w.Body.Len() != 0 {
		t.Errorf("expected no frame, got %q", w.Body.String())
	}
	if n := bus.Subscribers(topic); n != 0 {
		t.Errorf("expected subscription released, %d open", n)
	}
}

func TestWaitRejectsBadID(t *testing.T) {
	r := newEventsRouter(events.NewMemoryBus(), time.Second)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/accounts/nope/events", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}
