package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryBusDeliversToTopicOnly(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	accounts, _ := bus.Subscribe(ctx, "account-events")
	defer accounts.Close()
	transfers, _ := bus.Subscribe(ctx, "transfer-events")
	defer transfers.Close()

	_ = bus.Publish(ctx, "account-events", Notification{EntityID: "a-1", State: "AccountOpened"})

	select {
	case msg := <-accounts.Messages():
		if msg.EntityID != "a-1" || msg.State != "AccountOpened" {
			t.Errorf("unexpected message %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a message on account-events")
	}
	select {
	case msg := <-transfers.Messages():
		t.Errorf("unexpected message on transfer-events: %+v", msg)
	default:
	}
}

func TestWaitFor(t *testing.T) {
	tests := []struct {
		name    string
		publish []Notification
		cancel  bool
		wantErr error
	}{
		{
			name:    "match skips other entities",
			publish: []Notification{{EntityID: "other", State: "x"}, {EntityID: "me", State: "TransferCompleted"}},
		},
		{
			name:    "timeout without match",
			publish: []Notification{{EntityID: "other", State: "x"}},
			wantErr: context.DeadlineExceeded,
		},
		{
			name:    "client cancel",
			cancel:  true,
			wantErr: context.Canceled,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewMemoryBus()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go func() {
				for bus.Subscribers("transfer-events") == 0 {
					time.Sleep(time.Millisecond)
				}
				for _, n := range tt.publish {
					_ = bus.Publish(ctx, "transfer-events", n)
				}
				if tt.cancel {
					cancel()
				}
			}()

			msg, err := WaitFor(ctx, bus, "transfer-events", "me", 100*time.Millisecond)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("[%s] expected %v got %v", tt.name, tt.wantErr, err)
				}
			} else {
				if err != nil {
					t.Fatalf("[%s] unexpected error %v", tt.name, err)
				}
				if msg.State != "TransferCompleted" {
					t.Errorf("[%s] expected TransferCompleted got %s", tt.name, msg.State)
				}
			}
			if n := bus.Subscribers("transfer-events"); n != 0 {
				t.Errorf("[%s] expected subscription released, %d still open", tt.name, n)
			}
		})
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	bus := NewMemoryBus()
	sub, _ := bus.Subscribe(context.Background(), "t")
	if err := sub.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, ok := <-sub.Messages(); ok {
		t.Error("expected closed channel")
	}
}
