package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Stream names
const (
	LedgerEventsStream = "ledger.events"
)

// Record is the wire form of a persisted domain event. It is what the event
// log stores and what the change feed carries.
type Record struct {
	ID        string          `json:"id"`
	StreamID  string          `json:"streamId"`
	EventType string          `json:"eventType"`
	Version   int64           `json:"version"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	TraceID   string          `json:"traceId,omitempty"`
	SpanID    string          `json:"spanId,omitempty"`
}

// RecordID is unique per (streamID, version).
func RecordID(streamID string, version int64) string {
	return fmt.Sprintf("%s:%d", streamID, version)
}

// Notification tells clients that an entity moved to a new state.
type Notification struct {
	EntityID string `json:"entityId"`
	State    string `json:"state"`
}

// EntityType returns the lower-cased aggregate prefix of a stream id,
// e.g. "Account-6f1c..." -> "account".
func EntityType(streamID string) string {
	prefix, _, _ := strings.Cut(streamID, "-")
	return strings.ToLower(prefix)
}

// Channel returns the notification channel for a stream id.
func Channel(streamID string) string {
	return ChannelFor(EntityType(streamID))
}

// ChannelFor returns the notification channel for an entity type.
func ChannelFor(entityType string) string {
	return strings.ToLower(entityType) + "-events"
}
