// Package membench holds the shared domain types of the memory-backend
// benchmark harness: events handed to adapters, query results, trial and
// scenario outcomes, and the capability vocabulary adapters advertise.
package membench

import (
	"time"

	"github.com/google/uuid"
)

// Event is a single record written into a memory backend. The backend
// returns an opaque content-addressed identifier; the harness keeps only
// that identifier, never a handle into the backend's storage.
type Event struct {
	Content     string         `json:"content"`
	EventType   string         `json:"event_type"`
	WorkspaceID string         `json:"workspace_id"`
	UserID      string         `json:"user_id,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ParentHash  string         `json:"parent_hash,omitempty"`
}

// NewEvent builds an Event with the timestamp set to now and a generated
// event_id metadata key. Metadata insertion order carries no meaning.
func NewEvent(content, eventType string) Event {
	return Event{
		Content:     content,
		EventType:   eventType,
		WorkspaceID: "default",
		Timestamp:   time.Now(),
		Metadata:    map[string]any{"event_id": uuid.NewString()},
	}
}

// UnixTimestamp returns the event time as fractional Unix seconds, the
// representation backends exchange on the wire.
func (e Event) UnixTimestamp() float64 {
	return float64(e.Timestamp.UnixNano()) / float64(time.Second)
}

// State is a backend's reconstructed view of its event log at a point in
// time, as returned by a temporal replay.
type State struct {
	Timestamp time.Time      `json:"timestamp"`
	Events    []Event        `json:"events"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ProvenanceChain is the causal hash chain a backend reports for one event.
type ProvenanceChain struct {
	TargetHash string           `json:"target_hash"`
	Chain      []map[string]any `json:"chain"`
	Verified   bool             `json:"verified"`
	Gaps       []string         `json:"gaps,omitempty"`
}
