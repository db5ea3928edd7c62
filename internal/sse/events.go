// Package sse implements Server-Sent Events for live letter feeds.
package sse

import (
	"time"

	"github.com/armyletters/letters-server/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventConnected is the first event on every stream.
	EventConnected EventType = "connected"

	// EventLetterCreated represents a letter creation event.
	EventLetterCreated EventType = "letter.created"
	// EventLetterUpdated represents a change to an existing letter (likes, backfill).
	EventLetterUpdated EventType = "letter.updated"

	// EventLettersSnapshot carries the full head of a stream's query.
	EventLettersSnapshot EventType = "letters.snapshot"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
// The Data field contains the event payload as a JSON object for direct deserialization.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// Member restricts delivery to streams filtered to this addressee or to
	// "all". Empty means every stream (not sent to client).
	Member domain.Member `json:"-"`
}

// ConnectedEventData is the payload of the connected event.
type ConnectedEventData struct {
	ClientID string `json:"client_id"`
	Member   string `json:"member"`
	Sort     string `json:"sort"`
}

// LetterEventData is the data payload for letter events.
type LetterEventData struct {
	Letter *domain.Letter `json:"letter"`
}

// LettersSnapshotEventData is the data payload for snapshot events.
type LettersSnapshotEventData struct {
	Member  string           `json:"member"`
	Sort    string           `json:"sort"`
	Letters []*domain.Letter `json:"letters"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewConnectedEvent creates the greeting event for a stream.
func NewConnectedEvent(clientID string, q domain.Query) Event {
	return Event{
		Type: EventConnected,
		Data: ConnectedEventData{
			ClientID: clientID,
			Member:   q.Filter.String(),
			Sort:     string(q.Sort),
		},
		Timestamp: time.Now(),
	}
}

// NewLetterCreatedEvent creates a letter.created event.
func NewLetterCreatedEvent(letter *domain.Letter) Event {
	return Event{
		Type:      EventLetterCreated,
		Data:      LetterEventData{Letter: letter},
		Timestamp: time.Now(),
		Member:    letter.Member,
	}
}

// NewLetterUpdatedEvent creates a letter.updated event.
func NewLetterUpdatedEvent(letter *domain.Letter) Event {
	return Event{
		Type:      EventLetterUpdated,
		Data:      LetterEventData{Letter: letter},
		Timestamp: time.Now(),
		Member:    letter.Member,
	}
}

// NewLettersSnapshotEvent creates a letters.snapshot event for q.
func NewLettersSnapshotEvent(q domain.Query, letters []*domain.Letter) Event {
	if letters == nil {
		letters = []*domain.Letter{}
	}
	return Event{
		Type: EventLettersSnapshot,
		Data: LettersSnapshotEventData{
			Member:  q.Filter.String(),
			Sort:    string(q.Sort),
			Letters: letters,
		},
		Timestamp: time.Now(),
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Data:      HeartbeatEventData{ServerTime: time.Now()},
		Timestamp: time.Now(),
	}
}
