// Package bus distributes assistant events to observers. The orchestrator
// publishes what happens in each turn; metrics, the turn journal, the live
// monitor and websocket observers subscribe without the loop knowing them.
package bus

import (
	"time"

	"github.com/google/uuid"
)

// EventType names something that happened in the voice loop.
type EventType string

const (
	// Capture lifecycle
	EventWake           EventType = "wake"
	EventCaptureStarted EventType = "capture_started"
	EventCaptureDone    EventType = "capture_done"
	EventCaptureStale   EventType = "capture_stale"

	// Turn pipeline
	EventTranscript  EventType = "transcript"
	EventBargeIn     EventType = "barge_in"
	EventReply       EventType = "reply"
	EventSynthesized EventType = "synthesized"
	EventEnqueued    EventType = "playback_enqueued"
	EventTurnDone    EventType = "turn_complete"
	EventTurnError   EventType = "turn_error"

	// Loop lifecycle
	EventLoopStarted EventType = "loop_started"
	EventLoopStopped EventType = "loop_stopped"
)

// AllEventTypes lists every event the loop publishes.
var AllEventTypes = []EventType{
	EventWake, EventCaptureStarted, EventCaptureDone, EventCaptureStale,
	EventTranscript, EventBargeIn, EventReply, EventSynthesized, EventEnqueued,
	EventTurnDone, EventTurnError, EventLoopStarted, EventLoopStopped,
}

// Event is one occurrence in the voice loop.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	// Capture session that produced the event, if any.
	SessionID  string `json:"session_id,omitempty"`
	Generation uint64 `json:"generation,omitempty"`

	// Turn content
	Transcript string `json:"transcript,omitempty"`
	Reply      string `json:"reply,omitempty"`

	// Stage is the pipeline step an error or timing belongs to
	// (detect, recognize, chat, synthesize, enqueue).
	Stage      string `json:"stage,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Bytes      int    `json:"bytes,omitempty"`

	Provider string `json:"provider,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NewEvent returns an event of type t stamped with a fresh id and time.
func NewEvent(t EventType) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      t,
	}
}
