package events

import (
	"errors"
	"fmt"
	"time"
)

// EventType represents the kind of behavior an application reported.
type EventType string

const (
	// EventTypeUserAction indicates a deliberate user action (click, submit, navigation)
	EventTypeUserAction EventType = "user_action"
	// EventTypeCodeChange indicates a source file was created, modified, or deleted
	EventTypeCodeChange EventType = "code_change"
	// EventTypeError indicates an error surfaced in the application
	EventTypeError EventType = "error"
	// EventTypePerformance indicates a timing measurement
	EventTypePerformance EventType = "performance"
	// EventTypeUIInteraction indicates a passive UI interaction (hover, scroll, focus)
	EventTypeUIInteraction EventType = "ui_interaction"
)

// AllEventTypes lists every event type in a stable order.
var AllEventTypes = []EventType{
	EventTypeUserAction,
	EventTypeCodeChange,
	EventTypeError,
	EventTypePerformance,
	EventTypeUIInteraction,
}

// IsValid reports whether t is a known event type.
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeUserAction, EventTypeCodeChange, EventTypeError,
		EventTypePerformance, EventTypeUIInteraction:
		return true
	}
	return false
}

// UnknownError is the grouping key for error events that carry no error text.
const UnknownError = "Unknown error"

var (
	// ErrMissingType is returned when an ingestion request has no event type
	ErrMissingType = errors.New("event type is required")
	// ErrUnknownType is returned when an ingestion request names an unsupported event type
	ErrUnknownType = errors.New("unknown event type")
	// ErrNotFound is returned by point lookups for unknown or expired event ids
	ErrNotFound = errors.New("event not found")
)

// Event is a discrete, timestamped fact recorded by a producer.
// Events are immutable once recorded: the store assigns ID and Timestamp.
type Event struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the kind of event
	Type EventType `json:"type"`
	// Timestamp is the server time at which the event was recorded
	Timestamp time.Time `json:"timestamp"`
	// UserID identifies the user who produced the event, if known
	UserID string `json:"user_id,omitempty"`
	// SessionID groups events produced in one session, if known
	SessionID string `json:"session_id,omitempty"`
	// Metadata carries the typed core fields plus scalar extensions
	Metadata Metadata `json:"metadata"`
}

// Metadata is the typed core of an event's field bag. Anything producers send
// beyond the core goes into Extra, which only accepts scalar values.
type Metadata struct {
	Action    string `json:"action,omitempty"`
	Component string `json:"component,omitempty"`
	Route     string `json:"route,omitempty"`
	File      string `json:"file,omitempty"`
	Error     string `json:"error,omitempty"`
	// Duration is a measurement in milliseconds (performance events)
	Duration *float64 `json:"duration,omitempty"`
	// Extra holds producer-specific scalar fields (string, bool, number)
	Extra map[string]any `json:"extra,omitempty"`
}

// ErrorText returns the error grouping key, defaulting to UnknownError.
func (m Metadata) ErrorText() string {
	if m.Error == "" {
		return UnknownError
	}
	return m.Error
}

// HasDuration reports whether a duration measurement is present.
func (m Metadata) HasDuration() bool {
	return m.Duration != nil
}

// Validate checks that every extension value is a scalar.
func (m Metadata) Validate() error {
	for key, value := range m.Extra {
		if !isScalar(value) {
			return fmt.Errorf("metadata field %q must be a string, number, or bool (got %T)", key, value)
		}
	}
	if m.Duration != nil && *m.Duration < 0 {
		return fmt.Errorf("metadata duration cannot be negative (got %v)", *m.Duration)
	}
	return nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, float64, float32, int, int32, int64, uint, uint32, uint64:
		return true
	}
	return false
}

// Request is what producers submit: an event minus its ID and timestamp.
type Request struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Metadata  Metadata  `json:"metadata"`
}

// Validate rejects malformed requests before they reach the event store.
func (r Request) Validate() error {
	if r.Type == "" {
		return ErrMissingType
	}
	if !r.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, r.Type)
	}
	if err := r.Metadata.Validate(); err != nil {
		return err
	}
	return nil
}

// DayKey returns the calendar-day bucket (UTC) an instant belongs to.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
