package events

import (
	"time"

	"github.com/google/uuid"
)

// NewEvent stamps a request with a fresh ID and the given server time.
// The request is expected to have been validated already.
func NewEvent(req Request, now time.Time) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      req.Type,
		Timestamp: now,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Metadata:  req.Metadata.Clone(),
	}
}

// NewErrorRequest builds an ingestion request for an error event.
func NewErrorRequest(sessionID, component, errText string) Request {
	return Request{
		Type:      EventTypeError,
		SessionID: sessionID,
		Metadata: Metadata{
			Component: component,
			Error:     errText,
		},
	}
}

// NewPerformanceRequest builds an ingestion request for a timing measurement in milliseconds.
func NewPerformanceRequest(sessionID, action string, durationMs float64) Request {
	return Request{
		Type:      EventTypePerformance,
		SessionID: sessionID,
		Metadata: Metadata{
			Action:   action,
			Duration: &durationMs,
		},
	}
}

// NewCodeChangeRequest builds an ingestion request for a file change.
func NewCodeChangeRequest(file, operation string) Request {
	return Request{
		Type: EventTypeCodeChange,
		Metadata: Metadata{
			Action: operation,
			File:   file,
		},
	}
}

// NewUserActionRequest builds an ingestion request for a user action on a component.
func NewUserActionRequest(userID, sessionID, action, component string) Request {
	return Request{
		Type:      EventTypeUserAction,
		UserID:    userID,
		SessionID: sessionID,
		Metadata: Metadata{
			Action:    action,
			Component: component,
		},
	}
}
