// Package control is the local Unix-socket interface to a running agent.
// Each connection carries one newline-delimited JSON Command and gets one
// Response back, except watch, which streams a Response per notification
// until either side hangs up.
package control

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/steveyegge/tuneup/internal/events"
	"github.com/steveyegge/tuneup/internal/improvement"
	"github.com/steveyegge/tuneup/internal/queue"
)

// Command types
const (
	CmdRecord              = "record"
	CmdStatus              = "status"
	CmdEnqueue             = "enqueue"
	CmdQueueStatus         = "queue_status"
	CmdRecentEvents        = "recent_events"
	CmdEventsByType        = "events_by_type"
	CmdTodayEvents         = "today_events"
	CmdGetEvent            = "get_event"
	CmdSetSuggestionStatus = "set_suggestion_status"
	CmdCleanup             = "cleanup"
	CmdWatch               = "watch"
)

// Command is a request sent to the agent
type Command struct {
	Type      string             `json:"type"`
	Event     *events.Request    `json:"event,omitempty"`      // record
	Job       *EnqueueArgs       `json:"job,omitempty"`        // enqueue
	ID        string             `json:"id,omitempty"`         // get_event, set_suggestion_status
	EventType events.EventType   `json:"event_type,omitempty"` // events_by_type
	Limit     int                `json:"limit,omitempty"`      // recent_events, events_by_type
	Status    improvement.Status `json:"status,omitempty"`     // set_suggestion_status
	Timestamp time.Time          `json:"timestamp"`
}

// EnqueueArgs describes a job to add
type EnqueueArgs struct {
	Type         queue.JobType  `json:"type"`
	Payload      map[string]any `json:"payload,omitempty"`
	Priority     int            `json:"priority,omitempty"`
	DelaySeconds int            `json:"delay_seconds,omitempty"`
	Attempts     int            `json:"attempts,omitempty"`
}

// Response is the agent's answer. Data holds the command's result as raw
// JSON so the client can decode it into the concrete type.
type Response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// DefaultLimit is used by event queries that don't give one
const DefaultLimit = 50
