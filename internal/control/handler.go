package control

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/tuneup/internal/events"
	"github.com/steveyegge/tuneup/internal/eventstore"
	"github.com/steveyegge/tuneup/internal/executor"
	"github.com/steveyegge/tuneup/internal/improvement"
	"github.com/steveyegge/tuneup/internal/queue"
	"github.com/steveyegge/tuneup/internal/status"
)

// Ingest is the event ingestion boundary
type Ingest interface {
	Record(ctx context.Context, req events.Request) (*events.Event, error)
	SetSuggestionStatus(ctx context.Context, id string, st improvement.Status) (status.Snapshot, error)
	Status() status.Snapshot
}

// EventQueries is the read side of the event store
type EventQueries interface {
	RecentEvents(ctx context.Context, limit int) ([]*events.Event, error)
	EventsByType(ctx context.Context, eventType events.EventType, limit int) ([]*events.Event, error)
	TodayEvents(ctx context.Context) ([]*events.Event, error)
	GetEvent(ctx context.Context, id string) (*events.Event, error)
	Cleanup(ctx context.Context) (eventstore.CleanupResult, error)
}

// Jobs is the queue surface exposed over the socket
type Jobs interface {
	Enqueue(ctx context.Context, jobType queue.JobType, payload map[string]any, opts queue.Options) (*queue.Job, error)
	Counts(ctx context.Context) (queue.Counts, error)
}

// Worker reports executor state
type Worker interface {
	Info(ctx context.Context) executor.Info
}

// Agent answers control commands by delegating to the agent's components.
// Worker is optional; without it status reports only the shared snapshot.
type Agent struct {
	Ingest Ingest
	Events EventQueries
	Jobs   Jobs
	Worker Worker
}

// Handle runs one non-streaming command and returns its result
func (a *Agent) Handle(ctx context.Context, cmd Command) (any, error) {
	switch cmd.Type {
	case CmdRecord:
		if cmd.Event == nil {
			return nil, fmt.Errorf("record requires an event")
		}
		return a.Ingest.Record(ctx, *cmd.Event)

	case CmdStatus:
		if a.Worker != nil {
			return a.Worker.Info(ctx), nil
		}
		return executor.Info{Agent: a.Ingest.Status(), Timestamp: time.Now()}, nil

	case CmdEnqueue:
		if cmd.Job == nil {
			return nil, fmt.Errorf("enqueue requires a job")
		}
		return a.Jobs.Enqueue(ctx, cmd.Job.Type, cmd.Job.Payload, queue.Options{
			Priority: cmd.Job.Priority,
			Delay:    time.Duration(cmd.Job.DelaySeconds) * time.Second,
			Attempts: cmd.Job.Attempts,
		})

	case CmdQueueStatus:
		return a.Jobs.Counts(ctx)

	case CmdRecentEvents:
		return a.Events.RecentEvents(ctx, limitOrDefault(cmd.Limit))

	case CmdEventsByType:
		if cmd.EventType == "" {
			return nil, fmt.Errorf("events_by_type requires event_type")
		}
		return a.Events.EventsByType(ctx, cmd.EventType, limitOrDefault(cmd.Limit))

	case CmdTodayEvents:
		return a.Events.TodayEvents(ctx)

	case CmdGetEvent:
		if cmd.ID == "" {
			return nil, fmt.Errorf("get_event requires id")
		}
		return a.Events.GetEvent(ctx, cmd.ID)

	case CmdSetSuggestionStatus:
		if cmd.ID == "" {
			return nil, fmt.Errorf("set_suggestion_status requires id")
		}
		if !cmd.Status.IsValid() {
			return nil, fmt.Errorf("invalid suggestion status %q", cmd.Status)
		}
		return a.Ingest.SetSuggestionStatus(ctx, cmd.ID, cmd.Status)

	case CmdCleanup:
		return a.Events.Cleanup(ctx)

	default:
		return nil, fmt.Errorf("unknown command type %q", cmd.Type)
	}
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
