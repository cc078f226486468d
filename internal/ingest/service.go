// Package ingest is the boundary where producers hand events to the agent.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/steveyegge/tuneup/internal/events"
	"github.com/steveyegge/tuneup/internal/improvement"
	"github.com/steveyegge/tuneup/internal/status"
)

// Recorder accepts validated events
type Recorder interface {
	Record(req events.Request) (*events.Event, error)
}

// Service validates ingestion requests, records them, and keeps the shared
// status in step.
type Service struct {
	recorder    Recorder
	tracker     *status.Tracker
	broadcaster status.Broadcaster
	logger      *slog.Logger
}

// NewService creates an ingestion service. broadcaster may be nil.
func NewService(recorder Recorder, tracker *status.Tracker, broadcaster status.Broadcaster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		recorder:    recorder,
		tracker:     tracker,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Record rejects malformed requests synchronously and records the rest.
// Persistence happens later in a batch.
func (s *Service) Record(ctx context.Context, req events.Request) (*events.Event, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	event, err := s.recorder.Record(req)
	if err != nil {
		return nil, fmt.Errorf("failed to record event: %w", err)
	}

	snap := s.tracker.SetLastAction(describe(event))
	status.Notify(s.broadcaster, status.Notification{
		Kind:     status.KindStatusChanged,
		Snapshot: &snap,
		Data:     map[string]any{"event_id": event.ID, "event_type": string(event.Type)},
	}, s.logger)

	s.logger.Debug("event recorded", "id", event.ID, "type", event.Type)
	return event, nil
}

// SetSuggestionStatus changes the review status of a suggestion, for
// example to mark it applied.
func (s *Service) SetSuggestionStatus(ctx context.Context, id string, st improvement.Status) (status.Snapshot, error) {
	if !st.IsValid() {
		return status.Snapshot{}, fmt.Errorf("unknown suggestion status %q", st)
	}
	snap, err := s.tracker.SetSuggestionStatus(id, st)
	if err != nil {
		return status.Snapshot{}, fmt.Errorf("suggestion %s: %w", id, err)
	}
	status.Notify(s.broadcaster, status.Notification{
		Kind:     status.KindSuggestionsChanged,
		Snapshot: &snap,
		Data:     map[string]any{"suggestion_id": id, "status": string(st)},
	}, s.logger)
	return snap, nil
}

// Status returns the current shared status
func (s *Service) Status() status.Snapshot {
	return s.tracker.Snapshot()
}

func describe(e *events.Event) string {
	switch {
	case e.Metadata.Action != "" && e.Metadata.Component != "":
		return fmt.Sprintf("recorded %s: %s on %s", e.Type, e.Metadata.Action, e.Metadata.Component)
	case e.Metadata.Action != "":
		return fmt.Sprintf("recorded %s: %s", e.Type, e.Metadata.Action)
	case e.Metadata.File != "":
		return fmt.Sprintf("recorded %s: %s", e.Type, e.Metadata.File)
	default:
		return fmt.Sprintf("recorded %s event", e.Type)
	}
}
