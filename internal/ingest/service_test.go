package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/tuneup/internal/events"
	"github.com/steveyegge/tuneup/internal/improvement"
	"github.com/steveyegge/tuneup/internal/logging"
	"github.com/steveyegge/tuneup/internal/status"
)

type fakeRecorder struct {
	got []events.Request
	err error
}

func (f *fakeRecorder) Record(req events.Request) (*events.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.got = append(f.got, req)
	return events.NewEvent(req, time.Now().UTC()), nil
}

func newTestService(rec Recorder) (*Service, *status.Hub) {
	hub := status.NewHub()
	return NewService(rec, status.NewTracker(), hub, logging.Discard()), hub
}

func TestRecordRejectsMissingType(t *testing.T) {
	rec := &fakeRecorder{}
	svc, _ := newTestService(rec)

	_, err := svc.Record(context.Background(), events.Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, events.ErrMissingType)
	assert.Empty(t, rec.got, "invalid requests never reach the store")

	_, err = svc.Record(context.Background(), events.Request{Type: "bogus"})
	assert.ErrorIs(t, err, events.ErrUnknownType)
}

func TestRecordUpdatesStatusAndBroadcasts(t *testing.T) {
	rec := &fakeRecorder{}
	svc, hub := newTestService(rec)
	ch, cancel := hub.Subscribe(4)
	defer cancel()

	event, err := svc.Record(context.Background(), events.NewUserActionRequest("u1", "s1", "click", "checkout"))
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	require.Len(t, rec.got, 1)

	assert.Equal(t, "recorded user_action: click on checkout", svc.Status().LastAction)

	n := <-ch
	assert.Equal(t, status.KindStatusChanged, n.Kind)
	assert.Equal(t, event.ID, n.Data["event_id"])
}

func TestRecordPropagatesStoreErrors(t *testing.T) {
	svc, _ := newTestService(&fakeRecorder{err: errors.New("event store is closed")})
	_, err := svc.Record(context.Background(), events.NewErrorRequest("s", "c", "boom"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record event")
}

func TestSetSuggestionStatus(t *testing.T) {
	tracker := status.NewTracker()
	tracker.ReplaceSuggestions([]*improvement.Improvement{{ID: "imp-1", Status: improvement.StatusPending}})
	svc := NewService(&fakeRecorder{}, tracker, nil, logging.Discard())

	snap, err := svc.SetSuggestionStatus(context.Background(), "imp-1", improvement.StatusApplied)
	require.NoError(t, err)
	assert.Equal(t, improvement.StatusApplied, snap.Suggestions[0].Status)

	_, err = svc.SetSuggestionStatus(context.Background(), "imp-1", "done")
	assert.Error(t, err)

	_, err = svc.SetSuggestionStatus(context.Background(), "nope", improvement.StatusRejected)
	assert.ErrorIs(t, err, status.ErrSuggestionNotFound)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		req  events.Request
		want string
	}{
		{events.NewPerformanceRequest("s", "load", 12), "recorded performance: load"},
		{events.NewCodeChangeRequest("a.go", ""), "recorded code_change: a.go"},
		{events.Request{Type: events.EventTypeError}, "recorded error event"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, describe(events.NewEvent(tt.req, time.Now())))
	}
}
