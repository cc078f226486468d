package eventstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/steveyegge/tuneup/internal/events"
	"github.com/steveyegge/tuneup/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend records batches in memory and can be told to fail writes
type fakeBackend struct {
	mu       sync.Mutex
	batches  [][]*events.Event
	all      []*events.Event
	failNext int
	writes   chan int
	expiries []time.Time
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{writes: make(chan int, 100)}
}

func (f *fakeBackend) WriteEvents(ctx context.Context, batch []*events.Event, pointExpiresAt time.Time, recentLimit int) error {
	f.mu.Lock()
	if f.failNext > 0 {
		f.failNext--
		f.mu.Unlock()
		return errors.New("disk unavailable")
	}
	f.batches = append(f.batches, batch)
	f.all = append(f.all, batch...)
	f.expiries = append(f.expiries, pointExpiresAt)
	f.mu.Unlock()
	f.writes <- len(batch)
	return nil
}

func (f *fakeBackend) RecentEvents(ctx context.Context, limit int) ([]*events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*events.Event
	for i := len(f.all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.all[i])
	}
	return out, nil
}

func (f *fakeBackend) EventsByType(ctx context.Context, eventType events.EventType, limit int) ([]*events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*events.Event
	for i := len(f.all) - 1; i >= 0 && len(out) < limit; i-- {
		if f.all[i].Type == eventType {
			out = append(out, f.all[i])
		}
	}
	return out, nil
}

func (f *fakeBackend) EventsByDay(ctx context.Context, day string) ([]*events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*events.Event
	for _, e := range f.all {
		if events.DayKey(e.Timestamp) == day {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeBackend) GetEvent(ctx context.Context, id string, now time.Time) (*events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.all {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, events.ErrNotFound
}

func (f *fakeBackend) DeleteEventsBefore(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	return 0, nil
}

func (f *fakeBackend) PurgeExpiredPoints(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (f *fakeBackend) setFailNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
}

func (f *fakeBackend) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func newTestStore(t *testing.T, backend Backend, interval time.Duration) *Store {
	t.Helper()
	s := New(backend, Config{
		FlushBatchSize: 50,
		FlushInterval:  interval,
		RecentLimit:    1000,
		Logger:         logging.Discard(),
	})
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func errorRequest(text string) events.Request {
	return events.NewErrorRequest("s1", "checkout", text)
}

func TestRecordAssignsIDAndTimestamp(t *testing.T) {
	s := newTestStore(t, newFakeBackend(), time.Hour)

	before := time.Now().UTC()
	ev, err := s.Record(errorRequest("boom"))
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.Before(before))
	assert.Equal(t, 1, s.Pending())
}

func TestRecordRejectsMissingType(t *testing.T) {
	s := newTestStore(t, newFakeBackend(), time.Hour)

	_, err := s.Record(events.Request{Metadata: events.Metadata{Action: "click"}})
	assert.ErrorIs(t, err, events.ErrMissingType)
	assert.Equal(t, 0, s.Pending())
}

func TestBatchThresholdIsInclusive(t *testing.T) {
	backend := newFakeBackend()
	s := newTestStore(t, backend, time.Hour)

	for i := 0; i < 49; i++ {
		_, err := s.Record(errorRequest("boom"))
		require.NoError(t, err)
	}

	select {
	case n := <-backend.writes:
		t.Fatalf("49 events must not flush, got write of %d", n)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 49, s.Pending())

	_, err := s.Record(errorRequest("boom"))
	require.NoError(t, err)

	select {
	case n := <-backend.writes:
		assert.Equal(t, 50, n)
	case <-time.After(2 * time.Second):
		t.Fatal("the 50th event did not trigger a flush")
	}
	assert.Equal(t, 0, s.Pending())
}

func TestTimerFlushesSmallBatches(t *testing.T) {
	backend := newFakeBackend()
	s := newTestStore(t, backend, 20*time.Millisecond)

	_, err := s.Record(errorRequest("boom"))
	require.NoError(t, err)

	select {
	case n := <-backend.writes:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("timer flush did not happen")
	}
}

func TestRecentEventsNewestFirst(t *testing.T) {
	backend := newFakeBackend()
	s := newTestStore(t, backend, time.Hour)
	ctx := context.Background()

	var recorded []string
	for i := 0; i < 5; i++ {
		ev, err := s.Record(errorRequest(fmt.Sprintf("e%d", i)))
		require.NoError(t, err)
		recorded = append(recorded, ev.ID)
	}
	require.NoError(t, s.Flush(ctx))

	got, err := s.RecentEvents(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i, ev := range got {
		assert.Equal(t, recorded[4-i], ev.ID)
	}
}

func TestFailedFlushRequeuesBatchAtFront(t *testing.T) {
	backend := newFakeBackend()
	s := newTestStore(t, backend, time.Hour)
	ctx := context.Background()

	first, err := s.Record(errorRequest("first"))
	require.NoError(t, err)

	backend.setFailNext(1)
	require.Error(t, s.Flush(ctx))
	assert.Equal(t, 1, s.Pending())

	second, err := s.Record(errorRequest("second"))
	require.NoError(t, err)

	require.NoError(t, s.Flush(ctx))
	require.Equal(t, 1, backend.batchCount())

	backend.mu.Lock()
	batch := backend.batches[0]
	backend.mu.Unlock()
	require.Len(t, batch, 2)
	assert.Equal(t, first.ID, batch[0].ID, "requeued batch stays ahead of newer events")
	assert.Equal(t, second.ID, batch[1].ID)
}

func TestFlushSetsPointExpiry(t *testing.T) {
	backend := newFakeBackend()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	s := New(backend, Config{
		FlushInterval: time.Hour,
		PointTTL:      7 * 24 * time.Hour,
		Logger:        logging.Discard(),
		Now:           func() time.Time { return now },
	})
	defer func() { _ = s.Close(context.Background()) }()

	_, err := s.Record(errorRequest("boom"))
	require.NoError(t, err)
	require.NoError(t, s.Flush(context.Background()))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.expiries, 1)
	assert.Equal(t, now.Add(7*24*time.Hour), backend.expiries[0])
}

func TestConcurrentRecordAndFlushLoseNothing(t *testing.T) {
	backend := newFakeBackend()
	s := New(backend, Config{FlushBatchSize: 7, FlushInterval: 5 * time.Millisecond, Logger: logging.Discard()})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = s.Record(errorRequest("boom"))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, s.Close(context.Background()))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Len(t, backend.all, 400)

	seen := make(map[string]bool)
	for _, e := range backend.all {
		assert.False(t, seen[e.ID], "duplicate event %s", e.ID)
		seen[e.ID] = true
	}
}

func TestCloseFlushesAndRejects(t *testing.T) {
	backend := newFakeBackend()
	s := New(backend, Config{FlushInterval: time.Hour, Logger: logging.Discard()})

	_, err := s.Record(errorRequest("boom"))
	require.NoError(t, err)
	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, 1, backend.batchCount())

	_, err = s.Record(errorRequest("late"))
	assert.ErrorIs(t, err, ErrClosed)

	// Second close is a no-op
	require.NoError(t, s.Close(context.Background()))
}

func TestQueryGuards(t *testing.T) {
	s := newTestStore(t, newFakeBackend(), time.Hour)
	ctx := context.Background()

	got, err := s.RecentEvents(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.EventsByType(ctx, "telemetry", 10)
	assert.ErrorIs(t, err, events.ErrUnknownType)
}

func TestTodayEventsUsesStoreClock(t *testing.T) {
	backend := newFakeBackend()
	day := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	clock := day
	s := New(backend, Config{FlushInterval: time.Hour, Logger: logging.Discard(), Now: func() time.Time { return clock }})
	defer func() { _ = s.Close(context.Background()) }()
	ctx := context.Background()

	_, err := s.Record(errorRequest("yesterday"))
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))

	clock = day.Add(24 * time.Hour)
	today, err := s.Record(errorRequest("today"))
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))

	got, err := s.TodayEvents(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, today.ID, got[0].ID)
}

func TestCloseReportsFailedFinalFlush(t *testing.T) {
	backend := newFakeBackend()
	s := New(backend, Config{FlushInterval: time.Hour, Logger: logging.Discard()})

	_, err := s.Record(errorRequest("boom"))
	require.NoError(t, err)

	backend.setFailNext(1)
	err = s.Close(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk unavailable")
	assert.Zero(t, backend.batchCount())

	_, err = s.Record(errorRequest("late"))
	assert.ErrorIs(t, err, ErrClosed)

	// The failure sticks; a second close does not retry the write
	require.Error(t, s.Close(context.Background()))
	assert.Zero(t, backend.batchCount())
}
