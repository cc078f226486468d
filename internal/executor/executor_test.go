package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/tuneup/internal/ai"
	"github.com/steveyegge/tuneup/internal/events"
	"github.com/steveyegge/tuneup/internal/eventstore"
	"github.com/steveyegge/tuneup/internal/health"
	"github.com/steveyegge/tuneup/internal/improvement"
	"github.com/steveyegge/tuneup/internal/logging"
	"github.com/steveyegge/tuneup/internal/patterns"
	"github.com/steveyegge/tuneup/internal/queue"
	"github.com/steveyegge/tuneup/internal/status"
	"github.com/steveyegge/tuneup/internal/storage/sqlite"
)

// recordingHub captures every notification in order
type recordingHub struct {
	mu    sync.Mutex
	items []status.Notification
}

func (h *recordingHub) Broadcast(n status.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, n)
}

func (h *recordingHub) kinds() []status.Kind {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]status.Kind, len(h.items))
	for i, n := range h.items {
		out[i] = n.Kind
	}
	return out
}

func (h *recordingHub) progress() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []int
	for _, n := range h.items {
		if n.Kind == status.KindTaskProgress {
			out = append(out, n.Data["progress"].(int))
		}
	}
	return out
}

type panickyHub struct{}

func (panickyHub) Broadcast(status.Notification) { panic("subscriber went away") }

// fakeEngine returns canned results and can fail a set number of times
type fakeEngine struct {
	mu        sync.Mutex
	cycle     *improvement.CycleResult
	failTimes int
	calls     map[string]int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		cycle: &improvement.CycleResult{Suggestions: []*improvement.Improvement{}},
		calls: make(map[string]int),
	}
}

func (f *fakeEngine) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	if f.failTimes > 0 {
		f.failTimes--
		return errors.New("engine exploded")
	}
	return nil
}

func (f *fakeEngine) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeEngine) RunCycle(ctx context.Context) (*improvement.CycleResult, error) {
	if err := f.record("cycle"); err != nil {
		return nil, err
	}
	return f.cycle, nil
}

func (f *fakeEngine) ScanCodebase(ctx context.Context) (*health.ScanResult, error) {
	if err := f.record("scan"); err != nil {
		return nil, err
	}
	return &health.ScanResult{Stats: health.ScanStats{FilesScanned: 3}}, nil
}

func (f *fakeEngine) AnalyzePatterns(ctx context.Context) ([]*patterns.Pattern, error) {
	if err := f.record("analyze"); err != nil {
		return nil, err
	}
	return []*patterns.Pattern{{ID: "p1"}}, nil
}

type fixture struct {
	exec    *Executor
	queue   *queue.Queue
	tracker *status.Tracker
	hub     *recordingHub
}

func newFixture(t *testing.T, engine Engine, store queue.JobStore) *fixture {
	t.Helper()
	q, err := queue.New(context.Background(), store, queue.Config{DefaultAttempts: 3, Logger: logging.Discard()})
	require.NoError(t, err)

	tracker := status.NewTracker()
	hub := &recordingHub{}
	exec, err := New(&Config{
		Queue:        q,
		Engine:       engine,
		Tracker:      tracker,
		Broadcaster:  hub,
		Logger:       logging.Discard(),
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	return &fixture{exec: exec, queue: q, tracker: tracker, hub: hub}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(&Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue is required")
}

func TestImprovementCycleProgressAndStatus(t *testing.T) {
	engine := newFakeEngine()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		engine.cycle.Suggestions = append(engine.cycle.Suggestions, &improvement.Improvement{
			ID:        string(rune('a' + i)),
			Title:     "improve",
			Status:    improvement.StatusPending,
			CreatedAt: created.Add(time.Duration(i) * time.Minute),
		})
	}
	engine.cycle.ImprovementsGenerated = 25
	engine.cycle.PatternsFound = 2

	f := newFixture(t, engine, queue.NewMemoryStore())
	ctx := context.Background()
	_, err := f.queue.Enqueue(ctx, queue.JobImprovementCycle, nil, queue.Options{})
	require.NoError(t, err)

	processed, err := f.exec.processNextJob(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	progress := f.hub.progress()
	require.NotEmpty(t, progress)
	assert.Equal(t, []int{0, 25, 75, 100}, progress)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}

	snap := f.tracker.Snapshot()
	assert.Equal(t, status.StatusActive, snap.Status)
	assert.Nil(t, snap.CurrentTask)
	assert.Len(t, snap.Suggestions, status.MaxSuggestions)
	assert.Equal(t, 25, snap.ImprovementsToday)
	assert.Equal(t, 1, snap.TasksCompleted)

	kinds := f.hub.kinds()
	assert.Contains(t, kinds, status.KindSuggestionsChanged)
	assert.Contains(t, kinds, status.KindCycleComplete)

	counts, err := f.queue.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Completed)
}

func TestImprovementsTodayIsOverwritten(t *testing.T) {
	engine := newFakeEngine()
	engine.cycle.ImprovementsGenerated = 4
	f := newFixture(t, engine, queue.NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.queue.Enqueue(ctx, queue.JobImprovementCycle, nil, queue.Options{})
		require.NoError(t, err)
		_, err = f.exec.processNextJob(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 4, f.tracker.Snapshot().ImprovementsToday)
	assert.Equal(t, 2, f.tracker.Snapshot().TasksCompleted)
}

func TestCodeScanLeavesSuggestionsAlone(t *testing.T) {
	engine := newFakeEngine()
	f := newFixture(t, engine, queue.NewMemoryStore())
	f.tracker.ReplaceSuggestions([]*improvement.Improvement{{ID: "keep", CreatedAt: time.Now()}})
	ctx := context.Background()

	_, err := f.queue.Enqueue(ctx, queue.JobCodeScan, nil, queue.Options{})
	require.NoError(t, err)
	_, err = f.exec.processNextJob(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 100}, f.hub.progress())
	snap := f.tracker.Snapshot()
	require.Len(t, snap.Suggestions, 1)
	assert.Equal(t, "keep", snap.Suggestions[0].ID)
	assert.Equal(t, "Scanned 3 files, found 0 issues", snap.LastAction)
	assert.Equal(t, 1, engine.count("scan"))
	assert.Zero(t, engine.count("cycle"))
}

func TestPatternAnalysisSetsThinking(t *testing.T) {
	engine := newFakeEngine()
	f := newFixture(t, engine, queue.NewMemoryStore())
	ctx := context.Background()

	_, err := f.queue.Enqueue(ctx, queue.JobPatternAnalysis, nil, queue.Options{})
	require.NoError(t, err)
	_, err = f.exec.processNextJob(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 50, 100}, f.hub.progress())

	f.hub.mu.Lock()
	first := f.hub.items[0]
	f.hub.mu.Unlock()
	require.NotNil(t, first.Snapshot)
	assert.Equal(t, status.StatusThinking, first.Snapshot.Status)
	require.NotNil(t, first.Snapshot.CurrentTask)
	assert.Equal(t, "Analyzing usage patterns", first.Snapshot.CurrentTask.Description)
}

func TestApplySuggestionPlaceholder(t *testing.T) {
	engine := newFakeEngine()
	f := newFixture(t, engine, queue.NewMemoryStore())
	ctx := context.Background()

	job, err := f.queue.Enqueue(ctx, queue.JobApplySuggestion, map[string]any{"suggestion_id": "imp-1"}, queue.Options{})
	require.NoError(t, err)
	_, err = f.exec.processNextJob(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int{100}, f.hub.progress())
	got, err := f.queue.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, got.Status)
	assert.Equal(t, "Applying suggestion imp-1", f.tracker.Snapshot().LastAction)
	assert.Zero(t, engine.count("cycle")+engine.count("scan")+engine.count("analyze"))
}

func TestFailedJobIsRetriedThenFails(t *testing.T) {
	engine := newFakeEngine()
	engine.failTimes = 10
	f := newFixture(t, engine, queue.NewMemoryStore())
	ctx := context.Background()

	job, err := f.queue.Enqueue(ctx, queue.JobCodeScan, nil, queue.Options{Attempts: 2})
	require.NoError(t, err)

	_, err = f.exec.processNextJob(ctx)
	require.NoError(t, err)
	got, err := f.queue.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusWaiting, got.Status)
	assert.Contains(t, got.LastError, "engine exploded")

	snap := f.tracker.Snapshot()
	assert.Equal(t, status.StatusActive, snap.Status)
	assert.Nil(t, snap.CurrentTask)
	assert.Zero(t, snap.TasksCompleted)

	_, err = f.exec.processNextJob(ctx)
	require.NoError(t, err)
	got, err = f.queue.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, got.Status)

	counts, err := f.queue.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Failed)

	info := f.exec.Info(ctx)
	require.NotNil(t, info.LastJob)
	assert.False(t, info.LastJob.Retried)
	assert.Contains(t, info.LastJob.Error, "engine exploded")
}

func TestRetriedCycleProgressNeverDecreases(t *testing.T) {
	engine := newFakeEngine()
	engine.failTimes = 1
	f := newFixture(t, engine, queue.NewMemoryStore())
	ctx := context.Background()

	job, err := f.queue.Enqueue(ctx, queue.JobImprovementCycle, nil, queue.Options{})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		processed, err := f.exec.processNextJob(ctx)
		require.NoError(t, err)
		require.True(t, processed)
	}

	counts, err := f.queue.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Completed)
	assert.Equal(t, 0, counts.Failed)

	progress := f.hub.progress()
	assert.Equal(t, []int{0, 25, 25, 25, 75, 100}, progress)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1], "progress went backwards: %v", progress)
	}

	stored, err := f.queue.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, stored.Progress)
}

func TestFailedJobDoesNotBlockNext(t *testing.T) {
	engine := newFakeEngine()
	engine.failTimes = 1
	f := newFixture(t, engine, queue.NewMemoryStore())
	ctx := context.Background()

	_, err := f.queue.Enqueue(ctx, queue.JobCodeScan, nil, queue.Options{Attempts: 1})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(ctx, queue.JobPatternAnalysis, nil, queue.Options{})
	require.NoError(t, err)

	require.True(t, f.exec.drain(ctx))

	counts, err := f.queue.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Failed)
	assert.Equal(t, 1, counts.Completed)
	assert.Equal(t, 1, f.tracker.Snapshot().TasksCompleted)
}

func TestBroadcastPanicDoesNotBreakJob(t *testing.T) {
	q, err := queue.New(context.Background(), queue.NewMemoryStore(), queue.Config{Logger: logging.Discard()})
	require.NoError(t, err)
	exec, err := New(&Config{
		Queue:       q,
		Engine:      newFakeEngine(),
		Tracker:     status.NewTracker(),
		Broadcaster: panickyHub{},
		Logger:      logging.Discard(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = q.Enqueue(ctx, queue.JobImprovementCycle, nil, queue.Options{})
	require.NoError(t, err)

	processed, err := exec.processNextJob(ctx)
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestStartProcessesEnqueuedJobsAndStops(t *testing.T) {
	engine := newFakeEngine()
	f := newFixture(t, engine, queue.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, f.exec.Start(ctx))
	assert.True(t, f.exec.IsRunning())
	require.Error(t, f.exec.Start(ctx), "second start is rejected")

	for i := 0; i < 3; i++ {
		_, err := f.queue.Enqueue(ctx, queue.JobPatternAnalysis, nil, queue.Options{})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		counts, err := f.queue.Counts(ctx)
		return err == nil && counts.Completed == 3
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, f.exec.Stop(stopCtx))
	assert.False(t, f.exec.IsRunning())
	assert.Equal(t, status.StatusOffline, f.tracker.Snapshot().Status)
}

func TestWorkerExitsWhenQueueCloses(t *testing.T) {
	f := newFixture(t, newFakeEngine(), queue.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, f.exec.Start(ctx))

	require.NoError(t, f.queue.Close(ctx))

	select {
	case <-f.exec.doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after queue close")
	}
}

// overlapScanner detects concurrent scans
type overlapScanner struct {
	active  atomic.Int32
	overlap atomic.Bool
	scans   atomic.Int32
}

func (s *overlapScanner) Scan(ctx context.Context) (*health.ScanResult, error) {
	if s.active.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.active.Add(-1)
	s.scans.Add(1)
	time.Sleep(20 * time.Millisecond)
	return &health.ScanResult{}, nil
}

type emptySource struct{}

func (emptySource) Flush(ctx context.Context) error { return nil }
func (emptySource) RecentEvents(ctx context.Context, limit int) ([]*events.Event, error) {
	return nil, nil
}

func TestBackToBackCyclesNeverOverlapScans(t *testing.T) {
	scanner := &overlapScanner{}
	engine := improvement.NewEngine(emptySource{}, patterns.NewAnalyzer(ai.Noop{}, logging.Discard()), scanner,
		improvement.Config{Logger: logging.Discard()})
	f := newFixture(t, engine, queue.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, f.exec.Start(ctx))
	_, err := f.queue.Enqueue(ctx, queue.JobImprovementCycle, nil, queue.Options{})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(ctx, queue.JobImprovementCycle, nil, queue.Options{})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return scanner.scans.Load() == 2 }, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, f.exec.Stop(stopCtx))
	assert.False(t, scanner.overlap.Load())
}

func TestPatternAnalysisEndToEnd(t *testing.T) {
	db, err := sqlite.New(sqlite.MemoryPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	clock := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	store := eventstore.New(db, eventstore.Config{
		FlushInterval: time.Hour,
		Logger:        logging.Discard(),
		Now:           func() time.Time { return clock },
	})
	defer func() { _ = store.Close(context.Background()) }()

	for i := 0; i < 5; i++ {
		_, err := store.Record(events.Request{Type: events.EventTypeError, Metadata: events.Metadata{Error: "X"}})
		require.NoError(t, err)
		clock = clock.Add(time.Second)
	}

	analyzer := patterns.NewAnalyzer(ai.Noop{}, logging.Discard())
	engine := &capturingEngine{Engine: improvement.NewEngine(store, analyzer, &overlapScanner{},
		improvement.Config{Logger: logging.Discard()})}
	f := newFixture(t, engine, db)
	ctx := context.Background()

	_, err = f.queue.Enqueue(ctx, queue.JobPatternAnalysis, nil, queue.Options{})
	require.NoError(t, err)
	_, err = f.exec.processNextJob(ctx)
	require.NoError(t, err)

	require.Len(t, engine.found, 1)
	p := engine.found[0]
	assert.Equal(t, patterns.PatternError, p.Type)
	assert.Equal(t, 5, p.Frequency)
	assert.InDelta(t, 0.5, p.Confidence, 1e-9)
	assert.Equal(t, "Found 1 patterns", f.tracker.Snapshot().LastAction)
}

// capturingEngine keeps the patterns the last analysis returned
type capturingEngine struct {
	*improvement.Engine
	found []*patterns.Pattern
}

func (c *capturingEngine) AnalyzePatterns(ctx context.Context) ([]*patterns.Pattern, error) {
	found, err := c.Engine.AnalyzePatterns(ctx)
	c.found = found
	return found, err
}
