package executor

import (
	"context"
	"fmt"

	"github.com/steveyegge/tuneup/internal/queue"
	"github.com/steveyegge/tuneup/internal/status"
)

type jobHandler func(ctx context.Context, job *queue.Job) error

func (e *Executor) handlers() map[queue.JobType]jobHandler {
	return map[queue.JobType]jobHandler{
		queue.JobImprovementCycle: e.runImprovementCycle,
		queue.JobCodeScan:         e.runCodeScan,
		queue.JobPatternAnalysis:  e.runPatternAnalysis,
		queue.JobApplySuggestion:  e.runApplySuggestion,
	}
}

// Process runs one claimed job through the dispatch table. Whatever the
// outcome, the status record is returned to active with no current task.
// A handler error is logged and returned so the queue can retry the job.
func (e *Executor) Process(ctx context.Context, job *queue.Job) error {
	handler, ok := e.handlers()[job.Type]
	if !ok {
		return fmt.Errorf("%w: %s", queue.ErrUnknownJobType, job.Type)
	}

	err := handler(ctx, job)

	snap := e.tracker.ClearTask()
	if err != nil {
		e.logger.Error("job failed", "job_id", job.ID, "type", job.Type, "error", err)
		e.notify(status.KindStatusChanged, &snap, map[string]any{"job_id": job.ID, "error": err.Error()})
		return fmt.Errorf("%s job %s failed: %w", job.Type, job.ID, err)
	}

	snap = e.tracker.IncrementTasksCompleted()
	e.notify(status.KindStatusChanged, &snap, map[string]any{"job_id": job.ID})
	return nil
}

// begin marks the agent busy with job
func (e *Executor) begin(job *queue.Job, st status.AgentStatus, description string) {
	snap := e.tracker.SetActivity(st, &status.Task{ID: job.ID, Description: description})
	e.tracker.SetLastAction(description)
	e.notify(status.KindStatusChanged, &snap, map[string]any{"job_id": job.ID})
}

// progress persists a checkpoint on the job and mirrors it into the status
// record. A retried job resumes from the progress its earlier attempts
// reached, so checkpoints never move backwards. A failed persist is logged,
// not fatal to the job.
func (e *Executor) progress(ctx context.Context, job *queue.Job, p int) {
	p = max(p, job.Progress)
	if err := e.queue.UpdateProgress(ctx, job, p); err != nil {
		e.logger.Warn("failed to persist job progress", "job_id", job.ID, "progress", p, "error", err)
	}
	snap := e.tracker.SetProgress(job.ID, job.Progress)
	e.notify(status.KindTaskProgress, &snap, map[string]any{"job_id": job.ID, "progress": job.Progress})
}

func (e *Executor) runImprovementCycle(ctx context.Context, job *queue.Job) error {
	e.begin(job, status.StatusWorking, "Running improvement cycle")
	e.progress(ctx, job, 0)
	e.progress(ctx, job, 25)

	result, err := e.engine.RunCycle(ctx)
	if err != nil {
		return err
	}
	e.progress(ctx, job, 75)

	e.tracker.ReplaceSuggestions(result.Suggestions)
	snap := e.tracker.SetImprovementsToday(result.ImprovementsGenerated)
	e.notify(status.KindSuggestionsChanged, &snap, map[string]any{"count": len(snap.Suggestions)})
	e.progress(ctx, job, 100)

	snap = e.tracker.SetLastAction(fmt.Sprintf("Improvement cycle found %d patterns and generated %d improvements",
		result.PatternsFound, result.ImprovementsGenerated))
	e.notify(status.KindCycleComplete, &snap, map[string]any{
		"job_id":                 job.ID,
		"patterns_found":         result.PatternsFound,
		"improvements_generated": result.ImprovementsGenerated,
		"files_scanned":          result.ScanStats.FilesScanned,
	})
	return nil
}

func (e *Executor) runCodeScan(ctx context.Context, job *queue.Job) error {
	e.begin(job, status.StatusWorking, "Scanning codebase")
	e.progress(ctx, job, 0)

	result, err := e.engine.ScanCodebase(ctx)
	if err != nil {
		return err
	}
	e.progress(ctx, job, 100)

	e.tracker.SetLastAction(fmt.Sprintf("Scanned %d files, found %d issues",
		result.Stats.FilesScanned, len(result.Issues)))
	return nil
}

func (e *Executor) runPatternAnalysis(ctx context.Context, job *queue.Job) error {
	e.begin(job, status.StatusThinking, "Analyzing usage patterns")
	e.progress(ctx, job, 0)
	e.progress(ctx, job, 50)

	found, err := e.engine.AnalyzePatterns(ctx)
	if err != nil {
		return err
	}
	e.progress(ctx, job, 100)

	e.tracker.SetLastAction(fmt.Sprintf("Found %d patterns", len(found)))
	e.logger.Info("pattern analysis complete", "job_id", job.ID, "patterns", len(found))
	return nil
}

// runApplySuggestion is a placeholder: it reports progress and succeeds
// without changing anything.
func (e *Executor) runApplySuggestion(ctx context.Context, job *queue.Job) error {
	description := "Applying suggestion"
	if id := job.PayloadString("suggestion_id"); id != "" {
		description = fmt.Sprintf("Applying suggestion %s", id)
	}
	e.begin(job, status.StatusWorking, description)
	e.progress(ctx, job, 100)
	return nil
}
