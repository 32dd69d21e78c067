package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ferrow/designvault/internal/database"
	"github.com/ferrow/designvault/internal/events"
	"github.com/ferrow/designvault/internal/logger"
)

// IngestResult reports what ingestion produced for one file
type IngestResult struct {
	DesignID      string
	VersionNumber int
	Steps         []string
}

// Ingestor performs the actual per-file ingestion: storage, preview,
// versioning, library records. The library package implements it.
type Ingestor interface {
	IngestFile(ctx context.Context, file *ScannedFile, project *DetectedProject, opts ProcessingOptions) (*IngestResult, error)
}

// stopReason records why a run was interrupted
type stopReason int

const (
	stopNone stopReason = iota
	stopPause
	stopCancel
)

// JobRunner executes one import job: a fixed pool of workers pulls file
// indexes off a channel, runs the per-file pipeline, and reports
// outcomes back to a single collector that owns all log and checkpoint
// writes. Exactly opts.Concurrency files are in flight at any moment.
type JobRunner struct {
	job      *database.ImportJob
	store    *JobStore
	checker  *DuplicateChecker
	ingestor Ingestor
	eventBus events.EventBus
	scanner  *Scanner
	opts     ProcessingOptions

	retryBaseDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	reason stopReason
}

// NewJobRunner builds a runner for a job that is ready to execute
func NewJobRunner(job *database.ImportJob, store *JobStore, checker *DuplicateChecker, ingestor Ingestor, bus events.EventBus, opts ProcessingOptions, retryBaseDelay time.Duration) *JobRunner {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobRunner{
		job:            job,
		store:          store,
		checker:        checker,
		ingestor:       ingestor,
		eventBus:       bus,
		scanner:        NewScanner(),
		opts:           opts,
		retryBaseDelay: retryBaseDelay,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Pause asks the runner to stop after in-flight files finish. The
// checkpoint written on the way out makes the job resumable.
func (r *JobRunner) Pause() {
	r.mu.Lock()
	if r.reason == stopNone {
		r.reason = stopPause
	}
	r.mu.Unlock()
	r.cancel()
}

// Cancel asks the runner to stop permanently
func (r *JobRunner) Cancel() {
	r.mu.Lock()
	if r.reason == stopNone {
		r.reason = stopCancel
	}
	r.mu.Unlock()
	r.cancel()
}

func (r *JobRunner) stopRequested() stopReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}

// Run executes the job to a terminal or paused state. It blocks until
// done; the manager calls it on its own goroutine.
func (r *JobRunner) Run() (JobStatus, error) {
	if err := r.store.UpdateStatus(r.job.ID, StatusScanning, "preparing work list"); err != nil {
		return r.fail(err)
	}

	selection, err := r.store.DecodeSelection(r.job)
	if err != nil {
		return r.fail(err)
	}

	// Project grouping is a pure function of the frozen selection, so a
	// resumed run reconstructs exactly the groups the first run saw.
	detector := NewDetector(r.opts)
	projects := detector.Detect(&ScanResult{RootPath: r.job.SourcePath, Files: selection})
	projectOf := indexProjects(projects)

	// Files at indexes below the cursor are contiguously done. Files
	// above it may also have finished before a crash; their log rows
	// tell us which.
	done, err := r.store.TerminalLogIndexes(r.job.ID)
	if err != nil {
		return r.fail(err)
	}
	if err := r.store.ClearStaleProcessing(r.job.ID); err != nil {
		return r.fail(err)
	}
	counters, err := r.store.TerminalCounters(r.job.ID)
	if err != nil {
		return r.fail(err)
	}

	tracker := newCursorTracker(r.job.CheckpointCursor, done)

	var pending []int
	for i := r.job.CheckpointCursor; i < len(selection); i++ {
		if !done[i] {
			pending = append(pending, i)
		}
	}

	if err := r.store.UpdateStatus(r.job.ID, StatusProcessing, fmt.Sprintf("processing %d files", len(pending))); err != nil {
		return r.fail(err)
	}
	logger.Info("Import job %d: %d of %d files pending (cursor %d)",
		r.job.ID, len(pending), len(selection), r.job.CheckpointCursor)

	work := make(chan int)
	results := make(chan FileOutcome, r.opts.Concurrency)

	var wg sync.WaitGroup
	for w := 0; w < r.opts.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				results <- r.processFile(idx, &selection[idx], projectOf[selection[idx].Path])
			}
		}()
	}

	go func() {
		defer close(work)
		for _, idx := range pending {
			select {
			case work <- idx:
			case <-r.ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	// Single collector: log row first, then cursor advance, so every
	// index below the persisted cursor is guaranteed a terminal row.
	sinceCheckpoint := 0
	aborted := false
	for out := range results {
		if !TerminalLog(out.Status) {
			continue
		}
		if err := r.store.AppendLog(r.job.ID, out); err != nil {
			logger.Error("Import job %d: failed to write log for %s: %v", r.job.ID, out.Path, err)
		}
		counters = applyOutcome(counters, out.Status)
		cursor := tracker.Complete(out.Index)

		sinceCheckpoint++
		if sinceCheckpoint >= r.opts.CheckpointInterval {
			if err := r.store.WriteCheckpoint(r.job.ID, cursor, counters); err != nil {
				logger.Error("Import job %d: checkpoint write failed: %v", r.job.ID, err)
			}
			r.publishProgress(cursor, counters)
			sinceCheckpoint = 0
		}

		if out.Status == LogFailed && !r.opts.SkipFailedFiles {
			aborted = true
			r.cancel()
		}
	}

	// Final checkpoint covers whatever the interval left unflushed.
	cursor := tracker.Cursor()
	if err := r.store.WriteCheckpoint(r.job.ID, cursor, counters); err != nil {
		logger.Error("Import job %d: final checkpoint write failed: %v", r.job.ID, err)
	}

	switch {
	case aborted:
		return r.finish(StatusFailed, "aborted on file failure", counters)
	case r.stopRequested() == stopPause:
		if err := r.store.UpdateStatus(r.job.ID, StatusPaused, "paused"); err != nil {
			return StatusPaused, err
		}
		r.publishEvent(events.EventImportPaused, "Import paused", counters)
		return StatusPaused, nil
	case r.stopRequested() == stopCancel:
		return r.finish(StatusCancelled, "cancelled", counters)
	case counters.Failed > 0:
		return r.finish(StatusSucceeded, fmt.Sprintf("completed with %d failures", counters.Failed), counters)
	default:
		return r.finish(StatusSucceeded, "completed", counters)
	}
}

// processFile runs the full pipeline for one file. The outcome is
// terminal unless a stop request kept the file from starting or from
// retrying, in which case it comes back non-terminal and the collector
// drops it. Intermediate retry attempts never surface here; only the
// final attempt's result becomes the audit row.
func (r *JobRunner) processFile(idx int, f *ScannedFile, project *DetectedProject) FileOutcome {
	start := time.Now()
	out := FileOutcome{Index: idx, Path: f.Path}

	finish := func(status LogStatus, reason string) FileOutcome {
		out.Status = status
		out.Reason = reason
		out.DurationMs = time.Since(start).Milliseconds()
		return out
	}

	if r.ctx.Err() != nil {
		// Stop requested before this file started. A non-terminal status
		// tells the collector to drop the outcome so the file stays
		// pending for the next resume.
		return FileOutcome{Index: idx, Path: f.Path, Status: LogProcessing}
	}

	if err := r.scanner.HydrateHashes(f); err != nil {
		return finish(LogFailed, fmt.Sprintf("hash failed: %v", err))
	}
	out.Steps = append(out.Steps, "hash")

	if r.opts.DetectDuplicates {
		match, err := r.checker.Check(f)
		if err != nil {
			return finish(LogFailed, fmt.Sprintf("duplicate check failed: %v", err))
		}
		if match != nil {
			out.Match = match
			r.publishEvent(events.EventFileDuplicate, f.Path, Counters{})
			reason := fmt.Sprintf("%s duplicate (%.0f%% similar)", match.Kind, match.Similarity)
			return finish(LogDuplicate, reason)
		}
		out.Steps = append(out.Steps, "duplicate-check")
	}

	result, err := r.ingestWithRetries(f, project)
	if errors.Is(err, errStopped) {
		// Interrupted between retry attempts; same treatment as a file
		// that never started.
		return FileOutcome{Index: idx, Path: f.Path, Status: LogProcessing}
	}
	if err != nil {
		r.publishEvent(events.EventFileFailed, f.Path, Counters{})
		return finish(LogFailed, err.Error())
	}
	if result != nil {
		out.Steps = append(out.Steps, result.Steps...)
		out.Details = map[string]interface{}{"design_id": result.DesignID}
		if result.VersionNumber > 1 {
			out.Details["version_number"] = result.VersionNumber
		}
	}

	r.checker.Accept(f)
	return finish(LogSucceeded, "")
}

// errStopped marks an ingestion attempt that never ran because a stop
// was requested between retries. No terminal row is written for it, so
// the file stays pending for the next resume.
var errStopped = errors.New("stopped before ingestion attempt")

// ingestWithRetries attempts ingestion up to MaxRetries+1 times with a
// linearly growing delay. Permanent errors never retry. A started
// attempt always runs to its own completion: pause and cancel are
// cooperative and never force-kill in-flight ingestion, so the call
// gets a fresh context rather than the runner's stop context.
func (r *JobRunner) ingestWithRetries(f *ScannedFile, project *DetectedProject) (*IngestResult, error) {
	var lastErr error
	for attempt := 0; attempt <= r.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.retryBaseDelay * time.Duration(attempt)):
			case <-r.ctx.Done():
				return nil, errStopped
			}
		}

		result, err := r.ingestor.IngestFile(context.Background(), f, project, r.opts)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if IsPermanent(err) {
			break
		}
		logger.Debug("Import job %d: retrying %s after attempt %d: %v", r.job.ID, f.Path, attempt+1, err)
	}
	return nil, fmt.Errorf("ingest failed: %w", lastErr)
}

func (r *JobRunner) fail(err error) (JobStatus, error) {
	if uerr := r.store.UpdateStatus(r.job.ID, StatusFailed, err.Error()); uerr != nil {
		logger.Error("Import job %d: failed to record failure: %v", r.job.ID, uerr)
	}
	r.publishEvent(events.EventImportFailed, err.Error(), Counters{})
	return StatusFailed, err
}

func (r *JobRunner) finish(status JobStatus, message string, c Counters) (JobStatus, error) {
	if err := r.store.UpdateStatus(r.job.ID, status, message); err != nil {
		return status, err
	}
	switch status {
	case StatusSucceeded:
		r.publishEvent(events.EventImportCompleted, message, c)
	case StatusFailed:
		r.publishEvent(events.EventImportFailed, message, c)
	case StatusCancelled:
		r.publishEvent(events.EventImportCancelled, message, c)
	}
	logger.Info("Import job %d finished: %s (%d succeeded, %d failed, %d skipped, %d duplicate)",
		r.job.ID, status, c.Succeeded, c.Failed, c.Skipped, c.Duplicate)
	return status, nil
}

func (r *JobRunner) publishProgress(cursor int, c Counters) {
	if r.eventBus == nil {
		return
	}
	event := events.NewSystemEvent(events.EventImportProgress, "Import Progress",
		fmt.Sprintf("job %d at %d/%d", r.job.ID, cursor, r.job.FilesTotal))
	event.Data = map[string]interface{}{
		"job_id":    r.job.ID,
		"cursor":    cursor,
		"total":     r.job.FilesTotal,
		"succeeded": c.Succeeded,
		"failed":    c.Failed,
		"skipped":   c.Skipped,
		"duplicate": c.Duplicate,
	}
	r.eventBus.PublishAsync(event)
}

func (r *JobRunner) publishEvent(eventType events.EventType, message string, c Counters) {
	if r.eventBus == nil {
		return
	}
	event := events.NewSystemEvent(eventType, message, r.job.SourcePath)
	event.Data = map[string]interface{}{
		"job_id":      r.job.ID,
		"source_path": r.job.SourcePath,
		"succeeded":   c.Succeeded,
		"failed":      c.Failed,
	}
	r.eventBus.PublishAsync(event)
}

func applyOutcome(c Counters, status LogStatus) Counters {
	c.Attempted++
	switch status {
	case LogSucceeded:
		c.Succeeded++
	case LogFailed:
		c.Failed++
	case LogSkipped:
		c.Skipped++
	case LogDuplicate:
		c.Duplicate++
	}
	return c
}

// indexProjects maps each file path to its owning project
func indexProjects(projects []DetectedProject) map[string]*DetectedProject {
	byPath := make(map[string]*DetectedProject)
	for i := range projects {
		for _, f := range projects[i].Files {
			byPath[f.Path] = &projects[i]
		}
	}
	return byPath
}

// cursorTracker maintains the contiguous-completed-prefix invariant:
// Cursor() never counts past the first incomplete index, no matter what
// order the parallel workers finish in.
type cursorTracker struct {
	mu   sync.Mutex
	next int
	done map[int]bool
}

func newCursorTracker(start int, done map[int]bool) *cursorTracker {
	t := &cursorTracker{next: start, done: make(map[int]bool, len(done))}
	for i, ok := range done {
		if ok && i >= start {
			t.done[i] = true
		}
	}
	t.advance()
	return t
}

// Complete marks an index done and returns the updated cursor
func (t *cursorTracker) Complete(i int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done[i] = true
	t.advance()
	return t.next
}

// Cursor returns the current contiguous-prefix count
func (t *cursorTracker) Cursor() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next
}

func (t *cursorTracker) advance() {
	for t.done[t.next] {
		delete(t.done, t.next)
		t.next++
	}
}
