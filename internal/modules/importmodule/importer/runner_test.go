package importer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrow/designvault/internal/database"
)

// newTestRunner wires a runner around in-memory collaborators. The
// returned tree holds real files so hashing works.
func newTestRunner(t *testing.T, files map[string]string, opts ProcessingOptions) (*JobRunner, *JobStore, *stubIngestor, *database.ImportJob) {
	t.Helper()
	root := writeTree(t, files)

	scan, err := NewScanner().Scan(root, false)
	require.NoError(t, err)

	store := NewJobStore(testDB(t))
	job, err := store.CreateJob(root, opts, scan.Files)
	require.NoError(t, err)

	ingestor := newStubIngestor()
	checker := NewDuplicateChecker(newStubLibrary(), opts)
	runner := NewJobRunner(job, store, checker, ingestor, &MockEventBus{}, opts, time.Millisecond)
	return runner, store, ingestor, job
}

func manyFiles(n int) map[string]string {
	files := make(map[string]string, n)
	for i := 0; i < n; i++ {
		// Distinct content so nothing deduplicates.
		files[fmtFile(i)] = fmtFile(i) + " content"
	}
	return files
}

func fmtFile(i int) string {
	return "design" + string(rune('a'+i/26)) + string(rune('a'+i%26)) + ".svg"
}

func TestRunnerProcessesAllFiles(t *testing.T) {
	runner, store, ingestor, job := newTestRunner(t, manyFiles(12), DefaultOptions())

	status, err := runner.Run()
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, status)
	assert.Len(t, ingestor.ingestedPaths(), 12)

	loaded, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, loaded.FilesSucceeded)
	assert.Equal(t, 12, loaded.CheckpointCursor)
	assert.Zero(t, loaded.FilesFailed)

	_, total, err := store.ListLogs(job.ID, "", 100, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 12, total, "exactly one log row per file")
}

func TestRunnerRespectsConcurrencyBound(t *testing.T) {
	for _, n := range []int{1, 5, 20} {
		opts := DefaultOptions()
		opts.Concurrency = n

		runner, _, ingestor, _ := newTestRunner(t, manyFiles(40), opts)
		_, err := runner.Run()
		require.NoError(t, err)

		assert.LessOrEqual(t, ingestor.maxInFlight(), n,
			"concurrency %d exceeded: saw %d in flight", n, ingestor.maxInFlight())
		if n == 1 {
			assert.Equal(t, 1, ingestor.maxInFlight())
		}
	}
}

func TestRunnerDetectsDuplicatesWithinBatch(t *testing.T) {
	opts := DefaultOptions()
	// Serial processing makes the duplicate ordering deterministic.
	opts.Concurrency = 1

	runner, store, ingestor, job := newTestRunner(t, map[string]string{
		"first.svg":  "identical bytes",
		"second.svg": "identical bytes",
		"unique.svg": "different bytes",
	}, opts)

	status, err := runner.Run()
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, status)

	loaded, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.FilesDuplicate)
	assert.Equal(t, 2, loaded.FilesSucceeded)
	assert.Len(t, ingestor.ingestedPaths(), 2)
}

func TestRunnerRetriesTransientFailures(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxRetries = 2

	runner, store, ingestor, job := newTestRunner(t, map[string]string{
		"flaky.svg":  "flaky content",
		"stable.svg": "stable content",
	}, opts)

	// Fail twice, succeed on the third (final allowed) attempt.
	for _, f := range mustSelection(t, store, job) {
		if f.RelPath == "flaky.svg" {
			ingestor.failures[f.Path] = 2
		}
	}

	status, err := runner.Run()
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, status)

	loaded, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.FilesSucceeded)
	assert.Zero(t, loaded.FilesFailed)

	// Only the final attempt produces an audit row.
	_, total, err := store.ListLogs(job.ID, "", 100, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestRunnerExhaustsRetriesThenFailsFile(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxRetries = 1

	runner, store, ingestor, job := newTestRunner(t, map[string]string{
		"doomed.svg": "doomed content",
		"fine.svg":   "fine content",
	}, opts)

	for _, f := range mustSelection(t, store, job) {
		if f.RelPath == "doomed.svg" {
			ingestor.failures[f.Path] = 5
		}
	}

	status, err := runner.Run()
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, status, "skip-failed mode finishes despite failures")

	loaded, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.FilesFailed)
	assert.Equal(t, 1, loaded.FilesSucceeded)

	failed, _, err := store.ListLogs(job.ID, string(LogFailed), 10, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Reason, "flaky storage")
}

func TestRunnerPermanentErrorNeverRetries(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxRetries = 5

	runner, store, ingestor, job := newTestRunner(t, map[string]string{
		"corrupt.svg": "corrupt content",
	}, opts)

	for _, f := range mustSelection(t, store, job) {
		ingestor.permanent[f.Path] = true
	}

	_, err := runner.Run()
	require.NoError(t, err)

	loaded, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.FilesFailed)
}

func TestRunnerAbortsWhenSkipFailedDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.Concurrency = 1
	opts.MaxRetries = 0
	opts.SkipFailedFiles = false

	runner, store, ingestor, job := newTestRunner(t, manyFiles(6), opts)

	// Fail the first file in selection order.
	selection := mustSelection(t, store, job)
	ingestor.failures[selection[0].Path] = 10

	status, err := runner.Run()
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, status)

	loaded, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(StatusFailed), loaded.Status)
	assert.Equal(t, 1, loaded.FilesFailed)
	assert.Less(t, loaded.FilesSucceeded, 6, "abort must leave later files unprocessed")
}

func TestRunnerPauseCheckpointsAndResumeCompletes(t *testing.T) {
	opts := DefaultOptions()
	opts.Concurrency = 2
	opts.CheckpointInterval = 5

	runner, store, ingestor, job := newTestRunner(t, manyFiles(30), opts)

	// Hold workers until the pause request lands, so the run reliably
	// stops partway through.
	gate := make(chan struct{})
	ingestor.blockUntil = gate

	done := make(chan JobStatus, 1)
	go func() {
		status, _ := runner.Run()
		done <- status
	}()

	time.Sleep(50 * time.Millisecond)
	runner.Pause()
	close(gate)

	status := <-done
	assert.Equal(t, StatusPaused, status)

	paused, err := store.GetJob(job.ID)
	require.NoError(t, err)
	processed := paused.FilesSucceeded + paused.FilesFailed + paused.FilesSkipped + paused.FilesDuplicate
	assert.Less(t, processed, 30, "pause must stop before the end")
	assert.LessOrEqual(t, paused.CheckpointCursor, processed)

	// Resume with a fresh runner, as the manager would.
	ingestor.blockUntil = nil
	checker := NewDuplicateChecker(newStubLibrary(), opts)
	resumed := NewJobRunner(paused, store, checker, ingestor, &MockEventBus{}, opts, time.Millisecond)
	status, err = resumed.Run()
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, status)

	final, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, final.FilesSucceeded, "every file processed exactly once across pause/resume")
	assert.Equal(t, 30, final.CheckpointCursor)

	_, total, err := store.ListLogs(job.ID, "", 100, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 30, total, "no duplicate log rows after resume")
}

func TestRunnerPauseLetsInFlightIngestionFinish(t *testing.T) {
	opts := DefaultOptions()
	opts.Concurrency = 1

	runner, store, ingestor, job := newTestRunner(t, manyFiles(3), opts)

	// The stub aborts with its context error if that context is ever
	// cancelled, so a pause that killed in-flight ingestion would show
	// up here as a failed log row.
	gate := make(chan struct{})
	ingestor.blockUntil = gate

	done := make(chan JobStatus, 1)
	go func() {
		status, _ := runner.Run()
		done <- status
	}()

	time.Sleep(50 * time.Millisecond)
	runner.Pause()
	// Keep the gate shut a little longer so the pause lands while the
	// first file is still mid-ingest.
	time.Sleep(50 * time.Millisecond)
	close(gate)

	assert.Equal(t, StatusPaused, <-done)

	paused, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Zero(t, paused.FilesFailed, "in-flight file must finish, not fail")

	failed, _, err := store.ListLogs(job.ID, string(LogFailed), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, failed)

	ingestor.blockUntil = nil
	checker := NewDuplicateChecker(newStubLibrary(), opts)
	resumed := NewJobRunner(paused, store, checker, ingestor, &MockEventBus{}, opts, time.Millisecond)
	status, err := resumed.Run()
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, status)

	final, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, final.FilesSucceeded, "counts match an uninterrupted run")
	assert.Zero(t, final.FilesFailed)
}

func TestRunnerPauseDuringRetryBackoffKeepsFilePending(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxRetries = 2
	opts.Concurrency = 1

	_, store, ingestor, job := newTestRunner(t, map[string]string{
		"flaky.svg": "flaky content",
	}, opts)

	selection := mustSelection(t, store, job)
	ingestor.failures[selection[0].Path] = 1

	// A long backoff gives the pause a wide window between the failed
	// first attempt and the retry.
	checker := NewDuplicateChecker(newStubLibrary(), opts)
	runner := NewJobRunner(job, store, checker, ingestor, &MockEventBus{}, opts, 5*time.Second)

	done := make(chan JobStatus, 1)
	go func() {
		status, _ := runner.Run()
		done <- status
	}()

	time.Sleep(100 * time.Millisecond)
	runner.Pause()
	assert.Equal(t, StatusPaused, <-done)

	// No terminal row: the file stays pending, retries intact.
	_, total, err := store.ListLogs(job.ID, "", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)

	paused, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Zero(t, paused.FilesFailed)

	resumed := NewJobRunner(paused, store, checker, ingestor, &MockEventBus{}, opts, time.Millisecond)
	status, err := resumed.Run()
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, status)

	final, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.FilesSucceeded)
	assert.Zero(t, final.FilesFailed)
}

func TestRunnerRecoversAfterSimulatedCrash(t *testing.T) {
	opts := DefaultOptions()
	_, store, ingestor, job := newTestRunner(t, manyFiles(10), opts)

	selection := mustSelection(t, store, job)

	// Simulate a crash: files 0-3 done and checkpointed at 3 (the last
	// interval missed file 3's checkpoint), file 5 finished out of
	// order, file 6 died mid-flight.
	for _, i := range []int{0, 1, 2, 3, 5} {
		require.NoError(t, store.AppendLog(job.ID, FileOutcome{
			Index: i, Path: selection[i].Path, Status: LogSucceeded,
		}))
	}
	require.NoError(t, store.AppendLog(job.ID, FileOutcome{
		Index: 6, Path: selection[6].Path, Status: LogProcessing,
	}))
	require.NoError(t, store.WriteCheckpoint(job.ID, 3, Counters{Attempted: 3, Succeeded: 3}))
	require.NoError(t, store.UpdateStatus(job.ID, StatusPaused, "interrupted by shutdown"))

	crashed, err := store.GetJob(job.ID)
	require.NoError(t, err)

	checker := NewDuplicateChecker(newStubLibrary(), opts)
	recovered := NewJobRunner(crashed, store, checker, ingestor, &MockEventBus{}, opts, time.Millisecond)
	status, err := recovered.Run()
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, status)

	// Only files 4, 6, 7, 8, 9 needed work.
	assert.Len(t, ingestor.ingestedPaths(), 5)

	final, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, final.FilesSucceeded)
	assert.Equal(t, 10, final.CheckpointCursor)
}

func TestCursorTrackerContiguousPrefix(t *testing.T) {
	tracker := newCursorTracker(0, nil)

	assert.Equal(t, 1, tracker.Complete(0))
	assert.Equal(t, 1, tracker.Complete(2), "gap at 1 holds the cursor")
	assert.Equal(t, 1, tracker.Complete(3))
	assert.Equal(t, 4, tracker.Complete(1), "filling the gap releases the run")
	assert.Equal(t, 4, tracker.Cursor())
}

func TestCursorTrackerSeedsFromRecoveryState(t *testing.T) {
	tracker := newCursorTracker(3, map[int]bool{3: true, 4: true, 6: true})
	assert.Equal(t, 5, tracker.Cursor(), "completed indexes above the cursor collapse in")
	assert.Equal(t, 7, tracker.Complete(5))
}

func mustSelection(t *testing.T, store *JobStore, job *database.ImportJob) []ScannedFile {
	t.Helper()
	loaded, err := store.GetJob(job.ID)
	require.NoError(t, err)
	selection, err := store.DecodeSelection(loaded)
	require.NoError(t, err)
	return selection
}
