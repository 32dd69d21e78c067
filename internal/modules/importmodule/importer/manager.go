package importer

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ferrow/designvault/internal/database"
	"github.com/ferrow/designvault/internal/events"
	"github.com/ferrow/designvault/internal/logger"
)

// Manager supervises import jobs: it creates them, starts and stops
// their runners, enforces the active-job limit, and recovers jobs a
// previous process left running. At most one runner exists per job.
type Manager struct {
	db       *gorm.DB
	store    *JobStore
	eventBus events.EventBus
	library  LibraryLookup
	ingestor Ingestor

	maxActiveJobs  int
	retryBaseDelay time.Duration

	mu      sync.RWMutex
	runners map[uint]*JobRunner
	running sync.WaitGroup
}

// NewManager creates the job supervisor
func NewManager(db *gorm.DB, bus events.EventBus, library LibraryLookup, ingestor Ingestor, maxActiveJobs int, retryBaseDelay time.Duration) *Manager {
	return &Manager{
		db:             db,
		store:          NewJobStore(db),
		eventBus:       bus,
		library:        library,
		ingestor:       ingestor,
		maxActiveJobs:  maxActiveJobs,
		retryBaseDelay: retryBaseDelay,
		runners:        make(map[uint]*JobRunner),
	}
}

// Store exposes the job store for read-side handlers
func (m *Manager) Store() *JobStore {
	return m.store
}

// Preview scans a source directory and returns the detected project
// groupings without creating a job. Hashing is skipped to keep it fast.
func (m *Manager) Preview(sourcePath string, opts ProcessingOptions) (*ScanResult, []DetectedProject, error) {
	scan, err := NewScanner().Scan(sourcePath, false)
	if err != nil {
		return nil, nil, err
	}
	projects := NewDetector(opts).Detect(scan)
	return scan, projects, nil
}

// CreateJob scans the source, applies the optional path selection, and
// persists a new pending job with its options and file list frozen.
// Selection order follows the deterministic detection order, so the
// checkpoint cursor means the same thing on every resume.
func (m *Manager) CreateJob(sourcePath string, opts ProcessingOptions, selectedPaths []string) (*database.ImportJob, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	scan, projects, err := m.Preview(sourcePath, opts)
	if err != nil {
		return nil, err
	}

	var wanted map[string]bool
	if len(selectedPaths) > 0 {
		wanted = make(map[string]bool, len(selectedPaths))
		for _, p := range selectedPaths {
			wanted[p] = true
		}
	}

	var selection []ScannedFile
	for _, project := range projects {
		for _, f := range project.Files {
			if wanted == nil || wanted[f.Path] {
				selection = append(selection, f)
			}
		}
	}
	if len(selection) == 0 {
		return nil, fmt.Errorf("no importable files under %s", sourcePath)
	}

	job, err := m.store.CreateJob(sourcePath, opts, selection)
	if err != nil {
		return nil, err
	}
	logger.Info("Created import job %d for %s: %d files, %d scan errors",
		job.ID, sourcePath, len(selection), len(scan.Errors))
	return job, nil
}

// StartJob begins executing a pending, scheduled, or paused job. It
// returns ErrJobConflict if the job is already running or finished, and
// ErrTooManyJobs when the active-job limit is reached.
func (m *Manager) StartJob(jobID uint) error {
	job, err := m.store.GetJob(jobID)
	if err != nil {
		return err
	}

	switch JobStatus(job.Status) {
	case StatusPending, StatusScheduled, StatusPaused:
	default:
		return fmt.Errorf("%w: job %d is %s", ErrJobConflict, jobID, job.Status)
	}

	m.mu.Lock()
	if _, active := m.runners[jobID]; active {
		m.mu.Unlock()
		return fmt.Errorf("%w: job %d already has an active runner", ErrJobConflict, jobID)
	}
	if len(m.runners) >= m.maxActiveJobs {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d jobs active", ErrTooManyJobs, m.maxActiveJobs)
	}

	opts, err := m.store.DecodeOptions(job)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	checker := NewDuplicateChecker(m.library, opts)
	runner := NewJobRunner(job, m.store, checker, m.ingestor, m.eventBus, opts, m.retryBaseDelay)
	m.runners[jobID] = runner
	m.running.Add(1)
	m.mu.Unlock()

	resumed := JobStatus(job.Status) == StatusPaused

	go func() {
		defer m.running.Done()
		defer func() {
			m.mu.Lock()
			delete(m.runners, jobID)
			m.mu.Unlock()
		}()

		if _, err := runner.Run(); err != nil {
			logger.Error("Import job %d failed: %v", jobID, err)
		}
	}()

	eventType := events.EventImportStarted
	message := "Import started"
	if resumed {
		eventType = events.EventImportResumed
		message = "Import resumed"
	}
	m.eventBus.PublishAsync(events.NewSystemEvent(eventType, message, job.SourcePath))

	logger.Info("Started import job %d (%s)", jobID, job.SourcePath)
	return nil
}

// PauseJob asks a running job to stop after in-flight files complete
func (m *Manager) PauseJob(jobID uint) error {
	m.mu.RLock()
	runner, active := m.runners[jobID]
	m.mu.RUnlock()
	if !active {
		job, err := m.store.GetJob(jobID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: job %d is %s, not running", ErrInvalidStatus, jobID, job.Status)
	}
	runner.Pause()
	logger.Info("Pause requested for import job %d", jobID)
	return nil
}

// ResumeJob restarts a paused job from its checkpoint
func (m *Manager) ResumeJob(jobID uint) error {
	job, err := m.store.GetJob(jobID)
	if err != nil {
		return err
	}
	if JobStatus(job.Status) != StatusPaused {
		return fmt.Errorf("%w: job %d is %s, not paused", ErrInvalidStatus, jobID, job.Status)
	}
	return m.StartJob(jobID)
}

// CancelJob cancels a job in any non-terminal state. A running job
// stops cooperatively; a pending, scheduled, or paused job is cancelled
// directly. Cancelling a scheduled job before it fires means it never
// produces any log rows.
func (m *Manager) CancelJob(jobID uint) error {
	m.mu.RLock()
	runner, active := m.runners[jobID]
	m.mu.RUnlock()
	if active {
		runner.Cancel()
		logger.Info("Cancel requested for running import job %d", jobID)
		return nil
	}

	job, err := m.store.GetJob(jobID)
	if err != nil {
		return err
	}
	switch JobStatus(job.Status) {
	case StatusPending, StatusScheduled, StatusPaused:
		if err := m.store.UpdateStatus(jobID, StatusCancelled, "cancelled before execution"); err != nil {
			return err
		}
		m.eventBus.PublishAsync(events.NewSystemEvent(events.EventImportCancelled, "Import cancelled", job.SourcePath))
		return nil
	default:
		return fmt.Errorf("%w: job %d is %s", ErrInvalidStatus, jobID, job.Status)
	}
}

// ActiveJobs returns the IDs of jobs with live runners
func (m *Manager) ActiveJobs() []uint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uint, 0, len(m.runners))
	for id := range m.runners {
		ids = append(ids, id)
	}
	return ids
}

// RecoverOrphanedJobs handles jobs a previous process left in a running
// state. With autoResume they restart from their checkpoints; otherwise
// they are parked as paused for a manual resume.
func (m *Manager) RecoverOrphanedJobs(autoResume bool) error {
	orphaned, err := m.store.JobsByStatus(StatusScanning, StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to look up orphaned jobs: %w", err)
	}

	for _, job := range orphaned {
		logger.Warn("Found orphaned import job %d (%s) in state %s", job.ID, job.SourcePath, job.Status)
		if err := m.store.UpdateStatus(job.ID, StatusPaused, "interrupted by shutdown"); err != nil {
			logger.Error("Failed to park orphaned job %d: %v", job.ID, err)
			continue
		}
		if autoResume {
			if err := m.StartJob(job.ID); err != nil {
				logger.Error("Failed to auto-resume job %d: %v", job.ID, err)
			}
		}
	}

	if len(orphaned) > 0 {
		logger.Info("Recovered %d orphaned import jobs (auto-resume: %v)", len(orphaned), autoResume)
	}
	return nil
}

// Shutdown pauses all running jobs and waits for their runners to
// checkpoint and exit.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	for id, runner := range m.runners {
		logger.Info("Pausing import job %d for shutdown", id)
		runner.Pause()
	}
	m.mu.RUnlock()
	m.running.Wait()
}
