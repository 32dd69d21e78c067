package importer

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ferrow/designvault/internal/events"
	"github.com/ferrow/designvault/internal/logger"
)

// Scheduler promotes scheduled jobs to running when their fire time
// arrives. It polls on a fixed interval rather than arming one timer
// per job, so restarts need no timer reconstruction: any job whose
// scheduled_for has passed is picked up on the next tick.
type Scheduler struct {
	manager  *Manager
	eventBus events.EventBus
	cron     *cron.Cron
	interval time.Duration
}

// NewScheduler creates a scheduler polling at the given interval
func NewScheduler(manager *Manager, bus events.EventBus, interval time.Duration) *Scheduler {
	return &Scheduler{
		manager:  manager,
		eventBus: bus,
		cron:     cron.New(),
		interval: interval,
	}
}

// Start begins the poll loop. An immediate first pass catches jobs that
// came due while the process was down.
func (s *Scheduler) Start() error {
	s.promoteDue()
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.promoteDue)
	if err != nil {
		return fmt.Errorf("failed to register scheduler poll: %w", err)
	}
	s.cron.Start()
	logger.Info("Import scheduler polling every %s", s.interval)
	return nil
}

// Stop halts the poll loop, waiting for an in-flight pass to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Schedule sets a pending job to run at the given time, or moves an
// already scheduled job's fire time. The time must be in the future and
// the job must not have started.
func (s *Scheduler) Schedule(jobID uint, at time.Time) error {
	if !at.After(time.Now()) {
		return fmt.Errorf("%w: scheduled time %s is in the past", ErrInvalidStatus, at.Format(time.RFC3339))
	}

	job, err := s.manager.Store().GetJob(jobID)
	if err != nil {
		return err
	}
	switch JobStatus(job.Status) {
	case StatusPending, StatusScheduled:
	default:
		return fmt.Errorf("%w: job %d is %s, only pending or scheduled jobs can be scheduled", ErrJobConflict, jobID, job.Status)
	}

	if err := s.manager.Store().ScheduleJob(jobID, at); err != nil {
		return err
	}

	event := events.NewSystemEvent(events.EventImportScheduled, "Import scheduled", at.Format(time.RFC3339))
	event.Data = map[string]interface{}{"job_id": jobID, "scheduled_for": at}
	s.eventBus.PublishAsync(event)

	logger.Info("Import job %d scheduled for %s", jobID, at.Format(time.RFC3339))
	return nil
}

// ScheduleIn is Schedule with a relative delay
func (s *Scheduler) ScheduleIn(jobID uint, delay time.Duration) (time.Time, error) {
	at := time.Now().Add(delay)
	return at, s.Schedule(jobID, at)
}

// promoteDue starts every scheduled job whose time has passed. Hitting
// the active-job limit leaves the remainder scheduled; they fire on a
// later tick when capacity frees up.
func (s *Scheduler) promoteDue() {
	due, err := s.manager.Store().DueScheduledJobs(time.Now())
	if err != nil {
		logger.Error("Scheduler poll failed: %v", err)
		return
	}

	for _, job := range due {
		if err := s.manager.StartJob(job.ID); err != nil {
			if errors.Is(err, ErrTooManyJobs) {
				logger.Debug("Deferring scheduled job %d: %v", job.ID, err)
				return
			}
			logger.Error("Failed to start scheduled job %d: %v", job.ID, err)
		}
	}
}
