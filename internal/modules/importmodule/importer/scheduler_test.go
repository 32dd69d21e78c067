package importer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleSetsJobStatus(t *testing.T) {
	manager := newTestManager(t, testDB(t), newStubIngestor(), 4)
	scheduler := NewScheduler(manager, &MockEventBus{}, time.Minute)

	job, err := manager.CreateJob(writeTree(t, manyFiles(2)), DefaultOptions(), nil)
	require.NoError(t, err)

	at := time.Now().Add(time.Hour)
	require.NoError(t, scheduler.Schedule(job.ID, at))

	loaded, err := manager.Store().GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(StatusScheduled), loaded.Status)
	require.NotNil(t, loaded.ScheduledFor)
	assert.WithinDuration(t, at, *loaded.ScheduledFor, time.Second)
}

func TestRescheduleMovesFireTime(t *testing.T) {
	manager := newTestManager(t, testDB(t), newStubIngestor(), 4)
	scheduler := NewScheduler(manager, &MockEventBus{}, time.Minute)

	job, err := manager.CreateJob(writeTree(t, manyFiles(2)), DefaultOptions(), nil)
	require.NoError(t, err)
	require.NoError(t, scheduler.Schedule(job.ID, time.Now().Add(time.Hour)))

	// Scheduling again before the job fires just moves the fire time.
	later := time.Now().Add(2 * time.Hour)
	require.NoError(t, scheduler.Schedule(job.ID, later))

	loaded, err := manager.Store().GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(StatusScheduled), loaded.Status)
	require.NotNil(t, loaded.ScheduledFor)
	assert.WithinDuration(t, later, *loaded.ScheduledFor, time.Second)
}

func TestScheduleRejectsPastTime(t *testing.T) {
	manager := newTestManager(t, testDB(t), newStubIngestor(), 4)
	scheduler := NewScheduler(manager, &MockEventBus{}, time.Minute)

	job, err := manager.CreateJob(writeTree(t, manyFiles(2)), DefaultOptions(), nil)
	require.NoError(t, err)

	err = scheduler.Schedule(job.ID, time.Now().Add(-time.Minute))
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestScheduleConflictsAreSynchronous(t *testing.T) {
	ingestor := newStubIngestor()
	manager := newTestManager(t, testDB(t), ingestor, 4)
	scheduler := NewScheduler(manager, &MockEventBus{}, time.Minute)

	job, err := manager.CreateJob(writeTree(t, manyFiles(2)), DefaultOptions(), nil)
	require.NoError(t, err)
	require.NoError(t, manager.StartJob(job.ID))
	waitForStatus(t, manager.Store(), job.ID, StatusSucceeded)

	err = scheduler.Schedule(job.ID, time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrJobConflict, "only pending jobs can be scheduled")
}

func TestScheduledJobFiresWhenDue(t *testing.T) {
	ingestor := newStubIngestor()
	manager := newTestManager(t, testDB(t), ingestor, 4)
	scheduler := NewScheduler(manager, &MockEventBus{}, time.Minute)

	job, err := manager.CreateJob(writeTree(t, manyFiles(3)), DefaultOptions(), nil)
	require.NoError(t, err)
	require.NoError(t, scheduler.Schedule(job.ID, time.Now().Add(20*time.Millisecond)))

	time.Sleep(40 * time.Millisecond)
	scheduler.promoteDue()

	waitForStatus(t, manager.Store(), job.ID, StatusSucceeded)
	assert.Len(t, ingestor.ingestedPaths(), 3)
}

func TestScheduledJobCancelledBeforeFiringLeavesNoTrace(t *testing.T) {
	ingestor := newStubIngestor()
	manager := newTestManager(t, testDB(t), ingestor, 4)
	scheduler := NewScheduler(manager, &MockEventBus{}, time.Minute)

	job, err := manager.CreateJob(writeTree(t, manyFiles(3)), DefaultOptions(), nil)
	require.NoError(t, err)
	require.NoError(t, scheduler.Schedule(job.ID, time.Now().Add(20*time.Millisecond)))
	require.NoError(t, manager.CancelJob(job.ID))

	time.Sleep(40 * time.Millisecond)
	scheduler.promoteDue()
	time.Sleep(20 * time.Millisecond)

	loaded, err := manager.Store().GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(StatusCancelled), loaded.Status)
	assert.Empty(t, ingestor.ingestedPaths())

	_, total, err := manager.Store().ListLogs(job.ID, "", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total, "a cancelled schedule never writes log rows")
}

func TestScheduleInComputesAbsoluteTime(t *testing.T) {
	manager := newTestManager(t, testDB(t), newStubIngestor(), 4)
	scheduler := NewScheduler(manager, &MockEventBus{}, time.Minute)

	job, err := manager.CreateJob(writeTree(t, manyFiles(2)), DefaultOptions(), nil)
	require.NoError(t, err)

	at, err := scheduler.ScheduleIn(job.ID, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), at, time.Second)
}

func TestPromoteDueDefersWhenAtCapacity(t *testing.T) {
	ingestor := newStubIngestor()
	ingestor.blockUntil = make(chan struct{})
	manager := newTestManager(t, testDB(t), ingestor, 1)
	scheduler := NewScheduler(manager, &MockEventBus{}, time.Minute)

	running, err := manager.CreateJob(writeTree(t, manyFiles(2)), DefaultOptions(), nil)
	require.NoError(t, err)
	require.NoError(t, manager.StartJob(running.ID))

	queued, err := manager.CreateJob(writeTree(t, manyFiles(2)), DefaultOptions(), nil)
	require.NoError(t, err)
	require.NoError(t, scheduler.Schedule(queued.ID, time.Now().Add(10*time.Millisecond)))

	time.Sleep(20 * time.Millisecond)
	scheduler.promoteDue()

	loaded, err := manager.Store().GetJob(queued.ID)
	require.NoError(t, err)
	assert.Equal(t, string(StatusScheduled), loaded.Status, "deferred job stays scheduled for the next tick")

	close(ingestor.blockUntil)
	waitForStatus(t, manager.Store(), running.ID, StatusSucceeded)

	scheduler.promoteDue()
	waitForStatus(t, manager.Store(), queued.ID, StatusSucceeded)
}
