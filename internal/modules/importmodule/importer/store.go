package importer

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ferrow/designvault/internal/database"
)

// JobStore owns all database access for import jobs and their per-file
// logs. The runner and manager go through it exclusively so the
// checkpointing rules live in one place.
type JobStore struct {
	db *gorm.DB
}

// NewJobStore creates a store backed by the given database
func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{db: db}
}

// CreateJob persists a new job with its options and file selection
// frozen as JSON. Neither field is rewritten after this call.
func (s *JobStore) CreateJob(sourcePath string, opts ProcessingOptions, selection []ScannedFile) (*database.ImportJob, error) {
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode options: %w", err)
	}
	selJSON, err := json.Marshal(selection)
	if err != nil {
		return nil, fmt.Errorf("failed to encode selection: %w", err)
	}

	job := &database.ImportJob{
		SourcePath:    sourcePath,
		SourceType:    "folder",
		Status:        string(StatusPending),
		OptionsJSON:   string(optsJSON),
		SelectionJSON: string(selJSON),
		FilesTotal:    len(selection),
	}
	if err := s.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create import job: %w", err)
	}
	return job, nil
}

// GetJob loads a job by ID
func (s *JobStore) GetJob(jobID uint) (*database.ImportJob, error) {
	var job database.ImportJob
	if err := s.db.First(&job, jobID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ListJobs returns jobs newest-first, optionally filtered by status
func (s *JobStore) ListJobs(status string, limit, offset int) ([]database.ImportJob, int64, error) {
	query := s.db.Model(&database.ImportJob{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []database.ImportJob
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&jobs).Error
	return jobs, total, err
}

// JobsByStatus returns all jobs currently in any of the given statuses
func (s *JobStore) JobsByStatus(statuses ...JobStatus) ([]database.ImportJob, error) {
	vals := make([]string, len(statuses))
	for i, st := range statuses {
		vals[i] = string(st)
	}
	var jobs []database.ImportJob
	err := s.db.Where("status IN ?", vals).Find(&jobs).Error
	return jobs, err
}

// UpdateStatus transitions a job, maintaining the timestamp columns the
// way each status requires.
func (s *JobStore) UpdateStatus(jobID uint, status JobStatus, message string) error {
	updates := map[string]interface{}{
		"status":         string(status),
		"status_message": message,
	}
	now := time.Now()
	switch status {
	case StatusScanning, StatusProcessing:
		updates["started_at"] = &now
	case StatusSucceeded, StatusFailed, StatusCancelled:
		updates["completed_at"] = &now
	}
	if status == StatusFailed {
		updates["error_message"] = message
	}
	return s.db.Model(&database.ImportJob{}).Where("id = ?", jobID).Updates(updates).Error
}

// ScheduleJob marks a pending job as scheduled for a future time
func (s *JobStore) ScheduleJob(jobID uint, at time.Time) error {
	return s.db.Model(&database.ImportJob{}).Where("id = ?", jobID).Updates(map[string]interface{}{
		"status":        string(StatusScheduled),
		"scheduled_for": &at,
	}).Error
}

// DueScheduledJobs returns scheduled jobs whose fire time has passed
func (s *JobStore) DueScheduledJobs(now time.Time) ([]database.ImportJob, error) {
	var jobs []database.ImportJob
	err := s.db.Where("status = ? AND scheduled_for <= ?", string(StatusScheduled), now).
		Order("scheduled_for ASC").Find(&jobs).Error
	return jobs, err
}

// WriteCheckpoint persists the resume cursor together with the running
// counters in a single row update, so a crash can never observe
// counters ahead of a cursor or vice versa.
func (s *JobStore) WriteCheckpoint(jobID uint, cursor int, c Counters) error {
	return s.db.Model(&database.ImportJob{}).Where("id = ?", jobID).Updates(map[string]interface{}{
		"checkpoint_cursor": cursor,
		"files_attempted":   c.Attempted,
		"files_succeeded":   c.Succeeded,
		"files_failed":      c.Failed,
		"files_skipped":     c.Skipped,
		"files_duplicate":   c.Duplicate,
	}).Error
}

// DecodeOptions restores the frozen options snapshot from a job row
func (s *JobStore) DecodeOptions(job *database.ImportJob) (ProcessingOptions, error) {
	opts := DefaultOptions()
	if job.OptionsJSON == "" {
		return opts, nil
	}
	if err := json.Unmarshal([]byte(job.OptionsJSON), &opts); err != nil {
		return opts, fmt.Errorf("failed to decode job options: %w", err)
	}
	return opts, nil
}

// DecodeSelection restores the frozen file selection from a job row
func (s *JobStore) DecodeSelection(job *database.ImportJob) ([]ScannedFile, error) {
	if job.SelectionJSON == "" {
		return nil, nil
	}
	var files []ScannedFile
	if err := json.Unmarshal([]byte(job.SelectionJSON), &files); err != nil {
		return nil, fmt.Errorf("failed to decode job selection: %w", err)
	}
	return files, nil
}

// FileOutcome is the terminal result of one file, written as its log row
type FileOutcome struct {
	Index      int
	Path       string
	Status     LogStatus
	Reason     string
	Match      *Match
	DurationMs int64
	Steps      []string
	Details    map[string]interface{}
}

// AppendLog writes the terminal audit row for a file. The (job, index)
// unique constraint makes replays after recovery idempotent: a second
// write for the same file updates the existing row instead of
// duplicating it.
func (s *JobStore) AppendLog(jobID uint, out FileOutcome) error {
	row := database.ImportLog{
		JobID:      jobID,
		FileIndex:  out.Index,
		Path:       out.Path,
		Status:     string(out.Status),
		Reason:     out.Reason,
		DurationMs: out.DurationMs,
	}
	if out.Match != nil {
		row.DuplicateDesignID = out.Match.DesignID
		row.Similarity = out.Match.Similarity
	}
	if len(out.Steps) > 0 {
		steps, _ := json.Marshal(out.Steps)
		row.StepsCompleted = string(steps)
	}
	if len(out.Details) > 0 {
		details, _ := json.Marshal(out.Details)
		row.DetailsJSON = string(details)
	}

	err := s.db.Create(&row).Error
	if err == nil {
		return nil
	}
	// Unique violation on (job_id, file_index): recovery replayed a file
	// whose row survived the crash. Overwrite with the fresh outcome.
	return s.db.Model(&database.ImportLog{}).
		Where("job_id = ? AND file_index = ?", jobID, out.Index).
		Updates(map[string]interface{}{
			"path":                row.Path,
			"status":              row.Status,
			"reason":              row.Reason,
			"duplicate_design_id": row.DuplicateDesignID,
			"similarity":          row.Similarity,
			"duration_ms":         row.DurationMs,
			"steps_completed":     row.StepsCompleted,
			"details_json":        row.DetailsJSON,
		}).Error
}

// TerminalLogIndexes returns the file indexes of this job that already
// have a terminal log row. Crash recovery uses it to avoid re-ingesting
// files that finished after the last checkpoint.
func (s *JobStore) TerminalLogIndexes(jobID uint) (map[int]bool, error) {
	var indexes []int
	err := s.db.Model(&database.ImportLog{}).
		Where("job_id = ? AND status IN ?", jobID,
			[]string{string(LogSucceeded), string(LogFailed), string(LogSkipped), string(LogDuplicate)}).
		Pluck("file_index", &indexes).Error
	if err != nil {
		return nil, err
	}
	done := make(map[int]bool, len(indexes))
	for _, i := range indexes {
		done[i] = true
	}
	return done, nil
}

// TerminalCounters recomputes a job's counters from its log rows.
// Recovery trusts the logs over the last checkpoint, which may be up to
// one interval stale.
func (s *JobStore) TerminalCounters(jobID uint) (Counters, error) {
	type row struct {
		Status string
		N      int
	}
	var rows []row
	err := s.db.Model(&database.ImportLog{}).
		Select("status, COUNT(*) as n").
		Where("job_id = ?", jobID).
		Group("status").Scan(&rows).Error
	if err != nil {
		return Counters{}, err
	}

	var c Counters
	for _, r := range rows {
		switch LogStatus(r.Status) {
		case LogSucceeded:
			c.Succeeded = r.N
		case LogFailed:
			c.Failed = r.N
		case LogSkipped:
			c.Skipped = r.N
		case LogDuplicate:
			c.Duplicate = r.N
		}
	}
	c.Attempted = c.Total()
	return c, nil
}

// ClearStaleProcessing removes non-terminal log rows left behind by a
// crashed runner so the files can be attempted again cleanly.
func (s *JobStore) ClearStaleProcessing(jobID uint) error {
	return s.db.Where("job_id = ? AND status = ?", jobID, string(LogProcessing)).
		Delete(&database.ImportLog{}).Error
}

// ListLogs returns a job's audit rows in file order, optionally
// filtered by status, with pagination.
func (s *JobStore) ListLogs(jobID uint, status string, limit, offset int) ([]database.ImportLog, int64, error) {
	query := s.db.Model(&database.ImportLog{}).Where("job_id = ?", jobID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []database.ImportLog
	err := query.Order("file_index ASC").Limit(limit).Offset(offset).Find(&logs).Error
	return logs, total, err
}

// ReasonSummary is one row of the grouped failure/skip breakdown
type ReasonSummary struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// SummarizeReasons groups a job's log rows by status and reason, the
// "why did these 40 files skip" view.
func (s *JobStore) SummarizeReasons(jobID uint) ([]ReasonSummary, error) {
	var rows []ReasonSummary
	err := s.db.Model(&database.ImportLog{}).
		Select("status, reason, COUNT(*) as count").
		Where("job_id = ?", jobID).
		Group("status, reason").
		Order("count DESC").Scan(&rows).Error
	return rows, err
}
