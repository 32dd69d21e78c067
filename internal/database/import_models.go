package database

import (
	"time"
)

// ImportJob is the durable record of one bulk import run. OptionsJSON and
// SelectionJSON are frozen at job creation and never rewritten, so a
// resumed run always sees the configuration and project groupings the job
// started with. CheckpointCursor is the count of contiguously completed
// files from the front of the selection: every file at an index below the
// cursor has a terminal ImportLog row.
type ImportJob struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	SourcePath string `gorm:"not null" json:"source_path"`
	SourceType string `gorm:"default:folder" json:"source_type"`

	Status        string `gorm:"index;default:pending" json:"status"`
	StatusMessage string `json:"status_message,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`

	OptionsJSON   string `json:"-"`
	SelectionJSON string `json:"-"`

	FilesTotal     int `json:"files_total"`
	FilesAttempted int `json:"files_attempted"`
	FilesSucceeded int `json:"files_succeeded"`
	FilesFailed    int `json:"files_failed"`
	FilesSkipped   int `json:"files_skipped"`
	FilesDuplicate int `json:"files_duplicate"`

	CheckpointCursor int `json:"checkpoint_cursor"`

	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ImportLog is the per-file audit row for an import job. A row is written
// once with a terminal status; only crash recovery may touch a row again,
// to clear a stale "processing" marker left by a dead runner.
type ImportLog struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	JobID     uint   `gorm:"index:idx_import_logs_job_file,unique,priority:1;not null" json:"job_id"`
	FileIndex int    `gorm:"index:idx_import_logs_job_file,unique,priority:2" json:"file_index"`
	Path      string `gorm:"not null" json:"path"`

	Status string `gorm:"index" json:"status"`
	Reason string `json:"reason,omitempty"`

	DuplicateDesignID string  `gorm:"size:36" json:"duplicate_design_id,omitempty"`
	Similarity        float64 `json:"similarity,omitempty"`

	DurationMs     int64  `json:"duration_ms"`
	StepsCompleted string `json:"steps_completed,omitempty"`
	DetailsJSON    string `json:"details,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
