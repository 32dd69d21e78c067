// Package importer implements the bulk import engine: directory
// scanning, project detection, duplicate checking, and the durable,
// resumable job runner that drives per-file ingestion.
package importer

import (
	"fmt"
)

// ScannedFile is an immutable snapshot of one filesystem entry found
// during a scan. Hashes are optional; when a scan defers hashing the
// runner computes them during the execution phase.
type ScannedFile struct {
	Path      string `json:"path"`
	RelPath   string `json:"rel_path"`
	Size      int64  `json:"size"`
	Extension string `json:"extension"` // lowercased, no leading dot

	ContentHash string `json:"content_hash,omitempty"`

	// PHash is the 64-bit perceptual hash of the file's preview image.
	// HasPHash distinguishes "not computable" from a legitimate zero hash.
	PHash    uint64 `json:"phash,omitempty"`
	HasPHash bool   `json:"has_phash,omitempty"`
}

// ScanError records one unreadable entry encountered during a scan
type ScanError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ScanResult is the outcome of walking a source directory
type ScanResult struct {
	RootPath       string         `json:"root_path"`
	Files          []ScannedFile  `json:"files"`
	TotalSize      int64          `json:"total_size"`
	FileTypeCounts map[string]int `json:"file_type_counts"`
	Errors         []ScanError    `json:"errors"`
}

// DetectionReason explains how a project grouping was formed
type DetectionReason string

const (
	ReasonVariant     DetectionReason = "same-basename-variant"
	ReasonFolder      DetectionReason = "folder-grouped"
	ReasonCrossFolder DetectionReason = "cross-folder-matched"
	ReasonSingleton   DetectionReason = "singleton"
)

// DetectedProject is one inferred logical design: a group of files that
// belong together, with a representative primary file for preview and
// metadata generation. Consumers treat it as read-only.
type DetectedProject struct {
	Name       string          `json:"name"`
	Files      []ScannedFile   `json:"files"`
	Primary    ScannedFile     `json:"primary_file"`
	Reason     DetectionReason `json:"detection_reason"`
	Confidence float64         `json:"confidence"`
}

// ProcessingOptions is the immutable configuration snapshot attached to
// a job at start time. Once a job has started its options are frozen
// for that run (persisted as JSON on the job row).
type ProcessingOptions struct {
	GeneratePreviews       bool `json:"generate_previews"`
	GenerateAIMetadata     bool `json:"generate_ai_metadata"`
	DetectDuplicates       bool `json:"detect_duplicates"`
	AutoPublish            bool `json:"auto_publish"`
	ExactDuplicatesOnly    bool `json:"exact_duplicates_only"`
	EnableProjectDetection bool `json:"enable_project_detection"`
	CrossFolderDetection   bool `json:"cross_folder_detection"`
	SkipFailedFiles        bool `json:"skip_failed_files"`

	NearDuplicateThreshold     int     `json:"near_duplicate_threshold"`
	ProjectConfidenceThreshold float64 `json:"project_confidence_threshold"`
	Concurrency                int     `json:"concurrency"`
	CheckpointInterval         int     `json:"checkpoint_interval"`
	MaxRetries                 int     `json:"max_retries"`

	// PreviewTypePriority orders extensions (no dot) by preference when
	// electing a project's primary file.
	PreviewTypePriority []string `json:"preview_type_priority"`
}

// DefaultOptions returns the options used when a caller supplies none
func DefaultOptions() ProcessingOptions {
	return ProcessingOptions{
		GeneratePreviews:           true,
		DetectDuplicates:           true,
		EnableProjectDetection:     true,
		CrossFolderDetection:       true,
		SkipFailedFiles:            true,
		NearDuplicateThreshold:     85,
		ProjectConfidenceThreshold: 0.5,
		Concurrency:                4,
		CheckpointInterval:         10,
		MaxRetries:                 2,
		PreviewTypePriority:        []string{"svg", "png", "jpg", "jpeg", "webp", "dxf", "pdf", "stl"},
	}
}

// Validate checks the numeric option ranges
func (o ProcessingOptions) Validate() error {
	if o.NearDuplicateThreshold < 70 || o.NearDuplicateThreshold > 100 {
		return fmt.Errorf("near_duplicate_threshold must be between 70 and 100, got %d", o.NearDuplicateThreshold)
	}
	if o.ProjectConfidenceThreshold < 0 || o.ProjectConfidenceThreshold > 1 {
		return fmt.Errorf("project_confidence_threshold must be between 0 and 1, got %g", o.ProjectConfidenceThreshold)
	}
	if o.Concurrency < 1 || o.Concurrency > 20 {
		return fmt.Errorf("concurrency must be between 1 and 20, got %d", o.Concurrency)
	}
	if o.CheckpointInterval < 5 || o.CheckpointInterval > 100 {
		return fmt.Errorf("checkpoint_interval must be between 5 and 100, got %d", o.CheckpointInterval)
	}
	if o.MaxRetries < 0 || o.MaxRetries > 10 {
		return fmt.Errorf("max_retries must be between 0 and 10, got %d", o.MaxRetries)
	}
	return nil
}

// JobStatus represents the possible states of an import job
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusScheduled  JobStatus = "scheduled"
	StatusScanning   JobStatus = "scanning"
	StatusProcessing JobStatus = "processing"
	StatusPaused     JobStatus = "paused"
	StatusSucceeded  JobStatus = "succeeded"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether a job status is final
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// LogStatus represents the per-file outcome recorded in the import log
type LogStatus string

const (
	LogProcessing LogStatus = "processing"
	LogSucceeded  LogStatus = "succeeded"
	LogFailed     LogStatus = "failed"
	LogSkipped    LogStatus = "skipped"
	LogDuplicate  LogStatus = "duplicate"
)

// TerminalLog reports whether a log status is a final outcome
func TerminalLog(s LogStatus) bool {
	switch s {
	case LogSucceeded, LogFailed, LogSkipped, LogDuplicate:
		return true
	}
	return false
}

// Counters aggregates per-file outcomes for a job
type Counters struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Duplicate int `json:"duplicate"`
}

// Total is the number of files with a terminal outcome
func (c Counters) Total() int {
	return c.Succeeded + c.Failed + c.Skipped + c.Duplicate
}
