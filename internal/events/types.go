// Package events provides the event bus used for import progress
// notifications, auditing, and the activity feed.
package events

import (
	"time"
)

// EventType represents the type of event
type EventType string

// System-wide event types
const (
	// Import job events
	EventImportStarted   EventType = "import.started"
	EventImportProgress  EventType = "import.progress"
	EventImportPaused    EventType = "import.paused"
	EventImportResumed   EventType = "import.resumed"
	EventImportCompleted EventType = "import.completed"
	EventImportFailed    EventType = "import.failed"
	EventImportCancelled EventType = "import.cancelled"
	EventImportScheduled EventType = "import.scheduled"

	// Per-file events
	EventFileDuplicate EventType = "import.file.duplicate"
	EventFileFailed    EventType = "import.file.failed"

	// Library events
	EventDesignCreated   EventType = "design.created"
	EventDesignVersioned EventType = "design.versioned"

	// Drop-folder watcher events
	EventWatchFileFound EventType = "watch.file.found"

	// System events
	EventSystemStarted EventType = "system.started"
	EventSystemStopped EventType = "system.stopped"

	// General events
	EventError   EventType = "error"
	EventWarning EventType = "warning"
	EventInfo    EventType = "info"
)

// EventPriority represents the priority level of an event
type EventPriority int

const (
	PriorityLow      EventPriority = 1
	PriorityNormal   EventPriority = 5
	PriorityHigh     EventPriority = 10
	PriorityCritical EventPriority = 20
)

// Event represents a system event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"` // system, watcher, job:id
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data"`
	Priority  EventPriority          `json:"priority"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventHandler represents a function that handles events
type EventHandler func(event Event) error

// EventFilter represents filters for event subscriptions
type EventFilter struct {
	Types   []EventType `json:"types,omitempty"`
	Sources []string    `json:"sources,omitempty"`
}

// Subscription represents an event subscription
type Subscription struct {
	ID            string       `json:"id"`
	Filter        EventFilter  `json:"filter"`
	Handler       EventHandler `json:"-"`
	Subscriber    string       `json:"subscriber"`
	Created       time.Time    `json:"created"`
	LastTriggered *time.Time   `json:"last_triggered,omitempty"`
	TriggerCount  int64        `json:"trigger_count"`
}

// EventStats represents statistics about events
type EventStats struct {
	TotalEvents         int64            `json:"total_events"`
	EventsByType        map[string]int64 `json:"events_by_type"`
	EventsBySource      map[string]int64 `json:"events_by_source"`
	RecentEvents        []Event          `json:"recent_events"`
	ActiveSubscriptions int              `json:"active_subscriptions"`
}

// EventBusConfig represents configuration for the event bus
type EventBusConfig struct {
	BufferSize      int `json:"buffer_size"`
	MaxStoredEvents int `json:"max_stored_events"`
}

// DefaultEventBusConfig returns default configuration
func DefaultEventBusConfig() EventBusConfig {
	return EventBusConfig{
		BufferSize:      1000,
		MaxStoredEvents: 1000,
	}
}

// ImportProgressData represents data for import.progress events
type ImportProgressData struct {
	JobID          uint    `json:"job_id"`
	FilesTotal     int     `json:"files_total"`
	FilesAttempted int     `json:"files_attempted"`
	FilesSucceeded int     `json:"files_succeeded"`
	FilesFailed    int     `json:"files_failed"`
	FilesSkipped   int     `json:"files_skipped"`
	FilesDuplicate int     `json:"files_duplicate"`
	Progress       float64 `json:"progress"`
}
