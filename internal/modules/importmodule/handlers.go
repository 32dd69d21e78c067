package importmodule

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ferrow/designvault/internal/modules/importmodule/importer"
)

// scanRequest asks for a preview of a source directory
type scanRequest struct {
	SourcePath string                      `json:"source_path" binding:"required"`
	Options    *importer.ProcessingOptions `json:"options,omitempty"`
}

// createJobRequest creates a new import job
type createJobRequest struct {
	SourcePath    string                      `json:"source_path" binding:"required"`
	Options       *importer.ProcessingOptions `json:"options,omitempty"`
	SelectedPaths []string                    `json:"selected_paths,omitempty"`
}

// scheduleRequest sets a future start time, either absolute or relative
type scheduleRequest struct {
	At      *time.Time `json:"at,omitempty"`
	DelaySec int       `json:"delay_seconds,omitempty"`
}

func (m *Module) effectiveOptions(opts *importer.ProcessingOptions) importer.ProcessingOptions {
	if opts == nil {
		return importer.DefaultOptions()
	}
	return *opts
}

// scanSource previews a source directory: what would be imported and
// how the files group into projects.
func (m *Module) scanSource(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source_path is required"})
		return
	}

	opts := m.effectiveOptions(req.Options)
	if err := opts.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scan, projects, err := m.manager.Preview(req.SourcePath, opts)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"scan":     scan,
		"projects": projects,
	})
}

// createJob scans the source and persists a new pending job
func (m *Module) createJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source_path is required"})
		return
	}

	job, err := m.manager.CreateJob(req.SourcePath, m.effectiveOptions(req.Options), req.SelectedPaths)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, job)
}

// listJobs returns jobs newest-first, optionally filtered by status
func (m *Module) listJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	jobs, total, err := m.manager.Store().ListJobs(c.Query("status"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list import jobs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":   jobs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// getJob returns one job's full state
func (m *Module) getJob(c *gin.Context) {
	jobID, ok := m.jobID(c)
	if !ok {
		return
	}

	job, err := m.manager.Store().GetJob(jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Import job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// startJob begins executing a pending or scheduled job immediately
func (m *Module) startJob(c *gin.Context) {
	jobID, ok := m.jobID(c)
	if !ok {
		return
	}
	if err := m.manager.StartJob(jobID); err != nil {
		m.controlError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started", "job_id": jobID})
}

// scheduleJob sets a pending job to run later
func (m *Module) scheduleJob(c *gin.Context) {
	jobID, ok := m.jobID(c)
	if !ok {
		return
	}

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.At == nil && req.DelaySec <= 0) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide either at or delay_seconds"})
		return
	}

	at := time.Now().Add(time.Duration(req.DelaySec) * time.Second)
	if req.At != nil {
		at = *req.At
	}

	if err := m.scheduler.Schedule(jobID, at); err != nil {
		m.controlError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "scheduled", "job_id": jobID, "scheduled_for": at})
}

// pauseJob stops a running job after in-flight files complete
func (m *Module) pauseJob(c *gin.Context) {
	jobID, ok := m.jobID(c)
	if !ok {
		return
	}
	if err := m.manager.PauseJob(jobID); err != nil {
		m.controlError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "pausing", "job_id": jobID})
}

// resumeJob restarts a paused job from its checkpoint
func (m *Module) resumeJob(c *gin.Context) {
	jobID, ok := m.jobID(c)
	if !ok {
		return
	}
	if err := m.manager.ResumeJob(jobID); err != nil {
		m.controlError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resumed", "job_id": jobID})
}

// cancelJob cancels a job in any non-terminal state
func (m *Module) cancelJob(c *gin.Context) {
	jobID, ok := m.jobID(c)
	if !ok {
		return
	}
	if err := m.manager.CancelJob(jobID); err != nil {
		m.controlError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling", "job_id": jobID})
}

// getJobLogs returns the per-file audit rows, filterable by outcome
func (m *Module) getJobLogs(c *gin.Context) {
	jobID, ok := m.jobID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 500 {
		limit = 100
	}

	logs, total, err := m.manager.Store().ListLogs(jobID, c.Query("status"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load import logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":   logs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// getJobSummary returns outcome counts grouped by status and reason
func (m *Module) getJobSummary(c *gin.Context) {
	jobID, ok := m.jobID(c)
	if !ok {
		return
	}

	job, err := m.manager.Store().GetJob(jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Import job not found"})
		return
	}

	reasons, err := m.manager.Store().SummarizeReasons(jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to summarize import logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job":     job,
		"reasons": reasons,
	})
}

// getStatus reports active jobs and current host load
func (m *Module) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active_jobs": m.manager.ActiveJobs(),
		"system_load": m.monitor.Load(),
	})
}

func (m *Module) jobID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
		return 0, false
	}
	return uint(id), true
}

// controlError maps job control errors onto HTTP statuses
func (m *Module) controlError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, importer.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, importer.ErrJobConflict), errors.Is(err, importer.ErrTooManyJobs),
		errors.Is(err, importer.ErrInvalidStatus):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
