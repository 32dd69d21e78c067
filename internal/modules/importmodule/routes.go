package importmodule

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the import module routes
func (m *Module) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/import")
	{
		// Scan preview: inspect a source without creating a job
		api.POST("/scan", m.scanSource)

		// Job lifecycle
		api.POST("/jobs", m.createJob)
		api.GET("/jobs", m.listJobs)
		api.GET("/jobs/:id", m.getJob)
		api.POST("/jobs/:id/start", m.startJob)
		api.POST("/jobs/:id/schedule", m.scheduleJob)
		api.POST("/jobs/:id/pause", m.pauseJob)
		api.POST("/jobs/:id/resume", m.resumeJob)
		api.DELETE("/jobs/:id", m.cancelJob)

		// Per-file audit
		api.GET("/jobs/:id/logs", m.getJobLogs)
		api.GET("/jobs/:id/summary", m.getJobSummary)

		// Engine status and host load
		api.GET("/status", m.getStatus)
	}
}
