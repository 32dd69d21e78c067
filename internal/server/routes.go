package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// setupRoutes configures the base API routes; modules register their
// own route groups through the module manager.
func setupRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"service": "designvault",
			})
		})
	}
}
