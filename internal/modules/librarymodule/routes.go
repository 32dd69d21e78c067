package librarymodule

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the library module routes
func (m *Module) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/library")
	{
		api.GET("/designs", m.listDesigns)
		api.GET("/designs/:id", m.getDesign)
		api.GET("/stats", m.getStats)
	}
}

// listDesigns returns the design catalog, paginated
func (m *Module) listDesigns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	designs, total, err := m.GetStore().ListDesigns(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list designs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"designs": designs,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// getDesign returns one design with its file versions and tags
func (m *Module) getDesign(c *gin.Context) {
	design, err := m.GetStore().GetDesign(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Design not found"})
		return
	}
	c.JSON(http.StatusOK, design)
}

// getStats returns library-wide counts
func (m *Module) getStats(c *gin.Context) {
	stats, err := m.GetStore().GetStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
