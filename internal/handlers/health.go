package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/draftforge/draftforge-backend/internal/observability"
)

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Metrics serves the in-process generation counters.
func Metrics(c *gin.Context) {
	m := observability.Current()
	if m == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, m.Snapshot())
}
