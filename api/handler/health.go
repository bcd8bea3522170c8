package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/store"
)

// Health returns a handler for GET /api/v1/health.
//
// Degrades status when the state store stops answering pings; the process
// keeps serving scrapes from memory either way.
func Health(s store.Store, startTime time.Time, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		storeStatus := "ok"
		if err := s.Ping(c.Request.Context()); err != nil {
			status = "degraded"
			storeStatus = "unreachable"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Store:   storeStatus,
			Version: version,
		})
	}
}
