package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/jobs"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/search"
	"github.com/use-agent/harvest/webhook"
)

// PostSearch returns a handler for POST /api/v1/search.
//
// Search jobs run in the background like crawls and are polled through
// the same GET /crawl/:id endpoint.
func PostSearch(jobStore *jobs.Store, runner *search.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ScrapeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		job, err := jobStore.Create(c.Request.Context(), models.JobTypeSearch, "")
		if err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeStore, "job creation failed", err))
			return
		}

		go func() {
			ctx := context.Background()
			if err := runner.Run(ctx, job, &req); err != nil {
				slog.Error("search job failed", "job", job.ID, "error", err)
			}
			notifyJobDone(ctx, jobStore, job.ID, req.WebhookURL, req.WebhookSecret,
				webhook.EventSearchCompleted, webhook.EventSearchFailed, "")
		}()

		c.JSON(http.StatusOK, models.JobAcceptedResponse{
			Success: true,
			ID:      job.ID,
			Status:  models.JobPending,
		})
	}
}
