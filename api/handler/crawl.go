package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/crawler"
	"github.com/use-agent/harvest/jobs"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/webhook"
)

// PostCrawl returns a handler for POST /api/v1/crawl.
//
// The crawl runs in the background; the response carries the job ID for
// polling. Webhook events fire when the job reaches a terminal state.
func PostCrawl(jobStore *jobs.Store, cr *crawler.Crawler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CrawlRequest
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

		job, err := jobStore.Create(c.Request.Context(), models.JobTypeCrawl, req.URL)
		if err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeStore, "job creation failed", err))
			return
		}

		go func() {
			ctx := context.Background()
			if err := cr.Run(ctx, job, &req); err != nil {
				slog.Error("crawl job failed", "job", job.ID, "error", err)
			}
			notifyJobDone(ctx, jobStore, job.ID, req.WebhookURL, req.WebhookSecret,
				webhook.EventCrawlCompleted, webhook.EventCrawlFailed, webhook.EventCrawlCancelled)
		}()

		c.JSON(http.StatusOK, models.JobAcceptedResponse{
			Success: true,
			ID:      job.ID,
			Status:  models.JobPending,
		})
	}
}

// GetCrawl returns a handler for GET /api/v1/crawl/:id. Serves both crawl
// and search jobs; terminal responses are cached so repeated polls skip
// the result-list read.
func GetCrawl(jobStore *jobs.Store, respCache *cache.JobResponse) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")

		if respCache != nil {
			if body, hit := respCache.Get(c.Request.Context(), jobID); hit {
				c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(body))
				return
			}
		}

		job, err := jobStore.Get(c.Request.Context(), jobID)
		if err != nil {
			if errors.Is(err, jobs.ErrNotFound) {
				c.JSON(http.StatusNotFound, models.JobStatusResponse{
					Success: false,
					ID:      jobID,
					Error: &models.ErrorDetail{
						Code:    models.ErrCodeInvalidInput,
						Message: "job not found",
					},
				})
				return
			}
			respondError(c, models.NewScrapeError(models.ErrCodeStore, "job lookup failed", err))
			return
		}

		resp := models.JobStatusResponse{
			Success:        true,
			ID:             job.ID,
			Status:         job.Status,
			TotalPages:     job.TotalPages,
			CompletedPages: job.CompletedPages,
		}
		if job.Error != "" {
			resp.Error = &models.ErrorDetail{Code: models.ErrCodeInternal, Message: job.Error}
		}

		if terminal(job.Status) {
			results, err := jobStore.Results(c.Request.Context(), jobID)
			if err != nil {
				respondError(c, models.NewScrapeError(models.ErrCodeStore, "result read failed", err))
				return
			}
			resp.Data = results

			if respCache != nil {
				if body, err := json.Marshal(resp); err == nil {
					respCache.Set(c.Request.Context(), jobID, string(body))
				}
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}

// CancelCrawl returns a handler for DELETE /api/v1/crawl/:id.
func CancelCrawl(jobStore *jobs.Store, respCache *cache.JobResponse) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")

		if err := jobStore.Cancel(c.Request.Context(), jobID); err != nil {
			switch {
			case errors.Is(err, jobs.ErrNotFound):
				c.JSON(http.StatusNotFound, models.JobStatusResponse{
					Success: false,
					ID:      jobID,
					Error: &models.ErrorDetail{
						Code:    models.ErrCodeInvalidInput,
						Message: "job not found",
					},
				})
			case errors.Is(err, jobs.ErrTerminal):
				c.JSON(http.StatusConflict, models.JobStatusResponse{
					Success: false,
					ID:      jobID,
					Error: &models.ErrorDetail{
						Code:    models.ErrCodeInvalidInput,
						Message: "job already finished",
					},
				})
			default:
				respondError(c, models.NewScrapeError(models.ErrCodeStore, "cancel failed", err))
			}
			return
		}

		if respCache != nil {
			respCache.Invalidate(c.Request.Context(), jobID)
		}

		c.JSON(http.StatusOK, models.JobStatusResponse{
			Success: true,
			ID:      jobID,
			Status:  models.JobCancelled,
		})
	}
}

func terminal(status string) bool {
	return status == models.JobCompleted || status == models.JobFailed || status == models.JobCancelled
}

// notifyJobDone reads the job's final state and fires the matching webhook
// event. A missing webhook URL makes this a no-op.
func notifyJobDone(ctx context.Context, jobStore *jobs.Store, jobID, url, secret, completedEvent, failedEvent, cancelledEvent string) {
	if url == "" {
		return
	}
	job, err := jobStore.Get(ctx, jobID)
	if err != nil {
		slog.Warn("webhook skipped, job read failed", "job", jobID, "error", err)
		return
	}

	eventType := completedEvent
	switch job.Status {
	case models.JobFailed:
		eventType = failedEvent
	case models.JobCancelled:
		if cancelledEvent == "" {
			return
		}
		eventType = cancelledEvent
	}

	webhook.DeliverAsync(url, secret, webhook.NewEvent(eventType, jobID, gin.H{
		"status":          job.Status,
		"total_pages":     job.TotalPages,
		"completed_pages": job.CompletedPages,
		"error":           job.Error,
	}))
}
