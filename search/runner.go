package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/use-agent/harvest/jobs"
	"github.com/use-agent/harvest/models"
)

// Scraper runs one full single-page scrape.
type Scraper interface {
	Scrape(ctx context.Context, req *models.ScrapeRequest) (*models.ScrapeArtifact, error)
}

// Runner executes search jobs: query the provider, scrape each result,
// persist everything under the job.
type Runner struct {
	provider Provider
	scraper  Scraper
	jobs     *jobs.Store
}

// NewRunner builds a Runner.
func NewRunner(provider Provider, scraper Scraper, jobStore *jobs.Store) *Runner {
	return &Runner{provider: provider, scraper: scraper, jobs: jobStore}
}

// Run executes one search job to completion, owning its lifecycle.
func (r *Runner) Run(ctx context.Context, job *models.Job, req *models.SearchRequest) error {
	req.Defaults()
	cleanupCtx := context.WithoutCancel(ctx)

	if err := r.jobs.Start(ctx, job.ID); err != nil {
		if errors.Is(err, jobs.ErrTerminal) {
			return nil
		}
		return err
	}

	results, err := r.provider.Search(ctx, req.Query, req.Limit)
	if err != nil {
		_ = r.jobs.Fail(cleanupCtx, job.ID, "search failed: "+err.Error())
		return err
	}
	if len(results) == 0 {
		_ = r.jobs.Fail(cleanupCtx, job.ID, "no search results for query")
		return nil
	}
	_ = r.jobs.SetTotal(ctx, job.ID, len(results))

	for _, serp := range results {
		if ctx.Err() != nil {
			return nil
		}
		if status, err := r.jobs.Status(ctx, job.ID); err == nil && status == models.JobCancelled {
			slog.Info("search job cancelled", "job", job.ID)
			return nil
		}

		scrapeReq := req.ScrapeOptions
		scrapeReq.URL = serp.URL
		artifact, err := r.scraper.Scrape(ctx, &scrapeReq)
		if err != nil {
			slog.Warn("search result scrape failed", "job", job.ID, "url", serp.URL, "error", err)
			continue
		}

		// The SERP snippet stands in when the page itself had no metadata.
		if artifact.Metadata.Title == "" {
			artifact.Metadata.Title = serp.Title
		}
		if artifact.Metadata.Description == "" {
			artifact.Metadata.Description = serp.Description
		}

		result := &models.JobResult{
			URL:       serp.URL,
			Markdown:  artifact.Markdown,
			HTML:      artifact.CleanHTML,
			Links:     artifact.Links,
			Extract:   artifact.Extract,
			Metadata:  artifact.Metadata,
			CreatedAt: time.Now().UTC(),
		}
		if err := r.jobs.AppendResult(ctx, job.ID, result); err != nil {
			slog.Error("search result persist failed", "job", job.ID, "url", serp.URL, "error", err)
			continue
		}
		if _, err := r.jobs.IncrCompleted(ctx, job.ID); err != nil {
			slog.Warn("search progress update failed", "job", job.ID, "error", err)
		}
	}

	return r.jobs.Complete(cleanupCtx, job.ID)
}
