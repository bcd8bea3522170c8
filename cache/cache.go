// Package cache provides the two response caches: scrape artifacts keyed
// by URL and requested formats, and serialized job responses keyed by job
// ID. Both live in the shared store so cache hits survive process
// restarts and are visible to every worker.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/store"
)

// ContentKey derives the content-cache key from the URL and the sorted
// format list, so format order never splits the cache.
func ContentKey(url string, formats []string) string {
	sorted := make([]string, len(formats))
	copy(sorted, formats)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte("|"))
	h.Write([]byte(strings.Join(sorted, ",")))
	return "cache:content:" + hex.EncodeToString(h.Sum(nil))
}

// Content caches scrape artifacts for repeat requests.
type Content struct {
	store store.Store
	ttl   time.Duration
}

// NewContent creates the content cache with the given TTL.
func NewContent(s store.Store, ttl time.Duration) *Content {
	return &Content{store: s, ttl: ttl}
}

// Get returns the cached artifact for the request, if any. Interactive
// requests (actions, screenshots, LLM extraction) bypass the cache.
func (c *Content) Get(ctx context.Context, req *models.ScrapeRequest) (*models.ScrapeArtifact, bool) {
	if !req.Cacheable() {
		return nil, false
	}
	raw, err := c.store.Get(ctx, ContentKey(req.URL, req.Formats))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("content cache read failed", "url", req.URL, "error", err)
		}
		return nil, false
	}
	var artifact models.ScrapeArtifact
	if err := json.Unmarshal([]byte(raw), &artifact); err != nil {
		return nil, false
	}
	return &artifact, true
}

// Set stores an artifact. Only genuine successes are cached; artifacts
// derived from best-partial fallbacks must not mask a later clean fetch.
func (c *Content) Set(ctx context.Context, req *models.ScrapeRequest, artifact *models.ScrapeArtifact) {
	if !req.Cacheable() || artifact == nil || artifact.Blocked || artifact.Empty() {
		return
	}
	payload, err := json.Marshal(artifact)
	if err != nil {
		return
	}
	if err := c.store.SetTTL(ctx, ContentKey(req.URL, req.Formats), string(payload), c.ttl); err != nil {
		slog.Warn("content cache write failed", "url", req.URL, "error", err)
	}
}

// JobResponse caches serialized status-endpoint bodies for finished jobs,
// sparing the store a full result-list read per poll.
type JobResponse struct {
	store store.Store
	ttl   time.Duration
}

// NewJobResponse creates the job-response cache with the given TTL.
func NewJobResponse(s store.Store, ttl time.Duration) *JobResponse {
	return &JobResponse{store: s, ttl: ttl}
}

func jobResponseKey(jobID string) string { return "cache:job:" + jobID }

// Get returns the cached response body for a job.
func (c *JobResponse) Get(ctx context.Context, jobID string) (string, bool) {
	body, err := c.store.Get(ctx, jobResponseKey(jobID))
	if err != nil {
		return "", false
	}
	return body, true
}

// Set stores a job's serialized response body.
func (c *JobResponse) Set(ctx context.Context, jobID, body string) {
	if err := c.store.SetTTL(ctx, jobResponseKey(jobID), body, c.ttl); err != nil {
		slog.Warn("job response cache write failed", "job", jobID, "error", err)
	}
}

// Invalidate drops a job's cached response. Called on cancellation so a
// stale completed-looking body is never served.
func (c *JobResponse) Invalidate(ctx context.Context, jobID string) {
	if err := c.store.Del(ctx, jobResponseKey(jobID)); err != nil {
		slog.Warn("job response cache invalidation failed", "job", jobID, "error", err)
	}
}
