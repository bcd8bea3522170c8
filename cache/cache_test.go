package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/store"
)

func TestContentKeyFormatOrderInsensitive(t *testing.T) {
	a := ContentKey("https://example.com", []string{"markdown", "links"})
	b := ContentKey("https://example.com", []string{"links", "markdown"})
	assert.Equal(t, a, b)

	c := ContentKey("https://example.com", []string{"markdown"})
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, ContentKey("https://other.com", []string{"markdown", "links"}))
}

func TestContentRoundTrip(t *testing.T) {
	c := NewContent(store.NewMemory(), time.Minute)
	ctx := context.Background()
	req := &models.ScrapeRequest{URL: "https://example.com", Formats: []string{"markdown"}}
	artifact := &models.ScrapeArtifact{
		Markdown:   "# Hello",
		SourceTier: "tls-client",
		Metadata:   models.PageMetadata{SourceURL: "https://example.com", StatusCode: 200},
	}

	_, hit := c.Get(ctx, req)
	assert.False(t, hit)

	c.Set(ctx, req, artifact)
	got, hit := c.Get(ctx, req)
	require.True(t, hit)
	assert.Equal(t, "# Hello", got.Markdown)
	assert.Equal(t, "tls-client", got.SourceTier)
	assert.Equal(t, 200, got.Metadata.StatusCode)
}

func TestContentSkipsInteractiveRequests(t *testing.T) {
	c := NewContent(store.NewMemory(), time.Minute)
	ctx := context.Background()
	artifact := &models.ScrapeArtifact{Markdown: "# Hello"}

	withActions := &models.ScrapeRequest{
		URL:     "https://example.com",
		Actions: []models.Action{{Type: "click", Selector: "#go"}},
	}
	c.Set(ctx, withActions, artifact)
	_, hit := c.Get(ctx, withActions)
	assert.False(t, hit)

	withScreenshot := &models.ScrapeRequest{
		URL:     "https://example.com",
		Formats: []string{models.FormatScreenshot},
	}
	c.Set(ctx, withScreenshot, artifact)
	_, hit = c.Get(ctx, withScreenshot)
	assert.False(t, hit)

	withExtract := &models.ScrapeRequest{
		URL:     "https://example.com",
		Extract: &models.ExtractSpec{Prompt: "summarize"},
	}
	c.Set(ctx, withExtract, artifact)
	_, hit = c.Get(ctx, withExtract)
	assert.False(t, hit)
}

func TestContentSkipsBlockedAndEmpty(t *testing.T) {
	c := NewContent(store.NewMemory(), time.Minute)
	ctx := context.Background()
	req := &models.ScrapeRequest{URL: "https://example.com", Formats: []string{"markdown"}}

	c.Set(ctx, req, &models.ScrapeArtifact{Markdown: "partial", Blocked: true})
	_, hit := c.Get(ctx, req)
	assert.False(t, hit, "best-partial artifacts are never cached")

	c.Set(ctx, req, &models.ScrapeArtifact{})
	_, hit = c.Get(ctx, req)
	assert.False(t, hit, "empty artifacts are never cached")
}

func TestJobResponse(t *testing.T) {
	c := NewJobResponse(store.NewMemory(), time.Minute)
	ctx := context.Background()

	_, hit := c.Get(ctx, "job-1")
	assert.False(t, hit)

	c.Set(ctx, "job-1", `{"status":"completed"}`)
	body, hit := c.Get(ctx, "job-1")
	require.True(t, hit)
	assert.JSONEq(t, `{"status":"completed"}`, body)

	c.Invalidate(ctx, "job-1")
	_, hit = c.Get(ctx, "job-1")
	assert.False(t, hit)
}
