package scrape

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/extract"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/store"
)

const articleHTML = `<html><head><title>Widget Review</title>
<meta name="description" content="A review of the widget">
</head><body><main><h1>Widget Review</h1>
<p>This widget does a great many things and this paragraph describes them
at considerable length so the page counts as real content.</p>
<a href="/related-article">related</a></main></body></html>`

type fakeFetcher struct {
	result *engine.FetchResult
	calls  int
	gotReq *engine.FetchRequest
}

func (f *fakeFetcher) Run(_ context.Context, req *engine.FetchRequest) *engine.FetchResult {
	f.calls++
	f.gotReq = req
	return f.result
}

func okResult() *engine.FetchResult {
	return &engine.FetchResult{
		RawHTML:    articleHTML,
		StatusCode: 200,
		SourceTier: engine.TierTLSClient,
		Best:       true,
	}
}

func TestScrape(t *testing.T) {
	fetcher := &fakeFetcher{result: okResult()}
	svc := NewService(Deps{Fetcher: fetcher, Extractor: extract.New()})

	artifact, err := svc.Scrape(context.Background(), &models.ScrapeRequest{
		URL:     "https://example.com/widget",
		Formats: []string{models.FormatMarkdown, models.FormatLinks},
	})
	require.NoError(t, err)

	assert.Contains(t, artifact.Markdown, "# Widget Review")
	assert.Contains(t, artifact.Links, "https://example.com/related-article")
	assert.Equal(t, engine.TierTLSClient, artifact.SourceTier)
	assert.False(t, artifact.Blocked)
	assert.Equal(t, 200, artifact.Metadata.StatusCode)
	assert.Equal(t, "Widget Review", artifact.Metadata.Title)
	assert.Equal(t, "https://example.com/widget", artifact.Metadata.SourceURL)
}

func TestScrapeRequestMapping(t *testing.T) {
	fetcher := &fakeFetcher{result: okResult()}
	svc := NewService(Deps{Fetcher: fetcher, Extractor: extract.New()})

	_, err := svc.Scrape(context.Background(), &models.ScrapeRequest{
		URL:     "https://example.com/widget",
		Formats: []string{models.FormatScreenshot, models.FormatMarkdown},
		WaitFor: 2000,
		Timeout: 45000,
		Mobile:  true,
		Actions: []models.Action{{Type: "click", Selector: "#expand"}},
		Headers: map[string]string{"X-Custom": "1"},
	})
	require.NoError(t, err)

	req := fetcher.gotReq
	require.NotNil(t, req)
	assert.True(t, req.Screenshot)
	assert.True(t, req.Mobile)
	assert.Equal(t, 2*time.Second, req.WaitFor)
	assert.Equal(t, 45*time.Second, req.Timeout)
	assert.Equal(t, "1", req.Headers["X-Custom"])
	require.Len(t, req.Actions, 1)
	assert.Equal(t, "click", req.Actions[0].Type)
	assert.Equal(t, "#expand", req.Actions[0].Selector)
}

func TestScrapeInvalidURL(t *testing.T) {
	svc := NewService(Deps{Fetcher: &fakeFetcher{}, Extractor: extract.New()})

	for _, u := range []string{"", "not-a-url", "ftp://example.com/x"} {
		_, err := svc.Scrape(context.Background(), &models.ScrapeRequest{URL: u})
		var se *models.ScrapeError
		require.ErrorAs(t, err, &se, u)
		assert.Equal(t, models.ErrCodeInvalidInput, se.Code)
	}
}

func TestScrapeDocumentURL(t *testing.T) {
	svc := NewService(Deps{Fetcher: &fakeFetcher{}, Extractor: extract.New()})
	_, err := svc.Scrape(context.Background(), &models.ScrapeRequest{URL: "https://example.com/report.pdf"})
	var se *models.ScrapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, models.ErrCodeInvalidInput, se.Code)
}

func TestScrapeExhausted(t *testing.T) {
	svc := NewService(Deps{
		Fetcher:   &fakeFetcher{result: &engine.FetchResult{StatusCode: 0}},
		Extractor: extract.New(),
	})
	_, err := svc.Scrape(context.Background(), &models.ScrapeRequest{URL: "https://example.com/x"})
	var se *models.ScrapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, models.ErrCodeBlocked, se.Code)
}

func TestScrapeBestPartial(t *testing.T) {
	result := okResult()
	result.Best = false
	result.StatusCode = 403
	svc := NewService(Deps{Fetcher: &fakeFetcher{result: result}, Extractor: extract.New()})

	artifact, err := svc.Scrape(context.Background(), &models.ScrapeRequest{URL: "https://example.com/x"})
	require.NoError(t, err)
	assert.True(t, artifact.Blocked)
	assert.Equal(t, 403, artifact.Metadata.StatusCode)
}

func TestScrapeCaching(t *testing.T) {
	fetcher := &fakeFetcher{result: okResult()}
	svc := NewService(Deps{
		Fetcher:   fetcher,
		Extractor: extract.New(),
		Cache:     cache.NewContent(store.NewMemory(), time.Minute),
	})
	req := &models.ScrapeRequest{URL: "https://example.com/widget", Formats: []string{models.FormatMarkdown}}

	first, err := svc.Scrape(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Scrape(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, fetcher.calls, "second scrape must be served from cache")
	assert.Equal(t, first.Markdown, second.Markdown)
}

type fakeLLM struct{ out any }

func (f *fakeLLM) Extract(context.Context, string, string, map[string]any) (any, error) {
	return f.out, nil
}

func TestScrapeLLMExtract(t *testing.T) {
	svc := NewService(Deps{
		Fetcher:   &fakeFetcher{result: okResult()},
		Extractor: extract.New(),
		LLM:       &fakeLLM{out: map[string]any{"product": "Widget"}},
	})
	artifact, err := svc.Scrape(context.Background(), &models.ScrapeRequest{
		URL:     "https://example.com/widget",
		Extract: &models.ExtractSpec{Prompt: "extract the product"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"product": "Widget"}, artifact.Extract)
}
