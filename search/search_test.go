package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/jobs"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/store"
)

const serpHTML = `<html><body>
<div class="result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Ffirst">First Result</a>
  <div class="result__snippet">Snippet about the first result.</div>
</div>
<div class="result">
  <a class="result__a" href="https://example.org/second">Second Result</a>
  <div class="result__snippet">Second snippet.</div>
</div>
<div class="result">
  <a class="result__a" href="https://example.org/second">Duplicate Result</a>
</div>
<div class="result">
  <a class="result__a" href="//duckduckgo.com/y.js?ad=1">Sponsored</a>
</div>
<div class="result">
  <a class="result__a" href="https://example.net/third">Third Result</a>
</div>
</body></html>`

type fakeFetcher struct {
	html   string
	gotURL string
}

func (f *fakeFetcher) Run(_ context.Context, req *engine.FetchRequest) *engine.FetchResult {
	f.gotURL = req.URL
	return &engine.FetchResult{RawHTML: f.html, StatusCode: 200, Best: true}
}

func TestCascadeProviderSearch(t *testing.T) {
	fetcher := &fakeFetcher{html: serpHTML}
	p := NewCascadeProvider(fetcher)

	results, err := p.Search(context.Background(), "go web scraping", 10)
	require.NoError(t, err)

	assert.Contains(t, fetcher.gotURL, "html.duckduckgo.com/html/")
	assert.Contains(t, fetcher.gotURL, "go+web+scraping")

	require.Len(t, results, 3, "duplicates and ad redirects are dropped")
	assert.Equal(t, "First Result", results[0].Title)
	assert.Equal(t, "https://example.com/first", results[0].URL, "redirect wrapper is unwrapped")
	assert.Equal(t, "Snippet about the first result.", results[0].Description)
	assert.Equal(t, "https://example.org/second", results[1].URL)
	assert.Equal(t, "https://example.net/third", results[2].URL)
}

func TestCascadeProviderLimit(t *testing.T) {
	p := NewCascadeProvider(&fakeFetcher{html: serpHTML})
	results, err := p.Search(context.Background(), "query", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://example.com/first", results[0].URL)
}

func TestCascadeProviderUnavailable(t *testing.T) {
	p := NewCascadeProvider(&fakeFetcher{html: ""})
	_, err := p.Search(context.Background(), "query", 5)
	var se *models.ScrapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, models.ErrCodeBlocked, se.Code)
}

func TestCleanResultURL(t *testing.T) {
	assert.Equal(t, "https://example.com/page",
		cleanResultURL("//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fpage"))
	assert.Equal(t, "https://example.com/direct", cleanResultURL("https://example.com/direct"))
	assert.Empty(t, cleanResultURL("//duckduckgo.com/y.js?ad_provider=x"))
	assert.Empty(t, cleanResultURL("javascript:void(0)"))
}

// fakeProvider returns canned results.
type fakeProvider struct {
	results []models.SERPResult
	err     error
}

func (p *fakeProvider) Search(context.Context, string, int) ([]models.SERPResult, error) {
	return p.results, p.err
}

// fakeScraper records scraped URLs and fails on demand.
type fakeScraper struct {
	failURL string
	scraped []string
}

func (s *fakeScraper) Scrape(_ context.Context, req *models.ScrapeRequest) (*models.ScrapeArtifact, error) {
	if req.URL == s.failURL {
		return nil, models.NewScrapeError(models.ErrCodeBlocked, "blocked", nil)
	}
	s.scraped = append(s.scraped, req.URL)
	return &models.ScrapeArtifact{
		Markdown: "# " + req.URL,
		Metadata: models.PageMetadata{SourceURL: req.URL, WordCount: 100},
	}, nil
}

func TestRunnerRun(t *testing.T) {
	mem := store.NewMemory()
	jobStore := jobs.NewStore(mem)
	ctx := context.Background()

	job, err := jobStore.Create(ctx, models.JobTypeSearch, "")
	require.NoError(t, err)

	provider := &fakeProvider{results: []models.SERPResult{
		{Title: "A", URL: "https://example.com/a", Description: "about a"},
		{Title: "B", URL: "https://example.com/b"},
		{Title: "C", URL: "https://example.com/c"},
	}}
	scraper := &fakeScraper{failURL: "https://example.com/b"}

	r := NewRunner(provider, scraper, jobStore)
	require.NoError(t, r.Run(ctx, job, &models.SearchRequest{Query: "widgets"}))

	final, err := jobStore.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, final.Status)
	assert.Equal(t, 3, final.TotalPages)
	assert.Equal(t, 2, final.CompletedPages, "failed scrapes are skipped, not fatal")

	results, err := jobStore.Results(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://example.com/a", results[0].URL)
	assert.Equal(t, "A", results[0].Metadata.Title, "SERP title backfills missing page title")
	assert.Equal(t, "about a", results[0].Metadata.Description)
	assert.Equal(t, "https://example.com/c", results[1].URL)
}

func TestRunnerProviderFailure(t *testing.T) {
	mem := store.NewMemory()
	jobStore := jobs.NewStore(mem)
	ctx := context.Background()
	job, err := jobStore.Create(ctx, models.JobTypeSearch, "")
	require.NoError(t, err)

	r := NewRunner(&fakeProvider{err: fmt.Errorf("engine unreachable")}, &fakeScraper{}, jobStore)
	require.Error(t, r.Run(ctx, job, &models.SearchRequest{Query: "widgets"}))

	final, err := jobStore.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, final.Status)
	assert.Contains(t, final.Error, "engine unreachable")
}

func TestRunnerNoResults(t *testing.T) {
	mem := store.NewMemory()
	jobStore := jobs.NewStore(mem)
	ctx := context.Background()
	job, err := jobStore.Create(ctx, models.JobTypeSearch, "")
	require.NoError(t, err)

	r := NewRunner(&fakeProvider{}, &fakeScraper{}, jobStore)
	require.NoError(t, r.Run(ctx, job, &models.SearchRequest{Query: "no hits"}))

	final, err := jobStore.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, final.Status)
}

func TestRunnerCancelledBeforeStart(t *testing.T) {
	mem := store.NewMemory()
	jobStore := jobs.NewStore(mem)
	ctx := context.Background()
	job, err := jobStore.Create(ctx, models.JobTypeSearch, "")
	require.NoError(t, err)
	require.NoError(t, jobStore.Cancel(ctx, job.ID))

	scraper := &fakeScraper{}
	r := NewRunner(&fakeProvider{results: []models.SERPResult{{URL: "https://example.com/a"}}}, scraper, jobStore)
	require.NoError(t, r.Run(ctx, job, &models.SearchRequest{Query: "widgets"}))

	assert.Empty(t, scraper.scraped)
	final, err := jobStore.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, final.Status)
}
