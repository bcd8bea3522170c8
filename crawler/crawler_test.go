package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/extract"
	"github.com/use-agent/harvest/jobs"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/store"
)

func TestScorePriorities(t *testing.T) {
	slug := Score("https://example.com/blog/how-to-build-things")
	alnum := Score("https://example.com/product/B08XYZ123")
	query := Score("https://example.com/page?a=1&b=2")
	deep := Score("https://example.com/a/b/c/d")

	assert.Equal(t, 13.0, slug)
	assert.Equal(t, 12.0, alnum)
	assert.Equal(t, 8.0, query)
	assert.Equal(t, 7.0, deep)
}

func TestScoreSignals(t *testing.T) {
	// Numeric ID segments and date fragments are content signals.
	assert.Equal(t, 12.0, Score("https://example.com/articles/123456"))
	assert.Equal(t, 16.0, Score("https://example.com/2024/03/some-article-title"))

	// Overlong segments lose 2 each.
	long := strings.Repeat("x", 41)
	assert.Equal(t, 8.0, Score("https://example.com/"+long))

	// Root and single-segment paths take no depth penalty.
	assert.Equal(t, 10.0, Score("https://example.com/"))
	assert.Equal(t, 10.0, Score("https://example.com/about"))

	// Scores clamp at zero.
	assert.Equal(t, 0.0, Score("https://example.com/a/b/c/d/e?q=1&r=2&s=3&t=4&u=5&v=6&w=7"))
	assert.Equal(t, 0.0, Score("://not a url"))
}

func TestFrontierPopOrder(t *testing.T) {
	ctx := context.Background()
	f := NewFrontier(store.NewMemory(), "job-1")

	urls := []string{
		"https://example.com/a/b/c/d",
		"https://example.com/page?a=1&b=2",
		"https://example.com/blog/how-to-build-things",
		"https://example.com/product/B08XYZ123",
	}
	for _, u := range urls {
		require.NoError(t, f.Add(ctx, u, 0))
	}

	entries, err := f.PopBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, "https://example.com/blog/how-to-build-things", entries[0].URL)
	assert.Equal(t, "https://example.com/product/B08XYZ123", entries[1].URL)
	assert.Equal(t, "https://example.com/page?a=1&b=2", entries[2].URL)
	assert.Equal(t, "https://example.com/a/b/c/d", entries[3].URL)
}

func TestFrontierSeedOutranksEverything(t *testing.T) {
	ctx := context.Background()
	f := NewFrontier(store.NewMemory(), "job-1")

	require.NoError(t, f.Add(ctx, "https://example.com/blog/very-good-article", 0))
	require.NoError(t, f.AddSeed(ctx, "https://example.com/"))

	entries, err := f.PopBatch(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "https://example.com/", entries[0].URL)
	assert.Equal(t, 110.0, entries[0].Score)
	assert.Equal(t, 0, entries[0].Depth)
}

func TestFrontierDepthLowersPriority(t *testing.T) {
	ctx := context.Background()
	f := NewFrontier(store.NewMemory(), "job-1")

	require.NoError(t, f.Add(ctx, "https://example.com/one", 0))
	require.NoError(t, f.Add(ctx, "https://example.com/two", 3))

	entries, err := f.PopBatch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "https://example.com/one", entries[0].URL)
	assert.Equal(t, 3, entries[1].Depth)
	assert.Equal(t, 7.0, entries[1].Score)
}

func TestFrontierVisitedDedup(t *testing.T) {
	ctx := context.Background()
	f := NewFrontier(store.NewMemory(), "job-1")

	require.NoError(t, f.Add(ctx, "https://example.com/page", 0))
	entries, err := f.PopBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// Re-adding a visited URL is a no-op.
	require.NoError(t, f.Add(ctx, "https://example.com/page", 1))
	size, err := f.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestFrontierCleanup(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	f := NewFrontier(mem, "job-1")

	require.NoError(t, f.AddSeed(ctx, "https://example.com/"))
	require.NoError(t, f.Cleanup(ctx))

	size, err := f.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
	visited, err := f.Visited(ctx, "https://example.com/")
	require.NoError(t, err)
	assert.False(t, visited)
}

func TestShouldCrawl(t *testing.T) {
	f, err := NewFilter("https://docs.example.com/", 3, false, nil, nil)
	require.NoError(t, err)

	assert.True(t, f.ShouldCrawl("https://docs.example.com/guide/intro", 1))
	// Same registrable domain spans subdomains.
	assert.True(t, f.ShouldCrawl("https://www.example.com/page", 1))

	assert.False(t, f.ShouldCrawl("https://docs.example.com/deep", 4), "beyond max depth")
	assert.False(t, f.ShouldCrawl("https://other.org/page", 1), "external domain")
	assert.False(t, f.ShouldCrawl("ftp://docs.example.com/file", 1), "non-http scheme")
	assert.False(t, f.ShouldCrawl("https://docs.example.com/manual.pdf", 1), "document extension")
	assert.False(t, f.ShouldCrawl("https://docs.example.com/login/next", 1), "junk first segment")
	assert.False(t, f.ShouldCrawl("https://docs.example.com/privacy", 1), "junk first segment")
}

func TestShouldCrawlExternal(t *testing.T) {
	f, err := NewFilter("https://example.com/", 3, true, nil, nil)
	require.NoError(t, err)
	assert.True(t, f.ShouldCrawl("https://other.org/article", 1))
}

func TestShouldCrawlPathGlobs(t *testing.T) {
	f, err := NewFilter("https://example.com/", 3, false,
		[]string{"/docs/*"}, []string{"/docs/v1/*"})
	require.NoError(t, err)

	assert.True(t, f.ShouldCrawl("https://example.com/docs/intro", 1))
	assert.False(t, f.ShouldCrawl("https://example.com/blog/post", 1), "outside include globs")
	assert.False(t, f.ShouldCrawl("https://example.com/docs/v1/old", 1), "matches exclude glob")
}

func TestGate(t *testing.T) {
	longBody := strings.Repeat("word ", 900)
	shortBody := strings.Repeat("word ", 600)

	tests := []struct {
		name     string
		markdown string
		words    int
		skip     bool
		reason   string
	}{
		{"empty page", "tiny", 10, true, "empty"},
		{"login wall", shortBody + " Sign in or Create account to continue", 600, true, "login_wall"},
		{"single auth phrase passes", shortBody + " Sign in", 600, false, ""},
		{"gated content", shortBody + " Subscribe to continue reading", 600, true, "gated"},
		{"long page ignores wall phrases", longBody + " Sign in Create account", 900, false, ""},
		{"normal page", shortBody, 600, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Gate(tt.markdown, tt.words)
			assert.Equal(t, tt.skip, got.Skip)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestRobotsCache(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		hits++
		fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
	}))
	defer srv.Close()

	rc := NewRobotsCache()
	ctx := context.Background()

	assert.True(t, rc.Allowed(ctx, srv.URL+"/public/page"))
	assert.False(t, rc.Allowed(ctx, srv.URL+"/private/x"))
	assert.False(t, rc.Allowed(ctx, srv.URL+"/private/deep/page"))

	// Rules are fetched once per host.
	assert.True(t, rc.Allowed(ctx, srv.URL+"/other"))
	assert.Equal(t, 1, hits)
}

func TestRobotsCacheUnreachableAllowsAll(t *testing.T) {
	rc := NewRobotsCache()
	assert.True(t, rc.Allowed(context.Background(), "http://127.0.0.1:1/anything"))
}

// fakeBackend serves the deep nav discovery pass.
type fakeBackend struct {
	links     []string
	framework string
}

func (b *fakeBackend) Fetch(_ context.Context, _ *engine.FetchRequest, _ bool) (*engine.FetchResult, error) {
	return &engine.FetchResult{
		RawHTML:         "<html><body>seed</body></html>",
		StatusCode:      200,
		DiscoveredLinks: b.links,
		DocFramework:    b.framework,
	}, nil
}

func (b *fakeBackend) ReferrerChain(context.Context, *engine.FetchRequest) (*engine.FetchResult, error) {
	return nil, errors.New("not implemented")
}

func (b *fakeBackend) Prewarm(context.Context, *engine.FetchRequest) (*engine.FetchResult, error) {
	return nil, errors.New("not implemented")
}

// fakeSession serves crawl fetches from a static page map.
type fakeSession struct {
	pages   map[string]string
	onFetch func(n int)

	mu      sync.Mutex
	fetches int
}

func (s *fakeSession) Fetch(_ context.Context, rawURL string) (*engine.FetchResult, error) {
	s.mu.Lock()
	s.fetches++
	n := s.fetches
	s.mu.Unlock()
	if s.onFetch != nil {
		s.onFetch(n)
	}
	html, ok := s.pages[rawURL]
	if !ok {
		return nil, models.NewScrapeError(models.ErrCodeNavigation, "no such page", nil)
	}
	return &engine.FetchResult{
		RawHTML:    html,
		StatusCode: 200,
		SourceTier: engine.TierChromium,
		FinalURL:   rawURL,
	}, nil
}

func (s *fakeSession) Stop() {}

// fakeFetcher is the cascade fallback; it never finds anything.
type fakeFetcher struct{}

func (fakeFetcher) Run(context.Context, *engine.FetchRequest) *engine.FetchResult {
	return &engine.FetchResult{StatusCode: 0}
}

func page(title, body string, links ...string) string {
	var sb strings.Builder
	sb.WriteString("<html><head><title>" + title + "</title></head><body><main><h1>" + title + "</h1>")
	sb.WriteString("<p>" + body + "</p>")
	for _, l := range links {
		sb.WriteString(`<a href="` + l + `">link</a> `)
	}
	sb.WriteString("</main></body></html>")
	return sb.String()
}

func TestCrawlerRun(t *testing.T) {
	prose := strings.Repeat("useful content with many words in it ", 30)
	seed := "https://example.com/"
	pages := map[string]string{
		seed: page("Home", prose,
			"https://example.com/blog/first-post-here",
			"https://example.com/blog/second-post-here"),
		"https://example.com/blog/first-post-here":  page("First", prose, "https://example.com/blog/third-post-here"),
		"https://example.com/blog/second-post-here": page("Second", prose),
		"https://example.com/blog/third-post-here":  page("Third", prose),
		// Login wall: skipped but crawled through.
		"https://example.com/blog/walled-post-here": page("Walled",
			"Sign in to read. Create account for access. "+strings.Repeat("filler words here ", 40),
			"https://example.com/blog/third-post-here"),
	}

	mem := store.NewMemory()
	jobStore := jobs.NewStore(mem)
	ctx := context.Background()

	job, err := jobStore.Create(ctx, models.JobTypeCrawl, seed)
	require.NoError(t, err)

	session := &fakeSession{pages: pages}
	c := New(Deps{
		Store:     mem,
		Jobs:      jobStore,
		Backend:   &fakeBackend{framework: "docusaurus", links: []string{"https://example.com/blog/walled-post-here"}},
		Fetcher:   fakeFetcher{},
		Sessions:  func(*engine.FetchRequest) Session { return session },
		Extractor: extract.New(),
	})

	req := &models.CrawlRequest{URL: seed, MaxDepth: 2, MaxPages: 10, Concurrency: 2}
	require.NoError(t, c.Run(ctx, job, req))

	final, err := jobStore.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, final.Status)
	assert.Equal(t, 4, final.CompletedPages, "walled page must not be persisted")

	results, err := jobStore.Results(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, results, 4)

	crawled := make(map[string]bool)
	for _, r := range results {
		crawled[r.URL] = true
		assert.NotEmpty(t, r.Markdown)
		assert.NotZero(t, r.Metadata.WordCount)
	}
	assert.True(t, crawled[seed])
	assert.True(t, crawled["https://example.com/blog/first-post-here"])
	assert.True(t, crawled["https://example.com/blog/second-post-here"])
	assert.True(t, crawled["https://example.com/blog/third-post-here"], "link behind the walled page must still be reached")

	// Crawl state is deleted on completion.
	size, err := NewFrontier(mem, job.ID).Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestCrawlerRunMaxPages(t *testing.T) {
	prose := strings.Repeat("plenty of ordinary readable prose right here ", 25)
	seed := "https://example.com/"
	pages := map[string]string{seed: page("Home", prose)}
	for i := 0; i < 10; i++ {
		u := fmt.Sprintf("https://example.com/post/article-number-%d", i)
		pages[seed] += "" // seed links added below
		pages[u] = page(fmt.Sprintf("Post %d", i), prose)
	}
	links := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		links = append(links, fmt.Sprintf("https://example.com/post/article-number-%d", i))
	}
	pages[seed] = page("Home", prose, links...)

	mem := store.NewMemory()
	jobStore := jobs.NewStore(mem)
	ctx := context.Background()
	job, err := jobStore.Create(ctx, models.JobTypeCrawl, seed)
	require.NoError(t, err)

	session := &fakeSession{pages: pages}
	c := New(Deps{
		Store:     mem,
		Jobs:      jobStore,
		Backend:   &fakeBackend{},
		Fetcher:   fakeFetcher{},
		Sessions:  func(*engine.FetchRequest) Session { return session },
		Extractor: extract.New(),
	})

	req := &models.CrawlRequest{URL: seed, MaxDepth: 2, MaxPages: 3, Concurrency: 1}
	require.NoError(t, c.Run(ctx, job, req))

	results, err := jobStore.Results(ctx, job.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 3)
	assert.GreaterOrEqual(t, len(results), 1)
}

func TestCrawlerRunCancelled(t *testing.T) {
	prose := strings.Repeat("plenty of ordinary readable prose right here ", 25)
	seed := "https://example.com/"
	links := make([]string, 0, 20)
	pages := map[string]string{}
	for i := 0; i < 20; i++ {
		u := fmt.Sprintf("https://example.com/post/article-number-%d", i)
		links = append(links, u)
		pages[u] = page(fmt.Sprintf("Post %d", i), prose)
	}
	pages[seed] = page("Home", prose, links...)

	mem := store.NewMemory()
	jobStore := jobs.NewStore(mem)
	ctx := context.Background()
	job, err := jobStore.Create(ctx, models.JobTypeCrawl, seed)
	require.NoError(t, err)

	// Cancel mid-crawl: the consumer observes the status on its next
	// persisted page and winds the pipeline down.
	session := &fakeSession{pages: pages}
	session.onFetch = func(n int) {
		if n == 3 {
			_ = jobStore.Cancel(ctx, job.ID)
		}
	}
	c := New(Deps{
		Store:     mem,
		Jobs:      jobStore,
		Backend:   &fakeBackend{},
		Fetcher:   fakeFetcher{},
		Sessions:  func(*engine.FetchRequest) Session { return session },
		Extractor: extract.New(),
	})

	req := &models.CrawlRequest{URL: seed, MaxDepth: 2, MaxPages: 20, Concurrency: 1}
	require.NoError(t, c.Run(ctx, job, req))

	final, err := jobStore.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, final.Status, "cancelled status survives completion")

	results, err := jobStore.Results(ctx, job.ID)
	require.NoError(t, err)
	assert.Less(t, len(results), 20)
}

func TestCrawlerSeedsFromNavDiscovery(t *testing.T) {
	prose := strings.Repeat("documentation text for the framework guide ", 25)
	seed := "https://docs.example.com/"

	discovered := make([]string, 0, 30)
	pages := map[string]string{seed: page("Docs", prose)}
	for i := 0; i < 30; i++ {
		u := fmt.Sprintf("https://docs.example.com/guide/section-number-%d", i)
		discovered = append(discovered, u)
		pages[u] = page(fmt.Sprintf("Section %d", i), prose)
	}

	mem := store.NewMemory()
	jobStore := jobs.NewStore(mem)
	ctx := context.Background()
	job, err := jobStore.Create(ctx, models.JobTypeCrawl, seed)
	require.NoError(t, err)

	session := &fakeSession{pages: pages}
	c := New(Deps{
		Store:     mem,
		Jobs:      jobStore,
		Backend:   &fakeBackend{framework: "docusaurus", links: discovered},
		Fetcher:   fakeFetcher{},
		Sessions:  func(*engine.FetchRequest) Session { return session },
		Extractor: extract.New(),
	})

	req := &models.CrawlRequest{URL: seed, MaxDepth: 2, MaxPages: 31, Concurrency: 3}
	require.NoError(t, c.Run(ctx, job, req))

	results, err := jobStore.Results(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, results, 31, "seed plus every discovered sidebar page")
}

// gatedSession delays every non-seed fetch until `want` of them are in
// flight at once (or a deadline passes), recording the peak.
type gatedSession struct {
	fakeSession
	seed string
	want int32

	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *gatedSession) Fetch(ctx context.Context, rawURL string) (*engine.FetchResult, error) {
	if rawURL != s.seed {
		n := s.inFlight.Add(1)
		defer s.inFlight.Add(-1)
		for {
			p := s.peak.Load()
			if n <= p || s.peak.CompareAndSwap(p, n) {
				break
			}
		}
		deadline := time.Now().Add(2 * time.Second)
		for s.inFlight.Load() < s.want && time.Now().Before(deadline) {
			time.Sleep(2 * time.Millisecond)
		}
	}
	return s.fakeSession.Fetch(ctx, rawURL)
}

func TestCrawlerSessionFetchesRunInParallel(t *testing.T) {
	prose := strings.Repeat("plenty of ordinary readable prose right here ", 25)
	seed := "https://example.com/"
	links := make([]string, 0, 9)
	pages := map[string]string{}
	for i := 0; i < 9; i++ {
		u := fmt.Sprintf("https://example.com/post/article-number-%d", i)
		links = append(links, u)
		pages[u] = page(fmt.Sprintf("Post %d", i), prose)
	}
	pages[seed] = page("Home", prose, links...)

	mem := store.NewMemory()
	jobStore := jobs.NewStore(mem)
	ctx := context.Background()
	job, err := jobStore.Create(ctx, models.JobTypeCrawl, seed)
	require.NoError(t, err)

	// One shared session for the whole crawl, as in production.
	session := &gatedSession{fakeSession: fakeSession{pages: pages}, seed: seed, want: 3}
	c := New(Deps{
		Store:     mem,
		Jobs:      jobStore,
		Backend:   &fakeBackend{},
		Fetcher:   fakeFetcher{},
		Sessions:  func(*engine.FetchRequest) Session { return session },
		Extractor: extract.New(),
	})

	req := &models.CrawlRequest{URL: seed, MaxDepth: 2, MaxPages: 10, Concurrency: 3}
	require.NoError(t, c.Run(ctx, job, req))

	results, err := jobStore.Results(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, results, 10)
	assert.EqualValues(t, 3, session.peak.Load(),
		"a single session must serve as many simultaneous fetches as the crawl concurrency")
}
