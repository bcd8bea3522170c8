package crawler

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/extract"
	"github.com/use-agent/harvest/jobs"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/store"
	"github.com/use-agent/harvest/webhook"
)

const (
	// sessionFetchTimeout bounds one crawl-session page fetch.
	sessionFetchTimeout = 120 * time.Second

	// fallbackFetchTimeout bounds the full-cascade fallback when the
	// session fetch came back empty.
	fallbackFetchTimeout = 60 * time.Second

	// discoveryTimeout bounds the deep nav discovery pass on the seed.
	discoveryTimeout = 90 * time.Second

	// emptyBatchWait is how long the producer sleeps when the frontier
	// runs dry while extraction is still in flight.
	emptyBatchWait = 2 * time.Second

	// maxEmptyBatches is how many dry pops the producer tolerates before
	// declaring the crawl exhausted.
	maxEmptyBatches = 3
)

// Session is a persistent browser context a crawl fetches through.
type Session interface {
	Fetch(ctx context.Context, rawURL string) (*engine.FetchResult, error)
	Stop()
}

// SessionFactory mints crawl sessions, either from the local browser pool
// or from the stealth sidecar.
type SessionFactory func(base *engine.FetchRequest) Session

// Fetcher runs the full tier cascade. Used as the fallback when the crawl
// session cannot produce a page.
type Fetcher interface {
	Run(ctx context.Context, req *engine.FetchRequest) *engine.FetchResult
}

// StructuredExtractor is the optional per-page LLM extraction hook.
type StructuredExtractor interface {
	Extract(ctx context.Context, content, prompt string, schema map[string]any) (any, error)
}

// ProxyPicker assigns a sticky proxy for the crawl's seed domain.
type ProxyPicker interface {
	ForDomain(ctx context.Context, domain string) (string, error)
}

// Deps wires a Crawler.
type Deps struct {
	Store     store.Store
	Jobs      *jobs.Store
	Backend   engine.BrowserBackend
	Fetcher   Fetcher
	Sessions  SessionFactory
	Extractor *extract.Extractor

	// Optional.
	LLM     StructuredExtractor
	Proxies ProxyPicker

	// MaxPagesCap is the system-wide max_pages bound, 0 for none.
	MaxPagesCap int
}

// Crawler runs BFS crawl jobs over the shared frontier.
type Crawler struct {
	deps   Deps
	robots *RobotsCache
}

// New builds a Crawler.
func New(deps Deps) *Crawler {
	return &Crawler{deps: deps, robots: NewRobotsCache()}
}

// pipelineItem is one fetched page waiting for extraction.
type pipelineItem struct {
	url    string
	depth  int
	result *engine.FetchResult
}

// crawlState is the shared mutable state of one running crawl.
type crawlState struct {
	job      *models.Job
	req      *models.CrawlRequest
	base     *engine.FetchRequest
	filter   *Filter
	frontier *Frontier
	session  Session
	queue    chan pipelineItem

	persisted atomic.Int32
	inflight  atomic.Int32
	pending   atomic.Int32
	cancelled atomic.Bool

	framework string
}

// Run executes one crawl job to completion. It owns the job's lifecycle:
// status transitions, result persistence, and store cleanup.
func (c *Crawler) Run(ctx context.Context, job *models.Job, req *models.CrawlRequest) error {
	req.Defaults(c.deps.MaxPagesCap)

	filter, err := NewFilter(req.URL, req.MaxDepth, req.AllowExternalLinks, req.IncludePaths, req.ExcludePaths)
	if err != nil {
		ferr := models.NewScrapeError(models.ErrCodeInvalidInput, "invalid seed url", err)
		_ = c.deps.Jobs.Fail(context.WithoutCancel(ctx), job.ID, ferr.Error())
		return ferr
	}

	st := &crawlState{
		job:      job,
		req:      req,
		base:     c.baseRequest(ctx, req),
		filter:   filter,
		frontier: NewFrontier(c.deps.Store, job.ID),
		queue:    make(chan pipelineItem, 2*req.Concurrency),
	}

	cleanupCtx := context.WithoutCancel(ctx)
	defer func() {
		if err := st.frontier.Cleanup(cleanupCtx); err != nil {
			slog.Warn("crawl frontier cleanup failed", "job", job.ID, "error", err)
		}
	}()

	if err := c.deps.Jobs.Start(ctx, job.ID); err != nil {
		if errors.Is(err, jobs.ErrTerminal) {
			// Cancelled before it started.
			return nil
		}
		return err
	}
	_ = c.deps.Jobs.SetTotal(ctx, job.ID, req.MaxPages)

	if err := st.frontier.AddSeed(ctx, req.URL); err != nil {
		_ = c.deps.Jobs.Fail(cleanupCtx, job.ID, "frontier unavailable: "+err.Error())
		return models.NewScrapeError(models.ErrCodeStore, "frontier unavailable", err)
	}
	c.seedFromNavDiscovery(ctx, st)

	st.session = c.deps.Sessions(st.base)
	defer st.session.Stop()

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for item := range st.queue {
			c.handleItem(ctx, st, item)
			st.pending.Add(-1)
		}
	}()

	c.produce(ctx, st)
	close(st.queue)
	<-consumerDone

	if st.cancelled.Load() || ctx.Err() != nil {
		slog.Info("crawl cancelled", "job", job.ID, "persisted", st.persisted.Load())
		return nil
	}

	slog.Info("crawl completed",
		"job", job.ID,
		"seed", req.URL,
		"pages", st.persisted.Load(),
		"framework", st.framework)
	return c.deps.Jobs.Complete(cleanupCtx, job.ID)
}

// baseRequest builds the fetch defaults every crawl page inherits.
func (c *Crawler) baseRequest(ctx context.Context, req *models.CrawlRequest) *engine.FetchRequest {
	base := &engine.FetchRequest{
		URL:     req.URL,
		Headers: req.ScrapeOptions.Headers,
		Cookies: req.ScrapeOptions.Cookies,
		Mobile:  req.ScrapeOptions.Mobile,
		Timeout: time.Duration(req.ScrapeOptions.Timeout) * time.Millisecond,
	}
	if req.UseProxy && c.deps.Proxies != nil {
		if u, err := url.Parse(req.URL); err == nil {
			if proxy, err := c.deps.Proxies.ForDomain(ctx, u.Hostname()); err == nil {
				base.Proxy = proxy
			}
		}
	}
	return base
}

// seedFromNavDiscovery expands the seed page's JavaScript navigation and
// pre-loads the frontier at depth 1. Doc-framework sites expose most of
// their link graph here, before any page is crawled.
func (c *Crawler) seedFromNavDiscovery(ctx context.Context, st *crawlState) {
	discReq := *st.base
	discReq.URL = st.req.URL
	discReq.DiscoverLinks = true

	dctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	result, err := c.deps.Backend.Fetch(dctx, &discReq, false)
	if err != nil || result == nil {
		slog.Debug("seed nav discovery failed", "url", st.req.URL, "error", err)
		return
	}
	if result.DocFramework != "" {
		st.framework = result.DocFramework
		slog.Info("documentation framework detected",
			"url", st.req.URL, "framework", result.DocFramework)
	}

	limit := 5 * st.req.MaxPages
	added := 0
	for _, link := range result.DiscoveredLinks {
		if added >= limit {
			break
		}
		if !c.admissible(ctx, st, link, 1) {
			continue
		}
		if visited, _ := st.frontier.Visited(ctx, link); visited {
			continue
		}
		if err := st.frontier.Add(ctx, link, 1); err != nil {
			slog.Debug("frontier add failed", "url", link, "error", err)
			continue
		}
		added++
	}
	slog.Debug("seed nav discovery done",
		"url", st.req.URL, "discovered", len(result.DiscoveredLinks), "added", added)
}

// produce pops frontier batches and fetches them through the crawl
// session, feeding the bounded extraction queue. Blocking on a full queue
// is the pipeline's backpressure.
func (c *Crawler) produce(ctx context.Context, st *crawlState) {
	sem := make(chan struct{}, st.req.Concurrency)
	emptyBatches := 0

	for {
		if ctx.Err() != nil || st.cancelled.Load() {
			return
		}
		remaining := st.req.MaxPages - int(st.persisted.Load())
		if remaining <= 0 {
			return
		}

		batch, err := st.frontier.PopBatch(ctx, min(2*st.req.Concurrency, remaining))
		if err != nil {
			slog.Error("frontier pop failed", "job", st.job.ID, "error", err)
			return
		}

		if len(batch) == 0 {
			// Pending items may still reseed the frontier once the
			// consumer extracts their links; exhaustion is only certain
			// when nothing is fetching and nothing awaits extraction.
			if st.inflight.Load() == 0 && st.pending.Load() == 0 {
				return
			}
			emptyBatches++
			if emptyBatches > maxEmptyBatches {
				return
			}
			if !sleepCtx(ctx, emptyBatchWait) {
				return
			}
			continue
		}
		emptyBatches = 0

		var wg sync.WaitGroup
		for _, entry := range batch {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				wg.Wait()
				return
			}
			wg.Add(1)
			st.inflight.Add(1)
			go func(e Entry) {
				defer wg.Done()
				defer st.inflight.Add(-1)
				defer func() { <-sem }()

				result := c.fetchOne(ctx, st, e.URL)
				if result == nil {
					return
				}
				st.pending.Add(1)
				select {
				case st.queue <- pipelineItem{url: e.URL, depth: e.Depth, result: result}:
				case <-ctx.Done():
					st.pending.Add(-1)
				}
			}(entry)
		}
		wg.Wait()
	}
}

// fetchOne fetches a page through the crawl session, falling back to the
// full tier cascade when the session cannot produce HTML.
func (c *Crawler) fetchOne(ctx context.Context, st *crawlState, rawURL string) *engine.FetchResult {
	sctx, cancel := context.WithTimeout(ctx, sessionFetchTimeout)
	result, err := st.session.Fetch(sctx, rawURL)
	cancel()
	if err == nil && result != nil && result.RawHTML != "" {
		return result
	}
	if err != nil {
		slog.Debug("crawl session fetch failed, falling back to cascade",
			"url", rawURL, "error", err)
	}

	req := *st.base
	req.URL = rawURL
	req.Timeout = fallbackFetchTimeout
	fctx, cancel := context.WithTimeout(ctx, fallbackFetchTimeout)
	defer cancel()

	result = c.deps.Fetcher.Run(fctx, &req)
	if result == nil || result.RawHTML == "" {
		slog.Warn("crawl page unfetchable", "url", rawURL)
		return nil
	}
	return result
}

// handleItem extracts one fetched page, applies the quality gate, persists
// the result, and reseeds the frontier with its links.
func (c *Crawler) handleItem(ctx context.Context, st *crawlState, item pipelineItem) {
	pageURL := item.result.FinalURL
	if pageURL == "" {
		pageURL = item.url
	}

	artifact, err := c.deps.Extractor.Run(item.result.RawHTML, extract.Options{
		URL:             pageURL,
		Formats:         []string{models.FormatMarkdown, models.FormatHTML, models.FormatLinks},
		OnlyMainContent: st.req.ScrapeOptions.OnlyMainContent,
		IncludeTags:     st.req.ScrapeOptions.IncludeTags,
		ExcludeTags:     st.req.ScrapeOptions.ExcludeTags,
	})
	if err != nil {
		slog.Warn("crawl extraction failed", "url", item.url, "error", err)
		c.seedLinks(ctx, st, item.result.DiscoveredLinks, item.depth+1)
		return
	}

	links := mergeLinks(artifact.Links, item.result.DiscoveredLinks)

	// Skipped pages do not count toward max_pages but still feed the
	// frontier.
	if gate := Gate(artifact.Markdown, artifact.Metadata.WordCount); gate.Skip {
		slog.Debug("page dropped by quality gate",
			"url", item.url, "reason", gate.Reason, "words", artifact.Metadata.WordCount)
		c.seedLinks(ctx, st, links, item.depth+1)
		return
	}

	if int(st.persisted.Load()) >= st.req.MaxPages {
		c.seedLinks(ctx, st, links, item.depth+1)
		return
	}

	var extracted any
	if c.deps.LLM != nil && st.req.ScrapeOptions.Extract != nil {
		spec := st.req.ScrapeOptions.Extract
		extracted, err = c.deps.LLM.Extract(ctx, artifact.Markdown, spec.Prompt, spec.Schema)
		if err != nil {
			slog.Warn("crawl llm extraction failed", "url", item.url, "error", err)
			extracted = nil
		}
	}

	result := &models.JobResult{
		URL:       item.url,
		Markdown:  artifact.Markdown,
		HTML:      artifact.CleanHTML,
		Links:     links,
		Extract:   extracted,
		Metadata:  artifact.Metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.deps.Jobs.AppendResult(ctx, st.job.ID, result); err != nil {
		slog.Error("crawl result persist failed", "job", st.job.ID, "url", item.url, "error", err)
	} else {
		st.persisted.Add(1)
		if _, err := c.deps.Jobs.IncrCompleted(ctx, st.job.ID); err != nil {
			slog.Warn("crawl progress update failed", "job", st.job.ID, "error", err)
		}
		if status, err := c.deps.Jobs.Status(ctx, st.job.ID); err == nil && status == models.JobCancelled {
			st.cancelled.Store(true)
		}
		if st.req.WebhookURL != "" {
			webhook.DeliverAsync(st.req.WebhookURL, st.req.WebhookSecret,
				webhook.NewEvent(webhook.EventCrawlPage, st.job.ID, map[string]any{
					"url":       item.url,
					"completed": int(st.persisted.Load()),
					"metadata":  artifact.Metadata,
				}))
		}
	}

	c.seedLinks(ctx, st, links, item.depth+1)
}

// seedLinks adds admissible links to the frontier at the given depth.
func (c *Crawler) seedLinks(ctx context.Context, st *crawlState, links []string, depth int) {
	for _, link := range links {
		if !c.admissible(ctx, st, link, depth) {
			continue
		}
		if err := st.frontier.Add(ctx, link, depth); err != nil {
			slog.Debug("frontier add failed", "url", link, "error", err)
		}
	}
}

// admissible applies the URL filter and, when requested, robots.txt.
func (c *Crawler) admissible(ctx context.Context, st *crawlState, link string, depth int) bool {
	if !st.filter.ShouldCrawl(link, depth) {
		return false
	}
	if st.req.RespectRobotsTxt && !c.robots.Allowed(ctx, link) {
		return false
	}
	return true
}

// mergeLinks deduplicates extraction links with browser nav discovery.
func mergeLinks(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	merged := make([]string, 0, len(a)+len(b))
	for _, link := range a {
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		merged = append(merged, link)
	}
	for _, link := range b {
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		merged = append(merged, link)
	}
	return merged
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
