package browser

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/use-agent/harvest/engine"
)

// CrawlSession reuses one stealth context across the pages of a crawl, so
// cookies, cache state, and the fingerprint stay consistent the way a real
// visitor's would. Each Fetch mints a short-lived page inside the shared
// context, so concurrent crawl workers render in parallel. The context is
// created lazily and recreated after a crash; Stop releases the pool slot.
type CrawlSession struct {
	pool *Pool
	base *engine.FetchRequest

	mu      sync.Mutex
	inc     *rod.Browser
	release func()
	fp      *Fingerprint
	stopped bool
}

// NewCrawlSession prepares a session carrying the request defaults
// (headers, cookies, proxy) every page fetch inherits.
func NewCrawlSession(pool *Pool, base *engine.FetchRequest) *CrawlSession {
	return &CrawlSession{pool: pool, base: base}
}

// sessionContext returns the shared incognito context and fingerprint,
// creating them on first use or after a recycle. The lock covers only
// this bookkeeping, never a fetch.
func (s *CrawlSession) sessionContext(ctx context.Context) (*rod.Browser, *Fingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, nil, context.Canceled
	}
	if s.inc != nil {
		return s.inc, s.fp, nil
	}

	release, err := s.pool.acquire(ctx, s.pool.chromiumSem)
	if err != nil {
		return nil, nil, err
	}
	browser, err := s.pool.browserFor(false)
	if err != nil {
		release()
		return nil, nil, err
	}
	inc, err := s.pool.mintIncognito(browser)
	if err != nil {
		release()
		s.pool.recoverBrowser(false)
		return nil, nil, err
	}
	// One fingerprint for the whole crawl; rotating it mid-session is a
	// bot tell.
	s.fp = NewFingerprint(false, s.base.Mobile)
	s.inc = inc
	s.release = release
	return s.inc, s.fp, nil
}

// recycle drops a dead context so the next Fetch recreates it. The jar
// already holds the cookies harvested at each page close, so they survive
// into the replacement context.
func (s *CrawlSession) recycle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardown()
}

// teardown closes the context and frees the slot. Runs under s.mu.
func (s *CrawlSession) teardown() {
	if s.inc != nil {
		_ = s.inc.Close()
		s.inc = nil
	}
	if s.release != nil {
		s.release()
		s.release = nil
	}
}

// Fetch renders the URL on a fresh page inside the session context and
// returns the HTML with discovered links. The page is closed when the
// fetch completes, reading its cookies back first; when the page cannot
// even be opened the context is presumed dead and recycled.
func (s *CrawlSession) Fetch(ctx context.Context, rawURL string) (*engine.FetchResult, error) {
	inc, fp, err := s.sessionContext(ctx)
	if err != nil {
		return nil, err
	}

	page, err := s.pool.preparePage(inc, s.base, fp)
	if err != nil {
		slog.Debug("crawl session page open failed, recycling context",
			"url", rawURL, "error", err)
		s.recycle()
		return nil, err
	}
	defer func() {
		s.pool.harvestCookies(page)
		_ = page.Close()
	}()
	// Crawl pages never screenshot, so heavy resources are blocked.
	mountInterceptor(page, true)

	bound := page.Context(ctx)
	if err := bound.Navigate(rawURL); err != nil {
		return nil, categorizeNavError(err, "crawl navigation failed")
	}
	if err := bound.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("dom did not stabilize during crawl", "url", rawURL)
	}

	if detectChallenge(bound) {
		solveChallenge(ctx, bound)
	}

	html, err := bound.HTML()
	if err != nil {
		return nil, categorizeNavError(err, "failed to extract crawl page html")
	}

	result := &engine.FetchResult{
		RawHTML:    html,
		StatusCode: navStatus(bound),
		SourceTier: engine.TierChromium,
		FinalURL:   evalString(bound, `() => window.location.href`),
	}
	if result.FinalURL == "" {
		result.FinalURL = rawURL
	}

	if s.base.DiscoverLinks {
		disc := discoverNavigation(bound)
		result.DocFramework = disc.Framework
		result.DiscoveredLinks = disc.SameOriginLinks
	}
	return result, nil
}

// Stop tears the session down and releases its pool slot. Safe to call
// more than once.
func (s *CrawlSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	s.teardown()
}
