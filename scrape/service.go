// Package scrape composes the fetch cascade with the extraction pipeline
// into the single-page scrape operation the API, the search runner, and
// the MCP server all call.
package scrape

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/extract"
	"github.com/use-agent/harvest/models"
)

// acquireTimeout bounds the wait for a scrape slot.
const acquireTimeout = 30 * time.Second

// Fetcher runs the tier cascade.
type Fetcher interface {
	Run(ctx context.Context, req *engine.FetchRequest) *engine.FetchResult
}

// ProxyPicker assigns a sticky proxy per target domain.
type ProxyPicker interface {
	ForDomain(ctx context.Context, domain string) (string, error)
}

// StructuredExtractor is the optional LLM extraction hook.
type StructuredExtractor interface {
	Extract(ctx context.Context, content, prompt string, schema map[string]any) (any, error)
}

// Deps wires a Service.
type Deps struct {
	Fetcher   Fetcher
	Extractor *extract.Extractor

	// Optional.
	Cache   *cache.Content
	Proxies ProxyPicker
	LLM     StructuredExtractor

	// MaxConcurrent bounds simultaneous scrapes; 0 means unbounded.
	MaxConcurrent int

	// MaxTimeout caps the whole scrape; 0 means no cap.
	MaxTimeout time.Duration
}

// Service executes single-page scrapes.
type Service struct {
	deps Deps
	sem  chan struct{}
}

// NewService builds a Service.
func NewService(deps Deps) *Service {
	s := &Service{deps: deps}
	if deps.MaxConcurrent > 0 {
		s.sem = make(chan struct{}, deps.MaxConcurrent)
	}
	return s
}

// Scrape fetches one page through the cascade and extracts the requested
// formats. The returned artifact is non-nil on success; a Blocked artifact
// means every tier failed and the payload is the best partial.
func (s *Service) Scrape(ctx context.Context, req *models.ScrapeRequest) (*models.ScrapeArtifact, error) {
	req.Defaults()

	target, err := url.Parse(req.URL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "url must be absolute http(s)", err)
	}
	if engine.IsDocumentURL(req.URL) {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput,
			"document formats are not scrapeable, use a document extractor", nil)
	}

	if artifact, hit := s.cacheGet(ctx, req); hit {
		slog.Debug("content cache hit", "url", req.URL)
		return artifact, nil
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if s.deps.MaxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.MaxTimeout)
		defer cancel()
	}

	result := s.deps.Fetcher.Run(ctx, s.fetchRequest(ctx, req, target))
	if result == nil || result.RawHTML == "" {
		if ctx.Err() != nil {
			return nil, models.NewScrapeError(models.ErrCodeTimeout, "scrape timed out", ctx.Err())
		}
		return nil, models.NewScrapeError(models.ErrCodeBlocked, "all fetch tiers exhausted", nil)
	}

	pageURL := result.FinalURL
	if pageURL == "" {
		pageURL = req.URL
	}
	artifact, err := s.deps.Extractor.Run(result.RawHTML, extract.Options{
		URL:             pageURL,
		Formats:         req.Formats,
		OnlyMainContent: req.OnlyMainContent,
		IncludeTags:     req.IncludeTags,
		ExcludeTags:     req.ExcludeTags,
	})
	if err != nil {
		return nil, err
	}

	artifact.SourceTier = result.SourceTier
	artifact.Blocked = !result.Best
	artifact.Screenshot = result.Screenshot
	artifact.ActionShots = result.ActionScreenshots
	artifact.Metadata.StatusCode = result.StatusCode
	artifact.Metadata.ResponseHeaders = result.ResponseHeaders
	if artifact.Metadata.SourceURL == "" {
		artifact.Metadata.SourceURL = pageURL
	}

	if req.Extract != nil && s.deps.LLM != nil && artifact.Markdown != "" {
		extracted, err := s.deps.LLM.Extract(ctx, artifact.Markdown, req.Extract.Prompt, req.Extract.Schema)
		if err != nil {
			slog.Warn("llm extraction failed", "url", req.URL, "error", err)
		} else {
			artifact.Extract = extracted
		}
	}

	if s.deps.Cache != nil {
		s.deps.Cache.Set(ctx, req, artifact)
	}
	return artifact, nil
}

func (s *Service) cacheGet(ctx context.Context, req *models.ScrapeRequest) (*models.ScrapeArtifact, bool) {
	if s.deps.Cache == nil {
		return nil, false
	}
	return s.deps.Cache.Get(ctx, req)
}

// acquire claims a concurrency slot, failing with a capacity error after
// 30s rather than queueing forever.
func (s *Service) acquire(ctx context.Context) (func(), error) {
	if s.sem == nil {
		return func() {}, nil
	}
	t := time.NewTimer(acquireTimeout)
	defer t.Stop()
	select {
	case s.sem <- struct{}{}:
		return func() { <-s.sem }, nil
	case <-t.C:
		return nil, models.NewScrapeError(models.ErrCodeCapacity, "scraper at capacity", nil)
	case <-ctx.Done():
		return nil, models.NewScrapeError(models.ErrCodeTimeout, "scrape cancelled while queued", ctx.Err())
	}
}

// fetchRequest maps the API request onto the cascade's request type.
func (s *Service) fetchRequest(ctx context.Context, req *models.ScrapeRequest, target *url.URL) *engine.FetchRequest {
	out := &engine.FetchRequest{
		URL:        req.URL,
		Headers:    req.Headers,
		Cookies:    req.Cookies,
		Timeout:    time.Duration(req.Timeout) * time.Millisecond,
		WaitFor:    time.Duration(req.WaitFor) * time.Millisecond,
		Screenshot: req.WantsFormat(models.FormatScreenshot),
		Mobile:     req.Mobile,
		Actions:    toActionSpecs(req.Actions),
	}
	if req.UseProxy && s.deps.Proxies != nil {
		proxy, err := s.deps.Proxies.ForDomain(ctx, target.Hostname())
		if err != nil {
			slog.Warn("no proxy available, fetching direct", "url", req.URL, "error", err)
		} else {
			out.Proxy = proxy
		}
	}
	return out
}

// toActionSpecs converts API actions to the engine's mirror type.
func toActionSpecs(actions []models.Action) []engine.ActionSpec {
	if len(actions) == 0 {
		return nil
	}
	specs := make([]engine.ActionSpec, len(actions))
	for i, a := range actions {
		specs[i] = engine.ActionSpec{
			Type:         a.Type,
			Selector:     a.Selector,
			Text:         a.Text,
			Value:        a.Value,
			Key:          a.Key,
			Script:       a.Script,
			Milliseconds: a.Milliseconds,
			Direction:    a.Direction,
			Amount:       a.Amount,
			Fields:       a.Fields,
		}
	}
	return specs
}
