package models

import "time"

// Job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// Job types.
const (
	JobTypeScrape = "scrape"
	JobTypeCrawl  = "crawl"
	JobTypeSearch = "search"
)

// CrawlRequest is the payload for POST /api/v1/crawl. It is immutable for
// the life of a crawl.
type CrawlRequest struct {
	// URL is the seed page. Required.
	URL string `json:"url" binding:"required,url"`

	// MaxDepth limits crawl depth from the seed. Default 3.
	MaxDepth int `json:"max_depth,omitempty" binding:"omitempty,min=0,max=10"`

	// MaxPages limits persisted pages, capped by MAX_CRAWL_PAGES. Default 50.
	MaxPages int `json:"max_pages,omitempty" binding:"omitempty,min=1"`

	// Concurrency bounds parallel fetches, clamped to 1..10. Default 3.
	Concurrency int `json:"concurrency,omitempty"`

	// AllowExternalLinks permits leaving the seed's registrable domain.
	AllowExternalLinks bool `json:"allow_external_links,omitempty"`

	// IncludePaths / ExcludePaths are glob patterns matched against URL paths.
	IncludePaths []string `json:"include_paths,omitempty"`
	ExcludePaths []string `json:"exclude_paths,omitempty"`

	// RespectRobotsTxt honours robots.txt disallow rules for "*".
	RespectRobotsTxt bool `json:"respect_robots_txt,omitempty"`

	// ScrapeOptions apply to every page fetched by the crawl.
	ScrapeOptions ScrapeRequest `json:"scrape_options,omitempty"`

	// UseProxy routes fetches through the proxy pool.
	UseProxy bool `json:"use_proxy,omitempty"`

	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// Defaults fills unset fields and clamps bounded ones.
func (r *CrawlRequest) Defaults(maxPagesCap int) {
	if r.MaxDepth <= 0 {
		r.MaxDepth = 3
	}
	if r.MaxPages <= 0 {
		r.MaxPages = 50
	}
	if maxPagesCap > 0 && r.MaxPages > maxPagesCap {
		r.MaxPages = maxPagesCap
	}
	if r.Concurrency <= 0 {
		r.Concurrency = 3
	}
	if r.Concurrency > 10 {
		r.Concurrency = 10
	}
	r.ScrapeOptions.Defaults()
}

// Job is the persisted record of an async job.
type Job struct {
	ID             string     `json:"id"`
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	URL            string     `json:"url,omitempty"`
	TotalPages     int        `json:"total_pages"`
	CompletedPages int        `json:"completed_pages"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// JobResult is one persisted page of a crawl or search job.
type JobResult struct {
	URL           string       `json:"url"`
	Markdown      string       `json:"markdown,omitempty"`
	HTML          string       `json:"html,omitempty"`
	Links         []string     `json:"links,omitempty"`
	Extract       any          `json:"extract,omitempty"`
	Metadata      PageMetadata `json:"metadata"`
	ScreenshotURL string       `json:"screenshot_url,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// SearchRequest is the payload for POST /api/v1/search.
type SearchRequest struct {
	Query string `json:"query" binding:"required"`

	// Limit caps how many results are scraped. Default 5, max 20.
	Limit int `json:"limit,omitempty" binding:"omitempty,min=1,max=20"`

	// ScrapeOptions apply to each scraped result.
	ScrapeOptions ScrapeRequest `json:"scrape_options,omitempty"`

	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// Defaults fills unset fields.
func (r *SearchRequest) Defaults() {
	if r.Limit <= 0 {
		r.Limit = 5
	}
	if r.Limit > 20 {
		r.Limit = 20
	}
	r.ScrapeOptions.Defaults()
}

// MapRequest is the payload for POST /api/v1/map (one-shot nav discovery).
type MapRequest struct {
	URL string `json:"url" binding:"required,url"`

	// Limit caps the number of returned URLs. Default 500.
	Limit int `json:"limit,omitempty" binding:"omitempty,min=1"`
}

// MapResponse is the result of a map operation.
type MapResponse struct {
	Success   bool     `json:"success"`
	Framework string   `json:"framework,omitempty"`
	Links     []string `json:"links"`
}
