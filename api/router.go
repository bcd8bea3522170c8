// Package api wires the REST surface: a gin router dispatching to the
// scrape service, the crawl engine, and the search runner.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/api/handler"
	"github.com/use-agent/harvest/api/middleware"
	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/crawler"
	"github.com/use-agent/harvest/extract"
	"github.com/use-agent/harvest/jobs"
	"github.com/use-agent/harvest/scrape"
	"github.com/use-agent/harvest/search"
	"github.com/use-agent/harvest/store"
)

// Version reported by the health endpoint.
const Version = "0.1.0"

// Deps carries everything the routes dispatch to.
type Deps struct {
	Scrape    *scrape.Service
	Crawler   *crawler.Crawler
	Search    *search.Runner
	Jobs      *jobs.Store
	JobCache  *cache.JobResponse
	Fetcher   handler.Fetcher
	Extractor *extract.Extractor
	Store     store.Store
	StartTime time.Time
}

// NewRouter creates a configured gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(deps Deps, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(deps.Store, deps.StartTime, Version))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Scrape
	protected.POST("/scrape", handler.Scrape(deps.Scrape))

	// Crawl
	protected.POST("/crawl", handler.PostCrawl(deps.Jobs, deps.Crawler))
	protected.GET("/crawl/:id", handler.GetCrawl(deps.Jobs, deps.JobCache))
	protected.DELETE("/crawl/:id", handler.CancelCrawl(deps.Jobs, deps.JobCache))

	// Map
	protected.POST("/map", handler.PostMap(deps.Fetcher, deps.Extractor))

	// Search
	protected.POST("/search", handler.PostSearch(deps.Jobs, deps.Search))

	return r
}
