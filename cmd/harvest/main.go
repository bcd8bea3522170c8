package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/harvest/api"
	"github.com/use-agent/harvest/browser"
	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/crawler"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/extract"
	"github.com/use-agent/harvest/jobs"
	"github.com/use-agent/harvest/llm"
	"github.com/use-agent/harvest/proxy"
	"github.com/use-agent/harvest/scrape"
	"github.com/use-agent/harvest/search"
	"github.com/use-agent/harvest/store"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("harvest starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
	)

	// ── 3. Connect the state store ──────────────────────────────────
	// Crawl frontiers, jobs, caches, and proxy health all live here.
	// Without Redis the process still serves scrapes; jobs survive only
	// as long as the process does.
	st := connectStore(cfg.Redis)
	defer st.Close()

	// ── 4. Initialise the browser backend ───────────────────────────
	var backend engine.BrowserBackend
	var sessions crawler.SessionFactory
	firefoxAvailable := false

	if cfg.Browser.StealthEngineURL != "" {
		sidecar := browser.NewSidecarClient(cfg.Browser.StealthEngineURL)
		backend = sidecar
		sessions = func(base *engine.FetchRequest) crawler.Session {
			return browser.NewSidecarSession(sidecar, base)
		}
		firefoxAvailable = true
		slog.Info("using stealth browser sidecar", "url", cfg.Browser.StealthEngineURL)
	} else {
		pool, err := browser.NewPool(cfg.Browser, cfg.Scraper.NavigationTimeout)
		if err != nil {
			slog.Error("failed to launch browser pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		backend = pool
		sessions = func(base *engine.FetchRequest) crawler.Session {
			return browser.NewCrawlSession(pool, base)
		}
		firefoxAvailable = cfg.Browser.FirefoxBin != ""
	}

	orchestrator := engine.NewDefaultOrchestrator(backend, firefoxAvailable)

	// ── 5. Supporting services ──────────────────────────────────────
	extractor := extract.New()
	proxies := proxy.NewPool(st, cfg.Proxy.BuiltinProxies, cfg.Proxy.ListURL)
	jobStore := jobs.NewStore(st)
	contentCache := cache.NewContent(st, cfg.Cache.ContentTTL)
	jobCache := cache.NewJobResponse(st, cfg.Cache.JobResponseTTL)

	var structured *llm.Client
	llmClient := llm.NewClient(cfg.LLM)
	if llmClient.Configured() {
		structured = llmClient
		slog.Info("llm extraction enabled", "model", cfg.LLM.Model)
	}

	// ── 6. Core operations ──────────────────────────────────────────
	scrapeDeps := scrape.Deps{
		Fetcher:       orchestrator,
		Extractor:     extractor,
		Cache:         contentCache,
		MaxConcurrent: cfg.Scraper.MaxConcurrent,
		MaxTimeout:    cfg.Scraper.MaxTimeout,
	}
	crawlDeps := crawler.Deps{
		Store:       st,
		Jobs:        jobStore,
		Backend:     backend,
		Fetcher:     orchestrator,
		Sessions:    sessions,
		Extractor:   extractor,
		MaxPagesCap: cfg.Crawl.MaxPages,
	}
	if proxies.Size() > 0 {
		scrapeDeps.Proxies = proxies
		crawlDeps.Proxies = proxies
	}
	if structured != nil {
		scrapeDeps.LLM = structured
		crawlDeps.LLM = structured
	}

	scrapeSvc := scrape.NewService(scrapeDeps)
	cr := crawler.New(crawlDeps)
	searchRunner := search.NewRunner(search.NewCascadeProvider(orchestrator), scrapeSvc, jobStore)

	// ── 7. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(api.Deps{
		Scrape:    scrapeSvc,
		Crawler:   cr,
		Search:    searchRunner,
		Jobs:      jobStore,
		JobCache:  jobCache,
		Fetcher:   orchestrator,
		Extractor: extractor,
		Store:     st,
		StartTime: time.Now(),
	}, cfg)

	// ── 8. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 9. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("harvest stopped")
}

// connectStore pings Redis and falls back to the in-process store when it
// is unreachable.
func connectStore(cfg config.RedisConfig) store.Store {
	rdb := store.NewRedis(cfg.Addr, cfg.Password, cfg.DB)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx); err != nil {
		slog.Warn("redis unreachable, using in-process store", "addr", cfg.Addr, "error", err)
		rdb.Close()
		return store.NewMemory()
	}

	slog.Info("redis connected", "addr", cfg.Addr)
	return rdb
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
