package crawler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsCache fetches and caches robots.txt rules per scheme+host. A
// failed fetch caches an allow-all group so the crawl never blocks on an
// unreachable robots.txt.
type RobotsCache struct {
	client *http.Client

	mu     sync.Mutex
	groups map[string]*robotstxt.Group
}

// NewRobotsCache creates an empty cache.
func NewRobotsCache() *RobotsCache {
	return &RobotsCache{
		client: &http.Client{Timeout: 10 * time.Second},
		groups: make(map[string]*robotstxt.Group),
	}
}

// Allowed reports whether the "*" agent may fetch the URL.
func (rc *RobotsCache) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	group := rc.groupFor(ctx, u.Scheme, u.Host)
	if group == nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (rc *RobotsCache) groupFor(ctx context.Context, scheme, host string) *robotstxt.Group {
	key := scheme + "://" + host

	rc.mu.Lock()
	if group, ok := rc.groups[key]; ok {
		rc.mu.Unlock()
		return group
	}
	rc.mu.Unlock()

	group := rc.fetch(ctx, key+"/robots.txt")

	rc.mu.Lock()
	rc.groups[key] = group
	rc.mu.Unlock()
	return group
}

// fetch retrieves and parses robots.txt. Any failure yields nil, which
// Allowed treats as allow-all.
func (rc *RobotsCache) fetch(ctx context.Context, robotsURL string) *robotstxt.Group {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	resp, err := rc.client.Do(req)
	if err != nil {
		slog.Debug("robots.txt unreachable, allowing all", "url", robotsURL, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil
	}
	robots, err := robotstxt.FromBytes(body)
	if err != nil {
		slog.Debug("robots.txt unparsable, allowing all", "url", robotsURL, "error", err)
		return nil
	}
	return robots.FindGroup("*")
}
