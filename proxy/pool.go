// Package proxy maintains the upstream proxy pool: failure-weighted random
// selection, per-domain sticky assignment, and auto-banning of proxies that
// keep failing. Health counters live in the shared store so every worker
// sees the same picture.
package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/harvest/store"
)

const (
	// failTTL is how long a failure counter lives without new failures.
	failTTL = 10 * time.Minute

	// banThreshold is the failure count at which a proxy is skipped.
	banThreshold = 5

	// stickyTTL is how long a domain keeps its assigned proxy.
	stickyTTL = time.Hour

	// refreshInterval is how often the remote proxy list is re-fetched.
	refreshInterval = 10 * time.Minute
)

// ErrNoProxies is returned when the pool is empty or fully banned.
var ErrNoProxies = errors.New("proxy: no usable proxies")

// Proxy is one upstream endpoint.
type Proxy struct {
	// URL is the full proxy URL including scheme and credentials.
	URL string

	host string
	port string
}

// parseProxy validates and normalizes one proxy URL.
func parseProxy(raw string) (Proxy, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Proxy{}, fmt.Errorf("proxy: invalid url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return Proxy{}, fmt.Errorf("proxy: invalid url %q", raw)
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		case "socks5", "socks5h":
			port = "1080"
		default:
			port = "80"
		}
	}
	return Proxy{URL: u.String(), host: u.Hostname(), port: port}, nil
}

// Pool selects proxies for outbound fetches.
type Pool struct {
	store   store.Store
	client  *http.Client
	listURL string

	mu        sync.Mutex
	proxies   []Proxy
	refreshed time.Time
}

// NewPool builds a pool from a static list plus an optional list endpoint.
// Invalid entries are dropped with a warning.
func NewPool(s store.Store, builtin []string, listURL string) *Pool {
	p := &Pool{
		store:   s,
		client:  &http.Client{Timeout: 15 * time.Second},
		listURL: listURL,
	}
	for _, raw := range builtin {
		proxy, err := parseProxy(raw)
		if err != nil {
			slog.Warn("dropping invalid builtin proxy", "proxy", raw, "error", err)
			continue
		}
		p.proxies = append(p.proxies, proxy)
	}
	return p
}

// Size returns the number of configured proxies.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

// snapshot returns the current proxy list, refreshing from the list
// endpoint when the cached copy is older than refreshInterval.
func (p *Pool) snapshot(ctx context.Context) []Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listURL != "" && time.Since(p.refreshed) > refreshInterval {
		if fetched, err := p.fetchList(ctx); err != nil {
			slog.Warn("proxy list refresh failed", "url", p.listURL, "error", err)
		} else if len(fetched) > 0 {
			p.proxies = fetched
		}
		// Failed refreshes also wait out the interval; a flapping
		// endpoint must not be hammered.
		p.refreshed = time.Now()
	}

	out := make([]Proxy, len(p.proxies))
	copy(out, p.proxies)
	return out
}

// fetchList pulls one-proxy-per-line text from the list endpoint.
func (p *Pool) fetchList(ctx context.Context) ([]Proxy, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.listURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proxy list endpoint returned %d", resp.StatusCode)
	}

	var proxies []Proxy
	scanner := bufio.NewScanner(io.LimitReader(resp.Body, 1<<20))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		proxy, err := parseProxy(line)
		if err != nil {
			continue
		}
		proxies = append(proxies, proxy)
	}
	return proxies, scanner.Err()
}

func failKey(p Proxy) string { return fmt.Sprintf("proxy:fail:%s:%s", p.host, p.port) }

func stickyKey(domain string) string { return "proxy:sticky:" + domain }

// failCount reads a proxy's current failure counter.
func (p *Pool) failCount(ctx context.Context, proxy Proxy) int {
	v, err := p.store.Get(ctx, failKey(proxy))
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(v)
	return n
}

// GetRandomWeighted picks a proxy, favouring ones that fail less. Proxies
// at or past the ban threshold are skipped entirely.
func (p *Pool) GetRandomWeighted(ctx context.Context) (string, error) {
	return p.pickWeighted(ctx, p.snapshot(ctx))
}

func (p *Pool) pickWeighted(ctx context.Context, candidates []Proxy) (string, error) {
	type weighted struct {
		proxy  Proxy
		weight float64
	}
	var (
		survivors []weighted
		total     float64
	)
	for _, proxy := range candidates {
		fails := p.failCount(ctx, proxy)
		if fails >= banThreshold {
			continue
		}
		w := 1.0 / float64(1+fails)
		survivors = append(survivors, weighted{proxy: proxy, weight: w})
		total += w
	}
	if len(survivors) == 0 {
		return "", ErrNoProxies
	}

	r := rand.Float64() * total
	for _, s := range survivors {
		r -= s.weight
		if r <= 0 {
			return s.proxy.URL, nil
		}
	}
	return survivors[len(survivors)-1].proxy.URL, nil
}

// ForDomain returns the domain's sticky proxy, assigning one when the
// domain has none or its previous assignment got banned.
func (p *Pool) ForDomain(ctx context.Context, domain string) (string, error) {
	if assigned, err := p.store.Get(ctx, stickyKey(domain)); err == nil && assigned != "" {
		if proxy, err := parseProxy(assigned); err == nil && p.failCount(ctx, proxy) < banThreshold {
			return assigned, nil
		}
	}

	chosen, err := p.GetRandomWeighted(ctx)
	if err != nil {
		return "", err
	}
	if err := p.store.SetTTL(ctx, stickyKey(domain), chosen, stickyTTL); err != nil {
		slog.Warn("sticky proxy assignment not persisted", "domain", domain, "error", err)
	}
	return chosen, nil
}

// MarkFailed bumps a proxy's failure counter. The counter expires after
// failTTL, so a banned proxy returns to rotation once it stops failing.
func (p *Pool) MarkFailed(ctx context.Context, proxyURL string) error {
	proxy, err := parseProxy(proxyURL)
	if err != nil {
		return err
	}
	n, err := p.store.Incr(ctx, failKey(proxy))
	if err != nil {
		return err
	}
	if err := p.store.Expire(ctx, failKey(proxy), failTTL); err != nil {
		return err
	}
	if n == banThreshold {
		slog.Warn("proxy auto-banned", "host", proxy.host, "port", proxy.port, "failures", n)
	}
	return nil
}
