package browser

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Cookie is one cookie captured from a browser context.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	Secure   bool
	HTTPOnly bool
}

// CookieJar shares cookies across contexts by registrable domain, so a
// session warmed on one page carries into later fetches of the same site.
// All methods are safe for concurrent use.
type CookieJar struct {
	mu      sync.RWMutex
	byEtld1 map[string][]Cookie
}

// NewCookieJar creates an empty jar.
func NewCookieJar() *CookieJar {
	return &CookieJar{byEtld1: make(map[string][]Cookie)}
}

// registrableDomain reduces a host or cookie domain to its eTLD+1.
func registrableDomain(host string) string {
	host = strings.TrimPrefix(strings.ToLower(host), ".")
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return etld1
}

// Store merges cookies into the jar under the registrable domain of each
// cookie. Later cookies with the same name+domain+path replace earlier ones.
func (j *CookieJar) Store(cookies []Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, c := range cookies {
		if c.Name == "" || c.Domain == "" {
			continue
		}
		key := registrableDomain(c.Domain)
		existing := j.byEtld1[key]
		replaced := false
		for i, old := range existing {
			if old.Name == c.Name && old.Domain == c.Domain && old.Path == c.Path {
				existing[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, c)
		}
		j.byEtld1[key] = existing
	}
}

// For returns the unexpired cookies applicable to the URL's registrable
// domain.
func (j *CookieJar) For(rawURL string) []Cookie {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	key := registrableDomain(u.Hostname())

	j.mu.RLock()
	defer j.mu.RUnlock()

	now := time.Now()
	var out []Cookie
	for _, c := range j.byEtld1[key] {
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Clear drops every cookie for the URL's registrable domain.
func (j *CookieJar) Clear(rawURL string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.byEtld1, registrableDomain(u.Hostname()))
}

// Size returns the total number of stored cookies.
func (j *CookieJar) Size() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	n := 0
	for _, cs := range j.byEtld1 {
		n += len(cs)
	}
	return n
}
