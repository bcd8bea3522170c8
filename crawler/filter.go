package crawler

import (
	"net/url"
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/net/publicsuffix"
)

// skipExtensions are path suffixes that never yield HTML.
var skipExtensions = []string{
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".ico", ".bmp", ".avif",
	".mp4", ".webm", ".mp3", ".wav", ".ogg", ".avi", ".mov",
	".zip", ".tar", ".gz", ".rar", ".7z", ".dmg", ".exe",
	".css", ".js", ".mjs", ".json", ".xml", ".rss", ".atom",
	".woff", ".woff2", ".ttf", ".eot",
}

// junkFirstSegments are utility pages that waste crawl budget.
var junkFirstSegments = map[string]struct{}{
	"signin": {}, "sign-in": {}, "login": {}, "log-in": {}, "logout": {},
	"register": {}, "signup": {}, "sign-up": {}, "password": {},
	"cart": {}, "checkout": {}, "basket": {}, "account": {}, "my-account": {},
	"help": {}, "support": {}, "contact": {}, "contact-us": {},
	"privacy": {}, "privacy-policy": {}, "terms": {}, "terms-of-service": {},
	"legal": {}, "cookie-policy": {}, "cookies": {},
	"search": {}, "sitemap": {}, "feed": {}, "rss": {}, "print": {},
	"404": {}, "wp-admin": {}, "wp-login.php": {}, "cdn-cgi": {},
	"unsubscribe": {}, "preferences": {}, "settings": {},
}

// Filter decides which discovered URLs join the frontier.
type Filter struct {
	seedDomain    string
	maxDepth      int
	allowExternal bool
	include       []glob.Glob
	exclude       []glob.Glob
}

// NewFilter compiles a filter for one crawl. Invalid glob patterns are
// dropped with the rest kept.
func NewFilter(seedURL string, maxDepth int, allowExternal bool, includePaths, excludePaths []string) (*Filter, error) {
	u, err := url.Parse(seedURL)
	if err != nil {
		return nil, err
	}
	f := &Filter{
		seedDomain:    registrable(u.Hostname()),
		maxDepth:      maxDepth,
		allowExternal: allowExternal,
	}
	for _, p := range includePaths {
		if g, err := glob.Compile(p); err == nil {
			f.include = append(f.include, g)
		}
	}
	for _, p := range excludePaths {
		if g, err := glob.Compile(p); err == nil {
			f.exclude = append(f.exclude, g)
		}
	}
	return f, nil
}

// ShouldCrawl reports whether the URL is admissible at the given depth.
func (f *Filter) ShouldCrawl(rawURL string, depth int) bool {
	if depth > f.maxDepth {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if !f.allowExternal && registrable(u.Hostname()) != f.seedDomain {
		return false
	}

	path := strings.ToLower(u.Path)
	for _, ext := range skipExtensions {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}
	if segs := splitPath(path); len(segs) > 0 {
		if _, junk := junkFirstSegments[segs[0]]; junk {
			return false
		}
	}

	if len(f.include) > 0 {
		matched := false
		for _, g := range f.include {
			if g.Match(u.Path) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, g := range f.exclude {
		if g.Match(u.Path) {
			return false
		}
	}
	return true
}

func registrable(host string) string {
	host = strings.ToLower(host)
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}
