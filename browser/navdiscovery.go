package browser

import (
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
)

// NavDiscovery is the outcome of deep navigation discovery on a rendered
// page: the detected documentation framework and the links found after
// expanding collapsed navigation.
type NavDiscovery struct {
	Framework       string
	SameOriginLinks []string
	AllLinks        []string
}

// frameworkMarkers maps a CSS selector to the framework it identifies.
// Order matters: the first match wins, so the more specific selectors
// come first.
var frameworkMarkers = []struct {
	selector  string
	framework string
}{
	{`meta[name="generator"][content*="Docusaurus"]`, "docusaurus"},
	{`meta[name="generator"][content*="VuePress"]`, "vuepress"},
	{`meta[name="generator"][content*="Gatsby"]`, "gatsby"},
	{`meta[name="generator"][content*="Hugo"]`, "hugo"},
	{`meta[name="generator"][content*="Sphinx"]`, "sphinx"},
	{`meta[name="generator"][content*="mkdocs"]`, "mkdocs"},
	{`meta[name="generator"][content*="Gitbook"]`, "gitbook"},
	{`.theme-doc-sidebar-container`, "docusaurus"},
	{`#__docusaurus`, "docusaurus"},
	{`.md-sidebar`, "mkdocs-material"},
	{`.VPSidebar`, "vitepress"},
	{`.vp-sidebar`, "vuepress"},
	{`[data-testid="gitbook-root"]`, "gitbook"},
	{`.gitbook-root`, "gitbook"},
	{`.rst-content`, "readthedocs"},
	{`.wy-nav-side`, "readthedocs"},
	{`#docs-content`, "slate"},
	{`.toc-wrapper`, "slate"},
	{`#__next [class*="nextra"]`, "nextra"},
	{`.nextra-sidebar`, "nextra"},
	{`[class*="mintlify"]`, "mintlify"},
	{`#starlight__sidebar`, "starlight"},
	{`.sl-container`, "starlight"},
	{`[data-rspress-nav]`, "rspress"},
	{`.aside-container`, "vitepress"},
}

// expanderSelectors match collapsed navigation toggles across the known
// frameworks plus generic disclosure patterns.
const expanderSelectors = `
	'.menu__list-item--collapsed .menu__link--sublist',
	'.menu__caret',
	'details:not([open]) > summary',
	'[aria-expanded="false"]',
	'.md-nav__toggle:not(:checked) ~ label',
	'.VPSidebarItem.collapsed .caret'
`

// navContainerSelectors locate the navigation chrome the harvest reads.
const navContainerSelectors = `nav, aside, .sidebar, [class*="sidebar"], [class*="menu"], .toc`

// discoverNavigation detects the documentation framework and harvests
// navigation links, clicking collapsed sections open for up to four
// rounds. When the framework navigation yields fewer than ten links the
// harvest falls back to every anchor on the page.
func discoverNavigation(page *rod.Page) *NavDiscovery {
	out := &NavDiscovery{Framework: detectFramework(page)}

	// Client-rendered nav chrome can lag the DOM-stable signal; give it
	// up to five seconds to appear before expansion begins.
	_, _ = page.Timeout(5 * time.Second).Element(navContainerSelectors)

	// Expansion rounds stop early once a round opens nothing new.
	for round := 0; round < 4; round++ {
		res, err := page.Eval(`() => {
			const sels = [` + expanderSelectors + `];
			let clicked = 0;
			for (const sel of sels) {
				for (const el of document.querySelectorAll(sel)) {
					try { el.click(); clicked++; } catch (e) {}
					if (clicked >= 50) return clicked;
				}
			}
			return clicked;
		}`)
		if err != nil || res.Value.Int() == 0 {
			break
		}
	}

	// Raw href attributes come back as written; hygiene and resolution
	// happen Go-side where they are testable.
	res, err := page.Eval(`() => {
		const navSel = 'nav a[href], aside a[href], .sidebar a[href], [class*="sidebar"] a[href], [class*="menu"] a[href], .toc a[href]';
		const collect = (sel) => {
			const seen = new Set();
			for (const a of document.querySelectorAll(sel)) {
				const href = a.getAttribute('href');
				if (href) seen.add(href);
			}
			return [...seen];
		};
		let nav = collect(navSel);
		const all = collect('a[href]');
		if (nav.length < 10) nav = all;
		return { base: window.location.href, nav: nav, all: all };
	}`)
	if err != nil {
		return out
	}
	base, err := url.Parse(res.Value.Get("base").Str())
	if err != nil || base.Host == "" {
		return out
	}

	var nav, all []string
	for _, v := range res.Value.Get("nav").Arr() {
		nav = append(nav, v.Str())
	}
	for _, v := range res.Value.Get("all").Arr() {
		all = append(all, v.Str())
	}
	out.SameOriginLinks = sameOriginOnly(resolveNavLinks(nav, base), base)
	out.AllLinks = resolveNavLinks(all, base)
	return out
}

// resolveNavLinks resolves raw href attributes against the page URL,
// dropping fragment-only, mailto:, tel:, javascript:, and data: links,
// stripping fragments, and deduplicating in first-seen order.
func resolveNavLinks(raws []string, base *url.URL) []string {
	seen := make(map[string]struct{}, len(raws))
	var out []string
	for _, raw := range raws {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		lower := strings.ToLower(raw)
		if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") ||
			strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "data:") {
			continue
		}
		ref, err := url.Parse(raw)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		abs.Fragment = ""
		link := abs.String()
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		out = append(out, link)
	}
	return out
}

// sameOriginOnly keeps the links on the page's scheme and host.
func sameOriginOnly(links []string, base *url.URL) []string {
	var out []string
	for _, link := range links {
		u, err := url.Parse(link)
		if err != nil {
			continue
		}
		if u.Scheme == base.Scheme && u.Host == base.Host {
			out = append(out, link)
		}
	}
	return out
}

// detectFramework returns the first matching framework marker, or "".
func detectFramework(page *rod.Page) string {
	for _, m := range frameworkMarkers {
		res, err := page.Eval(`(sel) => !!document.querySelector(sel)`, m.selector)
		if err != nil {
			continue
		}
		if res.Value.Bool() {
			return m.framework
		}
	}
	return ""
}
