package extract

import (
	nurl "net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// frameworkProfile describes how to find the content region of one
// documentation framework.
type frameworkProfile struct {
	name        string
	signature   string
	boilerplate []string
	content     []string
}

var frameworkProfiles = []frameworkProfile{
	{
		name:        "docusaurus",
		signature:   `#__docusaurus, .theme-doc-sidebar-container`,
		boilerplate: []string{".theme-doc-sidebar-container", ".theme-doc-toc-desktop", ".navbar", ".footer", ".pagination-nav"},
		content:     []string{".theme-doc-markdown", "article .markdown", "main article"},
	},
	{
		name:        "mkdocs-material",
		signature:   `.md-sidebar, .md-main`,
		boilerplate: []string{".md-sidebar", ".md-header", ".md-footer", ".md-nav", ".md-source"},
		content:     []string{".md-content article", ".md-content", "article.md-typeset"},
	},
	{
		name:        "vitepress",
		signature:   `.VPSidebar, .VPDoc`,
		boilerplate: []string{".VPSidebar", ".VPNav", ".VPFooter", ".VPDocAside", ".VPLocalNav"},
		content:     []string{".VPDoc .content", ".vp-doc", "main .content"},
	},
	{
		name:        "gitbook",
		signature:   `[data-testid="gitbook-root"], .gitbook-root`,
		boilerplate: []string{"[data-testid='table-of-contents']", "aside", "header"},
		content:     []string{"main", "[data-testid='page-content']"},
	},
	{
		name:        "readthedocs",
		signature:   `.rst-content, .wy-nav-side`,
		boilerplate: []string{".wy-nav-side", ".wy-breadcrumbs", ".rst-footer-buttons", "footer"},
		content:     []string{".rst-content", ".document", `[role="main"]`},
	},
	{
		name:        "sphinx",
		signature:   `.sphinxsidebar, div.bodywrapper`,
		boilerplate: []string{".sphinxsidebar", ".related", ".footer"},
		content:     []string{"div.body", `[role="main"]`},
	},
	{
		name:        "nextra",
		signature:   `.nextra-sidebar, [class*="nextra"]`,
		boilerplate: []string{".nextra-sidebar", ".nextra-toc", "nav", "footer"},
		content:     []string{"main article", "main .nextra-content", "main"},
	},
	{
		name:        "starlight",
		signature:   `#starlight__sidebar, .sl-container`,
		boilerplate: []string{"#starlight__sidebar", ".right-sidebar", "header", "footer"},
		content:     []string{".sl-markdown-content", "main"},
	},
}

// genericContentSelectors are tried in order when no framework matches.
var genericContentSelectors = []string{
	"main", "article", "[role=main]", "#content", "#main-content", ".main-content",
}

// selectMainContent locates the content region of the document and returns
// its HTML. The cleaned document tree is mutated (framework boilerplate
// removed) before selection.
//
// Order: framework selectors, generic semantic selectors, a readability
// comparison when the heuristic result is thin, and finally body minus
// top-level chrome.
func selectMainContent(doc *goquery.Document, rawHTML, pageURL string) string {
	if html := frameworkContent(doc); html != "" {
		return html
	}

	var heuristic string
	for _, sel := range genericContentSelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		if len(strings.TrimSpace(s.Text())) > 200 {
			h, err := goquery.OuterHtml(s)
			if err == nil {
				heuristic = h
				break
			}
		}
	}

	if heuristic == "" {
		heuristic = bodyMinusChrome(doc)
	}

	// A thin heuristic result gets a second opinion from the readability
	// extractor; the larger body of text wins, with a 1.2x margin so the
	// heuristic keeps ties.
	if len(textOf(heuristic)) < 500 {
		if alt := readabilityContent(rawHTML, pageURL); alt != "" {
			if float64(len(textOf(alt))) >= 1.2*float64(len(textOf(heuristic))) {
				return alt
			}
		}
	}
	return heuristic
}

// frameworkContent detects a documentation framework and applies its
// selector profile.
func frameworkContent(doc *goquery.Document) string {
	for _, p := range frameworkProfiles {
		if doc.Find(p.signature).Length() == 0 {
			continue
		}
		for _, sel := range p.boilerplate {
			doc.Find(sel).Remove()
		}
		for _, sel := range p.content {
			s := doc.Find(sel).First()
			if s.Length() == 0 {
				continue
			}
			if len(strings.TrimSpace(s.Text())) > 100 {
				if h, err := goquery.OuterHtml(s); err == nil {
					return h
				}
			}
		}
		// Signature matched but no content selector passed; fall through
		// to the generic path on the now boilerplate-free tree.
		return ""
	}
	return ""
}

// DetectFramework returns the framework name whose signature matches, or
// "". Exposed for the crawl engine's framework pinning.
func DetectFramework(doc *goquery.Document) string {
	for _, p := range frameworkProfiles {
		if doc.Find(p.signature).Length() > 0 {
			return p.name
		}
	}
	return ""
}

// bodyMinusChrome returns the body with top-level header, footer, and
// small asides removed.
func bodyMinusChrome(doc *goquery.Document) string {
	body := doc.Find("body").First()
	if body.Length() == 0 {
		h, _ := doc.Html()
		return h
	}
	clone := body.Clone()
	clone.ChildrenFiltered("header, footer").Remove()
	clone.ChildrenFiltered("aside").Each(func(_ int, s *goquery.Selection) {
		if len(strings.TrimSpace(s.Text())) < 500 {
			s.Remove()
		}
	})
	h, err := clone.Html()
	if err != nil {
		return ""
	}
	return h
}

// readabilityContent runs the Mozilla readability port over the raw HTML.
func readabilityContent(rawHTML, pageURL string) string {
	u, err := nurl.Parse(pageURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(rawHTML), u)
	if err != nil {
		return ""
	}
	if len(strings.TrimSpace(article.TextContent)) < 50 {
		return ""
	}
	return article.Content
}

// textOf extracts visible text from an HTML fragment.
func textOf(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return strings.TrimSpace(doc.Text())
}
