package extract

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/harvest/models"
)

// resolveURLs rewrites every href and src on the tree to an absolute URL.
// Fragment-only, mailto:, tel:, javascript:, and data: references are left
// alone. Running it twice is a no-op.
func resolveURLs(doc *goquery.Document, pageURL string) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return
	}
	rewrite := func(s *goquery.Selection, attr string) {
		raw, ok := s.Attr(attr)
		if !ok || raw == "" {
			return
		}
		if strings.HasPrefix(raw, "#") || hasSkippedScheme(raw) {
			return
		}
		resolved, err := base.Parse(raw)
		if err != nil {
			return
		}
		s.SetAttr(attr, resolved.String())
	}
	doc.Find("[href]").Each(func(_ int, s *goquery.Selection) { rewrite(s, "href") })
	doc.Find("[src]").Each(func(_ int, s *goquery.Selection) { rewrite(s, "src") })
}

func hasSkippedScheme(raw string) bool {
	lower := strings.ToLower(raw)
	for _, p := range []string{"mailto:", "tel:", "javascript:", "data:"} {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// collectLinks gathers unique absolute URLs from anchors, canonical and
// next/prev link elements, form actions, and data-href/data-url
// attributes. SPA fragment routes ("#/..." and "#!/...") survive
// normalization; plain fragments are stripped.
func collectLinks(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	add := func(raw string) {
		if raw == "" || hasSkippedScheme(raw) {
			return
		}
		resolved, err := base.Parse(raw)
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		if resolved.Fragment != "" && !strings.HasPrefix(resolved.Fragment, "/") && !strings.HasPrefix(resolved.Fragment, "!/") {
			resolved.Fragment = ""
		}
		abs := resolved.String()
		if abs == "" {
			return
		}
		seen[abs] = struct{}{}
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		add(href)
	})
	doc.Find(`link[rel="next"], link[rel="prev"], link[rel="canonical"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		add(href)
	})
	doc.Find("form[action]").Each(func(_ int, s *goquery.Selection) {
		action, _ := s.Attr("action")
		add(action)
	})
	doc.Find("[data-href], [data-url]").Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("data-href"); ok {
			add(v)
		}
		if v, ok := s.Attr("data-url"); ok {
			add(v)
		}
	})

	links := make([]string, 0, len(seen))
	for l := range seen {
		links = append(links, l)
	}
	sort.Strings(links)
	return links
}

// collectLinksDetail separates anchors into internal and external by host
// match with the page, keeping presentation attributes.
func collectLinksDetail(doc *goquery.Document, pageURL string) *models.LinksDetail {
	detail := &models.LinksDetail{
		Internal: []models.Link{},
		External: []models.Link{},
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return detail
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" || hasSkippedScheme(href) || strings.HasPrefix(href, "#") {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil || (resolved.Scheme != "http" && resolved.Scheme != "https") {
			return
		}
		abs := resolved.String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}

		rel, _ := s.Attr("rel")
		target, _ := s.Attr("target")
		title, _ := s.Attr("title")
		link := models.Link{
			Href:     abs,
			Text:     strings.TrimSpace(s.Text()),
			Title:    title,
			NoFollow: strings.Contains(rel, "nofollow"),
			NewTab:   target == "_blank",
		}
		if strings.EqualFold(resolved.Host, base.Host) {
			detail.Internal = append(detail.Internal, link)
		} else {
			detail.External = append(detail.External, link)
		}
	})
	return detail
}

// ogListKeys are OpenGraph properties collected as lists because pages
// legally repeat them.
var ogListKeys = map[string]struct{}{
	"og:image":        {},
	"og:image:url":    {},
	"og:image:width":  {},
	"og:image:height": {},
	"og:image:alt":    {},
	"og:video":        {},
	"og:video:url":    {},
	"og:audio":        {},
	"og:audio:url":    {},
}

// collectStructuredData parses JSON-LD blocks, OpenGraph, Twitter-Card,
// and remaining meta tags. Malformed JSON-LD blocks are skipped
// individually.
func collectStructuredData(doc *goquery.Document) *models.StructuredData {
	sd := &models.StructuredData{
		OpenGraph:   map[string]any{},
		TwitterCard: map[string]string{},
		MetaTags:    map[string]string{},
	}

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var parsed any
		if err := json.Unmarshal([]byte(s.Text()), &parsed); err != nil {
			return
		}
		sd.JSONLD = append(sd.JSONLD, parsed)
	})

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, _ := s.Attr("content")
		if content == "" {
			return
		}
		prop, _ := s.Attr("property")
		name, _ := s.Attr("name")
		httpEquiv, _ := s.Attr("http-equiv")

		switch {
		case strings.HasPrefix(prop, "og:"):
			if _, list := ogListKeys[prop]; list {
				switch existing := sd.OpenGraph[prop].(type) {
				case nil:
					sd.OpenGraph[prop] = []string{content}
				case []string:
					sd.OpenGraph[prop] = append(existing, content)
				}
			} else if _, dup := sd.OpenGraph[prop]; !dup {
				sd.OpenGraph[prop] = content
			}
		case strings.HasPrefix(name, "twitter:"):
			sd.TwitterCard[name] = content
		case name != "":
			sd.MetaTags[name] = content
		case httpEquiv != "":
			sd.MetaTags[httpEquiv] = content
		}
	})

	if len(sd.JSONLD) == 0 && len(sd.OpenGraph) == 0 && len(sd.TwitterCard) == 0 && len(sd.MetaTags) == 0 {
		return nil
	}
	return sd
}

// collectHeadings returns h1 through h6 in document order.
func collectHeadings(doc *goquery.Document) []models.Heading {
	var headings []models.Heading
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		id, _ := s.Attr("id")
		level := int(goquery.NodeName(s)[1] - '0')
		headings = append(headings, models.Heading{Level: level, Text: text, ID: id})
	})
	return headings
}

// collectImages gathers img elements (src, data-src, srcset) and picture
// sources.
func collectImages(doc *goquery.Document, pageURL string) []models.Image {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	abs := func(raw string) string {
		resolved, err := base.Parse(raw)
		if err != nil || resolved.Scheme == "data" {
			return ""
		}
		return resolved.String()
	}

	var images []models.Image
	seen := make(map[string]struct{})

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if src == "" {
			src, _ = s.Attr("data-src")
		}
		resolved := abs(src)
		if resolved == "" {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}

		alt, _ := s.Attr("alt")
		width, _ := s.Attr("width")
		height, _ := s.Attr("height")
		img := models.Image{
			Src:    resolved,
			Alt:    strings.TrimSpace(alt),
			Width:  width,
			Height: height,
		}
		if srcset, ok := s.Attr("srcset"); ok {
			img.Srcset = parseSrcset(srcset, base)
		}
		images = append(images, img)
	})

	doc.Find("picture source[srcset]").Each(func(_ int, s *goquery.Selection) {
		srcset, _ := s.Attr("srcset")
		entries := parseSrcset(srcset, base)
		if len(entries) == 0 {
			return
		}
		if _, dup := seen[entries[0].URL]; dup {
			return
		}
		seen[entries[0].URL] = struct{}{}
		media, _ := s.Attr("media")
		images = append(images, models.Image{
			Src:    entries[0].URL,
			Srcset: entries,
			Media:  media,
		})
	})
	return images
}

// parseSrcset splits a srcset attribute into URL/descriptor pairs.
func parseSrcset(srcset string, base *url.URL) []models.SrcsetEntry {
	var entries []models.SrcsetEntry
	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(candidate))
		if len(fields) == 0 {
			continue
		}
		resolved, err := base.Parse(fields[0])
		if err != nil {
			continue
		}
		entry := models.SrcsetEntry{URL: resolved.String()}
		if len(fields) > 1 {
			entry.Descriptor = fields[1]
		}
		entries = append(entries, entry)
	}
	return entries
}
