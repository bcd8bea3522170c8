// Package extract turns raw fetched HTML into the requested artifact
// formats: cleaned HTML, Markdown, link sets, structured data, headings,
// images, and page metadata. The raw HTML is parsed into a tree exactly
// once per call; every pass traverses that tree.
package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"
)

// nonRenderable are tags that never contribute visible content. noscript
// is deliberately absent: it often carries fallback image URLs.
var nonRenderable = []string{
	"script", "style", "svg", "path", "canvas", "object", "embed",
	"source", "track", "template", "datalist", "iframe", "dialog",
	"select", "option",
}

// hardJunkSelectors match elements that are junk on any page.
var hardJunkSelectors = []string{
	`[class*="cookie-banner"]`, `[id*="cookie-banner"]`,
	`[class*="cookie-consent"]`, `[id*="cookie-consent"]`,
	`[class*="gdpr"]`, `[id*="gdpr"]`,
	`[role="dialog"]`, `[class*="modal"]`, `[id*="modal"]`,
	`[class*="video-player"]`, `[class*="jw-"]`, `[class*="vjs-"]`,
	`.sr-only`, `.screen-reader-only`, `.visually-hidden`, `.visuallyhidden`,
	`[class*="ad-slot"]`, `[class*="ad-container"]`, `[id*="ad-slot"]`,
	`[class*="advert"]`, `ins.adsbygoogle`,
	`[class*="chat-widget"]`, `[id*="intercom"]`, `[id*="drift-"]`,
	`[class*="livechat"]`, `#hubspot-messages-iframe-container`,
}

// softBoilerplateSelectors match page chrome stripped only in
// main-content mode.
var softBoilerplateSelectors = []string{
	"nav", `[role="navigation"]`,
	`[class*="social-share"]`, `[class*="share-buttons"]`, `[class*="sharing"]`,
	`form[role="search"]`, `[class*="search-form"]`, `[class*="searchbox"]`,
	`[class*="announcement"]`, `[class*="banner-bar"]`,
	`[class*="newsletter"]`, `[class*="subscribe-form"]`,
	`[class*="back-to-top"]`, `[class*="scroll-top"]`,
	`[class*="breadcrumb"]`, `[aria-label="breadcrumb"]`,
	`[class*="pagination"]`, `[class*="pager"]`,
}

// imageCDNHosts whitelist third-party hosts that legitimately serve page
// images.
var imageCDNHosts = []string{
	"cloudfront.net", "akamaized.net", "akamaihd.net", "fastly.net",
	"cloudinary.com", "imgix.net", "cdn.shopify.com", "googleusercontent.com",
	"twimg.com", "unsplash.com", "staticflickr.com", "wp.com",
	"imgur.com", "giphy.com", "ytimg.com", "licdn.com", "medium.com",
	"substackcdn.com", "githubusercontent.com",
}

// socialHosts trigger anchor-to-text replacement.
var socialHosts = []string{
	"facebook.com", "twitter.com", "x.com", "linkedin.com",
	"instagram.com", "pinterest.com", "tiktok.com", "reddit.com",
	"youtube.com", "youtu.be", "whatsapp.com", "t.me", "discord.gg",
	"discord.com",
}

// blockTags are the leaf containers subject to the thin-content filter.
var blockTags = "div, section, aside, figure, figcaption, details, summary"

// valuableChildren exempt a block from the thin-content filter.
const valuableChildren = "img, pre, code, table, video, audio, picture, h1, h2, h3, h4, h5, h6"

// cleanLight applies the passes safe for full-page extraction.
func cleanLight(doc *goquery.Document, pageURL string) {
	removeNonRenderable(doc)
	removeInvisible(doc)
	for _, sel := range hardJunkSelectors {
		doc.Find(sel).Remove()
	}
	dropThinBlocks(doc)
	dropTrackingPixels(doc, pageURL)
	flattenSocialLinks(doc)
}

// cleanMainContent additionally strips soft page chrome, leaving anything
// inside a recognized content container alone.
func cleanMainContent(doc *goquery.Document) {
	for _, sel := range softBoilerplateSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if s.Closest("main, article, [role=main], #content, #main-content, .main-content").Length() > 0 {
				return
			}
			s.Remove()
		})
	}
}

func removeNonRenderable(doc *goquery.Document) {
	doc.Find(strings.Join(nonRenderable, ", ")).Remove()
	// meta and link only count as junk inside body; head copies feed the
	// metadata extractors.
	doc.Find("body meta, body link").Remove()
}

func removeInvisible(doc *goquery.Document) {
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		style = strings.ToLower(strings.ReplaceAll(style, " ", ""))
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			s.Remove()
		}
	})
	doc.Find("[hidden]").Remove()
	doc.Find(`[aria-hidden="true"]`).Each(func(_ int, s *goquery.Selection) {
		if len(strings.TrimSpace(s.Text())) < 30 {
			s.Remove()
		}
	})
}

// dropThinBlocks removes leaf blocks with fewer than four words and
// nothing valuable inside. Repeats until stable so newly exposed leaves
// get the same treatment.
func dropThinBlocks(doc *goquery.Document) {
	for pass := 0; pass < 3; pass++ {
		removed := 0
		doc.Find(blockTags).Each(func(_ int, s *goquery.Selection) {
			if s.ChildrenFiltered(blockTags).Length() > 0 {
				return
			}
			if s.Find(valuableChildren).Length() > 0 {
				return
			}
			if len(strings.Fields(s.Text())) < 4 {
				s.Remove()
				removed++
			}
		})
		if removed == 0 {
			break
		}
	}
}

// dropTrackingPixels removes 1x1 images served from unrelated hosts.
func dropTrackingPixels(doc *goquery.Document, pageURL string) {
	pageHost := hostnameOf(pageURL)
	pageDomain := etld1(pageHost)

	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if !strings.HasPrefix(src, "http") {
			return
		}
		host := hostnameOf(src)
		if host == "" || host == pageHost || etld1(host) == pageDomain {
			return
		}
		for _, cdn := range imageCDNHosts {
			if host == cdn || strings.HasSuffix(host, "."+cdn) {
				return
			}
		}
		w, _ := s.Attr("width")
		h, _ := s.Attr("height")
		if (w == "1" && h == "1") || (w == "0" && h == "0") {
			s.Remove()
		}
	})
}

// flattenSocialLinks replaces social-platform anchors with their text.
func flattenSocialLinks(doc *goquery.Document) {
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		host := hostnameOf(href)
		if host == "" {
			return
		}
		for _, social := range socialHosts {
			if host == social || strings.HasSuffix(host, "."+social) {
				s.ReplaceWithHtml(strings.TrimSpace(s.Text()))
				return
			}
		}
	})
}

func hostnameOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func etld1(host string) string {
	if host == "" {
		return ""
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}
