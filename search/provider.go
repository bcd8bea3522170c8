// Package search implements search-then-scrape jobs: a SERP provider
// queried through the fetch cascade, and a runner that scrapes every
// result into job results.
package search

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/models"
)

// Provider returns organic results for a query.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]models.SERPResult, error)
}

// Fetcher runs the tier cascade.
type Fetcher interface {
	Run(ctx context.Context, req *engine.FetchRequest) *engine.FetchResult
}

// CascadeProvider scrapes the DuckDuckGo HTML endpoint through the
// cascade. The HTML endpoint renders without JavaScript, so the cheap
// tiers almost always carry it.
type CascadeProvider struct {
	fetcher Fetcher
}

// NewCascadeProvider wraps the cascade.
func NewCascadeProvider(fetcher Fetcher) *CascadeProvider {
	return &CascadeProvider{fetcher: fetcher}
}

// Search implements Provider.
func (p *CascadeProvider) Search(ctx context.Context, query string, limit int) ([]models.SERPResult, error) {
	serpURL := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(query)

	result := p.fetcher.Run(ctx, &engine.FetchRequest{URL: serpURL})
	if result == nil || result.RawHTML == "" {
		return nil, models.NewScrapeError(models.ErrCodeBlocked, "search results page unavailable", nil)
	}
	return parseResults(result.RawHTML, limit)
}

// parseResults pulls organic entries out of the results markup.
func parseResults(rawHTML string, limit int) ([]models.SERPResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeExtraction, "results page parse failed", err)
	}

	var results []models.SERPResult
	seen := make(map[string]struct{})
	doc.Find("div.result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(results) >= limit {
			return false
		}
		anchor := s.Find("a.result__a").First()
		href, ok := anchor.Attr("href")
		if !ok {
			return true
		}
		target := cleanResultURL(href)
		if target == "" {
			return true
		}
		if _, dup := seen[target]; dup {
			return true
		}
		seen[target] = struct{}{}
		results = append(results, models.SERPResult{
			Title:       strings.TrimSpace(anchor.Text()),
			URL:         target,
			Description: strings.TrimSpace(s.Find(".result__snippet").Text()),
		})
		return true
	})
	return results, nil
}

// cleanResultURL unwraps the redirect links the results page uses
// (/l/?uddg=<encoded target>) and drops ad entries.
func cleanResultURL(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Hostname(), "duckduckgo.com") {
		if wrapped := u.Query().Get("uddg"); wrapped != "" {
			if decoded, err := url.QueryUnescape(wrapped); err == nil {
				href = decoded
				u, err = url.Parse(href)
				if err != nil {
					return ""
				}
			}
		} else {
			return ""
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
