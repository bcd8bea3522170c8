package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/extract"
	"github.com/use-agent/harvest/models"
)

// mapTimeout caps the discovery fetch.
const mapTimeout = 90 * time.Second

// Fetcher runs the tier cascade.
type Fetcher interface {
	Run(ctx context.Context, req *engine.FetchRequest) *engine.FetchResult
}

// PostMap returns a handler for POST /api/v1/map: one-shot link discovery
// for a site. The browser tiers expand JavaScript navigation (sidebars,
// hamburger menus, collapsed sections) before links are collected; when a
// cheap tier wins, links come from the static HTML instead.
func PostMap(fetcher Fetcher, extractor *extract.Extractor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.MapRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ScrapeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		if req.Limit <= 0 {
			req.Limit = 500
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), mapTimeout)
		defer cancel()

		result := fetcher.Run(ctx, &engine.FetchRequest{
			URL:           req.URL,
			DiscoverLinks: true,
		})
		if result == nil || (result.RawHTML == "" && len(result.DiscoveredLinks) == 0) {
			respondError(c, models.NewScrapeError(models.ErrCodeBlocked, "site unreachable through every tier", nil))
			return
		}

		links := result.DiscoveredLinks
		if len(links) == 0 && result.RawHTML != "" {
			if artifact, err := extractor.Run(result.RawHTML, extract.Options{
				URL:     req.URL,
				Formats: []string{models.FormatLinks},
			}); err == nil {
				links = artifact.Links
			}
		}
		links = dedupeLinks(links, req.Limit)

		c.JSON(http.StatusOK, models.MapResponse{
			Success:   true,
			Framework: result.DocFramework,
			Links:     links,
		})
	}
}

// dedupeLinks keeps first occurrence order, drops fragments, caps at limit.
func dedupeLinks(links []string, limit int) []string {
	seen := make(map[string]struct{}, len(links))
	out := make([]string, 0, min(len(links), limit))
	for _, l := range links {
		if i := strings.IndexByte(l, '#'); i >= 0 {
			l = l[:i]
		}
		if l == "" {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
		if len(out) >= limit {
			break
		}
	}
	return out
}
