package extract

import (
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/harvest/models"
)

// wordsPerMinute is the assumed reading speed for reading_time_seconds.
const wordsPerMinute = 200

// collectMetadata builds PageMetadata from the document head plus the
// extracted markdown.
func collectMetadata(doc *goquery.Document, markdown, pageURL string) models.PageMetadata {
	meta := models.PageMetadata{SourceURL: pageURL}

	meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && meta.Title == "" {
		meta.Title = og
	}

	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		meta.Description = desc
	} else if og, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		meta.Description = og
	}

	if lang, ok := doc.Find("html").Attr("lang"); ok {
		meta.Language = lang
	}
	if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
		meta.OGImage = og
	}
	if canonical, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		meta.CanonicalURL = canonical
	}
	if favicon, ok := doc.Find(`link[rel="icon"], link[rel="shortcut icon"]`).Attr("href"); ok {
		meta.Favicon = favicon
	}
	if robots, ok := doc.Find(`meta[name="robots"]`).Attr("content"); ok {
		meta.Robots = robots
	}

	meta.WordCount = len(strings.Fields(markdown))
	meta.ReadingTimeSeconds = readingTimeSeconds(meta.WordCount)
	meta.ContentLength = len(markdown)
	return meta
}

// readingTimeSeconds rounds the estimate up to whole minutes, in seconds.
func readingTimeSeconds(wordCount int) int {
	if wordCount == 0 {
		return 0
	}
	minutes := math.Ceil(float64(wordCount) / wordsPerMinute)
	return int(minutes) * 60
}
