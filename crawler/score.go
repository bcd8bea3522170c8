// Package crawler implements the BFS crawl engine: a priority-scored
// frontier in the shared store, URL admissibility filtering, robots.txt
// checks, a producer/consumer fetch-extract pipeline, and a quality gate
// over extracted content.
package crawler

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	slugSegment    = regexp.MustCompile(`^[a-z0-9]+-[a-z0-9]+-[a-z0-9]+`)
	alnumIDSegment = regexp.MustCompile(`^[A-Z0-9]{6,}$`)
	numericSegment = regexp.MustCompile(`^[0-9]{4,}$`)
	dateFragment   = regexp.MustCompile(`(19|20)\d{2}[/-](0[1-9]|1[0-2])`)
)

// Score assigns a URL its crawl priority. Content-bearing URLs (slugged
// articles, product IDs, dated paths) score high; utility and deeply
// nested pages score low.
//
// The path-depth penalty applies only to URLs with no content signal: a
// slug or ID segment already pins the URL as content, however deep it
// sits. This keeps /very/deep/article-about-things ahead of /a/b/c/d.
func Score(rawURL string) float64 {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}

	score := 10.0
	bonus := 0.0

	segments := splitPath(u.Path)
	for _, seg := range segments {
		switch {
		case slugSegment.MatchString(seg):
			bonus += 3
		case alnumIDSegment.MatchString(seg):
			bonus += 2
		case numericSegment.MatchString(seg):
			bonus += 2
		}
		if len(seg) > 40 {
			score -= 2
		}
	}
	if dateFragment.MatchString(u.Path) {
		bonus++
	}
	score += bonus

	if bonus == 0 && len(segments) > 1 {
		score -= float64(len(segments) - 1)
	}

	score -= float64(len(u.Query()))

	if score < 0 {
		return 0
	}
	return score
}

func splitPath(path string) []string {
	var segments []string
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}
