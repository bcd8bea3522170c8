package extract

import (
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// newMarkdownConverter builds the reusable, goroutine-safe converter:
// ATX headings and dash bullets from the commonmark plugin, fenced code
// blocks with the language tag carried over from class="language-...",
// and compact tables.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			// Commonmark defaults already match the output contract:
			// ATX headings, "-" bullets, backtick fences with the
			// language tag carried from class="language-...".
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// toMarkdown converts an HTML fragment and normalizes the output. The
// pageURL resolves any relative link the URL-resolution pass missed.
func toMarkdown(conv *converter.Converter, html, pageURL string) (string, error) {
	md, err := conv.ConvertString(html, converter.WithDomain(pageURL))
	if err != nil {
		return "", err
	}
	return postProcessMarkdown(md), nil
}

var excessNewlines = regexp.MustCompile(`\n{3,}`)
var trailingSpaces = regexp.MustCompile(`[ \t]+\n`)

// postProcessMarkdown collapses blank-line runs, trims trailing spaces,
// and drops repeated paragraphs. Applying it to its own output is a
// no-op.
func postProcessMarkdown(md string) string {
	// Code fences are carved out first so their whitespace survives.
	segments := splitByCodeFence(md)
	for i := range segments {
		if segments[i].fenced {
			continue
		}
		text := trailingSpaces.ReplaceAllString(segments[i].text, "\n")
		text = excessNewlines.ReplaceAllString(text, "\n\n")
		segments[i].text = text
	}

	var b strings.Builder
	for _, seg := range segments {
		b.WriteString(seg.text)
	}
	return dedupeParagraphs(strings.TrimSpace(b.String())) + "\n"
}

type mdSegment struct {
	text   string
	fenced bool
}

// splitByCodeFence splits markdown into alternating prose and fenced-code
// segments. An unterminated fence runs to the end.
func splitByCodeFence(md string) []mdSegment {
	var segments []mdSegment
	lines := strings.SplitAfter(md, "\n")
	var current strings.Builder
	fenced := false

	flush := func() {
		if current.Len() > 0 {
			segments = append(segments, mdSegment{text: current.String(), fenced: fenced})
			current.Reset()
		}
	}

	for _, line := range lines {
		isFence := strings.HasPrefix(strings.TrimSpace(line), "```")
		if isFence && !fenced {
			flush()
			fenced = true
			current.WriteString(line)
			continue
		}
		current.WriteString(line)
		if isFence && fenced && strings.TrimSpace(line) == "```" && current.Len() > len(line) {
			flush()
			fenced = false
		}
	}
	flush()
	return segments
}

// dedupeParagraphs drops paragraphs whose normalized form was already
// seen. Only paragraphs of 80+ characters participate; shorter ones
// (headings, list items, lone links) repeat legitimately.
func dedupeParagraphs(md string) string {
	paragraphs := strings.Split(md, "\n\n")
	seen := make(map[string]struct{}, len(paragraphs))
	out := paragraphs[:0]

	for _, p := range paragraphs {
		if len(p) >= 80 && !strings.HasPrefix(strings.TrimSpace(p), "```") {
			norm := strings.Join(strings.Fields(strings.ToLower(p)), " ")
			if _, dup := seen[norm]; dup {
				continue
			}
			seen[norm] = struct{}{}
		}
		out = append(out, p)
	}
	return strings.Join(out, "\n\n")
}
