package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"

	"github.com/use-agent/harvest/models"
)

// Extractor runs the extraction pipeline. The markdown converter is built
// once and shared; it is goroutine-safe.
type Extractor struct {
	conv *converter.Converter
}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{conv: newMarkdownConverter()}
}

// Options controls one extraction call.
type Options struct {
	// URL is the page URL used for link resolution and host comparisons.
	URL string

	// Formats selects which artifact fields get populated. Empty means
	// markdown only.
	Formats []string

	// OnlyMainContent narrows markdown/html output to the detected
	// content region.
	OnlyMainContent bool

	// IncludeTags / ExcludeTags are CSS selector filters applied before
	// cleaning.
	IncludeTags []string
	ExcludeTags []string
}

// wants reports whether a format was requested.
func (o *Options) wants(format string) bool {
	if len(o.Formats) == 0 {
		return format == models.FormatMarkdown
	}
	for _, f := range o.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// Run executes the pipeline on raw HTML.
//
// Flow:
//  1. Parse the tree once.
//  2. Harvest derived outputs from the uncleaned tree (links live in the
//     page chrome the cleaner is about to remove).
//  3. Apply include/exclude selector filters.
//  4. Cleaning passes, then resolve every href/src to absolute.
//  5. Select content: main-content region or full body.
//  6. Convert to markdown and post-process.
//  7. Assemble metadata from the head plus the markdown stats.
func (e *Extractor) Run(rawHTML string, opts Options) (*models.ScrapeArtifact, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeExtraction, "html parse failed", err)
	}

	artifact := &models.ScrapeArtifact{}

	if opts.wants(models.FormatRawHTML) {
		artifact.RawHTML = rawHTML
	}
	if opts.wants(models.FormatLinks) {
		artifact.Links = collectLinks(doc, opts.URL)
		artifact.LinksDetail = collectLinksDetail(doc, opts.URL)
	}
	if opts.wants(models.FormatStructuredData) {
		artifact.StructuredData = collectStructuredData(doc)
	}
	if opts.wants(models.FormatHeadings) {
		artifact.Headings = collectHeadings(doc)
	}
	if opts.wants(models.FormatImages) {
		artifact.Images = collectImages(doc, opts.URL)
	}

	applyTagFilters(doc, opts.IncludeTags, opts.ExcludeTags)
	cleanLight(doc, opts.URL)
	resolveURLs(doc, opts.URL)

	var contentHTML string
	if opts.OnlyMainContent {
		cleanMainContent(doc)
		contentHTML = selectMainContent(doc, rawHTML, opts.URL)
	} else {
		contentHTML = bodyHTML(doc)
	}

	if opts.wants(models.FormatHTML) {
		artifact.CleanHTML = contentHTML
	}

	markdown, err := toMarkdown(e.conv, contentHTML, opts.URL)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeExtraction, "markdown conversion failed", err)
	}
	if opts.wants(models.FormatMarkdown) {
		artifact.Markdown = markdown
	}

	artifact.Metadata = collectMetadata(doc, markdown, opts.URL)
	return artifact, nil
}

// Markdown is the single-format shortcut used by the crawl consumer.
func (e *Extractor) Markdown(rawHTML, pageURL string) (string, models.PageMetadata, error) {
	artifact, err := e.Run(rawHTML, Options{
		URL:             pageURL,
		Formats:         []string{models.FormatMarkdown},
		OnlyMainContent: true,
	})
	if err != nil {
		return "", models.PageMetadata{}, err
	}
	return artifact.Markdown, artifact.Metadata, nil
}

// applyTagFilters removes excluded selectors, then narrows the body to
// the included ones when any match.
func applyTagFilters(doc *goquery.Document, include, exclude []string) {
	for _, sel := range exclude {
		doc.Find(sel).Remove()
	}
	if len(include) == 0 {
		return
	}
	combined := strings.Join(include, ", ")
	matches := doc.Find(combined)
	if matches.Length() == 0 {
		return
	}
	var b strings.Builder
	matches.Each(func(_ int, s *goquery.Selection) {
		if h, err := goquery.OuterHtml(s); err == nil {
			b.WriteString(h)
		}
	})
	body := doc.Find("body").First()
	if body.Length() > 0 {
		body.SetHtml(b.String())
	}
}

// bodyHTML returns the body's inner HTML, or the whole document when no
// body exists (fragments).
func bodyHTML(doc *goquery.Document) string {
	body := doc.Find("body").First()
	if body.Length() > 0 {
		if h, err := body.Html(); err == nil {
			return h
		}
	}
	h, _ := doc.Html()
	return h
}
