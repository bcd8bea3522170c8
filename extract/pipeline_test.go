package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/harvest/models"
)

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return d
}

func TestRunProducesMarkdownWithMetadata(t *testing.T) {
	html := `<html lang="en"><head>
		<title>Widget Guide</title>
		<meta name="description" content="How to use widgets">
	</head><body>
		<article>
			<h1>Widget Guide</h1>
			<p>Widgets are assembled from smaller widgets in a recursive process that continues until the base widget is reached.</p>
			<pre><code class="language-go">fmt.Println("widget")</code></pre>
		</article>
	</body></html>`

	e := New()
	artifact, err := e.Run(html, Options{URL: "https://example.com/guide", Formats: []string{models.FormatMarkdown}})
	require.NoError(t, err)

	assert.Contains(t, artifact.Markdown, "# Widget Guide")
	assert.Contains(t, artifact.Markdown, "```go")
	assert.Equal(t, "Widget Guide", artifact.Metadata.Title)
	assert.Equal(t, "How to use widgets", artifact.Metadata.Description)
	assert.Equal(t, "en", artifact.Metadata.Language)
	assert.Greater(t, artifact.Metadata.WordCount, 10)
}

func TestReadingTimeRoundsUpToMinutes(t *testing.T) {
	assert.Equal(t, 0, readingTimeSeconds(0))
	assert.Equal(t, 60, readingTimeSeconds(1))
	assert.Equal(t, 60, readingTimeSeconds(200))
	assert.Equal(t, 120, readingTimeSeconds(201))
	assert.Equal(t, 300, readingTimeSeconds(1000))
}

func TestCleanLightDropsThinBlocksKeepsValuable(t *testing.T) {
	d := doc(t, `<html><body>
		<div id="thin">ok go</div>
		<div id="img-holder"><img src="https://example.com/a.png"></div>
		<div id="real">This block carries enough words to clearly survive the filter.</div>
	</body></html>`)
	cleanLight(d, "https://example.com/")

	assert.Equal(t, 0, d.Find("#thin").Length())
	assert.Equal(t, 1, d.Find("#img-holder").Length())
	assert.Equal(t, 1, d.Find("#real").Length())
}

func TestCleanLightKeepsNoscript(t *testing.T) {
	d := doc(t, `<html><body><script>x()</script><noscript><img src="/fallback.png"></noscript></body></html>`)
	cleanLight(d, "https://example.com/")

	assert.Equal(t, 0, d.Find("script").Length())
	assert.Equal(t, 1, d.Find("noscript").Length())
}

func TestCleanLightDropsTrackingPixelKeepsCDNImage(t *testing.T) {
	d := doc(t, `<html><body>
		<img id="pixel" src="https://tracker.example.net/p.gif" width="1" height="1">
		<img id="cdn" src="https://d123.cloudfront.net/hero.jpg" width="1" height="1">
		<img id="big" src="https://othersite.example.net/photo.jpg" width="800" height="600">
	</body></html>`)
	cleanLight(d, "https://example.com/page")

	assert.Equal(t, 0, d.Find("#pixel").Length())
	assert.Equal(t, 1, d.Find("#cdn").Length())
	assert.Equal(t, 1, d.Find("#big").Length())
}

func TestFlattenSocialLinks(t *testing.T) {
	d := doc(t, `<html><body><p>Follow us on <a href="https://twitter.com/acme">Twitter</a> today.</p></body></html>`)
	cleanLight(d, "https://example.com/")

	assert.Equal(t, 0, d.Find("a").Length())
	assert.Contains(t, d.Find("p").Text(), "Twitter")
}

func TestSelectMainContentDocusaurus(t *testing.T) {
	long := strings.Repeat("Real documentation prose with substance. ", 10)
	d := doc(t, `<html><body><div id="__docusaurus">
		<div class="theme-doc-sidebar-container"><a href="/a">Nav A</a></div>
		<main><article><div class="theme-doc-markdown">`+long+`</div></article></main>
	</div></body></html>`)

	html := selectMainContent(d, "", "https://docs.example.com/x")
	assert.Contains(t, html, "Real documentation prose")
	assert.NotContains(t, html, "Nav A")
}

func TestSelectMainContentGenericSemantic(t *testing.T) {
	long := strings.Repeat("Body copy that belongs to the article region of the page. ", 8)
	d := doc(t, `<html><body>
		<header>Site chrome</header>
		<main>`+long+`</main>
		<footer>Footer chrome</footer>
	</body></html>`)

	html := selectMainContent(d, "", "https://example.com/x")
	assert.Contains(t, html, "Body copy that belongs")
	assert.NotContains(t, html, "Site chrome")
}

func TestCollectLinksPreservesSPARoutes(t *testing.T) {
	d := doc(t, `<html><body>
		<a href="/docs/intro">Intro</a>
		<a href="#/settings">Settings SPA</a>
		<a href="#section-2">Plain fragment</a>
		<a href="mailto:x@example.com">Mail</a>
		<form action="/search"></form>
		<div data-href="/hidden/page">More</div>
	</body></html>`)

	links := collectLinks(d, "https://example.com/docs")
	assert.Contains(t, links, "https://example.com/docs/intro")
	assert.Contains(t, links, "https://example.com/docs#/settings")
	assert.Contains(t, links, "https://example.com/search")
	assert.Contains(t, links, "https://example.com/hidden/page")
	// Plain fragment collapses to the page URL itself.
	assert.Contains(t, links, "https://example.com/docs")
	for _, l := range links {
		assert.NotContains(t, l, "mailto")
		assert.NotContains(t, l, "#section-2")
	}
}

func TestCollectLinksDetailSplitsByHost(t *testing.T) {
	d := doc(t, `<html><body>
		<a href="/in" rel="nofollow" title="inner">In</a>
		<a href="https://other.org/out" target="_blank">Out</a>
	</body></html>`)

	detail := collectLinksDetail(d, "https://example.com/")
	require.Len(t, detail.Internal, 1)
	require.Len(t, detail.External, 1)
	assert.True(t, detail.Internal[0].NoFollow)
	assert.Equal(t, "inner", detail.Internal[0].Title)
	assert.True(t, detail.External[0].NewTab)
}

func TestCollectStructuredDataOGListKeys(t *testing.T) {
	d := doc(t, `<html><head>
		<script type="application/ld+json">{"@type":"Article","headline":"X"}</script>
		<script type="application/ld+json">{broken</script>
		<meta property="og:title" content="Title">
		<meta property="og:image" content="https://example.com/1.png">
		<meta property="og:image" content="https://example.com/2.png">
		<meta name="twitter:card" content="summary">
		<meta name="author" content="Someone">
	</head></html>`)

	sd := collectStructuredData(d)
	require.NotNil(t, sd)
	assert.Len(t, sd.JSONLD, 1)
	assert.Equal(t, "Title", sd.OpenGraph["og:title"])
	assert.Equal(t, []string{"https://example.com/1.png", "https://example.com/2.png"}, sd.OpenGraph["og:image"])
	assert.Equal(t, "summary", sd.TwitterCard["twitter:card"])
	assert.Equal(t, "Someone", sd.MetaTags["author"])
}

func TestCollectImagesSrcsetAndDataSrc(t *testing.T) {
	d := doc(t, `<html><body>
		<img data-src="/lazy.png" alt="lazy">
		<img src="/hero.png" srcset="/hero-480.png 480w, /hero-960.png 960w">
	</body></html>`)

	images := collectImages(d, "https://example.com/")
	require.Len(t, images, 2)
	assert.Equal(t, "https://example.com/lazy.png", images[0].Src)
	require.Len(t, images[1].Srcset, 2)
	assert.Equal(t, "https://example.com/hero-480.png", images[1].Srcset[0].URL)
	assert.Equal(t, "480w", images[1].Srcset[0].Descriptor)
}

func TestCollectHeadingsOrderAndLevel(t *testing.T) {
	d := doc(t, `<html><body><h1 id="top">Title</h1><h2>Sub</h2><h3></h3></body></html>`)
	headings := collectHeadings(d)
	require.Len(t, headings, 2)
	assert.Equal(t, models.Heading{Level: 1, Text: "Title", ID: "top"}, headings[0])
	assert.Equal(t, 2, headings[1].Level)
}

func TestPostProcessMarkdownCollapsesAndDedupes(t *testing.T) {
	para := strings.Repeat("repeated paragraph content that is long enough to dedupe ", 2)
	md := para + "\n\n\n\n" + para + "\n\nshort\n\nshort\n"

	out := postProcessMarkdown(md)
	assert.Equal(t, 1, strings.Count(out, "repeated paragraph content"))
	// Short paragraphs repeat legitimately.
	assert.Equal(t, 2, strings.Count(out, "short"))
	assert.NotContains(t, out, "\n\n\n")
}

func TestPostProcessMarkdownProtectsCodeFences(t *testing.T) {
	md := "intro\n\n```python\nline1\n\n\n\nline4\n```\n\ntail\n"
	out := postProcessMarkdown(md)
	assert.Contains(t, out, "line1\n\n\n\nline4")
}

func TestPostProcessMarkdownIdempotent(t *testing.T) {
	md := "a\n\n\n\nb   \nc\n"
	once := postProcessMarkdown(md)
	assert.Equal(t, once, postProcessMarkdown(once))
}

func TestResolveURLsIdempotent(t *testing.T) {
	d := doc(t, `<html><body><a href="/x">x</a><img src="img/y.png"></body></html>`)
	resolveURLs(d, "https://example.com/docs/page")
	href, _ := d.Find("a").Attr("href")
	src, _ := d.Find("img").Attr("src")
	assert.Equal(t, "https://example.com/x", href)
	assert.Equal(t, "https://example.com/docs/img/y.png", src)

	resolveURLs(d, "https://example.com/docs/page")
	href2, _ := d.Find("a").Attr("href")
	assert.Equal(t, href, href2)
}
