package models

// ScrapeArtifact is the output of one extraction. Fields are populated only
// for the formats the caller requested.
type ScrapeArtifact struct {
	Markdown       string          `json:"markdown,omitempty"`
	CleanHTML      string          `json:"html,omitempty"`
	RawHTML        string          `json:"raw_html,omitempty"`
	Links          []string        `json:"links,omitempty"`
	LinksDetail    *LinksDetail    `json:"links_detail,omitempty"`
	Screenshot     string          `json:"screenshot,omitempty"`
	ActionShots    []string        `json:"action_screenshots,omitempty"`
	StructuredData *StructuredData `json:"structured_data,omitempty"`
	Headings       []Heading       `json:"headings,omitempty"`
	Images         []Image         `json:"images,omitempty"`
	Metadata       PageMetadata    `json:"metadata"`
	Extract        any             `json:"extract,omitempty"`

	// SourceTier records which fetch tier produced the HTML.
	SourceTier string `json:"source_tier,omitempty"`

	// Blocked is true when every tier failed and the artifact was derived
	// from the best partial payload.
	Blocked bool `json:"blocked,omitempty"`
}

// Empty reports whether the artifact carries no usable content.
func (a *ScrapeArtifact) Empty() bool {
	return a.Markdown == "" && a.CleanHTML == "" && a.RawHTML == "" &&
		len(a.Links) == 0 && a.Screenshot == ""
}

// PageMetadata describes the fetched page.
type PageMetadata struct {
	Title              string            `json:"title,omitempty"`
	Description        string            `json:"description,omitempty"`
	Language           string            `json:"language,omitempty"`
	SourceURL          string            `json:"source_url"`
	StatusCode         int               `json:"status_code"`
	WordCount          int               `json:"word_count"`
	ReadingTimeSeconds int               `json:"reading_time_seconds"`
	ContentLength      int               `json:"content_length"`
	OGImage            string            `json:"og_image,omitempty"`
	CanonicalURL       string            `json:"canonical_url,omitempty"`
	Favicon            string            `json:"favicon,omitempty"`
	Robots             string            `json:"robots,omitempty"`
	ResponseHeaders    map[string]string `json:"response_headers,omitempty"`
}

// LinksDetail separates discovered links into internal and external.
type LinksDetail struct {
	Internal []Link `json:"internal"`
	External []Link `json:"external"`
}

// Link is one anchor with its presentation attributes.
type Link struct {
	Href     string `json:"href"`
	Text     string `json:"text,omitempty"`
	Title    string `json:"title,omitempty"`
	NoFollow bool   `json:"nofollow,omitempty"`
	NewTab   bool   `json:"new_tab,omitempty"`
}

// StructuredData aggregates machine-readable page metadata.
type StructuredData struct {
	JSONLD      []any             `json:"json_ld,omitempty"`
	OpenGraph   map[string]any    `json:"open_graph,omitempty"`
	TwitterCard map[string]string `json:"twitter_card,omitempty"`
	MetaTags    map[string]string `json:"meta_tags,omitempty"`
}

// Heading is one h1–h6 element in document order.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	ID    string `json:"id,omitempty"`
}

// Image is one img/picture source in document order.
type Image struct {
	Src    string        `json:"src"`
	Alt    string        `json:"alt,omitempty"`
	Width  string        `json:"width,omitempty"`
	Height string        `json:"height,omitempty"`
	Srcset []SrcsetEntry `json:"srcset,omitempty"`
	Media  string        `json:"media,omitempty"`
}

// SrcsetEntry is one candidate from a parsed srcset attribute.
type SrcsetEntry struct {
	URL        string `json:"url"`
	Descriptor string `json:"descriptor,omitempty"`
}

// SERPResult is one entry returned by a search provider.
type SERPResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}
