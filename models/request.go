package models

// Format names a requested output artifact.
const (
	FormatMarkdown       = "markdown"
	FormatHTML           = "html"
	FormatRawHTML        = "raw_html"
	FormatLinks          = "links"
	FormatScreenshot     = "screenshot"
	FormatStructuredData = "structured_data"
	FormatHeadings       = "headings"
	FormatImages         = "images"
)

// ScrapeRequest is the input to a single-page scrape.
type ScrapeRequest struct {
	// URL is the target page. Required.
	URL string `json:"url" binding:"required,url"`

	// Formats selects which artifacts to produce. Empty means markdown only.
	Formats []string `json:"formats,omitempty"`

	// OnlyMainContent enables main-content selection instead of full-page
	// cleaning.
	OnlyMainContent bool `json:"only_main_content,omitempty"`

	// WaitFor is an additional post-load wait in milliseconds (capped at 30s).
	WaitFor int `json:"wait_for,omitempty" binding:"omitempty,min=0,max=30000"`

	// Timeout is the overall deadline in milliseconds.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=0"`

	// Actions is an ordered list of browser interactions executed after load.
	Actions []Action `json:"actions,omitempty"`

	// IncludeTags / ExcludeTags are CSS selectors applied before extraction.
	IncludeTags []string `json:"include_tags,omitempty"`
	ExcludeTags []string `json:"exclude_tags,omitempty"`

	// UseProxy routes the fetch through the proxy pool.
	UseProxy bool `json:"use_proxy,omitempty"`

	// Headers are extra request headers merged over the tier defaults.
	Headers map[string]string `json:"headers,omitempty"`

	// Cookies are name/value pairs set before navigation.
	Cookies map[string]string `json:"cookies,omitempty"`

	// Mobile emulates a mobile viewport on browser tiers.
	Mobile bool `json:"mobile,omitempty"`

	// Extract requests an LLM structured extraction per page.
	Extract *ExtractSpec `json:"extract,omitempty"`

	// WebhookURL receives completion events for async jobs.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs webhook payloads when set.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// ExtractSpec configures LLM-based structured extraction.
type ExtractSpec struct {
	Prompt string         `json:"prompt,omitempty"`
	Schema map[string]any `json:"schema,omitempty"`
}

// Action is one browser interaction step.
//
// Types: click, type, fill, wait, scroll, screenshot, hover, press, select,
// fill_form, evaluate, go_back, go_forward, wait_for_selector,
// wait_for_navigation, focus, clear. Unknown types are skipped.
type Action struct {
	Type         string            `json:"type"`
	Selector     string            `json:"selector,omitempty"`
	Text         string            `json:"text,omitempty"`
	Value        string            `json:"value,omitempty"`
	Key          string            `json:"key,omitempty"`
	Script       string            `json:"script,omitempty"`
	Milliseconds int               `json:"milliseconds,omitempty"`
	Direction    string            `json:"direction,omitempty"`
	Amount       int               `json:"amount,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
}

// WantsFormat reports whether the request asked for the given format.
// An empty format list implies markdown.
func (r *ScrapeRequest) WantsFormat(format string) bool {
	if len(r.Formats) == 0 {
		return format == FormatMarkdown
	}
	for _, f := range r.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// NeedsBrowser reports whether the request can only be satisfied by a
// browser tier (screenshots, explicit waits, scripted actions).
func (r *ScrapeRequest) NeedsBrowser() bool {
	return r.WantsFormat(FormatScreenshot) || r.WaitFor > 0 || len(r.Actions) > 0
}

// Cacheable reports whether the response may be served from or stored in
// the content cache. Interactive requests are never cached.
func (r *ScrapeRequest) Cacheable() bool {
	return len(r.Actions) == 0 && !r.WantsFormat(FormatScreenshot) && r.Extract == nil
}

// Defaults fills unset fields with their documented defaults.
func (r *ScrapeRequest) Defaults() {
	if len(r.Formats) == 0 {
		r.Formats = []string{FormatMarkdown}
	}
	if r.Timeout <= 0 {
		r.Timeout = 30000
	}
	if r.WaitFor > 30000 {
		r.WaitFor = 30000
	}
}
