package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/models"
)

// SidecarClient drives an external stealth browser service over HTTP
// instead of the local rod pool. It satisfies engine.BrowserBackend, so
// the cascade cannot tell the two apart.
type SidecarClient struct {
	baseURL string
	client  *http.Client
}

// NewSidecarClient creates a client for the service at baseURL.
func NewSidecarClient(baseURL string) *SidecarClient {
	return &SidecarClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 150 * time.Second},
	}
}

type sidecarRequest struct {
	URL           string              `json:"url"`
	Engine        string              `json:"engine,omitempty"`
	Headers       map[string]string   `json:"headers,omitempty"`
	Cookies       map[string]string   `json:"cookies,omitempty"`
	TimeoutMS     int                 `json:"timeout_ms,omitempty"`
	WaitForMS     int                 `json:"wait_for_ms,omitempty"`
	Screenshot    bool                `json:"screenshot,omitempty"`
	Mobile        bool                `json:"mobile,omitempty"`
	DiscoverLinks bool                `json:"discover_links,omitempty"`
	Actions       []engine.ActionSpec `json:"actions,omitempty"`
}

type sidecarResponse struct {
	HTML              string            `json:"html"`
	StatusCode        int               `json:"status_code"`
	FinalURL          string            `json:"final_url"`
	Screenshot        string            `json:"screenshot,omitempty"`
	ActionScreenshots []string          `json:"action_screenshots,omitempty"`
	DiscoveredLinks   []string          `json:"discovered_links,omitempty"`
	DocFramework      string            `json:"doc_framework,omitempty"`
	Headers           map[string]string `json:"headers,omitempty"`
	Error             string            `json:"error,omitempty"`
}

// Fetch implements engine.BrowserBackend.
func (c *SidecarClient) Fetch(ctx context.Context, req *engine.FetchRequest, firefox bool) (*engine.FetchResult, error) {
	eng := "chromium"
	if firefox {
		eng = "firefox"
	}
	return c.post(ctx, "/fetch", &sidecarRequest{
		URL:           req.URL,
		Engine:        eng,
		Headers:       req.Headers,
		Cookies:       req.Cookies,
		TimeoutMS:     int(req.Timeout / time.Millisecond),
		WaitForMS:     int(req.WaitFor / time.Millisecond),
		Screenshot:    req.Screenshot,
		Mobile:        req.Mobile,
		DiscoverLinks: req.DiscoverLinks,
		Actions:       req.Actions,
	})
}

// ReferrerChain implements engine.BrowserBackend.
func (c *SidecarClient) ReferrerChain(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	return c.post(ctx, "/referrer-chain", &sidecarRequest{
		URL:       req.URL,
		Headers:   req.Headers,
		Cookies:   req.Cookies,
		TimeoutMS: int(req.Timeout / time.Millisecond),
	})
}

// Prewarm implements engine.BrowserBackend.
func (c *SidecarClient) Prewarm(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	return c.post(ctx, "/prewarm", &sidecarRequest{
		URL:       req.URL,
		Headers:   req.Headers,
		Cookies:   req.Cookies,
		TimeoutMS: int(req.Timeout / time.Millisecond),
	})
}

func (c *SidecarClient) post(ctx context.Context, path string, body *sidecarRequest) (*engine.FetchResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "stealth sidecar unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stealth sidecar returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var out sidecarResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("stealth sidecar response malformed: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("stealth sidecar: %s", out.Error)
	}
	return &engine.FetchResult{
		RawHTML:           out.HTML,
		StatusCode:        out.StatusCode,
		ResponseHeaders:   out.Headers,
		FinalURL:          out.FinalURL,
		Screenshot:        out.Screenshot,
		ActionScreenshots: out.ActionScreenshots,
		DiscoveredLinks:   out.DiscoveredLinks,
		DocFramework:      out.DocFramework,
	}, nil
}

// SidecarSession adapts the sidecar to the crawl session contract. The
// sidecar manages its own browser contexts, so each fetch is a plain call
// and Stop has nothing to release.
type SidecarSession struct {
	client *SidecarClient
	base   *engine.FetchRequest
}

// NewSidecarSession wraps the client with the crawl's request defaults.
func NewSidecarSession(client *SidecarClient, base *engine.FetchRequest) *SidecarSession {
	return &SidecarSession{client: client, base: base}
}

// Fetch retrieves one crawl page through the sidecar.
func (s *SidecarSession) Fetch(ctx context.Context, rawURL string) (*engine.FetchResult, error) {
	req := *s.base
	req.URL = rawURL
	return s.client.Fetch(ctx, &req, false)
}

// Stop implements the session contract.
func (s *SidecarSession) Stop() {}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
