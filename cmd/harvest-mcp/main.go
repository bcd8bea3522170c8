// harvest-mcp bridges the harvest REST API into MCP tools, so agent
// frameworks can scrape, crawl, map, and search without speaking HTTP.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// scrapeResponse mirrors the harvest scrape API envelope.
type scrapeResponse struct {
	Success bool `json:"success"`
	Data    *struct {
		Markdown string   `json:"markdown"`
		Links    []string `json:"links"`
		Blocked  bool     `json:"blocked"`
		Metadata struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			SourceURL   string `json:"source_url"`
			StatusCode  int    `json:"status_code"`
			WordCount   int    `json:"word_count"`
		} `json:"metadata"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// jobAccepted mirrors the async job creation envelope.
type jobAccepted struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Status  string `json:"status"`
}

// jobStatus mirrors the job polling envelope.
type jobStatus struct {
	Success        bool   `json:"success"`
	ID             string `json:"id"`
	Status         string `json:"status"`
	TotalPages     int    `json:"total_pages"`
	CompletedPages int    `json:"completed_pages"`
	Data           []struct {
		URL      string `json:"url"`
		Markdown string `json:"markdown"`
		Metadata struct {
			Title string `json:"title"`
		} `json:"metadata"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// mapResponse mirrors the map API envelope.
type mapResponse struct {
	Success   bool     `json:"success"`
	Framework string   `json:"framework"`
	Links     []string `json:"links"`
	Error     *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	apiURL := os.Getenv("HARVEST_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("HARVEST_API_KEY")

	s := server.NewMCPServer(
		"harvest",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	scrapePageTool := mcp.NewTool("scrape_page",
		mcp.WithDescription("Scrape a web page and return its main content as Markdown. Escalates through TLS impersonation, stealth browsers, and unblocking strategies until the page renders."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the web page to scrape"),
		),
		mcp.WithBoolean("only_main_content",
			mcp.Description("Strip navigation, footers and sidebars (default: true)"),
		),
	)
	s.AddTool(scrapePageTool, handleScrapePage(apiURL, apiKey))

	crawlSiteTool := mcp.NewTool("crawl_site",
		mcp.WithDescription("Crawl a website starting from a URL, following same-domain links in priority order. Returns Markdown for every crawled page."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The seed URL to crawl from"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Maximum link depth from the seed (default: 3, max: 10)"),
		),
		mcp.WithNumber("max_pages",
			mcp.Description("Maximum number of pages to crawl (default: 50)"),
		),
	)
	s.AddTool(crawlSiteTool, handleCrawlSite(apiURL, apiKey))

	mapSiteTool := mcp.NewTool("map_site",
		mcp.WithDescription("Discover the URLs of a website without scraping their content. Expands JavaScript navigation on documentation sites."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the website to map"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of URLs to return (default: 500)"),
		),
	)
	s.AddTool(mapSiteTool, handleMapSite(apiURL, apiKey))

	searchWebTool := mcp.NewTool("search_web",
		mcp.WithDescription("Search the web and scrape the top results into Markdown."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search query"),
		),
		mcp.WithNumber("limit",
			mcp.Description("How many results to scrape (default: 5, max: 20)"),
		),
	)
	s.AddTool(searchWebTool, handleSearchWeb(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiPost sends a POST request to the harvest API and returns the response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollJob polls the job endpoint until the job leaves pending/running or
// the context is cancelled.
func pollJob(ctx context.Context, client *http.Client, apiURL, apiKey, jobID string) (*jobStatus, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/api/v1/crawl/"+jobID, nil)
			if err != nil {
				return nil, fmt.Errorf("create poll request: %w", err)
			}
			if apiKey != "" {
				req.Header.Set("X-API-Key", apiKey)
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("poll request failed: %w", err)
			}

			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("read poll response: %w", err)
			}

			var status jobStatus
			if err := json.Unmarshal(body, &status); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}

			if status.Status != "pending" && status.Status != "running" {
				return &status, nil
			}
		}
	}
}

func handleScrapePage(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 150 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		payload := map[string]any{
			"url":     url,
			"formats": []string{"markdown"},
		}
		args := request.GetArguments()
		if v, ok := args["only_main_content"]; ok {
			payload["only_main_content"] = v
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/scrape", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("scrape request failed: %v", err)), nil
		}

		var scrapeResp scrapeResponse
		if err := json.Unmarshal(respBody, &scrapeResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		if !scrapeResp.Success || scrapeResp.Data == nil {
			errMsg := "scrape failed"
			if scrapeResp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", scrapeResp.Error.Code, scrapeResp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		d := scrapeResp.Data
		result := fmt.Sprintf("Title: %s\nSource: %s\n", d.Metadata.Title, d.Metadata.SourceURL)
		if d.Blocked {
			result += "Note: every fetch tier was blocked; this is the best partial payload.\n"
		}
		result += "\n" + d.Markdown

		return mcp.NewToolResultText(result), nil
	}
}

func handleCrawlSite(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 600 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		payload := map[string]any{"url": url}
		args := request.GetArguments()
		if maxDepth, ok := args["max_depth"]; ok {
			payload["max_depth"] = maxDepth
		}
		if maxPages, ok := args["max_pages"]; ok {
			payload["max_pages"] = maxPages
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/crawl", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("crawl request failed: %v", err)), nil
		}

		var accepted jobAccepted
		if err := json.Unmarshal(respBody, &accepted); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse crawl response: %v", err)), nil
		}
		if accepted.ID == "" {
			return mcp.NewToolResultError("crawl job creation failed"), nil
		}

		status, err := pollJob(ctx, client, apiURL, apiKey, accepted.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling crawl job failed: %v", err)), nil
		}

		return mcp.NewToolResultText(formatJobResults(status)), nil
	}
}

func handleMapSite(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 120 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		payload := map[string]any{"url": url}
		if limit, ok := request.GetArguments()["limit"]; ok {
			payload["limit"] = limit
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/map", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("map request failed: %v", err)), nil
		}

		var mapResp mapResponse
		if err := json.Unmarshal(respBody, &mapResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse map response: %v", err)), nil
		}

		if !mapResp.Success {
			errMsg := "map failed"
			if mapResp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", mapResp.Error.Code, mapResp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Found %d URLs", len(mapResp.Links)))
		if mapResp.Framework != "" {
			sb.WriteString(fmt.Sprintf(" (framework: %s)", mapResp.Framework))
		}
		sb.WriteString(":\n\n")
		for _, u := range mapResp.Links {
			sb.WriteString(u + "\n")
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleSearchWeb(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 600 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError("query is required"), nil
		}

		payload := map[string]any{"query": query}
		if limit, ok := request.GetArguments()["limit"]; ok {
			payload["limit"] = limit
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/search", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search request failed: %v", err)), nil
		}

		var accepted jobAccepted
		if err := json.Unmarshal(respBody, &accepted); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse search response: %v", err)), nil
		}
		if accepted.ID == "" {
			return mcp.NewToolResultError("search job creation failed"), nil
		}

		status, err := pollJob(ctx, client, apiURL, apiKey, accepted.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling search job failed: %v", err)), nil
		}

		return mcp.NewToolResultText(formatJobResults(status)), nil
	}
}

// formatJobResults renders a terminal job into one text block.
func formatJobResults(status *jobStatus) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Job %s: %s (%d/%d pages)\n\n",
		status.ID, status.Status, status.CompletedPages, status.TotalPages))
	if status.Error != nil {
		sb.WriteString(fmt.Sprintf("Error: [%s] %s\n\n", status.Error.Code, status.Error.Message))
	}

	for i, page := range status.Data {
		sb.WriteString(fmt.Sprintf("--- Page %d: %s (%s) ---\n%s\n\n",
			i+1, page.Metadata.Title, page.URL, page.Markdown))
	}
	return sb.String()
}
