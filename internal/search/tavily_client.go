package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Result is one ranked search hit
type Result struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url,omitempty"`
}

// Response is a decoded search response plus the raw provider payload
type Response struct {
	Results []Result
	Raw     json.RawMessage
}

// Client is the interface for unary web-search clients
type Client interface {
	Search(ctx context.Context, query string) (*Response, error)
}

// TavilyClient implements Client against the Tavily search API
type TavilyClient struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
}

type searchRequest struct {
	APIKey string `json:"api_key"`
	Query  string `json:"query"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

// NewTavilyClient creates a search client bound to one session's API key
func NewTavilyClient(apiKey, apiURL string) *TavilyClient {
	return &TavilyClient{
		apiKey: apiKey,
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Search performs one ranked search. The full raw payload is retained so
// callers can forward it alongside any summary.
func (c *TavilyClient) Search(ctx context.Context, query string) (*Response, error) {
	reqBody, err := json.Marshal(searchRequest{APIKey: c.apiKey, Query: query})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	var decoded searchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	return &Response{
		Results: decoded.Results,
		Raw:     json.RawMessage(body),
	}, nil
}
