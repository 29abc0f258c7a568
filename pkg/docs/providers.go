package docs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// defaultTavilyBaseURL is the production Tavily API endpoint.
const defaultTavilyBaseURL = "https://api.tavily.com"

// TavilyProvider implements SearchProvider using the Tavily search API,
// which returns pre-extracted relevant content per result.
type TavilyProvider struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// NewTavilyProvider creates a new Tavily provider.
func NewTavilyProvider(apiKey string) *TavilyProvider {
	return &TavilyProvider{
		apiKey:  apiKey,
		baseURL: defaultTavilyBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the provider name.
func (p *TavilyProvider) Name() string {
	return "tavily"
}

// tavilyRequest is the search request payload.
type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

// tavilyResult is a single item in the Tavily response.
type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// tavilyResponse is the Tavily search response.
type tavilyResponse struct {
	Answer  string         `json:"answer"`
	Results []tavilyResult `json:"results"`
}

// Search performs a documentation search using the Tavily API.
func (p *TavilyProvider) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	payload, err := json.Marshal(tavilyRequest{
		APIKey:        p.apiKey,
		Query:         query,
		SearchDepth:   "advanced",
		MaxResults:    maxResults,
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API error %d: %s", resp.StatusCode, string(body))
	}

	var tavilyResp tavilyResponse
	if unmarshalErr := json.Unmarshal(body, &tavilyResp); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to parse response: %w", unmarshalErr)
	}

	results := make([]SearchResult, 0, len(tavilyResp.Results))
	for i := range tavilyResp.Results {
		item := &tavilyResp.Results[i]
		results = append(results, SearchResult{
			Title:   item.Title,
			URL:     item.URL,
			Content: item.Content,
			Score:   item.Score,
		})
	}
	return results, nil
}

// DuckDuckGoProvider implements SearchProvider using DuckDuckGo's
// Instant Answer API. Requires no API key but only returns
// encyclopedic/instant answers, not general web results.
type DuckDuckGoProvider struct {
	httpClient *http.Client
	baseURL    string
}

// NewDuckDuckGoProvider creates a new DuckDuckGo provider.
func NewDuckDuckGoProvider() *DuckDuckGoProvider {
	return &DuckDuckGoProvider{
		baseURL: "https://api.duckduckgo.com",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the provider name.
func (p *DuckDuckGoProvider) Name() string {
	return "duckduckgo"
}

// duckDuckGoResponse represents the instant answer API response.
type duckDuckGoResponse struct {
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	Heading       string `json:"Heading"`
	Answer        string `json:"Answer"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
	Results []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"Results"`
}

// Search performs a search using DuckDuckGo's Instant Answer API.
func (p *DuckDuckGoProvider) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	searchURL := fmt.Sprintf("%s/?q=%s&format=json&no_html=1&skip_disambig=1",
		p.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "CodeSwarm/1.0 (AI Development Tool)")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var ddgResp duckDuckGoResponse
	if unmarshalErr := json.Unmarshal(body, &ddgResp); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to parse response: %w", unmarshalErr)
	}

	var results []SearchResult

	if ddgResp.AbstractText != "" {
		results = append(results, SearchResult{
			Title:   ddgResp.Heading,
			URL:     ddgResp.AbstractURL,
			Content: ddgResp.AbstractText,
		})
	}
	if ddgResp.Answer != "" {
		results = append(results, SearchResult{
			Title:   "Instant Answer",
			Content: ddgResp.Answer,
		})
	}
	for i := range ddgResp.RelatedTopics {
		topic := &ddgResp.RelatedTopics[i]
		if topic.Text != "" && len(results) < maxResults {
			results = append(results, SearchResult{
				Content: topic.Text,
				URL:     topic.FirstURL,
			})
		}
	}
	for i := range ddgResp.Results {
		ddgResult := &ddgResp.Results[i]
		if ddgResult.Text != "" && len(results) < maxResults {
			results = append(results, SearchResult{
				Content: ddgResult.Text,
				URL:     ddgResult.FirstURL,
			})
		}
	}

	return results, nil
}
