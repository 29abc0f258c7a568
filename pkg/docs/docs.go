// Package docs fetches live documentation context for a generation
// request: keyword search against a documentation-focused provider,
// then synthesis of the results into one prompt-ready context string.
package docs

import (
	"context"
	"fmt"
	"os"
	"strings"

	"codeswarm/pkg/config"
	"codeswarm/pkg/logx"
)

const (
	// queryKeywords is how many task keywords seed the search query.
	queryKeywords = 5

	// maxContextChars caps the synthesized documentation context.
	maxContextChars = 50000
)

// SearchResult represents a single search result from any provider.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// SearchProvider defines the interface for documentation search backends.
type SearchProvider interface {
	// Name returns a human-readable name for the provider.
	Name() string
	// Search performs a search and returns results.
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// Documentation is the synthesized result of a documentation lookup.
type Documentation struct {
	Source  string         `json:"source"`  // Provider that served the search
	Query   string         `json:"query"`   // Query actually sent
	Results []SearchResult `json:"results"` // Individual sources
	Context string         `json:"context"` // Prompt-ready combined text
}

// Service runs documentation lookups for generation requests.
type Service struct {
	provider   SearchProvider
	fetcher    *Fetcher
	maxResults int
	logger     *logx.Logger
}

// NewService creates a documentation service. The provider is selected
// from the environment: Tavily when an API key is present, otherwise
// the keyless DuckDuckGo fallback.
func NewService(cfg *config.Config) *Service {
	maxResults := config.DefaultRetrievalLimit
	if cfg != nil && cfg.Search != nil && cfg.Search.MaxResults > 0 {
		maxResults = cfg.Search.MaxResults
	}
	return &Service{
		provider:   selectProvider(),
		fetcher:    NewFetcher(),
		maxResults: maxResults,
		logger:     logx.NewLogger("docs"),
	}
}

// NewServiceWithProvider creates a service with a specific provider.
func NewServiceWithProvider(provider SearchProvider, maxResults int) *Service {
	if maxResults <= 0 {
		maxResults = config.DefaultRetrievalLimit
	}
	return &Service{
		provider:   provider,
		fetcher:    NewFetcher(),
		maxResults: maxResults,
		logger:     logx.NewLogger("docs"),
	}
}

// selectProvider chooses the best available search provider.
func selectProvider() SearchProvider {
	if apiKey := os.Getenv(config.EnvTavilyAPIKey); apiKey != "" {
		return NewTavilyProvider(apiKey)
	}
	return NewDuckDuckGoProvider()
}

// Provider returns the name of the active search provider.
func (s *Service) Provider() string {
	return s.provider.Name()
}

// FetchContext searches for documentation relevant to the task and
// synthesizes the results into a single context string.
func (s *Service) FetchContext(ctx context.Context, task string) (*Documentation, error) {
	query := BuildQuery(task)
	s.logger.Info("📚 Documentation search via %s: %q", s.provider.Name(), query)

	results, err := s.provider.Search(ctx, query, s.maxResults)
	if err != nil {
		return nil, fmt.Errorf("documentation search failed: %w", err)
	}

	doc := &Documentation{
		Source:  s.provider.Name(),
		Query:   query,
		Results: results,
		Context: Synthesize(results),
	}
	s.logger.Info("📚 Fetched %d documentation sources (%d chars)", len(results), len(doc.Context))
	return doc, nil
}

// FetchFullContext is like FetchContext but replaces each result's
// search snippet with the fetched page content.
func (s *Service) FetchFullContext(ctx context.Context, task string) (*Documentation, error) {
	doc, err := s.FetchContext(ctx, task)
	if err != nil {
		return nil, err
	}

	for i := range doc.Results {
		result := &doc.Results[i]
		if result.URL == "" {
			continue
		}
		page, fetchErr := s.fetcher.Fetch(ctx, result.URL)
		if fetchErr != nil {
			s.logger.Warn("page fetch failed for %s: %v", result.URL, fetchErr)
			continue
		}
		if page.Content != "" {
			result.Content = page.Content
		}
		if result.Title == "" {
			result.Title = page.Title
		}
	}

	doc.Context = Synthesize(doc.Results)
	return doc, nil
}

// BuildQuery derives a documentation search query from task text.
func BuildQuery(task string) string {
	keywords := ExtractKeywords(task)
	if len(keywords) > queryKeywords {
		keywords = keywords[:queryKeywords]
	}
	if len(keywords) == 0 {
		return strings.TrimSpace(task + " documentation tutorial")
	}
	return strings.Join(keywords, " ") + " documentation tutorial"
}

// Synthesize joins search results into one titled, source-attributed
// context string, capped at maxContextChars.
func Synthesize(results []SearchResult) string {
	sections := make([]string, 0, len(results))
	for i := range results {
		r := &results[i]
		if r.Content == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("### %s\nSource: %s\n\n%s\n", r.Title, r.URL, r.Content))
	}

	combined := strings.Join(sections, "\n\n")
	if len(combined) > maxContextChars {
		combined = combined[:maxContextChars]
	}
	return combined
}

// docStopWords are filtered out of search queries. Generation verbs
// like "create" and "build" are included since they describe the
// request, not the technology to look up.
//
//nolint:gochecknoglobals // Fixed word list
var docStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"but": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true,
	"would": true, "should": true, "could": true, "may": true,
	"might": true, "must": true, "i": true, "you": true, "he": true,
	"she": true, "it": true, "we": true, "they": true, "them": true,
	"their": true, "this": true, "that": true, "these": true,
	"those": true, "to": true, "from": true, "in": true, "on": true,
	"at": true, "for": true, "with": true, "about": true, "as": true,
	"by": true, "of": true, "make": true, "create": true, "build": true,
}

// ExtractKeywords pulls search-worthy words from task text.
func ExtractKeywords(task string) []string {
	var keywords []string
	for _, word := range strings.Fields(strings.ToLower(task)) {
		word = strings.Trim(word, ".,;:!?\"'()[]{}")
		if len(word) <= 2 || docStopWords[word] {
			continue
		}
		keywords = append(keywords, word)
	}
	return keywords
}
