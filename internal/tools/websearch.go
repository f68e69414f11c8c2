package tools

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/storyland-ai/storyland/internal/models"
	"github.com/storyland-ai/storyland/internal/retry"
)

const defaultSearchBaseURL = "https://google.serper.dev"

// SearchClient runs web searches through the Serper API.
type SearchClient struct {
	transport
	baseURL string
	apiKey  string
}

func NewSearchClient(apiKey string, policy retry.Policy, logger *zap.Logger) *SearchClient {
	return &SearchClient{
		transport: newTransport("web_search", &http.Client{Timeout: 10 * time.Second}, 2, policy, logger),
		baseURL:   defaultSearchBaseURL,
		apiKey:    apiKey,
	}
}

// NewSearchClientWithBaseURL is used by tests to point at a stub server.
func NewSearchClientWithBaseURL(baseURL, apiKey string, logger *zap.Logger) *SearchClient {
	c := NewSearchClient(apiKey, retry.Default(), logger)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type searchResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// Search returns the top organic results for a query as evidence. A query
// with no hits yields empty evidence and no error.
func (c *SearchClient) Search(ctx context.Context, query string, max int) (models.Evidence, error) {
	if max <= 0 {
		max = 5
	}

	headers := map[string]string{"X-API-KEY": c.apiKey}
	payload := map[string]any{"q": query, "num": max}

	var resp searchResponse
	if err := c.postJSON(ctx, c.baseURL+"/search", headers, payload, &resp); err != nil {
		return models.Evidence{}, err
	}

	var ev models.Evidence
	for i, r := range resp.Organic {
		if i >= max {
			break
		}
		content := r.Title
		if r.Snippet != "" {
			content += "\n" + r.Snippet
		}
		if r.Link != "" {
			content += "\n" + r.Link
		}
		ev.Add("web_search", query, content)
	}

	if ev.Empty() {
		c.logger.Info("No search results", zap.String("query", query))
	}
	return ev, nil
}
