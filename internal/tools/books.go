package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/storyland-ai/storyland/internal/models"
	"github.com/storyland-ai/storyland/internal/retry"
)

const defaultBooksBaseURL = "https://www.googleapis.com/books/v1"

// BooksClient looks up book records in the Google Books volumes API.
type BooksClient struct {
	transport
	baseURL string
	apiKey  string
}

func NewBooksClient(apiKey string, policy retry.Policy, logger *zap.Logger) *BooksClient {
	return &BooksClient{
		transport: newTransport("google_books", &http.Client{Timeout: 10 * time.Second}, 2, policy, logger),
		baseURL:   defaultBooksBaseURL,
		apiKey:    apiKey,
	}
}

// NewBooksClientWithBaseURL is used by tests to point at a stub server.
func NewBooksClientWithBaseURL(baseURL, apiKey string, logger *zap.Logger) *BooksClient {
	c := NewBooksClient(apiKey, retry.Default(), logger)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type volumesResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		VolumeInfo struct {
			Title         string   `json:"title"`
			Authors       []string `json:"authors"`
			Description   string   `json:"description"`
			PublishedDate string   `json:"publishedDate"`
			Categories    []string `json:"categories"`
			ImageLinks    struct {
				Thumbnail string `json:"thumbnail"`
			} `json:"imageLinks"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

// Lookup searches the catalog by title and returns the top matches as
// evidence. A title with no matches yields empty evidence and no error.
func (c *BooksClient) Lookup(ctx context.Context, title string) (models.Evidence, error) {
	params := url.Values{}
	params.Set("q", "intitle:"+title)
	params.Set("maxResults", "3")
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	var resp volumesResponse
	if err := c.getJSON(ctx, c.baseURL+"/volumes?"+params.Encode(), nil, &resp); err != nil {
		return models.Evidence{}, err
	}

	var ev models.Evidence
	for _, item := range resp.Items {
		info := item.VolumeInfo
		if info.Title == "" {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Title: %s\n", info.Title)
		if len(info.Authors) > 0 {
			fmt.Fprintf(&b, "Authors: %s\n", strings.Join(info.Authors, ", "))
		}
		if info.PublishedDate != "" {
			fmt.Fprintf(&b, "Published: %s\n", info.PublishedDate)
		}
		if len(info.Categories) > 0 {
			fmt.Fprintf(&b, "Categories: %s\n", strings.Join(info.Categories, ", "))
		}
		if info.ImageLinks.Thumbnail != "" {
			fmt.Fprintf(&b, "Cover: %s\n", info.ImageLinks.Thumbnail)
		}
		if info.Description != "" {
			fmt.Fprintf(&b, "Description: %s", info.Description)
		}
		ev.Add("google_books", title, b.String())
	}

	if ev.Empty() {
		c.logger.Info("No book records found", zap.String("title", title))
	}
	return ev, nil
}
