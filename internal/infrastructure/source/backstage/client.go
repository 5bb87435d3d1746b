// Package backstage pages through a Backstage catalog and maps its entities
// into indexable documents for the catalog, techdocs and apis sources.
package backstage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/search-orchestrator/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retry      resilience.RetryPolicy
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      resilience.DefaultRetryPolicy(),
	}
}

// WithRetry overrides the retry policy applied to every page fetch.
func (c *Client) WithRetry(policy resilience.RetryPolicy) *Client {
	c.retry = policy
	return c
}

type entity struct {
	APIVersion string `json:"apiVersion"`
	Kind       string `json:"kind"`
	Metadata   struct {
		UID         string            `json:"uid"`
		Name        string            `json:"name"`
		Namespace   string            `json:"namespace"`
		Title       string            `json:"title"`
		Description string            `json:"description"`
		Tags        []string          `json:"tags"`
		Annotations map[string]string `json:"annotations"`
	} `json:"metadata"`
	Spec struct {
		Type       string `json:"type"`
		Owner      string `json:"owner"`
		System     string `json:"system"`
		Lifecycle  string `json:"lifecycle"`
		Definition string `json:"definition"`
	} `json:"spec"`
}

type queryResponse struct {
	Items    []entity `json:"items"`
	PageInfo struct {
		NextCursor *string `json:"nextCursor"`
	} `json:"pageInfo"`
}

// queryEntities calls /api/catalog/entities/by-query. The first page is
// selected by filters; later pages only by cursor.
func (c *Client) queryEntities(ctx context.Context, filters []string, cursor *string, limit int) (queryResponse, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if cursor != nil && *cursor != "" {
		params.Set("cursor", *cursor)
	} else {
		for _, f := range filters {
			params.Add("filter", f)
		}
	}
	endpoint := c.baseURL + "/api/catalog/entities/by-query?" + params.Encode()

	var out queryResponse
	err := resilience.Retry(ctx, c.retry, "backstage fetch", func(ctx context.Context) error {
		page, err := c.get(ctx, endpoint)
		if err != nil {
			return err
		}
		out = page
		return nil
	}, nil)
	return out, err
}

func (c *Client) get(ctx context.Context, endpoint string) (queryResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return queryResponse{}, fmt.Errorf("create backstage request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return queryResponse{}, fmt.Errorf("backstage request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return queryResponse{}, &resilience.HTTPStatusError{
			Operation:  "backstage fetch",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return queryResponse{}, fmt.Errorf("decode backstage response: %w", err)
	}
	return out, nil
}
