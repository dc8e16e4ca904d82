// Raw HTTP access to the Canvas REST API
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

// DefaultPerPage is the page size requested from paginated endpoints.
const DefaultPerPage = 100

// APIService performs rate-limited GET requests against a REST API and follows Link pagination.
type APIService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewAPIService creates a new API service. A nil client uses [http.DefaultClient]; a nil limiter does not wait.
func NewAPIService(baseURL string, client *http.Client, limiter *rate.Limiter) *APIService {
	if client == nil {
		client = http.DefaultClient
	}

	return &APIService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		limiter:    limiter,
	}
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	URL        string
}

// Next returns the URL of the rel="next" entry of the Link header, or "" on the last page.
func (r *APIResponse) Next() string {
	return nextLink(r.Headers.Values("Link"))
}

// Get performs a GET request. path is either relative to the base URL or absolute, as pagination links are.
//
// Non-2xx responses are returned as an [*APIError].
func (a *APIService) Get(ctx context.Context, path string, query url.Values) (*APIResponse, error) {
	fullURL := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		fullURL = a.baseURL + path
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(fullURL, "?") {
			sep = "&"
		}
		fullURL += sep + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, URL: fullURL, Body: truncate(string(body), 200)}
	}

	return &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
		URL:        fullURL,
	}, nil
}

// GetJSON performs a GET request and decodes the body into result.
func (a *APIService) GetJSON(ctx context.Context, path string, query url.Values, result any) error {
	resp, err := a.Get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, result); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", resp.URL, err)
	}
	return nil
}

// GetAll fetches every page of a list endpoint and decodes the concatenated items.
func GetAll[T any](ctx context.Context, a *APIService, path string, query url.Values) ([]T, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	if q.Get("per_page") == "" {
		q.Set("per_page", fmt.Sprint(DefaultPerPage))
	}

	var items []T
	next, params := path, q
	for next != "" {
		resp, err := a.Get(ctx, next, params)
		if err != nil {
			return nil, err
		}

		var page []T
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			return nil, fmt.Errorf("failed to decode page from %s: %w", resp.URL, err)
		}
		items = append(items, page...)

		next, params = resp.Next(), nil
	}
	return items, nil
}

// nextLink parses RFC 8288 Link header values and returns the rel="next" target.
func nextLink(values []string) string {
	for _, v := range values {
		for _, entry := range linkEntries(v) {
			end := strings.IndexByte(entry, '>')
			target, params := entry[1:end], entry[end+1:]
			for _, p := range strings.Split(params, ";") {
				key, val, _ := strings.Cut(strings.TrimSpace(p), "=")
				if strings.EqualFold(key, "rel") && strings.Trim(val, `"`) == "next" {
					return target
				}
			}
		}
	}
	return ""
}

// linkEntries splits one Link header value into "<target>; params" entries. Commas inside the angle brackets
// belong to the target.
func linkEntries(v string) []string {
	var entries []string
	for {
		start := strings.IndexByte(v, '<')
		if start < 0 {
			return entries
		}
		v = v[start:]

		end := strings.IndexByte(v, '>')
		if end < 0 {
			return entries
		}
		next := strings.IndexByte(v[end:], ',')
		if next < 0 {
			return append(entries, v)
		}
		entries = append(entries, v[:end+next])
		v = v[end+next+1:]
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
