package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/time/rate"

	"github.com/desertthunder/cvsync/internal/shared"
	tu "github.com/desertthunder/cvsync/internal/testing"
)

func TestAPIService(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		t.Run("With Custom Client", func(t *testing.T) {
			customClient := &http.Client{}
			srv := NewAPIService("http://example.com/", customClient, nil)

			if srv.baseURL != "http://example.com" {
				t.Errorf("expected trailing slash trimmed, got %s", srv.baseURL)
			}
			if srv.httpClient != customClient {
				t.Error("expected custom client to be used")
			}
		})

		t.Run("With Nil Client", func(t *testing.T) {
			srv := NewAPIService("http://example.com", nil, nil)

			if srv.httpClient != http.DefaultClient {
				t.Error("expected http.DefaultClient to be used")
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("Successful Request", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("expected GET method, got %s", r.Method)
				}
				if r.URL.Path != "/test" {
					t.Errorf("expected path '/test', got %s", r.URL.Path)
				}
				if r.URL.Query().Get("a") != "1" {
					t.Errorf("expected query a=1, got %s", r.URL.RawQuery)
				}

				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{"status": "success"})
			}))
			defer server.Close()

			srv := NewAPIService(server.URL, nil, nil)
			resp, err := srv.Get(context.Background(), "/test", url.Values{"a": {"1"}})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected status 200, got %d", resp.StatusCode)
			}
			if !strings.Contains(string(resp.Body), "success") {
				t.Errorf("unexpected body %s", resp.Body)
			}
		})

		t.Run("Error Status", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"errors":[{"message":"not found"}]}`))
			}))
			defer server.Close()

			_, err := NewAPIService(server.URL, nil, nil).Get(context.Background(), "/missing", nil)

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %v", err)
			}
			if apiErr.StatusCode != http.StatusNotFound {
				t.Errorf("expected 404, got %d", apiErr.StatusCode)
			}
			if !errors.Is(err, shared.ErrAPIRequest) || !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected ErrAPIRequest and ErrNotFound, got %v", err)
			}
			if apiErr.Retryable() {
				t.Error("404 should not be retryable")
			}
		})

		t.Run("Failed Request Creation", func(t *testing.T) {
			srv := NewAPIService("http://example.com", nil, nil)
			_, err := srv.Get(context.Background(), "/test\x00invalid", nil)

			if err == nil {
				t.Fatal("expected error for invalid URL")
			}
			if !strings.Contains(err.Error(), "failed to create request") {
				t.Errorf("expected 'failed to create request' error, got %v", err)
			}
		})

		t.Run("Failed HTTP Request", func(t *testing.T) {
			client := &http.Client{
				Transport: tu.NewMockRoundTripper(nil, errors.New("connection failed")),
			}
			_, err := NewAPIService("http://example.com", client, nil).Get(context.Background(), "/test", nil)

			if err == nil || !strings.Contains(err.Error(), "request failed") {
				t.Errorf("expected 'request failed' error, got %v", err)
			}
		})

		t.Run("Failed Body Read", func(t *testing.T) {
			client := &http.Client{
				Transport: tu.NewMockRoundTripper(&http.Response{
					StatusCode: http.StatusOK,
					Body:       &tu.FCloser{},
					Header:     make(http.Header),
				}, nil),
			}
			_, err := NewAPIService("http://example.com", client, nil).Get(context.Background(), "/test", nil)

			if err == nil || !strings.Contains(err.Error(), "failed to read response") {
				t.Errorf("expected 'failed to read response' error, got %v", err)
			}
		})

		t.Run("Cancelled While Rate Limited", func(t *testing.T) {
			limiter := rate.NewLimiter(rate.Limit(0.001), 1)
			limiter.Allow()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := NewAPIService("http://example.com", nil, limiter).Get(ctx, "/test", nil)
			if err == nil || !strings.Contains(err.Error(), "rate limiter") {
				t.Errorf("expected rate limiter error, got %v", err)
			}
		})
	})

	t.Run("GetAll", func(t *testing.T) {
		var server *httptest.Server
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("per_page") != "100" {
				t.Errorf("expected per_page=100, got %s", r.URL.RawQuery)
			}
			switch r.URL.Query().Get("page") {
			case "":
				w.Header().Set("Link", fmt.Sprintf(`<%s/items?page=2&per_page=100>; rel="next", <%s/items?page=1&per_page=100>; rel="first"`, server.URL, server.URL))
				w.Write([]byte(`[{"id":1},{"id":2}]`))
			case "2":
				w.Header().Set("Link", fmt.Sprintf(`<%s/items?page=1&per_page=100>; rel="first"`, server.URL))
				w.Write([]byte(`[{"id":3}]`))
			default:
				t.Errorf("unexpected page %s", r.URL.Query().Get("page"))
			}
		}))
		defer server.Close()

		type item struct {
			ID json.Number `json:"id"`
		}

		items, err := GetAll[item](context.Background(), NewAPIService(server.URL, nil, nil), "/items", nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(items) != 3 || items[2].ID != "3" {
			t.Errorf("expected 3 items across pages, got %+v", items)
		}
	})
}

func TestNextLink(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{"none", nil, ""},
		{"next only", []string{`<https://x/a?page=2>; rel="next"`}, "https://x/a?page=2"},
		{"mixed", []string{`<https://x/a?page=1>; rel="current",<https://x/a?page=3>; rel="next"`}, "https://x/a?page=3"},
		{"separate headers", []string{`<https://x/a?page=1>; rel="first"`, `<https://x/a?page=2>; rel=next`}, "https://x/a?page=2"},
		{"last page", []string{`<https://x/a?page=1>; rel="first", <https://x/a?page=4>; rel="last"`}, ""},
		{"malformed", []string{`https://x/a; rel="next"`}, ""},
		{"comma in target", []string{`<https://x/a?include[]=a,b&page=1>; rel="current", <https://x/a?include[]=a,b&page=2>; rel="next"`}, "https://x/a?include[]=a,b&page=2"},
		{"unterminated", []string{`<https://x/a?page=2; rel="next"`}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextLink(tt.values); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
