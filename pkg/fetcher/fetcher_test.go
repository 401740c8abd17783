package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestClient_FetchPageDirect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>hello</html>"))
	}))
	defer server.Close()

	client := NewClient(DefaultConfig(), logrus.New())
	page, err := client.FetchPage(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if page.Body != "<html>hello</html>" {
		t.Fatalf("unexpected body %q", page.Body)
	}
	if page.ContentType != "text/html" {
		t.Fatalf("unexpected content type %q", page.ContentType)
	}
	if page.URL != server.URL {
		t.Fatalf("expected original url recorded, got %q", page.URL)
	}
}

func TestClient_FetchPageThroughProxy(t *testing.T) {
	var gotPath, gotQuery, gotKey string
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("url")
		gotKey = r.Header.Get("X-API-Key")
		w.Write([]byte("proxied content"))
	}))
	defer proxy.Close()

	client := NewClient(&Config{BaseURL: proxy.URL, APIKey: "secret"}, logrus.New())
	page, err := client.FetchPage(context.Background(), "https://example.com/article")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotPath != "/fetch" {
		t.Fatalf("expected /fetch path, got %q", gotPath)
	}
	if gotQuery != "https://example.com/article" {
		t.Fatalf("expected target url in query, got %q", gotQuery)
	}
	if gotKey != "secret" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	if page.Body != "proxied content" {
		t.Fatalf("unexpected body %q", page.Body)
	}
}

func TestClient_FetchPageRejectsNonHTTP(t *testing.T) {
	client := NewClient(nil, nil)
	if _, err := client.FetchPage(context.Background(), "ftp://example.com/file"); err == nil {
		t.Fatal("expected error for non-http scheme")
	}
	if _, err := client.FetchPage(context.Background(), "file:///etc/passwd"); err == nil {
		t.Fatal("expected error for file scheme")
	}
}

func TestClient_FetchPageErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(DefaultConfig(), logrus.New())
	if _, err := client.FetchPage(context.Background(), server.URL); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestClient_FetchPageCapsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer server.Close()

	client := NewClient(&Config{MaxBodyBytes: 10}, logrus.New())
	page, err := client.FetchPage(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(page.Body) != 10 {
		t.Fatalf("expected body capped at 10 bytes, got %d", len(page.Body))
	}
}

func TestClient_HealthCheck(t *testing.T) {
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer proxy.Close()

	client := NewClient(&Config{BaseURL: proxy.URL}, logrus.New())
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check: %v", err)
	}

	// Direct mode has no dependency to probe.
	direct := NewClient(nil, nil)
	if err := direct.HealthCheck(context.Background()); err != nil {
		t.Fatalf("direct health check: %v", err)
	}
}
