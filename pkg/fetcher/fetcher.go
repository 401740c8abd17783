// Package fetcher is the external content-fetch tool used by
// tool-augmented automations. It retrieves page content either directly
// or through a configured fetch-proxy service.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config for the fetch client.
type Config struct {
	// BaseURL, when set, routes fetches through a proxy service
	// (GET {BaseURL}/fetch?url=...). Empty means direct fetch.
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// DefaultConfig returns sane fetch defaults.
func DefaultConfig() *Config {
	return &Config{
		Timeout:      20 * time.Second,
		MaxBodyBytes: 1 << 20,
	}
}

// Page is the fetched document.
type Page struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
}

// Interface is the client surface automations depend on.
type Interface interface {
	FetchPage(ctx context.Context, pageURL string) (*Page, error)
	HealthCheck(ctx context.Context) error
}

// Client fetches external pages over HTTP.
type Client struct {
	baseURL      string
	apiKey       string
	maxBodyBytes int64
	httpClient   *http.Client
	logger       *logrus.Logger
}

var _ Interface = (*Client)(nil)

func NewClient(config *Config, logger *logrus.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxBody := config.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Client{
		baseURL:      config.BaseURL,
		apiKey:       config.APIKey,
		maxBodyBytes: maxBody,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// FetchPage retrieves the page, capping the body at MaxBodyBytes.
// Only http and https targets are accepted.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (*Page, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}

	target := pageURL
	if c.baseURL != "" {
		target = fmt.Sprintf("%s/fetch?url=%s", strings.TrimSuffix(c.baseURL, "/"), url.QueryEscape(pageURL))
	}

	req, err := http.NewRequestWithContext(ctx, "GET", target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Seedbed-Fetcher/1.0")
	if c.apiKey != "" && c.baseURL != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debugf("fetcher: GET %s -> %d", target, resp.StatusCode)

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch failed [%d] for %s", resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Page{
		URL:         pageURL,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        string(body),
	}, nil
}

// HealthCheck probes the proxy service when one is configured. Direct
// mode has nothing to probe.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.baseURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, "GET", strings.TrimSuffix(c.baseURL, "/")+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("health check failed [%d]", resp.StatusCode)
	}
	return nil
}
