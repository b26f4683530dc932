// Package spc fetches Storm Prediction Center feed bytes over HTTP with
// conditional-request semantics. It hands raw bodies to the ingest layer;
// parsing happens elsewhere.
package spc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Result is the outcome of one fetch attempt. NotModified means the server
// validated the cached representation (304) and Body is empty.
type Result struct {
	Body         []byte
	NotModified  bool
	ETag         string
	LastModified string
	Status       int
}

// Client is a rate-limited HTTP fetcher for SPC feeds.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	maxBody    int64
	userAgent  string
	logger     *slog.Logger
}

// NewClient creates a fetch client. perMinute caps the request rate across
// all feeds; maxBody caps how many response bytes are read.
func NewClient(timeout time.Duration, perMinute int, maxBody int64, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		maxBody:    maxBody,
		userAgent:  "severe-alert-service/1.0",
		logger:     logger,
	}
}

// Fetch performs a conditional GET. Pass the previously stored validators;
// empty strings send an unconditional request. Non-2xx, non-304 statuses are
// errors; the caller keeps its cached body and tries again next cycle.
func (c *Client) Fetch(ctx context.Context, url, etag, lastModified string) (Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("fetch %s: rate limit: %w", url, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: build request: %w", url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/geo+json, application/json, text/xml, */*")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	result := Result{
		Status:       resp.StatusCode,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		result.NotModified = true
		c.logger.Debug("feed not modified", "url", url, "duration_ms", time.Since(start).Milliseconds())
		return result, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
		if err != nil {
			return Result{}, fmt.Errorf("fetch %s: read body: %w", url, err)
		}
		result.Body = body
		c.logger.Debug("feed fetched",
			"url", url,
			"status", resp.StatusCode,
			"bytes", len(body),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return result, nil

	default:
		return Result{}, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
}
