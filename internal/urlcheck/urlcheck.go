// internal/urlcheck/urlcheck.go

// Package urlcheck verifies that outbound links resolve. It mirrors
// what a browser would get: HEAD first, a user-agent matching the
// configured backend, and patience with CDN hiccups.
package urlcheck

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ocqa/journey-cli/api/schemas"
)

// Browser-typical user agents per flavor. Some CDNs serve bot UAs a
// different (broken) response, so checks impersonate the backend.
var userAgents = map[schemas.Flavor]string{
	schemas.FlavorChrome: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	schemas.FlavorFirefox: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) " +
		"Gecko/20100101 Firefox/121.0",
	schemas.FlavorSafari: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

const (
	defaultRetries = 20
	defaultPause   = 3 * time.Second
)

// Checker probes URLs for availability.
type Checker struct {
	client *http.Client
	logger *zap.Logger
	flavor schemas.Flavor

	// Retries and Pause bound the wait for a CDN to recover.
	Retries int
	Pause   time.Duration
}

// New builds a checker that impersonates the given backend flavor.
func New(flavor schemas.Flavor, logger *zap.Logger) *Checker {
	return &Checker{
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.Named("urlcheck"),
		flavor:  flavor,
		Retries: defaultRetries,
		Pause:   defaultPause,
	}
}

func (c *Checker) request(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	if ua, ok := userAgents[c.flavor]; ok {
		req.Header.Set("User-Agent", ua)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return resp, nil
}

// probe issues a HEAD and falls back to GET when the server refuses
// HEAD outright.
func (c *Checker) probe(ctx context.Context, url string) (*http.Response, error) {
	resp, err := c.request(ctx, http.MethodHead, url)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusMethodNotAllowed {
		return c.request(ctx, http.MethodGet, url)
	}
	return resp, nil
}

// cdnHiccup reports a response worth retrying: the CDN itself erred
// rather than the origin.
func cdnHiccup(resp *http.Response) bool {
	if resp.StatusCode == http.StatusServiceUnavailable {
		return true
	}
	return resp.Header.Get("X-Cache") == "Error from cloudfront"
}

// Check probes the URL, retrying through CDN errors, and returns an
// error only when the link is genuinely broken. A CDN that never
// recovered is logged as a warning but not treated as a failure; the
// link itself may be fine.
func (c *Checker) Check(ctx context.Context, url string) error {
	var resp *http.Response
	var err error

	for attempt := 0; attempt <= c.Retries; attempt++ {
		resp, err = c.probe(ctx, url)
		if err != nil {
			return fmt.Errorf("request to %s failed: %w", url, err)
		}
		if !cdnHiccup(resp) {
			break
		}
		c.logger.Debug("CDN error, retrying",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
			zap.Int("attempt", attempt+1))
		select {
		case <-time.After(c.Pause):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if cdnHiccup(resp) {
		c.logger.Warn("CDN still erroring after retries; treating as reachable",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode))
		return nil
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return nil
}

// CheckAll probes every URL and collects the failures.
func (c *Checker) CheckAll(ctx context.Context, urls []string) []error {
	var failures []error
	for _, u := range urls {
		if err := c.Check(ctx, u); err != nil {
			c.logger.Error("Broken link", zap.String("url", u), zap.Error(err))
			failures = append(failures, err)
		}
	}
	return failures
}
