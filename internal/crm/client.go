// internal/crm/client.go

// Package crm reads records from a Salesforce-style REST API to verify
// that signups landed in the downstream systems. It is a read-only
// collaborator: queries and pagination, nothing else.
package crm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/ocqa/journey-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client issues SOQL queries against one instance.
type Client struct {
	instanceURL string
	token       string
	apiVersion  string
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewClient builds a client from configuration.
func NewClient(cfg config.CRMConfig, logger *zap.Logger) (*Client, error) {
	if cfg.InstanceURL == "" {
		return nil, fmt.Errorf("crm instance URL is not configured")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("crm token is not configured")
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "v52.0"
	}
	return &Client{
		instanceURL: strings.TrimRight(cfg.InstanceURL, "/"),
		token:       cfg.Token,
		apiVersion:  apiVersion,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		logger:      logger.Named("crm"),
	}, nil
}

// page is one response of the query endpoint. Records stay raw until
// the typed helpers decode them.
type page struct {
	TotalSize      int                   `json:"totalSize"`
	Done           bool                  `json:"done"`
	NextRecordsURL string                `json:"nextRecordsUrl"`
	Records        []jsoniter.RawMessage `json:"records"`
}

func (c *Client) get(ctx context.Context, fullURL string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crm request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read crm response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("crm query returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode crm response: %w", err)
	}
	return &p, nil
}

// queryRaw runs the SOQL statement and follows nextRecordsUrl until
// the result set is complete.
func (c *Client) queryRaw(ctx context.Context, soql string) ([]jsoniter.RawMessage, error) {
	queryURL := fmt.Sprintf("%s/services/data/%s/query?q=%s",
		c.instanceURL, c.apiVersion, url.QueryEscape(soql))

	var records []jsoniter.RawMessage
	for {
		p, err := c.get(ctx, queryURL)
		if err != nil {
			return nil, err
		}
		records = append(records, p.Records...)
		if p.Done || p.NextRecordsURL == "" {
			c.logger.Debug("Query complete",
				zap.Int("records", len(records)),
				zap.Int("total_size", p.TotalSize))
			return records, nil
		}
		queryURL = c.instanceURL + p.NextRecordsURL
	}
}

// Query runs a SOQL statement and decodes every record, across all
// pages, into out (a pointer to a slice).
func (c *Client) Query(ctx context.Context, soql string, out any) error {
	records, err := c.queryRaw(ctx, soql)
	if err != nil {
		return err
	}
	merged, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to re-encode crm records: %w", err)
	}
	if err := json.Unmarshal(merged, out); err != nil {
		return fmt.Errorf("failed to decode crm records: %w", err)
	}
	return nil
}
