// Package graph is a minimal client for Meta-style Graph APIs: object reads
// with field selection and webhook subscription registration. Every call
// carries a short timeout and at most one retry — enrichment callers degrade
// on failure rather than blocking webhook ingestion.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/unibox/internal/config"
)

// Client calls the platform Graph API.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient builds a Graph client from config.
func NewClient(cfg config.GraphConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), int(cfg.RatePerSecond)+1)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

// APIError is a non-2xx Graph API response.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api: status %d code %d: %s", e.StatusCode, e.Code, e.Message)
}

// IsPermissionError reports whether the error is a missing-scope rejection,
// used by subscription registration to degrade the requested field set.
func IsPermissionError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	// 10: permission denied, 200-299: assorted permission errors.
	return apiErr.Code == 10 || (apiErr.Code >= 200 && apiErr.Code < 300)
}

// GetObject fetches an object with the given fields and decodes into dst.
// One retry on transport errors or 5xx; 4xx returns immediately.
func (c *Client) GetObject(ctx context.Context, objectID, fields, accessToken string, dst any) error {
	q := url.Values{}
	if fields != "" {
		q.Set("fields", fields)
	}
	q.Set("access_token", accessToken)
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(objectID), q.Encode())

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		body, err := c.do(ctx, http.MethodGet, endpoint, nil)
		if err == nil {
			return json.Unmarshal(body, dst)
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return lastErr
}

// Post sends a form POST to objectID/edge and decodes into dst (when non-nil).
func (c *Client) Post(ctx context.Context, objectID, edge string, form url.Values, dst any) error {
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(objectID), url.PathEscape(edge))
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		body, err := c.do(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err == nil {
			if dst == nil {
				return nil
			}
			return json.Unmarshal(body, dst)
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	return data, nil
}

func decodeAPIError(status int, body []byte) error {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &envelope)
	return &APIError{StatusCode: status, Code: envelope.Error.Code, Message: envelope.Error.Message}
}

func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	// Transport errors (timeouts, resets) get the single retry.
	return true
}
