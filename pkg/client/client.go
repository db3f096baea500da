// Package client provides the HTTP client for the e-cloud API with retry
// and bearer authentication.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/fruitsalade/ecloud/internal/metrics"
	"github.com/fruitsalade/ecloud/pkg/protocol"
	"github.com/fruitsalade/ecloud/pkg/retry"
)

// Client talks to the e-cloud API. It holds no credentials of its own; the
// bearer token travels in the request context (see WithBearer).
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RetryConfig retry.Config
	Transport   http.RoundTripper // wrapped around the default transport when nil
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}
	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		retryConfig: cfg.RetryConfig,
	}
}

// BaseURL returns the server URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type bearerKey struct{}

// WithBearer returns a context whose requests carry the given access token.
func WithBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey{}, token)
}

// BearerFrom returns the access token attached to ctx, if any.
func BearerFrom(ctx context.Context) string {
	token, _ := ctx.Value(bearerKey{}).(string)
	return token
}

// applyAuth adds the auth header to a request if the context carries a token.
func applyAuth(req *http.Request) {
	if token := BearerFrom(req.Context()); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// APIError is returned for any non-success response.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s failed (%d)", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s failed (%d): %s", e.Op, e.StatusCode, e.Message)
}

// unauthorizedPattern matches "status 401", "status code: 401",
// "401 Unauthorized" and "(401)", but not a bare 401 inside other text.
var unauthorizedPattern = regexp.MustCompile(`(?i)\bstatus(?: code)?:? 401\b|\b401 unauthorized\b|\(401\)`)

// IsUnauthorized reports whether err is an authorization failure, judged by
// status code or, for errors from other layers, by message.
func IsUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized
	}
	return unauthorizedPattern.MatchString(err.Error())
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// ServerMessage returns the server-reported message carried by err, or "".
func ServerMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// request describes a single API call.
type request struct {
	op          string
	method      string
	path        string
	body        io.Reader
	contentType string
	idempotent  bool
	expect      []int
}

// send performs the request and returns the response with a status in
// r.expect. The caller closes the body. Idempotent requests are retried on
// transport errors and retryable statuses.
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	cfg := c.retryConfig
	if !r.idempotent {
		cfg = retry.NoRetry()
	}
	if len(r.expect) == 0 {
		r.expect = []int{http.StatusOK}
	}

	return retry.DoWithResult(ctx, cfg, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
		if err != nil {
			return nil, err
		}
		if r.contentType != "" {
			req.Header.Set("Content-Type", r.contentType)
		}
		req.Header.Set("Accept", "application/json")
		applyAuth(req)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.RecordAPIRequest(r.op, 0, time.Since(start))
			return nil, retry.Retryable(fmt.Errorf("%s request failed: %w", r.op, err))
		}
		metrics.RecordAPIRequest(r.op, resp.StatusCode, time.Since(start))

		for _, code := range r.expect {
			if resp.StatusCode == code {
				return resp, nil
			}
		}

		defer resp.Body.Close()
		apiErr := &APIError{Op: r.op, StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
		if retry.StatusRetryable(resp.StatusCode) {
			return nil, retry.Retryable(apiErr)
		}
		return nil, apiErr
	})
}

// doJSON sends an optional JSON body and decodes an optional JSON result.
// Requests with a body are sent once; only bodiless reads are replayed.
func (c *Client) doJSON(ctx context.Context, r request, in, out any) error {
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", r.op, err)
		}
		r.body = bytes.NewReader(data)
		r.contentType = "application/json"
		r.idempotent = false
	}

	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(r.op, resp, out)
}

func decode(op string, resp *http.Response, out any) error {
	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse %s response: %w", op, err)
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	var errResp protocol.ErrorResponse
	if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
		return errResp.Error
	}
	return strings.TrimSpace(string(data))
}
