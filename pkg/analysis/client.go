// Package analysis is a client for the remote message-analysis service, which turns a
// message into a sentiment vector and, optionally, the log of its propagation through
// the network.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/ritzau/emotion-graph/pkg/logging"
	"github.com/ritzau/emotion-graph/pkg/model"
	"github.com/ritzau/emotion-graph/pkg/trace"
)

const (
	// DefaultBaseURL is where the analysis service listens when run locally
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout bounds one request, including reading the response
	DefaultTimeout = 30 * time.Second

	// DefaultRate is the number of requests per second sent to the service
	DefaultRate = 2.0

	maxErrorBody = 64 * 1024
)

var (
	// ErrUnavailable indicates the service could not be reached
	ErrUnavailable = errors.New("analysis service unavailable")

	// ErrInvalidResponse indicates a response that could not be decoded
	ErrInvalidResponse = errors.New("invalid response from analysis service")
)

// ServiceError is an error status returned by the service
type ServiceError struct {
	StatusCode int
	Detail     string
}

func (e *ServiceError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("analysis service error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("analysis service error (status %d): %s", e.StatusCode, e.Detail)
}

// Response is the result of analyzing a message. Vector is never nil in a
// response returned by the Client.
type Response struct {
	Vector  *model.Vector    `json:"vector"`
	Log     []trace.RawEntry `json:"log,omitempty"`
	Message string           `json:"message,omitempty"`
}

// Health is the service's liveness report
type Health struct {
	Status string `json:"status"`
}

// Client is a rate-limited HTTP client for the analysis service
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithBaseURL sets the service base URL
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout. It applies to a copy of the
// configured HTTP client, so a client passed to WithHTTPClient is not modified.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		var hc http.Client
		if c.httpClient != nil {
			hc = *c.httpClient
		}
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// WithRate limits requests to r per second. Zero or less disables the limit.
func WithRate(r float64) ClientOption {
	return func(c *Client) {
		if r <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(r), 1)
	}
}

// NewClient creates a new analysis client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRate), 1),
		baseURL:    DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

type messageRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type textRequest struct {
	Text string `json:"text"`
}

// AnalyzeMessage analyzes a message published by userID
func (c *Client) AnalyzeMessage(ctx context.Context, userID, message string) (*Response, error) {
	resp, err := c.analyze(ctx, "/analyze_message", messageRequest{UserID: userID, Message: message})
	if err != nil {
		return nil, err
	}
	logging.DebugContext(ctx, "message analyzed", "user", userID, "log_entries", len(resp.Log))
	return resp, nil
}

// Analyze analyzes a free text that is not attached to a user
func (c *Client) Analyze(ctx context.Context, text string) (*Response, error) {
	return c.analyze(ctx, "/analyze", textRequest{Text: text})
}

func (c *Client) analyze(ctx context.Context, path string, body any) (*Response, error) {
	var resp Response
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	if resp.Vector == nil {
		return nil, errors.Mark(errors.Newf("%s response has no vector", path), ErrInvalidResponse)
	}
	return &resp, nil
}

// Health probes the service
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshaling request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "analysis request cancelled")
		}
		return errors.WithHintf(
			errors.Mark(errors.Wrapf(err, "%s %s", method, path), ErrUnavailable),
			"check that the analysis service is running at %s", c.baseURL)
	}
	defer resp.Body.Close()

	logging.DebugContext(ctx, "analysis request", "method", method, "path", path,
		"status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode >= 400 {
		return errors.WithHint(readServiceError(resp), "the request was not retried")
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Mark(errors.Wrapf(err, "decoding %s response", path), ErrInvalidResponse)
	}
	return nil
}

// readServiceError extracts the detail of an error response. FastAPI style bodies carry
// either a string or a list of validation errors under "detail".
func readServiceError(resp *http.Response) *ServiceError {
	se := &ServiceError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return se
	}

	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(data, &body) != nil || len(body.Detail) == 0 {
		se.Detail = strings.TrimSpace(string(data))
		return se
	}

	var detail string
	if json.Unmarshal(body.Detail, &detail) == nil {
		se.Detail = detail
		return se
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(body.Detail, &items) == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		se.Detail = strings.Join(msgs, "; ")
		return se
	}

	se.Detail = string(body.Detail)
	return se
}

// IsServiceError reports whether err carries a *ServiceError
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// UserMessage renders err as the status text shown to the user
func UserMessage(err error) string {
	var se *ServiceError
	switch {
	case errors.As(err, &se):
		if se.Detail != "" {
			return "Analysis failed: " + se.Detail
		}
		return fmt.Sprintf("Analysis failed with status %d", se.StatusCode)
	case errors.Is(err, ErrUnavailable):
		return "Analysis service is not reachable"
	case errors.Is(err, ErrInvalidResponse):
		return "Analysis service returned an invalid response"
	case errors.Is(err, context.DeadlineExceeded):
		return "Analysis service timed out"
	default:
		return "Analysis failed: " + err.Error()
	}
}
