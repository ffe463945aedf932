// Package upstream fetches system and body data from EDSM behind a
// two-tier read-through cache.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/antonholmquist/jason"
	"golang.org/x/time/rate"

	"github.com/runger/edjournal/internal/logging"
	"github.com/runger/edjournal/internal/metrics"
)

// Lookup kinds.
const (
	KindSystem = "system"
	KindBodies = "bodies"
)

// ErrNotFound means EDSM has no record of the system. EDSM answers unknown
// names with an empty object or array rather than a 404.
var ErrNotFound = errors.New("upstream: not found")

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream: status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream: status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if repeated.
func (e *StatusError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// ClientOptions configures a Client.
type ClientOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	// MinInterval spaces outbound requests. Zero defaults to one second;
	// a negative value disables spacing.
	MinInterval time.Duration
	// MaxRetries is the number of repeats after the first attempt.
	MaxRetries int
	// Backoff is the wait before the first retry; it doubles each time.
	Backoff time.Duration
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Client is a rate-limited EDSM API client. Requests from every caller
// share one gate, so at most one request starts per MinInterval.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewClient returns a client for opts.BaseURL.
func NewClient(opts ClientOptions) (*Client, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		return nil, errors.New("upstream base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid upstream base URL: %w", err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	switch {
	case opts.MinInterval < 0:
		limiter = rate.NewLimiter(rate.Inf, 1)
	case opts.MinInterval == 0:
		limiter = rate.NewLimiter(rate.Every(time.Second), 1)
	default:
		limiter = rate.NewLimiter(rate.Every(opts.MinInterval), 1)
	}

	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		limiter:    limiter,
		maxRetries: max(opts.MaxRetries, 0),
		backoff:    backoff,
		logger:     logging.OrDefault(opts.Logger).With("component", "upstream"),
		metrics:    opts.Metrics,
	}, nil
}

func (c *Client) endpoint(kind, name string) (string, error) {
	q := url.Values{}
	q.Set("systemName", name)
	switch kind {
	case KindSystem:
		q.Set("showId", "1")
		q.Set("showCoordinates", "1")
		q.Set("showPrimaryStar", "1")
		return c.baseURL + "/api-v1/system?" + q.Encode(), nil
	case KindBodies:
		return c.baseURL + "/api-system-v1/bodies?" + q.Encode(), nil
	default:
		return "", fmt.Errorf("unknown lookup kind %q", kind)
	}
}

// Fetch returns the raw JSON EDSM holds for name. Unknown systems yield
// ErrNotFound. Rate-limit and server errors are retried with doubling
// backoff; other failures return at once.
func (c *Client) Fetch(ctx context.Context, kind, name string) ([]byte, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("system name is required")
	}
	target, err := c.endpoint(kind, name)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff * time.Duration(1<<(attempt-1))
			c.logger.Debug("retrying upstream request",
				"kind", kind,
				"system", name,
				"attempt", attempt+1,
				"wait", wait,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		body, err := c.do(ctx, target)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("upstream request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) do(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "edjournal")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.UpstreamRequest("error", time.Since(start).Seconds())
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	c.metrics.UpstreamRequest(strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet(body, maxSnippetBytes)}
	}

	if empty, err := isEmpty(body); err != nil {
		return nil, fmt.Errorf("decode upstream response: %w", err)
	} else if empty {
		return nil, ErrNotFound
	}
	return body, nil
}

// isEmpty reports whether body is an empty JSON object or array.
func isEmpty(body []byte) (bool, error) {
	v, err := jason.NewValueFromBytes(body)
	if err != nil {
		return false, err
	}
	if obj, err := v.Object(); err == nil {
		return len(obj.Map()) == 0, nil
	}
	if arr, err := v.Array(); err == nil {
		return len(arr) == 0, nil
	}
	return v.Null() == nil, nil
}

func retryable(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

// SystemInfo is the subset of /api-v1/system this tool reads.
type SystemInfo struct {
	Name        string       `json:"name"`
	ID          int64        `json:"id"`
	ID64        int64        `json:"id64"`
	Coords      *Coords      `json:"coords,omitempty"`
	PrimaryStar *PrimaryStar `json:"primaryStar,omitempty"`
}

type Coords struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type PrimaryStar struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	IsScoopable bool   `json:"isScoopable"`
}

// BodiesInfo is the subset of /api-system-v1/bodies this tool reads.
type BodiesInfo struct {
	ID        int64      `json:"id"`
	ID64      int64      `json:"id64"`
	Name      string     `json:"name"`
	BodyCount int        `json:"bodyCount"`
	Bodies    []BodyInfo `json:"bodies"`
}

type BodyInfo struct {
	ID                int64   `json:"id"`
	ID64              int64   `json:"id64"`
	BodyID            int     `json:"bodyId"`
	Name              string  `json:"name"`
	Type              string  `json:"type"`
	SubType           string  `json:"subType"`
	DistanceToArrival float64 `json:"distanceToArrival"`
	IsLandable        bool    `json:"isLandable"`
	TerraformingState string  `json:"terraformingState"`
	EarthMasses       float64 `json:"earthMasses"`
}

// DecodeSystem decodes a system payload.
func DecodeSystem(payload []byte) (*SystemInfo, error) {
	var info SystemInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		return nil, fmt.Errorf("decode system: %w", err)
	}
	return &info, nil
}

// DecodeBodies decodes a bodies payload.
func DecodeBodies(payload []byte) (*BodiesInfo, error) {
	var info BodiesInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		return nil, fmt.Errorf("decode bodies: %w", err)
	}
	return &info, nil
}

// maxSnippetBytes bounds the response body kept in a StatusError.
const maxSnippetBytes = 200

// snippet trims body to at most n bytes without splitting a UTF-8
// sequence. Invalid bytes become U+FFFD first.
func snippet(body []byte, n int) string {
	s := strings.ToValidUTF8(strings.TrimSpace(string(body)), "\uFFFD")
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
