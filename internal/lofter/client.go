package lofter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"loftergrab/internal/config"
	"loftergrab/internal/model"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.lofter.com"

const (
	l1CommentsPath = "/comment/l1/page.json"
	l2CommentsPath = "/comment/l2/page/abtest.json"

	// commentProduct is the product string the comment endpoints expect.
	// It deliberately differs from the app version in the headers; the
	// endpoints were introduced in a later client release than the rest
	// of the header set imitates.
	commentProduct = "lofter-android-8.2.18"
)

// maxResponseBytes caps how much of a response body is read. A comment
// page is a few hundred kilobytes at most; the cap keeps a misbehaving
// endpoint from ballooning memory.
const maxResponseBytes = 10 << 20

// fixedHeaders imitates the header set of the official Android client.
// The comment endpoints reject or aggressively rate-limit requests that
// do not look like the app, so these are required, not decoration.
//
// Two headers the app sends are intentionally absent: Host is derived
// from the request URL, and Accept-Encoding is left to the transport so
// response decompression stays automatic.
var fixedHeaders = map[string]string{
	"user-agent":   "LOFTER-Android 8.0.12 (LM-V409N; Android 15; null) WIFI",
	"market":       "LGE",
	"deviceid":     "3451efd56bgg6h47",
	"androidid":    "3451efd56bgg6h47",
	"x-device":     "qv+Dz73SObtbEFG7P0Gq12HkjzNb+iOK6KHWTPKHBTEZu26C6MJOMukkAG7dETo2",
	"x-reqid":      "0H62K0V7",
	"content-type": "application/x-www-form-urlencoded",
	"dadeviceid":   "2ef9ea6c17b7c6881c71915a4fefd932edc01af0",
	"lofproduct":   "lofter-android-8.0.12",
	"portrait":     "eyJpbWVpIjoiMzQ1MWVmZDU2YmdnNmg0NyIsImFuZHJvaWRJZCI6IjM0NTFlZmQ1NmJnZzZoNDciLCJvYWlkIjoiMzJiNGQyYzM0ODY1MDg0MiIsIm1hYyI6IjAyOjAwOjAwOjAwOjAwOjAwIiwicGhvbmUiOiIxNTkzNDg2NzI5MyJ9",
}

// Client talks to the Lofter comment API.
//
// The client is safe for concurrent use; the reply-resolution worker
// pool shares one instance so the underlying connection pool is reused.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	maxRetries     int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint base, e.g. to point the client
// at a local test server.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithLogger sets a custom logger for the client.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client from the given configuration.
//
// The proxy address is validated here, but no connection is made; the
// first request discovers an unreachable proxy. This keeps construction
// free of network I/O and cheap to do per crawl target.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	transport, err := newTransport(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(fixedHeaders))
	for k, v := range fixedHeaders {
		headers[k] = v
	}
	if cfg.UserAgent != "" {
		headers["user-agent"] = cfg.UserAgent
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: &headerInjectingTransport{
				base:    transport,
				cookie:  cfg.Cookie,
				headers: headers,
			},
			Timeout: cfg.Timeout,
		},
		baseURL:        DefaultBaseURL,
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: cfg.RetryBaseDelay,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API endpoint base the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// newTransport builds the HTTP transport, routing through a SOCKS5 proxy
// when an address is configured.
func newTransport(proxyAddress string) (http.RoundTripper, error) {
	// The client only ever talks to one host; keep enough idle
	// connections for the reply workers plus the pagination loop.
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
	}

	if proxyAddress == "" {
		return transport, nil
	}

	if !isValidProxyAddress(proxyAddress) {
		return nil, ErrInvalidProxyAddress
	}

	// nil auth: local SOCKS5 proxies in front of this tool (ss-local,
	// v2ray) run without authentication.
	dialer, err := proxy.SOCKS5("tcp", proxyAddress, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}
	return transport, nil
}

// isValidProxyAddress checks if the address is in valid "host:port" format.
// We use a simple check rather than a full URL parser because the format
// is very specific (no scheme, no path, just host and port).
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return false
	}
	if host == "" || port == "" {
		return false
	}

	portNum := 0
	for _, c := range port {
		if c < '0' || c > '9' {
			return false
		}
		portNum = portNum*10 + int(c-'0')
		if portNum > 65535 {
			return false
		}
	}
	return portNum >= 1
}

// L1Page fetches one page of first-level comments for the target post.
// offset is the pagination cursor; pass 0 for the first page and the
// returned NextOffset afterwards.
//
// An error is returned when the request fails after retries, when the
// envelope carries a non-zero code, or when the data payload is missing
// or undecodable.
func (c *Client) L1Page(ctx context.Context, target model.Target, offset int) (*L1Page, error) {
	params := url.Values{
		"postId":          {target.PostID},
		"blogId":          {target.BlogID},
		"offset":          {strconv.Itoa(offset)},
		"product":         {commentProduct},
		"needGift":        {"0"},
		"openFansVipPlan": {"0"},
		"dunType":         {"1"},
	}

	env, err := c.getJSON(ctx, l1CommentsPath, params)
	if err != nil {
		return nil, err
	}
	if env.Code != 0 {
		return nil, fmt.Errorf("%w: code %d (%s)", ErrAPIError, env.Code, env.Msg)
	}
	if !env.HasData() {
		return nil, ErrMissingData
	}

	var data l1Data
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decode l1 page data: %w", err)
	}

	page := &L1Page{
		List:       data.List,
		HotList:    data.HotList,
		NextOffset: NoMorePages,
	}
	if data.Offset != nil {
		page.NextOffset = *data.Offset
	}
	return page, nil
}

// ReplyBatch fetches the reply batch for one first-level comment.
//
// The envelope is returned as-is, including envelopes whose Code signals
// an API-level failure; the caller owns the decision to retry those,
// since reply fetching has its own retry policy. The error return covers
// transport failures only.
func (c *Client) ReplyBatch(ctx context.Context, target model.Target, commentID string) (*Envelope, error) {
	params := url.Values{
		"postId":  {target.PostID},
		"blogId":  {target.BlogID},
		"id":      {commentID},
		"offset":  {"0"},
		"fromSrc": {""},
		"fromId":  {""},
	}
	return c.getJSON(ctx, l2CommentsPath, params)
}

// getJSON issues a GET and decodes the response envelope, retrying
// transient failures with exponential backoff. Any non-2xx status and
// any undecodable body count as transient.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values) (*Envelope, error) {
	u := c.baseURL + path + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			// Doubles per attempt: base, 2*base, 4*base...
			wait := time.Duration(1<<(attempt-1)) * c.retryBaseDelay
			c.logger.Debug("retrying request", "path", path, "attempt", attempt+1, "wait", wait)
			if err := sleepContext(ctx, wait); err != nil {
				return nil, err
			}
		}

		env, err := c.getJSONOnce(ctx, u)
		if err == nil {
			return env, nil
		}
		lastErr = err
		c.logger.Debug("request failed", "path", path, "attempt", attempt+1, "error", err)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: GET %s: %v", ErrRequestFailed, path, lastErr)
}

// getJSONOnce is a single request attempt.
func (c *Client) getJSONOnce(ctx context.Context, u string) (*Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &env, nil
}

// sleepContext sleeps for d or until the context is done, whichever
// comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// headerInjectingTransport wraps an http.RoundTripper to inject
// custom headers and cookies into every request.
type headerInjectingTransport struct {
	base    http.RoundTripper
	cookie  string
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	clone := req.Clone(req.Context())

	// Inject cookie if configured
	if t.cookie != "" {
		// Append to existing Cookie header or set new one
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}

	// Inject custom headers
	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
