// Package api implements the request executor for the IoTConnect REST API:
// it attaches authentication headers, sends requests with retry and rate
// limiting, decodes the generic response envelope and maps failures to typed
// errors.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/metrics"
	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// Header names and values used on every request.
const (
	HeaderAccept        = "Accept"
	HeaderContentType   = "Content-Type"
	HeaderAuthorization = "Authorization"
	ContentTypeJSON     = "application/json"
)

const (
	// httpTimeout is the default HTTP request timeout.
	httpTimeout = 30 * time.Second

	// maxResponseBody is the maximum response body size to read (16 MB).
	maxResponseBody = 16 << 20

	// maskedValue replaces secrets in trace output.
	maskedValue = "*******"
)

// errRetryStatus marks an attempt that ended with a retryable HTTP status.
var errRetryStatus = errors.New("retryable HTTP status")

// HeaderProvider supplies the headers for authenticated requests.
type HeaderProvider interface {
	AuthHeaders(ctx context.Context) (http.Header, error)
}

// HeaderProviderFunc adapts a function to HeaderProvider.
type HeaderProviderFunc func(ctx context.Context) (http.Header, error)

// AuthHeaders implements HeaderProvider.
func (f HeaderProviderFunc) AuthHeaders(ctx context.Context) (http.Header, error) {
	return f(ctx)
}

// Logger is the logging surface the client needs.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Options configures a Client.
type Options struct {
	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client
	// Timeout is used when HTTPClient is nil. Zero means 30s.
	Timeout time.Duration
	// Headers supplies authentication headers for requests that carry none.
	Headers HeaderProvider
	// Logger receives trace and error lines.
	Logger Logger
	// Trace logs every request and response at debug level.
	Trace bool
	// Retry overrides the default retry policy.
	Retry *RetryConfig
	// RateLimiter overrides the default per-host rate limiter.
	RateLimiter *RateLimiter
	// Metrics overrides metrics.Global.
	Metrics *metrics.Metrics
}

// Client executes API requests.
type Client struct {
	httpClient  *http.Client
	headers     HeaderProvider
	logger      Logger
	trace       bool
	retry       RetryConfig
	rateLimiter *RateLimiter
	metrics     *metrics.Metrics
}

// NewClient creates a new API client.
func NewClient(opts *Options) *Client {
	if opts == nil {
		opts = &Options{}
	}

	c := &Client{
		headers:     opts.Headers,
		logger:      opts.Logger,
		trace:       opts.Trace,
		retry:       DefaultRetryConfig(),
		rateLimiter: opts.RateLimiter,
		metrics:     opts.Metrics,
		httpClient:  opts.HTTPClient,
	}

	if c.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = httpTimeout
		}
		c.httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		}
	}
	if c.logger == nil {
		c.logger = nopLogger{}
	}
	if opts.Retry != nil {
		c.retry = *opts.Retry
	}
	if c.rateLimiter == nil {
		c.rateLimiter = DefaultRateLimiter()
	}
	if c.metrics == nil {
		c.metrics = metrics.Global
	}

	return c
}

// WithHeaders returns a copy of c that takes authentication headers from p.
// Both clients share the HTTP client and rate limiter.
func (c *Client) WithHeaders(p HeaderProvider) *Client {
	cp := *c
	cp.headers = p
	return &cp
}

// Request describes one API call.
type Request struct {
	// Method defaults to POST when a body, form or files are present, else GET.
	Method  string
	BaseURL string
	Path    string
	Query   url.Values
	// Body is encoded as JSON.
	Body any
	// Form and Files are sent as multipart/form-data.
	Form  map[string]string
	Files []FormFile
	// Header nil means "default headers": Accept JSON plus the client's
	// authentication headers. A non-nil Header is sent as given.
	Header http.Header
	// OKStatus lists the accepted statuses. Empty means 200 only.
	OKStatus []int
	// AllowFailure skips the status check.
	AllowFailure bool
	// Service buckets the call in metrics.
	Service string
}

// Response is a decoded API response.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Envelope Envelope
}

// Decode unmarshals the whole response body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return malformedData(err)
	}
	return nil
}

// rawResult is the outcome of a single HTTP attempt.
type rawResult struct {
	status int
	header http.Header
	body   []byte
}

// Do executes req and returns the decoded response. Unless AllowFailure is
// set, a status outside OKStatus is returned as a typed error.
//
//nolint:gocognit // request assembly, retry and decoding are sequential steps
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req.BaseURL == "" {
		return nil, iotcerr.WithSuggestion(
			iotcerr.WithMessage(iotcerr.ErrUsage, "API endpoint for %s is not configured", serviceName(req.Service)),
			"Run 'iotc configure' to discover the endpoints for your account",
		)
	}

	method := req.Method
	if method == "" {
		if req.Body != nil || len(req.Form) > 0 || len(req.Files) > 0 {
			method = http.MethodPost
		} else {
			method = http.MethodGet
		}
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, iotcerr.WithCause(iotcerr.WithMessage(iotcerr.ErrUsage, "invalid request body"), err)
	}

	header, err := c.requestHeader(ctx, req)
	if err != nil {
		return nil, err
	}
	if contentType != "" && header.Get(HeaderContentType) == "" {
		header.Set(HeaderContentType, contentType)
	}

	reqURL := strings.TrimRight(req.BaseURL, "/") + req.Path
	if len(req.Query) > 0 {
		reqURL += "?" + req.Query.Encode()
	}
	host := hostOf(reqURL)

	if c.trace {
		c.logger.Debug("%s %s data=%s", method, reqURL, maskSecrets(body, contentType))
	}

	start := time.Now()
	var netErr error
	op := func() (*rawResult, error) {
		if err := c.rateLimiter.Wait(ctx, host); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		res, err := c.send(ctx, method, reqURL, header, body)
		if err != nil {
			netErr = iotcerr.WithCause(iotcerr.ErrNetwork, err)
			if idempotent(method) && ctx.Err() == nil {
				c.metrics.RecordRetry()
				return nil, WrapRetryable(netErr)
			}
			return nil, netErr
		}
		if retryStatuses[res.status] && idempotent(method) {
			c.metrics.RecordRetry()
			if d := ParseRetryAfter(res.header.Get("Retry-After")); d > 0 && d <= c.retry.MaxDelay {
				if err := sleepCtx(ctx, d); err != nil {
					return res, err
				}
			}
			return res, WrapRetryable(errRetryStatus)
		}
		return res, nil
	}

	res, err := RetryWithConfig(ctx, c.retry, op)
	if err != nil {
		switch {
		case res != nil && errors.Is(err, errRetryStatus):
			// Out of retries: fall through and report the last status.
		case errors.Is(err, iotcerr.ErrNetwork) && netErr != nil:
			c.metrics.RecordAPICall(req.Service, time.Since(start), netErr)
			c.logger.Error("%s %s: %v", method, reqURL, netErr)
			return nil, netErr
		default:
			c.metrics.RecordAPICall(req.Service, time.Since(start), err)
			return nil, iotcerr.WithCause(iotcerr.ErrNetwork, err)
		}
	}

	resp := &Response{Status: res.status, Header: res.header, Body: res.body}
	resp, err = c.decode(resp)
	if err == nil && !req.AllowFailure {
		ok := req.OKStatus
		if len(ok) == 0 {
			ok = []int{http.StatusOK}
		}
		err = checkStatus(resp, ok)
	}

	c.metrics.RecordAPICall(req.Service, time.Since(start), err)
	if err != nil {
		c.logger.Error("%s %s: %v", method, reqURL, err)
		return nil, err
	}
	return resp, nil
}

// requestHeader builds the header set for req.
func (c *Client) requestHeader(ctx context.Context, req *Request) (http.Header, error) {
	if req.Header != nil {
		return req.Header.Clone(), nil
	}
	if c.headers == nil {
		return nil, iotcerr.WithMessage(iotcerr.ErrUsage, "not authenticated")
	}
	auth, err := c.headers.AuthHeaders(ctx)
	if err != nil {
		return nil, err
	}
	h := make(http.Header)
	h.Set(HeaderAccept, ContentTypeJSON)
	for k, v := range auth {
		h[k] = append([]string(nil), v...)
	}
	return h, nil
}

// send performs one HTTP round trip and reads the (capped) body.
func (c *Client) send(ctx context.Context, method, reqURL string, header http.Header, body []byte) (*rawResult, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, reqURL, rdr)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header = header.Clone()

	resp, err := c.httpClient.Do(httpReq) //nolint:gosec // G704: URL is built from discovered endpoints
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &rawResult{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// decode parses the response envelope. An empty body is allowed; anything
// else that is not a JSON object is a malformed response.
func (c *Client) decode(resp *Response) (*Response, error) {
	trimmed := bytes.TrimSpace(resp.Body)
	if len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &resp.Envelope); err != nil {
			if c.trace {
				c.logger.Debug("Raw Response: status=%d body=%s", resp.Status, maskJSON(resp.Body, secretKeys...))
			}
			return nil, iotcerr.WithDetails(
				iotcerr.WithCause(
					iotcerr.WithMessage(iotcerr.ErrMalformedResponse,
						"API request failed. Status: %d (%s)", resp.Status, http.StatusText(resp.Status)),
					err),
				map[string]string{"status": fmt.Sprintf("%d", resp.Status)},
			)
		}
	}
	if c.trace {
		c.logger.Debug("Response: status=%d body=%s", resp.Status, maskJSON(trimmed, secretKeys...))
	}
	return resp, nil
}

// encodeBody renders the request payload.
func encodeBody(req *Request) ([]byte, string, error) {
	if len(req.Form) > 0 || len(req.Files) > 0 {
		return encodeMultipart(req.Form, req.Files)
	}
	if req.Body == nil {
		return nil, "", nil
	}
	data, err := json.Marshal(req.Body)
	if err != nil {
		return nil, "", err
	}
	return data, ContentTypeJSON, nil
}

// secretKeys are the JSON fields hidden in trace output, at any depth.
var secretKeys = []string{"password", "refreshtoken", "access_token", "refresh_token"}

// maskSecrets renders a request body for trace output with credentials hidden.
func maskSecrets(body []byte, contentType string) string {
	if body == nil {
		return "None"
	}
	if contentType != ContentTypeJSON {
		return fmt.Sprintf("<%d bytes %s>", len(body), contentType)
	}
	return maskJSON(body, secretKeys...)
}

// maskJSON replaces the values of keys in a JSON document with maskedValue.
// A body that does not parse is only truncated.
func maskJSON(data []byte, keys ...string) string {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return truncateBody(string(data), maxBodyDetail)
	}
	if !maskValue(doc, keys) {
		return truncateBody(string(data), maxBodyDetail)
	}
	masked, err := json.Marshal(doc)
	if err != nil {
		return maskedValue
	}
	return truncateBody(string(masked), maxBodyDetail)
}

func maskValue(v any, keys []string) bool {
	found := false
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if slices.ContainsFunc(keys, func(s string) bool { return strings.EqualFold(s, k) }) {
				t[k] = maskedValue
				found = true
				continue
			}
			found = maskValue(child, keys) || found
		}
	case []any:
		for _, child := range t {
			found = maskValue(child, keys) || found
		}
	}
	return found
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}

func serviceName(s string) string {
	if s == "" {
		return "this request"
	}
	return "the " + s + " service"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
