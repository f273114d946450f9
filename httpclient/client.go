// Package httpclient is the single place outbound HTTP is configured: default
// headers per verb, bearer auth, TLS policy, timeouts, the redirect cap and
// the translation of failures into categorised errors.
package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultUserAgent is sent with every request.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

const (
	// ChunkSize is the buffer used when streaming downloads to disk.
	ChunkSize = 8192

	defaultTimeout      = 10 * time.Second
	defaultMaxRedirects = 10

	htmlAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	formType   = "application/x-www-form-urlencoded"
)

// Options configures a Client.
type Options struct {
	UserAgent    string
	AuthToken    string
	Headers      map[string]string
	Timeout      time.Duration
	MaxRedirects int
	// Transport replaces the TLS-enforcing default transport (tests, proxies).
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// RequestOptions are per-call overrides.
type RequestOptions struct {
	Headers   map[string]string
	Form      map[string]string
	Body      any
	AuthToken string
	Timeout   time.Duration
}

// Client issues single-attempt HTTP requests.
type Client struct {
	http      *resty.Client
	transport http.RoundTripper
	opts      Options
	logger    *slog.Logger
}

// New builds a Client from opts, filling in defaults.
func New(opts Options) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = defaultMaxRedirects
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	transport := opts.Transport
	if transport == nil {
		transport = NewTransport(opts.Timeout)
	}

	c := &Client{
		opts:   opts,
		logger: logger,
	}
	c.http = resty.New().
		SetLogger(restyLogger{logger: logger}).
		SetRetryCount(0).
		SetTimeout(opts.Timeout).
		SetRedirectPolicy(resty.RedirectPolicyFunc(c.CheckRedirect))
	c.SetTransport(transport)
	return c
}

// NewTransport returns a transport that verifies certificates and host names
// and refuses anything older than TLS 1.2.
func NewTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     90 * time.Second,
	}
}

// Transport returns the round tripper shared by every request of this client.
func (c *Client) Transport() http.RoundTripper {
	return c.transport
}

// SetTransport swaps the round tripper.
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.transport = rt
	c.http.SetTransport(rt)
}

// Timeout returns the default request timeout.
func (c *Client) Timeout() time.Duration {
	return c.opts.Timeout
}

// CheckRedirect enforces the redirect cap. It matches http.Client.CheckRedirect.
func (c *Client) CheckRedirect(_ *http.Request, via []*http.Request) error {
	if len(via) >= c.opts.MaxRedirects {
		return ErrTooManyRedirects
	}
	return nil
}

// Headers returns the headers sent for method: fixed defaults, then the
// bearer token, then client-wide and caller headers, with the caller winning.
func (c *Client) Headers(method string, extra map[string]string, token string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", c.opts.UserAgent)
	switch method {
	case http.MethodGet, http.MethodHead:
		h.Set("Accept", htmlAccept)
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		h.Set("Content-Type", formType)
		h.Set("Accept", "*/*")
	default:
		h.Set("Accept", "*/*")
	}
	if token == "" {
		token = c.opts.AuthToken
	}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	for k, v := range c.opts.Headers {
		h.Set(k, v)
	}
	for k, v := range extra {
		h.Set(k, v)
	}
	return h
}

// Get fetches url and returns the body text.
func (c *Client) Get(ctx context.Context, url string, opts *RequestOptions) (string, error) {
	return c.Do(ctx, http.MethodGet, url, opts)
}

// Post submits opts.Form (or opts.Body) to url.
func (c *Client) Post(ctx context.Context, url string, opts *RequestOptions) (string, error) {
	return c.Do(ctx, http.MethodPost, url, opts)
}

// Put replaces the resource at url.
func (c *Client) Put(ctx context.Context, url string, opts *RequestOptions) (string, error) {
	return c.Do(ctx, http.MethodPut, url, opts)
}

// Delete removes the resource at url.
func (c *Client) Delete(ctx context.Context, url string, opts *RequestOptions) (string, error) {
	return c.Do(ctx, http.MethodDelete, url, opts)
}

// Do issues one request and returns the response body. Transport failures and
// status codes >= 400 come back as *Error.
func (c *Client) Do(ctx context.Context, method, url string, opts *RequestOptions) (string, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	ctx, cancel := c.withTimeout(ctx, opts.Timeout)
	defer cancel()

	req := c.newRequest(ctx, method, opts)
	res, err := req.Execute(method, url)
	if err != nil {
		return "", ClassifyURL(err, 0, url)
	}
	c.logger.Debug("http request",
		slog.String("method", method),
		slog.String("url", url),
		slog.Int("status", res.StatusCode()),
		slog.Duration("elapsed", res.Time()),
	)
	if res.IsError() {
		return "", ClassifyURL(nil, res.StatusCode(), url)
	}
	return res.String(), nil
}

// Download streams the body of a GET on url into w in ChunkSize pieces and
// returns the number of bytes written.
func (c *Client) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	ctx, cancel := c.withTimeout(ctx, 0)
	defer cancel()

	res, err := c.newRequest(ctx, http.MethodGet, &RequestOptions{Headers: map[string]string{"Accept": "*/*"}}).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return 0, ClassifyURL(err, 0, url)
	}
	body := res.RawBody()
	defer body.Close()

	if res.IsError() {
		return 0, ClassifyURL(nil, res.StatusCode(), url)
	}

	n, err := io.CopyBuffer(w, body, make([]byte, ChunkSize))
	if err != nil {
		return n, fmt.Errorf("stream body: %w", ClassifyURL(err, 0, url))
	}
	return n, nil
}

func (c *Client) newRequest(ctx context.Context, method string, opts *RequestOptions) *resty.Request {
	req := c.http.R().SetContext(ctx)
	headers := c.Headers(method, opts.Headers, opts.AuthToken)
	for k := range headers {
		req.SetHeader(k, headers.Get(k))
	}
	if len(opts.Form) > 0 {
		req.SetFormData(opts.Form)
	}
	if opts.Body != nil {
		req.SetBody(opts.Body)
	}
	return req
}

func (c *Client) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
