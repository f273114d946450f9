package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func newMockClient(opts Options) (*Client, *httpmock.MockTransport) {
	transport := httpmock.NewMockTransport()
	opts.Transport = transport
	return New(opts), transport
}

func TestHeadersPerMethod(t *testing.T) {
	c := New(Options{})

	get := c.Headers(http.MethodGet, nil, "")
	if get.Get("User-Agent") != DefaultUserAgent {
		t.Fatalf("user agent = %q", get.Get("User-Agent"))
	}
	if get.Get("Accept") != htmlAccept {
		t.Fatalf("GET accept = %q", get.Get("Accept"))
	}
	if get.Get("Content-Type") != "" {
		t.Fatalf("GET should not set a content type")
	}
	if get.Get("Authorization") != "" {
		t.Fatalf("no token configured, got %q", get.Get("Authorization"))
	}

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch} {
		h := c.Headers(method, nil, "")
		if h.Get("Content-Type") != formType || h.Get("Accept") != "*/*" {
			t.Fatalf("%s headers = %v", method, h)
		}
	}

	del := c.Headers(http.MethodDelete, nil, "")
	if del.Get("Accept") != "*/*" || del.Get("Content-Type") != "" {
		t.Fatalf("DELETE headers = %v", del)
	}
}

func TestHeadersCallerWins(t *testing.T) {
	c := New(Options{
		AuthToken: "client-token",
		Headers:   map[string]string{"X-Client": "a", "Accept": "text/plain"},
	})

	h := c.Headers(http.MethodGet, map[string]string{"Accept": "application/json", "User-Agent": "custom"}, "")
	if h.Get("Accept") != "application/json" {
		t.Fatalf("accept = %q, want caller value", h.Get("Accept"))
	}
	if h.Get("User-Agent") != "custom" {
		t.Fatalf("user agent = %q, want caller value", h.Get("User-Agent"))
	}
	if h.Get("X-Client") != "a" {
		t.Fatalf("client header missing")
	}
	if h.Get("Authorization") != "Bearer client-token" {
		t.Fatalf("authorization = %q", h.Get("Authorization"))
	}

	h = c.Headers(http.MethodGet, nil, "call-token")
	if h.Get("Authorization") != "Bearer call-token" {
		t.Fatalf("per-call token should override, got %q", h.Get("Authorization"))
	}
	if h.Get("Accept") != "text/plain" {
		t.Fatalf("client header should override default accept, got %q", h.Get("Accept"))
	}
}

func TestGetSendsHeaders(t *testing.T) {
	c, transport := newMockClient(Options{AuthToken: "tok"})

	var got http.Header
	transport.RegisterResponder("GET", "http://example.test/page", func(req *http.Request) (*http.Response, error) {
		got = req.Header.Clone()
		return httpmock.NewStringResponse(200, "<html>ok</html>"), nil
	})

	body, err := c.Get(context.Background(), "http://example.test/page", &RequestOptions{Headers: map[string]string{"X-Trace": "1"}})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if body != "<html>ok</html>" {
		t.Fatalf("body = %q", body)
	}
	if got.Get("Authorization") != "Bearer tok" || got.Get("X-Trace") != "1" || got.Get("User-Agent") != DefaultUserAgent {
		t.Fatalf("request headers = %v", got)
	}
}

func TestVerbs(t *testing.T) {
	c, transport := newMockClient(Options{})

	var form, method string
	responder := func(req *http.Request) (*http.Response, error) {
		method = req.Method
		if err := req.ParseForm(); err == nil {
			form = req.PostForm.Get("q")
		}
		return httpmock.NewStringResponse(200, req.Method), nil
	}
	for _, m := range []string{"POST", "PUT", "DELETE"} {
		transport.RegisterResponder(m, "http://example.test/items", responder)
	}

	ctx := context.Background()
	opts := &RequestOptions{Form: map[string]string{"q": "mugs"}}
	if body, err := c.Post(ctx, "http://example.test/items", opts); err != nil || body != "POST" {
		t.Fatalf("post = %q, %v", body, err)
	}
	if form != "mugs" {
		t.Fatalf("form value = %q, want mugs", form)
	}
	if body, err := c.Put(ctx, "http://example.test/items", opts); err != nil || body != "PUT" {
		t.Fatalf("put = %q, %v", body, err)
	}
	if body, err := c.Delete(ctx, "http://example.test/items", nil); err != nil || body != "DELETE" {
		t.Fatalf("delete = %q, %v", body, err)
	}
	if method != "DELETE" {
		t.Fatalf("last method = %q", method)
	}
}

func TestDoClassifiesStatus(t *testing.T) {
	c, transport := newMockClient(Options{})
	transport.RegisterResponder("GET", "http://example.test/missing", httpmock.NewStringResponder(404, "nope"))

	_, err := c.Get(context.Background(), "http://example.test/missing", nil)
	var httpErr *Error
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if httpErr.Category != HTTPStatus || httpErr.StatusCode != 404 {
		t.Fatalf("category=%v status=%d", httpErr.Category, httpErr.StatusCode)
	}
	if httpErr.URL != "http://example.test/missing" {
		t.Fatalf("url = %q", httpErr.URL)
	}
	if !strings.Contains(err.Error(), "Not Found (404)") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestDoTimeout(t *testing.T) {
	c, transport := newMockClient(Options{})
	transport.RegisterResponder("GET", "http://example.test/slow", httpmock.NewErrorResponder(timeoutError{}))

	_, err := c.Get(context.Background(), "http://example.test/slow", nil)
	if Label(err) != "timeout" {
		t.Fatalf("label = %q (%v), want timeout", Label(err), err)
	}
}

func TestRedirectCap(t *testing.T) {
	c, transport := newMockClient(Options{MaxRedirects: 3})

	transport.RegisterResponder("GET", "http://example.test/loop", func(req *http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(http.StatusFound, "")
		resp.Header.Set("Location", "http://example.test/loop")
		return resp, nil
	})

	_, err := c.Get(context.Background(), "http://example.test/loop", nil)
	if !errors.Is(err, ErrTooManyRedirects) {
		t.Fatalf("error = %v, want ErrTooManyRedirects", err)
	}
	if Label(err) != "too_many_redirects" {
		t.Fatalf("label = %q", Label(err))
	}
	if got := transport.GetTotalCallCount(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestCheckRedirect(t *testing.T) {
	c := New(Options{MaxRedirects: 2})
	via := []*http.Request{{}, {}}
	if err := c.CheckRedirect(nil, via[:1]); err != nil {
		t.Fatalf("one redirect should pass: %v", err)
	}
	if err := c.CheckRedirect(nil, via); !errors.Is(err, ErrTooManyRedirects) {
		t.Fatalf("error = %v, want ErrTooManyRedirects", err)
	}
}

func TestNewTransportTLS(t *testing.T) {
	tr := NewTransport(time.Second)
	if tr.TLSClientConfig == nil || tr.TLSClientConfig.MinVersion != tls.VersionTLS12 {
		t.Fatalf("tls config = %+v, want min TLS 1.2", tr.TLSClientConfig)
	}
	if tr.TLSClientConfig.InsecureSkipVerify {
		t.Fatalf("certificate verification must stay on")
	}
}

func TestDownloadStreams(t *testing.T) {
	c, transport := newMockClient(Options{})
	payload := bytes.Repeat([]byte("x"), ChunkSize*3+17)
	transport.RegisterResponder("GET", "http://example.test/img.jpg", httpmock.NewBytesResponder(200, payload))
	transport.RegisterResponder("GET", "http://example.test/missing.jpg", httpmock.NewStringResponder(404, ""))

	var buf bytes.Buffer
	n, err := c.Download(context.Background(), "http://example.test/img.jpg", &buf)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if n != int64(len(payload)) || !bytes.Equal(buf.Bytes(), payload) {
		t.Fatalf("downloaded %d bytes, want %d", n, len(payload))
	}

	buf.Reset()
	if _, err := c.Download(context.Background(), "http://example.test/missing.jpg", &buf); Label(err) != "http_status" {
		t.Fatalf("label = %q (%v), want http_status", Label(err), err)
	}
	if buf.Len() != 0 {
		t.Fatalf("error responses must not be written")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrShortWrite }

func TestDownloadWriteFailure(t *testing.T) {
	c, transport := newMockClient(Options{})
	transport.RegisterResponder("GET", "http://example.test/img.jpg", httpmock.NewBytesResponder(200, []byte("data")))

	_, err := c.Download(context.Background(), "http://example.test/img.jpg", failingWriter{})
	if !errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("error = %v, want io.ErrShortWrite", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "success status", err: nil, statusCode: 200, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, expected: "timeout"},
		{name: "wrapped timeout", err: fmt.Errorf("get: %w", timeoutError{}), expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, expected: "no_response"},
		{name: "redirects", err: fmt.Errorf("get: %w", ErrTooManyRedirects), expected: "too_many_redirects"},
		{name: "forbidden", statusCode: http.StatusForbidden, expected: "http_status"},
		{name: "not found", statusCode: http.StatusNotFound, expected: "http_status"},
		{name: "rate limited", statusCode: http.StatusTooManyRequests, expected: "http_status"},
		{name: "other", err: errors.New("some other error"), expected: "no_response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Label(Classify(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("Classify(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestLabelUnclassified(t *testing.T) {
	if got := Label(errors.New("plain")); got != "other" {
		t.Fatalf("label = %q, want other", got)
	}
}

func TestNoResponseMessages(t *testing.T) {
	dial := Classify(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, 0)
	if !strings.Contains(dial.Error(), "Failed to connect to the server") {
		t.Fatalf("dial message = %q", dial.Error())
	}
	tlsErr := Classify(&tls.CertificateVerificationError{Err: errors.New("bad cert")}, 0)
	if !strings.Contains(tlsErr.Error(), "TLS handshake failed") {
		t.Fatalf("tls message = %q", tlsErr.Error())
	}
}

func TestStatusMessage(t *testing.T) {
	tests := map[int]string{
		401: "Unauthorized (401): Authentication required",
		429: "Too Many Requests (429): Rate limit exceeded",
		504: "Gateway Timeout (504): Upstream server failed to respond",
		418: "HTTP error (418)",
	}
	for code, want := range tests {
		if got := StatusMessage(code); got != want {
			t.Errorf("StatusMessage(%d) = %q, want %q", code, got, want)
		}
	}
}
