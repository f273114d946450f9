package httpclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrTooManyRedirects is returned by the redirect policy once the cap is hit.
var ErrTooManyRedirects = errors.New("too many redirects")

// Category groups transport and status failures for diagnostics. It must not
// drive control flow: there is no per-category retry.
type Category int

const (
	NoResponse Category = iota + 1
	Timeout
	TooManyRedirects
	HTTPStatus
)

func (c Category) String() string {
	switch c {
	case NoResponse:
		return "no_response"
	case Timeout:
		return "timeout"
	case TooManyRedirects:
		return "too_many_redirects"
	case HTTPStatus:
		return "http_status"
	default:
		return "unknown"
	}
}

var statusMessages = map[int]string{
	http.StatusBadRequest:          "Bad Request (400): The server couldn't understand the request",
	http.StatusUnauthorized:        "Unauthorized (401): Authentication required",
	http.StatusForbidden:           "Forbidden (403): Access denied",
	http.StatusNotFound:            "Not Found (404): Resource not found",
	http.StatusRequestTimeout:      "Request Timeout (408): Server timed out waiting for request",
	http.StatusTooManyRequests:     "Too Many Requests (429): Rate limit exceeded",
	http.StatusInternalServerError: "Server Error (500): Internal server error",
	http.StatusBadGateway:          "Bad Gateway (502): Invalid response from upstream server",
	http.StatusServiceUnavailable:  "Service Unavailable (503): Server temporarily down",
	http.StatusGatewayTimeout:      "Gateway Timeout (504): Upstream server failed to respond",
}

// StatusMessage returns the human readable description of an HTTP status.
func StatusMessage(code int) string {
	if msg, ok := statusMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("HTTP error (%d)", code)
}

// Error is a classified request failure.
type Error struct {
	Category   Category
	StatusCode int
	Message    string
	URL        string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.URL != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.URL)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify turns a transport error and/or HTTP status into an *Error.
// It returns nil when there is nothing to report.
func Classify(err error, statusCode int) error {
	if err == nil && statusCode < http.StatusBadRequest {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, ErrTooManyRedirects) {
		return &Error{Category: TooManyRedirects, Message: "Redirect error: too many redirections", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Category: Timeout, Message: "Timeout Error: the request timed out", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Category: Timeout, Message: "Timeout Error: the request timed out", Err: err}
	}

	if statusCode >= http.StatusBadRequest {
		return &Error{Category: HTTPStatus, StatusCode: statusCode, Message: StatusMessage(statusCode), Err: err}
	}

	return &Error{Category: NoResponse, Message: noResponseMessage(err), Err: err}
}

func noResponseMessage(err error) string {
	var (
		opErr   *net.OpError
		dnsErr  *net.DNSError
		certErr *tls.CertificateVerificationError
		hostErr x509.HostnameError
		authErr x509.UnknownAuthorityError
	)
	switch {
	case errors.As(err, &dnsErr), errors.As(err, &opErr):
		return "Connection Error: Failed to connect to the server"
	case errors.As(err, &certErr), errors.As(err, &hostErr), errors.As(err, &authErr):
		return "Connection Error: TLS handshake failed"
	default:
		return fmt.Sprintf("Network Error: %v", err)
	}
}

// Label returns the metrics label for err.
func Label(err error) string {
	if err == nil {
		return "unknown"
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Category.String()
	}
	return "other"
}

// ClassifyURL is Classify with the request URL attached to the result.
func ClassifyURL(err error, statusCode int, url string) error {
	classified := Classify(err, statusCode)
	var target *Error
	if errors.As(classified, &target) && target.URL == "" {
		target.URL = url
	}
	return classified
}
