package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind tags a transport failure so the orchestrator can match it
// explicitly instead of probing exception types. The tag doubles as the
// outcome key the URL is categorized under.
type ErrorKind string

const (
	KindSSLError             ErrorKind = "SSLError"
	KindConnectionError      ErrorKind = "ConnectionError"
	KindTimeout              ErrorKind = "Timeout"
	KindInvalidSchema        ErrorKind = "InvalidSchema"
	KindChunkedEncodingError ErrorKind = "ChunkedEncodingError"
)

// Retryable reports whether the failure class is transient. TLS failures and
// invalid schemes never recover on retry.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindSSLError, KindInvalidSchema:
		return false
	}
	return true
}

// RequestError is a failed fetch attempt, tagged with its failure class
type RequestError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s fetching %s: %v", e.Kind, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// classifyError maps a transport-level error onto an ErrorKind. Scheme
// problems are checked first (they surface as url.Error text), then
// timeouts, then TLS, with connection failure as the default network class.
func classifyError(err error) ErrorKind {
	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, "unsupported protocol scheme") ||
		strings.Contains(msg, "missing protocol scheme") {
		return KindInvalidSchema
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var certErr *tls.CertificateVerificationError
	var recordErr tls.RecordHeaderError
	var unknownAuthErr x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidCertErr x509.CertificateInvalidError
	if errors.As(err, &certErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &unknownAuthErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidCertErr) ||
		strings.Contains(msg, "tls:") ||
		strings.Contains(msg, "x509") ||
		strings.Contains(msg, "certificate") {
		return KindSSLError
	}

	return KindConnectionError
}

// classifyBodyError maps an error reading a response body. The connection
// dying mid-body surfaces as a chunked/transfer decode failure, which is
// retryable; timeouts keep their own class.
func classifyBodyError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindChunkedEncodingError
}
