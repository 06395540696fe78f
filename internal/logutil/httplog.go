// Package logutil provides logging convenience functions.
package logutil

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync/atomic"
)

var requestNumber atomic.Int64

// LoggingTransport logs HTTP requests and responses at Debug while
// redacting sensitive information. Transports performing pack exchange wrap
// their base RoundTripper with it.
type LoggingTransport struct {
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (s *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	log := slog.Default().WithGroup("http").With("requestID", requestNumber.Add(1))
	const maxSize = 10 * 1024
	var err error

	enabled := log.Enabled(ctx, slog.LevelDebug)
	if enabled {
		var save io.ReadCloser
		if req.ContentLength >= 0 && req.ContentLength < maxSize {
			save, req.Body, err = drainBody(req.Body)
			if err != nil {
				return nil, err
			}
			// MUST set before clone
			req.GetBody = func() (io.ReadCloser, error) { return save, nil }
		}

		req := req.Clone(ctx)
		if save != nil {
			// the clone shares the outgoing body; dump an independent copy
			save, req.Body, err = drainBody(save)
			if err != nil {
				return nil, err
			}
		}
		// redact URL credentials and the query string (signed URLs carry
		// credentials there)
		req.URL.User = nil
		req.URL.RawQuery = ""

		redactHTTPHeaders(req.Header)

		reqBytes, err := httputil.DumpRequestOut(req, req.ContentLength >= 0 && req.ContentLength < maxSize)
		if err != nil {
			log.ErrorContext(ctx, "Failed to dump the HTTP request", "error", err.Error())
		} else {
			log.DebugContext(ctx, "HTTP Request", "contents", string(reqBytes))
		}
	}

	resp, err := s.Base.RoundTrip(req)
	// err is returned after dumping the response

	if resp != nil && enabled {
		savedHeaders := resp.Header.Clone()
		redactHTTPHeaders(resp.Header)
		// bodies are omitted: pack payloads are large and opaque
		respBytes, err := httputil.DumpResponse(resp, false)
		if err != nil {
			log.ErrorContext(ctx, "Failed to dump the HTTP response", "error", err.Error())
		} else {
			log.DebugContext(ctx, "HTTP Response", "contents", string(respBytes))
		}

		resp.Header = savedHeaders
	}

	return resp, err
}

const redactedValue = "[REDACTED]"

var redactedHeaders = []string{
	"Authorization",
	"Cookie",
	"Set-Cookie",
}

// redact http headers in place.
func redactHTTPHeaders(hdrs http.Header) {
	for _, h := range redactedHeaders {
		values := hdrs.Values(h)
		for i := range values {
			values[i] = redactedValue
		}
	}

	values := hdrs.Values("Location")
	for i, value := range values {
		values[i] = redactURL(value)
	}
}

// redact the URL inplace removing user credentials and query string params.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

// drainBody reads all of b to memory and then returns two equivalent
// ReadClosers yielding the same bytes.
//
// It returns an error if the initial slurp of all bytes fails. It does not attempt
// to make the returned ReadClosers have identical error-matching behavior.
func drainBody(b io.ReadCloser) (r1, r2 io.ReadCloser, err error) {
	if b == nil || b == http.NoBody {
		// No copying needed. Preserve the magic sentinel meaning of NoBody.
		return http.NoBody, http.NoBody, nil
	}
	var buf bytes.Buffer
	if _, err = buf.ReadFrom(b); err != nil {
		return nil, b, err
	}
	if err = b.Close(); err != nil {
		return nil, b, err
	}
	return io.NopCloser(&buf), io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}
