// SPDX-License-Identifier: AGPL-3.0-or-later

package sink

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPSink POSTs each serialised alert record to a configured webhook
// URL. It is a connector type named "http" in sink configuration (spec
// §6.2's "concrete sink backends (file, HTTP, etc.)").
type HTTPSink struct {
	name       string
	url        string
	method     string
	headers    map[string]string
	httpClient *http.Client
}

// HTTPSinkOption configures an HTTPSink at construction.
type HTTPSinkOption func(*HTTPSink)

// WithHTTPHeaders sets static headers sent with every request, in
// addition to the default Content-Type.
func WithHTTPHeaders(headers map[string]string) HTTPSinkOption {
	return func(s *HTTPSink) {
		for k, v := range headers {
			s.headers[k] = v
		}
	}
}

// WithHTTPMethod overrides the default POST method.
func WithHTTPMethod(method string) HTTPSinkOption {
	return func(s *HTTPSink) { s.method = method }
}

// WithHTTPTimeout overrides the default 10s per-request timeout.
func WithHTTPTimeout(d time.Duration) HTTPSinkOption {
	return func(s *HTTPSink) { s.httpClient.Timeout = d }
}

// NewHTTPSink builds a sink that writes to url.
func NewHTTPSink(name, url string, opts ...HTTPSinkOption) *HTTPSink {
	s := &HTTPSink{
		name:    name,
		url:     url,
		method:  http.MethodPost,
		headers: map[string]string{"Content-Type": "application/json"},
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPSink) Name() string { return s.name }

func (s *HTTPSink) Write(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, s.method, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sink %s: build request: %w", s.name, err)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sink %s: do request: %w", s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sink %s: %s returned status %d", s.name, s.url, resp.StatusCode)
	}
	return nil
}

func (s *HTTPSink) Stop(_ context.Context) error {
	s.httpClient.CloseIdleConnections()
	return nil
}
