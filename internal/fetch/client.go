package fetch

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"time"
)

// NewClient builds a plain HTTP client with a fixed per-request timeout.
// Grounded on teacher's httpclient.NewDefaultHTTPClient one-liner.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &contextAwareTransport{base: http.DefaultTransport},
	}
}

// NewMTLSClient builds an HTTP client presenting a client certificate,
// for sources (the Discovery Adapter) that authenticate via mutual TLS
// rather than a bearer token.
func NewMTLSClient(timeout time.Duration, cert tls.Certificate) *http.Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		},
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &contextAwareTransport{base: transport},
	}
}

// contextAwareTransport rejects requests whose context is already done
// before handing them to the underlying transport, so a cancelled
// pipeline context stops in-flight work instead of leaking a goroutine
// waiting on a socket. Ported from teacher's html_scraper.go
// contextAwareTransport.
type contextAwareTransport struct {
	base http.RoundTripper
}

func (t *contextAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return t.base.RoundTrip(req)
}

// Get issues a GET request against rawURL and returns the status code,
// response body (capped at maxBodySize) and any transport-level error.
// It never returns a non-nil error alongside a non-2xx status: callers
// classify the outcome via Classify instead of branching on err.
func Get(ctx context.Context, client *http.Client, rawURL string, userAgent string, maxBodySize int64) (int, []byte, error) {
	return GetWithHeaders(ctx, client, rawURL, userAgent, nil, maxBodySize)
}

// GetWithHeaders is Get plus arbitrary extra request headers (e.g.
// "Accept: application/json" for a JSON API), for adapters layered on
// top of an already-authenticated client (OAuth2 bearer tokens, mTLS)
// where the auth itself lives in the client's transport.
func GetWithHeaders(ctx context.Context, client *http.Client, rawURL string, userAgent string, headers map[string]string, maxBodySize int64) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}
