package httpclient

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const defaultBurst = 5

// New creates an HTTP client tuned for calls to external platform APIs. When
// requestsPerSecond is positive every request waits on a token bucket first.
//
//nolint:mnd
func New(timeout time.Duration, requestsPerSecond float64) *http.Client {
	var transport http.RoundTripper = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if requestsPerSecond > 0 {
		transport = NewRateLimitedTransport(transport, rate.NewLimiter(rate.Limit(requestsPerSecond), defaultBurst))
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// RateLimitedTransport delays requests so they never exceed the limiter's rate.
type RateLimitedTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func NewRateLimitedTransport(next http.RoundTripper, limiter *rate.Limiter) *RateLimitedTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &RateLimitedTransport{next: next, limiter: limiter}
}

func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}
