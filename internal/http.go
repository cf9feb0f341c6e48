package internal

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// HeaderTransport adds default headers to every request
type HeaderTransport struct {
	Base    http.RoundTripper
	Headers http.Header
}

func (t *HeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for key, values := range t.Headers {
		if req.Header.Get(key) != "" {
			continue
		}
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// ClientOptions configures NewHTTPClient
type ClientOptions struct {
	Retries int
	Timeout time.Duration
	Headers http.Header
	Logger  *slog.Logger
}

// NewHTTPClient returns a client that retries failed requests with backoff
// and sends opts.Headers with every request.
func NewHTTPClient(opts ClientOptions) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.Retries
	retryClient.RetryWaitMin = 250 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.HTTPClient.Transport = &HeaderTransport{
		Base:    retryClient.HTTPClient.Transport,
		Headers: opts.Headers,
	}
	retryClient.Logger = nil
	if opts.Logger != nil {
		retryClient.Logger = opts.Logger
	}

	return retryClient.StandardClient()
}
