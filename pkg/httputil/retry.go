package httputil

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"time"
)

type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// RetryClient retries transient failures: HTTP 429 and network-level errors
// (timeouts, connection resets, DNS). Server-side 5xx responses are returned
// as-is; they indicate the remote failed to process this request, and
// resending the same payload will not change that.
type RetryClient struct {
	client *http.Client
	config RetryConfig
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

func NewRetryClient(client *http.Client, config RetryConfig) *RetryClient {
	if client == nil {
		client = http.DefaultClient
	}

	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.InitialDelay == 0 {
		config.InitialDelay = 500 * time.Millisecond
	}
	if config.MaxDelay == 0 {
		config.MaxDelay = 5 * time.Second
	}
	if config.Multiplier == 0 {
		config.Multiplier = 2.0
	}

	return &RetryClient{
		client: client,
		config: config,
	}
}

func (c *RetryClient) Do(req *http.Request) (*http.Response, error) {
	delay := c.config.InitialDelay

	for attempt := 0; ; attempt++ {
		resp, err := c.client.Do(req)
		if attempt >= c.config.MaxRetries || !shouldRetry(req.Context(), resp, err) {
			return resp, err
		}

		if resp != nil {
			_ = resp.Body.Close()
		}

		if req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			req.Body = body
		}

		if sleepErr := sleepContext(req.Context(), applyJitter(delay)); sleepErr != nil {
			return nil, sleepErr
		}
		delay = min(time.Duration(float64(delay)*c.config.Multiplier), c.config.MaxDelay)
	}
}

func shouldRetry(ctx context.Context, resp *http.Response, err error) bool {
	// An expired overall budget is not transient; retrying would only burn
	// more of a deadline that is already gone.
	if ctx.Err() != nil {
		return false
	}

	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return true
		}
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return true
		}
		return false
	}

	return resp.StatusCode == http.StatusTooManyRequests
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func applyJitter(delay time.Duration) time.Duration {
	jitterFactor := 0.9 + rand.Float64()*0.2
	return time.Duration(float64(delay) * jitterFactor)
}
