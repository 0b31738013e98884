package githubapp

import (
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryPolicy is an explicit value describing how outbound GitHub calls are
// retried: which statuses are retryable, the exponential backoff bounds,
// and whether a 429's Retry-After header overrides the computed wait.
type RetryPolicy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	Jitter            time.Duration
	RetryableStatus   map[int]bool
	RespectRetryAfter bool
}

// DefaultRetryPolicy retries 429 and the transient 5xx family up to five
// attempts with capped exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Jitter:       2 * time.Second,
		RetryableStatus: map[int]bool{
			http.StatusTooManyRequests:     true,
			http.StatusInternalServerError: true,
			http.StatusBadGateway:          true,
			http.StatusServiceUnavailable:  true,
			http.StatusGatewayTimeout:      true,
		},
		RespectRetryAfter: true,
	}
}

// Do executes the request, retrying retryable statuses and transport
// errors. Any other response, including non-retryable 4xx, is returned to
// the caller on the first attempt without consuming retry budget. The
// request must carry a replayable body (GetBody) to be retried.
func (p RetryPolicy) Do(hc *http.Client, req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req.Body = body
		}

		resp, err := hc.Do(req)
		if err != nil {
			lastErr = err
		} else if !p.RetryableStatus[resp.StatusCode] {
			return resp, nil
		} else {
			lastErr = &StatusError{StatusCode: resp.StatusCode, URL: req.URL.String()}
		}

		wait := p.wait(attempt, resp)
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		log.Debug().Int("attempt", attempt+1).Dur("wait", wait).Str("url", req.URL.String()).Err(lastErr).Msg("retrying github call")
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

// wait computes the backoff before the next attempt. A 429 with a
// Retry-After header wins over the exponential schedule.
func (p RetryPolicy) wait(attempt int, resp *http.Response) time.Duration {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests && p.RespectRetryAfter {
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
				return time.Duration(secs)*time.Second + p.jitter()
			}
		}
	}
	d := p.InitialDelay << uint(attempt)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return d + p.jitter()
}

func (p RetryPolicy) jitter() time.Duration {
	if p.Jitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(p.Jitter)))
}

// StatusError reports a non-2xx response after retries were exhausted or
// for statuses that are never retried.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return "github: " + e.URL + " returned " + strconv.Itoa(e.StatusCode)
}
