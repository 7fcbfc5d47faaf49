package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var defaultHeaders = map[string]string{
	"Accept-Language": "en-IN,en;q=0.9",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
}

// Hints tune a single request. Referer is sent as-is; Headers override the
// browser-like defaults.
type Hints struct {
	Referer string
	Headers map[string]string
}

type Response struct {
	URL    string
	Status int
	Body   []byte
}

type Fetcher interface {
	Fetch(ctx context.Context, url string, hints Hints) (*Response, error)
}

// NetworkError covers timeouts, connection errors and non-success statuses.
type NetworkError struct {
	URL    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

var errEmptyResponse = errors.New("empty response")

// CollyFetcher builds a fresh collector per request, so concurrent fetches
// share no callback state.
type CollyFetcher struct {
	UserAgent string
	Timeout   time.Duration
}

func NewCollyFetcher(userAgent string, timeout time.Duration) *CollyFetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	return &CollyFetcher{UserAgent: userAgent, Timeout: timeout}
}

func (f *CollyFetcher) Fetch(ctx context.Context, target string, hints Hints) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &NetworkError{URL: target, Err: err}
	}

	timeout, err := requestTimeout(ctx, f.Timeout)
	if err != nil {
		return nil, &NetworkError{URL: target, Err: err}
	}

	c := colly.NewCollector(
		colly.UserAgent(f.UserAgent),
	)
	c.SetRequestTimeout(timeout)

	c.OnRequest(func(r *colly.Request) {
		for k, v := range defaultHeaders {
			r.Headers.Set(k, v)
		}
		if hints.Referer != "" {
			r.Headers.Set("Referer", hints.Referer)
		}
		for k, v := range hints.Headers {
			r.Headers.Set(k, v)
		}
	})

	var resp *Response
	c.OnResponse(func(r *colly.Response) {
		resp = &Response{
			URL:    r.Request.URL.String(),
			Status: r.StatusCode,
			Body:   r.Body,
		}
	})

	var status int
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(target); err != nil {
		return nil, &NetworkError{URL: target, Status: status, Err: err}
	}
	if resp == nil {
		return nil, &NetworkError{URL: target, Status: status, Err: errEmptyResponse}
	}
	if resp.Status < 200 || resp.Status > 299 {
		return nil, &NetworkError{URL: target, Status: resp.Status, Err: fmt.Errorf("unexpected status")}
	}
	return resp, nil
}

// requestTimeout caps limit by the context deadline. A non-positive timeout
// would leave the HTTP client unbounded, so a spent deadline is an error.
func requestTimeout(ctx context.Context, limit time.Duration) (time.Duration, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return limit, nil
	}
	left := time.Until(deadline)
	if left <= 0 {
		return 0, context.DeadlineExceeded
	}
	return min(left, limit), nil
}
