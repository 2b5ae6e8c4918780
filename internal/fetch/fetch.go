package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const userAgent = "app-installer"

type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d for %s", e.StatusCode, e.URL)
}

type Response struct {
	Body          io.ReadCloser
	ContentLength int64
	URL           string
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

type Client struct {
	client *retryablehttp.Client
}

// New returns a Fetcher that follows redirects. A timeout of zero keeps the
// http.Client default of no timeout; retryMax of zero disables retries.
func New(timeout time.Duration, retryMax int) *Client {
	c := retryablehttp.NewClient()
	c.Logger = nil
	c.RetryMax = retryMax
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 5 * time.Second
	c.HTTPClient.Timeout = timeout
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &Client{client: c}
}

func (c *Client) Fetch(ctx context.Context, url string) (*Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return &Response{
		Body:          resp.Body,
		ContentLength: resp.ContentLength,
		URL:           resp.Request.URL.String(),
	}, nil
}

// ReadAll fetches url and returns the whole body.
func ReadAll(ctx context.Context, f Fetcher, url string) ([]byte, error) {
	resp, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}
