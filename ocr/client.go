// Package ocr reads registration plates out of vehicle photos, either by
// calling a remote OCR function or by asking Google Vision directly.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"listing_intake/httputil"
)

// ErrUnavailable marks transport failures and non-2xx answers from the
// recognizer backend.
var ErrUnavailable = errors.New("ocr: recognizer unavailable")

// Result is what a recognizer saw in an image. RegistrationNumber is nil
// when no plate was found.
type Result struct {
	RegistrationNumber *string `json:"registrationNumber"`
	Confidence         float64 `json:"confidence"`
}

// Plate returns the recognized plate, or "" when none was found.
func (r *Result) Plate() string {
	if r == nil || r.RegistrationNumber == nil {
		return ""
	}
	return *r.RegistrationNumber
}

type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (*Result, error)
}

// Client posts raw image bytes to an OCR function that answers with a
// Result document.
type Client struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		client:   httputil.NewClient(timeout),
		limiter:  rate.NewLimiter(rate.Limit(5), 10),
	}
}

// Available returns true if an endpoint is configured.
func (c *Client) Available() bool {
	return c != nil && c.endpoint != ""
}

func (c *Client) Recognize(ctx context.Context, image []byte) (*Result, error) {
	if !c.Available() {
		return nil, fmt.Errorf("%w: no endpoint configured", ErrUnavailable)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrUnavailable, err)
	}
	return &result, nil
}
