// Package botcheck asks the reCAPTCHA siteverify endpoint whether a
// submission came from a human.
package botcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"listing_intake/httputil"
	"listing_intake/logging"
)

const (
	DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"
	DefaultThreshold = 0.5
)

var ErrNoSecret = errors.New("botcheck: secret key not configured")

// Assessment is the decoded siteverify answer.
type Assessment struct {
	Success    bool     `json:"success"`
	Score      *float64 `json:"score,omitempty"`
	Action     string   `json:"action,omitempty"`
	Hostname   string   `json:"hostname,omitempty"`
	ErrorCodes []string `json:"error-codes,omitempty"`
}

// Human applies the acceptance rule: success must be true and a reported
// score must reach threshold. A missing score is not held against the
// token.
func (a Assessment) Human(threshold float64) bool {
	if !a.Success {
		return false
	}
	if a.Score != nil && *a.Score < threshold {
		return false
	}
	return true
}

type Verifier struct {
	secret    string
	endpoint  string
	threshold float64
	client    *http.Client
	limiter   *rate.Limiter
}

// NewVerifier creates a verifier with a bounded per-call timeout. Empty
// endpoint and non-positive timeout fall back to the defaults.
func NewVerifier(secret, endpoint string, threshold float64, timeout time.Duration) *Verifier {
	if endpoint == "" {
		endpoint = DefaultVerifyURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Verifier{
		secret:    secret,
		endpoint:  endpoint,
		threshold: threshold,
		client:    httputil.NewClient(timeout),
		limiter:   rate.NewLimiter(rate.Limit(20), 40),
	}
}

func (v *Verifier) Threshold() float64 {
	return v.threshold
}

// Assess posts token (and remoteIP when known) to siteverify and decodes the
// answer. Transport failures, non-2xx statuses and malformed bodies are
// returned as errors.
func (v *Verifier) Assess(ctx context.Context, token, remoteIP string) (*Assessment, error) {
	if v.secret == "" {
		return nil, ErrNoSecret
	}

	if err := v.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("siteverify returned %d", resp.StatusCode)
	}

	var a Assessment
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &a, nil
}

// Verify is Assess reduced to a yes/no. Every failure counts as "not human".
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	a, err := v.Assess(ctx, token, remoteIP)
	if err != nil {
		logging.Warn("bot verification failed", "err", err)
		return false
	}
	if !a.Human(v.threshold) {
		logging.Debug("bot verification rejected", "success", a.Success, "error_codes", a.ErrorCodes)
		return false
	}
	return true
}
