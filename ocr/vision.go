package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"listing_intake/httputil"
	"listing_intake/identity"
)

const (
	DefaultVisionURL = "https://vision.googleapis.com/v1/images:annotate"

	// Vision does not score plate detection; a normalized plate gets this
	// fixed confidence.
	plateConfidence = 0.88
)

type visionRequest struct {
	Requests []visionImageRequest `json:"requests"`
}

type visionImageRequest struct {
	Image    visionImage     `json:"image"`
	Features []visionFeature `json:"features"`
}

type visionImage struct {
	Content string `json:"content"`
}

type visionFeature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

type visionResponse struct {
	Responses []struct {
		FullTextAnnotation *struct {
			Text string `json:"text"`
		} `json:"fullTextAnnotation"`
		TextAnnotations []struct {
			Description string `json:"description"`
		} `json:"textAnnotations"`
	} `json:"responses"`
}

// VisionRecognizer runs Google Vision TEXT_DETECTION and normalizes the
// detected text into a plate.
type VisionRecognizer struct {
	apiKey   string
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
}

func NewVisionRecognizer(apiKey, endpoint string, timeout time.Duration) *VisionRecognizer {
	if endpoint == "" {
		endpoint = DefaultVisionURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &VisionRecognizer{
		apiKey:   apiKey,
		endpoint: endpoint,
		client:   httputil.NewClient(timeout),
		limiter:  rate.NewLimiter(rate.Limit(10), 20),
	}
}

// Available returns true if the Vision API key is configured.
func (v *VisionRecognizer) Available() bool {
	return v.apiKey != ""
}

// Recognize returns an empty Result without calling Vision when no API key
// is configured.
func (v *VisionRecognizer) Recognize(ctx context.Context, image []byte) (*Result, error) {
	if !v.Available() {
		return &Result{}, nil
	}

	if err := v.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	payload, err := json.Marshal(visionRequest{
		Requests: []visionImageRequest{{
			Image:    visionImage{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []visionFeature{{Type: "TEXT_DETECTION", MaxResults: 10}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := v.endpoint + "?key=" + url.QueryEscape(v.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		// url.Error carries the request URL, which includes the key.
		return nil, fmt.Errorf("%w: vision request failed", ErrUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: vision status %d", ErrUnavailable, resp.StatusCode)
	}

	var vr visionResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrUnavailable, err)
	}

	plate, ok := identity.NormalizePlate(detectedText(&vr))
	if !ok {
		return &Result{}, nil
	}
	return &Result{RegistrationNumber: &plate, Confidence: plateConfidence}, nil
}

func detectedText(vr *visionResponse) string {
	if len(vr.Responses) == 0 {
		return ""
	}
	first := vr.Responses[0]
	if first.FullTextAnnotation != nil && first.FullTextAnnotation.Text != "" {
		return first.FullTextAnnotation.Text
	}
	if len(first.TextAnnotations) > 0 {
		return first.TextAnnotations[0].Description
	}
	return ""
}
