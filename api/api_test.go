package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"listing_intake/filter"
	"listing_intake/models"
	"listing_intake/ocr"
	"listing_intake/parser"
	"listing_intake/ratelimit"
	"listing_intake/services"
	"listing_intake/storage"
)

const testMessage = "2020 Hyundai i20, Automatic, KA01AB1234, Price: 6.5 lakh, 38000 km, Insurance till Dec 2026"

type allowBot struct{}

func (allowBot) Verify(ctx context.Context, token, remoteIP string) bool { return token != "" }

type fixedRecognizer struct {
	plate string
}

func (f fixedRecognizer) Recognize(ctx context.Context, image []byte) (*ocr.Result, error) {
	p := f.plate
	return &ocr.Result{RegistrationNumber: &p, Confidence: 0.9}, nil
}

type testServer struct {
	handler http.Handler
	repo    *storage.MemoryStore
}

func newTestServer(t *testing.T, quotas map[string]ratelimit.Quota) *testServer {
	t.Helper()
	repo := storage.NewMemoryStore()
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), quotas)
	kw, err := filter.NewKeywordFilter([]string{"scam"})
	if err != nil {
		t.Fatalf("NewKeywordFilter: %v", err)
	}
	p := parser.New(nil)
	p.SetClock(func() time.Time { return time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC) })

	audit := services.NewAuditor(nil)
	guard := services.NewDuplicateGuard(repo)
	recognizer := fixedRecognizer{plate: "MH12CD4321"}

	handler := NewRouter(RouterDependencies{
		Parse: services.NewParseService(p),
		Submissions: services.NewSubmissionService(services.SubmissionDeps{
			Parser:       p,
			Limiter:      limiter,
			Bot:          allowBot{},
			Abuse:        kw,
			OCR:          recognizer,
			OCRThreshold: 0.6,
			Guard:        guard,
			Media:        services.NewMediaService(nil, repo),
			Audit:        audit,
		}),
		OCRCheck:        services.NewOCRCheckService(recognizer, 0.6, guard, audit),
		Chat:            services.NewChatService(repo, limiter, allowBot{}, audit),
		Browse:          services.NewBrowseService(repo, 50),
		Health:          services.NewHealthcheckService(map[string]services.Pinger{"listings": repo}),
		PlateRecognizer: ocr.NewHandler(recognizer, 1<<20),
		MaxImageBytes:   1 << 20,
	})
	return &testServer{handler: handler, repo: repo}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, path, actor string, body interface{}) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(actorHeader, actor)
	}
	return req
}

func validListing(message string) listingRequest {
	return listingRequest{
		Message:        message,
		City:           "Bengaluru",
		State:          "Karnataka",
		Model:          "i20",
		FuelType:       string(models.FuelPetrol),
		OwnerType:      string(models.OwnerFirst),
		RecaptchaToken: "token",
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	decode(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestParseEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, jsonRequest(t, http.MethodPost, "/api/parser", "", parseRequest{Message: testMessage, City: "Bengaluru"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var parsed models.ParsedListing
	decode(t, rec, &parsed)
	if parsed.SEOTitle != "2020 Hyundai Automatic - 38,000 KM in Bengaluru" {
		t.Errorf("seoTitle = %q", parsed.SEOTitle)
	}
	if parsed.RegistrationNumber != "KA01AB1234" {
		t.Errorf("registrationNumber = %q", parsed.RegistrationNumber)
	}

	rec = s.do(t, jsonRequest(t, http.MethodPost, "/api/parser", "", parseRequest{Message: "hi"}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short message status = %d, want 400", rec.Code)
	}
	var e errorResponse
	decode(t, rec, &e)
	if e.Kind != services.KindValidation || e.Field != "message" {
		t.Errorf("error = %+v", e)
	}
}

func TestCreateListingRequiresActor(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, jsonRequest(t, http.MethodPost, "/api/listings", "", validListing(testMessage)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreateListingThenDuplicate(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, jsonRequest(t, http.MethodPost, "/api/listings", "dealer-1", validListing(testMessage)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result models.SubmissionResult
	decode(t, rec, &result)
	if result.Outcome != models.OutcomePublished || result.ListingID == nil {
		t.Fatalf("result = %+v", result)
	}

	rec = s.do(t, jsonRequest(t, http.MethodPost, "/api/listings", "dealer-2", validListing(testMessage)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, body %s", rec.Code, rec.Body.String())
	}
	var e errorResponse
	decode(t, rec, &e)
	if e.Outcome != models.OutcomeRejectedDuplicate {
		t.Errorf("outcome = %q", e.Outcome)
	}
	if e.Error != "Duplicate registration number" {
		t.Errorf("error = %q", e.Error)
	}
}

func TestCreateListingRateLimited(t *testing.T) {
	s := newTestServer(t, map[string]ratelimit.Quota{
		ratelimit.ActionListingCreate: {Limit: 1, Window: time.Hour},
	})

	first := s.do(t, jsonRequest(t, http.MethodPost, "/api/listings", "dealer-1", validListing(testMessage)))
	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d, body %s", first.Code, first.Body.String())
	}

	rec := s.do(t, jsonRequest(t, http.MethodPost, "/api/listings", "dealer-1",
		validListing("2019 Honda City, Manual, KA05MN9876, Price: 5 lakh, 42000 km")))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	var e errorResponse
	decode(t, rec, &e)
	if e.Outcome != models.OutcomeRejectedRateLimited || e.ResetAt == nil {
		t.Errorf("error = %+v", e)
	}
}

func TestCreateListingMultipartUsesOCR(t *testing.T) {
	s := newTestServer(t, nil)

	payload, _ := json.Marshal(validListing("2019 Honda City, Manual, Price: 5 lakh, 42000 km"))
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("payload", string(payload)); err != nil {
		t.Fatal(err)
	}
	part, err := mw.CreateFormFile("image", "car.jpg")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("fake jpeg bytes"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/listings", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(actorHeader, "dealer-1")

	rec := s.do(t, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result models.SubmissionResult
	decode(t, rec, &result)
	if result.Parsed == nil || result.Parsed.RegistrationNumber != "MH12CD4321" {
		t.Fatalf("parsed = %+v", result.Parsed)
	}
}

func TestListListings(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, jsonRequest(t, http.MethodPost, "/api/listings", "dealer-1", validListing(testMessage)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/listings?city=Bengaluru&maxPrice=700000&sort=price_asc", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Listings []models.Listing `json:"listings"`
	}
	decode(t, rec, &body)
	if len(body.Listings) != 1 {
		t.Fatalf("got %d listings, want 1", len(body.Listings))
	}

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/listings?maxPrice=100", nil))
	decode(t, rec, &body)
	if len(body.Listings) != 0 {
		t.Errorf("price filter returned %d listings", len(body.Listings))
	}

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/listings?minKm=lots", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad int status = %d, want 400", rec.Code)
	}
	var e errorResponse
	decode(t, rec, &e)
	if e.Field != "minKm" {
		t.Errorf("field = %q", e.Field)
	}

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/listings?sort=random", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad sort status = %d, want 400", rec.Code)
	}
}

func TestOCRCheckRawBody(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/ocr-check", strings.NewReader("image bytes"))
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set(actorHeader, "dealer-1")

	rec := s.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var res services.OCRCheckResult
	decode(t, rec, &res)
	if res.RegistrationNumber != "MH12CD4321" || res.ImageHash == "" {
		t.Errorf("result = %+v", res)
	}
}

func TestOCRCheckEmptyImage(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/ocr-check", strings.NewReader(""))
	req.Header.Set(actorHeader, "dealer-1")

	rec := s.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestInitiateChat(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, jsonRequest(t, http.MethodPost, "/api/listings", "dealer-1", validListing(testMessage)))
	var result models.SubmissionResult
	decode(t, rec, &result)
	if result.ListingID == nil {
		t.Fatalf("create failed: %s", rec.Body.String())
	}

	rec = s.do(t, jsonRequest(t, http.MethodPost, "/api/chat/initiate", "dealer-2", chatRequest{
		ListingID:      result.ListingID.String(),
		Message:        "Is this still available?",
		RecaptchaToken: "token",
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := s.repo.ChatInitiations(*result.ListingID); len(got) != 1 || got[0].DealerID != "dealer-2" {
		t.Errorf("chat initiations = %+v", got)
	}

	rec = s.do(t, jsonRequest(t, http.MethodPost, "/api/chat/initiate", "dealer-2", chatRequest{
		ListingID:      "5f0c7c9e-2d1b-4a8e-9a5e-3b8d1c2e4f60",
		Message:        "Hello there",
		RecaptchaToken: "token",
	}))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown listing status = %d, want 404", rec.Code)
	}
}

func TestPlateRecognizerMounted(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, httptest.NewRequest(http.MethodPost, "/ocr/plate", strings.NewReader("jpeg")))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5000"
	if got := clientIP(req); got != "192.0.2.7" {
		t.Errorf("clientIP = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Errorf("clientIP with forwarded = %q", got)
	}
}
