package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"listing_intake/filter"
	"listing_intake/models"
	"listing_intake/ocr"
	"listing_intake/parser"
	"listing_intake/ratelimit"
	"listing_intake/storage"
)

var testNow = time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC)

const fullMessage = "2020 Hyundai i20, Automatic, KA01AB1234, Price: 6.5 lakh, 38000 km, Insurance till Dec 2026"

type stubBot struct {
	ok    bool
	calls int32
}

func (b *stubBot) Verify(ctx context.Context, token, remoteIP string) bool {
	atomic.AddInt32(&b.calls, 1)
	return b.ok
}

type stubRecognizer struct {
	plate      string
	confidence float64
	err        error
}

func (r stubRecognizer) Recognize(ctx context.Context, image []byte) (*ocr.Result, error) {
	if r.err != nil {
		return nil, r.err
	}
	res := &ocr.Result{Confidence: r.confidence}
	if r.plate != "" {
		p := r.plate
		res.RegistrationNumber = &p
	}
	return res, nil
}

type stubUploader struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (u *stubUploader) UploadPhoto(ctx context.Context, hash string, data []byte, contentType string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	key := storage.PhotoKey(hash, contentType)
	u.keys = append(u.keys, key)
	return key, nil
}

func (u *stubUploader) PublicURL(key string) string {
	return "https://cdn.example.test/" + key
}

type memoryRecorder struct {
	mu     sync.Mutex
	events []models.SecurityEvent
}

func (r *memoryRecorder) RecordEvent(ctx context.Context, e *models.SecurityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
	return nil
}

func (r *memoryRecorder) ofType(t models.EventType) []models.SecurityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.SecurityEvent
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	repo     *storage.MemoryStore
	limiter  *ratelimit.Limiter
	bot      *stubBot
	recorder *memoryRecorder
	uploader *stubUploader
	guard    *DuplicateGuard
	audit    *Auditor
}

func newFixture(t *testing.T, quotas map[string]ratelimit.Quota) *fixture {
	t.Helper()
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), quotas)
	limiter.SetClock(func() time.Time { return testNow })
	repo := storage.NewMemoryStore()
	recorder := &memoryRecorder{}
	return &fixture{
		repo:     repo,
		limiter:  limiter,
		bot:      &stubBot{ok: true},
		recorder: recorder,
		uploader: &stubUploader{},
		guard:    NewDuplicateGuard(repo),
		audit:    NewAuditor(recorder),
	}
}

func (f *fixture) submissionService(t *testing.T, recognizer ocr.Recognizer) *SubmissionService {
	t.Helper()
	kw, err := filter.NewKeywordFilter([]string{"scam", "advance payment"})
	if err != nil {
		t.Fatalf("NewKeywordFilter: %v", err)
	}
	p := parser.New(nil)
	p.SetClock(func() time.Time { return testNow })

	media := NewMediaService(f.uploader, f.repo)
	media.retry.BaseDelay = time.Millisecond

	svc := NewSubmissionService(SubmissionDeps{
		Parser:       p,
		Limiter:      f.limiter,
		Bot:          f.bot,
		Abuse:        kw,
		OCR:          recognizer,
		OCRThreshold: 0.6,
		Guard:        f.guard,
		Media:        media,
		Audit:        f.audit,
	})
	svc.now = func() time.Time { return testNow }
	return svc
}

func validRequest() SubmissionRequest {
	return SubmissionRequest{
		ActorID:   "dealer-1",
		RemoteIP:  "10.0.0.1",
		Token:     "token",
		Message:   fullMessage,
		City:      "Bengaluru",
		State:     "Karnataka",
		Model:     "i20",
		FuelType:  models.FuelPetrol,
		OwnerType: models.OwnerFirst,
	}
}

func requireKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("error %v is not *services.Error", err)
	}
	if e.Kind != want {
		t.Fatalf("kind = %s, want %s (%v)", e.Kind, want, err)
	}
}
