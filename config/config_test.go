package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadRequiresDenyList(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SUSPICIOUS_KEYWORDS", " , ,")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "SUSPICIOUS_KEYWORDS") {
		t.Fatalf("Load() err = %v, want deny-list error", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SUSPICIOUS_KEYWORDS", "Scam, advance payment")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.DenyList) != 2 || cfg.DenyList[0] != "scam" {
		t.Errorf("DenyList = %v", cfg.DenyList)
	}
	if cfg.Recaptcha.ScoreThreshold != 0.5 {
		t.Errorf("ScoreThreshold = %v, want 0.5", cfg.Recaptcha.ScoreThreshold)
	}
	if cfg.Recaptcha.Timeout != 5*time.Second {
		t.Errorf("Recaptcha.Timeout = %v", cfg.Recaptcha.Timeout)
	}
	if cfg.OCR.ConfidenceThreshold != 0.6 {
		t.Errorf("ConfidenceThreshold = %v, want 0.6", cfg.OCR.ConfidenceThreshold)
	}
	if cfg.RateLimitStore != RateLimitStoreSQLite {
		t.Errorf("RateLimitStore = %q", cfg.RateLimitStore)
	}
	if cfg.S3.Enabled() {
		t.Error("S3 should be disabled without credentials")
	}
	if len(cfg.Intake.Makes) != 0 {
		t.Errorf("Makes = %v, want none without intake file", cfg.Intake.Makes)
	}
}

func TestLoadIntakeFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("SUSPICIOUS_KEYWORDS", "scam")

	if err := os.MkdirAll(filepath.Join(dir, "config"), 0755); err != nil {
		t.Fatal(err)
	}
	intake := `makes:
  - Maruti
  - Jeep
quotas:
  chat_initiate:
    limit: 5
    window: 30m
`
	if err := os.WriteFile(filepath.Join(dir, "config", "intake.yaml"), []byte(intake), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Intake.Makes) != 2 || cfg.Intake.Makes[1] != "Jeep" {
		t.Errorf("Makes = %v", cfg.Intake.Makes)
	}
	q, ok := cfg.Intake.Quotas["chat_initiate"]
	if !ok || q.Limit != 5 || q.Window != 30*time.Minute {
		t.Errorf("chat_initiate quota = %+v, %v", q, ok)
	}
}

func TestLoadRejectsBadThresholds(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SUSPICIOUS_KEYWORDS", "scam")
	t.Setenv("OCR_CONFIDENCE_THRESHOLD", "1.5")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for threshold outside [0,1]")
	}
}

func TestLoadPostgresRateLimitNeedsURL(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SUSPICIOUS_KEYWORDS", "scam")
	t.Setenv("RATE_LIMIT_STORE", "postgres")
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains: it changes
// the working directory for the duration of the test and restores it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir(%q): %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore Chdir(%q): %v", prev, err)
		}
	})
}
