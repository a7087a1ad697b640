package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"listing_intake/filter"
	"listing_intake/ratelimit"
)

type Config struct {
	HTTPAddr         string
	DatabaseURL      string
	DBPath           string
	LogPath          string
	LogLevel         string
	RateLimitStore   string
	BrowsePageSize   int
	MaxImageBytes    int
	DenyList         []string
	Recaptcha        RecaptchaConfig
	OCR              OCRConfig
	S3               S3Config
	Scheduler        SchedulerConfig
	IntakeConfigPath string
	Intake           IntakeConfig
}

type RecaptchaConfig struct {
	SecretKey      string
	VerifyURL      string
	ScoreThreshold float64
	Timeout        time.Duration
}

type OCRConfig struct {
	EdgeFunctionURL     string
	ConfidenceThreshold float64
	Timeout             time.Duration
	VisionAPIKey        string
	VisionURL           string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether photo uploads are configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

type SchedulerConfig struct {
	PurgeCron      string
	HealthInterval time.Duration
}

// IntakeConfig is the optional YAML file with the make vocabulary and
// per-action rate-limit quotas.
type IntakeConfig struct {
	Makes  []string                   `yaml:"makes"`
	Quotas map[string]ratelimit.Quota `yaml:"quotas"`
}

const (
	RateLimitStoreSQLite   = "sqlite"
	RateLimitStorePostgres = "postgres"
	RateLimitStoreMemory   = "memory"
)

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DBPath:         getEnv("DB_PATH", "intake.db"),
		LogPath:        getEnv("LOG_PATH", "intake.log"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		RateLimitStore: getEnv("RATE_LIMIT_STORE", RateLimitStoreSQLite),
		BrowsePageSize: getEnvInt("BROWSE_PAGE_SIZE", 50),
		MaxImageBytes:  getEnvInt("MAX_IMAGE_BYTES", 10<<20),
		Recaptcha: RecaptchaConfig{
			SecretKey:      os.Getenv("RECAPTCHA_SECRET_KEY"),
			VerifyURL:      getEnv("RECAPTCHA_VERIFY_URL", "https://www.google.com/recaptcha/api/siteverify"),
			ScoreThreshold: getEnvFloat("RECAPTCHA_SCORE_THRESHOLD", 0.5),
			Timeout:        getEnvDuration("RECAPTCHA_TIMEOUT", 5*time.Second),
		},
		OCR: OCRConfig{
			EdgeFunctionURL:     os.Getenv("OCR_EDGE_FUNCTION_URL"),
			ConfidenceThreshold: getEnvFloat("OCR_CONFIDENCE_THRESHOLD", 0.6),
			Timeout:             getEnvDuration("OCR_TIMEOUT", 10*time.Second),
			VisionAPIKey:        os.Getenv("GOOGLE_VISION_API_KEY"),
			VisionURL:           getEnv("GOOGLE_VISION_URL", "https://vision.googleapis.com/v1/images:annotate"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		Scheduler: SchedulerConfig{
			PurgeCron:      getEnv("RATE_LIMIT_PURGE_CRON", "*/15 * * * *"),
			HealthInterval: getEnvDuration("HEALTH_PROBE_INTERVAL", time.Minute),
		},
		IntakeConfigPath: getEnv("INTAKE_CONFIG", "config/intake.yaml"),
	}

	denyList, err := filter.ParseDenyList(os.Getenv("SUSPICIOUS_KEYWORDS"))
	if err != nil {
		return nil, fmt.Errorf("SUSPICIOUS_KEYWORDS: %w", err)
	}
	cfg.DenyList = denyList

	if err := cfg.loadIntakeConfig(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadIntakeConfig() error {
	data, err := os.ReadFile(c.IntakeConfigPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := yaml.Unmarshal(data, &c.Intake); err != nil {
		return fmt.Errorf("parse %s: %w", c.IntakeConfigPath, err)
	}
	return nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Recaptcha.ScoreThreshold < 0 || c.Recaptcha.ScoreThreshold > 1 {
		errs = append(errs, fmt.Errorf("RECAPTCHA_SCORE_THRESHOLD must be within [0,1], got %v", c.Recaptcha.ScoreThreshold))
	}
	if c.OCR.ConfidenceThreshold < 0 || c.OCR.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("OCR_CONFIDENCE_THRESHOLD must be within [0,1], got %v", c.OCR.ConfidenceThreshold))
	}
	if c.BrowsePageSize <= 0 || c.MaxImageBytes <= 0 {
		errs = append(errs, errors.New("BROWSE_PAGE_SIZE and MAX_IMAGE_BYTES must be positive"))
	}
	for action, q := range c.Intake.Quotas {
		if q.Limit <= 0 || q.Window <= 0 {
			errs = append(errs, fmt.Errorf("quota %q: limit and window must be positive", action))
		}
	}
	switch c.RateLimitStore {
	case RateLimitStoreSQLite, RateLimitStoreMemory:
	case RateLimitStorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("RATE_LIMIT_STORE=postgres requires DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_STORE %q", c.RateLimitStore))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
