package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"listing_intake/api"
	"listing_intake/botcheck"
	"listing_intake/config"
	"listing_intake/filter"
	"listing_intake/logging"
	"listing_intake/ocr"
	"listing_intake/parser"
	"listing_intake/ratelimit"
	"listing_intake/scheduler"
	"listing_intake/services"
	"listing_intake/storage"
)

var (
	parseMessage = flag.String("parse", "", "Parse a listing message, print it as JSON and exit")
	parseCity    = flag.String("city", "", "Location hint for -parse")
	migrateOnly  = flag.Bool("migrate", false, "Apply the Postgres schema and exit")
)

func main() {
	flag.Parse()

	if *parseMessage != "" {
		parsed := parser.New(nil).Parse(*parseMessage, *parseCity)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(parsed); err != nil {
			log.Fatalf("encode: %v", err)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		logging.Init(os.Stdout, cfg.LogLevel)
		logging.Warn("could not set up file logging", "path", cfg.LogPath, "err", err)
	} else {
		defer logFile.Close()
	}

	logging.Info("starting listing intake", "addr", cfg.HTTPAddr, "rateLimitStore", cfg.RateLimitStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite holds the audit trail and, by default, rate-limit windows.
	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer sqliteStore.Close()
	logging.Info("sqlite database", "path", cfg.DBPath)

	var (
		repo    services.ListingRepository
		pgStore *storage.PostgresStore
		checks  = map[string]services.Pinger{"sqlite": sqliteStore}
	)
	if cfg.DatabaseURL != "" {
		pgStore, err = storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pgStore.Close()
		logging.Info("connected to postgres", "dsn", maskConnectionString(cfg.DatabaseURL))

		if err := pgStore.Migrate(ctx); err != nil {
			log.Fatalf("Failed to migrate Postgres: %v", err)
		}
		repo = pgStore
		checks["postgres"] = pgStore
	} else {
		logging.Warn("DATABASE_URL not set, listings are kept in memory")
		mem := storage.NewMemoryStore()
		repo = mem
		checks["listings"] = mem
	}

	if *migrateOnly {
		if pgStore == nil {
			log.Fatal("-migrate requires DATABASE_URL")
		}
		logging.Info("migration complete")
		return
	}

	var limitStore ratelimit.Store
	var purger scheduler.Purger
	switch cfg.RateLimitStore {
	case config.RateLimitStorePostgres:
		limitStore, purger = pgStore, pgStore
	case config.RateLimitStoreMemory:
		mem := ratelimit.NewMemoryStore()
		limitStore, purger = mem, mem
	default:
		limitStore, purger = sqliteStore, sqliteStore
	}
	limiter := ratelimit.New(limitStore, cfg.Intake.Quotas)

	keywords, err := filter.NewKeywordFilter(cfg.DenyList)
	if err != nil {
		log.Fatalf("Failed to build keyword filter: %v", err)
	}
	logging.Info("keyword filter ready", "keywords", len(keywords.Keywords()))

	if cfg.Recaptcha.SecretKey == "" {
		logging.Warn("RECAPTCHA_SECRET_KEY not set, every submission will fail verification")
	}
	verifier := botcheck.NewVerifier(cfg.Recaptcha.SecretKey, cfg.Recaptcha.VerifyURL, cfg.Recaptcha.ScoreThreshold, cfg.Recaptcha.Timeout)
	logging.Info("bot verification ready", "threshold", verifier.Threshold())

	recognizer, plateHandler := buildRecognizer(cfg)

	var uploader services.PhotoUploader
	if cfg.S3.Enabled() {
		s3, err := storage.NewS3Uploader(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			log.Fatalf("Failed to create S3 uploader: %v", err)
		}
		uploader = s3
		logging.Info("photo uploads enabled", "bucket", cfg.S3.Bucket)
	}

	p := parser.New(cfg.Intake.Makes)
	audit := services.NewAuditor(sqliteStore)
	guard := services.NewDuplicateGuard(repo)
	health := services.NewHealthcheckService(checks)

	submissions := services.NewSubmissionService(services.SubmissionDeps{
		Parser:       p,
		Limiter:      limiter,
		Bot:          verifier,
		Abuse:        keywords,
		OCR:          recognizer,
		OCRThreshold: cfg.OCR.ConfidenceThreshold,
		Guard:        guard,
		Media:        services.NewMediaService(uploader, repo),
		Audit:        audit,
	})

	deps := api.RouterDependencies{
		Parse:           services.NewParseService(p),
		Submissions:     submissions,
		Chat:            services.NewChatService(repo, limiter, verifier, audit),
		Browse:          services.NewBrowseService(repo, cfg.BrowsePageSize),
		Health:          health,
		PlateRecognizer: plateHandler,
		MaxImageBytes:   int64(cfg.MaxImageBytes),
	}
	if recognizer != nil {
		deps.OCRCheck = services.NewOCRCheckService(recognizer, cfg.OCR.ConfidenceThreshold, guard, audit)
	} else {
		deps.OCRCheck = services.NewOCRCheckService(ocr.NewClient("", 0), cfg.OCR.ConfidenceThreshold, guard, audit)
	}

	sched := scheduler.New(cfg.Scheduler.PurgeCron, cfg.Scheduler.HealthInterval)
	sched.AddPurger(cfg.RateLimitStore, purger)
	sched.SetProber(health)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	server := api.NewServer(cfg.HTTPAddr, api.NewRouter(deps))
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
	case err := <-errCh:
		if err != nil {
			logging.Error("http server stopped", "err", err)
		}
	}

	logging.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error("http shutdown", "err", err)
	}
	sched.Stop()
	cancel()
	logging.Info("goodbye")
}

// buildRecognizer prefers the OCR function and falls back to Vision. The
// returned handler serves /ocr/plate and is only set for Vision, so this
// process can act as the OCR function for another instance.
func buildRecognizer(cfg *config.Config) (ocr.Recognizer, http.Handler) {
	var handler http.Handler
	vision := ocr.NewVisionRecognizer(cfg.OCR.VisionAPIKey, cfg.OCR.VisionURL, cfg.OCR.Timeout)
	if vision.Available() {
		handler = ocr.NewHandler(vision, int64(cfg.MaxImageBytes))
	}

	if cfg.OCR.EdgeFunctionURL != "" {
		logging.Info("plate recognition via ocr function", "url", cfg.OCR.EdgeFunctionURL)
		return ocr.NewClient(cfg.OCR.EdgeFunctionURL, cfg.OCR.Timeout), handler
	}
	if vision.Available() {
		logging.Info("plate recognition via vision api")
		return vision, handler
	}
	logging.Warn("no plate recognition configured")
	return nil, nil
}

// maskConnectionString masks the password in a connection string for logging.
func maskConnectionString(connStr string) string {
	start := strings.Index(connStr, "://")
	if start < 0 {
		return connStr
	}
	start += 3
	at := strings.Index(connStr[start:], "@")
	if at < 0 {
		return connStr
	}
	at += start
	colon := strings.Index(connStr[start:at], ":")
	if colon < 0 {
		return connStr
	}
	return fmt.Sprintf("%s****%s", connStr[:start+colon+1], connStr[at:])
}
