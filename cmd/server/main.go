package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"kasirkredit/backend/internal/archive"
	"kasirkredit/backend/internal/cache"
	"kasirkredit/backend/internal/config"
	"kasirkredit/backend/internal/httpapi"
	"kasirkredit/backend/internal/metrics"
	"kasirkredit/backend/internal/registry"
	"kasirkredit/backend/internal/reminder"
	"kasirkredit/backend/internal/service"
	"kasirkredit/backend/internal/store"
	"kasirkredit/backend/internal/store/memory"
	pgstore "kasirkredit/backend/internal/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("failed to read .env file")
	}

	cfg := config.Load()
	configureLogging(cfg)
	log := logrus.StandardLogger()

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				log.Fatalf("schema migration failed: %v", err)
			}
			log.Info("schema migrated")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.WithField("repository", "postgres").Info("repository ready")
	} else {
		repo = memory.NewSeeded()
		log.WithField("repository", "memory").Info("repository ready")
	}

	summaries := cache.SummaryCache(cache.NoopSummaryCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSummaryCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.WithError(err).Warn("redis unavailable, using noop summary cache")
			_ = redisCache.Close()
		} else {
			summaries = redisCache
			closers = append(closers, redisCache.Close)
			log.WithField("cache", "redis").Info("summary cache ready")
		}
	}

	reports := archive.Store(archive.NoopStore{})
	if cfg.S3.Endpoint != "" {
		s3, err := archive.NewS3Store(archive.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKey,
			SecretAccessKey: cfg.S3.SecretKey,
			Bucket:          cfg.S3.Bucket,
			UseSSL:          cfg.S3.UseSSL,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
		})
		if err != nil {
			log.WithError(err).Warn("report archive disabled")
		} else {
			reports = s3
			log.WithField("bucket", cfg.S3.Bucket).Info("report archive ready")
		}
	}

	lookup := registry.Client(registry.NoopClient{})
	if cfg.Registry.URL != "" {
		client, err := registry.NewHTTPClient(registry.HTTPConfig{
			BaseURL: cfg.Registry.URL,
			Token:   cfg.Registry.Token,
			Timeout: cfg.Registry.Timeout,
		})
		if err != nil {
			log.WithError(err).Warn("customer registry disabled")
		} else {
			lookup = client
			log.Info("customer registry ready")
		}
	}

	m := metrics.New()
	svc := service.New(repo, service.Options{
		DefaultStoreID:      cfg.StoreID,
		DefaultIntervalDays: cfg.DefaultIntervalDays,
		CurrencySymbol:      cfg.CurrencySymbol,
		SummaryCacheTTL:     cfg.SummaryCacheTTL,
		Summaries:           summaries,
		Archive:             reports,
		Registry:            lookup,
		Logger:              log,
		Metrics:             m,
	})
	auth := httpapi.NewAuthManager(httpapi.AuthConfig{
		Secret:         cfg.AuthSecret,
		TokenTTL:       time.Duration(cfg.AccessTokenTTLMinutes) * time.Minute,
		ManagerPIN:     cfg.ManagerPIN,
		DefaultStoreID: cfg.StoreID,
	}, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log, m)

	var scheduler *reminder.Scheduler
	if cfg.ReminderCron != "" {
		scheduler = reminder.NewScheduler(svc, newNotifier(cfg, log), log)
		if err := scheduler.Start(cfg.ReminderCron); err != nil {
			log.Fatalf("invalid REMINDER_CRON %q: %v", cfg.ReminderCron, err)
		}
		log.WithField("schedule", cfg.ReminderCron).Info("overdue reminders scheduled")
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Address()).Info("credit ledger listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.WithError(err).Error("close error")
		}
	}

	log.Info("server stopped")
}

func configureLogging(cfg config.Config) {
	if cfg.LogFormat == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.WithField("log_level", cfg.LogLevel).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// newNotifier sends reminders by e-mail when SMTP is configured and only
// logs them otherwise.
func newNotifier(cfg config.Config, log logrus.FieldLogger) reminder.Notifier {
	if cfg.SMTP.Host == "" {
		return reminder.LogNotifier{Log: log, Symbol: cfg.CurrencySymbol}
	}
	return reminder.NewEmailNotifier(reminder.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     strconv.Itoa(cfg.SMTP.Port),
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		Sender:   cfg.SMTP.Sender,
	}, cfg.CurrencySymbol, log)
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	for _, r := range cfg.ManagerPIN {
		if r < '0' || r > '9' {
			return fmt.Errorf("MANAGER_PIN must contain digits only")
		}
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects repeated-digit, sequential and commonly
// guessed PINs.
func validatePINStrength(pin string) error {
	switch pin {
	case "121212", "112233", "123123", "159753", "147258":
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
		}
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}
	return nil
}
