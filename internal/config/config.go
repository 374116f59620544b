package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	AutoMigrate           bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	StoreID               string
	SummaryCacheTTL       time.Duration
	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string
	LogLevel              string
	LogFormat             string
	DefaultIntervalDays   int
	CurrencySymbol        string
	ReminderCron          string
	SMTP                  SMTPConfig
	S3                    S3Config
	Registry              RegistryConfig
}

type RegistryConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
	Prefix    string
}

func Load() Config {
	return Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		AutoMigrate:           getBool("AUTO_MIGRATE", false),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getInt("REDIS_DB", 0, 0),
		StoreID:               getEnv("DEFAULT_STORE_ID", "main-store"),
		SummaryCacheTTL:       time.Duration(getInt("SUMMARY_CACHE_TTL_SECONDS", 60, 1)) * time.Second,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: getInt("ACCESS_TOKEN_TTL_MINUTES", 480, 1),
		ManagerPIN:            strings.TrimSpace(os.Getenv("MANAGER_PIN")),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:             strings.ToLower(getEnv("LOG_FORMAT", "json")),
		DefaultIntervalDays:   getInt("DEFAULT_INTERVAL_DAYS", 30, 1),
		CurrencySymbol:        getEnv("CURRENCY_SYMBOL", "S/"),
		ReminderCron:          strings.TrimSpace(os.Getenv("REMINDER_CRON")),
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(os.Getenv("SMTP_HOST")),
			Port:     getInt("SMTP_PORT", 587, 1),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			Sender:   getEnv("SMTP_SENDER", "KasirKredit <no-reply@kasirkredit.local>"),
		},
		S3: S3Config{
			Endpoint:  strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Bucket:    getEnv("S3_BUCKET", "kasirkredit-reports"),
			UseSSL:    getBool("S3_USE_SSL", false),
			Region:    os.Getenv("S3_REGION"),
			Prefix:    getEnv("S3_PREFIX", "reports/"),
		},
		Registry: RegistryConfig{
			URL:     strings.TrimSpace(os.Getenv("REGISTRY_URL")),
			Token:   strings.TrimSpace(os.Getenv("REGISTRY_TOKEN")),
			Timeout: time.Duration(getInt("REGISTRY_TIMEOUT_SECONDS", 10, 1)) * time.Second,
		},
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// getInt falls back when the value is missing, malformed or below min.
func getInt(key string, fallback int, min int) int {
	val, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || val < min {
		return fallback
	}
	return val
}

func getBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return val
}
