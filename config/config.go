package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"telehealth/internal/billing"
	"telehealth/internal/domain"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Billing    BillingConfig
	Scheduler  SchedulerConfig
	Withdrawal WithdrawalConfig
	Webhook    WebhookConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional; an empty Addr runs the scheduler with in-process locks only.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
	Issuer       string
}

type BillingConfig struct {
	Rates billing.RateTable
	// MinUnitsToStart is the counter value a patient needs to start or schedule a session.
	// With the default of 1, a negative (overrun) balance blocks new sessions.
	MinUnitsToStart       int
	DoctorResponseWindow  time.Duration
	InactivityWindow      time.Duration
	ScheduledGraceWindow  time.Duration
	AppointmentMissWindow time.Duration
	SubscriptionPeriod    time.Duration
}

type SchedulerConfig struct {
	Enabled                bool
	ExpireWaitingSpec      string
	ExpireInactiveSpec     string
	ActivateScheduledSpec  string
	AutoDeductionSpec      string
	AppointmentSpec        string
	MessageCleanupSpec     string
	SubscriptionExpirySpec string
	LockTTL                time.Duration
	MessageRetention       time.Duration
	BatchSize              int
}

type WithdrawalConfig struct {
	MinAmount int64
	MaxAmount int64
}

type WebhookConfig struct {
	FundingSecret string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found, using process environment")
	}
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8099"),
			Env:          getEnv("APP_ENV", "development"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DB_DSN", "telehealth:telehealth@tcp(localhost:3306)/telehealth?charset=utf8mb4&parseTime=True&loc=UTC"),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			AccessSecret: getEnv("JWT_ACCESS_SECRET", "change-me-in-production"),
			AccessExpiry: getEnvDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			Issuer:       getEnv("JWT_ISSUER", "telehealth"),
		},
		Billing: BillingConfig{
			Rates:                 loadRates(),
			MinUnitsToStart:       getEnvInt("BILLING_MIN_UNITS_TO_START", 1),
			DoctorResponseWindow:  getEnvDuration("DOCTOR_RESPONSE_WINDOW", 90*time.Second),
			InactivityWindow:      getEnvDuration("SESSION_INACTIVITY_WINDOW", 30*time.Minute),
			ScheduledGraceWindow:  getEnvDuration("SCHEDULED_GRACE_WINDOW", 15*time.Minute),
			AppointmentMissWindow: getEnvDuration("APPOINTMENT_MISS_WINDOW", 30*time.Minute),
			SubscriptionPeriod:    getEnvDuration("SUBSCRIPTION_PERIOD", 30*24*time.Hour),
		},
		Scheduler: SchedulerConfig{
			Enabled:                getEnvBool("SCHEDULER_ENABLED", true),
			ExpireWaitingSpec:      getEnv("CRON_EXPIRE_WAITING", "@every 1m"),
			ExpireInactiveSpec:     getEnv("CRON_EXPIRE_INACTIVE", "@every 1m"),
			ActivateScheduledSpec:  getEnv("CRON_ACTIVATE_SCHEDULED", "@every 1m"),
			AutoDeductionSpec:      getEnv("CRON_AUTO_DEDUCTION", "@every 10m"),
			AppointmentSpec:        getEnv("CRON_APPOINTMENTS", "@every 5m"),
			MessageCleanupSpec:     getEnv("CRON_MESSAGE_CLEANUP", "@hourly"),
			SubscriptionExpirySpec: getEnv("CRON_SUBSCRIPTION_EXPIRY", "@hourly"),
			LockTTL:                getEnvDuration("SCHEDULER_LOCK_TTL", 5*time.Minute),
			MessageRetention:       getEnvDuration("MESSAGE_RETENTION", 30*24*time.Hour),
			BatchSize:              getEnvInt("SCHEDULER_BATCH_SIZE", 200),
		},
		Withdrawal: WithdrawalConfig{
			MinAmount: getEnvInt64("WITHDRAWAL_MIN_AMOUNT", 1000_00),
			MaxAmount: getEnvInt64("WITHDRAWAL_MAX_AMOUNT", 1000000_00),
		},
		Webhook: WebhookConfig{
			FundingSecret: getEnv("FUNDING_WEBHOOK_SECRET", ""),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 100),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// loadRates starts from the default table; each fee can be overridden in minor units,
// e.g. RATE_MWK_TEXT=450000.
func loadRates() billing.RateTable {
	rates := billing.DefaultRates()
	for currency, byMedia := range rates {
		for _, m := range domain.AllMedia {
			key := "RATE_" + currency + "_" + strings.ToUpper(string(m))
			byMedia[m] = getEnvInt64(key, byMedia[m])
		}
	}
	return rates
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.WithField("key", key).Warn("invalid integer in environment, using default")
		return defaultValue
	}
	return n
}

func getEnvInt64(key string, defaultValue int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		logrus.WithField("key", key).Warn("invalid integer in environment, using default")
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logrus.WithField("key", key).Warn("invalid duration in environment, using default")
		return defaultValue
	}
	return d
}

func getEnvList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
