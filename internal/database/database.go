package database

import (
	"context"
	"time"

	"telehealth/config"
	"telehealth/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: logger.New(logrus.StandardLogger(), logger.Config{
			SlowThreshold: 500 * time.Millisecond,
			LogLevel:      logger.Error,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// AutoMigrate runs Gorm auto-migration for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Subscription{},
		&models.SubscriptionPayment{},
		&models.Session{},
		&models.SessionMessage{},
		&models.Appointment{},
		&models.Wallet{},
		&models.WalletTransaction{},
		&models.WithdrawalRequest{},
	)
}

// NewRedis connects to Redis when configured. A nil client means the scheduler
// falls back to process-local locks.
func NewRedis(cfg *config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		logrus.Info("redis not configured, scheduler locks are process-local")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).Warn("redis connection failed, continuing with process-local scheduler locks")
		_ = client.Close()
		return nil
	}
	logrus.WithField("addr", cfg.Addr).Info("redis connected")
	return client
}
