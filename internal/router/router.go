package router

import (
	"time"

	"telehealth/config"
	"telehealth/internal/clock"
	"telehealth/internal/domain"
	"telehealth/internal/handler"
	"telehealth/internal/middleware"
	"telehealth/internal/scheduler"
	"telehealth/internal/service"
	"telehealth/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Setup wires services, handlers and routes. The returned scheduler is not started.
// rdb may be nil.
func Setup(cfg *config.Config, db *gorm.DB, rdb *redis.Client, clk clock.Clock) (*gin.Engine, *scheduler.Scheduler) {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler.RegisterValidators()

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(), cors.New(corsConfig(cfg.Server.CORSOrigins)))

	hub := ws.NewHub()
	notifier := service.NewNotificationService(hub)

	// Services
	quota := service.NewQuotaLedger(db, clk)
	ledger := service.NewWalletLedger()
	payments := service.NewPaymentService(db, clk, cfg.Billing.Rates, quota, ledger, notifier)
	sessions := service.NewSessionService(db, clk, cfg.Billing, payments, notifier)
	appointments := service.NewAppointmentService(db, clk, cfg.Billing, notifier)
	funding := service.NewFundingService(db, clk, cfg.Billing, quota)
	withdrawals := service.NewWithdrawalService(db, clk, cfg.Withdrawal, ledger)
	wallets := service.NewWalletService(db, clk, cfg.Billing.Rates)

	// Handlers
	sessionHandler := handler.NewSessionHandler(sessions)
	appointmentHandler := handler.NewAppointmentHandler(appointments)
	walletHandler := handler.NewWalletHandler(wallets, withdrawals)
	adminHandler := handler.NewAdminHandler(withdrawals)
	fundingHandler := handler.NewFundingWebhookHandler(funding, cfg.Webhook.FundingSecret)
	healthHandler := handler.NewHealthHandler(db, rdb)

	limiter := middleware.NewInMemoryRateLimiter(cfg.RateLimit)
	go limiter.Run(time.Minute, nil)
	authMw := middleware.AuthRequired(&cfg.JWT)
	rateMw := middleware.RateLimit(limiter)
	patientOnly := middleware.RequireRole(domain.RolePatient)
	doctorOnly := middleware.RequireRole(domain.RoleDoctor)

	r.GET("/health", healthHandler.Health)
	r.GET("/ws/sessions", ws.ServeSessionEvents(&cfg.JWT, hub))

	api := r.Group("/api/v1")
	{
		api.POST("/webhooks/subscription-funded", rateMw, fundingHandler.Handle)

		sessionsGroup := api.Group("/sessions")
		sessionsGroup.Use(authMw, rateMw)
		{
			sessionsGroup.POST("", patientOnly, sessionHandler.Start)
			sessionsGroup.POST("/schedule", patientOnly, sessionHandler.Schedule)
			sessionsGroup.GET("", sessionHandler.List)
			sessionsGroup.GET("/:id", sessionHandler.Get)
			sessionsGroup.POST("/:id/accept", doctorOnly, sessionHandler.Accept)
			sessionsGroup.POST("/:id/cancel", patientOnly, sessionHandler.Cancel)
			sessionsGroup.POST("/:id/end", sessionHandler.End)
			sessionsGroup.POST("/:id/activity", sessionHandler.Activity)
		}

		appts := api.Group("/appointments")
		appts.Use(authMw, rateMw)
		{
			appts.GET("", appointmentHandler.List)
			appts.POST("", patientOnly, appointmentHandler.Book)
			appts.POST("/:id/cancel", patientOnly, appointmentHandler.Cancel)
		}

		api.PUT("/doctors/me/availability", authMw, rateMw, doctorOnly, sessionHandler.SetAvailability)

		wallet := api.Group("/wallet")
		wallet.Use(authMw, rateMw, doctorOnly)
		{
			wallet.GET("", walletHandler.GetWallet)
			wallet.GET("/transactions", walletHandler.Transactions)
			wallet.GET("/earnings-summary", walletHandler.EarningsSummary)
			wallet.POST("/withdraw", walletHandler.Withdraw)
			wallet.GET("/withdrawals", walletHandler.Withdrawals)
		}

		admin := api.Group("/admin")
		admin.Use(authMw, rateMw, middleware.AdminRequired())
		{
			admin.GET("/withdrawal-requests", adminHandler.ListWithdrawals)
			admin.GET("/withdrawal-requests/statistics", adminHandler.WithdrawalStatistics)
			admin.POST("/withdrawal-requests/:id/approve", adminHandler.ApproveWithdrawal)
			admin.POST("/withdrawal-requests/:id/reject", adminHandler.RejectWithdrawal)
			admin.POST("/withdrawal-requests/:id/mark-as-paid", adminHandler.MarkWithdrawalPaid)
		}
	}

	sched := scheduler.New(cfg.Scheduler, cfg.Billing, db, clk, rdb, sessions, payments, appointments)
	return r, sched
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Webhook-Signature"},
		ExposeHeaders: []string{"Content-Length", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}
