// Package main runs the payment and admin HTTP server: the Stripe webhook,
// checkout landing pages, and the JWT-protected reporting API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/streamvault/recordbot/config"
	"github.com/streamvault/recordbot/internal/admin"
	"github.com/streamvault/recordbot/internal/auth"
	"github.com/streamvault/recordbot/internal/billing"
	"github.com/streamvault/recordbot/internal/codes"
	"github.com/streamvault/recordbot/internal/email"
	"github.com/streamvault/recordbot/internal/inquiries"
	"github.com/streamvault/recordbot/internal/middleware"
	"github.com/streamvault/recordbot/internal/recordings"
	"github.com/streamvault/recordbot/internal/subscribers"
	"github.com/streamvault/recordbot/internal/telegram"
	"github.com/streamvault/recordbot/pkg/database"
	"github.com/streamvault/recordbot/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	subscriberRepo := subscribers.NewRepository(pool)
	recordingRepo := recordings.NewRepository(pool)
	codeRepo := codes.NewRepository(pool)
	inquiryRepo := inquiries.NewRepository(pool)

	mailer := email.NewSender(cfg.Email.APIKey, cfg.Email.FromAddress, cfg.Email.FromName, logger)

	// Telegram delivery of activation codes; optional when no token is set.
	var notifier billing.Notify
	if cfg.Telegram.BotToken != "" {
		api, err := telegram.NewBotAPI(cfg.Telegram.BotToken, cfg.Telegram.APIEndpoint)
		if err != nil {
			logger.Warn("telegram delivery disabled", zap.Error(err))
		} else {
			notifier = telegram.NewNotifier(api, logger)
		}
	}

	webhookHandler := billing.NewWebhookHandler(
		cfg.Stripe.WebhookSecret, subscriberRepo, codeRepo, mailer, notifier, logger)

	jwtService := auth.NewJWTService(cfg.Admin.JWTSecret, cfg.Admin.ExpireHours)
	adminHandler := admin.NewHandler(
		cfg.Admin.Password, jwtService, subscriberRepo, recordingRepo, inquiryRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", webhookHandler.Health)
	router.POST("/webhook/stripe", webhookHandler.HandleStripe)
	router.GET("/success", webhookHandler.Success)
	router.GET("/cancel", webhookHandler.Cancel)

	router.POST("/admin/login", adminHandler.Login)
	adminAPI := router.Group("/admin")
	adminAPI.Use(middleware.JWT(jwtService), middleware.RequireRole(auth.RoleAdmin))
	{
		adminAPI.GET("/subscribers", adminHandler.ListSubscribers)
		adminAPI.GET("/recordings", adminHandler.ListRecordings)
		adminAPI.GET("/inquiries", adminHandler.ListInquiries)
		adminAPI.POST("/credits", adminHandler.GrantCredit)
	}

	router.NoRoute(func(c *gin.Context) { response.NotFound(c, "not found") })

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
