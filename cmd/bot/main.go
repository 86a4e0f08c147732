// Package main runs the Telegram bot and the recording scheduler: the chat
// front-end, the poll loop that probes watched models, and the capture
// pipeline that records and delivers live streams.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/streamvault/recordbot/config"
	"github.com/streamvault/recordbot/internal/billing"
	"github.com/streamvault/recordbot/internal/codes"
	"github.com/streamvault/recordbot/internal/inquiries"
	"github.com/streamvault/recordbot/internal/recorder"
	"github.com/streamvault/recordbot/internal/recordings"
	"github.com/streamvault/recordbot/internal/subscribers"
	"github.com/streamvault/recordbot/internal/telegram"
	"github.com/streamvault/recordbot/internal/watchlist"
	"github.com/streamvault/recordbot/pkg/database"
	"github.com/streamvault/recordbot/pkg/redis"
	"github.com/streamvault/recordbot/pkg/storage"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Archive sink for segments whose Telegram upload failed; optional.
	var archiver recorder.Archiver
	if cfg.AWS.Region != "" && cfg.AWS.ArchiveBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ArchiveBucket:        cfg.AWS.ArchiveBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("segment archive disabled", zap.Error(err))
		} else {
			archiver = s3Client
		}
	}

	api, err := telegram.NewBotAPI(cfg.Telegram.BotToken, cfg.Telegram.APIEndpoint)
	if err != nil {
		logger.Fatal("telegram", zap.Error(err))
	}
	notifier := telegram.NewNotifier(api, logger)

	subscriberRepo := subscribers.NewRepository(pool)
	watchlistRepo := watchlist.NewRepository(pool)
	recordingRepo := recordings.NewRepository(pool)
	codeRepo := codes.NewRepository(pool)
	inquiryRepo := inquiries.NewRepository(pool)

	store := &recorder.RepoStore{
		Subscribers: subscriberRepo,
		Watchlist:   watchlistRepo,
		Recordings:  recordingRepo,
	}

	resolver := recorder.NewCommandResolver(
		cfg.Recorder.ResolverCmd, cfg.Recorder.SiteBaseURL, cfg.Recorder.ResolveTimeout, logger)
	prober := recorder.NewSiteProber(recorder.SiteProberConfig{
		BaseURL:        cfg.Recorder.SiteBaseURL,
		Profiles:       cfg.Recorder.ProbeProfiles,
		AttemptTimeout: cfg.Recorder.ProbeTimeout,
		ProfileDelay:   cfg.Recorder.ProbeDelay,
	}, logger)
	probeCache := recorder.NewRedisProbeCache(rdb, cfg.Recorder.ProbeCacheTTL)

	service := recorder.NewService(recorder.Config{
		OutputDir:         cfg.Recorder.OutputDir,
		SegmentMaxBytes:   cfg.Recorder.SegmentMaxBytes,
		SizeCheckInterval: cfg.Recorder.SizeCheckInterval,
		CreditInterval:    cfg.Recorder.CreditInterval,
		StopTimeout:       cfg.Recorder.StopTimeout,
		UploadTimeout:     cfg.Telegram.UploadTimeout,
	}, recorder.NewRegistry(), store, notifier, archiver, resolver,
		recorder.FFmpegStarter(cfg.Recorder.FFmpegCmd), logger)

	scheduler := recorder.NewScheduler(service, store, prober, probeCache, notifier,
		cfg.Recorder.PollInterval, cfg.Recorder.RateLimitDelay, cfg.Recorder.ProbeTimeout, logger)

	checkout := billing.NewCheckout(
		cfg.Stripe.SecretKey, cfg.Server.PublicURL, cfg.Stripe.PriceIDs(), logger)

	bot := telegram.NewBot(api, telegram.BotDeps{
		Subscribers: subscriberRepo,
		Watchlist:   watchlistRepo,
		Recordings:  recordingRepo,
		Codes:       codeRepo,
		Inquiries:   inquiryRepo,
		Service:     service,
		Checkout:    checkout,
	}, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go scheduler.Run(runCtx)
	go bot.Run(runCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down, stopping active recordings")
	cancel()
	for _, rec := range service.Registry().Snapshot() {
		service.Stop(rec, "shutdown")
	}
	for _, rec := range service.Registry().Snapshot() {
		<-rec.WatcherDone()
	}
	logger.Info("bot stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
