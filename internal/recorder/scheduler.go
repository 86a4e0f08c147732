package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"github.com/streamvault/recordbot/internal/models"
)

// ProbeCache remembers recent probe outcomes so the poll loop does not
// hammer the site for models that were just seen offline.
type ProbeCache interface {
	Get(ctx context.Context, model string) (Status, bool)
	Set(ctx context.Context, model string, status Status) error
}

// Scheduler drives the poll loop: each cycle it reaps dead recordings,
// loads the funded watchlist, probes models not already being recorded,
// and starts a capture for each one found live.
type Scheduler struct {
	service      *Service
	watchlist    WatchlistSource
	prober       Prober
	cache        ProbeCache // optional
	notifier     Notifier
	pollInterval time.Duration
	probeTimeout time.Duration
	limiter      ratelimit.Limiter
	log          *zap.Logger
}

// WatchlistSource yields the subscriber/model pairs eligible for recording.
type WatchlistSource interface {
	ListFunded(ctx context.Context) ([]models.FundedModel, error)
}

// NewScheduler builds the poll loop. rateDelay spaces consecutive probes;
// cache may be nil.
func NewScheduler(service *Service, watchlist WatchlistSource, prober Prober, cache ProbeCache, notifier Notifier, pollInterval, rateDelay, probeTimeout time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	if rateDelay <= 0 {
		rateDelay = 5 * time.Second
	}
	if probeTimeout <= 0 {
		probeTimeout = 25 * time.Second
	}
	return &Scheduler{
		service:      service,
		watchlist:    watchlist,
		prober:       prober,
		cache:        cache,
		notifier:     notifier,
		pollInterval: pollInterval,
		probeTimeout: probeTimeout,
		limiter:      ratelimit.New(1, ratelimit.Per(rateDelay)),
		log:          log,
	}
}

// Run executes poll cycles until ctx is cancelled.
func (sc *Scheduler) Run(ctx context.Context) {
	sc.log.Info("scheduler started", zap.Duration("poll_interval", sc.pollInterval))
	for {
		sc.runCycle(ctx)
		select {
		case <-ctx.Done():
			sc.log.Info("scheduler stopped")
			return
		case <-time.After(sc.pollInterval):
		}
	}
}

func (sc *Scheduler) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			sc.log.Error("poll cycle panicked", zap.Any("panic", r))
		}
	}()

	sc.reap()

	entries, err := sc.watchlist.ListFunded(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			sc.log.Error("load watchlist", zap.Error(err))
		}
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		key := Key{SubscriberID: entry.SubscriberID, Model: entry.ModelName}
		if sc.service.Registry().Has(key) {
			continue
		}

		status := sc.probe(ctx, entry.ModelName)
		if status != StatusOnline {
			continue
		}

		if _, err := sc.service.Start(ctx, entry.SubscriberID, entry.ModelName); err != nil {
			if errors.Is(err, ErrAlreadyRecording) {
				continue
			}
			sc.log.Warn("start recording failed",
				zap.Int64("subscriber", entry.SubscriberID),
				zap.String("model", entry.ModelName),
				zap.Error(err))
			continue
		}
		sc.notify(entry.SubscriberID, fmt.Sprintf("🔴 %s is live — recording started.", entry.ModelName))
	}
}

// probe checks one model, consulting the cache first and paying the rate
// limiter only for real network probes. Only non-online outcomes are
// cached: an online model must be re-confirmed at start time anyway, and a
// stale "online" would just waste a resolver call.
func (sc *Scheduler) probe(ctx context.Context, model string) Status {
	if sc.cache != nil {
		if status, ok := sc.cache.Get(ctx, model); ok {
			return status
		}
	}

	sc.limiter.Take()

	pctx, cancel := context.WithTimeout(ctx, sc.probeTimeout)
	status := sc.prober.Probe(pctx, model)
	cancel()

	if sc.cache != nil && status != StatusOnline {
		if err := sc.cache.Set(ctx, model, status); err != nil {
			sc.log.Debug("probe cache write failed", zap.String("model", model), zap.Error(err))
		}
	}
	return status
}

// reap removes registry entries whose capture died and whose watcher has
// already finished tearing down, so the next cycle can restart them if the
// model is still live. Normal teardown removes its own entry; this only
// catches entries orphaned by a watcher crash.
func (sc *Scheduler) reap() {
	for _, rec := range sc.service.Registry().Snapshot() {
		if !rec.CaptureExited() {
			continue
		}
		select {
		case <-rec.WatcherDone():
			sc.service.Registry().Remove(rec.Key())
			sc.log.Warn("reaped orphaned recording",
				zap.Int64("subscriber", rec.SubscriberID),
				zap.String("model", rec.Model))
		default:
		}
	}
}

func (sc *Scheduler) notify(subscriberID int64, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sc.notifier.Notify(ctx, subscriberID, text); err != nil {
		sc.log.Warn("notify failed", zap.Int64("subscriber", subscriberID), zap.Error(err))
	}
}
