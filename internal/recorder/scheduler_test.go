package recorder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamvault/recordbot/internal/models"
)

type fakeProber struct {
	mu     sync.Mutex
	status map[string]Status
	probes map[string]int
}

func newFakeProber() *fakeProber {
	return &fakeProber{status: make(map[string]Status), probes: make(map[string]int)}
}

func (p *fakeProber) set(model string, status Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status[model] = status
}

func (p *fakeProber) Probe(ctx context.Context, model string) Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes[model]++
	return p.status[model]
}

func (p *fakeProber) probeCount(model string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probes[model]
}

type memProbeCache struct {
	mu      sync.Mutex
	entries map[string]Status
}

func newMemProbeCache() *memProbeCache {
	return &memProbeCache{entries: make(map[string]Status)}
}

func (c *memProbeCache) Get(ctx context.Context, model string) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[model]
	return s, ok
}

func (c *memProbeCache) Set(ctx context.Context, model string, status Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[model] = status
	return nil
}

type schedulerFixture struct {
	*serviceFixture
	sched  *Scheduler
	prober *fakeProber
	cache  *memProbeCache
}

func newSchedulerFixture(t *testing.T, funded ...models.FundedModel) *schedulerFixture {
	t.Helper()
	sf := newServiceFixture(t, Config{}, 3600)
	sf.store.funded = funded
	prober := newFakeProber()
	cache := newMemProbeCache()
	sched := NewScheduler(sf.svc, sf.store, prober, cache, sf.notifier,
		time.Minute, time.Millisecond, time.Second, nil)
	return &schedulerFixture{serviceFixture: sf, sched: sched, prober: prober, cache: cache}
}

func (f *schedulerFixture) stopAll(t *testing.T) {
	t.Helper()
	for _, rec := range f.svc.Registry().Snapshot() {
		f.svc.Stop(rec, "test cleanup")
		waitWatcher(t, rec)
	}
}

func TestSchedulerStartsRecordingForLiveModel(t *testing.T) {
	f := newSchedulerFixture(t,
		models.FundedModel{SubscriberID: 1, ModelName: "alice", CreditSeconds: 3600},
		models.FundedModel{SubscriberID: 1, ModelName: "bianca", CreditSeconds: 3600},
	)
	f.prober.set("alice", StatusOnline)
	f.prober.set("bianca", StatusOffline)

	f.sched.runCycle(context.Background())
	defer f.stopAll(t)

	assert.True(t, f.svc.Registry().Has(Key{SubscriberID: 1, Model: "alice"}))
	assert.False(t, f.svc.Registry().Has(Key{SubscriberID: 1, Model: "bianca"}))

	var announced bool
	for _, msg := range f.notifier.allMessages() {
		if containsAll(msg, "alice", "live") {
			announced = true
		}
	}
	assert.True(t, announced)
}

func TestSchedulerSkipsActiveRecordings(t *testing.T) {
	f := newSchedulerFixture(t,
		models.FundedModel{SubscriberID: 1, ModelName: "alice", CreditSeconds: 3600},
	)
	f.prober.set("alice", StatusOnline)

	f.sched.runCycle(context.Background())
	defer f.stopAll(t)
	require.Equal(t, 1, f.svc.Registry().Len())
	require.Equal(t, 1, f.prober.probeCount("alice"))

	// Second cycle: still recording, so no probe and no second start.
	f.sched.runCycle(context.Background())
	assert.Equal(t, 1, f.svc.Registry().Len())
	assert.Equal(t, 1, f.prober.probeCount("alice"))
	assert.Equal(t, 1, f.starter.startCount())
}

func TestSchedulerCachesNonOnlineVerdicts(t *testing.T) {
	f := newSchedulerFixture(t,
		models.FundedModel{SubscriberID: 1, ModelName: "alice", CreditSeconds: 3600},
	)
	f.prober.set("alice", StatusOffline)

	f.sched.runCycle(context.Background())
	f.sched.runCycle(context.Background())

	// The second cycle is served from cache.
	assert.Equal(t, 1, f.prober.probeCount("alice"))

	cached, ok := f.cache.Get(context.Background(), "alice")
	require.True(t, ok)
	assert.Equal(t, StatusOffline, cached)
}

func TestSchedulerDoesNotCacheOnline(t *testing.T) {
	f := newSchedulerFixture(t,
		models.FundedModel{SubscriberID: 1, ModelName: "alice", CreditSeconds: 3600},
	)
	f.prober.set("alice", StatusOnline)

	f.sched.runCycle(context.Background())
	defer f.stopAll(t)

	_, ok := f.cache.Get(context.Background(), "alice")
	assert.False(t, ok, "online verdicts must always be re-confirmed live")
}

func TestSchedulerSameModelTwoSubscribers(t *testing.T) {
	f := newSchedulerFixture(t,
		models.FundedModel{SubscriberID: 1, ModelName: "alice", CreditSeconds: 3600},
		models.FundedModel{SubscriberID: 2, ModelName: "alice", CreditSeconds: 3600},
	)
	f.prober.set("alice", StatusOnline)

	f.sched.runCycle(context.Background())
	defer f.stopAll(t)

	// Each subscriber gets an independent recording of the same stream.
	assert.True(t, f.svc.Registry().Has(Key{SubscriberID: 1, Model: "alice"}))
	assert.True(t, f.svc.Registry().Has(Key{SubscriberID: 2, Model: "alice"}))
	assert.Equal(t, 2, f.starter.startCount())
}

func TestSchedulerReapsOrphanedEntries(t *testing.T) {
	f := newSchedulerFixture(t)

	// Simulate an entry whose capture died and whose watcher already
	// finished but never removed itself.
	rec := newRecording(1, "alice", t.TempDir(), 1, newFakeCapture(), "part_000.mp4")
	rec.Capture().(*fakeCapture).exit()
	close(rec.watcherDone)
	require.True(t, f.svc.Registry().Insert(rec))

	f.sched.runCycle(context.Background())
	assert.Equal(t, 0, f.svc.Registry().Len())
}

func TestSchedulerStartFailureDoesNotAbortCycle(t *testing.T) {
	f := newSchedulerFixture(t,
		models.FundedModel{SubscriberID: 1, ModelName: "alice", CreditSeconds: 3600},
		models.FundedModel{SubscriberID: 1, ModelName: "bianca", CreditSeconds: 3600},
	)
	f.prober.set("alice", StatusOnline)
	f.prober.set("bianca", StatusOnline)
	f.resolver.err = ErrNoMediaURL

	f.sched.runCycle(context.Background())
	assert.Equal(t, 0, f.svc.Registry().Len())
	// Both models were attempted despite the first failure.
	assert.Equal(t, 1, f.prober.probeCount("alice"))
	assert.Equal(t, 1, f.prober.probeCount("bianca"))
}
