package recorder

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamvault/recordbot/internal/models"
)

// fakeCapture stands in for an ffmpeg child process. Interrupt and Kill
// both make it exit, like the real thing.
type fakeCapture struct {
	done      chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	interrupts int
	kills      int
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{done: make(chan struct{})}
}

func (c *fakeCapture) Done() <-chan struct{} { return c.done }

func (c *fakeCapture) Exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeCapture) exit() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *fakeCapture) Interrupt() error {
	c.mu.Lock()
	c.interrupts++
	c.mu.Unlock()
	c.exit()
	return nil
}

func (c *fakeCapture) Kill() error {
	c.mu.Lock()
	c.kills++
	c.mu.Unlock()
	c.exit()
	return nil
}

func (c *fakeCapture) interruptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interrupts
}

func (c *fakeCapture) killCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kills
}

// stuckCapture ignores interrupts; only a kill brings it down, and the dying
// process takes a moment to flush its output file before exiting.
type stuckCapture struct {
	*fakeCapture
	flush func()
}

func (c *stuckCapture) Interrupt() error {
	c.mu.Lock()
	c.interrupts++
	c.mu.Unlock()
	return nil
}

func (c *stuckCapture) Kill() error {
	c.mu.Lock()
	c.kills++
	c.mu.Unlock()
	go func() {
		time.Sleep(20 * time.Millisecond)
		if c.flush != nil {
			c.flush()
		}
		c.exit()
	}()
	return nil
}

// fakeStarter creates segment files of scripted sizes and hands out fake
// captures. sizes[i] is the size of the i-th started segment; the last
// entry repeats.
type fakeStarter struct {
	mu       sync.Mutex
	sizes    []int64
	err      error
	captures []*fakeCapture
	files    []string
}

func (s *fakeStarter) start(mediaURL, outPath string) (Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	size := int64(1)
	if len(s.sizes) > 0 {
		i := len(s.captures)
		if i >= len(s.sizes) {
			i = len(s.sizes) - 1
		}
		size = s.sizes[i]
	}
	if err := os.WriteFile(outPath, bytes.Repeat([]byte{0}, int(size)), 0o644); err != nil {
		return nil, err
	}
	c := newFakeCapture()
	s.captures = append(s.captures, c)
	s.files = append(s.files, outPath)
	return c, nil
}

func (s *fakeStarter) startCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.captures)
}

func (s *fakeStarter) capture(i int) *fakeCapture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captures[i]
}

type fakeStore struct {
	mu       sync.Mutex
	credit   float64
	deducted float64
	nextID   int64
	startErr error
	ended    map[int64]float64
	funded   []models.FundedModel
}

func newFakeStore(creditSeconds float64) *fakeStore {
	return &fakeStore{credit: creditSeconds, ended: make(map[int64]float64)}
}

func (s *fakeStore) ListFunded(ctx context.Context) ([]models.FundedModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.funded, nil
}

func (s *fakeStore) RemainingCredit(ctx context.Context, subscriberID int64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credit, nil
}

func (s *fakeStore) DeductCredit(ctx context.Context, subscriberID int64, seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deducted += seconds
	s.credit -= seconds
	if s.credit < 0 {
		s.credit = 0
	}
	return nil
}

func (s *fakeStore) StartRecording(ctx context.Context, subscriberID int64, model string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return 0, s.startErr
	}
	s.nextID++
	return s.nextID, nil
}

func (s *fakeStore) EndRecording(ctx context.Context, id int64, durationSeconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended[id] = durationSeconds
	return nil
}

func (s *fakeStore) endedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ended)
}

func (s *fakeStore) totalDeducted() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deducted
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	videos   []string
	videoErr error
}

func (n *fakeNotifier) Notify(ctx context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return nil
}

func (n *fakeNotifier) SendVideo(ctx context.Context, chatID int64, filePath, caption string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.videoErr != nil {
		return n.videoErr
	}
	n.videos = append(n.videos, filePath)
	return nil
}

func (n *fakeNotifier) allMessages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

func (n *fakeNotifier) videoCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.videos)
}

type fakeResolver struct {
	mu    sync.Mutex
	url   string
	err   error
	calls int
}

func (r *fakeResolver) Resolve(ctx context.Context, model string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return r.url, nil
}

type fakeArchiver struct {
	mu    sync.Mutex
	files []string
	link  string
}

func (a *fakeArchiver) ArchiveSegment(ctx context.Context, subscriberID int64, model, filePath string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.files = append(a.files, filePath)
	return a.link, nil
}

type serviceFixture struct {
	svc      *Service
	store    *fakeStore
	notifier *fakeNotifier
	resolver *fakeResolver
	starter  *fakeStarter
	archiver *fakeArchiver
}

func newServiceFixture(t *testing.T, cfg Config, creditSeconds float64) *serviceFixture {
	t.Helper()
	if cfg.OutputDir == "" {
		cfg.OutputDir = t.TempDir()
	}
	if cfg.SizeCheckInterval == 0 {
		cfg.SizeCheckInterval = 10 * time.Millisecond
	}
	if cfg.CreditInterval == 0 {
		cfg.CreditInterval = 25 * time.Millisecond
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = time.Second
	}
	if cfg.FinalizeTimeout == 0 {
		cfg.FinalizeTimeout = time.Second
	}

	f := &serviceFixture{
		store:    newFakeStore(creditSeconds),
		notifier: &fakeNotifier{},
		resolver: &fakeResolver{url: "https://edge.example.com/live/playlist.m3u8"},
		starter:  &fakeStarter{},
		archiver: &fakeArchiver{link: "https://archive.example.com/seg"},
	}
	f.svc = NewService(cfg, NewRegistry(), f.store, f.notifier, f.archiver, f.resolver, f.starter.start, nil)
	return f
}

func waitWatcher(t *testing.T, rec *Recording) {
	t.Helper()
	select {
	case <-rec.WatcherDone():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not finish in time")
	}
}

func TestServiceStartCreatesSegmentAndRegistryEntry(t *testing.T) {
	f := newServiceFixture(t, Config{}, 3600)

	rec, err := f.svc.Start(context.Background(), 42, "alice")
	require.NoError(t, err)
	defer func() {
		f.svc.Stop(rec, "test cleanup")
		waitWatcher(t, rec)
	}()

	assert.True(t, f.svc.Registry().Has(Key{SubscriberID: 42, Model: "alice"}))
	assert.Equal(t, filepath.Base(rec.CurrentFile()), "part_000.mp4")
	assert.FileExists(t, rec.CurrentFile())
	assert.Equal(t, 1, f.starter.startCount())
}

func TestServiceStartDuplicateKeyRejected(t *testing.T) {
	f := newServiceFixture(t, Config{}, 3600)

	rec, err := f.svc.Start(context.Background(), 42, "alice")
	require.NoError(t, err)
	defer func() {
		f.svc.Stop(rec, "test cleanup")
		waitWatcher(t, rec)
	}()

	_, err = f.svc.Start(context.Background(), 42, "alice")
	assert.ErrorIs(t, err, ErrAlreadyRecording)
	assert.Equal(t, 1, f.starter.startCount())
}

func TestServiceStartResolverFailureLeavesNoTrace(t *testing.T) {
	f := newServiceFixture(t, Config{}, 3600)
	f.resolver.err = ErrNoMediaURL

	_, err := f.svc.Start(context.Background(), 42, "alice")
	require.Error(t, err)
	assert.Equal(t, 0, f.svc.Registry().Len())
	assert.Equal(t, 0, f.starter.startCount())
	assert.Equal(t, 0, f.store.endedCount())
}

func TestServiceStartStoreFailureKillsCapture(t *testing.T) {
	f := newServiceFixture(t, Config{}, 3600)
	f.store.startErr = errors.New("db down")

	_, err := f.svc.Start(context.Background(), 42, "alice")
	require.Error(t, err)
	assert.Equal(t, 0, f.svc.Registry().Len())
	require.Equal(t, 1, f.starter.startCount())
	assert.True(t, f.starter.capture(0).Exited())
}

func TestServiceStopIsIdempotent(t *testing.T) {
	f := newServiceFixture(t, Config{}, 3600)

	rec, err := f.svc.Start(context.Background(), 42, "alice")
	require.NoError(t, err)

	f.svc.Stop(rec, "subscriber request")
	f.svc.Stop(rec, "subscriber request again")
	f.svc.Stop(rec, "third time")
	waitWatcher(t, rec)

	assert.Equal(t, 1, f.starter.capture(0).interruptCount())
	assert.Equal(t, 0, f.svc.Registry().Len())
	assert.Equal(t, 1, f.store.endedCount())
}

func TestServiceCreditExhaustionStopsRecording(t *testing.T) {
	f := newServiceFixture(t, Config{}, 0)

	rec, err := f.svc.Start(context.Background(), 42, "alice")
	require.NoError(t, err)
	waitWatcher(t, rec)

	assert.Equal(t, 0, f.svc.Registry().Len())
	assert.Equal(t, 1, f.store.endedCount())

	var warned bool
	for _, msg := range f.notifier.allMessages() {
		if containsAll(msg, "alice", "no remaining credit") {
			warned = true
		}
	}
	assert.True(t, warned, "subscriber should be told why the recording stopped")
}

func TestServiceCaptureExitEndsRecording(t *testing.T) {
	f := newServiceFixture(t, Config{}, 3600)

	rec, err := f.svc.Start(context.Background(), 42, "alice")
	require.NoError(t, err)

	// Stream ends on its own: the child exits without being asked.
	f.starter.capture(0).exit()
	waitWatcher(t, rec)

	assert.Equal(t, 0, f.svc.Registry().Len())
	assert.Equal(t, 1, f.store.endedCount())
	// The partial segment still reaches the subscriber.
	assert.Equal(t, 1, f.notifier.videoCount())
}

func TestServiceRotationSplitsSegmentsWithoutLoss(t *testing.T) {
	f := newServiceFixture(t, Config{SegmentMaxBytes: 50}, 3600)
	// First segment is over the threshold, its replacement stays under.
	f.starter.sizes = []int64{100, 10}

	rec, err := f.svc.Start(context.Background(), 42, "alice")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.SegmentIndex() == 1 },
		2*time.Second, 5*time.Millisecond, "rotation should replace the oversized segment")
	assert.Equal(t, 2, f.starter.startCount())
	assert.Equal(t, 2, f.resolver.calls, "rotation re-resolves the stream URL")

	f.svc.Stop(rec, "test cleanup")
	waitWatcher(t, rec)

	// Both the rotated-away segment and the final partial one are delivered.
	assert.Equal(t, 2, f.notifier.videoCount())
	assert.NoFileExists(t, f.starter.files[0])
	assert.NoFileExists(t, f.starter.files[1])
	assert.Equal(t, 1, f.store.endedCount())
}

func TestServiceRotationStopsWhenResolverDies(t *testing.T) {
	f := newServiceFixture(t, Config{SegmentMaxBytes: 50, SizeCheckInterval: 30 * time.Millisecond}, 3600)
	f.starter.sizes = []int64{100}

	rec, err := f.svc.Start(context.Background(), 42, "alice")
	require.NoError(t, err)
	f.resolver.mu.Lock()
	f.resolver.err = ErrNoMediaURL
	f.resolver.mu.Unlock()

	waitWatcher(t, rec)

	// The oversized segment is still delivered on shutdown.
	assert.Equal(t, 1, f.notifier.videoCount())
	assert.Equal(t, 0, f.svc.Registry().Len())
}

func TestServiceUploadFailureKeepsFileAndArchives(t *testing.T) {
	f := newServiceFixture(t, Config{}, 3600)
	f.notifier.videoErr = errors.New("file too big")

	rec, err := f.svc.Start(context.Background(), 42, "alice")
	require.NoError(t, err)
	f.svc.Stop(rec, "test cleanup")
	waitWatcher(t, rec)

	// Failed upload: local file survives and lands in the archive.
	assert.FileExists(t, f.starter.files[0])
	require.Len(t, f.archiver.files, 1)
	assert.Equal(t, f.starter.files[0], f.archiver.files[0])

	var linked bool
	for _, msg := range f.notifier.allMessages() {
		if containsAll(msg, "Upload failed", f.archiver.link) {
			linked = true
		}
	}
	assert.True(t, linked, "subscriber should receive the fallback download link")
}

func TestServiceFinalizeWaitsForKilledCapture(t *testing.T) {
	f := newServiceFixture(t, Config{FinalizeTimeout: 15 * time.Millisecond}, 3600)

	dir := t.TempDir()
	path := filepath.Join(dir, "part_000.mp4")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	// The rotated-away process hangs on interrupt and only writes its data
	// out while dying from the kill.
	old := &stuckCapture{fakeCapture: newFakeCapture()}
	old.flush = func() {
		_ = os.WriteFile(path, bytes.Repeat([]byte{0}, 64), 0o644)
	}

	rec := newRecording(42, "alice", dir, 1, newFakeCapture(), path)
	f.svc.finalizeAndUpload(rec, old, path, 1)

	assert.Equal(t, 1, old.killCount())
	assert.Equal(t, 1, f.notifier.videoCount(), "flushed segment must still be delivered")
	assert.NoFileExists(t, path)
}

func TestServiceMeteringNeverDoubleCharges(t *testing.T) {
	f := newServiceFixture(t, Config{
		SizeCheckInterval: 5 * time.Millisecond,
		CreditInterval:    15 * time.Millisecond,
	}, 3600)

	rec, err := f.svc.Start(context.Background(), 42, "alice")
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)
	f.svc.Stop(rec, "test cleanup")
	waitWatcher(t, rec)

	elapsed := time.Since(rec.StartTime).Seconds()
	deducted := f.store.totalDeducted()
	assert.Greater(t, deducted, 0.0, "periodic metering should have charged something")
	assert.LessOrEqual(t, deducted, elapsed+0.05,
		"total charge must not exceed wall-clock recording time")
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
