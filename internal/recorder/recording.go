package recorder

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Key is the natural identity of a recording: at most one recording may be
// active per key at any time.
type Key struct {
	SubscriberID int64
	Model        string
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%s", k.SubscriberID, k.Model)
}

// Recording tracks one active capture-and-upload session. It is created by
// the supervisor, driven by its watcher goroutine, and removed from the
// registry only after the watcher has fully drained it.
type Recording struct {
	SubscriberID int64
	Model        string
	OutDir       string
	EntryID      int64 // persisted recording-started row
	StartTime    time.Time

	stopping    atomic.Bool
	watcherDone chan struct{}
	uploads     sync.WaitGroup

	mu           sync.Mutex
	capture      Capture
	currentFile  string
	segmentIndex int
	lastDeduct   time.Time
}

func newRecording(subscriberID int64, model, outDir string, entryID int64, capture Capture, currentFile string) *Recording {
	now := time.Now()
	return &Recording{
		SubscriberID: subscriberID,
		Model:        model,
		OutDir:       outDir,
		EntryID:      entryID,
		StartTime:    now,
		watcherDone:  make(chan struct{}),
		capture:      capture,
		currentFile:  currentFile,
		lastDeduct:   now,
	}
}

// Key returns the registry key for this recording.
func (r *Recording) Key() Key {
	return Key{SubscriberID: r.SubscriberID, Model: r.Model}
}

// Stopping reports whether the shutdown sequence has been triggered.
func (r *Recording) Stopping() bool { return r.stopping.Load() }

// markStopping sets the stopping flag. Returns false if it was already set;
// the flag is never cleared.
func (r *Recording) markStopping() bool {
	return r.stopping.CompareAndSwap(false, true)
}

// WatcherDone is closed once the watcher has finalized the recording.
func (r *Recording) WatcherDone() <-chan struct{} { return r.watcherDone }

// Capture returns the currently active child process handle.
func (r *Recording) Capture() Capture {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capture
}

// CaptureExited reports whether the current child process has exited.
func (r *Recording) CaptureExited() bool {
	r.mu.Lock()
	c := r.capture
	r.mu.Unlock()
	return c == nil || c.Exited()
}

// CurrentFile returns the segment file being written right now.
func (r *Recording) CurrentFile() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentFile
}

// SegmentIndex returns the zero-based index of the current segment.
func (r *Recording) SegmentIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.segmentIndex
}

// swapCapture installs the replacement process and segment path during
// rotation and returns the retired pair. The swap is a single critical
// section, so there is never a moment with two "current" segments.
func (r *Recording) swapCapture(next Capture, nextFile string) (old Capture, oldFile string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, oldFile = r.capture, r.currentFile
	r.capture = next
	r.currentFile = nextFile
	r.segmentIndex++
	return old, oldFile
}

// takeDeduction returns the seconds elapsed since the last metering anchor
// and advances the anchor. The anchor moves exactly once per deduction, so
// time is never double-counted.
func (r *Recording) takeDeduction(now time.Time) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	elapsed := now.Sub(r.lastDeduct).Seconds()
	if elapsed < 0 {
		return 0
	}
	r.lastDeduct = now
	return elapsed
}

// sinceDeduction returns the seconds elapsed since the last metering anchor
// without advancing it.
func (r *Recording) sinceDeduction(now time.Time) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return now.Sub(r.lastDeduct).Seconds()
}

// Elapsed returns wall-clock time since the recording started.
func (r *Recording) Elapsed() time.Duration {
	return time.Since(r.StartTime)
}

// DurationString formats the elapsed time as "1h 2m 3s" or "2m 3s".
func (r *Recording) DurationString() string {
	total := int(r.Elapsed().Seconds())
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}
