package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// ErrAlreadyRecording is returned when a start is attempted for a key that
// already has an active recording.
var ErrAlreadyRecording = errors.New("recording already active")

// Config holds the capture pipeline tunables.
type Config struct {
	OutputDir         string
	SegmentMaxBytes   int64         // rotation threshold
	SizeCheckInterval time.Duration // watcher tick
	CreditInterval    time.Duration // metering cadence
	StopTimeout       time.Duration // graceful shutdown bound before hard kill
	FinalizeTimeout   time.Duration // bound on waiting for a rotated-away process
	UploadTimeout     time.Duration // bound on one segment upload
	OpTimeout         time.Duration // bound on individual storage/notify calls
}

func (c Config) withDefaults() Config {
	if c.SegmentMaxBytes <= 0 {
		c.SegmentMaxBytes = 500 * 1024 * 1024
	}
	if c.SizeCheckInterval <= 0 {
		c.SizeCheckInterval = 5 * time.Second
	}
	if c.CreditInterval <= 0 {
		c.CreditInterval = 30 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 15 * time.Second
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = 30 * time.Second
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = 10 * time.Minute
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 30 * time.Second
	}
	return c
}

// Service supervises capture processes: it starts recordings, runs one
// watcher goroutine per recording, rotates and uploads segments, meters
// credit, and tears everything down on stop.
type Service struct {
	cfg          Config
	registry     *Registry
	store        Store
	notifier     Notifier
	archiver     Archiver // optional
	resolver     Resolver
	startCapture StartCaptureFunc
	log          *zap.Logger
}

// NewService creates the capture supervisor. archiver may be nil.
func NewService(cfg Config, registry *Registry, store Store, notifier Notifier, archiver Archiver, resolver Resolver, startCapture StartCaptureFunc, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cfg:          cfg.withDefaults(),
		registry:     registry,
		store:        store,
		notifier:     notifier,
		archiver:     archiver,
		resolver:     resolver,
		startCapture: startCapture,
		log:          log,
	}
}

// Registry returns the shared recording registry.
func (s *Service) Registry() *Registry { return s.registry }

func segmentPath(outDir string, index int) string {
	return filepath.Join(outDir, fmt.Sprintf("part_%03d.mp4", index))
}

// Start resolves a fresh media URL, launches the capture process for
// part_000, registers the Recording, and spawns its watcher. A resolver
// failure is a normal transient outcome: the scheduler retries next cycle.
func (s *Service) Start(ctx context.Context, subscriberID int64, model string) (*Recording, error) {
	key := Key{SubscriberID: subscriberID, Model: model}
	if s.registry.Has(key) {
		return nil, ErrAlreadyRecording
	}

	mediaURL, err := s.resolver.Resolve(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", model, err)
	}

	outDir := filepath.Join(s.cfg.OutputDir, strconv.FormatInt(subscriberID, 10), model)
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	outFile := segmentPath(outDir, 0)

	capture, err := s.startCapture(mediaURL, outFile)
	if err != nil {
		return nil, fmt.Errorf("start capture: %w", err)
	}

	entryID, err := s.store.StartRecording(ctx, subscriberID, model)
	if err != nil {
		_ = capture.Interrupt()
		return nil, fmt.Errorf("persist recording start: %w", err)
	}

	rec := newRecording(subscriberID, model, outDir, entryID, capture, outFile)
	if !s.registry.Insert(rec) {
		// Lost a start race for the same key; retire our process.
		_ = capture.Interrupt()
		_ = s.store.EndRecording(ctx, entryID, 0)
		return nil, ErrAlreadyRecording
	}

	go s.watch(rec)

	s.log.Info("recording started",
		zap.Int64("subscriber", subscriberID),
		zap.String("model", model),
		zap.String("output", outFile))
	return rec, nil
}

// Stop triggers the shutdown sequence for a recording. Idempotent: the
// first call sets the stopping flag and signals the capture process; later
// calls are no-ops. Resource reclamation happens in the watcher.
func (s *Service) Stop(rec *Recording, reason string) {
	if !rec.markStopping() {
		return
	}
	s.log.Info("stopping recording",
		zap.Int64("subscriber", rec.SubscriberID),
		zap.String("model", rec.Model),
		zap.String("reason", reason))
	if c := rec.Capture(); c != nil && !c.Exited() {
		_ = c.Interrupt()
	}
}

// watch is the per-recording lifecycle driver: it meters credit, rotates
// segments past the size threshold, detects process death, and finally
// drains the recording. Runs until the Recording is fully torn down.
func (s *Service) watch(rec *Recording) {
	defer close(rec.watcherDone)

	ticker := time.NewTicker(s.cfg.SizeCheckInterval)
	defer ticker.Stop()

	for range ticker.C {
		if rec.Stopping() {
			break
		}

		remaining, err := s.remainingCredit(rec.SubscriberID)
		if err != nil {
			s.log.Warn("credit check failed", zap.String("model", rec.Model), zap.Error(err))
		} else if remaining <= 0 {
			s.notify(rec.SubscriberID, fmt.Sprintf(
				"⚠️ Recording of %s stopped — you have no remaining credit.\n\nPurchase more credit to continue recording.",
				rec.Model))
			s.Stop(rec, "credit exhausted")
			break
		}

		now := time.Now()
		if rec.sinceDeduction(now) >= s.cfg.CreditInterval.Seconds() {
			s.deduct(rec, rec.takeDeduction(now))
		}

		info, err := os.Stat(rec.CurrentFile())
		if err != nil {
			if rec.CaptureExited() {
				// Never produced output and already dead: unrecoverable.
				break
			}
			continue
		}

		if info.Size() >= s.cfg.SegmentMaxBytes && !rec.CaptureExited() {
			if err := s.rotate(rec); err != nil {
				s.log.Warn("rotation failed, stopping recording",
					zap.String("model", rec.Model), zap.Error(err))
				break
			}
		}

		if rec.CaptureExited() && !rec.Stopping() {
			s.log.Info("capture exited unexpectedly",
				zap.Int64("subscriber", rec.SubscriberID),
				zap.String("model", rec.Model))
			break
		}
	}

	s.drain(rec)
}

// rotate replaces the in-progress capture with a fresh one against a newly
// resolved URL and hands the retired segment to an async finalize-and-upload
// task. This is the only point where two capture processes for the same
// recording coexist, and only until the old one flushes.
func (s *Service) rotate(rec *Recording) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OpTimeout)
	mediaURL, err := s.resolver.Resolve(ctx, rec.Model)
	cancel()
	if err != nil {
		// Continuing to capture into a file past the size limit is worse
		// than ending the recording.
		return fmt.Errorf("resolve for rotation: %w", err)
	}

	nextIndex := rec.SegmentIndex() + 1
	nextFile := segmentPath(rec.OutDir, nextIndex)
	next, err := s.startCapture(mediaURL, nextFile)
	if err != nil {
		return fmt.Errorf("start rotated capture: %w", err)
	}

	old, oldFile := rec.swapCapture(next, nextFile)
	_ = old.Interrupt()

	s.log.Info("segment rotated",
		zap.Int64("subscriber", rec.SubscriberID),
		zap.String("model", rec.Model),
		zap.Int("segment", nextIndex))

	rec.uploads.Add(1)
	go func() {
		defer rec.uploads.Done()
		s.finalizeAndUpload(rec, old, oldFile, nextIndex)
	}()
	return nil
}

// finalizeAndUpload waits (bounded) for a rotated-away process to exit,
// then uploads and deletes its segment file.
func (s *Service) finalizeAndUpload(rec *Recording, old Capture, filePath string, partNum int) {
	select {
	case <-old.Done():
	case <-time.After(s.cfg.FinalizeTimeout):
		_ = old.Kill()
		<-old.Done()
	}

	info, err := os.Stat(filePath)
	if err != nil || info.Size() == 0 {
		return
	}
	s.uploadAndDelete(rec, filePath, partNum)
}

// uploadAndDelete ships a finished segment to the subscriber. On success the
// local file is removed; on failure it stays on disk, the subscriber is
// told, and the segment is archived to the fallback sink when one is
// configured.
func (s *Service) uploadAndDelete(rec *Recording, filePath string, partNum int) {
	info, err := os.Stat(filePath)
	if err != nil {
		s.log.Warn("segment vanished before upload", zap.String("file", filePath), zap.Error(err))
		return
	}
	caption := fmt.Sprintf("🎬 %s — Part %d\n(%d MB)", rec.Model, partNum, info.Size()/1024/1024)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.UploadTimeout)
	err = s.notifier.SendVideo(ctx, rec.SubscriberID, filePath, caption)
	cancel()
	if err == nil {
		if rmErr := os.Remove(filePath); rmErr != nil {
			s.log.Warn("delete uploaded segment", zap.String("file", filePath), zap.Error(rmErr))
		}
		return
	}

	s.log.Error("segment upload failed",
		zap.Int64("subscriber", rec.SubscriberID),
		zap.String("file", filePath),
		zap.Error(err))

	msg := fmt.Sprintf("⚠️ Upload failed for %s: %s", rec.Model, filepath.Base(filePath))
	if s.archiver != nil {
		actx, acancel := context.WithTimeout(context.Background(), s.cfg.UploadTimeout)
		link, aerr := s.archiver.ArchiveSegment(actx, rec.SubscriberID, rec.Model, filePath)
		acancel()
		if aerr != nil {
			s.log.Error("segment archive failed", zap.String("file", filePath), zap.Error(aerr))
		} else {
			msg += "\n\nA temporary download link:\n" + link
		}
	}
	s.notify(rec.SubscriberID, msg)
}

// drain is the orderly shutdown sequence: settle the credit meter, make
// sure the capture process is gone, flush the final partial segment, wait
// out pending uploads, persist the ended record, and only then release the
// registry slot.
func (s *Service) drain(rec *Recording) {
	if owed := rec.takeDeduction(time.Now()); owed > 0 {
		s.deduct(rec, owed)
	}

	if c := rec.Capture(); c != nil && !c.Exited() {
		_ = c.Interrupt()
		select {
		case <-c.Done():
		case <-time.After(s.cfg.StopTimeout):
			s.log.Warn("capture ignored interrupt, killing",
				zap.String("model", rec.Model))
			_ = c.Kill()
			<-c.Done()
		}
	}

	finalFile := rec.CurrentFile()
	if info, err := os.Stat(finalFile); err == nil && info.Size() > 0 {
		s.uploadAndDelete(rec, finalFile, rec.SegmentIndex()+1)
	}

	rec.uploads.Wait()

	total := rec.Elapsed().Seconds()
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OpTimeout)
	if err := s.store.EndRecording(ctx, rec.EntryID, total); err != nil {
		s.log.Error("persist recording end", zap.Int64("entry", rec.EntryID), zap.Error(err))
	}
	cancel()

	s.registry.Remove(rec.Key())

	s.log.Info("recording finalized",
		zap.Int64("subscriber", rec.SubscriberID),
		zap.String("model", rec.Model),
		zap.Float64("duration_sec", total))
	s.notify(rec.SubscriberID, fmt.Sprintf("✅ %s — recording complete.", rec.Model))
}

func (s *Service) remainingCredit(subscriberID int64) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OpTimeout)
	defer cancel()
	return s.store.RemainingCredit(ctx, subscriberID)
}

func (s *Service) deduct(rec *Recording, seconds float64) {
	if seconds <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OpTimeout)
	defer cancel()
	if err := s.store.DeductCredit(ctx, rec.SubscriberID, seconds); err != nil {
		s.log.Error("credit deduction failed",
			zap.Int64("subscriber", rec.SubscriberID),
			zap.Float64("seconds", seconds),
			zap.Error(err))
	}
}

func (s *Service) notify(subscriberID int64, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OpTimeout)
	defer cancel()
	if err := s.notifier.Notify(ctx, subscriberID, text); err != nil {
		s.log.Warn("notify failed", zap.Int64("subscriber", subscriberID), zap.Error(err))
	}
}
