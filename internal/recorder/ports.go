// Package recorder implements the live-stream capture pipeline: a polling
// scheduler that probes watched models for liveness, a capture supervisor
// that owns one ffmpeg process per active recording, a per-recording watcher
// that rotates and uploads segment files, and a credit meter that charges
// subscribers for elapsed recording time.
package recorder

import (
	"context"

	"github.com/streamvault/recordbot/internal/models"
)

// Store is the recorder's view of persistent state: who wants what recorded,
// how much credit remains, and the recording history log.
type Store interface {
	// ListFunded returns every active (subscriber, model) pair with positive credit.
	ListFunded(ctx context.Context) ([]models.FundedModel, error)
	// RemainingCredit returns the balance in seconds; unknown accounts are zero.
	RemainingCredit(ctx context.Context, subscriberID int64) (float64, error)
	// DeductCredit atomically subtracts seconds from the balance, floored at zero.
	DeductCredit(ctx context.Context, subscriberID int64, seconds float64) error
	// StartRecording appends a recording-started entry and returns its id.
	StartRecording(ctx context.Context, subscriberID int64, model string) (int64, error)
	// EndRecording closes the entry with the total duration.
	EndRecording(ctx context.Context, id int64, durationSeconds float64) error
}

// Notifier reaches a subscriber over the chat channel.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
	// SendVideo uploads a video file with a caption. Implementations must
	// tolerate files of hundreds of MB and report failure distinctly.
	SendVideo(ctx context.Context, chatID int64, filePath, caption string) error
}

// Archiver is an optional fallback sink for segments whose chat upload
// failed. It must not remove the local file.
type Archiver interface {
	ArchiveSegment(ctx context.Context, subscriberID int64, model, filePath string) (string, error)
}
