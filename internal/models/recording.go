package models

import "time"

// Recording statuses.
const (
	RecordingStatusRecording = "recording"
	RecordingStatusCompleted = "completed"
)

// Recording is the persisted history row for one capture session.
type Recording struct {
	ID              int64      `json:"id"`
	SubscriberID    int64      `json:"subscriber_telegram_id"`
	ModelName       string     `json:"model_name"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds float64    `json:"duration_seconds"`
	Status          string     `json:"status"`
}
