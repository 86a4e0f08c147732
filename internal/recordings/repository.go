package recordings

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streamvault/recordbot/internal/models"
)

// Repository handles recording history persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recordings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Start inserts a recording-started row and returns its identifier.
func (r *Repository) Start(ctx context.Context, subscriberID int64, model string) (int64, error) {
	const q = `INSERT INTO recordings (subscriber_telegram_id, model_name, status)
		VALUES ($1, $2, $3) RETURNING id`
	var id int64
	err := r.pool.QueryRow(ctx, q, subscriberID, model, models.RecordingStatusRecording).Scan(&id)
	return id, err
}

// End marks a recording completed with its total duration.
func (r *Repository) End(ctx context.Context, id int64, durationSeconds float64) error {
	const q = `UPDATE recordings SET ended_at = NOW(), duration_seconds = $1, status = $2 WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, durationSeconds, models.RecordingStatusCompleted, id)
	return err
}

// ListForSubscriber returns a subscriber's recording history, newest first.
func (r *Repository) ListForSubscriber(ctx context.Context, subscriberID int64, limit int) ([]models.Recording, error) {
	const q = `SELECT id, subscriber_telegram_id, model_name, started_at, ended_at, duration_seconds, status
		FROM recordings WHERE subscriber_telegram_id = $1 ORDER BY started_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, subscriberID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		var rec models.Recording
		if err := rows.Scan(&rec.ID, &rec.SubscriberID, &rec.ModelName, &rec.StartedAt,
			&rec.EndedAt, &rec.DurationSeconds, &rec.Status); err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// ListRecent returns the most recent recordings across all subscribers
// (admin reporting).
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]models.Recording, error) {
	const q = `SELECT id, subscriber_telegram_id, model_name, started_at, ended_at, duration_seconds, status
		FROM recordings ORDER BY started_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		var rec models.Recording
		if err := rows.Scan(&rec.ID, &rec.SubscriberID, &rec.ModelName, &rec.StartedAt,
			&rec.EndedAt, &rec.DurationSeconds, &rec.Status); err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}
