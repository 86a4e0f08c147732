package watchlist

import (
	"context"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streamvault/recordbot/internal/models"
)

// Model names become path components and URL segments, so only a strict
// character set is accepted.
var modelNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// Repository handles the subscriber → model watch list.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a watch-list repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Normalize canonicalizes a model name the way it is stored and keyed.
func Normalize(model string) string {
	return strings.ToLower(strings.TrimSpace(model))
}

// ValidName reports whether a normalized model name is safe to store.
func ValidName(model string) bool {
	return modelNamePattern.MatchString(model)
}

// Add inserts a watch entry; returns false when the pair already exists.
func (r *Repository) Add(ctx context.Context, telegramID int64, model string) (bool, error) {
	const q = `INSERT INTO watched_models (subscriber_telegram_id, model_name)
		VALUES ($1, $2) ON CONFLICT (subscriber_telegram_id, model_name) DO NOTHING`
	tag, err := r.pool.Exec(ctx, q, telegramID, Normalize(model))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Remove deletes a watch entry.
func (r *Repository) Remove(ctx context.Context, telegramID int64, model string) error {
	const q = `DELETE FROM watched_models WHERE subscriber_telegram_id = $1 AND model_name = $2`
	_, err := r.pool.Exec(ctx, q, telegramID, Normalize(model))
	return err
}

// ListForSubscriber returns a subscriber's watched models in insertion order.
func (r *Repository) ListForSubscriber(ctx context.Context, telegramID int64) ([]models.WatchedModel, error) {
	const q = `SELECT id, subscriber_telegram_id, model_name, added_at
		FROM watched_models WHERE subscriber_telegram_id = $1 ORDER BY added_at`
	rows, err := r.pool.Query(ctx, q, telegramID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.WatchedModel
	for rows.Next() {
		var m models.WatchedModel
		if err := rows.Scan(&m.ID, &m.SubscriberID, &m.ModelName, &m.AddedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// ListFunded returns every (subscriber, model) pair whose account is active
// and holds positive credit. This is the scheduler's work list.
func (r *Repository) ListFunded(ctx context.Context) ([]models.FundedModel, error) {
	const q = `SELECT wm.subscriber_telegram_id, wm.model_name, s.credit_seconds
		FROM watched_models wm
		JOIN subscribers s ON wm.subscriber_telegram_id = s.telegram_id
		WHERE s.is_active AND s.credit_seconds > 0
		ORDER BY wm.subscriber_telegram_id, wm.added_at`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.FundedModel
	for rows.Next() {
		var m models.FundedModel
		if err := rows.Scan(&m.SubscriberID, &m.ModelName, &m.CreditSeconds); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
