package inquiries

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streamvault/recordbot/internal/models"
)

// Repository stores support inquiries left through the bot.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an inquiries repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save stores one inquiry.
func (r *Repository) Save(ctx context.Context, telegramID int64, username, message string) error {
	const q = `INSERT INTO inquiries (telegram_id, username, message) VALUES ($1, $2, $3)`
	_, err := r.pool.Exec(ctx, q, telegramID, username, message)
	return err
}

// ListRecent returns the latest inquiries (admin reporting).
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]models.Inquiry, error) {
	const q = `SELECT id, telegram_id, username, message, created_at
		FROM inquiries ORDER BY created_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Inquiry
	for rows.Next() {
		var in models.Inquiry
		if err := rows.Scan(&in.ID, &in.TelegramID, &in.Username, &in.Message, &in.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, in)
	}
	return list, rows.Err()
}
