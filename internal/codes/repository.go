package codes

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streamvault/recordbot/internal/models"
)

// Repository handles activation code persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an activation codes repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Store saves a freshly generated code.
func (r *Repository) Store(ctx context.Context, code, email, planKey string, creditHours float64) error {
	const q = `INSERT INTO activation_codes (code, email, plan_key, credit_hours)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO UPDATE SET email = EXCLUDED.email,
			plan_key = EXCLUDED.plan_key, credit_hours = EXCLUDED.credit_hours`
	_, err := r.pool.Exec(ctx, q, normalize(code), email, planKey, creditHours)
	return err
}

// Get returns a code record, or nil when the code does not exist.
func (r *Repository) Get(ctx context.Context, code string) (*models.ActivationCode, error) {
	const q = `SELECT id, code, email, plan_key, credit_hours, used, used_by, created_at
		FROM activation_codes WHERE code = $1`
	var c models.ActivationCode
	err := r.pool.QueryRow(ctx, q, normalize(code)).Scan(&c.ID, &c.Code, &c.Email, &c.PlanKey,
		&c.CreditHours, &c.Used, &c.UsedBy, &c.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// MarkUsed records the redeeming subscriber. Returns false when the code was
// already consumed, making redemption race-safe.
func (r *Repository) MarkUsed(ctx context.Context, code string, telegramID int64) (bool, error) {
	const q = `UPDATE activation_codes SET used = TRUE, used_by = $1 WHERE code = $2 AND NOT used`
	tag, err := r.pool.Exec(ctx, q, telegramID, normalize(code))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
