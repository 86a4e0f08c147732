package subscribers

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streamvault/recordbot/internal/models"
)

const subscriberColumns = `id, telegram_id, COALESCE(email,''), COALESCE(username,''), COALESCE(password_hash,''),
	COALESCE(activation_code,''), COALESCE(stripe_customer_id,''), credit_seconds, is_active, created_at`

// Repository handles subscriber persistence, including the credit balance.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a subscribers repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) scanOne(row pgx.Row) (*models.Subscriber, error) {
	var s models.Subscriber
	var username *string
	err := row.Scan(&s.ID, &s.TelegramID, &s.Email, &username, &s.PasswordHash,
		&s.ActivationCode, &s.StripeCustomerID, &s.CreditSeconds, &s.IsActive, &s.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if username != nil {
		s.Username = *username
	}
	return &s, nil
}

// GetByTelegramID returns a subscriber by Telegram ID, or nil when absent.
func (r *Repository) GetByTelegramID(ctx context.Context, telegramID int64) (*models.Subscriber, error) {
	q := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE telegram_id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, q, telegramID))
}

// GetByUsername returns a subscriber by login username, or nil when absent.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*models.Subscriber, error) {
	q := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE username = $1`
	return r.scanOne(r.pool.QueryRow(ctx, q, username))
}

// GetByActivationCode returns the subscriber that redeemed a code, or nil.
func (r *Repository) GetByActivationCode(ctx context.Context, code string) (*models.Subscriber, error) {
	q := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE activation_code = $1`
	return r.scanOne(r.pool.QueryRow(ctx, q, code))
}

// UpsertWithCredit creates the subscriber or, if the Telegram ID is already
// known, tops up its balance and reactivates the account.
func (r *Repository) UpsertWithCredit(ctx context.Context, telegramID int64, email, activationCode, stripeCustomerID string, creditHours float64) error {
	const q = `INSERT INTO subscribers (telegram_id, email, activation_code, stripe_customer_id, credit_seconds, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (telegram_id) DO UPDATE SET
			email = EXCLUDED.email,
			activation_code = EXCLUDED.activation_code,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			credit_seconds = subscribers.credit_seconds + EXCLUDED.credit_seconds,
			is_active = TRUE`
	_, err := r.pool.Exec(ctx, q, telegramID, email, activationCode, stripeCustomerID, creditHours*3600)
	return err
}

// AddCredit adds credit hours to an existing account.
func (r *Repository) AddCredit(ctx context.Context, telegramID int64, hours float64) error {
	const q = `UPDATE subscribers SET credit_seconds = credit_seconds + $1 WHERE telegram_id = $2`
	_, err := r.pool.Exec(ctx, q, hours*3600, telegramID)
	return err
}

// DeductCredit atomically subtracts elapsed seconds from the balance,
// floored at zero.
func (r *Repository) DeductCredit(ctx context.Context, telegramID int64, seconds float64) error {
	const q = `UPDATE subscribers SET credit_seconds = GREATEST(0, credit_seconds - $1) WHERE telegram_id = $2`
	_, err := r.pool.Exec(ctx, q, seconds, telegramID)
	return err
}

// RemainingCredit returns the balance in seconds; unknown accounts have zero.
func (r *Repository) RemainingCredit(ctx context.Context, telegramID int64) (float64, error) {
	const q = `SELECT credit_seconds FROM subscribers WHERE telegram_id = $1`
	var credit float64
	err := r.pool.QueryRow(ctx, q, telegramID).Scan(&credit)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return credit, nil
}

// UpdateCredentials sets login username and bcrypt password hash.
func (r *Repository) UpdateCredentials(ctx context.Context, telegramID int64, username, passwordHash string) error {
	const q = `UPDATE subscribers SET username = $1, password_hash = $2 WHERE telegram_id = $3`
	_, err := r.pool.Exec(ctx, q, username, passwordHash, telegramID)
	return err
}

// Deactivate marks an account inactive; the scheduler stops offering its models.
func (r *Repository) Deactivate(ctx context.Context, telegramID int64) error {
	const q = `UPDATE subscribers SET is_active = FALSE WHERE telegram_id = $1`
	_, err := r.pool.Exec(ctx, q, telegramID)
	return err
}

// List returns all subscribers, newest first (admin reporting).
func (r *Repository) List(ctx context.Context) ([]models.Subscriber, error) {
	q := `SELECT ` + subscriberColumns + ` FROM subscribers ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Subscriber
	for rows.Next() {
		var s models.Subscriber
		var username *string
		if err := rows.Scan(&s.ID, &s.TelegramID, &s.Email, &username, &s.PasswordHash,
			&s.ActivationCode, &s.StripeCustomerID, &s.CreditSeconds, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, err
		}
		if username != nil {
			s.Username = *username
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// Count returns the number of subscriber accounts.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM subscribers`).Scan(&n)
	return n, err
}
