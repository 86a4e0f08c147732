package models

import "time"

// Subscriber is a paying account identified by its Telegram ID.
type Subscriber struct {
	ID               int64     `json:"id"`
	TelegramID       int64     `json:"telegram_id"`
	Email            string    `json:"email"`
	Username         string    `json:"username"`
	PasswordHash     string    `json:"-"`
	ActivationCode   string    `json:"-"`
	StripeCustomerID string    `json:"-"`
	CreditSeconds    float64   `json:"credit_seconds"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
}
