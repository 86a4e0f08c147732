package models

import "time"

// ActivationCode is a prepaid credit voucher generated after checkout.
type ActivationCode struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Email       string    `json:"email"`
	PlanKey     string    `json:"plan_key"`
	CreditHours float64   `json:"credit_hours"`
	Used        bool      `json:"used"`
	UsedBy      *int64    `json:"used_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Inquiry is a support message left by a subscriber through the bot.
type Inquiry struct {
	ID         int64     `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	Username   string    `json:"username"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}
