package models

import "time"

// WatchedModel associates a subscriber with a model name they want recorded.
type WatchedModel struct {
	ID           int64     `json:"id"`
	SubscriberID int64     `json:"subscriber_telegram_id"`
	ModelName    string    `json:"model_name"`
	AddedAt      time.Time `json:"added_at"`
}

// FundedModel is a watch-list entry joined with the subscriber's remaining
// credit; the scheduler only sees entries with positive credit.
type FundedModel struct {
	SubscriberID  int64   `json:"subscriber_telegram_id"`
	ModelName     string  `json:"model_name"`
	CreditSeconds float64 `json:"credit_seconds"`
}
