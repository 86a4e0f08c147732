package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"

	"github.com/streamvault/recordbot/internal/models"
	"github.com/streamvault/recordbot/pkg/response"
	"github.com/streamvault/recordbot/pkg/utils"
)

const maxWebhookBody = 64 * 1024

// Mailer delivers the activation code by email. Failures are logged, never
// fatal: the code also goes out over Telegram.
type Mailer interface {
	SendActivationEmail(ctx context.Context, email, code string, creditHours float64) error
}

// Notify pushes a message to a Telegram chat.
type Notify interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// SubscriberStore is the slice of subscriber persistence checkout completion
// needs.
type SubscriberStore interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.Subscriber, error)
	UpsertWithCredit(ctx context.Context, telegramID int64, email, activationCode, stripeCustomerID string, creditHours float64) error
}

// CodeStore persists generated activation codes.
type CodeStore interface {
	Store(ctx context.Context, code, email, planKey string, creditHours float64) error
	MarkUsed(ctx context.Context, code string, telegramID int64) (bool, error)
}

// WebhookHandler turns completed Stripe checkouts into activation codes.
type WebhookHandler struct {
	secret      string
	subscribers SubscriberStore
	codes       CodeStore
	mailer      Mailer
	notifier    Notify
	log         *zap.Logger
}

// NewWebhookHandler wires the payment completion pipeline. mailer and
// notifier may be nil; delivery is then skipped.
func NewWebhookHandler(secret string, subs SubscriberStore, codeRepo CodeStore, mailer Mailer, notifier Notify, log *zap.Logger) *WebhookHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookHandler{
		secret:      secret,
		subscribers: subs,
		codes:       codeRepo,
		mailer:      mailer,
		notifier:    notifier,
		log:         log,
	}
}

// HandleStripe verifies and dispatches a Stripe webhook event.
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "cannot read payload")
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.secret)
	if err != nil {
		h.log.Warn("webhook signature rejected", zap.Error(err))
		response.BadRequest(c, "invalid signature")
		return
	}

	if event.Type == "checkout.session.completed" {
		if err := h.handleCheckoutCompleted(c.Request.Context(), event.Data.Raw); err != nil {
			h.log.Error("checkout completion failed", zap.Error(err))
			response.Internal(c, "processing failed")
			return
		}
	}

	response.OK(c, gin.H{"received": true})
}

func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, raw json.RawMessage) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	if sess.Metadata["service"] != "recordbot" {
		return nil
	}

	telegramID, err := strconv.ParseInt(sess.Metadata["telegram_id"], 10, 64)
	if err != nil {
		return fmt.Errorf("bad telegram_id metadata: %w", err)
	}
	email := sess.CustomerEmail
	if email == "" {
		email = sess.Metadata["email"]
	}
	planKey := sess.Metadata["plan"]
	creditHours, err := strconv.ParseFloat(sess.Metadata["credit_hours"], 64)
	if err != nil {
		return fmt.Errorf("bad credit_hours metadata: %w", err)
	}

	stripeCustomerID := ""
	if sess.Customer != nil {
		stripeCustomerID = sess.Customer.ID
	}

	code := utils.GenerateActivationCode()
	if err := h.codes.Store(ctx, code, email, planKey, creditHours); err != nil {
		return fmt.Errorf("store activation code: %w", err)
	}

	// Existing accounts are credited immediately; the code is burned so it
	// cannot be redeemed a second time. New buyers redeem it in the bot.
	existing, err := h.subscribers.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return fmt.Errorf("look up subscriber: %w", err)
	}
	if existing != nil {
		if err := h.subscribers.UpsertWithCredit(ctx, telegramID, email, code, stripeCustomerID, creditHours); err != nil {
			return fmt.Errorf("credit subscriber: %w", err)
		}
		if _, err := h.codes.MarkUsed(ctx, code, telegramID); err != nil {
			h.log.Warn("mark code used", zap.String("code", code), zap.Error(err))
		}
	}

	h.log.Info("payment completed",
		zap.Int64("telegram_id", telegramID),
		zap.String("plan", planKey),
		zap.Float64("credit_hours", creditHours))

	if h.mailer != nil {
		if err := h.mailer.SendActivationEmail(ctx, email, code, creditHours); err != nil {
			h.log.Error("activation email failed", zap.String("email", email), zap.Error(err))
		}
	}
	if h.notifier != nil {
		text := fmt.Sprintf(
			"🎉 Payment confirmed!\n\n%.0f hours of recording credit purchased.\n\nYour activation code:\n%s\n\n",
			creditHours, code)
		if existing != nil {
			text += "The credit has already been added to your account."
		} else {
			text += "Use \"Enter Activation Code\" in the bot menu to activate."
		}
		nctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := h.notifier.Notify(nctx, telegramID, text); err != nil {
			h.log.Error("telegram code delivery failed", zap.Int64("telegram_id", telegramID), zap.Error(err))
		}
	}
	return nil
}

// Success is the post-payment landing page.
func (h *WebhookHandler) Success(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK,
		"<html><body><h2>✅ Payment successful</h2><p>Your activation code is on its way — check Telegram and your email.</p></body></html>")
}

// Cancel is the abandoned-payment landing page.
func (h *WebhookHandler) Cancel(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK,
		"<html><body><h2>Payment cancelled</h2><p>No charge was made. Return to the bot to try again.</p></body></html>")
}

// Health reports liveness.
func (h *WebhookHandler) Health(c *gin.Context) {
	response.OK(c, gin.H{"status": "healthy"})
}
