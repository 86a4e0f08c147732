package billing

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"go.uber.org/zap"
)

// Checkout creates Stripe checkout sessions for credit plans.
type Checkout struct {
	priceIDs  map[string]string // plan key -> Stripe price id
	publicURL string            // redirect base for success/cancel pages
	log       *zap.Logger
}

// NewCheckout configures the Stripe client. priceIDs maps plan keys to the
// price objects configured in the Stripe dashboard.
func NewCheckout(secretKey, publicURL string, priceIDs map[string]string, log *zap.Logger) *Checkout {
	if log == nil {
		log = zap.NewNop()
	}
	stripe.Key = secretKey
	return &Checkout{priceIDs: priceIDs, publicURL: publicURL, log: log}
}

// CreateSession starts a payment for one plan and returns the hosted
// checkout URL the subscriber should be sent to.
func (c *Checkout) CreateSession(ctx context.Context, telegramID int64, email, planKey string) (string, error) {
	plan, ok := PlanByKey(planKey)
	if !ok {
		return "", fmt.Errorf("unknown plan %q", planKey)
	}
	priceID, ok := c.priceIDs[planKey]
	if !ok || priceID == "" {
		return "", fmt.Errorf("plan %q has no configured price", planKey)
	}

	params := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		CustomerEmail:      stripe.String(email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(c.publicURL + "/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(c.publicURL + "/cancel"),
	}
	params.AddMetadata("telegram_id", strconv.FormatInt(telegramID, 10))
	params.AddMetadata("email", email)
	params.AddMetadata("plan", planKey)
	params.AddMetadata("service", "recordbot")
	params.AddMetadata("credit_hours", strconv.FormatFloat(plan.Hours, 'f', -1, 64))

	s, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	c.log.Info("checkout session created",
		zap.Int64("telegram_id", telegramID),
		zap.String("plan", planKey))
	return s.URL, nil
}
