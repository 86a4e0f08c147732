package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamvault/recordbot/internal/models"
)

type webhookUpsert struct {
	telegramID  int64
	email       string
	code        string
	creditHours float64
}

type webhookSubsFake struct {
	mu      sync.Mutex
	byID    map[int64]*models.Subscriber
	upserts []webhookUpsert
}

func newWebhookSubsFake() *webhookSubsFake {
	return &webhookSubsFake{byID: make(map[int64]*models.Subscriber)}
}

func (f *webhookSubsFake) GetByTelegramID(ctx context.Context, telegramID int64) (*models.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[telegramID], nil
}

func (f *webhookSubsFake) UpsertWithCredit(ctx context.Context, telegramID int64, email, activationCode, stripeCustomerID string, creditHours float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, webhookUpsert{telegramID, email, activationCode, creditHours})
	return nil
}

type storedCode struct {
	email       string
	planKey     string
	creditHours float64
	used        bool
	usedBy      int64
}

type webhookCodesFake struct {
	mu    sync.Mutex
	codes map[string]*storedCode
}

func newWebhookCodesFake() *webhookCodesFake {
	return &webhookCodesFake{codes: make(map[string]*storedCode)}
}

func (f *webhookCodesFake) Store(ctx context.Context, code, email, planKey string, creditHours float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[code] = &storedCode{email: email, planKey: planKey, creditHours: creditHours}
	return nil
}

func (f *webhookCodesFake) MarkUsed(ctx context.Context, code string, telegramID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.codes[code]
	if !ok || c.used {
		return false, nil
	}
	c.used = true
	c.usedBy = telegramID
	return true, nil
}

func (f *webhookCodesFake) only(t *testing.T) (string, *storedCode) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.codes, 1)
	for code, c := range f.codes {
		return code, c
	}
	return "", nil
}

type notifyFake struct {
	mu    sync.Mutex
	texts []string
}

func (n *notifyFake) Notify(ctx context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

func checkoutPayload(metadata map[string]string) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{
		"id":             "cs_test_1",
		"customer_email": metadata["email"],
		"metadata":       metadata,
	})
	return raw
}

func TestWebhookCheckoutCreditsExistingAccount(t *testing.T) {
	subs := newWebhookSubsFake()
	subs.byID[42] = &models.Subscriber{TelegramID: 42, Username: "bob", IsActive: true}
	codes := newWebhookCodesFake()
	notifier := &notifyFake{}
	h := NewWebhookHandler("whsec_test", subs, codes, nil, notifier, nil)

	raw := checkoutPayload(map[string]string{
		"service":      "recordbot",
		"telegram_id":  "42",
		"email":        "bob@example.com",
		"plan":         "rb_plan_5h",
		"credit_hours": "5",
	})
	require.NoError(t, h.handleCheckoutCompleted(context.Background(), raw))

	code, stored := codes.only(t)
	assert.Equal(t, "rb_plan_5h", stored.planKey)
	assert.Equal(t, 5.0, stored.creditHours)

	// Known account: credited immediately and the code burned so it cannot
	// be redeemed a second time.
	require.Len(t, subs.upserts, 1)
	assert.Equal(t, webhookUpsert{42, "bob@example.com", code, 5}, subs.upserts[0])
	assert.True(t, stored.used)
	assert.Equal(t, int64(42), stored.usedBy)

	require.Len(t, notifier.texts, 1)
	assert.Contains(t, notifier.texts[0], code)
	assert.Contains(t, notifier.texts[0], "already been added")
}

func TestWebhookCheckoutLeavesCodeForNewBuyer(t *testing.T) {
	subs := newWebhookSubsFake()
	codes := newWebhookCodesFake()
	notifier := &notifyFake{}
	h := NewWebhookHandler("whsec_test", subs, codes, nil, notifier, nil)

	raw := checkoutPayload(map[string]string{
		"service":      "recordbot",
		"telegram_id":  "99",
		"email":        "new@example.com",
		"plan":         "rb_plan_2h",
		"credit_hours": "2",
	})
	require.NoError(t, h.handleCheckoutCompleted(context.Background(), raw))

	_, stored := codes.only(t)
	assert.False(t, stored.used, "unredeemed code stays valid for the bot flow")
	assert.Empty(t, subs.upserts)

	require.Len(t, notifier.texts, 1)
	assert.Contains(t, notifier.texts[0], "Enter Activation Code")
}

func TestWebhookIgnoresOtherServices(t *testing.T) {
	subs := newWebhookSubsFake()
	codes := newWebhookCodesFake()
	h := NewWebhookHandler("whsec_test", subs, codes, nil, nil, nil)

	raw := checkoutPayload(map[string]string{"service": "somethingelse", "telegram_id": "42"})
	require.NoError(t, h.handleCheckoutCompleted(context.Background(), raw))

	assert.Empty(t, codes.codes)
	assert.Empty(t, subs.upserts)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewWebhookHandler("whsec_test", newWebhookSubsFake(), newWebhookCodesFake(), nil, nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/webhook/stripe",
		strings.NewReader(`{"type":"checkout.session.completed"}`))
	c.Request.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")

	h.HandleStripe(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
