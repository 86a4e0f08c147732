package telegram

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/streamvault/recordbot/internal/models"
	"github.com/streamvault/recordbot/internal/recorder"
)

// CheckoutStarter begins a payment and returns the hosted checkout URL.
type CheckoutStarter interface {
	CreateSession(ctx context.Context, telegramID int64, email, planKey string) (string, error)
}

// SubscriberStore is the slice of subscriber persistence the bot touches.
type SubscriberStore interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.Subscriber, error)
	GetByUsername(ctx context.Context, username string) (*models.Subscriber, error)
	GetByActivationCode(ctx context.Context, code string) (*models.Subscriber, error)
	UpsertWithCredit(ctx context.Context, telegramID int64, email, activationCode, stripeCustomerID string, creditHours float64) error
	UpdateCredentials(ctx context.Context, telegramID int64, username, passwordHash string) error
	RemainingCredit(ctx context.Context, telegramID int64) (float64, error)
}

// CodeStore looks up and consumes activation codes.
type CodeStore interface {
	Get(ctx context.Context, code string) (*models.ActivationCode, error)
	MarkUsed(ctx context.Context, code string, telegramID int64) (bool, error)
}

// WatchlistStore manages a subscriber's watched models.
type WatchlistStore interface {
	Add(ctx context.Context, telegramID int64, model string) (bool, error)
	Remove(ctx context.Context, telegramID int64, model string) error
	ListForSubscriber(ctx context.Context, telegramID int64) ([]models.WatchedModel, error)
}

// HistoryStore reads completed recordings.
type HistoryStore interface {
	ListForSubscriber(ctx context.Context, subscriberID int64, limit int) ([]models.Recording, error)
}

// InquiryStore persists support messages.
type InquiryStore interface {
	Save(ctx context.Context, telegramID int64, username, message string) error
}

// sender is the outbound half of the Telegram API.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// chatState tracks what free-text input the bot expects next from a chat.
type chatState int

const (
	stateIdle chatState = iota
	stateAwaitEmail
	stateAwaitCode
	stateAwaitLoginUsername
	stateAwaitLoginPassword
	stateAwaitNewUsername
	stateAwaitNewPassword
	stateAwaitConfirmPassword
	stateAwaitModelName
	stateAwaitInquiry
)

type session struct {
	state         chatState
	planKey       string
	planLabel     string
	loginUsername string
	newUsername   string
	newPassword   string
}

// Bot is the subscriber-facing chat front-end: the storefront (plans,
// activation, login) and the recording controls (watchlist, live status,
// stop, credit, history).
type Bot struct {
	api         *tgbotapi.BotAPI
	out         sender
	subscribers SubscriberStore
	watchlist   WatchlistStore
	recordings  HistoryStore
	codes       CodeStore
	inquiries   InquiryStore
	service     *recorder.Service
	checkout    CheckoutStarter
	log         *zap.Logger

	mu       sync.Mutex
	sessions map[int64]*session
}

// BotDeps bundles the bot's collaborators.
type BotDeps struct {
	Subscribers SubscriberStore
	Watchlist   WatchlistStore
	Recordings  HistoryStore
	Codes       CodeStore
	Inquiries   InquiryStore
	Service     *recorder.Service
	Checkout    CheckoutStarter
}

// NewBot wires the chat front-end.
func NewBot(api *tgbotapi.BotAPI, deps BotDeps, log *zap.Logger) *Bot {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bot{
		api:         api,
		out:         api,
		subscribers: deps.Subscribers,
		watchlist:   deps.Watchlist,
		recordings:  deps.Recordings,
		codes:       deps.Codes,
		inquiries:   deps.Inquiries,
		service:     deps.Service,
		checkout:    deps.Checkout,
		log:         log,
		sessions:    make(map[int64]*session),
	}
}

// Run consumes updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	b.log.Info("bot update loop started", zap.String("username", b.api.Self.UserName))
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.log.Info("bot update loop stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.dispatch(ctx, update)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("update handler panicked", zap.Any("panic", r))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) session(chatID int64) *session {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[chatID]
	if !ok {
		s = &session{}
		b.sessions[chatID] = s
	}
	return s
}

func (b *Bot) resetSession(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, chatID)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.resetSession(chatID)
			b.showMainMenu(ctx, chatID)
		case "cancel":
			b.resetSession(chatID)
			b.send(chatID, "✅ Cancelled. Use /start to return to the menu.")
		case "help":
			b.send(chatID, "📹 Use /start to open the menu.\n/cancel aborts the current step.")
		default:
			b.send(chatID, "Unknown command. Use /start.")
		}
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	switch b.session(chatID).state {
	case stateAwaitEmail:
		b.onEmail(ctx, chatID, text)
	case stateAwaitCode:
		b.onActivationCode(ctx, chatID, text)
	case stateAwaitLoginUsername:
		b.onLoginUsername(chatID, text)
	case stateAwaitLoginPassword:
		b.onLoginPassword(ctx, chatID, text)
	case stateAwaitNewUsername:
		b.onNewUsername(ctx, chatID, text)
	case stateAwaitNewPassword:
		b.onNewPassword(chatID, text)
	case stateAwaitConfirmPassword:
		b.onConfirmPassword(ctx, chatID, text)
	case stateAwaitModelName:
		b.onModelName(ctx, chatID, text)
	case stateAwaitInquiry:
		b.onInquiry(ctx, chatID, msg.From.UserName, text)
	default:
		b.send(chatID, "Use /start to open the menu.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if _, err := b.out.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		b.log.Debug("answer callback", zap.Error(err))
	}
	if q.Message == nil {
		return
	}
	chatID := q.Message.Chat.ID
	msgID := q.Message.MessageID
	data := q.Data

	switch {
	case data == "main_menu":
		b.resetSession(chatID)
		b.editMainMenu(ctx, chatID, msgID)
	case data == "rb_subscribe":
		b.showPlans(chatID, msgID)
	case data == "rb_activation":
		b.askActivationCode(chatID, msgID)
	case data == "rb_login":
		b.askLoginUsername(chatID, msgID)
	case data == "rb_home":
		b.showHome(chatID, msgID)
	case data == "rb_add_model":
		b.askModelName(chatID, msgID)
	case data == "rb_model_list":
		b.showModelList(ctx, chatID, msgID)
	case data == "rb_recording":
		b.showCurrentlyRecording(chatID, msgID)
	case data == "rb_credits":
		b.showCredits(ctx, chatID, msgID)
	case data == "rb_history":
		b.showHistory(ctx, chatID, msgID)
	case data == "rb_inquiry":
		b.askInquiry(chatID, msgID)
	case strings.HasPrefix(data, "rb_plan_"):
		b.onPlanSelected(chatID, msgID, data)
	case strings.HasPrefix(data, "rb_remove:"):
		b.onRemoveModel(ctx, chatID, msgID, strings.TrimPrefix(data, "rb_remove:"))
	case strings.HasPrefix(data, "rb_stop:"):
		b.onStopRecording(chatID, msgID, strings.TrimPrefix(data, "rb_stop:"))
	}
}

func (b *Bot) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.out.Send(msg); err != nil {
		b.log.Warn("send message", zap.Int64("chat", chatID), zap.Error(err))
	}
}

func (b *Bot) sendKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = kb
	if _, err := b.out.Send(msg); err != nil {
		b.log.Warn("send message", zap.Int64("chat", chatID), zap.Error(err))
	}
}

func (b *Bot) edit(chatID int64, msgID int, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewEditMessageTextAndMarkup(chatID, msgID, text, kb)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.out.Send(msg); err != nil {
		b.log.Warn("edit message", zap.Int64("chat", chatID), zap.Error(err))
	}
}
