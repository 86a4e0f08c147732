package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/streamvault/recordbot/internal/billing"
	"github.com/streamvault/recordbot/internal/recorder"
	"github.com/streamvault/recordbot/internal/watchlist"
	"github.com/streamvault/recordbot/pkg/utils"
)

func backToMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔙 Back to Menu", "main_menu")))
}

func backHomeKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔙 Back", "rb_home")))
}

func mainMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💳 Subscribe", "rb_subscribe")),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔑 Enter Activation Code", "rb_activation")),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔐 Login", "rb_login")),
	)
}

func homeKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➕ Add Model", "rb_add_model")),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📋 Model List", "rb_model_list")),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔴 Currently Recording", "rb_recording")),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎬 Recording History", "rb_history")),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💰 Total Credits", "rb_credits")),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💬 Support", "rb_inquiry")),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔙 Back to Menu", "main_menu")),
	)
}

const mainMenuText = "📹 *RecordBot*\n\n" +
	"Record your favorite models automatically.\n" +
	"Select an option below:"

func (b *Bot) showMainMenu(ctx context.Context, chatID int64) {
	kb := mainMenuKeyboard()
	if sub, err := b.subscribers.GetByTelegramID(ctx, chatID); err == nil && sub != nil {
		kb.InlineKeyboard = append(kb.InlineKeyboard,
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("📹 My Account", "rb_home")))
	}
	b.sendKeyboard(chatID, mainMenuText, kb)
}

func (b *Bot) editMainMenu(ctx context.Context, chatID int64, msgID int) {
	kb := mainMenuKeyboard()
	if sub, err := b.subscribers.GetByTelegramID(ctx, chatID); err == nil && sub != nil {
		kb.InlineKeyboard = append(kb.InlineKeyboard,
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("📹 My Account", "rb_home")))
	}
	b.edit(chatID, msgID, mainMenuText, kb)
}

// --- subscription / checkout ---

func (b *Bot) showPlans(chatID int64, msgID int) {
	var rows [][]tgbotapi.InlineKeyboardButton
	lines := []string{"💳 *Choose a Plan*", "", "Select your recording credit package:", ""}
	for _, p := range billing.Plans {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⏱ "+p.Label, p.Key)))
		lines = append(lines, "⏱ *"+p.Label+"*")
	}
	lines = append(lines, "", "_Credits are used while models are being recorded._")
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔙 Back to Menu", "main_menu")))

	b.edit(chatID, msgID, strings.Join(lines, "\n"), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) onPlanSelected(chatID int64, msgID int, planKey string) {
	plan, ok := billing.PlanByKey(planKey)
	if !ok {
		b.edit(chatID, msgID, "⚠️ Invalid plan.", backToMenuKeyboard())
		return
	}
	s := b.session(chatID)
	s.state = stateAwaitEmail
	s.planKey = plan.Key
	s.planLabel = plan.Label

	b.edit(chatID, msgID,
		fmt.Sprintf("✅ *Plan selected:* %s\n\nPlease enter your email address:", plan.Label),
		backToMenuKeyboard())
}

func (b *Bot) onEmail(ctx context.Context, chatID int64, email string) {
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		b.send(chatID, "⚠️ Please enter a valid email address:")
		return
	}
	s := b.session(chatID)
	if s.planKey == "" {
		s.state = stateIdle
		b.sendKeyboard(chatID, "⚠️ No plan selected. Please start over.", backToMenuKeyboard())
		return
	}

	url, err := b.checkout.CreateSession(ctx, chatID, email, s.planKey)
	if err != nil {
		b.log.Error("create checkout", zap.Int64("chat", chatID), zap.Error(err))
		s.state = stateIdle
		b.sendKeyboard(chatID, "⚠️ Something went wrong. Please try again later.", backToMenuKeyboard())
		return
	}

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("💳 Pay Now", url)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Back to Menu", "main_menu")))
	b.sendKeyboard(chatID, fmt.Sprintf(
		"✅ *Almost there!*\n\nPlan: *%s*\n\n"+
			"Click below to complete your payment.\n\n"+
			"After payment, your *activation code* will be sent to:\n`%s` and here in Telegram.",
		s.planLabel, email), kb)
	s.state = stateIdle
}

// --- activation ---

func (b *Bot) askActivationCode(chatID int64, msgID int) {
	b.session(chatID).state = stateAwaitCode
	b.edit(chatID, msgID,
		"🔑 *Enter Activation Code*\n\nPlease type your activation code below:",
		backToMenuKeyboard())
}

func (b *Bot) onActivationCode(ctx context.Context, chatID int64, input string) {
	code := strings.ToUpper(strings.TrimSpace(input))
	s := b.session(chatID)

	record, err := b.codes.Get(ctx, code)
	if err != nil {
		b.log.Error("look up code", zap.Error(err))
		b.sendKeyboard(chatID, "⚠️ Something went wrong. Please try again.", backToMenuKeyboard())
		return
	}
	if record == nil {
		b.send(chatID, "❌ *Invalid activation code.*\n\nPlease check and try again.")
		return
	}

	if record.Used {
		// Re-entering your own used code is a login, not an error.
		existing, err := b.subscribers.GetByActivationCode(ctx, code)
		if err == nil && existing != nil && existing.TelegramID == chatID {
			s.state = stateIdle
			b.sendKeyboard(chatID, "✅ *Welcome back!*\n\nYou already have an account.", homeKeyboard())
			return
		}
		s.state = stateIdle
		b.sendKeyboard(chatID, "⚠️ *This code has already been used.*", backToMenuKeyboard())
		return
	}

	if err := b.subscribers.UpsertWithCredit(ctx, chatID, record.Email, code, "", record.CreditHours); err != nil {
		b.log.Error("activate subscriber", zap.Error(err))
		b.sendKeyboard(chatID, "⚠️ Something went wrong. Please try again.", backToMenuKeyboard())
		return
	}
	if _, err := b.codes.MarkUsed(ctx, code, chatID); err != nil {
		b.log.Warn("mark code used", zap.String("code", code), zap.Error(err))
	}

	sub, err := b.subscribers.GetByTelegramID(ctx, chatID)
	if err == nil && sub != nil && sub.Username != "" {
		s.state = stateIdle
		b.sendKeyboard(chatID, fmt.Sprintf(
			"✅ *Credits added!*\n\nAdded *%.0f hours* to your account.\n\nWelcome back!",
			record.CreditHours), homeKeyboard())
		return
	}

	s.state = stateAwaitNewUsername
	b.send(chatID, fmt.Sprintf(
		"✅ *Activation successful!*\n\nYou have *%.0f hours* of recording credit.\n\n"+
			"Please create a username (min 3 characters):", record.CreditHours))
}

// --- login ---

func (b *Bot) askLoginUsername(chatID int64, msgID int) {
	b.session(chatID).state = stateAwaitLoginUsername
	b.edit(chatID, msgID, "🔐 *Login*\n\nPlease enter your username:", backToMenuKeyboard())
}

func (b *Bot) onLoginUsername(chatID int64, username string) {
	s := b.session(chatID)
	s.loginUsername = username
	s.state = stateAwaitLoginPassword
	b.send(chatID, "Now enter your password:")
}

func (b *Bot) onLoginPassword(ctx context.Context, chatID int64, password string) {
	s := b.session(chatID)
	s.state = stateIdle

	user, err := b.subscribers.GetByUsername(ctx, s.loginUsername)
	if err != nil {
		b.log.Error("look up username", zap.Error(err))
	}
	if user == nil || !utils.CheckPassword(password, user.PasswordHash) {
		b.sendKeyboard(chatID, "❌ *Invalid username or password.*", backToMenuKeyboard())
		return
	}
	if !user.IsActive {
		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💳 Subscribe", "rb_subscribe")),
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Back to Menu", "main_menu")))
		b.sendKeyboard(chatID, "⚠️ *Your account is not active.*", kb)
		return
	}

	b.sendKeyboard(chatID, "✅ *Login successful!*\n\nWelcome back.", homeKeyboard())
}

// --- account creation ---

func (b *Bot) onNewUsername(ctx context.Context, chatID int64, username string) {
	if len(username) < 3 {
		b.send(chatID, "⚠️ Username must be at least 3 characters. Try again:")
		return
	}
	existing, err := b.subscribers.GetByUsername(ctx, username)
	if err != nil {
		b.log.Error("check username", zap.Error(err))
		b.send(chatID, "⚠️ Something went wrong. Try again:")
		return
	}
	if existing != nil {
		b.send(chatID, "⚠️ That username is taken. Please choose a different one:")
		return
	}

	s := b.session(chatID)
	s.newUsername = username
	s.state = stateAwaitNewPassword
	b.send(chatID, "Now create a password (min 6 characters):")
}

func (b *Bot) onNewPassword(chatID int64, password string) {
	if len(password) < 6 {
		b.send(chatID, "⚠️ Password must be at least 6 characters. Try again:")
		return
	}
	s := b.session(chatID)
	s.newPassword = password
	s.state = stateAwaitConfirmPassword
	b.send(chatID, "Confirm your password:")
}

func (b *Bot) onConfirmPassword(ctx context.Context, chatID int64, confirm string) {
	s := b.session(chatID)
	if confirm != s.newPassword {
		s.state = stateAwaitNewPassword
		b.send(chatID, "⚠️ Passwords don't match. Please enter your password again:")
		return
	}

	hash, err := utils.HashPassword(s.newPassword)
	if err != nil {
		b.log.Error("hash password", zap.Error(err))
		b.sendKeyboard(chatID, "⚠️ Something went wrong. Please try again.", backToMenuKeyboard())
		return
	}
	if err := b.subscribers.UpdateCredentials(ctx, chatID, s.newUsername, hash); err != nil {
		b.log.Error("save credentials", zap.Error(err))
		b.sendKeyboard(chatID, "⚠️ Something went wrong. Please try again.", backToMenuKeyboard())
		return
	}

	username := s.newUsername
	s.state = stateIdle
	s.newPassword = ""
	b.sendKeyboard(chatID, fmt.Sprintf(
		"✅ *Account created!*\n\nUsername: `%s`\n\nWelcome to RecordBot!", username),
		homeKeyboard())
}

// --- home + recording controls ---

func (b *Bot) showHome(chatID int64, msgID int) {
	b.session(chatID).state = stateIdle
	b.edit(chatID, msgID, "📹 *RecordBot Home*\n\nSelect an option:", homeKeyboard())
}

func (b *Bot) askModelName(chatID int64, msgID int) {
	b.session(chatID).state = stateAwaitModelName
	b.edit(chatID, msgID,
		"➕ *Add Model*\n\nEnter the username of the model to record:",
		backHomeKeyboard())
}

func (b *Bot) onModelName(ctx context.Context, chatID int64, input string) {
	model := watchlist.Normalize(input)
	s := b.session(chatID)
	s.state = stateIdle
	if !watchlist.ValidName(model) {
		b.send(chatID, "⚠️ Please enter a valid username (letters, digits and underscores only).")
		s.state = stateAwaitModelName
		return
	}

	added, err := b.watchlist.Add(ctx, chatID, model)
	if err != nil {
		b.log.Error("add model", zap.Error(err))
		b.sendKeyboard(chatID, "⚠️ Something went wrong. Please try again.", homeKeyboard())
		return
	}
	if added {
		b.sendKeyboard(chatID, fmt.Sprintf(
			"✅ `%s` added to your model list.\n\nRecording will start automatically when they go live.",
			model), homeKeyboard())
	} else {
		b.sendKeyboard(chatID, fmt.Sprintf("`%s` is already in your list.", model), homeKeyboard())
	}
}

func (b *Bot) showModelList(ctx context.Context, chatID int64, msgID int) {
	list, err := b.watchlist.ListForSubscriber(ctx, chatID)
	if err != nil {
		b.log.Error("list models", zap.Error(err))
		b.edit(chatID, msgID, "⚠️ Something went wrong.", homeKeyboard())
		return
	}
	if len(list) == 0 {
		b.edit(chatID, msgID,
			"📋 *Model List*\n\nNo models added yet.\n\nUse *Add Model* to start monitoring.",
			homeKeyboard())
		return
	}

	lines := []string{"📋 *Model List*", ""}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, m := range list {
		status := "⚫ idle"
		if b.service.Registry().Has(recorder.Key{SubscriberID: chatID, Model: m.ModelName}) {
			status = "🔴 recording"
		}
		lines = append(lines, fmt.Sprintf("• `%s` — %s", m.ModelName, status))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Remove "+m.ModelName, "rb_remove:"+m.ModelName)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔙 Back", "rb_home")))

	b.edit(chatID, msgID, strings.Join(lines, "\n"), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) onRemoveModel(ctx context.Context, chatID int64, msgID int, model string) {
	if rec, ok := b.service.Registry().Get(recorder.Key{SubscriberID: chatID, Model: model}); ok {
		b.service.Stop(rec, "model removed")
	}
	if err := b.watchlist.Remove(ctx, chatID, model); err != nil {
		b.log.Error("remove model", zap.Error(err))
		b.edit(chatID, msgID, "⚠️ Something went wrong.", homeKeyboard())
		return
	}
	b.edit(chatID, msgID, fmt.Sprintf("✅ `%s` removed from your list.", model), homeKeyboard())
}

func (b *Bot) showCurrentlyRecording(chatID int64, msgID int) {
	recs := b.service.Registry().ForSubscriber(chatID)
	if len(recs) == 0 {
		b.edit(chatID, msgID,
			"🔴 *Currently Recording*\n\nNothing recording right now.", homeKeyboard())
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, rec := range recs {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("🔴 %s · %s", rec.Model, rec.DurationString()),
				"rb_stop:"+rec.Model)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔙 Back", "rb_home")))

	b.edit(chatID, msgID,
		"🔴 *Currently Recording*\n\nTap to stop a recording:",
		tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) onStopRecording(chatID int64, msgID int, model string) {
	rec, ok := b.service.Registry().Get(recorder.Key{SubscriberID: chatID, Model: model})
	if !ok {
		b.edit(chatID, msgID, fmt.Sprintf("`%s` is not currently recording.", model), homeKeyboard())
		return
	}
	b.service.Stop(rec, "subscriber request")
	b.edit(chatID, msgID, fmt.Sprintf(
		"⏹ *%s* — stop signal sent.\n\nRecording will finalize and upload automatically.", model),
		homeKeyboard())
}

func (b *Bot) showCredits(ctx context.Context, chatID int64, msgID int) {
	seconds, err := b.subscribers.RemainingCredit(ctx, chatID)
	if err != nil {
		b.log.Error("remaining credit", zap.Error(err))
		b.edit(chatID, msgID, "⚠️ Something went wrong.", homeKeyboard())
		return
	}
	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	b.edit(chatID, msgID, fmt.Sprintf(
		"💰 *Total Credits*\n\nRemaining: *%dh %dm*\n\n"+
			"_Credits are consumed while models are being recorded._",
		hours, minutes), homeKeyboard())
}

func (b *Bot) showHistory(ctx context.Context, chatID int64, msgID int) {
	history, err := b.recordings.ListForSubscriber(ctx, chatID, 15)
	if err != nil {
		b.log.Error("list history", zap.Error(err))
		b.edit(chatID, msgID, "⚠️ Something went wrong.", homeKeyboard())
		return
	}
	if len(history) == 0 {
		b.edit(chatID, msgID,
			"🎬 *Recording History*\n\nNo completed recordings yet.", homeKeyboard())
		return
	}

	lines := []string{"🎬 *Recording History*", ""}
	for _, rec := range history {
		d := time.Duration(rec.DurationSeconds) * time.Second
		lines = append(lines, fmt.Sprintf("• `%s` — %s on %s",
			rec.ModelName, d.Round(time.Second), rec.StartedAt.Format("Jan 2 15:04")))
	}
	b.edit(chatID, msgID, strings.Join(lines, "\n"), homeKeyboard())
}

// --- support ---

func (b *Bot) askInquiry(chatID int64, msgID int) {
	b.session(chatID).state = stateAwaitInquiry
	b.edit(chatID, msgID,
		"💬 *Support*\n\nType your message and we will get back to you:",
		backHomeKeyboard())
}

func (b *Bot) onInquiry(ctx context.Context, chatID int64, username, text string) {
	b.session(chatID).state = stateIdle
	if err := b.inquiries.Save(ctx, chatID, username, text); err != nil {
		b.log.Error("save inquiry", zap.Error(err))
		b.sendKeyboard(chatID, "⚠️ Something went wrong. Please try again.", homeKeyboard())
		return
	}
	b.sendKeyboard(chatID, "✅ Thanks! Your message has been received.", homeKeyboard())
}
