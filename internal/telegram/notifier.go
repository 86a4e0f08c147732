// Package telegram hosts the subscriber-facing bot: the chat UI for
// managing watched models and credit, and the delivery channel for
// recorded segments.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Notifier sends messages and video files to subscribers. Pointed at a
// self-hosted bot API server it can upload files far beyond the cloud
// API's 50 MB cap, which recorded segments routinely are.
type Notifier struct {
	api *tgbotapi.BotAPI
	log *zap.Logger
}

// NewNotifier wraps an already-authorized bot client.
func NewNotifier(api *tgbotapi.BotAPI, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{api: api, log: log}
}

// NewBotAPI authorizes against the bot API. endpoint overrides the cloud
// API URL when a self-hosted server is configured; empty keeps the default.
func NewBotAPI(token, endpoint string) (*tgbotapi.BotAPI, error) {
	if endpoint != "" {
		return tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	}
	return tgbotapi.NewBotAPI(token)
}

// Notify sends a plain text message to a chat.
func (n *Notifier) Notify(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendVideo uploads a local video file with a caption.
func (n *Notifier) SendVideo(ctx context.Context, chatID int64, filePath, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	video := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(filePath))
	video.Caption = caption
	video.SupportsStreaming = true
	if _, err := n.api.Send(video); err != nil {
		return fmt.Errorf("send video: %w", err)
	}
	n.log.Debug("video delivered", zap.Int64("chat", chatID), zap.String("file", filePath))
	return nil
}
