// Package email sends transactional mail through SendGrid.
package email

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// Sender delivers activation codes by email.
type Sender struct {
	client   *sendgrid.Client
	from     *mail.Email
	log      *zap.Logger
	disabled bool
}

// NewSender creates a SendGrid mailer. An empty apiKey disables sending; the
// code still reaches the buyer over Telegram.
func NewSender(apiKey, fromAddress, fromName string, log *zap.Logger) *Sender {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sender{
		client:   sendgrid.NewSendClient(apiKey),
		from:     mail.NewEmail(fromName, fromAddress),
		log:      log,
		disabled: apiKey == "",
	}
}

// SendActivationEmail mails the activation code after a completed payment.
func (s *Sender) SendActivationEmail(ctx context.Context, toEmail, code string, creditHours float64) error {
	if s.disabled {
		s.log.Debug("email sending disabled, skipping activation mail")
		return nil
	}

	html := fmt.Sprintf(`
	<div style="font-family: Arial, sans-serif; max-width: 600px; margin: auto;">
		<h2>🎉 Your Recording Credit is Ready</h2>
		<div style="background: #f4f4f4; padding: 20px; border-radius: 8px; margin: 20px 0;">
			<p><strong>Activation Code:</strong></p>
			<h1 style="color: #2c3e50; letter-spacing: 4px;">%s</h1>
			<p><strong>Credit:</strong> %.0f hours</p>
		</div>
		<p>Open the bot, choose <strong>Enter Activation Code</strong>, and paste the code above.</p>
		<p style="color: #666; font-size: 12px; margin-top: 30px;">
			Save this code until you have redeemed it.
		</p>
	</div>`, code, creditHours)

	msg := mail.NewSingleEmail(s.from,
		"✅ Your Recording Credit — Activation Code Inside",
		mail.NewEmail("", toEmail),
		fmt.Sprintf("Your activation code: %s (%.0f hours of recording credit)", code, creditHours),
		html)

	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, resp.Body)
	}
	s.log.Info("activation email sent", zap.String("to", toEmail))
	return nil
}
