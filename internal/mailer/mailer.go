package mailer

import (
	"fmt"

	"playbook/internal/config"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Notifier sends one outbound email. Callers treat it as fire-and-forget:
// delivery failures are logged, never surfaced to HTTP callers.
type Notifier interface {
	Send(to []string, subject, text, htmlBody, title string) error
}

// SMTPMailer sends mail through the configured SMTP relay with the shared
// dark HTML template around every message.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	logger *zap.Logger
}

var _ Notifier = (*SMTPMailer)(nil)

// NewSMTPMailer creates a mailer from config.
func NewSMTPMailer(cfg *config.Mail, logger *zap.Logger) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: logger,
	}
}

// Send delivers one message to all recipients.
func (m *SMTPMailer) Send(to []string, subject, text, htmlBody, title string) error {
	if len(to) == 0 {
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, "Playbook")
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", text)
	msg.AddAlternative("text/html", wrapTemplate(title, htmlBody))

	if err := m.dialer.DialAndSend(msg); err != nil {
		m.logger.Error("Failed to send email",
			zap.String("subject", subject),
			zap.Int("recipients", len(to)),
			zap.Error(err),
		)
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info("Email sent",
		zap.String("subject", subject),
		zap.Int("recipients", len(to)),
	)
	return nil
}

// wrapTemplate wraps the message content in the shared dark layout.
func wrapTemplate(title, content string) string {
	return fmt.Sprintf(`
<div style="background-color:#080808;margin:0;padding:40px 0;font-family:'Segoe UI',Tahoma,Geneva,Verdana,sans-serif;color:#eeeeee;">
  <div style="max-width:600px;margin:0 auto;background-color:#111111;border:1px solid #222222;border-radius:16px;overflow:hidden;">
    <div style="padding:30px;text-align:center;background:linear-gradient(135deg,#00f2fe 0%%,#4facfe 100%%);">
      <h1 style="margin:0;color:#000000;font-size:28px;font-weight:800;">%s</h1>
    </div>
    <div style="padding:40px 30px;line-height:1.6;">%s</div>
    <div style="padding:20px 30px;background-color:#0c0c0c;border-top:1px solid #222222;text-align:center;">
      <p style="margin:0;font-size:12px;color:#666666;">&copy; Playbook.</p>
      <p style="margin-top:20px;font-size:10px;color:#444444;">All trade ideas are for informational purposes only and should not be considered financial advice.</p>
    </div>
  </div>
</div>`, title, content)
}

// NopNotifier drops every message. Used when mail is disabled and in tests.
type NopNotifier struct{}

func (NopNotifier) Send(to []string, subject, text, htmlBody, title string) error { return nil }
