// Package mailer delivers invitation emails. Delivery is best-effort:
// a failed send never invalidates the invitation link.
package mailer

import (
	"fmt"
	"time"

	"github.com/andrepetsch/secret-library/internal/config"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

type Mailer struct {
	cfg config.EmailConfig
	log zerolog.Logger
}

func New(cfg config.EmailConfig, log zerolog.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: log}
}

// Validate reports whether SMTP delivery is configured at all. Issuance
// consults this before attempting to send.
func (m *Mailer) Validate() bool {
	return m.cfg.Host != "" && m.cfg.Username != "" && m.cfg.Password != ""
}

// SendInvitation emails the invite link to the recipient.
func (m *Mailer) SendInvitation(to, inviteLink string, expiresAt time.Time) error {
	expiry := expiresAt.Format("January 2, 2006")

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "You are invited to Secret Library")
	msg.SetBody("text/plain", fmt.Sprintf(`Hello,

You have been invited to join Secret Library - a shared library for EPUB and PDF files.

Click the link below to accept your invitation:
%s

This invitation will expire on %s.

If you did not expect this invitation, you can safely ignore this email.

Best regards,
Secret Library Team`, inviteLink, expiry))
	msg.AddAlternative("text/html", fmt.Sprintf(`<p>You have been invited to join <strong>Secret Library</strong> - a shared library for EPUB and PDF files.</p>
<p><a href="%s">Accept Invitation</a></p>
<p>Or copy and paste this link into your browser:<br>%s</p>
<p><strong>Note:</strong> this invitation will expire on <strong>%s</strong>.</p>
<p>If you did not expect this invitation, you can safely ignore this email.</p>`, inviteLink, inviteLink, expiry))

	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send invitation email: %w", err)
	}

	m.log.Info().Str("to", to).Msg("invitation email sent")
	return nil
}
