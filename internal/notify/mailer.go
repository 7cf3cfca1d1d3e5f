// Package notify sends outbound notification email. The only message today is
// the password-reset mail. The mailer is a no-op when notifications are
// disabled or the SMTP host is unset, so callers never need to check the
// deployment environment before sending.
package notify

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/civicscan/civicscan/internal/config"
)

// Mailer delivers notification email over SMTP.
type Mailer struct {
	cfg config.NotificationsConfig
}

// NewMailer creates a Mailer from the notifications configuration.
func NewMailer(cfg config.NotificationsConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Enabled reports whether the mailer will actually send anything.
func (m *Mailer) Enabled() bool {
	return m.cfg.Enabled && m.cfg.SMTP.Host != ""
}

// SendPasswordReset emails a password-reset link to the user. When the mailer
// is not configured the reset URL is logged instead, which keeps local
// development working without an SMTP server.
func (m *Mailer) SendPasswordReset(toEmail, username, resetURL string, expiresAt time.Time) error {
	if !m.Enabled() {
		slog.Info("mail disabled, reset link not sent", "email", toEmail, "url", resetURL)
		return nil
	}

	subject := "CivicScan password reset"
	body := strings.Join([]string{
		fmt.Sprintf("Hello %s,", username),
		"",
		"A password reset was requested for your CivicScan account.",
		"If this was you, open the link below to choose a new password:",
		"",
		"  " + resetURL,
		"",
		fmt.Sprintf("The link expires at %s.", expiresAt.UTC().Format(time.RFC1123)),
		"",
		"If you did not request a reset, no action is needed; your password is unchanged.",
		"",
		"— CivicScan",
	}, "\r\n")

	return m.send(toEmail, subject, body)
}

// send composes headers and delivers a plain-text message.
func (m *Mailer) send(toEmail, subject, body string) error {
	smtpCfg := &m.cfg.SMTP
	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
		smtpCfg.From, toEmail, subject,
	)
	msg := []byte(headers + body + "\r\n")

	addr := fmt.Sprintf("%s:%d", smtpCfg.Host, smtpCfg.Port)
	auth := smtp.PlainAuth("", smtpCfg.Username, smtpCfg.Password, smtpCfg.Host)

	if smtpCfg.UseTLS {
		return sendMailTLS(addr, smtpCfg.Host, auth, smtpCfg.From, []string{toEmail}, msg)
	}
	return smtp.SendMail(addr, auth, smtpCfg.From, []string{toEmail}, msg)
}

// sendMailTLS connects via implicit TLS (port 465 / SMTPS) and sends a
// message. For port 587 STARTTLS, smtp.SendMail handles the upgrade itself;
// this path is used whenever UseTLS=true so the setting always means an
// encrypted connection.
func sendMailTLS(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	tlsConfig := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		// Fall back to STARTTLS via the standard smtp.SendMail path.
		return smtp.SendMail(addr, auth, from, to, msg)
	}
	defer conn.Close()

	hostname, _, _ := net.SplitHostPort(addr)
	c, err := smtp.NewClient(conn, hostname)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer c.Quit() //nolint:errcheck

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}
