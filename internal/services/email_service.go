package services

import (
	"fmt"
	"net/smtp"

	"github.com/AgusMolinaCode/bitlab/internal/config"
	"github.com/AgusMolinaCode/bitlab/internal/logger"
)

// Mailer sends password reset emails.
type Mailer interface {
	SendPasswordReset(email, token string) error
}

type EmailService struct {
	host     string
	port     string
	user     string
	pass     string
	from     string
	resetURL string
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailService(cfg *config.Config) *EmailService {
	return &EmailService{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		user:     cfg.SMTPUser,
		pass:     cfg.SMTPPass,
		from:     cfg.FromEmail,
		resetURL: cfg.ResetURL,
		send:     smtp.SendMail,
	}
}

func (s *EmailService) configured() bool {
	return s.host != "" && s.port != "" && s.user != "" && s.pass != ""
}

// SendPasswordReset mails the reset link. Without SMTP settings the token is
// logged instead so local setups keep working.
func (s *EmailService) SendPasswordReset(email, token string) error {
	if !s.configured() {
		logger.L.Info("SMTP not configured, logging reset token", "email", email, "token", token)
		return nil
	}

	auth := smtp.PlainAuth("", s.user, s.pass, s.host)
	link := fmt.Sprintf("%s?token=%s", s.resetURL, token)
	body := fmt.Sprintf(`
	<html>
	<body>
		<h2>Reset your Bitlab password</h2>
		<p>Follow the link below to choose a new password. It expires in one hour.</p>
		<p><a href="%s">%s</a></p>
		<p>If you did not ask for this, ignore this email.</p>
	</body>
	</html>
	`, link, link)

	message := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: Password reset\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/html; charset=UTF-8\r\n"+
		"\r\n"+
		"%s\r\n", s.from, email, body)

	if err := s.send(s.host+":"+s.port, auth, s.from, []string{email}, []byte(message)); err != nil {
		logger.L.Error("failed to send reset email", "email", email, "error", err)
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}
