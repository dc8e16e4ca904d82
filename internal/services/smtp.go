package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"

	"github.com/desertthunder/cvsync/internal/shared"
)

const smtpDialTimeout = 10 * time.Second

// SMTPNotifier delivers HTML reports over SMTP, upgrading with STARTTLS when the server offers it.
type SMTPNotifier struct {
	cfg shared.EmailConfig
	now func() time.Time
}

// NewSMTPNotifier creates an SMTPNotifier. Recipient, server and port are required.
func NewSMTPNotifier(cfg shared.EmailConfig) (*SMTPNotifier, error) {
	if cfg.Recipient == "" || cfg.SMTPServer == "" || cfg.SMTPPort <= 0 {
		return nil, fmt.Errorf("%w: email recipient, smtp server and port are required", shared.ErrInvalidConfig)
	}
	return &SMTPNotifier{cfg: cfg, now: time.Now}, nil
}

// Send delivers an HTML message to the configured recipient.
func (s *SMTPNotifier) Send(ctx context.Context, subject, htmlBody string) error {
	msg, err := s.buildMessage(subject, htmlBody)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrNotifyFailed, err)
	}

	if err := s.deliver(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrNotifyFailed, err)
	}
	return nil
}

// SendTest delivers a short message confirming the settings work.
func (s *SMTPNotifier) SendTest(ctx context.Context) error {
	body := fmt.Sprintf(`<html><body><h2>Test email</h2><p>Your email settings work. Sent %s.</p></body></html>`,
		s.now().UTC().Format("2006-01-02 15:04:05 UTC"))
	return s.Send(ctx, "Canvas Scraper - Test Email", body)
}

// TestConnection connects, negotiates TLS and authenticates without sending a message.
func (s *SMTPNotifier) TestConnection(ctx context.Context) error {
	client, err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrNotifyFailed, err)
	}
	defer client.Close()

	if err := client.Quit(); err != nil {
		return fmt.Errorf("%w: quit: %w", shared.ErrNotifyFailed, err)
	}
	return nil
}

func (s *SMTPNotifier) from() string {
	addr := s.cfg.Username
	if addr == "" {
		addr = s.cfg.Recipient
	}
	return addr
}

func (s *SMTPNotifier) buildMessage(subject, htmlBody string) ([]byte, error) {
	from := mail.Address{Name: s.cfg.FromName, Address: s.from()}
	to, err := mail.ParseAddress(s.cfg.Recipient)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", s.cfg.Recipient, err)
	}

	headers := [][2]string{
		{"From", from.String()},
		{"To", to.String()},
		{"Subject", mime.QEncoding.Encode("utf-8", subject)},
		{"Date", s.now().Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
	}

	var msg bytes.Buffer
	for _, h := range headers {
		fmt.Fprintf(&msg, "%s: %s\r\n", h[0], h[1])
	}
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)
	return msg.Bytes(), nil
}

func (s *SMTPNotifier) connect(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(s.cfg.SMTPServer, strconv.Itoa(s.cfg.SMTPPort))

	dialer := &net.Dialer{Timeout: smtpDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.SMTPServer)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.SMTPServer}); err != nil {
			client.Close()
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	if s.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPServer)
			if err := client.Auth(auth); err != nil {
				client.Close()
				return nil, fmt.Errorf("SMTP authentication failed: %w", err)
			}
		}
	}
	return client, nil
}

func (s *SMTPNotifier) deliver(ctx context.Context, msg []byte) error {
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(s.from()); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	to, _ := mail.ParseAddress(s.cfg.Recipient)
	if err := client.Rcpt(to.Address); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to send DATA command: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close message writer: %w", err)
	}

	return client.Quit()
}
