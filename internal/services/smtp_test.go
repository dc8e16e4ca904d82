package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/cvsync/internal/shared"
)

// fakeSMTP accepts connections on a loopback port and captures the DATA section of every message.
type fakeSMTP struct {
	ln       net.Listener
	messages chan string
	rcptCode int
}

func newFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	s := &fakeSMTP{ln: ln, messages: make(chan string, 4), rcptCode: 250}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeSMTP) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTP) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeSMTP) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	reply := func(line string) { fmt.Fprintf(conn, "%s\r\n", line) }

	reply("220 localhost ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 localhost")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO"):
			reply(strconv.Itoa(s.rcptCode) + " recipient status")
		case cmd == "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
			var data strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				data.WriteString(l)
			}
			s.messages <- data.String()
			reply("250 OK queued")
		case cmd == "QUIT":
			reply("221 Bye")
			return
		default:
			reply("502 Command not implemented")
		}
	}
}

func testEmailConfig(port int) shared.EmailConfig {
	return shared.EmailConfig{
		Enabled:    true,
		Recipient:  "student@example.com",
		SMTPServer: "127.0.0.1",
		SMTPPort:   port,
		FromName:   "Canvas Scraper",
		Username:   "sender@example.com",
	}
}

func TestSMTPNotifier(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		if _, err := NewSMTPNotifier(shared.EmailConfig{}); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("Send", func(t *testing.T) {
		server := newFakeSMTP(t)
		n, err := NewSMTPNotifier(testEmailConfig(server.port()))
		if err != nil {
			t.Fatalf("failed to create notifier: %v", err)
		}
		n.now = func() time.Time { return time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC) }

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := n.Send(ctx, "Canvas Scraper Report - September 01, 2025 at 12:00 PM", "<p>hello</p>"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		select {
		case msg := <-server.messages:
			for _, want := range []string{
				`From: "Canvas Scraper" <sender@example.com>`,
				"To: <student@example.com>",
				"Subject: Canvas Scraper Report - September 01, 2025 at 12:00 PM",
				"Content-Type: text/html; charset=UTF-8",
				"<p>hello</p>",
			} {
				if !strings.Contains(msg, want) {
					t.Errorf("expected message to contain %q\n%s", want, msg)
				}
			}
		case <-ctx.Done():
			t.Fatal("no message received")
		}
	})

	t.Run("SendTest", func(t *testing.T) {
		server := newFakeSMTP(t)
		n, _ := NewSMTPNotifier(testEmailConfig(server.port()))

		if err := n.SendTest(context.Background()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		msg := <-server.messages
		if !strings.Contains(msg, "Test Email") {
			t.Errorf("expected test subject, got\n%s", msg)
		}
	})

	t.Run("TestConnection", func(t *testing.T) {
		server := newFakeSMTP(t)
		n, _ := NewSMTPNotifier(testEmailConfig(server.port()))

		if err := n.TestConnection(context.Background()); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("Rejected Recipient", func(t *testing.T) {
		server := newFakeSMTP(t)
		server.rcptCode = 550
		n, _ := NewSMTPNotifier(testEmailConfig(server.port()))

		err := n.Send(context.Background(), "s", "b")
		if !errors.Is(err, shared.ErrNotifyFailed) {
			t.Errorf("expected ErrNotifyFailed, got %v", err)
		}
	})

	t.Run("Unreachable Server", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("failed to listen: %v", err)
		}
		port := ln.Addr().(*net.TCPAddr).Port
		ln.Close()

		n, _ := NewSMTPNotifier(testEmailConfig(port))
		if err := n.Send(context.Background(), "s", "b"); !errors.Is(err, shared.ErrNotifyFailed) {
			t.Errorf("expected ErrNotifyFailed, got %v", err)
		}
	})

	t.Run("Invalid Recipient", func(t *testing.T) {
		cfg := testEmailConfig(25)
		cfg.Recipient = "not an address"
		n, _ := NewSMTPNotifier(cfg)

		if err := n.Send(context.Background(), "s", "b"); !errors.Is(err, shared.ErrNotifyFailed) {
			t.Errorf("expected ErrNotifyFailed, got %v", err)
		}
	})
}
