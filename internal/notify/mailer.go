// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

// Package notify handles outbound user-facing messages. In-app notifications
// are persisted by the sync orchestrator; this package covers the email
// channel, which is strictly best effort and never fails a sync batch.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/devakesu/bunkr/internal/config"
	"github.com/devakesu/bunkr/internal/logging"
	"github.com/devakesu/bunkr/internal/metrics"
	"github.com/devakesu/bunkr/internal/models"
)

// Mailer delivers a single email.
type Mailer interface {
	Send(ctx context.Context, email models.Email) error
}

// SMTPMailer sends mail over plain SMTP with STARTTLS.
type SMTPMailer struct {
	cfg     config.SMTPConfig
	timeout time.Duration
}

// NewSMTPMailer builds a mailer from the SMTP configuration.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, timeout: 15 * time.Second}
}

// Send delivers one email. Callers treat failures as non-fatal; the error is
// returned for logging and metrics only.
func (m *SMTPMailer) Send(ctx context.Context, email models.Email) error {
	if email.To == "" {
		return fmt.Errorf("email has no recipient")
	}

	msg := m.buildMessage(email)
	err := m.sendSMTP(ctx, email.To, msg)

	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.NotificationsDispatched.WithLabelValues("email", result).Inc()
	return err
}

func (m *SMTPMailer) buildMessage(email models.Email) string {
	var msg strings.Builder

	msg.WriteString(fmt.Sprintf("From: Bunkr <%s>\r\n", m.cfg.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", email.To))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", email.Subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(email.HTML)

	return msg.String()
}

func (m *SMTPMailer) sendSMTP(ctx context.Context, to, msg string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	dialer := &net.Dialer{Timeout: m.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() { _ = conn.Close() }()

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{
			ServerName: m.cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if m.cfg.Username != "" && m.cfg.Password != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start message: %w", err)
	}
	if _, err := writer.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close message: %w", err)
	}

	// Quit failures after a successful DATA are ignored; the message
	// was accepted.
	if err := client.Quit(); err != nil {
		logging.Debug().Err(err).Msg("SMTP quit failed after delivery")
	}
	return nil
}

// NoopMailer drops every email. Used when SMTP is disabled.
type NoopMailer struct{}

func (NoopMailer) Send(_ context.Context, email models.Email) error {
	logging.Debug().
		Str("to", logging.Redact(email.To)).
		Str("subject", email.Subject).
		Msg("Email delivery disabled, dropping message")
	return nil
}

// NewMailer returns the configured mailer, or a no-op one when the email
// channel is disabled.
func NewMailer(cfg config.SMTPConfig) Mailer {
	if !cfg.Enabled {
		return NoopMailer{}
	}
	return NewSMTPMailer(cfg)
}
