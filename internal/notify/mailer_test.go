// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

package notify

import (
	"context"
	"strings"
	"testing"

	"github.com/devakesu/bunkr/internal/config"
	"github.com/devakesu/bunkr/internal/models"
)

func TestBuildMessageHeaders(t *testing.T) {
	m := NewSMTPMailer(config.SMTPConfig{From: "noreply@bunkr.app"})

	msg := m.buildMessage(models.Email{
		To:      "student@example.edu",
		Subject: "Attendance conflict detected",
		HTML:    "<p>Your tracked entry disagrees with the portal.</p>",
	})

	for _, want := range []string{
		"From: Bunkr <noreply@bunkr.app>\r\n",
		"To: student@example.edu\r\n",
		"Subject: Attendance conflict detected\r\n",
		"Content-Type: text/html; charset=UTF-8\r\n",
		"<p>Your tracked entry disagrees with the portal.</p>",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}

	// Headers must be separated from the body by a blank line.
	if !strings.Contains(msg, "\r\n\r\n") {
		t.Error("message has no header/body separator")
	}
}

func TestSendRequiresRecipient(t *testing.T) {
	m := NewSMTPMailer(config.SMTPConfig{From: "noreply@bunkr.app"})

	if err := m.Send(context.Background(), models.Email{Subject: "x"}); err == nil {
		t.Error("expected error for missing recipient")
	}
}

func TestNewMailerDisabledReturnsNoop(t *testing.T) {
	m := NewMailer(config.SMTPConfig{Enabled: false})

	if _, ok := m.(NoopMailer); !ok {
		t.Errorf("expected NoopMailer when disabled, got %T", m)
	}

	// Noop must accept anything without error.
	if err := m.Send(context.Background(), models.Email{To: "a@b.c"}); err != nil {
		t.Errorf("NoopMailer.Send: %v", err)
	}
}

func TestNewMailerEnabledReturnsSMTP(t *testing.T) {
	m := NewMailer(config.SMTPConfig{Enabled: true, Host: "smtp.example.com", Port: 587})

	if _, ok := m.(*SMTPMailer); !ok {
		t.Errorf("expected SMTPMailer when enabled, got %T", m)
	}
}
