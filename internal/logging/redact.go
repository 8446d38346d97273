// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

package logging

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Identifier redaction for log lines. User identifiers and portal usernames
// must never appear verbatim in logs; instead they are replaced with a short
// keyed digest that stays stable within one process, so related log lines can
// still be correlated without exposing the identifier itself.

const redactDigestLen = 12 // hex chars of the HMAC digest kept in log output

var (
	redactKey     []byte
	redactKeyOnce sync.Once
)

// SetRedactionKey installs the HMAC key used for identifier redaction.
// Call once at startup with a secret from configuration. If never called,
// a random per-process key is generated on first use.
func SetRedactionKey(key string) {
	redactKeyOnce.Do(func() {
		redactKey = []byte(key)
	})
}

func redactionKey() []byte {
	redactKeyOnce.Do(func() {
		k := make([]byte, 32)
		// rand.Read never fails on supported platforms; a zero key only
		// weakens correlation, not confidentiality of the original value.
		_, _ = rand.Read(k)
		redactKey = k
	})
	return redactKey
}

// Redact returns a short stable HMAC-SHA256 digest of value for log output.
// Empty input maps to the empty string.
func Redact(value string) string {
	if value == "" {
		return ""
	}
	mac := hmac.New(sha256.New, redactionKey())
	mac.Write([]byte(value))
	digest := hex.EncodeToString(mac.Sum(nil))
	return digest[:redactDigestLen]
}

// RedactUserID redacts a user identifier with a recognizable prefix.
func RedactUserID(id string) string {
	if id == "" {
		return ""
	}
	return "u:" + Redact(id)
}
