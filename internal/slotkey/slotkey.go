// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

// Package slotkey builds canonical slot keys from heterogeneous (course,
// date, session) descriptors. The portal and the user-maintained overlay
// describe the same class meeting in inconsistent notations; both sides are
// funneled through this package so that map lookups join on byte-identical
// keys.
//
// A slot key has the form {courseID}_{YYYYMMDD}_{session} where the session
// is the Roman-numeral form of the resolved session number (1 -> "I",
// 12 -> "XII") or an uppercased label for non-numeric sessions.
//
// Date parsing fails closed: an unrecognized format is an error, never a
// guess, because a silently wrong key corrupts reconciliation undetectably.
package slotkey

import (
	"fmt"
	"strconv"
	"strings"
)

var romanNumerals = [...]string{"I", "II", "III", "IV", "V", "VI", "VII", "VIII", "IX", "X", "XI", "XII"}

// romanValues maps Roman numerals I-X (the range portals emit) to integers.
var romanValues = map[string]int{
	"I": 1, "II": 2, "III": 3, "IV": 4, "V": 5,
	"VI": 6, "VII": 7, "VIII": 8, "IX": 9, "X": 10,
}

// noiseTokens are session words carrying no identity: "Session 3",
// "3rd Hour" and "Lecture 3" all denote session 3.
var noiseTokens = [...]string{"SESSION", "HOUR", "LECTURE", "LAB", "PERIOD"}

// NormalizeDate converts any supported date notation to compact YYYYMMDD.
//
// Supported inputs: ISO-8601 with a time component, YYYY-MM-DD, DD-MM-YYYY,
// DD/MM/YYYY, and bare YYYYMMDD. A 4-digit first segment means year-first; a
// 4-digit last segment means year-last. Anything else is an error.
func NormalizeDate(input string) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", fmt.Errorf("empty date")
	}

	// ISO timestamps: truncate at the time separator.
	if i := strings.IndexAny(s, "T "); i > 0 {
		s = s[:i]
	}

	// Compact YYYYMMDD.
	if len(s) == 8 && allDigits(s) {
		if err := validateYMD(s[:4], s[4:6], s[6:8]); err != nil {
			return "", fmt.Errorf("invalid date %q: %w", input, err)
		}
		return s, nil
	}

	sep := ""
	switch {
	case strings.Contains(s, "-"):
		sep = "-"
	case strings.Contains(s, "/"):
		sep = "/"
	default:
		return "", fmt.Errorf("unrecognized date format %q", input)
	}

	parts := strings.Split(s, sep)
	if len(parts) != 3 {
		return "", fmt.Errorf("unrecognized date format %q", input)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if !allDigits(parts[i]) || parts[i] == "" {
			return "", fmt.Errorf("unrecognized date format %q", input)
		}
	}

	var year, month, day string
	switch {
	case len(parts[0]) == 4: // YYYY-MM-DD
		year, month, day = parts[0], parts[1], parts[2]
	case len(parts[2]) == 4: // DD-MM-YYYY / DD/MM/YYYY
		year, month, day = parts[2], parts[1], parts[0]
	default:
		return "", fmt.Errorf("ambiguous date format %q", input)
	}

	month = pad2(month)
	day = pad2(day)
	if err := validateYMD(year, month, day); err != nil {
		return "", fmt.Errorf("invalid date %q: %w", input, err)
	}
	return year + month + day, nil
}

func validateYMD(year, month, day string) error {
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return fmt.Errorf("month out of range")
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > 31 {
		return fmt.Errorf("day out of range")
	}
	if len(year) != 4 {
		return fmt.Errorf("year must be 4 digits")
	}
	return nil
}

// NormalizeSession reduces any supported session notation to its canonical
// token: the Roman-numeral form for numeric sessions ("3", "3rd", "III",
// "Session 3", "3rd Hour" all yield "III"), or the uppercased residual for
// non-numeric labels ("Extra" yields "EXTRA").
func NormalizeSession(input string) string {
	s := strings.ToUpper(strings.TrimSpace(input))
	if s == "" {
		return ""
	}

	for _, noise := range noiseTokens {
		s = strings.ReplaceAll(s, noise, " ")
	}
	s = strings.TrimSpace(s)

	// Ordinal suffix on a number: "1ST" -> "1", "2ND" -> "2".
	fields := strings.Fields(s)
	for i, f := range fields {
		fields[i] = stripOrdinal(f)
	}
	s = strings.Join(fields, "")

	if n, ok := romanValues[s]; ok {
		return romanNumerals[n-1]
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= len(romanNumerals) {
		return romanNumerals[n-1]
	}

	// Non-numeric label: pass through uppercased, whitespace absorbed.
	return s
}

// stripOrdinal removes an English ordinal suffix from a numeric token.
func stripOrdinal(tok string) string {
	for _, suffix := range [...]string{"ST", "ND", "RD", "TH"} {
		body, found := strings.CutSuffix(tok, suffix)
		if found && body != "" && allDigits(body) {
			return body
		}
	}
	return tok
}

// Key builds the canonical slot key for (courseID, date, session).
// Two inputs describing the same class meeting always yield byte-identical
// keys; a date that cannot be normalized is an error.
func Key(courseID int, date, session string) (string, error) {
	d, err := NormalizeDate(date)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d_%s_%s", courseID, d, NormalizeSession(session)), nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
