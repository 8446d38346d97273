// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

// Package models defines the shared domain types: attendance codes, tracked
// overlay entries, official slots, and sync bookkeeping structures.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AttendanceCode is the portal's integer attendance status for one slot.
// The values mirror the portal's own status codes and are stored as-is.
type AttendanceCode int

const (
	// Present is a regular attended class.
	Present AttendanceCode = 110
	// Absent is a missed class. The only negative code.
	Absent AttendanceCode = 111
	// DutyLeave is an excused absence that still counts toward attendance.
	DutyLeave AttendanceCode = 112
	// OtherLeave is any other sanctioned leave counting toward attendance.
	OtherLeave AttendanceCode = 113
)

// IsPositive reports whether the code counts toward attendance.
// Present, DutyLeave and OtherLeave are positive; Absent is not.
func (c AttendanceCode) IsPositive() bool {
	return c == Present || c == DutyLeave || c == OtherLeave
}

// Valid reports whether c is one of the known attendance codes.
func (c AttendanceCode) Valid() bool {
	switch c {
	case Present, Absent, DutyLeave, OtherLeave:
		return true
	}
	return false
}

func (c AttendanceCode) String() string {
	switch c {
	case Present:
		return "present"
	case Absent:
		return "absent"
	case DutyLeave:
		return "duty_leave"
	case OtherLeave:
		return "other_leave"
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// EntryKind distinguishes the two tracked-overlay record kinds.
type EntryKind string

const (
	// KindExtra asserts attendance for a slot the portal has not (yet) reported.
	KindExtra EntryKind = "extra"
	// KindCorrection disputes the portal's status for an official slot.
	KindCorrection EntryKind = "correction"
)

// Valid reports whether k is a known entry kind.
func (k EntryKind) Valid() bool {
	return k == KindExtra || k == KindCorrection
}

// TrackedEntry is a user-authored overlay record. Dates and sessions are kept
// in whatever notation the user supplied; they are normalized into slot keys
// only at reconciliation time.
type TrackedEntry struct {
	ID             uuid.UUID      `json:"id"`
	UserID         uuid.UUID      `json:"user_id"`
	CourseID       int            `json:"course_id"`
	CourseName     string         `json:"course_name,omitempty"`
	Date           string         `json:"date"`
	Session        string         `json:"session"`
	AttendanceCode AttendanceCode `json:"attendance_code"`
	Kind           EntryKind      `json:"kind"`
	CreatedAt      time.Time      `json:"created_at"`
}

// OfficialSlot is one reconcilable record from the authoritative portal:
// the attendance status of (course, date, session).
type OfficialSlot struct {
	Code       AttendanceCode
	CourseID   int
	CourseName string
}

// Course is a portal course as returned by the courses endpoint.
type Course struct {
	ID   int    `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// User is an account eligible for attendance syncing. PortalCredential is the
// AES-GCM-encrypted portal access token.
type User struct {
	ID               uuid.UUID
	Email            string
	PortalCredential string
	LastSyncedAt     time.Time
}

// Notification is a structured in-app notification payload.
type Notification struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Topic       string    `json:"topic"`
	CreatedAt   time.Time `json:"created_at"`
}

// Notification topics emitted by the reconciliation classifier.
const (
	TopicRevisionRemoved  = "revision_removed"
	TopicCourseMismatch   = "course_mismatch"
	TopicAttendanceUpdate = "attendance_updated"
	TopicConflict         = "attendance_conflict"
)

// Email is an outbound email payload, dispatched best-effort.
type Email struct {
	To      string
	Subject string
	HTML    string
}
