// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

// Package ezygo defines the wire types of the external attendance portal API.
// The shapes mirror the portal's JSON payloads exactly; mapping into domain
// types happens in the reconcile package.
package ezygo

// Course is one course row from the courses endpoint.
type Course struct {
	ID   int    `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// SlotCourse is the course reference embedded in an attendance slot.
// It is null for non-scheduled (holiday) periods.
type SlotCourse struct {
	ID   int    `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Slot is one (date, session) cell of the detailed attendance report.
// Attendance and Course are pointers because the portal reports holidays and
// unscheduled periods as explicit nulls; such cells carry no attendance fact
// and must never be read as "absent".
type Slot struct {
	Course     *SlotCourse `json:"course"`
	Attendance *int        `json:"attendance"`
	ClassType  string      `json:"classType"`
}

// RevisionClassType flags slots excluded from attendance totals entirely.
const RevisionClassType = "Revision"

// IsRevision reports whether the slot is a revision class.
func (s Slot) IsRevision() bool {
	return s.ClassType == RevisionClassType
}

// AttendanceDetail is the detailed attendance report payload:
// date -> session key -> slot. Date and session notations vary between
// institutions, which is why slot keys are normalized downstream.
type AttendanceDetail struct {
	StudentAttendanceData map[string]map[string]Slot `json:"studentAttendanceData"`
}
