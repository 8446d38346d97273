// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

// Package reconcile implements the attendance reconciliation core: building
// the official slot lookup from portal payloads, classifying tracked overlay
// entries against it, and aggregating the merged statistics.
//
// Everything in this package is pure: the classifier returns mutation intents
// and notification payloads, it never touches the store or the network. The
// sync orchestrator applies the intents.
package reconcile

import (
	"fmt"

	"github.com/devakesu/bunkr/internal/models"
	"github.com/devakesu/bunkr/internal/models/ezygo"
	"github.com/devakesu/bunkr/internal/slotkey"
)

// OfficialMap is the keyed lookup of the portal's attendance status per slot.
type OfficialMap map[string]models.OfficialSlot

// KeySet is a set of slot keys.
type KeySet map[string]struct{}

// Has reports membership.
func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// BuildOfficialMap walks the portal's detailed attendance payload and returns
// the official slot lookup plus the set of revision-class keys.
//
// Cells with a null course or null attendance are holidays or unscheduled
// periods: they produce no key and are never treated as absent. Revision
// slots never enter the official map; they are excluded from attendance
// totals by definition, but their keys are recorded so the classifier can
// purge tracked entries referencing them. When the payload repeats a key,
// the last-seen cell wins (the portal emits cells in stable chronological
// order, which is not independently validated here).
func BuildOfficialMap(detail *ezygo.AttendanceDetail) (OfficialMap, KeySet, error) {
	official := make(OfficialMap)
	revisions := make(KeySet)

	if detail == nil {
		return official, revisions, nil
	}

	for date, sessions := range detail.StudentAttendanceData {
		for session, slot := range sessions {
			if slot.Course == nil || slot.Attendance == nil {
				continue
			}

			key, err := slotkey.Key(slot.Course.ID, date, session)
			if err != nil {
				return nil, nil, fmt.Errorf("official slot (%s, %s): %w", date, session, err)
			}

			if slot.IsRevision() {
				revisions[key] = struct{}{}
				continue
			}

			official[key] = models.OfficialSlot{
				Code:       models.AttendanceCode(*slot.Attendance),
				CourseID:   slot.Course.ID,
				CourseName: slot.Course.Name,
			}
		}
	}

	return official, revisions, nil
}
