// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

package reconcile

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/devakesu/bunkr/internal/models"
	"github.com/devakesu/bunkr/internal/slotkey"
)

// Result holds the mutation intents produced by one classification pass.
// Nothing has been applied yet: the caller performs the batched deletes and
// kind updates and dispatches the notifications and emails.
type Result struct {
	// ToDelete are tracked entries superseded, confirmed, or invalidated by
	// the official record.
	ToDelete []uuid.UUID

	// ToCorrection are extra entries escalated to disputed corrections
	// because the portal marked their slot absent.
	ToCorrection []uuid.UUID

	// Conflicts counts the escalations in ToCorrection.
	Conflicts int

	Notifications []models.Notification
	Emails        []models.Email
}

// Classify joins each tracked entry to the official map via its slot key and
// decides its fate. Rules, in order per entry:
//
//  1. Revision slot: delete. Extra entries get a "not counted" notification;
//     corrections are dropped silently (there is nothing to dispute against a
//     slot that does not count).
//  2. Course mismatch (extra entries only): the official slot belongs to a
//     different course, so the extra assertion is wrong. Delete and notify.
//     Corrections dispute the slot's status, not its course, and are never
//     deleted for mismatch.
//  3. Status resolution: official truth supersedes. A positive official code,
//     or an exact code match, deletes the entry; if the user had tracked an
//     absence that officially became positive, notify the pleasant surprise.
//     Official absent + positive extra is a genuine conflict: escalate the
//     entry to a correction and notify (plus email). Anything else stays an
//     open dispute.
//  4. No official counterpart: leave untouched until a future sync sees it.
//
// A tracked entry whose date or session cannot be normalized is an error for
// the whole pass (fail closed; a guessed key would corrupt results silently).
//
// Classify is deterministic and idempotent for a given (entries, official,
// revisions) input.
func Classify(entries []models.TrackedEntry, official OfficialMap, revisions KeySet) (*Result, error) {
	res := &Result{}

	for _, entry := range entries {
		key, err := slotKeyFor(entry)
		if err != nil {
			return nil, err
		}

		// Rule 1: revision classes do not count; purge anything tracked.
		if revisions.Has(key) {
			res.ToDelete = append(res.ToDelete, entry.ID)
			if entry.Kind == models.KindExtra {
				res.Notifications = append(res.Notifications, models.Notification{
					UserID: entry.UserID,
					Title:  "Entry removed",
					Description: fmt.Sprintf("Your tracked class for %s (%s, session %s) is a revision class and does not count toward attendance.",
						entry.CourseName, entry.Date, entry.Session),
					Topic: models.TopicRevisionRemoved,
				})
			}
			continue
		}

		slot, found := official[key]
		if !found {
			// Rule 4: the portal has not reported this slot yet.
			continue
		}

		// Rule 2: course mismatch, extra entries only.
		if entry.Kind == models.KindExtra && slot.CourseID != entry.CourseID {
			res.ToDelete = append(res.ToDelete, entry.ID)
			res.Notifications = append(res.Notifications, models.Notification{
				UserID: entry.UserID,
				Title:  "Course mismatch",
				Description: fmt.Sprintf("Your tracked class on %s session %s was recorded for %s, not %s. The entry has been removed.",
					entry.Date, entry.Session, slot.CourseName, entry.CourseName),
				Topic: models.TopicCourseMismatch,
			})
			continue
		}

		// Rule 3: status resolution.
		officialPositive := slot.Code.IsPositive()
		trackedPositive := entry.AttendanceCode.IsPositive()

		switch {
		case officialPositive || slot.Code == entry.AttendanceCode:
			res.ToDelete = append(res.ToDelete, entry.ID)
			if officialPositive && !trackedPositive {
				res.Notifications = append(res.Notifications, models.Notification{
					UserID: entry.UserID,
					Title:  "Attendance updated",
					Description: fmt.Sprintf("Good news: %s on %s session %s is now officially marked %s.",
						slot.CourseName, entry.Date, entry.Session, slot.Code),
					Topic: models.TopicAttendanceUpdate,
				})
			}

		case slot.Code == models.Absent && trackedPositive && entry.Kind == models.KindExtra:
			// Genuine conflict: the user claims presence, the portal says
			// absent. Escalate to a disputed correction.
			res.ToCorrection = append(res.ToCorrection, entry.ID)
			res.Conflicts++
			desc := fmt.Sprintf("%s on %s session %s is officially marked absent but you tracked it as %s. The entry is now a pending correction.",
				slot.CourseName, entry.Date, entry.Session, entry.AttendanceCode)
			res.Notifications = append(res.Notifications, models.Notification{
				UserID:      entry.UserID,
				Title:       "Attendance conflict",
				Description: desc,
				Topic:       models.TopicConflict,
			})
			res.Emails = append(res.Emails, models.Email{
				Subject: "Attendance conflict detected",
				HTML:    fmt.Sprintf("<p>%s</p>", desc),
			})

		default:
			// Open dispute (correction against an official absence) or a
			// tracked absence the portal agrees is unresolved: leave it.
		}
	}

	return res, nil
}

func slotKeyFor(entry models.TrackedEntry) (string, error) {
	key, err := slotkey.Key(entry.CourseID, entry.Date, entry.Session)
	if err != nil {
		return "", fmt.Errorf("tracked entry %s: %w", entry.ID, err)
	}
	return key, nil
}
