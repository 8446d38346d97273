// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

package reconcile

import (
	"fmt"

	"github.com/devakesu/bunkr/internal/models"
	"github.com/devakesu/bunkr/internal/slotkey"
)

// Stats are the merged attendance statistics for one user.
//
// The three present sources are disjoint slot sets by construction: official
// positive slots (real), official-absent slots overridden positive by a
// correction, and tracker-only slots marked positive. Final present is their
// sum; final total is the official total plus the tracker-only entry count.
type Stats struct {
	// Official-source-only totals.
	RealPresent int `json:"real_present"`
	RealAbsent  int `json:"real_absent"`
	RealTotal   int `json:"real_total"`
	RealDL      int `json:"real_duty_leave"`
	RealOther   int `json:"real_other_leave"`

	// Correction overlays on official slots.
	CorrectionPresent int `json:"correction_present"`
	SavedAbsent       int `json:"saved_absent"`
	CorrectionDL      int `json:"correction_duty_leave"`

	// Tracker-only extras with no official counterpart.
	ExtraPresent int `json:"extra_present"`
	ExtraAbsent  int `json:"extra_absent"`
	ExtraDL      int `json:"extra_duty_leave"`
	ExtrasCount  int `json:"extras_count"`

	FinalPresent int     `json:"final_present"`
	FinalTotal   int     `json:"final_total"`
	RealPercent  float64 `json:"real_percent"`
	FinalPercent float64 `json:"final_percent"`

	Courses map[int]*CourseStats `json:"courses,omitempty"`
}

// CourseStats is the per-course breakdown of the same counters.
type CourseStats struct {
	CourseName   string  `json:"course_name"`
	Present      int     `json:"present"`
	Absent       int     `json:"absent"`
	Total        int     `json:"total"`
	FinalPercent float64 `json:"final_percent"`
}

// Aggregate walks the official map once and the tracked entries once and
// produces the merged statistics. Percentages are guarded against empty
// totals (0 classes yields 0%, not NaN).
func Aggregate(official OfficialMap, revisions KeySet, entries []models.TrackedEntry) (*Stats, error) {
	s := &Stats{Courses: make(map[int]*CourseStats)}

	for _, slot := range official {
		s.RealTotal++
		course := s.courseFor(slot.CourseID, slot.CourseName)
		course.Total++

		switch {
		case slot.Code.IsPositive():
			s.RealPresent++
			course.Present++
			if slot.Code == models.DutyLeave {
				s.RealDL++
			}
			if slot.Code == models.OtherLeave {
				s.RealOther++
			}
		case slot.Code == models.Absent:
			s.RealAbsent++
			course.Absent++
		}
	}

	for _, entry := range entries {
		key, err := slotkey.Key(entry.CourseID, entry.Date, entry.Session)
		if err != nil {
			return nil, fmt.Errorf("tracked entry %s: %w", entry.ID, err)
		}

		if revisions.Has(key) {
			// Revision classes count toward nothing.
			continue
		}

		course := s.courseFor(entry.CourseID, entry.CourseName)

		if slot, found := official[key]; found {
			if entry.Kind != models.KindCorrection {
				// An extra with an official counterpart has been (or will
				// be) reconciled away; counting it here would double-count
				// the official slot.
				continue
			}
			if !slot.Code.IsPositive() && entry.AttendanceCode.IsPositive() {
				s.CorrectionPresent++
				s.SavedAbsent++
				course.Present++
				course.Absent--
			}
			if slot.Code != models.DutyLeave && entry.AttendanceCode == models.DutyLeave {
				s.CorrectionDL++
			}
			continue
		}

		if entry.Kind != models.KindExtra {
			// A correction whose disputed slot has not appeared yet carries
			// no countable fact.
			continue
		}

		s.ExtrasCount++
		course.Total++
		switch {
		case entry.AttendanceCode.IsPositive():
			s.ExtraPresent++
			course.Present++
			if entry.AttendanceCode == models.DutyLeave {
				s.ExtraDL++
			}
		case entry.AttendanceCode == models.Absent:
			s.ExtraAbsent++
			course.Absent++
		}
	}

	s.FinalPresent = s.RealPresent + s.CorrectionPresent + s.ExtraPresent
	s.FinalTotal = s.RealTotal + s.ExtrasCount
	s.RealPercent = percent(s.RealPresent, s.RealTotal)
	s.FinalPercent = percent(s.FinalPresent, s.FinalTotal)

	for _, course := range s.Courses {
		course.FinalPercent = percent(course.Present, course.Total)
	}

	return s, nil
}

func (s *Stats) courseFor(id int, name string) *CourseStats {
	course, ok := s.Courses[id]
	if !ok {
		course = &CourseStats{CourseName: name}
		s.Courses[id] = course
	}
	if course.CourseName == "" {
		course.CourseName = name
	}
	return course
}

func percent(present, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(present) / float64(total) * 100
}

// MustAttend answers "how many future classes must I attend, skipping none,
// to reach target percent". It solves (present+x)/(total+x) >= target/100,
// rounding up and clamping to non-negative. A target of 100% or more with an
// existing absence can never be reached; that case returns -1.
func MustAttend(present, total int, target float64) int {
	if target <= 0 || percent(present, total) >= target {
		return 0
	}
	if target >= 100 {
		if present == total {
			return 0
		}
		return -1
	}
	// x >= (target*total - 100*present) / (100 - target)
	x := (target*float64(total) - 100*float64(present)) / (100 - target)
	n := int(x)
	if float64(n) < x {
		n++
	}
	if n < 0 {
		n = 0
	}
	return n
}

// CanSkip answers "how many future classes can I miss while staying at or
// above target percent". It solves present/(total+y) >= target/100, rounding
// down and clamping to non-negative. A target of 0 or below means every
// class is skippable; that case returns -1 as "unbounded".
func CanSkip(present, total int, target float64) int {
	if target <= 0 {
		return -1
	}
	if percent(present, total) < target {
		return 0
	}
	// y <= (100*present - target*total) / target
	y := (100*float64(present) - target*float64(total)) / target
	n := int(y)
	if n < 0 {
		n = 0
	}
	return n
}
