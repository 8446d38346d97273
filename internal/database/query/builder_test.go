// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

package query

import (
	"testing"
	"time"
)

func TestEmptyBuilder(t *testing.T) {
	clause, args := NewWhereBuilder().Build()
	if clause != "" {
		t.Errorf("clause = %q, want empty", clause)
	}
	if len(args) != 0 {
		t.Errorf("args = %v, want none", args)
	}
}

func TestConditionsJoinWithAnd(t *testing.T) {
	wb := NewWhereBuilder().
		Equal("user_id", "abc").
		Equal("topic", "conflict")

	clause, args := wb.Build()
	want := " WHERE user_id = ? AND topic = ?"
	if clause != want {
		t.Errorf("clause = %q, want %q", clause, want)
	}
	if len(args) != 2 || args[0] != "abc" || args[1] != "conflict" {
		t.Errorf("args = %v, want [abc conflict]", args)
	}
}

func TestConditionalHelpersSkipUnset(t *testing.T) {
	wb := NewWhereBuilder().
		Equal("user_id", "abc").
		EqualIfSet("topic", "").
		AfterIfSet("created_at", time.Time{})

	clause, args := wb.Build()
	if clause != " WHERE user_id = ?" {
		t.Errorf("clause = %q, want user_id condition only", clause)
	}
	if len(args) != 1 {
		t.Errorf("args = %v, want single argument", args)
	}
}

func TestAfterIfSetWithTime(t *testing.T) {
	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	clause, args := NewWhereBuilder().AfterIfSet("created_at", since).Build()
	if clause != " WHERE created_at >= ?" {
		t.Errorf("clause = %q", clause)
	}
	if len(args) != 1 || args[0] != since {
		t.Errorf("args = %v, want [%v]", args, since)
	}
}

func TestRawClauseArgsStayOrdered(t *testing.T) {
	wb := NewWhereBuilder().
		Clause("kind IN (?, ?)", "extra", "correction").
		Equal("course_id", 42)

	clause, args := wb.Build()
	if clause != " WHERE kind IN (?, ?) AND course_id = ?" {
		t.Errorf("clause = %q", clause)
	}
	if len(args) != 3 || args[2] != 42 {
		t.Errorf("args = %v, want extra, correction, 42", args)
	}
}
