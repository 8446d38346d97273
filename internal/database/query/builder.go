// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

// Package query builds parameterized SQL WHERE clauses for the optional
// filters on list endpoints. Conditions and their arguments stay paired, so
// a filter can never end up bound to the wrong placeholder.
package query

import (
	"strings"
	"time"
)

// WhereBuilder accumulates WHERE conditions with their bind arguments.
type WhereBuilder struct {
	clauses []string
	args    []any
}

// NewWhereBuilder returns an empty builder.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{}
}

// Clause appends a raw condition fragment with its arguments.
func (wb *WhereBuilder) Clause(clause string, args ...any) *WhereBuilder {
	wb.clauses = append(wb.clauses, clause)
	wb.args = append(wb.args, args...)
	return wb
}

// Equal appends `column = ?`.
func (wb *WhereBuilder) Equal(column string, value any) *WhereBuilder {
	return wb.Clause(column+" = ?", value)
}

// EqualIfSet appends `column = ?` unless value is empty.
func (wb *WhereBuilder) EqualIfSet(column, value string) *WhereBuilder {
	if value == "" {
		return wb
	}
	return wb.Equal(column, value)
}

// AfterIfSet appends `column >= ?` unless t is the zero time.
func (wb *WhereBuilder) AfterIfSet(column string, t time.Time) *WhereBuilder {
	if t.IsZero() {
		return wb
	}
	return wb.Clause(column+" >= ?", t)
}

// Build returns the assembled clause, starting with " WHERE " when any
// condition was added, and the bind arguments in clause order. With no
// conditions it returns an empty string.
func (wb *WhereBuilder) Build() (string, []any) {
	if len(wb.clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.clauses, " AND "), wb.args
}
