// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

package models

// SyncStats are the per-user reconciliation counters, summed across a batch.
type SyncStats struct {
	Processed int `json:"processed"`
	Deletions int `json:"deletions"`
	Conflicts int `json:"conflicts"`
	Updates   int `json:"updates"`
	Errors    int `json:"errors"`
}

// Add accumulates other into s.
func (s *SyncStats) Add(other SyncStats) {
	s.Processed += other.Processed
	s.Deletions += other.Deletions
	s.Conflicts += other.Conflicts
	s.Updates += other.Updates
	s.Errors += other.Errors
}

// BatchStatus is the tri-state outcome of a batch sync run. "some users
// failed" is operationally different from "everything failed", so callers
// must be able to tell the three apart.
type BatchStatus string

const (
	BatchSuccess BatchStatus = "success"
	BatchPartial BatchStatus = "partial"
	BatchFailed  BatchStatus = "failed"
)

// DeriveBatchStatus computes the overall outcome from per-user error counts.
// A batch with no users is a success (there was nothing to fail).
func DeriveBatchStatus(totalUsers, erroredUsers int) BatchStatus {
	switch {
	case erroredUsers == 0:
		return BatchSuccess
	case erroredUsers < totalUsers:
		return BatchPartial
	default:
		return BatchFailed
	}
}

// BatchResult is the aggregated outcome of one sync batch.
type BatchResult struct {
	Status BatchStatus `json:"status"`
	Users  int         `json:"users"`
	Stats  SyncStats   `json:"stats"`
}
