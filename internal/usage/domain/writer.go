package domain

import (
	"context"
)

// RowError records one failed persistence attempt, keyed by the key row.
type RowError struct {
	APIKeyID string `json:"api_key_id"`
	Error    string `json:"error"`
}

// WriteSummary reports the outcome of a batch write.
type WriteSummary struct {
	SavedCount int        `json:"saved_count"`
	Errors     []RowError `json:"errors,omitempty"`
}

// Writer persists usage snapshots, at most one row per (api_key_id,
// period_start). Individual row failures are collected, never fatal for the
// batch.
type Writer interface {
	SaveAll(ctx context.Context, records []Record) WriteSummary
}
