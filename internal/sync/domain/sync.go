// Package domain defines the provider sync contract: requests, results, and
// the Syncer capability interface implemented once per vendor.
package domain

import (
	"context"
	"errors"
	"math"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	usagedomain "github.com/haoran127/costix-sub001/internal/usage/domain"
)

// Mode selects which figures a sync run fetches and persists. Only OpenAI
// distinguishes the two; other vendors ignore the field.
type Mode string

const (
	ModeUsage Mode = "usage"
	ModeCost  Mode = "cost"
)

// Request carries the caller-supplied sync parameters. Exactly one of
// AdminKey or PlatformAccountID must resolve to a usable credential.
type Request struct {
	AdminKey          string        `json:"admin_key"`
	PlatformAccountID *snowflake.ID `json:"platform_account_id"`
	Mode              Mode          `json:"mode"`

	// TenantID is resolved from the caller's identity, not the body.
	TenantID *snowflake.ID `json:"-"`
}

// MatchedKey reports one local row that received usage from this run.
type MatchedKey struct {
	APIKeyID   string  `json:"api_key_id"`
	Name       string  `json:"name"`
	Identifier string  `json:"identifier"`
	Monthly    float64 `json:"monthly"`
	Daily      float64 `json:"daily"`
}

// Result is the outcome of one provider sync run. Unmatched holds vendor
// usage with no corresponding local row, keyed by the vendor identifier; it
// is returned for visibility and never persisted.
type Result struct {
	Success     bool                   `json:"success"`
	Message     string                 `json:"message"`
	Summary     map[string]any         `json:"summary"`
	MatchedKeys []MatchedKey           `json:"matched_keys"`
	SavedCount  int                    `json:"saved_count"`
	Unmatched   map[string]float64     `json:"unmatched_keys,omitempty"`
	Errors      []usagedomain.RowError `json:"errors,omitempty"`
	Partial     bool                   `json:"partial,omitempty"`
}

// Syncer runs one full fetch/match/persist cycle for its platform.
type Syncer interface {
	Platform() accountdomain.Platform
	Sync(ctx context.Context, req Request) (*Result, error)
}

// Verifier checks an account credential without persisting usage.
type Verifier interface {
	Verify(ctx context.Context, account *accountdomain.PlatformAccount) error
}

var (
	ErrCredentialRequired = errors.New("credential_required")
	ErrUnknownPlatform    = errors.New("unknown_platform")
)

// EvenSplit divides total across n shares at 4-decimal precision. The last
// share absorbs the rounding remainder so the shares sum back to the rounded
// total.
func EvenSplit(total float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	round := func(v float64) float64 { return math.Round(v*10000) / 10000 }

	shares := make([]float64, n)
	share := round(total / float64(n))
	var allocated float64
	for i := 0; i < n-1; i++ {
		shares[i] = share
		allocated += share
	}
	shares[n-1] = round(round(total) - allocated)
	return shares
}
