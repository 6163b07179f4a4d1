// Package providers contains the vendor usage API clients and the types they
// normalize vendor responses into.
package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// DefaultPageCap bounds vendor pagination loops regardless of the vendor's
// has_more flag.
const DefaultPageCap = 20

var (
	ErrMissingCredential = errors.New("missing_credential")
	ErrFirstPageFailed   = errors.New("first_page_failed")
)

// VendorError carries the vendor's HTTP status and error code so handlers can
// mirror them.
type VendorError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *VendorError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("vendor error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("vendor error %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited reports whether err is a vendor rate-limit/overload response.
// During credential verification this counts as proof the credential
// authenticated.
func IsRateLimited(err error) bool {
	var vendorErr *VendorError
	if !errors.As(err, &vendorErr) {
		return false
	}
	switch vendorErr.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	}
	return vendorErr.Code == "overloaded_error" || vendorErr.Code == "rate_limit_exceeded"
}

// Window is the pair of UTC aggregation windows a sync run reports against.
type Window struct {
	Now        time.Time
	DayStart   time.Time
	MonthStart time.Time
}

// WindowAt derives UTC day and month boundaries from the given instant.
func WindowAt(now time.Time) Window {
	now = now.UTC()
	return Window{
		Now:        now,
		DayStart:   time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		MonthStart: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC),
	}
}

// UsageEntry is one normalized vendor usage/cost record. Identifier semantics
// are vendor-specific: api_key_id, project_id, workspace_id, key hash, or the
// synthetic org-wide bucket.
type UsageEntry struct {
	Identifier  string
	Name        string
	TodayAmount float64
	MonthAmount float64
	TotalAmount float64
	Balance     *float64
	CreditLimit *float64
	Raw         json.RawMessage
}

// UsageReport is the normalized result of one vendor fetch. Partial marks a
// report truncated by a failure after the first page.
type UsageReport struct {
	Entries []UsageEntry
	Partial bool
}

// KeyDescriptor describes one vendor-side API key.
type KeyDescriptor struct {
	ID          string
	Name        string
	ProjectID   string
	WorkspaceID string
	Hash        string
	Disabled    bool
	Limit       *float64
	Usage       float64
	CreatedAt   time.Time
	Raw         json.RawMessage
}
