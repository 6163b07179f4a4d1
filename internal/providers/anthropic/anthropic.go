// Package anthropic pages the Anthropic organization admin APIs. Cost is
// reported per workspace_id, never per key.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	"github.com/haoran127/costix-sub001/internal/providers"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	PageCap    int
	Log        *zap.Logger
}

type Adapter struct {
	baseURL string
	http    *http.Client
	pageCap int
	log     *zap.Logger
}

func New(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.PageCap <= 0 {
		cfg.PageCap = providers.DefaultPageCap
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Adapter{
		baseURL: cfg.BaseURL,
		http:    cfg.HTTPClient,
		pageCap: cfg.PageCap,
		log:     cfg.Log.Named("providers.anthropic"),
	}
}

func (a *Adapter) Platform() accountdomain.Platform { return accountdomain.PlatformAnthropic }

type listEnvelope struct {
	Data     json.RawMessage `json:"data"`
	HasMore  bool            `json:"has_more"`
	LastID   string          `json:"last_id"`
	NextPage string          `json:"next_page"`
}

type orgKey struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	WorkspaceID    *string `json:"workspace_id"`
	Status         string  `json:"status"`
	PartialKeyHint string  `json:"partial_key_hint"`
	CreatedAt      string  `json:"created_at"`
}

type costBucket struct {
	StartingAt string       `json:"starting_at"`
	EndingAt   string       `json:"ending_at"`
	Results    []costResult `json:"results"`
}

type costResult struct {
	WorkspaceID *string `json:"workspace_id"`
	Amount      string  `json:"amount"`
	Currency    string  `json:"currency"`
}

// FetchKeys lists the organization's API keys with their workspace grouping.
func (a *Adapter) FetchKeys(ctx context.Context, adminKey string) ([]providers.KeyDescriptor, error) {
	if adminKey == "" {
		return nil, providers.ErrMissingCredential
	}

	var keys []providers.KeyDescriptor
	after := ""
	for page := 0; page < a.pageCap; page++ {
		query := url.Values{"limit": {"100"}}
		if after != "" {
			query.Set("after_id", after)
		}
		env, err := a.getList(ctx, adminKey, "/v1/organizations/api_keys", query)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			break
		}
		var batch []orgKey
		if err := json.Unmarshal(env.Data, &batch); err != nil {
			return nil, fmt.Errorf("decode api keys: %w", err)
		}
		for _, k := range batch {
			desc := providers.KeyDescriptor{
				ID:       k.ID,
				Name:     k.Name,
				Disabled: k.Status != "active",
			}
			if k.WorkspaceID != nil {
				desc.WorkspaceID = *k.WorkspaceID
			}
			if created, err := time.Parse(time.RFC3339, k.CreatedAt); err == nil {
				desc.CreatedAt = created
			}
			keys = append(keys, desc)
		}
		if !env.HasMore {
			break
		}
		after = env.LastID
	}
	return keys, nil
}

// FetchCosts pages the cost report grouped by workspace_id over the month
// window. Amounts arrive as decimal strings.
func (a *Adapter) FetchCosts(ctx context.Context, adminKey string, win providers.Window) (*providers.UsageReport, error) {
	if adminKey == "" {
		return nil, providers.ErrMissingCredential
	}

	type tally struct{ today, month float64 }
	totals := map[string]*tally{}
	report := &providers.UsageReport{}

	pageToken := ""
	for page := 0; page < a.pageCap; page++ {
		query := url.Values{
			"starting_at":  {win.MonthStart.Format(time.RFC3339)},
			"bucket_width": {"1d"},
			"group_by[]":   {"workspace_id"},
			"limit":        {"31"},
		}
		if pageToken != "" {
			query.Set("page", pageToken)
		}
		env, err := a.getList(ctx, adminKey, "/v1/organizations/cost_report", query)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			report.Partial = true
			break
		}
		var buckets []costBucket
		if err := json.Unmarshal(env.Data, &buckets); err != nil {
			return nil, fmt.Errorf("decode cost buckets: %w", err)
		}
		for _, bucket := range buckets {
			bucketStart, err := time.Parse(time.RFC3339, bucket.StartingAt)
			isToday := err == nil && !bucketStart.Before(win.DayStart)
			for _, result := range bucket.Results {
				amount, err := strconv.ParseFloat(result.Amount, 64)
				if err != nil {
					continue
				}
				workspace := ""
				if result.WorkspaceID != nil {
					workspace = *result.WorkspaceID
				}
				entry := totals[workspace]
				if entry == nil {
					entry = &tally{}
					totals[workspace] = entry
				}
				entry.month += amount
				if isToday {
					entry.today += amount
				}
			}
		}
		if !env.HasMore {
			break
		}
		pageToken = env.NextPage
	}

	for workspaceID, t := range totals {
		report.Entries = append(report.Entries, providers.UsageEntry{
			Identifier:  workspaceID,
			TodayAmount: t.today,
			MonthAmount: t.month,
			TotalAmount: t.month,
		})
	}
	return report, nil
}

// VerifyCredential probes the admin key. Rate-limit and overloaded responses
// count as valid since the credential authenticated.
func (a *Adapter) VerifyCredential(ctx context.Context, adminKey string) error {
	if adminKey == "" {
		return providers.ErrMissingCredential
	}
	_, err := a.getList(ctx, adminKey, "/v1/organizations/api_keys", url.Values{"limit": {"1"}})
	if err != nil && providers.IsRateLimited(err) {
		return nil
	}
	return err
}

func (a *Adapter) getList(ctx context.Context, adminKey, path string, query url.Values) (*listEnvelope, error) {
	endpoint := a.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", adminKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp.StatusCode, body)
	}

	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &env, nil
}

func parseError(status int, body []byte) error {
	var payload struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	message := payload.Error.Message
	if message == "" {
		message = http.StatusText(status)
	}
	return &providers.VendorError{StatusCode: status, Code: payload.Error.Type, Message: message}
}
