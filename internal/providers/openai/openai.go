// Package openai pages the OpenAI organization admin APIs. Usage buckets are
// grouped by api_key_id; cost buckets carry project granularity only.
package openai

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

const defaultBaseURL = "https://api.openai.com"

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
		log:     cfg.Log.Named("providers.openai"),
	}
}

func (a *Adapter) Platform() accountdomain.Platform { return accountdomain.PlatformOpenAI }

type listEnvelope struct {
	Data     json.RawMessage `json:"data"`
	HasMore  bool            `json:"has_more"`
	LastID   string          `json:"last_id"`
	NextPage string          `json:"next_page"`
}

type project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type projectKey struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
}

type usageBucket struct {
	StartTime int64         `json:"start_time"`
	EndTime   int64         `json:"end_time"`
	Results   []usageResult `json:"results"`
}

type usageResult struct {
	APIKeyID     *string `json:"api_key_id"`
	ProjectID    *string `json:"project_id"`
	InputTokens  float64 `json:"input_tokens"`
	OutputTokens float64 `json:"output_tokens"`
	Amount       *struct {
		Value    float64 `json:"value"`
		Currency string  `json:"currency"`
	} `json:"amount"`
}

// FetchKeys lists every project's API keys, producing the
// api_key_id -> name mapping the reconciler matches through.
func (a *Adapter) FetchKeys(ctx context.Context, adminKey string) ([]providers.KeyDescriptor, error) {
	if adminKey == "" {
		return nil, providers.ErrMissingCredential
	}

	projects, err := a.fetchProjects(ctx, adminKey)
	if err != nil {
		return nil, err
	}

	var keys []providers.KeyDescriptor
	for _, proj := range projects {
		projKeys, err := a.fetchProjectKeys(ctx, adminKey, proj.ID)
		if err != nil {
			// a missing project's keys should not sink the whole listing
			a.log.Warn("project key listing failed",
				zap.String("project_id", proj.ID),
				zap.Error(err),
			)
			continue
		}
		keys = append(keys, projKeys...)
	}
	return keys, nil
}

func (a *Adapter) fetchProjects(ctx context.Context, adminKey string) ([]project, error) {
	var projects []project
	after := ""
	for page := 0; page < a.pageCap; page++ {
		query := url.Values{"limit": {"100"}}
		if after != "" {
			query.Set("after", after)
		}
		env, err := a.getList(ctx, adminKey, "/v1/organization/projects", query)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			break
		}
		var batch []project
		if err := json.Unmarshal(env.Data, &batch); err != nil {
			return nil, fmt.Errorf("decode projects: %w", err)
		}
		projects = append(projects, batch...)
		if !env.HasMore {
			break
		}
		after = env.LastID
	}
	return projects, nil
}

func (a *Adapter) fetchProjectKeys(ctx context.Context, adminKey, projectID string) ([]providers.KeyDescriptor, error) {
	var keys []providers.KeyDescriptor
	after := ""
	for page := 0; page < a.pageCap; page++ {
		query := url.Values{"limit": {"100"}}
		if after != "" {
			query.Set("after", after)
		}
		path := fmt.Sprintf("/v1/organization/projects/%s/api_keys", projectID)
		env, err := a.getList(ctx, adminKey, path, query)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			break
		}
		var batch []projectKey
		if err := json.Unmarshal(env.Data, &batch); err != nil {
			return nil, fmt.Errorf("decode project keys: %w", err)
		}
		for _, k := range batch {
			keys = append(keys, providers.KeyDescriptor{
				ID:        k.ID,
				Name:      k.Name,
				ProjectID: projectID,
				CreatedAt: time.Unix(k.CreatedAt, 0).UTC(),
			})
		}
		if !env.HasMore {
			break
		}
		after = env.LastID
	}
	return keys, nil
}

// FetchUsage pages the completions usage endpoint grouped by api_key_id.
// Token usage per bucket is input_tokens + output_tokens.
func (a *Adapter) FetchUsage(ctx context.Context, adminKey string, win providers.Window) (*providers.UsageReport, error) {
	if adminKey == "" {
		return nil, providers.ErrMissingCredential
	}

	type tally struct{ today, month float64 }
	totals := map[string]*tally{}
	report := &providers.UsageReport{}

	pageToken := ""
	for page := 0; page < a.pageCap; page++ {
		query := url.Values{
			"start_time":   {strconv.FormatInt(win.MonthStart.Unix(), 10)},
			"bucket_width": {"1d"},
			"group_by":     {"api_key_id"},
			"limit":        {"31"},
		}
		if pageToken != "" {
			query.Set("page", pageToken)
		}
		env, err := a.getList(ctx, adminKey, "/v1/organization/usage/completions", query)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			report.Partial = true
			break
		}
		var buckets []usageBucket
		if err := json.Unmarshal(env.Data, &buckets); err != nil {
			return nil, fmt.Errorf("decode usage buckets: %w", err)
		}
		for _, bucket := range buckets {
			isToday := bucket.StartTime >= win.DayStart.Unix()
			for _, result := range bucket.Results {
				if result.APIKeyID == nil || *result.APIKeyID == "" {
					continue
				}
				tokens := result.InputTokens + result.OutputTokens
				entry := totals[*result.APIKeyID]
				if entry == nil {
					entry = &tally{}
					totals[*result.APIKeyID] = entry
				}
				entry.month += tokens
				if isToday {
					entry.today += tokens
				}
			}
		}
		if !env.HasMore {
			break
		}
		pageToken = env.NextPage
	}

	for keyID, t := range totals {
		report.Entries = append(report.Entries, providers.UsageEntry{
			Identifier:  keyID,
			TodayAmount: t.today,
			MonthAmount: t.month,
			TotalAmount: t.month,
		})
	}
	return report, nil
}

// FetchCosts pages the costs endpoint. OpenAI reports cost at project
// granularity only; per-key attribution happens upstream by even split.
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
			"start_time":   {strconv.FormatInt(win.MonthStart.Unix(), 10)},
			"bucket_width": {"1d"},
			"group_by":     {"project_id"},
			"limit":        {"31"},
		}
		if pageToken != "" {
			query.Set("page", pageToken)
		}
		env, err := a.getList(ctx, adminKey, "/v1/organization/costs", query)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			report.Partial = true
			break
		}
		var buckets []usageBucket
		if err := json.Unmarshal(env.Data, &buckets); err != nil {
			return nil, fmt.Errorf("decode cost buckets: %w", err)
		}
		for _, bucket := range buckets {
			isToday := bucket.StartTime >= win.DayStart.Unix()
			for _, result := range bucket.Results {
				if result.ProjectID == nil || result.Amount == nil {
					continue
				}
				entry := totals[*result.ProjectID]
				if entry == nil {
					entry = &tally{}
					totals[*result.ProjectID] = entry
				}
				entry.month += result.Amount.Value
				if isToday {
					entry.today += result.Amount.Value
				}
			}
		}
		if !env.HasMore {
			break
		}
		pageToken = env.NextPage
	}

	for projectID, t := range totals {
		report.Entries = append(report.Entries, providers.UsageEntry{
			Identifier:  projectID,
			TodayAmount: t.today,
			MonthAmount: t.month,
			TotalAmount: t.month,
		})
	}
	return report, nil
}

// VerifyCredential probes the admin key with a minimal listing. A rate-limit
// response proves the credential authenticated and counts as valid.
func (a *Adapter) VerifyCredential(ctx context.Context, adminKey string) error {
	if adminKey == "" {
		return providers.ErrMissingCredential
	}
	_, err := a.getList(ctx, adminKey, "/v1/organization/projects", url.Values{"limit": {"1"}})
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
	req.Header.Set("Authorization", "Bearer "+adminKey)
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
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	code := payload.Error.Code
	if code == "" {
		code = payload.Error.Type
	}
	message := payload.Error.Message
	if message == "" {
		message = http.StatusText(status)
	}
	return &providers.VendorError{StatusCode: status, Code: code, Message: message}
}
