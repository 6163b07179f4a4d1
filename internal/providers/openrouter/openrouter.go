// Package openrouter calls the OpenRouter provisioning API. Every key reports
// its own usage and limit directly; there is no balance concept on keys, and
// account credit lives behind a separate endpoint.
package openrouter

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

const defaultBaseURL = "https://openrouter.ai"

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
		log:     cfg.Log.Named("providers.openrouter"),
	}
}

func (a *Adapter) Platform() accountdomain.Platform { return accountdomain.PlatformOpenRouter }

type keyEntry struct {
	Hash      string   `json:"hash"`
	Name      string   `json:"name"`
	Label     string   `json:"label"`
	Disabled  bool     `json:"disabled"`
	Limit     *float64 `json:"limit"`
	Usage     float64  `json:"usage"`
	CreatedAt string   `json:"created_at"`
}

// Credits is the account-level credit summary.
type Credits struct {
	TotalCredits float64 `json:"total_credits"`
	TotalUsage   float64 `json:"total_usage"`
}

const keyPageSize = 100

// FetchKeys pages the provisioning key list.
func (a *Adapter) FetchKeys(ctx context.Context, provisioningKey string) ([]providers.KeyDescriptor, error) {
	if provisioningKey == "" {
		return nil, providers.ErrMissingCredential
	}

	var keys []providers.KeyDescriptor
	for page := 0; page < a.pageCap; page++ {
		query := url.Values{"offset": {strconv.Itoa(page * keyPageSize)}}
		body, err := a.get(ctx, provisioningKey, "/api/v1/keys", query)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			break
		}
		var payload struct {
			Data []keyEntry `json:"data"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("decode keys: %w", err)
		}
		for _, k := range payload.Data {
			raw, _ := json.Marshal(k)
			desc := providers.KeyDescriptor{
				ID:       k.Hash,
				Hash:     k.Hash,
				Name:     k.Name,
				Disabled: k.Disabled,
				Limit:    k.Limit,
				Usage:    k.Usage,
				Raw:      raw,
			}
			if desc.Name == "" {
				desc.Name = k.Label
			}
			if created, err := time.Parse(time.RFC3339, k.CreatedAt); err == nil {
				desc.CreatedAt = created
			}
			keys = append(keys, desc)
		}
		if len(payload.Data) < keyPageSize {
			break
		}
	}
	return keys, nil
}

// FetchUsage normalizes the key list into usage entries keyed by hash. Balance
// stays nil: OpenRouter keys have no per-key balance.
func (a *Adapter) FetchUsage(ctx context.Context, provisioningKey string, _ providers.Window) (*providers.UsageReport, error) {
	keys, err := a.FetchKeys(ctx, provisioningKey)
	if err != nil {
		return nil, err
	}

	report := &providers.UsageReport{}
	for _, k := range keys {
		report.Entries = append(report.Entries, providers.UsageEntry{
			Identifier:  k.Hash,
			Name:        k.Name,
			TodayAmount: 0,
			MonthAmount: k.Usage,
			TotalAmount: k.Usage,
			CreditLimit: k.Limit,
			Raw:         k.Raw,
		})
	}
	return report, nil
}

// FetchCredits returns the account-level credit summary.
func (a *Adapter) FetchCredits(ctx context.Context, provisioningKey string) (*Credits, error) {
	if provisioningKey == "" {
		return nil, providers.ErrMissingCredential
	}
	body, err := a.get(ctx, provisioningKey, "/api/v1/credits", nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Data Credits `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode credits: %w", err)
	}
	return &payload.Data, nil
}

// VerifyCredential probes the credits endpoint. Rate-limiting proves the
// credential authenticated.
func (a *Adapter) VerifyCredential(ctx context.Context, provisioningKey string) error {
	if provisioningKey == "" {
		return providers.ErrMissingCredential
	}
	_, err := a.get(ctx, provisioningKey, "/api/v1/credits", nil)
	if err != nil && providers.IsRateLimited(err) {
		return nil
	}
	return err
}

func (a *Adapter) get(ctx context.Context, token, path string, query url.Values) ([]byte, error) {
	endpoint := a.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
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
	return body, nil
}

func parseError(status int, body []byte) error {
	var payload struct {
		Error struct {
			Code    any    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	message := payload.Error.Message
	if message == "" {
		message = http.StatusText(status)
	}
	code := ""
	if payload.Error.Code != nil {
		code = fmt.Sprintf("%v", payload.Error.Code)
	}
	return &providers.VendorError{StatusCode: status, Code: code, Message: message}
}
