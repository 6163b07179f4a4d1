package volcengine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	accountdomain "github.com/haoran127/costix-sub001/internal/account/domain"
	"github.com/haoran127/costix-sub001/internal/providers"
)

const (
	defaultArkHost     = "open.volcengineapi.com"
	defaultRegion      = "cn-beijing"
	arkService         = "ark"
	billingService     = "billing"
	arkVersion         = "2024-01-01"
	billingVersion     = "2022-01-01"
	actionGetUsage     = "GetUsage"
	actionListAPIKeys  = "ListApiKeys"
	actionQueryBalance = "QueryBalanceAcct"
)

// Credential is the decomposed admin credential. The stored form is a
// composite "accessKeyId:base64(secretKey)" string.
type Credential struct {
	AccessKeyID string
	SecretKey   string
}

// ParseCredential splits and decodes the composite credential string.
func ParseCredential(composite string) (Credential, error) {
	composite = strings.TrimSpace(composite)
	idx := strings.Index(composite, ":")
	if idx <= 0 || idx == len(composite)-1 {
		return Credential{}, providers.ErrMissingCredential
	}
	secret, err := base64.StdEncoding.DecodeString(composite[idx+1:])
	if err != nil {
		return Credential{}, fmt.Errorf("decode secret key: %w", err)
	}
	return Credential{AccessKeyID: composite[:idx], SecretKey: string(secret)}, nil
}

// Config controls the adapter. Scheme and Host exist so tests can point the
// adapter at a local server; the signature always covers Host.
type Config struct {
	Scheme     string
	Host       string
	Region     string
	HTTPClient *http.Client
	Log        *zap.Logger
}

// Adapter calls the Volcengine Ark and billing APIs with signed requests.
type Adapter struct {
	scheme string
	host   string
	region string
	http   *http.Client
	log    *zap.Logger
	now    func() time.Time
}

func New(cfg Config) *Adapter {
	a := &Adapter{
		scheme: cfg.Scheme,
		host:   cfg.Host,
		region: cfg.Region,
		http:   cfg.HTTPClient,
		log:    cfg.Log,
		now:    time.Now,
	}
	if a.scheme == "" {
		a.scheme = "https"
	}
	if a.host == "" {
		a.host = defaultArkHost
	}
	if a.region == "" {
		a.region = defaultRegion
	}
	if a.http == nil {
		a.http = &http.Client{Timeout: 30 * time.Second}
	}
	if a.log == nil {
		a.log = zap.NewNop()
	}
	return a
}

func (a *Adapter) Platform() accountdomain.Platform { return accountdomain.PlatformVolcengine }

type usageTotals struct {
	Tokens float64
}

type metricItem struct {
	MetricName string `json:"MetricName"`
	Items      []struct {
		Timestamp int64   `json:"Timestamp"`
		Value     float64 `json:"Value"`
	} `json:"Items"`
}

type balanceResult struct {
	Available   float64
	CreditLimit *float64
}

// FetchUsage reports one organization-wide entry. Monthly and daily token
// totals come from two GetUsage calls over the month and day windows, the
// balance from the billing account query.
func (a *Adapter) FetchUsage(ctx context.Context, cred Credential, win providers.Window) (providers.UsageReport, error) {
	month, rawMonth, err := a.fetchUsageWindow(ctx, cred, win.MonthStart, win.Now)
	if err != nil {
		return providers.UsageReport{}, fmt.Errorf("%w: %v", providers.ErrFirstPageFailed, err)
	}

	report := providers.UsageReport{}

	day, _, err := a.fetchUsageWindow(ctx, cred, win.DayStart, win.Now)
	if err != nil {
		a.log.Warn("volcengine daily usage window failed", zap.Error(err))
		report.Partial = true
	}

	entry := providers.UsageEntry{
		Identifier:  "organization",
		MonthAmount: month.Tokens,
		TodayAmount: day.Tokens,
		TotalAmount: month.Tokens,
		Raw:         rawMonth,
	}

	balance, err := a.fetchBalance(ctx, cred)
	if err != nil {
		a.log.Warn("volcengine balance query failed", zap.Error(err))
		report.Partial = true
	} else {
		entry.Balance = &balance.Available
		entry.CreditLimit = balance.CreditLimit
	}

	report.Entries = []providers.UsageEntry{entry}
	return report, nil
}

func (a *Adapter) fetchUsageWindow(ctx context.Context, cred Credential, start, end time.Time) (usageTotals, json.RawMessage, error) {
	body, err := json.Marshal(map[string]int64{
		"StartTime": start.Unix(),
		"EndTime":   end.Unix(),
	})
	if err != nil {
		return usageTotals{}, nil, err
	}

	raw, err := a.call(ctx, cred, callSpec{
		Method:  http.MethodPost,
		Service: arkService,
		Action:  actionGetUsage,
		Version: arkVersion,
		Body:    body,
	})
	if err != nil {
		return usageTotals{}, nil, err
	}

	var payload struct {
		Result struct {
			MetricItems []metricItem `json:"MetricItems"`
		} `json:"Result"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return usageTotals{}, nil, fmt.Errorf("decode usage response: %w", err)
	}

	totals := usageTotals{}
	for _, metric := range payload.Result.MetricItems {
		switch metric.MetricName {
		case "PromptTokens", "CompletionTokens", "ImageCount":
			for _, item := range metric.Items {
				totals.Tokens += item.Value
			}
		}
	}
	return totals, raw, nil
}

func (a *Adapter) fetchBalance(ctx context.Context, cred Credential) (balanceResult, error) {
	raw, err := a.call(ctx, cred, callSpec{
		Method:  http.MethodGet,
		Service: billingService,
		Action:  actionQueryBalance,
		Version: billingVersion,
	})
	if err != nil {
		return balanceResult{}, err
	}

	var payload struct {
		Result struct {
			AvailableBalance json.Number `json:"AvailableBalance"`
			CreditLimit      json.Number `json:"CreditLimit"`
		} `json:"Result"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return balanceResult{}, fmt.Errorf("decode balance response: %w", err)
	}

	out := balanceResult{}
	out.Available, _ = payload.Result.AvailableBalance.Float64()
	if payload.Result.CreditLimit != "" {
		if limit, err := payload.Result.CreditLimit.Float64(); err == nil {
			out.CreditLimit = &limit
		}
	}
	return out, nil
}

// FetchKeys lists the organization's provisioned API keys.
func (a *Adapter) FetchKeys(ctx context.Context, cred Credential) ([]providers.KeyDescriptor, error) {
	raw, err := a.call(ctx, cred, callSpec{
		Method:  http.MethodPost,
		Service: arkService,
		Action:  actionListAPIKeys,
		Version: arkVersion,
		Body:    []byte(`{"PageNumber":1,"PageSize":100}`),
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Result struct {
			Items []struct {
				ID         string `json:"Id"`
				Name       string `json:"Name"`
				Status     string `json:"Status"`
				CreateTime int64  `json:"CreateTime"`
			} `json:"Items"`
		} `json:"Result"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode key list: %w", err)
	}

	keys := make([]providers.KeyDescriptor, 0, len(payload.Result.Items))
	for _, item := range payload.Result.Items {
		desc := providers.KeyDescriptor{
			ID:       item.ID,
			Name:     item.Name,
			Disabled: item.Status != "" && !strings.EqualFold(item.Status, "active"),
		}
		if item.CreateTime > 0 {
			desc.CreatedAt = time.Unix(item.CreateTime, 0).UTC()
		}
		keys = append(keys, desc)
	}
	return keys, nil
}

// VerifyCredential probes the billing balance endpoint. A rate-limited or
// overloaded response still proves the credential signs correctly.
func (a *Adapter) VerifyCredential(ctx context.Context, cred Credential) error {
	_, err := a.fetchBalance(ctx, cred)
	if err == nil || providers.IsRateLimited(err) {
		return nil
	}
	return err
}

type callSpec struct {
	Method  string
	Service string
	Action  string
	Version string
	Body    []byte
}

func (a *Adapter) call(ctx context.Context, cred Credential, spec callSpec) (json.RawMessage, error) {
	if cred.AccessKeyID == "" || cred.SecretKey == "" {
		return nil, providers.ErrMissingCredential
	}

	query := url.Values{}
	query.Set("Action", spec.Action)
	query.Set("Version", spec.Version)

	signed := Sign(SignInput{
		AccessKeyID:       cred.AccessKeyID,
		SecretKey:         cred.SecretKey,
		Service:           spec.Service,
		Region:            a.region,
		Host:              a.host,
		Method:            spec.Method,
		Path:              "/",
		Query:             query,
		Body:              spec.Body,
		Now:               a.now(),
		WithContentSHA256: true,
	})

	endpoint := a.scheme + "://" + a.host + "/?" + query.Encode()
	var body io.Reader
	if len(spec.Body) > 0 {
		body = bytes.NewReader(spec.Body)
	}
	req, err := http.NewRequestWithContext(ctx, spec.Method, endpoint, body)
	if err != nil {
		return nil, err
	}
	for name, values := range signed.Headers {
		for _, v := range values {
			req.Header.Set(name, v)
		}
	}
	req.Host = a.host

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, parseError(resp.StatusCode, data)
	}
	if metaErr := metadataError(data); metaErr != nil {
		return nil, metaErr
	}
	return data, nil
}

func parseError(status int, body []byte) error {
	var payload struct {
		ResponseMetadata struct {
			Error struct {
				Code    string `json:"Code"`
				Message string `json:"Message"`
			} `json:"Error"`
		} `json:"ResponseMetadata"`
	}
	message := strings.TrimSpace(string(body))
	code := ""
	if err := json.Unmarshal(body, &payload); err == nil && payload.ResponseMetadata.Error.Message != "" {
		message = payload.ResponseMetadata.Error.Message
		code = payload.ResponseMetadata.Error.Code
	}
	if message == "" {
		message = "http status " + strconv.Itoa(status)
	}
	return &providers.VendorError{StatusCode: status, Code: code, Message: message}
}

// metadataError catches vendor errors delivered inside a 200 envelope.
func metadataError(body []byte) error {
	var payload struct {
		ResponseMetadata struct {
			Error *struct {
				Code    string `json:"Code"`
				Message string `json:"Message"`
			} `json:"Error"`
		} `json:"ResponseMetadata"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}
	if payload.ResponseMetadata.Error == nil {
		return nil
	}
	return &providers.VendorError{
		StatusCode: http.StatusOK,
		Code:       payload.ResponseMetadata.Error.Code,
		Message:    payload.ResponseMetadata.Error.Message,
	}
}
