package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haoran127/costix-sub001/internal/providers"
)

func testWindow() providers.Window {
	return providers.WindowAt(time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC))
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc, pageCap int) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, PageCap: pageCap})
}

func TestFetchUsageAggregatesWindows(t *testing.T) {
	win := testWindow()
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/organization/usage/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-admin-test" {
			t.Errorf("unexpected authorization %s", got)
		}
		fmt.Fprintf(w, `{"has_more":false,"data":[
			{"start_time":%d,"results":[{"api_key_id":"key_1","input_tokens":100,"output_tokens":50}]},
			{"start_time":%d,"results":[
				{"api_key_id":"key_1","input_tokens":300,"output_tokens":100},
				{"api_key_id":null,"input_tokens":999,"output_tokens":999}
			]}
		]}`, win.DayStart.Unix(), win.MonthStart.Unix())
	}, 0)

	report, err := adapter.FetchUsage(context.Background(), "sk-admin-test", win)
	if err != nil {
		t.Fatalf("fetch usage: %v", err)
	}
	if len(report.Entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(report.Entries))
	}

	entry := report.Entries[0]
	if entry.Identifier != "key_1" {
		t.Fatalf("expected key_1, got %s", entry.Identifier)
	}
	if entry.TodayAmount != 150 {
		t.Fatalf("expected today 150, got %v", entry.TodayAmount)
	}
	if entry.MonthAmount != 550 || entry.TotalAmount != 550 {
		t.Fatalf("expected month 550, got month=%v total=%v", entry.MonthAmount, entry.TotalAmount)
	}
}

func TestFetchUsagePageCapBoundsRunawayPagination(t *testing.T) {
	var calls atomic.Int32
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"has_more":true,"next_page":"cursor","data":[]}`))
	}, 3)

	report, err := adapter.FetchUsage(context.Background(), "sk-admin-test", testWindow())
	if err != nil {
		t.Fatalf("fetch usage: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected pagination capped at 3 requests, got %d", got)
	}
	if report.Partial {
		t.Fatalf("cap termination is not a partial failure")
	}
}

func TestFetchUsageFirstPageFailureIsFatal(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}, 0)

	_, err := adapter.FetchUsage(context.Background(), "sk-admin-test", testWindow())
	var vendorErr *providers.VendorError
	if !errors.As(err, &vendorErr) {
		t.Fatalf("expected vendor error, got %v", err)
	}
	if vendorErr.StatusCode != http.StatusUnauthorized || vendorErr.Code != "invalid_api_key" {
		t.Fatalf("unexpected vendor error: %+v", vendorErr)
	}
}

func TestFetchUsageLaterPageFailureIsPartial(t *testing.T) {
	var calls atomic.Int32
	win := testWindow()
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			fmt.Fprintf(w, `{"has_more":true,"next_page":"cursor","data":[
				{"start_time":%d,"results":[{"api_key_id":"key_1","input_tokens":10,"output_tokens":5}]}
			]}`, win.MonthStart.Unix())
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}, 0)

	report, err := adapter.FetchUsage(context.Background(), "sk-admin-test", win)
	if err != nil {
		t.Fatalf("fetch usage: %v", err)
	}
	if !report.Partial {
		t.Fatalf("expected partial report")
	}
	if len(report.Entries) != 1 || report.Entries[0].MonthAmount != 15 {
		t.Fatalf("expected first page totals to survive, got %+v", report.Entries)
	}
}

func TestFetchCostsGroupsByProject(t *testing.T) {
	win := testWindow()
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/organization/costs" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprintf(w, `{"has_more":false,"data":[
			{"start_time":%d,"results":[
				{"project_id":"proj_a","amount":{"value":4.5,"currency":"usd"}},
				{"project_id":"proj_b","amount":{"value":2.25,"currency":"usd"}}
			]},
			{"start_time":%d,"results":[{"project_id":"proj_a","amount":{"value":1.5,"currency":"usd"}}]}
		]}`, win.MonthStart.Unix(), win.DayStart.Unix())
	}, 0)

	report, err := adapter.FetchCosts(context.Background(), "sk-admin-test", win)
	if err != nil {
		t.Fatalf("fetch costs: %v", err)
	}

	byID := map[string]providers.UsageEntry{}
	for _, entry := range report.Entries {
		byID[entry.Identifier] = entry
	}
	if a := byID["proj_a"]; a.MonthAmount != 6 || a.TodayAmount != 1.5 {
		t.Fatalf("unexpected proj_a totals: %+v", a)
	}
	if b := byID["proj_b"]; b.MonthAmount != 2.25 || b.TodayAmount != 0 {
		t.Fatalf("unexpected proj_b totals: %+v", b)
	}
}

func TestFetchKeysWalksProjects(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/organization/projects":
			w.Write([]byte(`{"has_more":false,"data":[{"id":"proj_a","name":"alpha"},{"id":"proj_b","name":"beta"}]}`))
		case "/v1/organization/projects/proj_a/api_keys":
			w.Write([]byte(`{"has_more":false,"data":[{"id":"key_1","name":"svc-prod","created_at":1767225600}]}`))
		case "/v1/organization/projects/proj_b/api_keys":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"message":"gone"}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}, 0)

	keys, err := adapter.FetchKeys(context.Background(), "sk-admin-test")
	if err != nil {
		t.Fatalf("fetch keys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected one key despite a failing project, got %d", len(keys))
	}
	if keys[0].ID != "key_1" || keys[0].Name != "svc-prod" || keys[0].ProjectID != "proj_a" {
		t.Fatalf("unexpected key: %+v", keys[0])
	}
}

func TestVerifyCredentialTreatsRateLimitAsValid(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "slow down", "type": "rate_limit_exceeded"}})
	}, 0)

	if err := adapter.VerifyCredential(context.Background(), "sk-admin-test"); err != nil {
		t.Fatalf("rate limited verify should pass, got %v", err)
	}
}

func TestFetchUsageRequiresCredential(t *testing.T) {
	adapter := New(Config{})
	if _, err := adapter.FetchUsage(context.Background(), "", testWindow()); !errors.Is(err, providers.ErrMissingCredential) {
		t.Fatalf("expected missing credential, got %v", err)
	}
}
