package volcengine

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"
	"time"
)

const emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func fixtureInput() SignInput {
	return SignInput{
		AccessKeyID: "AKTEST",
		SecretKey:   "secret",
		Service:     "ark",
		Region:      "cn-beijing",
		Host:        "open.volcengineapi.com",
		Method:      "GET",
		Path:        "/",
		Query: url.Values{
			"Action":  {"GetUsage"},
			"Version": {"2024-01-01"},
		},
		Now: time.Date(2026, 3, 5, 12, 30, 45, 0, time.UTC),
	}
}

func TestSignCanonicalRequest(t *testing.T) {
	signed := Sign(fixtureInput())

	want := strings.Join([]string{
		"GET",
		"/",
		"Action=GetUsage&Version=2024-01-01",
		"host:open.volcengineapi.com",
		"x-date:20260305T123045Z",
		"",
		"host;x-date",
		emptyPayloadHash,
	}, "\n")
	if signed.CanonicalRequest != want {
		t.Fatalf("canonical request mismatch:\ngot:\n%s\nwant:\n%s", signed.CanonicalRequest, want)
	}

	auth := signed.Headers.Get("Authorization")
	wantPrefix := "HMAC-SHA256 Credential=AKTEST/20260305/cn-beijing/ark/request, SignedHeaders=host;x-date, Signature="
	if !strings.HasPrefix(auth, wantPrefix) {
		t.Fatalf("authorization header mismatch: %s", auth)
	}
	if got := signed.Headers.Get("X-Date"); got != "20260305T123045Z" {
		t.Fatalf("expected X-Date 20260305T123045Z, got %s", got)
	}
}

func TestSignDeterministic(t *testing.T) {
	first := Sign(fixtureInput())
	second := Sign(fixtureInput())

	if first.Signature != second.Signature {
		t.Fatalf("same input produced different signatures: %s vs %s", first.Signature, second.Signature)
	}
	if len(first.Signature) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(first.Signature))
	}
	if _, err := hex.DecodeString(first.Signature); err != nil {
		t.Fatalf("signature is not hex: %v", err)
	}
}

func TestSignPostBodySignsContentType(t *testing.T) {
	in := fixtureInput()
	in.Method = "POST"
	in.Body = []byte(`{"StartTime":1}`)

	signed := Sign(in)

	if !strings.Contains(signed.CanonicalRequest, "content-type:application/json") {
		t.Fatalf("expected content-type in canonical headers:\n%s", signed.CanonicalRequest)
	}
	if !strings.Contains(signed.Headers.Get("Authorization"), "SignedHeaders=content-type;host;x-date") {
		t.Fatalf("expected content-type in signed headers: %s", signed.Headers.Get("Authorization"))
	}
	if got := signed.Headers.Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected Content-Type header, got %q", got)
	}

	sum := sha256.Sum256(in.Body)
	if !strings.HasSuffix(signed.CanonicalRequest, hex.EncodeToString(sum[:])) {
		t.Fatalf("canonical request should end with the payload hash")
	}
}

func TestSignContentSHA256Header(t *testing.T) {
	in := fixtureInput()
	if got := Sign(in).Headers.Get("X-Content-Sha256"); got != "" {
		t.Fatalf("unexpected X-Content-Sha256 without the flag: %s", got)
	}

	in.WithContentSHA256 = true
	if got := Sign(in).Headers.Get("X-Content-Sha256"); got != emptyPayloadHash {
		t.Fatalf("expected empty payload hash, got %s", got)
	}
}

func TestCanonicalizeQuery(t *testing.T) {
	got := canonicalizeQuery(url.Values{
		"Zebra":  {"last"},
		"Action": {"Get Usage"},
		"Multi":  {"b", "a"},
	})
	want := "Action=Get%20Usage&Multi=a&Multi=b&Zebra=last"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}

	if got := canonicalizeQuery(nil); got != "" {
		t.Fatalf("expected empty canonical query, got %s", got)
	}
}
