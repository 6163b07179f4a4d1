// Package volcengine signs and calls the Volcengine open APIs. Request
// signing follows the platform's HMAC-SHA256 scheme (SigV4-style derivation).
package volcengine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	timestampLayout = "20060102T150405Z"
	dateLayout      = "20060102"
)

// SignInput carries everything the signature derivation consumes. Signing is
// a pure computation: fixed inputs always produce the same signature.
type SignInput struct {
	AccessKeyID string
	SecretKey   string
	Service     string
	Region      string
	Host        string
	Method      string
	Path        string
	Query       url.Values
	Body        []byte
	Now         time.Time

	// WithContentSHA256 additionally returns the payload hash as an
	// X-Content-Sha256 header; the Ark and billing services require it
	// explicitly.
	WithContentSHA256 bool
}

// SignedRequest is the authenticated request material.
type SignedRequest struct {
	URL              string
	Headers          http.Header
	CanonicalRequest string
	Signature        string
}

// Sign derives the Authorization header and companion headers for the input.
func Sign(in SignInput) SignedRequest {
	now := in.Now.UTC()
	timestamp := now.Format(timestampLayout)
	dateStamp := now.Format(dateLayout)

	canonicalQuery := canonicalizeQuery(in.Query)

	hasBody := len(in.Body) > 0 && strings.EqualFold(in.Method, http.MethodPost)
	var headerLines []string
	var signedHeaders []string
	if hasBody {
		headerLines = append(headerLines, "content-type:application/json")
		signedHeaders = append(signedHeaders, "content-type")
	}
	headerLines = append(headerLines,
		"host:"+strings.ToLower(in.Host),
		"x-date:"+timestamp,
	)
	signedHeaders = append(signedHeaders, "host", "x-date")

	canonicalHeaders := strings.Join(headerLines, "\n") + "\n"
	signedHeaderList := strings.Join(signedHeaders, ";")

	payloadHash := hexSHA256(in.Body)

	canonicalRequest := strings.Join([]string{
		strings.ToUpper(in.Method),
		in.Path,
		canonicalQuery,
		canonicalHeaders,
		signedHeaderList,
		payloadHash,
	}, "\n")

	credentialScope := strings.Join([]string{dateStamp, in.Region, in.Service, "request"}, "/")
	stringToSign := strings.Join([]string{
		"HMAC-SHA256",
		timestamp,
		credentialScope,
		hexSHA256([]byte(canonicalRequest)),
	}, "\n")

	signingKey := hmacSHA256([]byte(in.SecretKey), dateStamp)
	signingKey = hmacSHA256(signingKey, in.Region)
	signingKey = hmacSHA256(signingKey, in.Service)
	signingKey = hmacSHA256(signingKey, "request")

	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	authorization := "HMAC-SHA256 Credential=" + in.AccessKeyID + "/" + credentialScope +
		", SignedHeaders=" + signedHeaderList +
		", Signature=" + signature

	headers := http.Header{}
	headers.Set("X-Date", timestamp)
	headers.Set("Authorization", authorization)
	if hasBody {
		headers.Set("Content-Type", "application/json")
	}
	if in.WithContentSHA256 {
		headers.Set("X-Content-Sha256", payloadHash)
	}

	endpoint := "https://" + in.Host + in.Path
	if canonicalQuery != "" {
		endpoint += "?" + canonicalQuery
	}

	return SignedRequest{
		URL:              endpoint,
		Headers:          headers,
		CanonicalRequest: canonicalRequest,
		Signature:        signature,
	}
}

// canonicalizeQuery URL-encodes each key and value, sorts by key, and joins
// as k=v&k=v.
func canonicalizeQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		values := append([]string(nil), query[k]...)
		sort.Strings(values)
		for _, v := range values {
			parts = append(parts, uriEncode(k)+"="+uriEncode(v))
		}
	}
	return strings.Join(parts, "&")
}

// uriEncode percent-encodes with %20 for spaces, matching the canonical form
// the vendor verifies against.
func uriEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
