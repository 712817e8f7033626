package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"agentpay/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testFromAddr = "0x1111111111111111111111111111111111111111"
	testToAddr   = "0x2222222222222222222222222222222222222222"
)

func TestNewPrivacyTokenIssuer_SelectsStrategy(t *testing.T) {
	local := NewPrivacyTokenIssuer("", "", time.Second, nil, newTestLogger())
	assert.Equal(t, ports.PrivacyModeLocal, local.Mode())
	assert.True(t, local.Degraded())

	onlyEndpoint := NewPrivacyTokenIssuer("https://issuer", "", time.Second, nil, newTestLogger())
	assert.Equal(t, ports.PrivacyModeLocal, onlyEndpoint.Mode())

	remote := NewPrivacyTokenIssuer("https://issuer", "key", time.Second, &mockHTTPClient{}, newTestLogger())
	assert.Equal(t, ports.PrivacyModeRemote, remote.Mode())
	assert.False(t, remote.Degraded())
}

func TestLocalPrivacyIssuer_IssueAndVerify(t *testing.T) {
	issuer := NewLocalPrivacyIssuer()
	issuer.now = func() time.Time { return time.UnixMilli(1700000000123) }

	issued, err := issuer.Issue(context.Background(), testFromAddr, testToAddr, 1000, nil)
	require.NoError(t, err)
	assert.True(t, issued.Local)

	decoded, err := base64.StdEncoding.DecodeString(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, testFromAddr+":"+testToAddr+":1000:1700000000123", string(decoded))

	rawBlob, err := base64.StdEncoding.DecodeString(issued.Blob)
	require.NoError(t, err)
	var blob map[string]interface{}
	require.NoError(t, json.Unmarshal(rawBlob, &blob))
	assert.Equal(t, "0x111111...", blob["from"])
	assert.Equal(t, "0x222222...", blob["to"])
	assert.Equal(t, float64(1000), blob["amount"])

	ok, err := issuer.Verify(context.Background(), issued.Token)
	require.NoError(t, err)
	assert.True(t, ok)

	details, err := DecodeLocalToken(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), details.Amount)
	assert.Equal(t, testToAddr, details.To)
}

func TestLocalPrivacyIssuer_VerifyRejectsMalformed(t *testing.T) {
	issuer := NewLocalPrivacyIssuer()

	tests := []struct {
		name  string
		token string
	}{
		{"not base64", "%%%"},
		{"three fields", base64.StdEncoding.EncodeToString([]byte("a:b:1"))},
		{"five fields", base64.StdEncoding.EncodeToString([]byte("a:b:1:2:3"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := issuer.Verify(context.Background(), tt.token)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}

	details, err := issuer.Details(context.Background(), "anything")
	assert.NoError(t, err)
	assert.Nil(t, details)
}

func TestRemotePrivacyIssuer_Issue_Success(t *testing.T) {
	var captured *http.Request
	var body map[string]interface{}
	client := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		captured = req
		raw, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(raw, &body)
		return jsonResponse(200, `{"privacyToken":"ptok_1","encryptedData":"blob_1"}`), nil
	}}

	issuer := NewPrivacyTokenIssuer("https://issuer.example.com/", "secret", time.Second, client, newTestLogger())
	memo := "invoice 7"
	issued, err := issuer.Issue(context.Background(), testFromAddr, testToAddr, 500, &memo)
	require.NoError(t, err)

	assert.Equal(t, "ptok_1", issued.Token)
	assert.Equal(t, "blob_1", issued.Blob)
	assert.False(t, issued.Local)
	assert.Equal(t, "https://issuer.example.com/api/v1/payments/create", captured.URL.String())
	assert.Equal(t, "Bearer secret", captured.Header.Get("Authorization"))
	assert.Equal(t, "invoice 7", body["memo"])
	assert.Equal(t, int64(0), issuer.Fallbacks())
	assert.False(t, issuer.Degraded())
}

func TestRemotePrivacyIssuer_Issue_FallsBack(t *testing.T) {
	tests := []struct {
		name string
		do   func(req *http.Request) (*http.Response, error)
	}{
		{"transport error", func(*http.Request) (*http.Response, error) { return nil, errors.New("connection refused") }},
		{"server error", func(*http.Request) (*http.Response, error) { return jsonResponse(502, `bad gateway`), nil }},
		{"empty token", func(*http.Request) (*http.Response, error) { return jsonResponse(200, `{}`), nil }},
		{"bad json", func(*http.Request) (*http.Response, error) { return jsonResponse(200, `{`), nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer := NewPrivacyTokenIssuer("https://issuer", "key", time.Second, &mockHTTPClient{doFunc: tt.do}, newTestLogger())

			issued, err := issuer.Issue(context.Background(), testFromAddr, testToAddr, 42, nil)
			require.NoError(t, err, "remote failure must not fail issuance")
			assert.True(t, issued.Local)
			assert.True(t, issuer.Degraded())
			assert.Equal(t, int64(1), issuer.Fallbacks())
			assert.Equal(t, ports.PrivacyModeRemote, issuer.Mode())
		})
	}
}

func TestRemotePrivacyIssuer_RecoversFromDegraded(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	client := &mockHTTPClient{doFunc: func(*http.Request) (*http.Response, error) {
		if fail.Load() {
			return nil, errors.New("down")
		}
		return jsonResponse(200, `{"privacyToken":"t","encryptedData":"d"}`), nil
	}}
	issuer := NewPrivacyTokenIssuer("https://issuer", "key", time.Second, client, newTestLogger())

	_, err := issuer.Issue(context.Background(), testFromAddr, testToAddr, 1, nil)
	require.NoError(t, err)
	assert.True(t, issuer.Degraded())

	fail.Store(false)
	_, err = issuer.Issue(context.Background(), testFromAddr, testToAddr, 1, nil)
	require.NoError(t, err)
	assert.False(t, issuer.Degraded())
	assert.Equal(t, int64(1), issuer.Fallbacks())
}

func TestRemotePrivacyIssuer_Verify(t *testing.T) {
	status := 200
	client := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		assert.True(t, strings.HasSuffix(req.URL.Path, "/api/v1/payments/verify"))
		return jsonResponse(status, `{}`), nil
	}}
	issuer := NewPrivacyTokenIssuer("https://issuer", "key", time.Second, client, newTestLogger())

	ok, err := issuer.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.True(t, ok)

	status = 401
	ok, err = issuer.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, ok)

	down := NewPrivacyTokenIssuer("https://issuer", "key", time.Second, &mockHTTPClient{
		doFunc: func(*http.Request) (*http.Response, error) { return nil, errors.New("down") },
	}, newTestLogger())
	ok, err = down.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemotePrivacyIssuer_Details(t *testing.T) {
	client := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"from":"a","to":"b","amount":77}`), nil
	}}
	issuer := NewPrivacyTokenIssuer("https://issuer", "key", time.Second, client, newTestLogger())

	details, err := issuer.Details(context.Background(), "tok")
	require.NoError(t, err)
	require.NotNil(t, details)
	assert.Equal(t, int64(77), details.Amount)

	denied := NewPrivacyTokenIssuer("https://issuer", "key", time.Second, &mockHTTPClient{
		doFunc: func(*http.Request) (*http.Response, error) { return jsonResponse(403, ``), nil },
	}, newTestLogger())
	details, err = denied.Details(context.Background(), "tok")
	require.NoError(t, err)
	assert.Nil(t, details)
}
