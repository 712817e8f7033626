package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"agentpay/internal/core/ports"

	"github.com/rs/zerolog"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewPrivacyTokenIssuer selects the issuance strategy from configuration
// presence: remote when both endpoint and apiKey are set, local otherwise.
func NewPrivacyTokenIssuer(endpoint, apiKey string, timeout time.Duration, client HTTPClient, log zerolog.Logger) ports.PrivacyTokenIssuer {
	local := NewLocalPrivacyIssuer()
	if endpoint == "" || apiKey == "" {
		log.Warn().Msg("privacy issuer not configured, tokens are issued locally and are reversible")
		return local
	}
	if client == nil {
		client = &http.Client{}
	}
	return &RemotePrivacyIssuer{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		timeout:  timeout,
		client:   client,
		local:    local,
		log:      log,
	}
}

// ---- Local issuance ----

// LocalPrivacyIssuer encodes from:to:amount:unixMillis as base64. Anyone
// holding the token can decode it.
type LocalPrivacyIssuer struct {
	now func() time.Time
}

// NewLocalPrivacyIssuer creates a local-only issuer.
func NewLocalPrivacyIssuer() *LocalPrivacyIssuer {
	return &LocalPrivacyIssuer{now: time.Now}
}

type localBlob struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    int64  `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

// Issue builds the token and a summary blob with truncated addresses.
func (l *LocalPrivacyIssuer) Issue(_ context.Context, fromAddress, toAddress string, amount int64, _ *string) (*ports.IssuedToken, error) {
	ts := l.now().UnixMilli()
	raw := fmt.Sprintf("%s:%s:%d:%d", fromAddress, toAddress, amount, ts)

	blob, err := json.Marshal(localBlob{
		From:      truncateAddress(fromAddress),
		To:        truncateAddress(toAddress),
		Amount:    amount,
		Timestamp: ts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal privacy blob: %w", err)
	}

	return &ports.IssuedToken{
		Token: base64.StdEncoding.EncodeToString([]byte(raw)),
		Blob:  base64.StdEncoding.EncodeToString(blob),
		Local: true,
	}, nil
}

// Verify checks that the token decodes into four colon-separated fields.
// It is a shape check, not a signature check.
func (l *LocalPrivacyIssuer) Verify(_ context.Context, token string) (bool, error) {
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return false, nil
	}
	return len(strings.Split(string(decoded), ":")) == 4, nil
}

// Details is not available without a remote issuer.
func (l *LocalPrivacyIssuer) Details(context.Context, string) (*ports.TokenDetails, error) {
	return nil, nil
}

func (l *LocalPrivacyIssuer) Mode() ports.PrivacyMode { return ports.PrivacyModeLocal }

// Degraded is always true: local tokens provide no confidentiality.
func (l *LocalPrivacyIssuer) Degraded() bool { return true }

func (l *LocalPrivacyIssuer) Fallbacks() int64 { return 0 }

// DecodeLocalToken splits a locally issued token into its fields.
func DecodeLocalToken(token string) (*ports.TokenDetails, error) {
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	parts := strings.Split(string(decoded), ":")
	if len(parts) != 4 {
		return nil, fmt.Errorf("token has %d fields, want 4", len(parts))
	}
	amount, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	ts, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}
	return &ports.TokenDetails{From: parts[0], To: parts[1], Amount: amount, Timestamp: ts}, nil
}

func truncateAddress(addr string) string {
	if len(addr) <= 8 {
		return addr + "..."
	}
	return addr[:8] + "..."
}

// ---- Remote issuance ----

// RemotePrivacyIssuer calls the configured issuer and falls back to local
// issuance on any failure.
type RemotePrivacyIssuer struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	client   HTTPClient
	local    *LocalPrivacyIssuer
	log      zerolog.Logger

	fallbacks atomic.Int64
	degraded  atomic.Bool
}

type remoteCreateRequest struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount int64   `json:"amount"`
	Memo   *string `json:"memo,omitempty"`
}

type remoteCreateResponse struct {
	PrivacyToken  string `json:"privacyToken"`
	EncryptedData string `json:"encryptedData"`
}

type remoteTokenRequest struct {
	PrivacyToken string `json:"privacyToken"`
}

// Issue requests a token from the remote issuer.
func (r *RemotePrivacyIssuer) Issue(ctx context.Context, fromAddress, toAddress string, amount int64, memo *string) (*ports.IssuedToken, error) {
	var out remoteCreateResponse
	status, err := r.post(ctx, "/api/v1/payments/create", remoteCreateRequest{
		From: fromAddress, To: toAddress, Amount: amount, Memo: memo,
	}, &out)
	if err == nil && status/100 != 2 {
		err = fmt.Errorf("issuer responded %d", status)
	}
	if err == nil && out.PrivacyToken == "" {
		err = fmt.Errorf("issuer response has no token")
	}

	if err != nil {
		n := r.fallbacks.Add(1)
		r.degraded.Store(true)
		r.log.Warn().Err(err).Int64("fallbacks", n).Msg("remote privacy issuer failed, issuing locally")
		return r.local.Issue(ctx, fromAddress, toAddress, amount, memo)
	}

	if r.degraded.Swap(false) {
		r.log.Info().Msg("remote privacy issuer recovered")
	}
	return &ports.IssuedToken{Token: out.PrivacyToken, Blob: out.EncryptedData}, nil
}

// Verify asks the remote issuer; any failure counts as not verified.
func (r *RemotePrivacyIssuer) Verify(ctx context.Context, token string) (bool, error) {
	status, err := r.post(ctx, "/api/v1/payments/verify", remoteTokenRequest{PrivacyToken: token}, nil)
	if err != nil {
		r.log.Warn().Err(err).Msg("remote privacy verification failed")
		return false, nil
	}
	return status/100 == 2, nil
}

// Details asks the remote issuer to disclose the token's payment details.
func (r *RemotePrivacyIssuer) Details(ctx context.Context, token string) (*ports.TokenDetails, error) {
	var out ports.TokenDetails
	status, err := r.post(ctx, "/api/v1/payments/details", remoteTokenRequest{PrivacyToken: token}, &out)
	if err != nil {
		r.log.Warn().Err(err).Msg("remote privacy details failed")
		return nil, nil
	}
	if status/100 != 2 {
		return nil, nil
	}
	return &out, nil
}

func (r *RemotePrivacyIssuer) Mode() ports.PrivacyMode { return ports.PrivacyModeRemote }

func (r *RemotePrivacyIssuer) Degraded() bool { return r.degraded.Load() }

func (r *RemotePrivacyIssuer) Fallbacks() int64 { return r.fallbacks.Load() }

// post sends body as JSON and decodes a 2xx response into out when non-nil.
func (r *RemotePrivacyIssuer) post(ctx context.Context, path string, body, out interface{}) (int, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 || out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
