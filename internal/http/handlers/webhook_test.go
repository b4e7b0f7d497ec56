package handlers

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/observability/metrics"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/provider"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/receipt"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/security/secretbox"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/memory"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/syncer"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/vault"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/webhook"
)

type stubProvider struct {
	key  *ecdsa.PrivateKey
	page *provider.SyncPage
}

func (s *stubProvider) Name() string { return "plaid" }

func (s *stubProvider) TransactionsSync(_ context.Context, _ string, cursor string) (*provider.SyncPage, error) {
	if s.page != nil && cursor == "" {
		return s.page, nil
	}
	return &provider.SyncPage{NextCursor: cursor}, nil
}

func (s *stubProvider) Balances(_ context.Context, _ string) ([]provider.AccountBalance, error) {
	return nil, nil
}

func (s *stubProvider) ExchangePublicToken(_ context.Context, publicToken string) (*provider.LinkResult, error) {
	if publicToken == "bad" {
		return nil, errors.New("invalid public token")
	}
	return &provider.LinkResult{ItemID: "item-1", AccessToken: "access-tok"}, nil
}

func (s *stubProvider) VerificationKey(_ context.Context, kid string) (*ecdsa.PublicKey, error) {
	if kid != "k1" {
		return nil, errors.New("unknown kid")
	}
	return &s.key.PublicKey, nil
}

func setupHandler(t *testing.T) (*Handler, *stubProvider, core.Repository) {
	t.Helper()
	secretbox.UnsafeResetForTests()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 11)
	}
	require.NoError(t, secretbox.UnsafeSetMasterKeyForTests(key))
	t.Cleanup(secretbox.UnsafeResetForTests)

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	sp := &stubProvider{key: priv}

	repo := memory.New()
	v := vault.New(repo)
	ledger := receipt.NewLedger(repo)
	engine := syncer.NewEngine(repo, v, sp, ledger, syncer.NewLocalLocker(), time.Minute)
	verifier := webhook.NewVerifier(sp, time.Hour, false)

	return New(repo, v, sp, engine, ledger, verifier), sp, repo
}

func seedConnection(t *testing.T, repo core.Repository) *core.Connection {
	t.Helper()
	conn := &core.Connection{
		ID:             "44444444-4444-4444-4444-444444444444",
		TenantID:       "t1",
		OfficeID:       "o1",
		Provider:       "plaid",
		ExternalItemID: "item-1",
		Status:         core.ConnectionConnected,
	}
	require.NoError(t, repo.CreateConnection(context.Background(), conn))
	return conn
}

func signBody(t *testing.T, priv *ecdsa.PrivateKey, body []byte) string {
	t.Helper()
	sum := sha256.Sum256(body)
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodES256, jwtv5.MapClaims{
		"iat":                 time.Now().Unix(),
		"request_body_sha256": hex.EncodeToString(sum[:]),
	})
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(priv)
	require.NoError(t, err)
	return signed
}

func postWebhook(h *Handler, body []byte, verification string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/v1/webhooks/bank", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if verification != "" {
		req.Header.Set(webhook.Header, verification)
	}
	rr := httptest.NewRecorder()
	h.Webhook(rr, req)
	return rr
}

func TestWebhook_ValidSignatureAccepted(t *testing.T) {
	h, sp, repo := setupHandler(t)
	seedConnection(t, repo)

	body := []byte(`{"webhook_type":"TRANSACTIONS","webhook_code":"SYNC_UPDATES_AVAILABLE","item_id":"item-1"}`)
	rr := postWebhook(h, body, signBody(t, sp.key, body))

	require.Equal(t, 200, rr.Code)
	var resp webhookResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Received)
	require.True(t, resp.Handled)

	conn, err := repo.GetConnectionByExternalID(context.Background(), "plaid", "item-1")
	require.NoError(t, err)
	require.NotNil(t, conn.LastWebhookAt)
}

func TestWebhook_BadSignatureRejected(t *testing.T) {
	h, _, repo := setupHandler(t)
	seedConnection(t, repo)

	other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	body := []byte(`{"webhook_type":"TRANSACTIONS","webhook_code":"SYNC_UPDATES_AVAILABLE","item_id":"item-1"}`)
	rr := postWebhook(h, body, signBody(t, other, body))
	require.Equal(t, 401, rr.Code)
}

func TestWebhook_MissingHeaderRejected(t *testing.T) {
	h, _, repo := setupHandler(t)
	seedConnection(t, repo)

	body := []byte(`{"webhook_type":"TRANSACTIONS","webhook_code":"SYNC_UPDATES_AVAILABLE","item_id":"item-1"}`)
	rr := postWebhook(h, body, "")
	require.Equal(t, 401, rr.Code)
}

func TestWebhook_BypassCountedAsBypassed(t *testing.T) {
	h, _, repo := setupHandler(t)
	seedConnection(t, repo)
	h.Verifier = webhook.NewVerifier(h.Provider, time.Hour, true)

	before := testutil.ToFloat64(metrics.WebhooksReceived.WithLabelValues("bypassed"))
	body := []byte(`{"webhook_type":"TRANSACTIONS","webhook_code":"SYNC_UPDATES_AVAILABLE","item_id":"item-1"}`)
	rr := postWebhook(h, body, "")
	require.Equal(t, 200, rr.Code)
	require.Equal(t, before+1, testutil.ToFloat64(metrics.WebhooksReceived.WithLabelValues("bypassed")))
}

func TestWebhook_UnknownItemAcked(t *testing.T) {
	h, sp, _ := setupHandler(t)

	body := []byte(`{"webhook_type":"TRANSACTIONS","webhook_code":"SYNC_UPDATES_AVAILABLE","item_id":"nope"}`)
	rr := postWebhook(h, body, signBody(t, sp.key, body))

	require.Equal(t, 200, rr.Code)
	var resp webhookResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Received)
	require.False(t, resp.Handled)
}

func TestWebhook_ItemErrorMarksConnection(t *testing.T) {
	h, sp, repo := setupHandler(t)
	conn := seedConnection(t, repo)

	body := []byte(`{"webhook_type":"ITEM","webhook_code":"ERROR","item_id":"item-1","error":{"error_type":"ITEM_ERROR","error_code":"ITEM_LOGIN_REQUIRED"}}`)
	rr := postWebhook(h, body, signBody(t, sp.key, body))
	require.Equal(t, 200, rr.Code)

	got, err := repo.GetConnection(context.Background(), conn.ID)
	require.NoError(t, err)
	require.Equal(t, core.ConnectionError, got.Status)

	n, err := repo.CountEvents(context.Background(), "t1", "", "")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestWebhook_UnhandledTypeStoredAndAcked(t *testing.T) {
	h, sp, repo := setupHandler(t)
	seedConnection(t, repo)

	body := []byte(`{"webhook_type":"HOLDINGS","webhook_code":"DEFAULT_UPDATE","item_id":"item-1"}`)
	rr := postWebhook(h, body, signBody(t, sp.key, body))
	require.Equal(t, 200, rr.Code)

	var resp webhookResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.False(t, resp.Handled)

	n, err := repo.CountEvents(context.Background(), "t1", "", "")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestLinkConnection_ExchangesAndStores(t *testing.T) {
	h, _, repo := setupHandler(t)

	payload := []byte(`{"tenant_id":"t1","office_id":"o1","public_token":"public-abc"}`)
	req := httptest.NewRequest("POST", "/v1/connections", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.LinkConnection(rr, req)

	require.Equal(t, 201, rr.Code)
	var conn core.Connection
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &conn))
	require.Equal(t, "item-1", conn.ExternalItemID)

	// la credencial quedó cifrada en el vault, nunca en la respuesta
	require.NotContains(t, rr.Body.String(), "access-tok")
	cred, err := repo.GetCredential(context.Background(), conn.ID)
	require.NoError(t, err)
	require.NotEqual(t, "access-tok", cred.AccessTokenEnc)
}

func TestLinkConnection_BadExchange(t *testing.T) {
	h, _, _ := setupHandler(t)

	payload := []byte(`{"tenant_id":"t1","office_id":"o1","public_token":"bad"}`)
	req := httptest.NewRequest("POST", "/v1/connections", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.LinkConnection(rr, req)
	require.Equal(t, 502, rr.Code)
}
