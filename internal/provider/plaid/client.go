// Package plaid implementa provider.Client contra la API HTTP de Plaid.
package plaid

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/provider"
)

const (
	envSandbox     = "sandbox"
	envDevelopment = "development"
	envProduction  = "production"

	defaultTimeout = 30 * time.Second
	syncPageSize   = 100
)

type Config struct {
	ClientID    string
	Secret      string
	Environment string // sandbox | development | production
	BaseURL     string // override explícito; si vacío se deriva del environment
}

type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("plaid: client id and secret are required")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		switch strings.ToLower(cfg.Environment) {
		case envProduction:
			base = "https://production.plaid.com"
		case envDevelopment:
			base = "https://development.plaid.com"
		case envSandbox, "":
			base = "https://sandbox.plaid.com"
		default:
			return nil, fmt.Errorf("plaid: unknown environment %q", cfg.Environment)
		}
	}
	return &Client{
		cfg:     cfg,
		baseURL: base,
		http:    &http.Client{Timeout: defaultTimeout},
	}, nil
}

func (c *Client) Name() string { return "plaid" }

// post ejecuta un POST JSON agregando las credenciales del cliente al body,
// como exige la API.
func (c *Client) post(ctx context.Context, path string, body map[string]any, out any) error {
	body["client_id"] = c.cfg.ClientID
	body["secret"] = c.cfg.Secret

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("plaid: %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("plaid: %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("plaid: %s: decode: %w", path, err)
	}
	return nil
}

type syncResponse struct {
	Added    []transaction        `json:"added"`
	Modified []transaction        `json:"modified"`
	Removed  []removedTransaction `json:"removed"`
	NextCursor string             `json:"next_cursor"`
	HasMore    bool               `json:"has_more"`
}

type transaction struct {
	TransactionID   string  `json:"transaction_id"`
	AccountID       string  `json:"account_id"`
	Amount          float64 `json:"amount"`
	ISOCurrencyCode string  `json:"iso_currency_code"`
	Pending         bool    `json:"pending"`
	Date            string  `json:"date"`
	Name            string  `json:"name"`
}

type removedTransaction struct {
	TransactionID string `json:"transaction_id"`
	AccountID     string `json:"account_id"`
}

func (c *Client) TransactionsSync(ctx context.Context, accessToken, cursor string) (*provider.SyncPage, error) {
	body := map[string]any{
		"access_token": accessToken,
		"count":        syncPageSize,
	}
	if cursor != "" {
		body["cursor"] = cursor
	}
	var resp syncResponse
	if err := c.post(ctx, "/transactions/sync", body, &resp); err != nil {
		return nil, err
	}

	page := &provider.SyncPage{
		NextCursor: resp.NextCursor,
		HasMore:    resp.HasMore,
	}
	for _, t := range resp.Added {
		norm, err := normalizeTransaction(t)
		if err != nil {
			return nil, err
		}
		page.Added = append(page.Added, norm)
	}
	for _, t := range resp.Modified {
		norm, err := normalizeTransaction(t)
		if err != nil {
			return nil, err
		}
		page.Modified = append(page.Modified, norm)
	}
	for _, r := range resp.Removed {
		page.Removed = append(page.Removed, provider.RemovedTransaction{ID: r.TransactionID, AccountID: r.AccountID})
	}
	return page, nil
}

// normalizeTransaction pasa el monto de dólares float a unidades menores con
// signo invertido: la API reporta débitos como positivos y nosotros
// persistimos salidas de dinero como negativas.
func normalizeTransaction(t transaction) (provider.Transaction, error) {
	date, err := time.Parse("2006-01-02", t.Date)
	if err != nil {
		return provider.Transaction{}, fmt.Errorf("plaid: transaction %s trae fecha inválida %q: %w", t.TransactionID, t.Date, err)
	}
	return provider.Transaction{
		ID:          t.TransactionID,
		AccountID:   t.AccountID,
		AmountMinor: -int64(math.Round(t.Amount * 100)),
		Currency:    strings.ToLower(t.ISOCurrencyCode),
		Pending:     t.Pending,
		Date:        date,
		Description: t.Name,
	}, nil
}

type balancesResponse struct {
	Accounts []struct {
		AccountID string `json:"account_id"`
		Name      string `json:"name"`
		Balances  struct {
			Current         *float64 `json:"current"`
			Available       *float64 `json:"available"`
			ISOCurrencyCode string   `json:"iso_currency_code"`
		} `json:"balances"`
	} `json:"accounts"`
}

func (c *Client) Balances(ctx context.Context, accessToken string) ([]provider.AccountBalance, error) {
	var resp balancesResponse
	if err := c.post(ctx, "/accounts/balance/get", map[string]any{"access_token": accessToken}, &resp); err != nil {
		return nil, err
	}
	out := make([]provider.AccountBalance, 0, len(resp.Accounts))
	for _, a := range resp.Accounts {
		out = append(out, provider.AccountBalance{
			AccountID:      a.AccountID,
			Name:           a.Name,
			CurrentMinor:   toMinor(a.Balances.Current),
			AvailableMinor: toMinor(a.Balances.Available),
			Currency:       strings.ToLower(a.Balances.ISOCurrencyCode),
		})
	}
	return out, nil
}

func toMinor(v *float64) *int64 {
	if v == nil {
		return nil
	}
	m := int64(math.Round(*v * 100))
	return &m
}

type exchangeResponse struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
}

func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*provider.LinkResult, error) {
	var resp exchangeResponse
	if err := c.post(ctx, "/item/public_token/exchange", map[string]any{"public_token": publicToken}, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" || resp.ItemID == "" {
		return nil, errors.New("plaid: exchange returned empty token or item id")
	}
	return &provider.LinkResult{ItemID: resp.ItemID, AccessToken: resp.AccessToken}, nil
}

type verificationKeyResponse struct {
	Key json.RawMessage `json:"key"`
}

func (c *Client) VerificationKey(ctx context.Context, keyID string) (*ecdsa.PublicKey, error) {
	var resp verificationKeyResponse
	if err := c.post(ctx, "/webhook_verification_key/get", map[string]any{"key_id": keyID}, &resp); err != nil {
		return nil, err
	}
	return ParseES256JWK(resp.Key)
}
