// Package provider define el contrato con los data providers externos
// (agregación bancaria). El único punto de acoplamiento del resto del
// sistema es esta interfaz; plaid/ es la implementación HTTP real y los
// tests usan fakes.
package provider

import (
	"context"
	"crypto/ecdsa"
	"time"
)

// Transaction es un ítem de la página de sync, ya normalizado a unidades
// menores con signo.
type Transaction struct {
	ID          string
	AccountID   string
	AmountMinor int64
	Currency    string // lowercase ISO
	Pending     bool
	Date        time.Time
	Description string
}

// RemovedTransaction identifica un ítem retirado upstream.
type RemovedTransaction struct {
	ID        string
	AccountID string
}

// SyncPage es una página del stream incremental: deltas clasificados más el
// token de continuación.
type SyncPage struct {
	Added      []Transaction
	Modified   []Transaction
	Removed    []RemovedTransaction
	NextCursor string
	HasMore    bool
}

// AccountBalance es una lectura puntual de saldo por cuenta.
type AccountBalance struct {
	AccountID      string
	Name           string
	CurrentMinor   *int64
	AvailableMinor *int64
	Currency       string
}

// LinkResult es el resultado de canjear un public token.
type LinkResult struct {
	ItemID      string
	AccessToken string
}

type Client interface {
	// Name es el identificador lógico del provider ("plaid").
	Name() string

	// TransactionsSync trae la siguiente página de deltas. cursor vacío
	// significa historia completa desde el principio.
	TransactionsSync(ctx context.Context, accessToken, cursor string) (*SyncPage, error)

	// Balances devuelve el snapshot de saldos de todas las cuentas del item.
	Balances(ctx context.Context, accessToken string) ([]AccountBalance, error)

	// ExchangePublicToken canjea el token público del flujo de link por el
	// access token durable.
	ExchangePublicToken(ctx context.Context, publicToken string) (*LinkResult, error)

	// VerificationKey trae la clave pública (ES256) que firma los webhooks
	// del provider, por key id.
	VerificationKey(ctx context.Context, keyID string) (*ecdsa.PublicKey, error)
}
