package core

import (
	"context"
	"time"
)

// Repository es el contrato de persistencia que implementan los drivers
// (pg para producción, memory para dev/tests). La restricción de unicidad
// de financial_event es el único primitivo de sincronización cross-task:
// InsertEvent NUNCA falla por duplicado, devuelve written=false.
type Repository interface {
	// Connections
	CreateConnection(ctx context.Context, c *Connection) error
	GetConnection(ctx context.Context, id string) (*Connection, error)
	GetConnectionByExternalID(ctx context.Context, provider, externalItemID string) (*Connection, error)
	FindConnection(ctx context.Context, tenantID, officeID, provider string) (*Connection, error)
	ListConnections(ctx context.Context, tenantID string) ([]Connection, error)
	ListConnectionsByStatus(ctx context.Context, status ConnectionStatus) ([]Connection, error)
	UpdateConnectionStatus(ctx context.Context, id string, status ConnectionStatus) error
	TouchConnectionSync(ctx context.Context, id string, at time.Time) error
	TouchConnectionWebhook(ctx context.Context, id string, at time.Time) error

	// Credentials (1:1 con Connection)
	CreateCredential(ctx context.Context, c *Credential) error
	GetCredential(ctx context.Context, connectionID string) (*Credential, error)
	// UpdateCredential reemplaza los tokens cifrados e incrementa
	// rotation_version atómicamente. refreshEnc == nil preserva el refresh
	// anterior. Devuelve la versión resultante.
	UpdateCredential(ctx context.Context, connectionID, accessEnc string, refreshEnc *string, expiresAt *time.Time) (int, error)
	DeleteCredential(ctx context.Context, connectionID string) error

	// Financial events (append-only, idempotent on the tuple key)
	InsertEvent(ctx context.Context, e *FinancialEvent) (written bool, err error)
	CountEvents(ctx context.Context, tenantID, officeID, provider string) (int64, error)

	// Sync cursors
	GetCursor(ctx context.Context, connectionID, stream string) (*SyncCursor, error)
	UpsertCursor(ctx context.Context, c *SyncCursor) error
	DeleteCursor(ctx context.Context, connectionID, stream string) error

	// Receipts (append-only; sólo hash/firma son estampables después)
	InsertReceipt(ctx context.Context, r *Receipt) error
	GetReceipt(ctx context.Context, id string) (*Receipt, error)
	ListReceipts(ctx context.Context, tenantID, officeID string, limit int) ([]Receipt, error)
	ListUnsealedReceipts(ctx context.Context, limit int) ([]Receipt, error)
	// SealReceipt estampa hash+firma sólo si aún están vacíos; ErrImmutable
	// si el receipt ya fue sellado.
	SealReceipt(ctx context.Context, id, hash, signature string) error

	Ping(ctx context.Context) error
	Close()
}
