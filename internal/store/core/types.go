package core

import "time"

// ConnectionStatus refleja el estado operativo de un enlace con el provider.
type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionError        ConnectionStatus = "error"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// Connection is the durable link between one (tenant, office) and one
// upstream provider account. At most one per (tenant, office, provider).
type Connection struct {
	ID             string           `json:"id"`
	TenantID       string           `json:"tenant_id"`
	OfficeID       string           `json:"office_id"`
	Provider       string           `json:"provider"`
	ExternalItemID string           `json:"external_item_id"`
	Status         ConnectionStatus `json:"status"`
	Scopes         []string         `json:"scopes"`
	LastSyncAt     *time.Time       `json:"last_sync_at,omitempty"`
	LastWebhookAt  *time.Time       `json:"last_webhook_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Credential is the encrypted token set bound 1:1 to a Connection.
// Token fields hold secretbox ciphertext, never plaintext.
type Credential struct {
	ConnectionID    string     `json:"connection_id"`
	AccessTokenEnc  string     `json:"-"`
	RefreshTokenEnc *string    `json:"-"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	RotationVersion int        `json:"rotation_version"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// EventType es una enumeración cerrada; todo lo que no matchea se ingesta
// como EventUnhandled con el tipo crudo en metadata.
type EventType string

const (
	EventTransactionPosted  EventType = "bank.transaction.posted"
	EventTransactionPending EventType = "bank.transaction.pending"
	EventTransactionRemoved EventType = "bank.transaction.removed"
	EventBalanceSnapshot    EventType = "bank.balance.snapshot"
	EventItemError          EventType = "bank.item.error"
	EventUnhandled          EventType = "bank.unhandled"
)

// FinancialEvent is one normalized provider-sourced fact. The tuple
// (tenant_id, office_id, provider, provider_event_id) is the idempotency key:
// re-ingesting it is a no-op, never an error. Rows are append-only.
type FinancialEvent struct {
	ID              string            `json:"id"`
	TenantID        string            `json:"tenant_id"`
	OfficeID        string            `json:"office_id"`
	ConnectionID    *string           `json:"connection_id,omitempty"`
	Provider        string            `json:"provider"`
	ProviderEventID string            `json:"provider_event_id"`
	Type            EventType         `json:"type"`
	OccurredAt      time.Time         `json:"occurred_at"`
	AmountMinor     *int64            `json:"amount_minor,omitempty"` // signed, minor units; nil para eventos no monetarios
	Currency        string            `json:"currency,omitempty"`     // lowercase ISO code
	Status          string            `json:"status"`
	EntityRefs      map[string]string `json:"entity_refs,omitempty"`
	RawHash         string            `json:"raw_hash,omitempty"`
	ReceiptID       *string           `json:"receipt_id,omitempty"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// SyncCursor es el marcador de paginación reanudable: uno vivo por
// (connection, stream). Sólo se reemplaza después de que la página
// correspondiente quedó durablemente ingestada.
type SyncCursor struct {
	ConnectionID string    `json:"connection_id"`
	Provider     string    `json:"provider"`
	Stream       string    `json:"stream"`
	Cursor       string    `json:"cursor"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StreamTransactions is the only pull stream today; the cursor table is keyed
// by stream so balance/liability streams can be added without migration.
const StreamTransactions = "transactions"

type ReceiptStatus string

const (
	ReceiptPending   ReceiptStatus = "PENDING"
	ReceiptSucceeded ReceiptStatus = "SUCCEEDED"
	ReceiptFailed    ReceiptStatus = "FAILED"
	ReceiptDenied    ReceiptStatus = "DENIED"
)

type ActorType string

const (
	ActorUser   ActorType = "USER"
	ActorSystem ActorType = "SYSTEM"
	ActorWorker ActorType = "WORKER"
)

// Receipt is one immutable record of a governed action. action/result/status
// never change after the write; only content_hash and signature are stamped
// later by the sealer.
type Receipt struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	GroupID       string         `json:"group_id"`
	OfficeID      *string        `json:"office_id,omitempty"`
	Type          string         `json:"type"` // dotted action name, e.g. "webhook.ingest"
	Status        ReceiptStatus  `json:"status"`
	CorrelationID *string        `json:"correlation_id,omitempty"`
	ActorType     ActorType      `json:"actor_type"`
	ActorID       *string        `json:"actor_id,omitempty"`
	Action        map[string]any `json:"action"`
	Result        map[string]any `json:"result"`
	CreatedAt     time.Time      `json:"created_at"`
	HashAlg       string         `json:"hash_alg"`
	Hash          *string        `json:"hash,omitempty"`
	Signature     *string        `json:"signature,omitempty"`
}

// Sealed reporta si el sealer ya estampó hash+firma.
func (r *Receipt) Sealed() bool {
	return r.Hash != nil && *r.Hash != ""
}
