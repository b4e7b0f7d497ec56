// Package receipt implementa el libro de recibos firmados: cada acción
// gobernada deja una fila append-only que un sealer de fondo estampa con
// hash y firma ed25519.
package receipt

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/observability/logger"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/observability/metrics"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
)

// Entry es lo que un caller aporta para dejar un recibo. El resto
// (id, timestamps, hash, firma) lo pone el ledger o el sealer.
type Entry struct {
	TenantID      string
	GroupID       string
	OfficeID      *string
	Type          string // dotted action name, e.g. "sync.run"
	Status        core.ReceiptStatus
	CorrelationID *string
	ActorType     core.ActorType
	ActorID       *string
	Action        map[string]any
	Result        map[string]any
}

// LegacyEntry es la forma vieja de los callers que todavía mandan
// action_type/inputs/outputs planos. Se adapta anidando inputs bajo
// action y outputs bajo result; nadie nuevo debería usarla.
type LegacyEntry struct {
	TenantID   string
	GroupID    string
	ActionType string
	Status     core.ReceiptStatus
	ActorType  core.ActorType
	Inputs     map[string]any
	Outputs    map[string]any
}

type Ledger struct {
	repo core.Repository
}

func NewLedger(repo core.Repository) *Ledger {
	return &Ledger{repo: repo}
}

// Write inserta el recibo con hash/firma en NULL; el sealer los estampa
// después. Devuelve el recibo tal como quedó persistido.
func (l *Ledger) Write(ctx context.Context, e Entry) (*core.Receipt, error) {
	if e.TenantID == "" || e.Type == "" {
		return nil, fmt.Errorf("receipt: %w: tenant_id and type are required", core.ErrInvalid)
	}
	if e.Status == "" {
		e.Status = core.ReceiptSucceeded
	}
	if e.ActorType == "" {
		e.ActorType = core.ActorSystem
	}
	if e.GroupID == "" {
		e.GroupID = e.TenantID
	}
	r := &core.Receipt{
		ID:            uuid.NewString(),
		TenantID:      e.TenantID,
		GroupID:       e.GroupID,
		OfficeID:      e.OfficeID,
		Type:          e.Type,
		Status:        e.Status,
		CorrelationID: e.CorrelationID,
		ActorType:     e.ActorType,
		ActorID:       e.ActorID,
		Action:        e.Action,
		Result:        e.Result,
		CreatedAt:     time.Now().UTC(),
		HashAlg:       HashAlg,
	}
	if r.Action == nil {
		r.Action = map[string]any{}
	}
	if r.Result == nil {
		r.Result = map[string]any{}
	}
	if err := l.repo.InsertReceipt(ctx, r); err != nil {
		return nil, fmt.Errorf("receipt: insert: %w", err)
	}
	metrics.ReceiptsWritten.Inc()
	logger.From(ctx).Debug("receipt written",
		logger.ReceiptID(r.ID), logger.String("receipt_type", r.Type))
	return r, nil
}

// WriteLegacy adapta el formato viejo al actual y delega en Write.
func (l *Ledger) WriteLegacy(ctx context.Context, e LegacyEntry) (*core.Receipt, error) {
	return l.Write(ctx, Entry{
		TenantID:  e.TenantID,
		GroupID:   e.GroupID,
		Type:      e.ActionType,
		Status:    e.Status,
		ActorType: e.ActorType,
		Action:    map[string]any{"inputs": e.Inputs},
		Result:    map[string]any{"outputs": e.Outputs},
	})
}

// Get devuelve un recibo por id.
func (l *Ledger) Get(ctx context.Context, id string) (*core.Receipt, error) {
	return l.repo.GetReceipt(ctx, id)
}

// List devuelve los recibos más recientes primero, filtrables por office.
func (l *Ledger) List(ctx context.Context, tenantID, officeID string, limit int) ([]core.Receipt, error) {
	return l.repo.ListReceipts(ctx, tenantID, officeID, limit)
}
