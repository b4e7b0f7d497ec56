package pg

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/jackc/pgx/v5"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
)

// InsertEvent intenta el insert; si la tupla de idempotencia ya existe,
// ON CONFLICT DO NOTHING la convierte en no-op y devolvemos written=false.
// Esta es la propiedad central del subsistema: los providers reenvían
// notificaciones y páginas solapadas de forma rutinaria.
func (s *Store) InsertEvent(ctx context.Context, e *core.FinancialEvent) (bool, error) {
	refs, err := json.Marshal(orEmptyStr(e.EntityRefs))
	if err != nil {
		return false, err
	}
	meta, err := json.Marshal(orEmptyAny(e.Metadata))
	if err != nil {
		return false, err
	}

	const q = `
INSERT INTO financial_event
(tenant_id, office_id, connection_id, provider, provider_event_id, event_type,
 occurred_at, amount_minor, currency, status, entity_refs, raw_hash, receipt_id, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT ON CONSTRAINT financial_event_idem DO NOTHING
RETURNING id, created_at`
	err = s.pool.QueryRow(ctx, q,
		e.TenantID, e.OfficeID, e.ConnectionID, e.Provider, e.ProviderEventID, string(e.Type),
		e.OccurredAt, e.AmountMinor, e.Currency, e.Status, refs, e.RawHash, e.ReceiptID, meta).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Colisión idempotente: la fila ya existe, no es un error.
			return false, nil
		}
		log.Printf(`{"level":"error","msg":"pg_insert_event_err","provider":"%s","provider_event_id":"%s","err":"%v"}`, e.Provider, e.ProviderEventID, err)
		return false, err
	}
	return true, nil
}

func (s *Store) CountEvents(ctx context.Context, tenantID, officeID, provider string) (int64, error) {
	q := `SELECT COUNT(*) FROM financial_event WHERE tenant_id = $1`
	args := []any{tenantID}
	if officeID != "" {
		args = append(args, officeID)
		q += ` AND office_id = $2`
	}
	if provider != "" {
		args = append(args, provider)
		if len(args) == 2 {
			q += ` AND provider = $2`
		} else {
			q += ` AND provider = $3`
		}
	}
	var n int64
	if err := s.pool.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func orEmptyStr(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptyAny(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
