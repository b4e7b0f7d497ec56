package pg

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/jackc/pgx/v5"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
)

const receiptCols = `id, tenant_id, group_id, office_id, receipt_type, status, correlation_id,
actor_type, actor_id, action, result, created_at, hash_alg, content_hash, signature`

func (s *Store) InsertReceipt(ctx context.Context, r *core.Receipt) error {
	action, err := json.Marshal(orEmptyAny(r.Action))
	if err != nil {
		return err
	}
	result, err := json.Marshal(orEmptyAny(r.Result))
	if err != nil {
		return err
	}
	const q = `
INSERT INTO receipt
(id, tenant_id, group_id, office_id, receipt_type, status, correlation_id, actor_type, actor_id, action, result, hash_alg)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING created_at`
	err = s.pool.QueryRow(ctx, q,
		r.ID, r.TenantID, r.GroupID, r.OfficeID, r.Type, string(r.Status), r.CorrelationID,
		string(r.ActorType), r.ActorID, action, result, r.HashAlg).
		Scan(&r.CreatedAt)
	if err != nil {
		log.Printf(`{"level":"error","msg":"pg_insert_receipt_err","receipt_type":"%s","err":"%v"}`, r.Type, err)
		return err
	}
	return nil
}

func scanReceipt(row pgx.Row) (*core.Receipt, error) {
	var r core.Receipt
	var status, actor string
	var action, result []byte
	if err := row.Scan(&r.ID, &r.TenantID, &r.GroupID, &r.OfficeID, &r.Type, &status, &r.CorrelationID,
		&actor, &r.ActorID, &action, &result, &r.CreatedAt, &r.HashAlg, &r.Hash, &r.Signature); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	r.Status = core.ReceiptStatus(status)
	r.ActorType = core.ActorType(actor)
	if err := json.Unmarshal(action, &r.Action); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(result, &r.Result); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetReceipt(ctx context.Context, id string) (*core.Receipt, error) {
	const q = `SELECT ` + receiptCols + ` FROM receipt WHERE id = $1 LIMIT 1`
	return scanReceipt(s.pool.QueryRow(ctx, q, id))
}

// ListReceipts devuelve los receipts del tenant (y office si se indica),
// más nuevos primero.
func (s *Store) ListReceipts(ctx context.Context, tenantID, officeID string, limit int) ([]core.Receipt, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT ` + receiptCols + ` FROM receipt WHERE tenant_id = $1`
	args := []any{tenantID}
	if officeID != "" {
		args = append(args, officeID)
		q += ` AND office_id = $2`
	}
	args = append(args, limit)
	if officeID != "" {
		q += ` ORDER BY created_at DESC LIMIT $3`
	} else {
		q += ` ORDER BY created_at DESC LIMIT $2`
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReceipts(rows)
}

func (s *Store) ListUnsealedReceipts(ctx context.Context, limit int) ([]core.Receipt, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + receiptCols + ` FROM receipt WHERE content_hash IS NULL ORDER BY created_at LIMIT $1`
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReceipts(rows)
}

func collectReceipts(rows pgx.Rows) ([]core.Receipt, error) {
	var out []core.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// SealReceipt estampa hash+firma una única vez; el predicado content_hash IS
// NULL hace imposible re-sellar (o mutar) un receipt ya sellado.
func (s *Store) SealReceipt(ctx context.Context, id, hash, signature string) error {
	const q = `
UPDATE receipt SET content_hash = $2, signature = $3
WHERE id = $1 AND content_hash IS NULL`
	tag, err := s.pool.Exec(ctx, q, id, hash, signature)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// O no existe, o ya estaba sellado.
		if _, gerr := s.GetReceipt(ctx, id); gerr != nil {
			return gerr
		}
		return core.ErrImmutable
	}
	return nil
}
