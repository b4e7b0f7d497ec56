package pg

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
)

const connCols = `id, tenant_id, office_id, provider, external_item_id, status, scopes, last_sync_at, last_webhook_at, created_at`

func scanConnection(row pgx.Row) (*core.Connection, error) {
	var c core.Connection
	var status string
	if err := row.Scan(&c.ID, &c.TenantID, &c.OfficeID, &c.Provider, &c.ExternalItemID,
		&status, &c.Scopes, &c.LastSyncAt, &c.LastWebhookAt, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	c.Status = core.ConnectionStatus(status)
	return &c, nil
}

func (s *Store) CreateConnection(ctx context.Context, c *core.Connection) error {
	if c.Status == "" {
		c.Status = core.ConnectionConnected
	}
	if c.Scopes == nil {
		c.Scopes = []string{}
	}
	const q = `
INSERT INTO connection (tenant_id, office_id, provider, external_item_id, status, scopes)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at`
	err := s.pool.QueryRow(ctx, q,
		c.TenantID, c.OfficeID, c.Provider, c.ExternalItemID, string(c.Status), c.Scopes).
		Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict
		}
		log.Printf(`{"level":"error","msg":"pg_create_connection_err","tenant_id":"%s","provider":"%s","err":"%v"}`, c.TenantID, c.Provider, err)
		return err
	}
	return nil
}

func (s *Store) GetConnection(ctx context.Context, id string) (*core.Connection, error) {
	const q = `SELECT ` + connCols + ` FROM connection WHERE id = $1 LIMIT 1`
	return scanConnection(s.pool.QueryRow(ctx, q, id))
}

func (s *Store) GetConnectionByExternalID(ctx context.Context, provider, externalItemID string) (*core.Connection, error) {
	const q = `SELECT ` + connCols + ` FROM connection WHERE provider = $1 AND external_item_id = $2 LIMIT 1`
	return scanConnection(s.pool.QueryRow(ctx, q, provider, externalItemID))
}

func (s *Store) FindConnection(ctx context.Context, tenantID, officeID, provider string) (*core.Connection, error) {
	const q = `SELECT ` + connCols + ` FROM connection WHERE tenant_id = $1 AND office_id = $2 AND provider = $3 LIMIT 1`
	return scanConnection(s.pool.QueryRow(ctx, q, tenantID, officeID, provider))
}

func (s *Store) ListConnections(ctx context.Context, tenantID string) ([]core.Connection, error) {
	const q = `SELECT ` + connCols + ` FROM connection WHERE tenant_id = $1 ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConnections(rows)
}

func (s *Store) ListConnectionsByStatus(ctx context.Context, status core.ConnectionStatus) ([]core.Connection, error) {
	const q = `SELECT ` + connCols + ` FROM connection WHERE status = $1 ORDER BY created_at`
	rows, err := s.pool.Query(ctx, q, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConnections(rows)
}

func collectConnections(rows pgx.Rows) ([]core.Connection, error) {
	var out []core.Connection
	for rows.Next() {
		var c core.Connection
		var status string
		if err := rows.Scan(&c.ID, &c.TenantID, &c.OfficeID, &c.Provider, &c.ExternalItemID,
			&status, &c.Scopes, &c.LastSyncAt, &c.LastWebhookAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Status = core.ConnectionStatus(status)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateConnectionStatus(ctx context.Context, id string, status core.ConnectionStatus) error {
	const q = `UPDATE connection SET status = $2 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) TouchConnectionSync(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE connection SET last_sync_at = $2 WHERE id = $1`
	_, err := s.pool.Exec(ctx, q, id, at)
	return err
}

func (s *Store) TouchConnectionWebhook(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE connection SET last_webhook_at = $2 WHERE id = $1`
	_, err := s.pool.Exec(ctx, q, id, at)
	return err
}
