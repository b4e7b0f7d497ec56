package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
)

func (s *Store) GetCursor(ctx context.Context, connectionID, stream string) (*core.SyncCursor, error) {
	const q = `
SELECT connection_id, provider, stream, cursor, updated_at
FROM sync_cursor WHERE connection_id = $1 AND stream = $2 LIMIT 1`
	var c core.SyncCursor
	err := s.pool.QueryRow(ctx, q, connectionID, stream).
		Scan(&c.ConnectionID, &c.Provider, &c.Stream, &c.Cursor, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// UpsertCursor reemplaza el cursor vivo de (connection, stream). El caller
// sólo debe invocarlo después de que la página correspondiente quedó
// durablemente ingestada.
func (s *Store) UpsertCursor(ctx context.Context, c *core.SyncCursor) error {
	const q = `
INSERT INTO sync_cursor (connection_id, provider, stream, cursor, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (connection_id, stream)
DO UPDATE SET cursor = EXCLUDED.cursor, updated_at = now()
RETURNING updated_at`
	return s.pool.QueryRow(ctx, q, c.ConnectionID, c.Provider, c.Stream, c.Cursor).Scan(&c.UpdatedAt)
}

// DeleteCursor fuerza un resync completo en la próxima corrida.
func (s *Store) DeleteCursor(ctx context.Context, connectionID, stream string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sync_cursor WHERE connection_id = $1 AND stream = $2`, connectionID, stream)
	return err
}
