package pg

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
)

func (s *Store) CreateCredential(ctx context.Context, c *core.Credential) error {
	const q = `
INSERT INTO credential (connection_id, access_token_enc, refresh_token_enc, expires_at)
VALUES ($1, $2, $3, $4)
RETURNING rotation_version, updated_at`
	err := s.pool.QueryRow(ctx, q, c.ConnectionID, c.AccessTokenEnc, c.RefreshTokenEnc, c.ExpiresAt).
		Scan(&c.RotationVersion, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict
		}
		log.Printf(`{"level":"error","msg":"pg_create_credential_err","connection_id":"%s","err":"%v"}`, c.ConnectionID, err)
		return err
	}
	return nil
}

func (s *Store) GetCredential(ctx context.Context, connectionID string) (*core.Credential, error) {
	const q = `
SELECT connection_id, access_token_enc, refresh_token_enc, expires_at, rotation_version, updated_at
FROM credential WHERE connection_id = $1 LIMIT 1`
	var c core.Credential
	err := s.pool.QueryRow(ctx, q, connectionID).
		Scan(&c.ConnectionID, &c.AccessTokenEnc, &c.RefreshTokenEnc, &c.ExpiresAt, &c.RotationVersion, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// UpdateCredential incrementa rotation_version en el mismo statement para que
// la monotonicidad no dependa de un read-modify-write en Go. COALESCE preserva
// el refresh anterior cuando la rotación no trae uno nuevo.
func (s *Store) UpdateCredential(ctx context.Context, connectionID, accessEnc string, refreshEnc *string, expiresAt *time.Time) (int, error) {
	const q = `
UPDATE credential
SET access_token_enc = $2,
    refresh_token_enc = COALESCE($3, refresh_token_enc),
    expires_at = $4,
    rotation_version = rotation_version + 1,
    updated_at = now()
WHERE connection_id = $1
RETURNING rotation_version`
	var version int
	err := s.pool.QueryRow(ctx, q, connectionID, accessEnc, refreshEnc, expiresAt).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, core.ErrNotFound
		}
		log.Printf(`{"level":"error","msg":"pg_rotate_credential_err","connection_id":"%s","err":"%v"}`, connectionID, err)
		return 0, err
	}
	return version, nil
}

func (s *Store) DeleteCredential(ctx context.Context, connectionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM credential WHERE connection_id = $1`, connectionID)
	return err
}
