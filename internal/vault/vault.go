// Package vault guarda y rota los tokens de acceso del provider, cifrados
// campo por campo con secretbox. El Vault es la única fuente de verdad: la
// copia en memoria es un cache de vida corta que se invalida en cada
// rotación, nunca un estado global de proceso.
package vault

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/security/secretbox"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
)

const (
	cacheTTL     = 60 * time.Second
	cacheCleanup = 5 * time.Minute
)

// Tokens es el set de credenciales en claro que ve el caller. Nunca se
// persiste en esta forma.
type Tokens struct {
	AccessToken     string
	RefreshToken    *string
	ExpiresAt       *time.Time
	RotationVersion int
}

type Vault struct {
	repo  core.Repository
	cache *gocache.Cache
}

func New(repo core.Repository) *Vault {
	return &Vault{
		repo:  repo,
		cache: gocache.New(cacheTTL, cacheCleanup),
	}
}

// Save crea la credencial de una conexión nueva. Falla con core.ErrConflict
// si la conexión ya tiene credencial (usar Rotate en ese caso).
func (v *Vault) Save(ctx context.Context, connectionID, accessToken string, refreshToken *string, expiresAt *time.Time) error {
	accessEnc, err := secretbox.Encrypt(accessToken)
	if err != nil {
		return fmt.Errorf("vault: encrypt access token: %w", err)
	}
	var refreshEnc *string
	if refreshToken != nil {
		enc, err := secretbox.Encrypt(*refreshToken)
		if err != nil {
			return fmt.Errorf("vault: encrypt refresh token: %w", err)
		}
		refreshEnc = &enc
	}
	cred := &core.Credential{
		ConnectionID:    connectionID,
		AccessTokenEnc:  accessEnc,
		RefreshTokenEnc: refreshEnc,
		ExpiresAt:       expiresAt,
	}
	if err := v.repo.CreateCredential(ctx, cred); err != nil {
		return err
	}
	v.cache.Delete(connectionID)
	return nil
}

// Load devuelve los tokens en claro. Cachea el resultado por un TTL corto;
// un fallo de descifrado (registro corrupto, clave equivocada) siempre se
// propaga, nunca se devuelve plaintext corrupto.
func (v *Vault) Load(ctx context.Context, connectionID string) (*Tokens, error) {
	if cached, ok := v.cache.Get(connectionID); ok {
		t := cached.(Tokens)
		return &t, nil
	}

	cred, err := v.repo.GetCredential(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	access, err := secretbox.Decrypt(cred.AccessTokenEnc)
	if err != nil {
		return nil, fmt.Errorf("vault: decrypt access token for %s: %w", connectionID, err)
	}
	t := Tokens{
		AccessToken:     access,
		ExpiresAt:       cred.ExpiresAt,
		RotationVersion: cred.RotationVersion,
	}
	if cred.RefreshTokenEnc != nil {
		refresh, err := secretbox.Decrypt(*cred.RefreshTokenEnc)
		if err != nil {
			return nil, fmt.Errorf("vault: decrypt refresh token for %s: %w", connectionID, err)
		}
		t.RefreshToken = &refresh
	}

	v.cache.Set(connectionID, t, cacheTTL)
	return &t, nil
}

// Rotate reemplaza el access token (y opcionalmente el refresh) e incrementa
// rotation_version de forma monotónica. Un refresh nil preserva el anterior:
// algunos flows de rotación omiten el refresh cuando no cambió. Invalida el
// cache antes de devolver.
func (v *Vault) Rotate(ctx context.Context, connectionID, newAccessToken string, newRefreshToken *string, newExpiresAt *time.Time) (int, error) {
	accessEnc, err := secretbox.Encrypt(newAccessToken)
	if err != nil {
		return 0, fmt.Errorf("vault: encrypt access token: %w", err)
	}
	var refreshEnc *string
	if newRefreshToken != nil {
		enc, err := secretbox.Encrypt(*newRefreshToken)
		if err != nil {
			return 0, fmt.Errorf("vault: encrypt refresh token: %w", err)
		}
		refreshEnc = &enc
	}

	version, err := v.repo.UpdateCredential(ctx, connectionID, accessEnc, refreshEnc, newExpiresAt)
	if err != nil {
		return 0, err
	}
	v.cache.Delete(connectionID)
	return version, nil
}

// Purge elimina la credencial (disconnect explícito de la conexión).
func (v *Vault) Purge(ctx context.Context, connectionID string) error {
	v.cache.Delete(connectionID)
	return v.repo.DeleteCredential(ctx, connectionID)
}
