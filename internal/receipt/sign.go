package receipt

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
)

// La clave de firma vive sólo en RECEIPT_SIGNING_KEY (base64 del seed
// ed25519 de 32 bytes). Igual que la master key del vault: sin clave no
// hay fallback, el sealer falla cerrado.
const signingKeyEnv = "RECEIPT_SIGNING_KEY"

var (
	signMu   sync.Mutex
	signKey  ed25519.PrivateKey
	signErr  error
	signOnce bool
)

func ensureSigningKey() error {
	signMu.Lock()
	defer signMu.Unlock()
	if signOnce {
		return signErr
	}
	signOnce = true

	raw := os.Getenv(signingKeyEnv)
	if raw == "" {
		signErr = errors.New("receipt: " + signingKeyEnv + " is not set")
		return signErr
	}
	seed, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		signErr = fmt.Errorf("receipt: %s is not valid base64: %w", signingKeyEnv, err)
		return signErr
	}
	if len(seed) != ed25519.SeedSize {
		signErr = fmt.Errorf("receipt: %s must decode to %d bytes, got %d", signingKeyEnv, ed25519.SeedSize, len(seed))
		return signErr
	}
	signKey = ed25519.NewKeyFromSeed(seed)
	signErr = nil
	return nil
}

// SigningReady dice si hay clave cargada, sin exponerla.
func SigningReady() bool { return ensureSigningKey() == nil }

// Sign firma el hash hex del recibo y devuelve la firma en hex.
func Sign(contentHash string) (string, error) {
	if err := ensureSigningKey(); err != nil {
		return "", err
	}
	msg, err := hex.DecodeString(contentHash)
	if err != nil {
		return "", fmt.Errorf("receipt: content hash is not hex: %w", err)
	}
	sig := ed25519.Sign(signKey, msg)
	return hex.EncodeToString(sig), nil
}

// PublicKey devuelve la clave pública de verificación.
func PublicKey() (ed25519.PublicKey, error) {
	if err := ensureSigningKey(); err != nil {
		return nil, err
	}
	return signKey.Public().(ed25519.PublicKey), nil
}

// UnsafeResetSigningForTests limpia el estado cacheado de la clave.
// Sólo para tests.
func UnsafeResetSigningForTests() {
	signMu.Lock()
	defer signMu.Unlock()
	signKey = nil
	signErr = nil
	signOnce = false
}
