package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const (
	masterKeyEnvVar   = "VAULT_MASTER_KEY"
	nonceSizeGCM      = 12  // AES-GCM nonce recomendado (96 bits)
	requiredKeyLength = 32  // 32 bytes => AES-256
	sep               = "|" // nonce|ciphertext (ambos en base64); el tag GCM viaja dentro del ciphertext
)

var (
	masterKey     []byte
	masterKeyOnce sync.Once
	loadErr       error
	mu            sync.RWMutex
)

// ensureLoaded carga la clave maestra desde VAULT_MASTER_KEY (base64) una sola
// vez. Si no está seteada, TODO encrypt/decrypt falla cerrado: nunca se cae a
// una clave default.
func ensureLoaded() error {
	masterKeyOnce.Do(func() {
		kb64 := strings.TrimSpace(os.Getenv(masterKeyEnvVar))
		if kb64 == "" {
			loadErr = fmt.Errorf("%s no seteada; genere una clave con: openssl rand -base64 32", masterKeyEnvVar)
			return
		}
		k, err := base64.StdEncoding.DecodeString(kb64)
		if err != nil {
			loadErr = fmt.Errorf("decode %s: %w", masterKeyEnvVar, err)
			return
		}
		if len(k) != requiredKeyLength {
			loadErr = fmt.Errorf("%s debe decodificar a %d bytes, obtuvo %d", masterKeyEnvVar, requiredKeyLength, len(k))
			return
		}
		mu.Lock()
		masterKey = make([]byte, len(k))
		copy(masterKey, k)
		mu.Unlock()
	})
	return loadErr
}

// Ready expone si la clave está disponible (útil para healthchecks).
// Fuerza la carga lazy: un proceso recién arrancado con la env bien
// seteada reporta listo sin esperar al primer Encrypt.
func Ready() bool {
	if err := ensureLoaded(); err != nil {
		return false
	}
	mu.RLock()
	defer mu.RUnlock()
	return len(masterKey) == requiredKeyLength
}

func keyCopy() []byte {
	mu.RLock()
	defer mu.RUnlock()
	k := make([]byte, len(masterKey))
	copy(k, masterKey)
	return k
}

// Encrypt cifra plainText y devuelve base64(nonce)|base64(ciphertext).
// Cada llamada usa un nonce aleatorio fresco.
func Encrypt(plainText string) (string, error) {
	if err := ensureLoaded(); err != nil {
		return "", err
	}

	block, err := aes.NewCipher(keyCopy())
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}

	ct := aesgcm.Seal(nil, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt recibe base64(nonce)|base64(ciphertext) y devuelve el texto plano.
// Ciphertext manipulado, clave equivocada o registro corrupto => error de
// autenticación GCM, nunca plaintext corrupto.
func Decrypt(cipherText string) (string, error) {
	if err := ensureLoaded(); err != nil {
		return "", err
	}

	parts := strings.Split(cipherText, sep)
	if len(parts) != 2 {
		return "", errors.New("formato inválido: esperado base64(nonce)|base64(ciphertext)")
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(nonce) != nonceSizeGCM {
		return "", fmt.Errorf("nonce inválido: esperado %d bytes, obtuvo %d", nonceSizeGCM, len(nonce))
	}

	block, err := aes.NewCipher(keyCopy())
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	pt, err := aesgcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("gcm auth/decrypt: %w", err)
	}
	return string(pt), nil
}

// --- Helpers para tests ---

// UnsafeResetForTests borra estado interno. Usar sólo en tests.
func UnsafeResetForTests() {
	mu.Lock()
	masterKey = nil
	mu.Unlock()
	masterKeyOnce = sync.Once{}
	loadErr = nil
}

// UnsafeSetMasterKeyForTests permite setear una clave cruda (32 bytes) en tests.
// Consume el Once para que ensureLoaded no pise la clave inyectada leyendo
// la env vacía.
func UnsafeSetMasterKeyForTests(k []byte) error {
	if len(k) != requiredKeyLength {
		return fmt.Errorf("clave inválida para test: se requieren %d bytes", requiredKeyLength)
	}
	UnsafeResetForTests()
	mu.Lock()
	masterKey = make([]byte, len(k))
	copy(masterKey, k)
	mu.Unlock()
	masterKeyOnce.Do(func() {})
	loadErr = nil
	return nil
}
