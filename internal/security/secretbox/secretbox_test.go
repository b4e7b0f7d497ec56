package secretbox

import (
	"encoding/base64"
	"os"
	"strings"
	"testing"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	UnsafeResetForTests()

	// Clave de 32 bytes -> base64
	raw := make([]byte, 32)
	for i := 0; i < 32; i++ {
		raw[i] = byte(i + 1)
	}
	os.Setenv("VAULT_MASTER_KEY", base64.StdEncoding.EncodeToString(raw))

	msg := "access-sandbox-1b2c3d ✓ — token"
	ct, err := Encrypt(msg)
	if err != nil {
		t.Fatalf("Encrypt err: %v", err)
	}
	pt, err := Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt err: %v", err)
	}
	if pt != msg {
		t.Fatalf("plaintext mismatch: got %q want %q", pt, msg)
	}
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	UnsafeResetForTests()
	raw := make([]byte, 32)
	if err := UnsafeSetMasterKeyForTests(raw); err != nil {
		t.Fatal(err)
	}
	a, err := Encrypt("same plaintext")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encrypt("same plaintext")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("two encryptions of the same plaintext produced identical output")
	}
}

func TestDecrypt_DetectsTamper(t *testing.T) {
	UnsafeResetForTests()

	raw := make([]byte, 32)
	for i := 0; i < 32; i++ {
		raw[i] = byte(255 - i)
	}
	os.Setenv("VAULT_MASTER_KEY", base64.StdEncoding.EncodeToString(raw))

	ct, err := Encrypt("top secret")
	if err != nil {
		t.Fatalf("Encrypt err: %v", err)
	}
	parts := strings.Split(ct, "|")
	if len(parts) != 2 {
		t.Fatalf("unexpected ct format")
	}
	// corromper un byte del ciphertext (base64 -> bytes -> flip -> base64)
	bs, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatal(err)
	}
	if len(bs) == 0 {
		t.Fatal("empty ct")
	}
	bs[0] ^= 0x01 // flip
	parts[1] = base64.StdEncoding.EncodeToString(bs)
	corrupted := parts[0] + "|" + parts[1]

	if _, err := Decrypt(corrupted); err == nil {
		t.Fatalf("expected auth error, got nil")
	}
}

func TestInjectedKey_SurvivesFirstEncrypt(t *testing.T) {
	UnsafeResetForTests()
	os.Unsetenv("VAULT_MASTER_KEY")
	t.Cleanup(UnsafeResetForTests)

	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i * 3)
	}
	if err := UnsafeSetMasterKeyForTests(raw); err != nil {
		t.Fatal(err)
	}
	// el primer Encrypt no debe re-disparar la carga desde la env vacía
	ct, err := Encrypt("still here")
	if err != nil {
		t.Fatalf("Encrypt tras inyectar clave: %v", err)
	}
	pt, err := Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt err: %v", err)
	}
	if pt != "still here" {
		t.Fatalf("plaintext mismatch: %q", pt)
	}
}

func TestReady_LoadsKeyLazily(t *testing.T) {
	UnsafeResetForTests()
	t.Cleanup(UnsafeResetForTests)

	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i + 40)
	}
	t.Setenv("VAULT_MASTER_KEY", base64.StdEncoding.EncodeToString(raw))

	// sin ningún Encrypt previo, Ready debe cargar y reportar true
	if !Ready() {
		t.Fatal("Ready() == false con VAULT_MASTER_KEY seteada")
	}
}

func TestReady_FalseWithoutKey(t *testing.T) {
	UnsafeResetForTests()
	os.Unsetenv("VAULT_MASTER_KEY")
	t.Cleanup(UnsafeResetForTests)

	if Ready() {
		t.Fatal("Ready() == true sin clave")
	}
}

func TestEncrypt_ErrorWhenNoKey(t *testing.T) {
	UnsafeResetForTests()
	os.Unsetenv("VAULT_MASTER_KEY")

	if _, err := Encrypt("x"); err == nil {
		t.Fatal("expected fail-closed error without VAULT_MASTER_KEY")
	}
	if _, err := Decrypt("AAAA|BBBB"); err == nil {
		t.Fatal("expected fail-closed error without VAULT_MASTER_KEY")
	}
}
