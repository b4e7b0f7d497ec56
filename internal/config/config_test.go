package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "app:\n  env: dev\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("default addr: %q", cfg.Server.Addr)
	}
	if cfg.Provider.Name != "plaid" {
		t.Fatalf("default provider: %q", cfg.Provider.Name)
	}
	if cfg.Sync.Parallelism != 4 {
		t.Fatalf("default parallelism: %d", cfg.Sync.Parallelism)
	}
}

func TestLoad_ProdForcesVerificationOn(t *testing.T) {
	path := writeConfig(t, "app:\n  env: prod\nwebhook:\n  skip_verification: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Webhook.SkipVerification {
		t.Fatal("skip_verification debe quedar en false en prod")
	}
}

func TestLoad_ProdIgnoresBypassEnvToo(t *testing.T) {
	t.Setenv("WEBHOOK_SKIP_VERIFICATION", "true")
	path := writeConfig(t, "app:\n  env: prod\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Webhook.SkipVerification {
		t.Fatal("el env var no debe habilitar el bypass en prod")
	}
}

func TestLoad_SecretsComeFromEnvOnly(t *testing.T) {
	t.Setenv("PROVIDER_SECRET", "shh")
	path := writeConfig(t, "provider:\n  client_id: abc\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider.Secret != "shh" {
		t.Fatalf("secret: %q", cfg.Provider.Secret)
	}
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "sync:\n  run_timeout: nope\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9999")
	t.Setenv("SYNC_INTERVAL", "1m")
	path := writeConfig(t, "app:\n  env: dev\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Fatalf("addr override: %q", cfg.Server.Addr)
	}
	if cfg.Sync.Interval != "1m" {
		t.Fatalf("interval override: %q", cfg.Sync.Interval)
	}
}
