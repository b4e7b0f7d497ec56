package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr            string `yaml:"addr"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Storage struct {
		Driver   string `yaml:"driver"` // postgres | memory
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MinIdleConns    int    `yaml:"min_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Redis struct {
		Addr   string `yaml:"addr"` // vacío => sin redis (lock de sync en proceso)
		DB     int    `yaml:"db"`
		Prefix string `yaml:"prefix"`
	} `yaml:"redis"`

	Provider struct {
		Name        string `yaml:"name"` // identificador lógico, default "plaid"
		BaseURL     string `yaml:"base_url"`
		Environment string `yaml:"environment"` // sandbox | development | production
		ClientID    string `yaml:"client_id"`
		// Secret viene SOLO de env (PROVIDER_SECRET); nunca del YAML.
		Secret string `yaml:"-"`
	} `yaml:"provider"`

	Webhook struct {
		// SkipVerification acepta todo sin verificar firma. Sólo operativo
		// fuera de prod; en prod se fuerza a false al cargar.
		SkipVerification bool   `yaml:"skip_verification"`
		KeyCacheTTL      string `yaml:"key_cache_ttl"`
	} `yaml:"webhook"`

	Sync struct {
		Interval     string `yaml:"interval"`      // "" => scheduler apagado
		Parallelism  int    `yaml:"parallelism"`   // conexiones en paralelo
		RunTimeout   string `yaml:"run_timeout"`   // deadline por corrida
		LockTTL      string `yaml:"lock_ttl"`      // TTL del lock distribuido
		SyncOnStart  bool   `yaml:"sync_on_start"` // corrida de flota al arrancar
	} `yaml:"sync"`

	Receipts struct {
		SealInterval string `yaml:"seal_interval"`
		SealBatch    int    `yaml:"seal_batch"`
		// SigningKey (ed25519 seed, base64) viene SOLO de env (RECEIPT_SIGNING_KEY).
		SigningKey string `yaml:"-"`
	} `yaml:"receipts"`

	Flags struct {
		Migrate bool `yaml:"migrate"`
	} `yaml:"flags"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	// sane defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Provider.Name == "" {
		c.Provider.Name = "plaid"
	}
	if c.Provider.Environment == "" {
		c.Provider.Environment = "sandbox"
	}
	if c.Webhook.KeyCacheTTL == "" {
		c.Webhook.KeyCacheTTL = "24h"
	}
	if c.Sync.Parallelism <= 0 {
		c.Sync.Parallelism = 4
	}
	if c.Sync.RunTimeout == "" {
		c.Sync.RunTimeout = "5m"
	}
	if c.Sync.LockTTL == "" {
		c.Sync.LockTTL = "10m"
	}
	if c.Receipts.SealInterval == "" {
		c.Receipts.SealInterval = "30s"
	}
	if c.Receipts.SealBatch <= 0 {
		c.Receipts.SealBatch = 100
	}

	// Overrides por env
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("DATABASE_URL"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := getEnvStr("PROVIDER_CLIENT_ID"); ok {
		c.Provider.ClientID = v
	}
	if v, ok := getEnvStr("PROVIDER_ENV"); ok {
		c.Provider.Environment = v
	}
	if v, ok := getEnvStr("PROVIDER_BASE_URL"); ok {
		c.Provider.BaseURL = v
	}
	if v, ok := getEnvBool("WEBHOOK_SKIP_VERIFICATION"); ok {
		c.Webhook.SkipVerification = v
	}
	if v, ok := getEnvStr("SYNC_INTERVAL"); ok {
		c.Sync.Interval = v
	}

	// Secretos: sólo env, nunca YAML.
	c.Provider.Secret = strings.TrimSpace(os.Getenv("PROVIDER_SECRET"))
	c.Receipts.SigningKey = strings.TrimSpace(os.Getenv("RECEIPT_SIGNING_KEY"))

	// Guardia dura: el bypass de verificación de webhooks no existe en prod.
	if c.IsProd() {
		c.Webhook.SkipVerification = false
	}

	// validate string durations
	for _, d := range []string{
		c.Server.ShutdownTimeout, c.Webhook.KeyCacheTTL,
		c.Sync.RunTimeout, c.Sync.LockTTL, c.Receipts.SealInterval,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", d, err)
		}
	}
	if c.Sync.Interval != "" {
		if _, err := time.ParseDuration(c.Sync.Interval); err != nil {
			return nil, fmt.Errorf("invalid sync.interval %q: %w", c.Sync.Interval, err)
		}
	}
	if c.Storage.Postgres.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime); err != nil {
			return nil, err
		}
	}

	return &c, nil
}

func (c *Config) IsProd() bool { return strings.EqualFold(c.App.Env, "prod") }

// Dur parsea una duración ya validada por Load.
func Dur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(s); err == nil {
			return b, true
		}
	}
	return false, false
}
