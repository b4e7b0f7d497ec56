package pg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct{ pool *pgxpool.Pool }

// Pool expone el pool interno para usos avanzados (metrics/migraciones).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// PoolStats devuelve un snapshot del estado del pool.
func (s *Store) PoolStats() *pgxpool.Stat {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Stat()
}

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Tuning agrupa los parámetros opcionales del pool.
type Tuning struct {
	MaxOpenConns    int
	MinIdleConns    int
	ConnMaxLifetime string
}

func New(ctx context.Context, dsn string, tune Tuning) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	if tune.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(tune.MaxOpenConns)
	}
	if tune.MinIdleConns > 0 {
		pcfg.MinConns = int32(tune.MinIdleConns)
	}
	if tune.ConnMaxLifetime != "" {
		if d, err := time.ParseDuration(tune.ConnMaxLifetime); err == nil {
			pcfg.MaxConnLifetime = d
			pcfg.MaxConnIdleTime = d
		}
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 8
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	// Non-blocking startup: try to ping, but don't fail if it fails.
	// This allows the app to start even if DB is temporarily down.
	if err := pool.Ping(ctx); err != nil {
		log.Printf(`{"level":"warn","msg":"pg_pool_startup_ping_failed","err":"%v"}`, err)
	} else {
		log.Printf(`{"level":"info","msg":"pg_pool_ready","max_conns":%d}`, pcfg.MaxConns)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// isUniqueViolation detecta el código 23505 de postgres.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// ====================== MIGRACIONES ======================

// RunMigrationsFS aplica las migraciones _up.sql embebidas en el binario,
// en orden lexicográfico.
func (s *Store) RunMigrationsFS(ctx context.Context, fsys fs.FS) error {
	var files []string
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(path), "_up.sql") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, f := range files {
		b, err := fs.ReadFile(fsys, f)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("exec %s: %w", f, err)
		}
	}
	return nil
}

func (s *Store) RunMigrations(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			name := strings.ToLower(e.Name())
			if strings.HasSuffix(name, "_up.sql") {
				files = append(files, dir+"/"+e.Name())
			}
		}
	}
	sort.Strings(files)
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("exec %s: %w", f, err)
		}
	}
	return nil
}
