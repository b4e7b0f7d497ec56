// Package logger provides a singleton Zap logger with context-based scoping.
//
//   - Singleton: una sola instancia global inicializada con Init().
//   - Context scoping: cada request puede llevar un logger "scoped" con campos
//     adicionales (request_id, tenant_id, connection_id) sin crear un nuevo core.
//   - Environments: "dev" usa consola con colores, "prod" usa JSON.
//   - Levels: debug, info, warn, error (configurable via LOG_LEVEL).
//
// Inicialización (una vez en main.go):
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: os.Getenv("LOG_LEVEL")})
//	defer logger.Sync()
//
// En handlers/services:
//
//	log := logger.From(ctx)
//	log.Info("sync page ingested", logger.ConnectionID(id), logger.Count(n))
package logger
