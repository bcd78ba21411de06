// Package logger provides a singleton Zap logger with context-based scoping.
//
//   - Singleton: una sola instancia global inicializada con Init().
//   - Context scoping: cada request (HTTP o TCP) lleva su propio logger con
//     request_id / pattern sin crear un nuevo core.
//   - Formato: "dev" usa consola con colores, "prod" (o Format=json) usa JSON.
//
// Inicialización (una vez en main.go):
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, ServiceName: "auth-service"})
//	defer logger.Sync()
//
// En handlers/services:
//
//	logger.From(ctx).Info("refresh rotated", logger.UserID(uid), logger.JTI(jti))
package logger
