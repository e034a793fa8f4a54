// Package handlers contains the reusable pieces of the HTTP layer: the JSON
// envelope, error to status mapping, gin middleware and health checks.
//
// # Envelope
//
// Every JSON response has the same shape:
//
//	{"success": true, "data": {...}, "meta": {"timestamp": "...", "version": "v1"}, "request_id": "..."}
//	{"success": false, "error": {"code": "validation_failed", "message": "...", "details": {"email": "..."}}}
//
// Handlers call OK/Created on success and FailWithError on failure;
// StatusFor decides the status code from the domain error kind.
//
// # Middleware
//
//	engine.Use(
//	    handlers.RecoveryMiddleware(),
//	    handlers.RequestIDMiddleware(log),
//	    handlers.LoggingMiddleware("/health"),
//	    handlers.CORSMiddleware(origins),
//	)
//
//	me := engine.Group("/api/v1/me", auth.RequireUser())
//	admin := engine.Group("/api/v1/admin", handlers.RequireAdmin(token))
//
// # Health Checks
//
//	checker := handlers.NewHealthChecker("1.0.0")
//	checker.AddCheck("postgres", handlers.PingCheck(db))
//	checker.AddCheck("redis", handlers.PingCheck(cache))
package handlers
