// Package handlers contains the gin middleware and building blocks shared by
// the HTTP API.
//
// This package provides:
//   - Request ID, access log, recovery, CORS and rate limit middleware
//   - Bearer token verification and role checks
//   - The JSON response envelope
//   - Health checks for the backing stores
//
// # Authentication
//
// Tokens are HS256 JWTs issued by the CollegeConnect auth service. The subject
// is the user ID and the "role" claim carries the user's role:
//
//	tokens := handlers.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
//
//	api := router.Group("/api/v1", handlers.Authenticate(tokens))
//	admin := api.Group("", handlers.RequireRole(user.RoleAdmin))
//
// Handlers read the caller with PrincipalFrom.
//
// # Health Checks
//
// Required checks make /health fail; optional checks only mark the service as
// degraded. Redis is optional because presence and the sweep lock are the only
// features that need it:
//
//	checker := handlers.NewHealthChecker(cfg.App.Version)
//	checker.AddCheck("postgres", handlers.NewPingCheck(conn))
//	checker.AddOptionalCheck("redis", handlers.NewPingCheck(cache))
//
// # Response Format
//
// Every JSON response uses the same envelope:
//
//	{
//	  "success": true,
//	  "data": {...},
//	  "meta": {"timestamp": "...", "version": "v1"},
//	  "request_id": "..."
//	}
//
// Errors carry a machine-readable code:
//
//	{
//	  "success": false,
//	  "error": {"code": "not_found", "message": "user not found"},
//	  "request_id": "..."
//	}
package handlers
