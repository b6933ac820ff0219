// Package redisstore provides a Redis-backed sessions.Store for
// horizontally scaled deployments.
//
// Each session is a single JSON record stored at
// <prefix>session:<id>. The key's expiry implements the sliding idle
// timeout: CreateSession sets it and every TouchSession rewrites the record
// with a fresh expiry.
//
// Configuration can be sourced from the environment via NewFromEnv:
//
//	REDIS_ADDR           (default localhost:6379)
//	SESSIONS_KEY_PREFIX  (default mcp:tracker:sessions:)
//	SESSIONS_TTL         (default 1h)
package redisstore
