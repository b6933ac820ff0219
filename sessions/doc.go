// Package sessions defines the session record shared by the transports and
// the request dispatcher, and the Store contract used to persist it.
//
// A session is granted by an authorization step outside the dispatcher: the
// HTTP transport turns a verified bearer grant into a Session on initialize,
// and the stdio transport creates one from configuration at start-up. From
// then on the dispatcher only reads the session and refreshes its
// LastActiveAt through Store.TouchSession.
//
// # Tenancy
//
// TenantID is the organizational scope every domain lookup is filtered by.
// It is fixed at creation. The dispatcher never infers it from request
// content.
//
// # Implementations
//
//	memorystore : process-local map with sliding idle TTL
//	redisstore  : JSON records in Redis with sliding expiry, for multi-node deployments
//
// Both are exercised by the storetest conformance suite.
package sessions
