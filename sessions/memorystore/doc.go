// Package memorystore provides an in-memory sessions.Store suitable for
// tests, development, and single-process servers. All state is discarded on
// process exit.
//
// Characteristics
//
//	Durability        : none (RAM only)
//	Horizontal scale  : no (process local)
//	Expiry            : sliding idle TTL, checked lazily and by a background sweep
//	Concurrency       : safe (RWMutex)
//
// Example:
//
//	store := memorystore.New(memorystore.WithTTL(time.Hour))
//	defer store.Close()
//
// For multi-node deployments prefer redisstore.
package memorystore
