// Package tracker defines the issue tracker collaborator the MCP server
// reads from and writes to: the domain types, the Store contract, and the
// errors implementations report.
//
// The server never reaches past this contract. Tenant isolation is the
// implementation's job: every tenant-scoped method receives the tenant id
// and must include it in the underlying lookup, so that an entity belonging
// to another tenant reports ErrNotFound exactly like a missing one.
//
// Package sqlitestore provides a reference implementation.
package tracker
