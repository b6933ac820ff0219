// Package stdio implements a single-connection MCP transport over
// stdin/stdout. It is intended for running the server as a subprocess of
// an MCP client.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Auth             : configured Identity (tenant, user, permissions)
//	Sessions         : one per Serve call, created on start, deleted on exit
//	Framing          : newline-delimited JSON-RPC
//
// Example:
//
//	h := stdio.NewHandler(eng, store, stdio.Identity{
//	    TenantID:    "org-acme",
//	    UserID:      "u-ada",
//	    Permissions: sessions.AllPermissions,
//	})
//	if err := h.Serve(ctx); err != nil { log.Fatal(err) }
package stdio
