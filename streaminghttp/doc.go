// Package streaminghttp implements the MCP streamable HTTP transport. It
// mounts as a standard net/http handler in front of an engine.Engine.
//
// Every POST carries exactly one JSON-RPC message:
//
//   - without Mcp-Session-Id the message must be initialize; the bearer
//     token's grant becomes a new session whose id is returned in the
//     Mcp-Session-Id response header
//   - with Mcp-Session-Id the session is loaded and must belong to the
//     same tenant and subject as the presented token
//   - notifications and client responses are acknowledged with 202
//
// DELETE ends a session. GET is answered with 405: the server never pushes
// messages, so there is no stream to open.
//
// Example (mount in net/http):
//
//	h, err := streaminghttp.New("/mcp", store, eng, authenticator)
//	if err != nil { log.Fatal(err) }
//	mux := http.NewServeMux()
//	mux.Handle("/mcp", h)
//	http.ListenAndServe(":8080", mux)
package streaminghttp
