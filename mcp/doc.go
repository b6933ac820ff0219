// Package mcp contains the Model Context Protocol data types and constants
// used by the tracker server. It mirrors the wire representation of the
// subset of the protocol the server speaks while keeping the surface
// Go-friendly (exported structs with json tags, string constants for method
// names).
//
// The package is free of transport logic: the HTTP and stdio transports
// import these types but implement their own framing, authentication and
// session handling.
//
// # Method Names
//
// Request method names are enumerated as Method constants. ParseMethod is the
// single gate that turns an inbound method string into one of the five
// request methods the server answers; anything else is "method not found".
//
// # Capabilities
//
// The server advertises tools and resources without change notifications or
// subscriptions:
//
//	{"tools":{"listChanged":false},"resources":{"listChanged":false,"subscribe":false}}
//
// # Tool results
//
// Tool handlers report domain failures (an unknown issue key, an invalid
// status transition) as results with IsError set, built with Errorf. Those
// are successful JSON-RPC responses; protocol failures are JSON-RPC errors.
//
//	res := mcp.TextResult("ok")
//	bad := mcp.Errorf("Issue %s not found", key)
package mcp
