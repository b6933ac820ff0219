// Package tools implements the tracker tool catalogue: a closed set of tool
// names, their reflected input schemas, and the handlers that run them
// against a tracker.Store on behalf of a session.
//
// Tool outcomes travel on two channels. A well-formed call that cannot
// complete for domain reasons (unknown issue, invalid arguments, rejected
// transition) yields a result with isError set. A call the session is not
// permitted to make, or one whose collaborator fails, returns an error for
// the dispatcher to map to a protocol error.
package tools
