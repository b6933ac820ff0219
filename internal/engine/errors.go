package engine

import (
	"errors"

	"github.com/ggoodman/mcp-tracker-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-tracker-go/internal/resources"
)

const internalErrorMessage = "Internal server error"

// errorObject maps any failure raised while serving a request onto a
// JSON-RPC error object. It is total: every error, including nil, yields a
// well-formed object.
//
//	*jsonrpc.Error                      passed through
//	*resources.Error (unknown scheme)   -32602 "Unknown resource scheme: {uri}"
//	*resources.Error (not found)        -32002 "Resource not found: {uri}"
//	anything else                       -32000 with the error's message
func errorObject(err error) *jsonrpc.Error {
	var (
		rpcErr *jsonrpc.Error
		resErr *resources.Error
	)
	switch {
	case err == nil:
		return &jsonrpc.Error{Code: jsonrpc.ErrorCodeServerError, Message: internalErrorMessage}
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.As(err, &resErr):
		switch resErr.Kind {
		case resources.KindUnknownScheme:
			return &jsonrpc.Error{Code: jsonrpc.ErrorCodeInvalidParams, Message: resErr.Error()}
		case resources.KindNotFound:
			return &jsonrpc.Error{Code: jsonrpc.ErrorCodeResourceNotFound, Message: resErr.Error()}
		}
	}

	msg := err.Error()
	if msg == "" {
		msg = internalErrorMessage
	}
	return &jsonrpc.Error{Code: jsonrpc.ErrorCodeServerError, Message: msg}
}
