// Package authtest provides authenticators for tests and local development.
package authtest

import (
	"context"
	"fmt"
	"slices"

	"github.com/ggoodman/mcp-tracker-go/auth"
)

// Static accepts a fixed set of tokens, each mapped to a grant.
type Static map[string]*auth.Grant

// CheckAuthentication returns a copy of the grant registered for tok.
func (s Static) CheckAuthentication(_ context.Context, tok string) (*auth.Grant, error) {
	if tok == "" {
		return nil, auth.ErrMissingToken
	}
	g, ok := s[tok]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token", auth.ErrUnauthorized)
	}
	c := *g
	c.Permissions = slices.Clone(g.Permissions)
	return &c, nil
}

var _ auth.Authenticator = Static(nil)
