package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ggoodman/mcp-tracker-go/sessions"
)

// ErrUnauthorized indicates authentication failed or no valid credentials were supplied.
var ErrUnauthorized = errors.New("unauthorized")

// Grant is what a verified credential entitles its bearer to. The transport
// turns a Grant into a sessions.Session on initialize.
type Grant struct {
	Subject     string
	TenantID    string
	ClientName  string
	Permissions sessions.Permissions
}

// Authenticator validates bearer tokens and returns the associated grant.
// It should return an error wrapping ErrUnauthorized for invalid credentials.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (*Grant, error)
}

// BearerToken extracts the token from an "Authorization: Bearer" header. The
// scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// Challenge renders a WWW-Authenticate value for a failed bearer check.
func Challenge(realm string, err error) string {
	if err == nil || errors.Is(err, errMissingToken) {
		return `Bearer realm="` + realm + `"`
	}
	return `Bearer realm="` + realm + `", error="invalid_token"`
}

var errMissingToken = errors.New("missing bearer token")

// ErrMissingToken is returned by transports when no bearer token was sent.
var ErrMissingToken = errors.Join(ErrUnauthorized, errMissingToken)
