package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ggoodman/mcp-tracker-go/sessions"
)

// Claims is the JWT claim set carried by grant tokens.
type Claims struct {
	jwt.RegisteredClaims
	TenantID   string `json:"tenant_id"`
	ClientName string `json:"client_name,omitempty"`
	Scope      string `json:"scope,omitempty"`
}

// HMACOption configures an HMAC authenticator.
type HMACOption func(*hmacAuthenticator)

// WithLeeway sets clock skew tolerance for time-based claims.
func WithLeeway(d time.Duration) HMACOption {
	return func(a *hmacAuthenticator) { a.leeway = d }
}

// WithTimeFunc overrides the clock used to validate exp and nbf.
func WithTimeFunc(now func() time.Time) HMACOption {
	return func(a *hmacAuthenticator) { a.now = now }
}

type hmacAuthenticator struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// NewHMAC returns an Authenticator verifying HS256 tokens signed with secret.
// Issuer and audience are enforced when non-empty. Tokens must carry exp,
// sub and tenant_id.
func NewHMAC(secret, issuer, audience string, opts ...HMACOption) (Authenticator, error) {
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	a := &hmacAuthenticator{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		leeway:   30 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *hmacAuthenticator) CheckAuthentication(ctx context.Context, tok string) (*Grant, error) {
	if tok == "" {
		return nil, ErrMissingToken
	}

	popts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.leeway),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		popts = append(popts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		popts = append(popts, jwt.WithAudience(a.audience))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(tok, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, popts...)
	if err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}
	if strings.TrimSpace(claims.TenantID) == "" {
		return nil, fmt.Errorf("%w: missing tenant_id", ErrUnauthorized)
	}

	return &Grant{
		Subject:     claims.Subject,
		TenantID:    claims.TenantID,
		ClientName:  claims.ClientName,
		Permissions: sessions.ParsePermissions(claims.Scope),
	}, nil
}

// SignHMAC mints an HS256 token for claims. It exists for tests and local
// tooling; production tokens come from whatever issues grants.
func SignHMAC(secret string, claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
