// Package auth turns bearer credentials into grants.
//
// A Grant names the subject, tenant and permissions a verified credential
// carries. The streaming HTTP transport uses it to create a session on
// initialize and to check that later requests present a credential for the
// same tenant and user.
//
// NewHMAC verifies HS256 JWTs:
//
//	authn, err := auth.NewHMAC(secret, "https://issuer.example", "mcp-tracker")
//	if err != nil { log.Fatal(err) }
//
//	grant, err := authn.CheckAuthentication(ctx, bearerToken)
//	if errors.Is(err, auth.ErrUnauthorized) { /* 401 */ }
//
// The "scope" claim is space-delimited and maps directly onto
// sessions.Permissions.
package auth
