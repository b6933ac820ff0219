package sessions

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Permission names a capability granted to a session.
type Permission string

const (
	PermissionIssuesRead    Permission = "issues:read"
	PermissionIssuesWrite   Permission = "issues:write"
	PermissionCommentsWrite Permission = "comments:write"
	PermissionProjectsRead  Permission = "projects:read"
	PermissionUsersRead     Permission = "users:read"
)

// AllPermissions lists every permission the server understands.
var AllPermissions = Permissions{
	PermissionCommentsWrite,
	PermissionIssuesRead,
	PermissionIssuesWrite,
	PermissionProjectsRead,
	PermissionUsersRead,
}

// Permissions is a set of granted permissions. It is kept sorted and free of
// duplicates and serializes as a JSON array.
type Permissions []Permission

// NewPermissions builds a normalized permission set.
func NewPermissions(ps ...Permission) Permissions {
	out := make(Permissions, 0, len(ps))
	for _, p := range ps {
		p = Permission(strings.TrimSpace(string(p)))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// ParsePermissions splits a space or comma delimited list, the form used by
// OAuth scope claims and configuration values.
func ParsePermissions(s string) Permissions {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	ps := make([]Permission, 0, len(fields))
	for _, f := range fields {
		ps = append(ps, Permission(f))
	}
	return NewPermissions(ps...)
}

// Has reports whether p is in the set.
func (ps Permissions) Has(p Permission) bool {
	return slices.Contains(ps, p)
}

// String renders the set space-delimited.
func (ps Permissions) String() string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = string(p)
	}
	return strings.Join(parts, " ")
}

func (ps *Permissions) UnmarshalJSON(data []byte) error {
	var raw []Permission
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*ps = NewPermissions(raw...)
	return nil
}

// Session is the tenant-scoped context under which a client issues
// requests. It is created once per client connection by an authorization
// step outside the dispatcher, owned by a Store, and mutated afterwards only
// through Store.TouchSession.
type Session struct {
	ID           string      `json:"session_id"`
	TenantID     string      `json:"tenant_id"`
	UserID       string      `json:"user_id"`
	ClientName   string      `json:"client_name,omitempty"`
	Permissions  Permissions `json:"permissions"`
	CreatedAt    time.Time   `json:"created_at"`
	LastActiveAt time.Time   `json:"last_active_at"`
}

// Can reports whether the session was granted p.
func (s *Session) Can(p Permission) bool {
	return s != nil && s.Permissions.Has(p)
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Permissions = slices.Clone(s.Permissions)
	return &c
}

// PermissionError reports that a session lacks a permission an operation
// requires.
type PermissionError struct {
	Permission Permission
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("Permission denied: %s required", e.Permission)
}

// Require returns a *PermissionError unless the session was granted p.
func (s *Session) Require(p Permission) error {
	if !s.Can(p) {
		return &PermissionError{Permission: p}
	}
	return nil
}
