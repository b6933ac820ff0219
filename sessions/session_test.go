package sessions

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParsePermissions(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "space delimited", in: "issues:read projects:read", want: "issues:read projects:read"},
		{name: "comma delimited", in: "projects:read,issues:read", want: "issues:read projects:read"},
		{name: "mixed with duplicates", in: " issues:read, issues:read  users:read ", want: "issues:read users:read"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParsePermissions(tt.in).String(); got != tt.want {
				t.Fatalf("ParsePermissions(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPermissions_UnmarshalNormalizes(t *testing.T) {
	var ps Permissions
	if err := json.Unmarshal([]byte(`["users:read","issues:read","users:read"]`), &ps); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got, want := ps.String(), "issues:read users:read"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSession_Can(t *testing.T) {
	s := &Session{Permissions: NewPermissions(PermissionIssuesRead)}
	if !s.Can(PermissionIssuesRead) {
		t.Fatalf("expected issues:read to be granted")
	}
	if s.Can(PermissionIssuesWrite) {
		t.Fatalf("expected issues:write to be denied")
	}
	var nilSess *Session
	if nilSess.Can(PermissionIssuesRead) {
		t.Fatalf("nil session must not be granted anything")
	}
}

func TestSession_Validate(t *testing.T) {
	tests := []struct {
		name string
		sess *Session
		ok   bool
	}{
		{name: "nil", sess: nil},
		{name: "missing id", sess: &Session{TenantID: "org-1"}},
		{name: "missing tenant", sess: &Session{ID: "s1"}},
		{name: "valid", sess: &Session{ID: "s1", TenantID: "org-1"}, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sess.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidSession) {
				t.Fatalf("expected ErrInvalidSession, got %v", err)
			}
		})
	}
}
