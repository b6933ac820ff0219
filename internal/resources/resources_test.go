package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ggoodman/mcp-tracker-go/sessions"
	"github.com/ggoodman/mcp-tracker-go/tracker/trackertest"
)

func acmeSession() *sessions.Session {
	return &sessions.Session{ID: "s1", TenantID: trackertest.TenantAcme, UserID: "u-ada", Permissions: sessions.AllPermissions}
}

func readJSON(t *testing.T, r *Resolver, sess *sessions.Session, uri string) map[string]any {
	t.Helper()
	res, err := r.Read(context.Background(), sess, uri)
	if err != nil {
		t.Fatalf("Read(%q): %v", uri, err)
	}
	if len(res.Contents) != 1 {
		t.Fatalf("expected exactly one content block, got %d", len(res.Contents))
	}
	c := res.Contents[0]
	if c.URI != uri {
		t.Fatalf("content uri = %q, want %q", c.URI, uri)
	}
	if c.MimeType != MimeType {
		t.Fatalf("content mimeType = %q, want %q", c.MimeType, MimeType)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(c.Text), &body); err != nil {
		t.Fatalf("content text is not JSON: %v\n%s", err, c.Text)
	}
	return body
}

func TestTemplates(t *testing.T) {
	want := []string{"board://{id}", "issue://{key}", "project://{key}", "sprint://{id}", "user://{id}"}
	got := Templates()
	if len(got) != len(want) {
		t.Fatalf("expected %d templates, got %d", len(want), len(got))
	}
	for i, tmpl := range got {
		if tmpl.URITemplate != want[i] {
			t.Errorf("template %d = %q, want %q", i, tmpl.URITemplate, want[i])
		}
		if tmpl.MimeType != MimeType || tmpl.Name == "" {
			t.Errorf("template %q incomplete: %+v", tmpl.URITemplate, tmpl)
		}
	}

	got[0].URITemplate = "mutated"
	if Templates()[0].URITemplate != "board://{id}" {
		t.Fatalf("Templates must return a copy")
	}
}

func TestRead_Issue(t *testing.T) {
	r := NewResolver(trackertest.Seeded())
	body := readJSON(t, r, acmeSession(), "issue://ORD-123")

	if body["key"] != "ORD-123" {
		t.Fatalf("key = %v, want ORD-123", body["key"])
	}
	if body["status"] != "todo" || body["priority"] != "medium" || body["type"] != "bug" {
		t.Fatalf("missing summaries: %v", body)
	}
	assignee, _ := body["assignee"].(map[string]any)
	if assignee["name"] != "Ada Lovelace" {
		t.Fatalf("assignee = %v", body["assignee"])
	}
	comments, _ := body["comments"].([]any)
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments, got %v", body["comments"])
	}
	first, _ := comments[0].(map[string]any)
	if first["body"] != "Taking this one." {
		t.Fatalf("comments must be newest first, got %v", first["body"])
	}
}

func TestRead_IssueCapsComments(t *testing.T) {
	f := trackertest.Seeded()
	base := f.Comments["i-123"][0]
	for i := range 15 {
		c := base
		c.ID = fmt.Sprintf("extra-%d", i)
		c.CreatedAt = base.CreatedAt.Add(-time.Duration(i+1) * time.Hour)
		f.Comments["i-123"] = append(f.Comments["i-123"], c)
	}
	body := readJSON(t, NewResolver(f), acmeSession(), "issue://ORD-123")
	if comments, _ := body["comments"].([]any); len(comments) != recentComments {
		t.Fatalf("expected %d comments, got %d", recentComments, len(comments))
	}
}

func TestRead_Project(t *testing.T) {
	body := readJSON(t, NewResolver(trackertest.Seeded()), acmeSession(), "project://ORD")
	if body["key"] != "ORD" {
		t.Fatalf("key = %v", body["key"])
	}
	for field, want := range map[string]float64{"issueCount": 3, "memberCount": 2, "boardCount": 1} {
		if body[field] != want {
			t.Errorf("%s = %v, want %v", field, body[field], want)
		}
	}
}

func TestRead_Board(t *testing.T) {
	body := readJSON(t, NewResolver(trackertest.Seeded()), acmeSession(), "board://b-ord")
	project, _ := body["project"].(map[string]any)
	if project["key"] != "ORD" {
		t.Fatalf("board must include its project summary, got %v", body["project"])
	}
}

func TestRead_Sprint(t *testing.T) {
	body := readJSON(t, NewResolver(trackertest.Seeded()), acmeSession(), "sprint://s-ord-1")
	project, _ := body["project"].(map[string]any)
	if project["key"] != "ORD" {
		t.Fatalf("sprint must include its project summary, got %v", body["project"])
	}
	issues, _ := body["issues"].([]any)
	if len(issues) != 2 {
		t.Fatalf("expected 2 sprint issues, got %v", body["issues"])
	}
	for i, want := range []string{"ORD-123", "ORD-124"} {
		iss, _ := issues[i].(map[string]any)
		if iss["key"] != want {
			t.Errorf("issue %d = %v, want %s", i, iss["key"], want)
		}
	}
}

func TestRead_User(t *testing.T) {
	r := NewResolver(trackertest.Seeded())

	t.Run("member", func(t *testing.T) {
		body := readJSON(t, r, acmeSession(), "user://u-grace")
		if body["role"] != "member" {
			t.Fatalf("role = %v, want member", body["role"])
		}
	})

	t.Run("no membership yields null role", func(t *testing.T) {
		body := readJSON(t, r, acmeSession(), "user://u-drifter")
		role, present := body["role"]
		if !present || role != nil {
			t.Fatalf("expected role: null, got present=%v value=%v", present, role)
		}
		if body["name"] != "Drifter" {
			t.Fatalf("name = %v", body["name"])
		}
	})
}

func TestRead_Errors(t *testing.T) {
	r := NewResolver(trackertest.Seeded())

	tests := []struct {
		name    string
		uri     string
		kind    ErrorKind
		message string
	}{
		{name: "missing issue", uri: "issue://MISSING", kind: KindNotFound, message: "Resource not found: issue://MISSING"},
		{name: "other tenant", uri: "issue://GLX-1", kind: KindNotFound, message: "Resource not found: issue://GLX-1"},
		{name: "empty identifier", uri: "issue://", kind: KindNotFound, message: "Resource not found: issue://"},
		{name: "missing user", uri: "user://u-nobody", kind: KindNotFound, message: "Resource not found: user://u-nobody"},
		{name: "unknown scheme", uri: "unknown-scheme://x", kind: KindUnknownScheme, message: "Unknown resource scheme: unknown-scheme://x"},
		{name: "no scheme", uri: "ORD-123", kind: KindUnknownScheme, message: "Unknown resource scheme: ORD-123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Read(context.Background(), acmeSession(), tt.uri)
			var rerr *Error
			if !errors.As(err, &rerr) {
				t.Fatalf("expected *Error, got %T: %v", err, err)
			}
			if rerr.Kind != tt.kind {
				t.Fatalf("kind = %v, want %v", rerr.Kind, tt.kind)
			}
			if rerr.Error() != tt.message {
				t.Fatalf("message = %q, want %q", rerr.Error(), tt.message)
			}
		})
	}
}

func TestRead_RequiresPermission(t *testing.T) {
	r := NewResolver(trackertest.Seeded())
	sess := acmeSession()
	sess.Permissions = sessions.NewPermissions(sessions.PermissionIssuesRead)

	_, err := r.Read(context.Background(), sess, "user://u-ada")
	var perr *sessions.PermissionError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *sessions.PermissionError, got %T: %v", err, err)
	}
	if perr.Permission != sessions.PermissionUsersRead {
		t.Fatalf("permission = %q", perr.Permission)
	}
}

func TestRead_CollaboratorFailure(t *testing.T) {
	f := trackertest.Seeded()
	boom := errors.New("database is locked")
	f.Err = boom

	_, err := NewResolver(f).Read(context.Background(), acmeSession(), "project://ORD")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped collaborator error, got %v", err)
	}
	var rerr *Error
	if errors.As(err, &rerr) {
		t.Fatalf("collaborator failure must not be reported as a resolution error")
	}
}
