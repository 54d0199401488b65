package tenantauthz

import "testing"

func TestParseCapability(t *testing.T) {
	c, err := ParseCapability("warnings:create")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Resource != "warnings" || c.Action != "create" || c.String() != "warnings:create" {
		t.Fatalf("unexpected capability %+v", c)
	}

	c, err = ParseCapability("reports:export:csv")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Resource != "reports" || c.Action != "export:csv" {
		t.Fatalf("expected split on first colon, got %+v", c)
	}
	if c.String() != "reports:export:csv" {
		t.Fatalf("round trip failed: %s", c)
	}

	for _, bad := range []string{"", "warnings", ":create", "warnings:", ":"} {
		_, err := ParseCapability(bad)
		if KindOf(err) != KindInvalidArgument {
			t.Fatalf("ParseCapability(%q): expected invalid argument, got %v", bad, err)
		}
		if PublicMessage(err) != "invalid permission format; use resource:action" {
			t.Fatalf("unexpected message %q", PublicMessage(err))
		}
	}
}

func TestCheckRoleMessages(t *testing.T) {
	rec := NewRecordBuilder("o", "s").Build()
	err := checkRole(rec, []string{"admin"})
	if KindOf(err) != KindPermissionDenied {
		t.Fatalf("empty role must be denied, got %v", err)
	}
	if DetailOf(err) != `role "" not allowed` {
		t.Fatalf("unexpected detail %q", DetailOf(err))
	}
}
