package tenantauthz

import (
	"encoding/json"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestClaimsReaderDefaults(t *testing.T) {
	r := NewClaimsReader()
	c, err := r.Read(NewTokenBuilder("u1").Organization("orgA").Version(3).Build())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if c.SubjectID != "u1" || c.OrganizationID != "orgA" || c.ClaimsVersion != 3 {
		t.Fatalf("unexpected claims %+v", c)
	}

	c, err = r.Read(NewTokenBuilder("u1").Organization("short").LongOrganization("long").Build())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if c.OrganizationID != "short" {
		t.Fatalf("short claim should win, got %s", c.OrganizationID)
	}
	if c.ClaimsVersion != 0 {
		t.Fatalf("absent version should read as 0, got %d", c.ClaimsVersion)
	}
	if err := c.RequireOrganization(); err != nil {
		t.Fatalf("organization present: %v", err)
	}

	c, _ = r.Read(NewTokenBuilder("u1").Claim("orgId", 12).Build())
	if KindOf(c.RequireOrganization()) != KindPermissionDenied {
		t.Fatalf("non-string organization claim should be ignored")
	}
}

func TestClaimIntTypes(t *testing.T) {
	cases := []struct {
		in   any
		want int64
	}{
		{nil, 0},
		{3, 3},
		{int64(4), 4},
		{float64(5), 5},
		{json.Number("6"), 6},
		{"7", 7},
		{"seven", 0},
		{true, 0},
	}
	for _, tc := range cases {
		if got := claimInt(tc.in); got != tc.want {
			t.Fatalf("claimInt(%#v)=%d want %d", tc.in, got, tc.want)
		}
	}
}

func TestTokenFromJWT(t *testing.T) {
	tok := TokenFromJWT(jwt.MapClaims{"sub": "u1", "organizationId": "orgA", "claimsVersion": float64(2)})
	if tok.SubjectID != "u1" {
		t.Fatalf("expected subject u1, got %q", tok.SubjectID)
	}
	c, err := NewClaimsReader().Read(tok)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if c.OrganizationID != "orgA" || c.ClaimsVersion != 2 {
		t.Fatalf("unexpected claims %+v", c)
	}
	if tok := TokenFromJWT(jwt.MapClaims{"sub": 42}); tok.SubjectID != "" {
		t.Fatalf("non-string subject must not be trusted")
	}
}
