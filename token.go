package tenantauthz

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityToken is a token whose signature was verified upstream. Only
// SubjectID is trusted; every claim is treated as a possibly stale copy.
type IdentityToken struct {
	SubjectID string         `json:"sub"`
	Claims    map[string]any `json:"claims"`
}

// TokenFromJWT adapts verified golang-jwt map claims. The subject comes from
// the registered "sub" claim.
func TokenFromJWT(claims jwt.MapClaims) *IdentityToken {
	tok := &IdentityToken{Claims: make(map[string]any, len(claims))}
	if sub, err := claims.GetSubject(); err == nil {
		tok.SubjectID = sub
	}
	for k, v := range claims {
		tok.Claims[k] = v
	}
	return tok
}

// TokenClaims is what the engine takes from a token.
type TokenClaims struct {
	SubjectID      string
	OrganizationID string
	ClaimsVersion  int64
}

// RequireOrganization fails when the token carried no organization claim.
func (c *TokenClaims) RequireOrganization() error {
	if c.OrganizationID == "" {
		return newError(KindPermissionDenied, "no organization in token")
	}
	return nil
}

const (
	DefaultVersionClaim = "claimsVersion"
)

// DefaultOrganizationClaims lists the short spelling before the long one.
var DefaultOrganizationClaims = []string{"orgId", "organizationId"}

// ClaimsReader extracts TokenClaims using configurable claim names.
type ClaimsReader struct {
	OrganizationClaims []string
	VersionClaim       string
}

func NewClaimsReader() *ClaimsReader {
	return &ClaimsReader{
		OrganizationClaims: append([]string(nil), DefaultOrganizationClaims...),
		VersionClaim:       DefaultVersionClaim,
	}
}

// Read fails with Unauthenticated when no subject is present. A missing
// organization is left empty; the entry point decides whether that is fatal.
func (r *ClaimsReader) Read(tok *IdentityToken) (*TokenClaims, error) {
	if tok == nil || strings.TrimSpace(tok.SubjectID) == "" {
		return nil, newError(KindUnauthenticated, "authentication required")
	}
	out := &TokenClaims{SubjectID: tok.SubjectID}
	for _, name := range r.OrganizationClaims {
		if s, ok := tok.Claims[name].(string); ok && s != "" {
			out.OrganizationID = s
			break
		}
	}
	out.ClaimsVersion = claimInt(tok.Claims[r.VersionClaim])
	return out, nil
}

// claimInt reads a numeric claim; anything absent or unparseable is 0.
func claimInt(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return int64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return int64(f)
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i
		}
	}
	return 0
}
