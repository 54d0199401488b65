package tenantauthz

import "time"

// RecordBuilder assembles a UserRecord fluently, mostly for fixtures.
type RecordBuilder struct {
	r *UserRecord
}

func NewRecordBuilder(organizationID, subjectID string) *RecordBuilder {
	return &RecordBuilder{r: &UserRecord{OrganizationID: organizationID, SubjectID: subjectID, IsActive: true, ClaimsVersion: 1}}
}

func (b *RecordBuilder) Active(active bool) *RecordBuilder   { b.r.IsActive = active; return b }
func (b *RecordBuilder) Role(id string) *RecordBuilder       { b.r.Role = PlainRole(id); return b }
func (b *RecordBuilder) RoleObject(id string) *RecordBuilder { b.r.Role = StructuredRole(id); return b }
func (b *RecordBuilder) Version(v int64) *RecordBuilder      { b.r.ClaimsVersion = v; return b }
func (b *RecordBuilder) UpdatedAt(t time.Time) *RecordBuilder {
	b.r.UpdatedAt = t
	return b
}

// Grant adds actions on resource, merging into an existing grant.
func (b *RecordBuilder) Grant(resource string, actions ...string) *RecordBuilder {
	for i := range b.r.Permissions {
		if b.r.Permissions[i].Resource == resource {
			b.r.Permissions[i].Actions = append(b.r.Permissions[i].Actions, actions...)
			return b
		}
	}
	b.r.Permissions = append(b.r.Permissions, PermissionGrant{Resource: resource, Actions: append([]string(nil), actions...)})
	return b
}

func (b *RecordBuilder) Build() *UserRecord { return b.r.Clone() }

// TokenBuilder assembles an IdentityToken using the default claim names.
type TokenBuilder struct {
	t *IdentityToken
}

func NewTokenBuilder(subjectID string) *TokenBuilder {
	return &TokenBuilder{t: &IdentityToken{SubjectID: subjectID, Claims: map[string]any{}}}
}

func (b *TokenBuilder) Organization(id string) *TokenBuilder {
	b.t.Claims[DefaultOrganizationClaims[0]] = id
	return b
}

func (b *TokenBuilder) LongOrganization(id string) *TokenBuilder {
	b.t.Claims[DefaultOrganizationClaims[1]] = id
	return b
}

func (b *TokenBuilder) Version(v int64) *TokenBuilder {
	b.t.Claims[DefaultVersionClaim] = v
	return b
}

func (b *TokenBuilder) Claim(k string, v any) *TokenBuilder {
	b.t.Claims[k] = v
	return b
}

func (b *TokenBuilder) Build() *IdentityToken { return b.t }
