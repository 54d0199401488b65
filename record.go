package tenantauthz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// RoleForm tells how a role was stored in the authoritative record.
type RoleForm uint8

const (
	RolePlain RoleForm = iota
	RoleStructured
)

// Role is stored either as a bare identifier or as an object carrying an id.
// Identifier is the only value ever compared.
type Role struct {
	ID   string
	Form RoleForm
}

func PlainRole(id string) Role      { return Role{ID: id, Form: RolePlain} }
func StructuredRole(id string) Role { return Role{ID: id, Form: RoleStructured} }

// Identifier normalizes both forms to the plain role id.
func (r Role) Identifier() string { return r.ID }

func (r Role) String() string { return r.ID }

type structuredRole struct {
	ID string `json:"id" yaml:"id"`
}

func (r Role) MarshalJSON() ([]byte, error) {
	if r.Form == RoleStructured {
		return json.Marshal(structuredRole{ID: r.ID})
	}
	return json.Marshal(r.ID)
}

func (r *Role) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Role{}
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = PlainRole(id)
		return nil
	}
	var s structuredRole
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("role must be a string or an object with id: %w", err)
	}
	*r = StructuredRole(s.ID)
	return nil
}

func (r Role) MarshalYAML() (any, error) {
	if r.Form == RoleStructured {
		return structuredRole{ID: r.ID}, nil
	}
	return r.ID, nil
}

func (r *Role) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*r = PlainRole(node.Value)
		return nil
	case yaml.MappingNode:
		var s structuredRole
		if err := node.Decode(&s); err != nil {
			return err
		}
		*r = StructuredRole(s.ID)
		return nil
	}
	return fmt.Errorf("role must be a string or a mapping with id (line %d)", node.Line)
}

// PermissionGrant lists the actions a user holds on one resource.
type PermissionGrant struct {
	Resource string   `json:"resource" yaml:"resource"`
	Actions  []string `json:"actions" yaml:"actions"`
}

// Allows is an exact, case-sensitive membership test.
func (g PermissionGrant) Allows(action string) bool {
	return slices.Contains(g.Actions, action)
}

// UserRecord is the authoritative, store-resident state of one user within
// one organization. The engine only ever reads it.
type UserRecord struct {
	OrganizationID string            `json:"organizationId" yaml:"organization_id"`
	SubjectID      string            `json:"subjectId" yaml:"subject_id"`
	IsActive       bool              `json:"isActive" yaml:"is_active"`
	Role           Role              `json:"role" yaml:"role"`
	ClaimsVersion  int64             `json:"claimsVersion,omitempty" yaml:"claims_version,omitempty"`
	Permissions    []PermissionGrant `json:"permissions" yaml:"permissions"`
	UpdatedAt      time.Time         `json:"updatedAt,omitempty" yaml:"updated_at,omitempty"`
}

// AuthoritativeVersion is the stored claims version, 1 when absent.
func (r *UserRecord) AuthoritativeVersion() int64 {
	if r == nil || r.ClaimsVersion < 1 {
		return 1
	}
	return r.ClaimsVersion
}

// HasPermission reports whether any grant covers the capability. No wildcard
// expansion is performed.
func (r *UserRecord) HasPermission(c Capability) bool {
	if r == nil {
		return false
	}
	for _, g := range r.Permissions {
		if g.Resource == c.Resource && g.Allows(c.Action) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot mutate store-owned state.
func (r *UserRecord) Clone() *UserRecord {
	if r == nil {
		return nil
	}
	dup := *r
	if r.Permissions != nil {
		dup.Permissions = make([]PermissionGrant, len(r.Permissions))
		for i, g := range r.Permissions {
			dup.Permissions[i] = PermissionGrant{Resource: g.Resource, Actions: slices.Clone(g.Actions)}
		}
	}
	return &dup
}
