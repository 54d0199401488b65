package tenantauthz

import "strings"

// Capability is a parsed "resource:action" permission request.
type Capability struct {
	Resource string
	Action   string
}

func (c Capability) String() string { return c.Resource + ":" + c.Action }

// ParseCapability splits on the first ':'. Both sides must be non-empty.
func ParseCapability(s string) (Capability, error) {
	resource, action, ok := strings.Cut(s, ":")
	if !ok || resource == "" || action == "" {
		return Capability{}, newError(KindInvalidArgument, "invalid permission format; use resource:action").
			withDetail("capability %q", s)
	}
	return Capability{Resource: resource, Action: action}, nil
}

// checkCapability is the permission gate: a malformed capability is a caller
// programming error, a missing grant is a denial. The capability only appears
// in Detail.
func checkCapability(record *UserRecord, capability string) error {
	c, err := ParseCapability(capability)
	if err != nil {
		return err
	}
	if !record.HasPermission(c) {
		return newError(KindPermissionDenied, "permission denied").
			withDetail("missing permission %s", c)
	}
	return nil
}
