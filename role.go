package tenantauthz

import (
	"slices"
	"strings"
)

// checkRole passes when the record's normalized role is one of allowed. The
// order of allowed only affects the denial message.
func checkRole(record *UserRecord, allowed []string) error {
	if len(allowed) == 0 {
		return newError(KindInvalidArgument, "at least one allowed role is required")
	}
	role := record.Role.Identifier()
	if role != "" && slices.Contains(allowed, role) {
		return nil
	}
	return newError(KindPermissionDenied, "requires role "+strings.Join(allowed, " or ")).
		withDetail("role %q not allowed", role)
}
