package stores

import (
	"fmt"
	"time"

	"github.com/oarkflow/date"
)

func parseFlexibleTime(s string) (time.Time, error) {
	return date.Parse(s)
}

// scanTime converts the driver's timestamp representation.
func scanTime(raw any) time.Time {
	switch v := raw.(type) {
	case time.Time:
		return v
	case string:
		if t, err := parseFlexibleTime(v); err == nil {
			return t
		}
	case []byte:
		if t, err := parseFlexibleTime(string(v)); err == nil {
			return t
		}
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sqlNullTimeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func requireKey(organizationID, subjectID string) error {
	if organizationID == "" || subjectID == "" {
		return fmt.Errorf("organization and subject are required")
	}
	return nil
}
