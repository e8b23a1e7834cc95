package deliveries

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	displayIDConstraint = "ux_deliveries_display_id"
	displayIDAttempts   = 5
)

// NewDisplayID returns a human-readable id such as DL-261015-3F9A0C.
func NewDisplayID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return "DL-" + now.UTC().Format("060102") + "-" + suffix
}
