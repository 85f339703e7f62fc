// Package rules holds the pure predicates that decide whether a pass
// transition is allowed. Nothing here performs I/O; the service layer reads
// state from the store and asks these functions before it writes.
package rules

import (
	"time"

	"github.com/hallpass-dev/hallpass/internal/hallpass/types"
)

// IsPassOpen reports whether the pass accepts out/in/close actions.
// An escalated pass is not open.
func IsPassOpen(p types.Pass) bool {
	return p.Status == types.StatusOpen
}

// IsScheduledLocation reports whether locationID is the pass origin.
func IsScheduledLocation(p types.Pass, locationID string) bool {
	return locationID == p.OriginLocationID
}

// CurrentLocation returns where the student is now, falling back to the
// origin when no movement has been recorded.
func CurrentLocation(p types.Pass) string {
	if p.CurrentLocationID != "" {
		return p.CurrentLocationID
	}
	return p.OriginLocationID
}

// CanOutTo reports whether a student at current may leave for next.
func CanOutTo(current, next string) bool {
	return current != next
}

// CanInAt reports whether a regular check-in at locationID is allowed:
// the student may arrive where the pass currently points or back at origin.
func CanInAt(p types.Pass, locationID string) bool {
	return locationID == p.CurrentLocationID || locationID == p.OriginLocationID
}

// IsValidRestroomReturn reports whether a restroom pass may check in at
// locationID. Restroom passes only close by returning to the origin.
func IsValidRestroomReturn(p types.Pass, locationID string) bool {
	if p.Type != types.PassRestroom {
		return false
	}
	return locationID == p.OriginLocationID
}

// IsRestroomDestination reports whether an out to next is allowed for a
// restroom pass.
func IsRestroomDestination(restroomLocationID, next string) bool {
	return next == restroomLocationID
}

// EscalationConfig holds the thresholds, in minutes, at which an open pass
// escalates.
type EscalationConfig struct {
	WarningMinutes int
	AlertMinutes   int
}

// DefaultEscalationConfig returns the stock thresholds (10 and 20 minutes).
func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{WarningMinutes: 10, AlertMinutes: 20}
}

// EscalationLevelAt computes the severity of p at now. Thresholds are
// inclusive and alert wins over warning. Only open passes escalate.
func EscalationLevelAt(p types.Pass, cfg EscalationConfig, now time.Time) types.EscalationLevel {
	if !IsPassOpen(p) {
		return types.EscalationNone
	}
	minutesOpen := float64(now.UnixMilli()-p.OpenedAt) / 60000
	if minutesOpen >= float64(cfg.AlertMinutes) {
		return types.EscalationAlert
	}
	if minutesOpen >= float64(cfg.WarningMinutes) {
		return types.EscalationWarning
	}
	return types.EscalationNone
}
