// internal/syncer/status.go
package syncer

import (
	"time"

	"gitpulse/internal/model"
)

// Thresholds, in days since the last push, between status classes.
const (
	activeThreshold    = 7
	attentionThreshold = 30
)

// ClassifyStatus derives a repository's freshness status from its last push
// time: pushed within 7 days is active, within 30 needs attention, anything
// older is inactive.
func ClassifyStatus(lastPush, now time.Time) model.RepoStatus {
	days := now.Sub(lastPush).Hours() / 24

	switch {
	case days <= activeThreshold:
		return model.StatusActive
	case days <= attentionThreshold:
		return model.StatusNeedsAttention
	default:
		return model.StatusInactive
	}
}
