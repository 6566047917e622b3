// internal/syncer/status_test.go
package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gitpulse/internal/model"
)

func TestClassifyStatus(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		daysAgo int
		want    model.RepoStatus
	}{
		{0, model.StatusActive},
		{7, model.StatusActive},
		{8, model.StatusNeedsAttention},
		{30, model.StatusNeedsAttention},
		{31, model.StatusInactive},
		{365, model.StatusInactive},
	}

	for _, tt := range tests {
		lastPush := now.AddDate(0, 0, -tt.daysAgo)
		got := ClassifyStatus(lastPush, now)
		assert.Equalf(t, tt.want, got, "pushed %d days ago", tt.daysAgo)
	}
}
