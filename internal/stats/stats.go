// internal/stats/stats.go

// Package stats computes the dashboard's aggregate counters. All counts are
// simple predicate scans over already-loaded rows, recomputed per request.
package stats

import (
	"time"

	"gitpulse/internal/model"
)

const week = 7 * 24 * time.Hour

// Summary is the /api/stats response payload.
type Summary struct {
	ActivePRs                  int `json:"activePRs"`
	WeeklyCommits              int `json:"weeklyCommits"`
	OpenIssues                 int `json:"openIssues"`
	RepositoryCount            int `json:"repositoryCount"`
	ActiveRepositories         int `json:"activeRepositories"`
	NeedsAttentionRepositories int `json:"needsAttentionRepositories"`
	InactiveRepositories       int `json:"inactiveRepositories"`
}

// Compute derives the full summary at the given instant.
func Compute(repos []model.Repository, activities []model.Activity, now time.Time) Summary {
	return Summary{
		ActivePRs:                  CountActivePRs(activities),
		WeeklyCommits:              CountWeeklyCommits(activities, now),
		OpenIssues:                 CountOpenIssues(activities),
		RepositoryCount:            len(repos),
		ActiveRepositories:         CountByStatus(repos, model.StatusActive),
		NeedsAttentionRepositories: CountByStatus(repos, model.StatusNeedsAttention),
		InactiveRepositories:       CountByStatus(repos, model.StatusInactive),
	}
}

// CountActivePRs counts pull request activities whose payload state is open.
func CountActivePRs(activities []model.Activity) int {
	n := 0
	for _, a := range activities {
		if a.Type == model.ActivityPR && a.Payload.State == "open" {
			n++
		}
	}
	return n
}

// CountWeeklyCommits counts commit activities within the trailing 7 days.
func CountWeeklyCommits(activities []model.Activity, now time.Time) int {
	cutoff := now.Add(-week)
	n := 0
	for _, a := range activities {
		if a.Type == model.ActivityCommit && a.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

// CountOpenIssues counts issue activities whose payload state is open.
func CountOpenIssues(activities []model.Activity) int {
	n := 0
	for _, a := range activities {
		if a.Type == model.ActivityIssue && a.Payload.State == "open" {
			n++
		}
	}
	return n
}

// CountByStatus counts repositories currently classified with the status.
func CountByStatus(repos []model.Repository, status model.RepoStatus) int {
	n := 0
	for _, r := range repos {
		if r.Status == status {
			n++
		}
	}
	return n
}
