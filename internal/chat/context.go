// internal/chat/context.go
package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"gitpulse/internal/model"
)

// unknownRepo stands in when an activity or reminder points at a repository
// that is no longer resolvable. Assembly must not fail on dangling references.
const unknownRepo = "unknown"

// Context is the data snapshot a reply is generated from.
type Context struct {
	User         *model.User
	Repositories []model.Repository
	Activities   []model.Activity
	Reminders    []model.Reminder
}

type repoSummary struct {
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Language     string    `json:"language,omitempty"`
	Status       string    `json:"status"`
	LastActivity time.Time `json:"lastActivity"`
	Stars        int       `json:"stars"`
	Forks        int       `json:"forks"`
}

type activitySummary struct {
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Repository  string    `json:"repository"`
	Timestamp   time.Time `json:"timestamp"`
}

type reminderSummary struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Repository  string    `json:"repository"`
	DueDate     time.Time `json:"dueDate"`
	Completed   bool      `json:"completed"`
	Priority    string    `json:"priority"`
}

// BuildSystemPrompt assembles the instruction block for the model: persona,
// the user's name, the three serialized summaries in stable order, then the
// behavioral directives.
func BuildSystemPrompt(c Context) string {
	names := make(map[int64]string, len(c.Repositories))
	repoInfo := make([]repoSummary, 0, len(c.Repositories))
	for _, repo := range c.Repositories {
		names[repo.ID] = repo.Name
		repoInfo = append(repoInfo, repoSummary{
			Name:         repo.Name,
			Description:  repo.Description,
			Language:     repo.Language,
			Status:       string(repo.Status),
			LastActivity: repo.LastActivity,
			Stars:        repo.Stars,
			Forks:        repo.Forks,
		})
	}

	activityInfo := make([]activitySummary, 0, len(c.Activities))
	for _, activity := range c.Activities {
		activityInfo = append(activityInfo, activitySummary{
			Type:        activity.Type,
			Title:       activity.Title,
			Description: activity.Description,
			Repository:  repoName(names, activity.RepositoryID),
			Timestamp:   activity.Timestamp,
		})
	}

	reminderInfo := make([]reminderSummary, 0, len(c.Reminders))
	for _, reminder := range c.Reminders {
		reminderInfo = append(reminderInfo, reminderSummary{
			Title:       reminder.Title,
			Description: reminder.Description,
			Repository:  repoName(names, reminder.RepositoryID),
			DueDate:     reminder.DueDate,
			Completed:   reminder.Completed,
			Priority:    reminder.Priority,
		})
	}

	return fmt.Sprintf(`You are a GitHub accountability assistant named GitHub Assistant. You help users stay on top of their GitHub activity and maintain consistent contributions.

The user's name is %s.

Here's the context about their GitHub repositories and activity:

Repositories:
%s

Recent Activities:
%s

Current Reminders:
%s

Your role is to:
1. Answer questions about the user's repositories, commits, PRs, issues, and overall GitHub activity
2. Provide helpful suggestions for maintaining consistent contributions
3. Remind them of pending issues, PRs, or commits they should address
4. Be friendly and supportive but also gently push them to maintain their GitHub presence
5. Keep responses concise and focused on providing actionable information

When there are specific repository questions, focus on the relevant repositories rather than listing everything.
Format your responses in a clear, easy-to-read manner. Use markdown formatting for lists and highlights.
`,
		c.User.DisplayName(),
		marshalSummary(repoInfo),
		marshalSummary(activityInfo),
		marshalSummary(reminderInfo))
}

func repoName(names map[int64]string, id int64) string {
	if name, ok := names[id]; ok {
		return name
	}
	return unknownRepo
}

func marshalSummary(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}
