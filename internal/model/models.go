// internal/model/models.go
package model

import (
	"encoding/json"
	"time"
)

// RepoStatus is the derived freshness classification of a mirrored repository.
type RepoStatus string

const (
	StatusActive         RepoStatus = "active"
	StatusNeedsAttention RepoStatus = "needs_attention"
	StatusInactive       RepoStatus = "inactive"
)

// Activity type tags.
const (
	ActivityCommit = "commit"
	ActivityIssue  = "issue"
	ActivityPR     = "pr"
)

// User is an account holder. GithubUsername and GithubToken are empty until
// the user links their GitHub account.
type User struct {
	ID             int64      `json:"id"`
	Username       string     `json:"username"`
	PasswordHash   string     `json:"-"`
	Name           string     `json:"name,omitempty"`
	AvatarURL      string     `json:"avatarUrl,omitempty"`
	GithubUsername string     `json:"githubUsername,omitempty"`
	GithubToken    string     `json:"-"`
	LastLogin      *time.Time `json:"lastLogin,omitempty"`
}

// DisplayName returns the name to address the user by in assistant prompts.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// Linked reports whether the user has connected their GitHub account.
func (u *User) Linked() bool {
	return u.GithubUsername != "" && u.GithubToken != ""
}

// Repository is the local mirror of one GitHub repository. At most one row
// exists per (UserID, GithubID); sync updates it in place.
type Repository struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"userId"`
	GithubID     int64      `json:"githubId"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	Language     string     `json:"language,omitempty"`
	Stars        int        `json:"stars"`
	Forks        int        `json:"forks"`
	LastActivity time.Time  `json:"lastActivity"`
	Status       RepoStatus `json:"status"`
	IsPrivate    bool       `json:"isPrivate"`
}

// ActivityPayload carries the fields of the upstream event the read side
// actually consumes, plus the unmodified upstream object for anything else.
type ActivityPayload struct {
	State  string          `json:"state,omitempty"`
	Number int             `json:"number,omitempty"`
	Author string          `json:"author,omitempty"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

// Activity is an immutable record of one upstream event (commit, issue or
// pull request) scoped to a repository. Rows are only ever appended.
type Activity struct {
	ID           int64           `json:"id"`
	UserID       int64           `json:"userId"`
	RepositoryID int64           `json:"repositoryId"`
	Type         string          `json:"type"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	URL          string          `json:"url,omitempty"`
	Payload      ActivityPayload `json:"payload"`
}

// Reminder is a user-authored task linked to a repository.
type Reminder struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"userId"`
	RepositoryID int64     `json:"repositoryId"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	DueDate      time.Time `json:"dueDate"`
	Completed    bool      `json:"completed"`
	Priority     string    `json:"priority"`
}

// Message is one side of a chat exchange.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation logs exactly one chat turn: the user message followed by the
// assistant reply. Conversations are never mutated after creation.
type Conversation struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
	Messages  []Message `json:"messages"`
}
