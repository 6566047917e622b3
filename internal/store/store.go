// internal/store/store.go
package store

import (
	"context"

	"gitpulse/internal/model"
)

// Store is the persistence capability set the rest of the application
// depends on. The sync engine and handlers only ever see this interface,
// never a concrete database, so tests can substitute doubles.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u *model.User) (*model.User, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	LinkGithubAccount(ctx context.Context, userID int64, githubUsername, githubToken string) (*model.User, error)
	TouchLastLogin(ctx context.Context, userID int64) error

	// Repositories
	GetRepositoriesByUser(ctx context.Context, userID int64) ([]model.Repository, error)
	GetRepository(ctx context.Context, id int64) (*model.Repository, error)
	GetRepositoryByGithubID(ctx context.Context, userID, githubID int64) (*model.Repository, error)
	CreateRepository(ctx context.Context, r *model.Repository) (*model.Repository, error)
	UpdateRepository(ctx context.Context, r *model.Repository) (*model.Repository, error)

	// Activities (append-only)
	CreateActivity(ctx context.Context, a *model.Activity) (*model.Activity, error)
	GetActivitiesByRepository(ctx context.Context, repositoryID int64) ([]model.Activity, error)
	GetRecentActivitiesByUser(ctx context.Context, userID int64, limit int) ([]model.Activity, error)
	GetActivitiesByUser(ctx context.Context, userID int64) ([]model.Activity, error)

	// Reminders
	GetRemindersByUser(ctx context.Context, userID int64) ([]model.Reminder, error)
	GetReminder(ctx context.Context, id int64) (*model.Reminder, error)
	CreateReminder(ctx context.Context, rem *model.Reminder) (*model.Reminder, error)
	UpdateReminder(ctx context.Context, rem *model.Reminder) (*model.Reminder, error)
	DeleteReminder(ctx context.Context, id int64) error

	// Conversations
	CreateConversation(ctx context.Context, c *model.Conversation) (*model.Conversation, error)
	GetConversationsByUser(ctx context.Context, userID int64) ([]model.Conversation, error)
}
