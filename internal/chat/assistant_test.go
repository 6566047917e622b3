// internal/chat/assistant_test.go
package chat

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitpulse/internal/apperr"
	"gitpulse/internal/model"
)

// stubStore serves canned data and records created conversations.
type stubStore struct {
	user          *model.User
	repos         []model.Repository
	activities    []model.Activity
	reminders     []model.Reminder
	conversations []model.Conversation
}

func (s *stubStore) CreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	return u, nil
}
func (s *stubStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, apperr.ErrNotFound
	}
	return s.user, nil
}
func (s *stubStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return nil, apperr.ErrNotFound
}
func (s *stubStore) LinkGithubAccount(ctx context.Context, userID int64, githubUsername, githubToken string) (*model.User, error) {
	return s.user, nil
}
func (s *stubStore) TouchLastLogin(ctx context.Context, userID int64) error { return nil }
func (s *stubStore) GetRepositoriesByUser(ctx context.Context, userID int64) ([]model.Repository, error) {
	return s.repos, nil
}
func (s *stubStore) GetRepository(ctx context.Context, id int64) (*model.Repository, error) {
	return nil, apperr.ErrNotFound
}
func (s *stubStore) GetRepositoryByGithubID(ctx context.Context, userID, githubID int64) (*model.Repository, error) {
	return nil, apperr.ErrNotFound
}
func (s *stubStore) CreateRepository(ctx context.Context, r *model.Repository) (*model.Repository, error) {
	return r, nil
}
func (s *stubStore) UpdateRepository(ctx context.Context, r *model.Repository) (*model.Repository, error) {
	return r, nil
}
func (s *stubStore) CreateActivity(ctx context.Context, a *model.Activity) (*model.Activity, error) {
	return a, nil
}
func (s *stubStore) GetActivitiesByRepository(ctx context.Context, repositoryID int64) ([]model.Activity, error) {
	return nil, nil
}
func (s *stubStore) GetRecentActivitiesByUser(ctx context.Context, userID int64, limit int) ([]model.Activity, error) {
	if len(s.activities) > limit {
		return s.activities[:limit], nil
	}
	return s.activities, nil
}
func (s *stubStore) GetActivitiesByUser(ctx context.Context, userID int64) ([]model.Activity, error) {
	return s.activities, nil
}
func (s *stubStore) GetRemindersByUser(ctx context.Context, userID int64) ([]model.Reminder, error) {
	return s.reminders, nil
}
func (s *stubStore) GetReminder(ctx context.Context, id int64) (*model.Reminder, error) {
	return nil, apperr.ErrNotFound
}
func (s *stubStore) CreateReminder(ctx context.Context, rem *model.Reminder) (*model.Reminder, error) {
	return rem, nil
}
func (s *stubStore) UpdateReminder(ctx context.Context, rem *model.Reminder) (*model.Reminder, error) {
	return rem, nil
}
func (s *stubStore) DeleteReminder(ctx context.Context, id int64) error { return nil }
func (s *stubStore) CreateConversation(ctx context.Context, c *model.Conversation) (*model.Conversation, error) {
	c.ID = int64(len(s.conversations) + 1)
	s.conversations = append(s.conversations, *c)
	return c, nil
}
func (s *stubStore) GetConversationsByUser(ctx context.Context, userID int64) ([]model.Conversation, error) {
	return s.conversations, nil
}

// generatorFunc adapts a function to the Generator interface.
type generatorFunc func(ctx context.Context, system, message string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, system, message string) (string, error) {
	return f(ctx, system, message)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestAssistant_Respond(t *testing.T) {
	ctx := context.Background()
	user := &model.User{ID: 1, Username: "alice", Name: "Alice"}

	t.Run("generates a reply and persists the turn", func(t *testing.T) {
		st := &stubStore{
			user:  user,
			repos: []model.Repository{{ID: 5, Name: "side-project", Status: model.StatusActive}},
		}
		var seenSystem string
		gen := generatorFunc(func(ctx context.Context, system, message string) (string, error) {
			seenSystem = system
			return "You pushed to side-project two days ago, keep it up!", nil
		})

		a := NewAssistant(st, gen, testLogger())
		reply, conversation, err := a.Respond(ctx, 1, "How am I doing?")

		require.NoError(t, err)
		assert.Contains(t, reply, "side-project")
		assert.Contains(t, seenSystem, `"name": "side-project"`)

		require.Len(t, st.conversations, 1)
		msgs := conversation.Messages
		require.Len(t, msgs, 2)
		assert.Equal(t, "user", msgs[0].Role)
		assert.Equal(t, "How am I doing?", msgs[0].Content)
		assert.Equal(t, "assistant", msgs[1].Role)
		assert.Equal(t, reply, msgs[1].Content)
		assert.False(t, msgs[1].Timestamp.Before(msgs[0].Timestamp))
	})

	// Upstream model failures must never surface as errors on the chat
	// path; the user gets the fixed fallback reply instead.
	t.Run("returns the fallback reply when generation fails", func(t *testing.T) {
		st := &stubStore{user: user}
		gen := generatorFunc(func(ctx context.Context, system, message string) (string, error) {
			return "", errors.New("quota exceeded")
		})

		a := NewAssistant(st, gen, testLogger())
		reply, conversation, err := a.Respond(ctx, 1, "hello?")

		require.NoError(t, err)
		assert.Equal(t, FallbackReply, reply)
		require.NotNil(t, conversation)
		assert.Equal(t, FallbackReply, conversation.Messages[1].Content)
	})

	t.Run("unknown user is a not found error", func(t *testing.T) {
		a := NewAssistant(&stubStore{}, generatorFunc(func(ctx context.Context, system, message string) (string, error) {
			return "unreachable", nil
		}), testLogger())

		_, _, err := a.Respond(ctx, 42, "hello")

		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("packs at most twenty recent activities", func(t *testing.T) {
		activities := make([]model.Activity, 30)
		for i := range activities {
			activities[i] = model.Activity{
				RepositoryID: 5,
				Type:         model.ActivityCommit,
				Title:        "commit",
				Timestamp:    time.Now(),
			}
		}
		st := &stubStore{user: user, activities: activities}

		var count int
		gen := generatorFunc(func(ctx context.Context, system, message string) (string, error) {
			count = strings.Count(system, `"type": "commit"`)
			return "ok", nil
		})

		a := NewAssistant(st, gen, testLogger())
		_, _, err := a.Respond(ctx, 1, "summary please")

		require.NoError(t, err)
		assert.Equal(t, recentActivityLimit, count)
	})
}
