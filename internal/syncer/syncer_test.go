// internal/syncer/syncer_test.go
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gitpulse/internal/apperr"
	"gitpulse/internal/github"
	"gitpulse/internal/model"
)

// MockStore is a mock of the store.Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	args := m.Called(ctx, u)
	return args.Get(0).(*model.User), args.Error(1)
}
func (m *MockStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}
func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(*model.User), args.Error(1)
}
func (m *MockStore) LinkGithubAccount(ctx context.Context, userID int64, githubUsername, githubToken string) (*model.User, error) {
	args := m.Called(ctx, userID, githubUsername, githubToken)
	return args.Get(0).(*model.User), args.Error(1)
}
func (m *MockStore) TouchLastLogin(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}
func (m *MockStore) GetRepositoriesByUser(ctx context.Context, userID int64) ([]model.Repository, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]model.Repository), args.Error(1)
}
func (m *MockStore) GetRepository(ctx context.Context, id int64) (*model.Repository, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Repository), args.Error(1)
}
func (m *MockStore) GetRepositoryByGithubID(ctx context.Context, userID, githubID int64) (*model.Repository, error) {
	args := m.Called(ctx, userID, githubID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Repository), args.Error(1)
}
func (m *MockStore) CreateRepository(ctx context.Context, r *model.Repository) (*model.Repository, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(*model.Repository), args.Error(1)
}
func (m *MockStore) UpdateRepository(ctx context.Context, r *model.Repository) (*model.Repository, error) {
	args := m.Called(ctx, r)
	return args.Get(0).(*model.Repository), args.Error(1)
}
func (m *MockStore) CreateActivity(ctx context.Context, a *model.Activity) (*model.Activity, error) {
	args := m.Called(ctx, a)
	return args.Get(0).(*model.Activity), args.Error(1)
}
func (m *MockStore) GetActivitiesByRepository(ctx context.Context, repositoryID int64) ([]model.Activity, error) {
	args := m.Called(ctx, repositoryID)
	return args.Get(0).([]model.Activity), args.Error(1)
}
func (m *MockStore) GetRecentActivitiesByUser(ctx context.Context, userID int64, limit int) ([]model.Activity, error) {
	args := m.Called(ctx, userID, limit)
	return args.Get(0).([]model.Activity), args.Error(1)
}
func (m *MockStore) GetActivitiesByUser(ctx context.Context, userID int64) ([]model.Activity, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]model.Activity), args.Error(1)
}
func (m *MockStore) GetRemindersByUser(ctx context.Context, userID int64) ([]model.Reminder, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]model.Reminder), args.Error(1)
}
func (m *MockStore) GetReminder(ctx context.Context, id int64) (*model.Reminder, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*model.Reminder), args.Error(1)
}
func (m *MockStore) CreateReminder(ctx context.Context, rem *model.Reminder) (*model.Reminder, error) {
	args := m.Called(ctx, rem)
	return args.Get(0).(*model.Reminder), args.Error(1)
}
func (m *MockStore) UpdateReminder(ctx context.Context, rem *model.Reminder) (*model.Reminder, error) {
	args := m.Called(ctx, rem)
	return args.Get(0).(*model.Reminder), args.Error(1)
}
func (m *MockStore) DeleteReminder(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}
func (m *MockStore) CreateConversation(ctx context.Context, c *model.Conversation) (*model.Conversation, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(*model.Conversation), args.Error(1)
}
func (m *MockStore) GetConversationsByUser(ctx context.Context, userID int64) ([]model.Conversation, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]model.Conversation), args.Error(1)
}

// MockGithub is a mock of the GithubClient interface.
type MockGithub struct {
	mock.Mock
}

func (m *MockGithub) ListRepositories(ctx context.Context, token, username string) ([]github.RemoteRepository, error) {
	args := m.Called(ctx, token, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]github.RemoteRepository), args.Error(1)
}
func (m *MockGithub) ListCommits(ctx context.Context, token, owner, repo string) ([]github.RemoteCommit, error) {
	args := m.Called(ctx, token, owner, repo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]github.RemoteCommit), args.Error(1)
}
func (m *MockGithub) ListIssues(ctx context.Context, token, owner, repo string) ([]github.RemoteItem, error) {
	args := m.Called(ctx, token, owner, repo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]github.RemoteItem), args.Error(1)
}
func (m *MockGithub) ListPullRequests(ctx context.Context, token, owner, repo string) ([]github.RemoteItem, error) {
	args := m.Called(ctx, token, owner, repo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]github.RemoteItem), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func linkedUser() *model.User {
	return &model.User{
		ID:             1,
		Username:       "alice",
		GithubUsername: "alice",
		GithubToken:    "ghp_test",
	}
}

func TestSyncRepositories(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	remote := github.RemoteRepository{
		ID:       987,
		Name:     "side-project",
		Language: "Go",
		Stars:    12,
		Forks:    3,
		PushedAt: now.AddDate(0, 0, -2),
	}

	t.Run("creates a new repository mirror when none exists", func(t *testing.T) {
		st := new(MockStore)
		gh := new(MockGithub)
		s := NewSyncer(st, gh, testLogger())
		s.now = func() time.Time { return now }

		st.On("GetUser", ctx, int64(1)).Return(linkedUser(), nil).Once()
		gh.On("ListRepositories", ctx, "ghp_test", "alice").Return([]github.RemoteRepository{remote}, nil).Once()
		st.On("GetRepositoryByGithubID", ctx, int64(1), int64(987)).Return(nil, apperr.ErrNotFound).Once()
		st.On("CreateRepository", ctx, mock.MatchedBy(func(r *model.Repository) bool {
			return r.GithubID == 987 && r.Status == model.StatusActive
		})).Return(&model.Repository{ID: 5, GithubID: 987, Status: model.StatusActive}, nil).Once()

		repos, err := s.SyncRepositories(ctx, 1)

		require.NoError(t, err)
		assert.Len(t, repos, 1)
		st.AssertExpectations(t)
		st.AssertNotCalled(t, "UpdateRepository")
	})

	t.Run("updates the existing mirror in place", func(t *testing.T) {
		st := new(MockStore)
		gh := new(MockGithub)
		s := NewSyncer(st, gh, testLogger())
		s.now = func() time.Time { return now }

		existing := &model.Repository{ID: 5, UserID: 1, GithubID: 987, Stars: 2}
		st.On("GetUser", ctx, int64(1)).Return(linkedUser(), nil).Once()
		gh.On("ListRepositories", ctx, "ghp_test", "alice").Return([]github.RemoteRepository{remote}, nil).Once()
		st.On("GetRepositoryByGithubID", ctx, int64(1), int64(987)).Return(existing, nil).Once()
		st.On("UpdateRepository", ctx, mock.MatchedBy(func(r *model.Repository) bool {
			return r.ID == 5 && r.Stars == 12
		})).Return(&model.Repository{ID: 5, GithubID: 987, Stars: 12}, nil).Once()

		repos, err := s.SyncRepositories(ctx, 1)

		require.NoError(t, err)
		assert.Len(t, repos, 1)
		st.AssertExpectations(t)
		st.AssertNotCalled(t, "CreateRepository")
	})

	t.Run("derives status from days since last push", func(t *testing.T) {
		st := new(MockStore)
		gh := new(MockGithub)
		s := NewSyncer(st, gh, testLogger())
		s.now = func() time.Time { return now }

		stale := remote
		stale.PushedAt = now.AddDate(0, 0, -40)
		st.On("GetUser", ctx, int64(1)).Return(linkedUser(), nil).Once()
		gh.On("ListRepositories", ctx, "ghp_test", "alice").Return([]github.RemoteRepository{stale}, nil).Once()
		st.On("GetRepositoryByGithubID", ctx, int64(1), int64(987)).Return(nil, apperr.ErrNotFound).Once()
		st.On("CreateRepository", ctx, mock.MatchedBy(func(r *model.Repository) bool {
			return r.Status == model.StatusInactive
		})).Return(&model.Repository{ID: 5, Status: model.StatusInactive}, nil).Once()

		_, err := s.SyncRepositories(ctx, 1)

		require.NoError(t, err)
		st.AssertExpectations(t)
	})

	t.Run("fails when the user has not linked a github account", func(t *testing.T) {
		st := new(MockStore)
		gh := new(MockGithub)
		s := NewSyncer(st, gh, testLogger())

		st.On("GetUser", ctx, int64(1)).Return(&model.User{ID: 1, Username: "alice"}, nil).Once()

		_, err := s.SyncRepositories(ctx, 1)

		assert.ErrorIs(t, err, apperr.ErrNotLinked)
		gh.AssertNotCalled(t, "ListRepositories")
	})

	t.Run("propagates upstream failure", func(t *testing.T) {
		st := new(MockStore)
		gh := new(MockGithub)
		s := NewSyncer(st, gh, testLogger())

		upstream := &apperr.UpstreamError{Service: "github: list repositories", StatusCode: 502}
		st.On("GetUser", ctx, int64(1)).Return(linkedUser(), nil).Once()
		gh.On("ListRepositories", ctx, "ghp_test", "alice").Return(nil, upstream).Once()

		_, err := s.SyncRepositories(ctx, 1)

		var ue *apperr.UpstreamError
		assert.ErrorAs(t, err, &ue)
		st.AssertNotCalled(t, "CreateRepository")
	})
}

func TestSyncActivities(t *testing.T) {
	ctx := context.Background()

	commit := github.RemoteCommit{
		SHA:        "abc123",
		Message:    "fix: handle empty responses\n\nLonger body here.",
		AuthorName: "alice",
		AuthorDate: time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC),
		HTMLURL:    "https://example.com/commit/abc123",
	}
	issue := github.RemoteItem{Number: 3, Title: "Crash on startup", State: "open", Author: "bob", CreatedAt: time.Date(2025, 6, 9, 9, 0, 0, 0, time.UTC)}
	pr := github.RemoteItem{Number: 4, Title: "Add retries", State: "closed", Author: "alice", CreatedAt: time.Date(2025, 6, 8, 9, 0, 0, 0, time.UTC)}

	setup := func(st *MockStore, gh *MockGithub) {
		st.On("GetUser", ctx, int64(1)).Return(linkedUser(), nil)
		st.On("GetRepository", ctx, int64(5)).Return(&model.Repository{ID: 5, UserID: 1, Name: "side-project"}, nil)
		// The fetches run under an errgroup-derived context, so the context
		// argument cannot be matched by identity here.
		gh.On("ListCommits", mock.Anything, "ghp_test", "alice", "side-project").Return([]github.RemoteCommit{commit}, nil)
		gh.On("ListIssues", mock.Anything, "ghp_test", "alice", "side-project").Return([]github.RemoteItem{issue}, nil)
		gh.On("ListPullRequests", mock.Anything, "ghp_test", "alice", "side-project").Return([]github.RemoteItem{pr}, nil)
		st.On("CreateActivity", ctx, mock.AnythingOfType("*model.Activity")).Return(&model.Activity{}, nil)
	}

	t.Run("maps commits, issues and pull requests", func(t *testing.T) {
		st := new(MockStore)
		gh := new(MockGithub)
		s := NewSyncer(st, gh, testLogger())
		setup(st, gh)

		saved, err := s.SyncActivities(ctx, 1, 5)

		require.NoError(t, err)
		assert.Len(t, saved, 3)

		var created []*model.Activity
		for _, call := range st.Calls {
			if call.Method == "CreateActivity" {
				created = append(created, call.Arguments.Get(1).(*model.Activity))
			}
		}
		require.Len(t, created, 3)

		assert.Equal(t, model.ActivityCommit, created[0].Type)
		assert.Equal(t, "fix: handle empty responses", created[0].Title)
		assert.Equal(t, commit.Message, created[0].Description)
		assert.Equal(t, "alice", created[0].Payload.Author)

		assert.Equal(t, model.ActivityIssue, created[1].Type)
		assert.Equal(t, "Crash on startup", created[1].Title)
		assert.Equal(t, "Issue #3: Crash on startup", created[1].Description)
		assert.Equal(t, "open", created[1].Payload.State)

		assert.Equal(t, model.ActivityPR, created[2].Type)
		assert.Equal(t, "PR #4: Add retries", created[2].Description)
		assert.Equal(t, "closed", created[2].Payload.State)
	})

	// Repeated syncs append fresh rows: no dedup against earlier syncs. Any
	// future change to upsert-by-external-id must update this test knowingly.
	t.Run("appends duplicate rows on repeated sync", func(t *testing.T) {
		st := new(MockStore)
		gh := new(MockGithub)
		s := NewSyncer(st, gh, testLogger())
		setup(st, gh)

		_, err := s.SyncActivities(ctx, 1, 5)
		require.NoError(t, err)
		_, err = s.SyncActivities(ctx, 1, 5)
		require.NoError(t, err)

		assert.Equal(t, 6, countCalls(st, "CreateActivity"))
	})

	t.Run("caps each kind at ten per sync", func(t *testing.T) {
		st := new(MockStore)
		gh := new(MockGithub)
		s := NewSyncer(st, gh, testLogger())

		commits := make([]github.RemoteCommit, 30)
		for i := range commits {
			commits[i] = commit
		}
		st.On("GetUser", ctx, int64(1)).Return(linkedUser(), nil)
		st.On("GetRepository", ctx, int64(5)).Return(&model.Repository{ID: 5, UserID: 1, Name: "side-project"}, nil)
		gh.On("ListCommits", mock.Anything, "ghp_test", "alice", "side-project").Return(commits, nil)
		gh.On("ListIssues", mock.Anything, "ghp_test", "alice", "side-project").Return([]github.RemoteItem{}, nil)
		gh.On("ListPullRequests", mock.Anything, "ghp_test", "alice", "side-project").Return([]github.RemoteItem{}, nil)
		st.On("CreateActivity", ctx, mock.AnythingOfType("*model.Activity")).Return(&model.Activity{}, nil)

		saved, err := s.SyncActivities(ctx, 1, 5)

		require.NoError(t, err)
		assert.Len(t, saved, 10)
	})

	t.Run("aborts when any fetch fails", func(t *testing.T) {
		st := new(MockStore)
		gh := new(MockGithub)
		s := NewSyncer(st, gh, testLogger())

		st.On("GetUser", ctx, int64(1)).Return(linkedUser(), nil)
		st.On("GetRepository", ctx, int64(5)).Return(&model.Repository{ID: 5, UserID: 1, Name: "side-project"}, nil)
		gh.On("ListCommits", mock.Anything, "ghp_test", "alice", "side-project").Return([]github.RemoteCommit{commit}, nil).Maybe()
		gh.On("ListIssues", mock.Anything, "ghp_test", "alice", "side-project").Return(nil, errors.New("boom")).Once()
		gh.On("ListPullRequests", mock.Anything, "ghp_test", "alice", "side-project").Return([]github.RemoteItem{pr}, nil).Maybe()

		_, err := s.SyncActivities(ctx, 1, 5)

		assert.Error(t, err)
		st.AssertNotCalled(t, "CreateActivity")
	})

	t.Run("fails without a token", func(t *testing.T) {
		st := new(MockStore)
		gh := new(MockGithub)
		s := NewSyncer(st, gh, testLogger())

		st.On("GetUser", ctx, int64(1)).Return(&model.User{ID: 1, Username: "alice"}, nil)
		st.On("GetRepository", ctx, int64(5)).Return(&model.Repository{ID: 5, UserID: 1, Name: "side-project"}, nil)

		_, err := s.SyncActivities(ctx, 1, 5)

		assert.ErrorIs(t, err, apperr.ErrNotLinked)
	})
}

func countCalls(m *MockStore, method string) int {
	n := 0
	for _, call := range m.Calls {
		if call.Method == method {
			n++
		}
	}
	return n
}
