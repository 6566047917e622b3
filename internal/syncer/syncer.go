// internal/syncer/syncer.go
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"gitpulse/internal/apperr"
	"gitpulse/internal/github"
	"gitpulse/internal/model"
	"gitpulse/internal/store"
)

// Per sync call, only the most recent activities of each kind are recorded.
const activitiesPerKind = 10

// GithubClient is the slice of the GitHub client the syncer consumes.
type GithubClient interface {
	ListRepositories(ctx context.Context, token, username string) ([]github.RemoteRepository, error)
	ListCommits(ctx context.Context, token, owner, repo string) ([]github.RemoteCommit, error)
	ListIssues(ctx context.Context, token, owner, repo string) ([]github.RemoteItem, error)
	ListPullRequests(ctx context.Context, token, owner, repo string) ([]github.RemoteItem, error)
}

// Syncer reconciles locally stored repositories and activities with the
// GitHub API's current view.
type Syncer struct {
	store  store.Store
	gh     GithubClient
	logger *slog.Logger
	now    func() time.Time
}

// NewSyncer creates a new Syncer instance.
func NewSyncer(st store.Store, gh GithubClient, logger *slog.Logger) *Syncer {
	return &Syncer{
		store:  st,
		gh:     gh,
		logger: logger,
		now:    time.Now,
	}
}

// SyncRepositories fetches the user's repositories from GitHub and upserts
// each into local storage, deriving its status from the last push time.
// Repositories deleted upstream are not pruned.
func (s *Syncer) SyncRepositories(ctx context.Context, userID int64) ([]model.Repository, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.Linked() {
		return nil, apperr.ErrNotLinked
	}

	logger := s.logger.With("user_id", userID, "github_user", user.GithubUsername)
	logger.Info("Syncing repositories")

	remotes, err := s.gh.ListRepositories(ctx, user.GithubToken, user.GithubUsername)
	if err != nil {
		return nil, err
	}

	now := s.now()
	synced := make([]model.Repository, 0, len(remotes))
	for _, remote := range remotes {
		repo, err := s.upsertRepository(ctx, userID, remote, now)
		if err != nil {
			return nil, fmt.Errorf("upsert repository %q: %w", remote.Name, err)
		}
		synced = append(synced, *repo)
	}

	logger.Info("Repository sync finished", "count", len(synced))
	return synced, nil
}

// upsertRepository creates or updates the local mirror of one remote
// repository, keyed by (userID, githubID).
func (s *Syncer) upsertRepository(ctx context.Context, userID int64, remote github.RemoteRepository, now time.Time) (*model.Repository, error) {
	repo := model.Repository{
		UserID:       userID,
		GithubID:     remote.ID,
		Name:         remote.Name,
		Description:  remote.Description,
		Language:     remote.Language,
		Stars:        remote.Stars,
		Forks:        remote.Forks,
		LastActivity: remote.PushedAt,
		Status:       ClassifyStatus(remote.PushedAt, now),
		IsPrivate:    remote.Private,
	}

	existing, err := s.store.GetRepositoryByGithubID(ctx, userID, remote.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		return s.store.CreateRepository(ctx, &repo)
	}
	if err != nil {
		return nil, err
	}

	repo.ID = existing.ID
	return s.store.UpdateRepository(ctx, &repo)
}

// SyncActivities fetches the repository's recent commits, issues and pull
// requests and records the first 10 of each as new activity rows. Repeated
// calls append fresh rows; nothing is deduplicated against earlier syncs.
func (s *Syncer) SyncActivities(ctx context.Context, userID, repositoryID int64) ([]model.Activity, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	repo, err := s.store.GetRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	if user.GithubToken == "" {
		return nil, apperr.ErrNotLinked
	}

	logger := s.logger.With("user_id", userID, "repo", repo.Name)
	logger.Info("Syncing activities")

	owner := user.GithubUsername

	var (
		commits []github.RemoteCommit
		issues  []github.RemoteItem
		prs     []github.RemoteItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		commits, err = s.gh.ListCommits(gctx, user.GithubToken, owner, repo.Name)
		return err
	})
	g.Go(func() error {
		var err error
		issues, err = s.gh.ListIssues(gctx, user.GithubToken, owner, repo.Name)
		return err
	})
	g.Go(func() error {
		var err error
		prs, err = s.gh.ListPullRequests(gctx, user.GithubToken, owner, repo.Name)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var saved []model.Activity
	for _, commit := range commits[:min(activitiesPerKind, len(commits))] {
		title, _, _ := strings.Cut(commit.Message, "\n")
		activity := model.Activity{
			UserID:       userID,
			RepositoryID: repositoryID,
			Type:         model.ActivityCommit,
			Title:        title,
			Description:  commit.Message,
			Timestamp:    commit.AuthorDate,
			URL:          commit.HTMLURL,
			Payload: model.ActivityPayload{
				Author: commit.AuthorName,
				Raw:    commit.Raw,
			},
		}
		created, err := s.store.CreateActivity(ctx, &activity)
		if err != nil {
			return nil, fmt.Errorf("create commit activity: %w", err)
		}
		saved = append(saved, *created)
	}

	for _, issue := range issues[:min(activitiesPerKind, len(issues))] {
		created, err := s.createItemActivity(ctx, userID, repositoryID, model.ActivityIssue, "Issue", issue)
		if err != nil {
			return nil, err
		}
		saved = append(saved, *created)
	}
	for _, pr := range prs[:min(activitiesPerKind, len(prs))] {
		created, err := s.createItemActivity(ctx, userID, repositoryID, model.ActivityPR, "PR", pr)
		if err != nil {
			return nil, err
		}
		saved = append(saved, *created)
	}

	logger.Info("Activity sync finished", "count", len(saved))
	return saved, nil
}

func (s *Syncer) createItemActivity(ctx context.Context, userID, repositoryID int64, kind, label string, item github.RemoteItem) (*model.Activity, error) {
	activity := model.Activity{
		UserID:       userID,
		RepositoryID: repositoryID,
		Type:         kind,
		Title:        item.Title,
		Description:  fmt.Sprintf("%s #%d: %s", label, item.Number, item.Title),
		Timestamp:    item.CreatedAt,
		URL:          item.HTMLURL,
		Payload: model.ActivityPayload{
			State:  item.State,
			Number: item.Number,
			Author: item.Author,
			Raw:    item.Raw,
		},
	}
	created, err := s.store.CreateActivity(ctx, &activity)
	if err != nil {
		return nil, fmt.Errorf("create %s activity: %w", kind, err)
	}
	return created, nil
}
