// internal/store/postgres.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gitpulse/internal/apperr"
	"gitpulse/internal/model"
)

// Postgres implements Store on top of a pgx connection pool. Schema is
// managed by the migrations under migrations/.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const userColumns = `id, username, password_hash, name, avatar_url, github_username, github_token, last_login`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Name, &u.AvatarURL,
		&u.GithubUsername, &u.GithubToken, &u.LastLogin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (p *Postgres) CreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, name, avatar_url, github_username, github_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		u.Username, u.PasswordHash, u.Name, u.AvatarURL, u.GithubUsername, u.GithubToken)
	return scanUser(row)
}

func (p *Postgres) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (p *Postgres) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

func (p *Postgres) LinkGithubAccount(ctx context.Context, userID int64, githubUsername, githubToken string) (*model.User, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE users SET github_username = $2, github_token = $3
		WHERE id = $1
		RETURNING `+userColumns,
		userID, githubUsername, githubToken)
	return scanUser(row)
}

func (p *Postgres) TouchLastLogin(ctx context.Context, userID int64) error {
	_, err := p.pool.Exec(ctx, `UPDATE users SET last_login = now() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("touch last_login: %w", err)
	}
	return nil
}

const repoColumns = `id, user_id, github_id, name, description, language, stars, forks, last_activity, status, is_private`

func scanRepository(row pgx.Row) (*model.Repository, error) {
	var r model.Repository
	err := row.Scan(&r.ID, &r.UserID, &r.GithubID, &r.Name, &r.Description, &r.Language,
		&r.Stars, &r.Forks, &r.LastActivity, &r.Status, &r.IsPrivate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan repository: %w", err)
	}
	return &r, nil
}

func (p *Postgres) GetRepositoriesByUser(ctx context.Context, userID int64) ([]model.Repository, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+repoColumns+` FROM repositories
		WHERE user_id = $1
		ORDER BY last_activity DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query repositories: %w", err)
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, *r)
	}
	return repos, rows.Err()
}

func (p *Postgres) GetRepository(ctx context.Context, id int64) (*model.Repository, error) {
	return scanRepository(p.pool.QueryRow(ctx, `SELECT `+repoColumns+` FROM repositories WHERE id = $1`, id))
}

func (p *Postgres) GetRepositoryByGithubID(ctx context.Context, userID, githubID int64) (*model.Repository, error) {
	return scanRepository(p.pool.QueryRow(ctx, `
		SELECT `+repoColumns+` FROM repositories
		WHERE user_id = $1 AND github_id = $2`, userID, githubID))
}

func (p *Postgres) CreateRepository(ctx context.Context, r *model.Repository) (*model.Repository, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO repositories (user_id, github_id, name, description, language, stars, forks, last_activity, status, is_private)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+repoColumns,
		r.UserID, r.GithubID, r.Name, r.Description, r.Language,
		r.Stars, r.Forks, r.LastActivity, r.Status, r.IsPrivate)
	return scanRepository(row)
}

func (p *Postgres) UpdateRepository(ctx context.Context, r *model.Repository) (*model.Repository, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE repositories
		SET name = $2, description = $3, language = $4, stars = $5, forks = $6,
		    last_activity = $7, status = $8, is_private = $9
		WHERE id = $1
		RETURNING `+repoColumns,
		r.ID, r.Name, r.Description, r.Language, r.Stars, r.Forks,
		r.LastActivity, r.Status, r.IsPrivate)
	return scanRepository(row)
}

const activityColumns = `id, user_id, repository_id, type, title, description, timestamp, url, payload`

func scanActivity(row pgx.Row) (*model.Activity, error) {
	var a model.Activity
	var payload []byte
	err := row.Scan(&a.ID, &a.UserID, &a.RepositoryID, &a.Type, &a.Title,
		&a.Description, &a.Timestamp, &a.URL, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan activity: %w", err)
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &a.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal activity payload: %w", err)
		}
	}
	return &a, nil
}

func (p *Postgres) CreateActivity(ctx context.Context, a *model.Activity) (*model.Activity, error) {
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal activity payload: %w", err)
	}
	row := p.pool.QueryRow(ctx, `
		INSERT INTO activities (user_id, repository_id, type, title, description, timestamp, url, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+activityColumns,
		a.UserID, a.RepositoryID, a.Type, a.Title, a.Description, a.Timestamp, a.URL, payload)
	return scanActivity(row)
}

func (p *Postgres) queryActivities(ctx context.Context, query string, args ...any) ([]model.Activity, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	var activities []model.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, *a)
	}
	return activities, rows.Err()
}

func (p *Postgres) GetActivitiesByRepository(ctx context.Context, repositoryID int64) ([]model.Activity, error) {
	return p.queryActivities(ctx, `
		SELECT `+activityColumns+` FROM activities
		WHERE repository_id = $1
		ORDER BY timestamp DESC`, repositoryID)
}

func (p *Postgres) GetRecentActivitiesByUser(ctx context.Context, userID int64, limit int) ([]model.Activity, error) {
	return p.queryActivities(ctx, `
		SELECT `+activityColumns+` FROM activities
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`, userID, limit)
}

func (p *Postgres) GetActivitiesByUser(ctx context.Context, userID int64) ([]model.Activity, error) {
	return p.queryActivities(ctx, `
		SELECT `+activityColumns+` FROM activities
		WHERE user_id = $1
		ORDER BY timestamp DESC`, userID)
}

const reminderColumns = `id, user_id, repository_id, title, description, due_date, completed, priority`

func scanReminder(row pgx.Row) (*model.Reminder, error) {
	var rem model.Reminder
	err := row.Scan(&rem.ID, &rem.UserID, &rem.RepositoryID, &rem.Title,
		&rem.Description, &rem.DueDate, &rem.Completed, &rem.Priority)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan reminder: %w", err)
	}
	return &rem, nil
}

func (p *Postgres) GetRemindersByUser(ctx context.Context, userID int64) ([]model.Reminder, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+reminderColumns+` FROM reminders
		WHERE user_id = $1
		ORDER BY due_date ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	defer rows.Close()

	var reminders []model.Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, *rem)
	}
	return reminders, rows.Err()
}

func (p *Postgres) GetReminder(ctx context.Context, id int64) (*model.Reminder, error) {
	return scanReminder(p.pool.QueryRow(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id))
}

func (p *Postgres) CreateReminder(ctx context.Context, rem *model.Reminder) (*model.Reminder, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO reminders (user_id, repository_id, title, description, due_date, completed, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+reminderColumns,
		rem.UserID, rem.RepositoryID, rem.Title, rem.Description, rem.DueDate, rem.Completed, rem.Priority)
	return scanReminder(row)
}

func (p *Postgres) UpdateReminder(ctx context.Context, rem *model.Reminder) (*model.Reminder, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE reminders
		SET title = $2, description = $3, due_date = $4, completed = $5, priority = $6
		WHERE id = $1
		RETURNING `+reminderColumns,
		rem.ID, rem.Title, rem.Description, rem.DueDate, rem.Completed, rem.Priority)
	return scanReminder(row)
}

func (p *Postgres) DeleteReminder(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM reminders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateConversation(ctx context.Context, c *model.Conversation) (*model.Conversation, error) {
	messages, err := json.Marshal(c.Messages)
	if err != nil {
		return nil, fmt.Errorf("marshal conversation messages: %w", err)
	}
	row := p.pool.QueryRow(ctx, `
		INSERT INTO conversations (user_id, timestamp, messages)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, timestamp, messages`,
		c.UserID, c.Timestamp, messages)
	return scanConversation(row)
}

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var c model.Conversation
	var messages []byte
	err := row.Scan(&c.ID, &c.UserID, &c.Timestamp, &messages)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	if err := json.Unmarshal(messages, &c.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal conversation messages: %w", err)
	}
	return &c, nil
}

func (p *Postgres) GetConversationsByUser(ctx context.Context, userID int64) ([]model.Conversation, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, user_id, timestamp, messages FROM conversations
		WHERE user_id = $1
		ORDER BY timestamp DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []model.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, *c)
	}
	return conversations, rows.Err()
}
