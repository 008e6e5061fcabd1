package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/auth-service/internal/auth"
	"github.com/iliyamo/auth-service/internal/model"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// UpsertByGitHubID creates the user on first sight of a github_id and
// refreshes the mutable profile fields (username, email, display name,
// avatar) on every subsequent sight.  LAST_INSERT_ID(id) makes LastInsertId
// return the existing row's id on the update path, so both paths yield the
// local user id in one round trip.
func (r *UserRepo) UpsertByGitHubID(ctx context.Context, p auth.Profile) (model.User, error) {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (github_id, username, email, display_name, avatar_url)
		 VALUES (?,?,?,?,?)
		 ON DUPLICATE KEY UPDATE
		   id=LAST_INSERT_ID(id), username=VALUES(username), email=VALUES(email),
		   display_name=VALUES(display_name), avatar_url=VALUES(avatar_url)`,
		p.ID, p.Login, p.Email, p.Name, p.AvatarURL)
	if err != nil {
		return model.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, github_id, username, email, display_name, avatar_url, created_at, updated_at
		 FROM users WHERE id=? LIMIT 1`,
		id).Scan(&u.ID, &u.GitHubID, &u.Username, &u.Email, &u.DisplayName, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.User{}, ErrUserNotFound
	}
	return u, err
}

// GetByGitHubID fetches a user by the immutable provider id.
func (r *UserRepo) GetByGitHubID(ctx context.Context, githubID int64) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, github_id, username, email, display_name, avatar_url, created_at, updated_at
		 FROM users WHERE github_id=? LIMIT 1`,
		githubID).Scan(&u.ID, &u.GitHubID, &u.Username, &u.Email, &u.DisplayName, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.User{}, ErrUserNotFound
	}
	return u, err
}
