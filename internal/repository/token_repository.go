package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/auth-service/internal/model"
)

// TokenRepo persists and redeems refresh tokens.  Only the SHA-256 hash of a
// token ever reaches this layer; the raw value is never stored or logged.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Create inserts a refresh token hash row.
func (r *TokenRepo) Create(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, tokenHash, exp)
	return err
}

// FindValid returns the record for a non-revoked, non-expired token hash.
// Expired and revoked matches are indistinguishable from not-found.
func (r *TokenRepo) FindValid(ctx context.Context, tokenHash string) (model.RefreshToken, error) {
	var (
		rec       model.RefreshToken
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, token_hash, expires_at, created_at, revoked_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.ExpiresAt, &rec.CreatedAt, &revokedAt)
	if err == sql.ErrNoRows {
		return model.RefreshToken{}, ErrInvalidRefresh
	}
	if err != nil {
		return model.RefreshToken{}, err
	}
	if revokedAt.Valid {
		rec.RevokedAt = &revokedAt.Time
	}
	if !rec.Valid(time.Now().UTC()) {
		return model.RefreshToken{}, ErrInvalidRefresh
	}
	return rec, nil
}

// Redeem atomically revokes a still-valid token and returns its owner.  The
// conditional UPDATE is the single-use gate: of two concurrent redemptions
// of the same hash, exactly one matches the row while revoked_at is still
// NULL; the other sees zero rows affected and gets ErrInvalidRefresh.
func (r *TokenRepo) Redeem(ctx context.Context, tokenHash string) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP()
		 WHERE token_hash=? AND revoked_at IS NULL AND expires_at > UTC_TIMESTAMP()`,
		tokenHash)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrInvalidRefresh
	}
	var userID uint64
	err = r.DB.QueryRowContext(ctx,
		"SELECT user_id FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&userID)
	if err != nil {
		return 0, err
	}
	return userID, nil
}

// WasRevoked probes whether a hash matches an already-revoked row.  A true
// result on a redeem failure means the raw token was presented again after
// rotation, which is the replay/theft signal.
func (r *TokenRepo) WasRevoked(ctx context.Context, tokenHash string) (uint64, bool, error) {
	var (
		userID    uint64
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id, revoked_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&userID, &revokedAt)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return userID, revokedAt.Valid, nil
}

// Revoke marks a token as revoked.  Idempotent: an already-revoked or
// missing hash is a no-op.
func (r *TokenRepo) Revoke(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE token_hash=? AND revoked_at IS NULL",
		tokenHash)
	return err
}

// RevokeAllForUser revokes all of a user's active tokens.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE user_id=? AND revoked_at IS NULL",
		userID)
	return err
}

// DeleteExpired purges rows past their expiry.  Storage hygiene only;
// validity never depends on row absence.
func (r *TokenRepo) DeleteExpired(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at <= UTC_TIMESTAMP()")
	return err
}
