package pg

import (
	"context"
	"time"

	"github.com/dropDatabas3/hellojohn/internal/apperr"
	"github.com/dropDatabas3/hellojohn/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PasswordResetRepo struct{ pool *Pool }

func NewPasswordResetRepo(pool *Pool) *PasswordResetRepo { return &PasswordResetRepo{pool: pool} }

func (r *PasswordResetRepo) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time, ip, userAgent *string) error {
	_, err := r.pool.pool.Exec(ctx,
		`INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, ip_address, user_agent)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), userID, tokenHash, expiresAt, ip, userAgent)
	if err != nil {
		return apperr.Internal("create password reset token", err)
	}
	return nil
}

func (r *PasswordResetRepo) GetByHash(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error) {
	row := r.pool.pool.QueryRow(ctx,
		`SELECT id, user_id, token_hash, expires_at, used_at, ip_address, user_agent, created_at
		 FROM password_reset_tokens WHERE token_hash = $1`, tokenHash)

	var t domain.PasswordResetToken
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.UsedAt,
		&t.IPAddress, &t.UserAgent, &t.CreatedAt); err != nil {
		if isNotFound(err) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Internal("get password reset token", err)
	}
	return &t, nil
}

func (r *PasswordResetRepo) MarkUsed(ctx context.Context, id string) error {
	tag, err := r.pool.pool.Exec(ctx,
		`UPDATE password_reset_tokens SET used_at = now() WHERE id = $1 AND used_at IS NULL`, id)
	if err != nil {
		return apperr.Internal("mark password reset token used", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrConflict
	}
	return nil
}

// ApplyReset burns tokenID, sets the account's password hash, and deletes
// every one of its sessions as a single transaction: either the whole reset
// takes effect or none of it does. Returns apperr.ErrConflict if the token
// was already used by the time the transaction runs.
func (r *PasswordResetRepo) ApplyReset(ctx context.Context, tokenID, userID, newPasswordHash string) error {
	return r.pool.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE password_reset_tokens SET used_at = now() WHERE id = $1 AND used_at IS NULL`, tokenID)
		if err != nil {
			return apperr.Internal("mark password reset token used", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.ErrConflict
		}

		if tag, err = tx.Exec(ctx,
			`UPDATE users SET password_hash = $1 WHERE id = $2`, newPasswordHash, userID); err != nil {
			return apperr.Internal("update password hash", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.ErrNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
			return apperr.Internal("revoke sessions", err)
		}
		return nil
	})
}

func (r *PasswordResetRepo) CountRecentForUser(ctx context.Context, userID string, since time.Time) (int, error) {
	row := r.pool.pool.QueryRow(ctx,
		`SELECT count(*) FROM password_reset_tokens WHERE user_id = $1 AND created_at > $2`,
		userID, since)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, apperr.Internal("count recent password reset tokens", err)
	}
	return n, nil
}
