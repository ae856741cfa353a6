package pg

import (
	"context"
	"strings"

	"github.com/dropDatabas3/hellojohn/internal/apperr"
	"github.com/dropDatabas3/hellojohn/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type UserRepo struct{ pool *Pool }

func NewUserRepo(pool *Pool) *UserRepo { return &UserRepo{pool: pool} }

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.pool.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE lower(email) = lower($1)`,
		strings.TrimSpace(email))

	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if isNotFound(err) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Internal("get user by email", err)
	}
	return &u, nil
}

func (r *UserRepo) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	row := r.pool.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE id = $1`, userID)

	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if isNotFound(err) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Internal("get user by id", err)
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, email, passwordHash string) (*domain.User, error) {
	id := uuid.NewString()
	row := r.pool.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, password_hash) VALUES ($1, $2, $3)
		 RETURNING id, email, password_hash, created_at`,
		id, strings.TrimSpace(email), passwordHash)

	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.ErrConflict
		}
		return nil, apperr.Internal("create user", err)
	}
	return &u, nil
}

func (r *UserRepo) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	tag, err := r.pool.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1 WHERE id = $2`, newHash, userID)
	if err != nil {
		return apperr.Internal("update password hash", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// Delete removes the user and every dependent record. sessions,
// two_factor_configs, two_factor_backup_codes, two_factor_attempts,
// two_factor_emergency_tokens, and password_reset_tokens all carry
// `REFERENCES users(id) ON DELETE CASCADE` and fall out automatically; the
// account-axis login_rate_limits row has no foreign key (its primary key
// is the (identifier_type, identifier_value) pair, shared with
// network-address rows that must never reference a user row), so it is
// deleted explicitly in the same transaction as the user row.
func (r *UserRepo) Delete(ctx context.Context, userID string) error {
	return r.pool.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
		if err != nil {
			return apperr.Internal("delete user", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.ErrNotFound
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM login_rate_limits WHERE identifier_type = $1 AND identifier_value = $2`,
			string(domain.AxisAccount), userID,
		); err != nil {
			return apperr.Internal("delete account rate-limit row", err)
		}
		return nil
	})
}
