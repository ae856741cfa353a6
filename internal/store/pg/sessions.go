package pg

import (
	"context"
	"time"

	"github.com/dropDatabas3/hellojohn/internal/apperr"
	"github.com/dropDatabas3/hellojohn/internal/domain"
	"github.com/google/uuid"
)

type SessionRepo struct{ pool *Pool }

func NewSessionRepo(pool *Pool) *SessionRepo { return &SessionRepo{pool: pool} }

func (r *SessionRepo) Create(ctx context.Context, userID string, expiresAt time.Time) (*domain.Session, error) {
	id := uuid.NewString()
	row := r.pool.pool.QueryRow(ctx,
		`INSERT INTO sessions (id, user_id, expires_at) VALUES ($1, $2, $3)
		 RETURNING id, user_id, created_at, expires_at`,
		id, userID, expiresAt)

	var s domain.Session
	if err := row.Scan(&s.ID, &s.UserID, &s.CreatedAt, &s.ExpiresAt); err != nil {
		return nil, apperr.Internal("create session", err)
	}
	return &s, nil
}

func (r *SessionRepo) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := r.pool.pool.QueryRow(ctx,
		`SELECT id, user_id, created_at, expires_at FROM sessions WHERE id = $1`, sessionID)

	var s domain.Session
	if err := row.Scan(&s.ID, &s.UserID, &s.CreatedAt, &s.ExpiresAt); err != nil {
		if isNotFound(err) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Internal("get session", err)
	}
	if s.Expired(time.Now().UTC()) {
		_, _ = r.pool.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
		return nil, apperr.ErrNotFound
	}
	return &s, nil
}

func (r *SessionRepo) Delete(ctx context.Context, sessionID string) error {
	if _, err := r.pool.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
		return apperr.Internal("delete session", err)
	}
	return nil
}

func (r *SessionRepo) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	tag, err := r.pool.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, apperr.Internal("delete all sessions for user", err)
	}
	return int(tag.RowsAffected()), nil
}
