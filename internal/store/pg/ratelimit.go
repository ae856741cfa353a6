package pg

import (
	"context"
	"time"

	"github.com/dropDatabas3/hellojohn/internal/apperr"
	"github.com/dropDatabas3/hellojohn/internal/domain"
	"github.com/jackc/pgx/v5"
)

type RateLimitRepo struct{ pool *Pool }

func NewRateLimitRepo(pool *Pool) *RateLimitRepo { return &RateLimitRepo{pool: pool} }

func (r *RateLimitRepo) Get(ctx context.Context, axis domain.IdentifierAxis, value string) (*domain.RateLimitRecord, error) {
	row := r.pool.pool.QueryRow(ctx,
		`SELECT identifier_type, identifier_value, failed_attempts, last_attempt_at,
		        next_attempt_allowed_at, locked_until, unlock_token_hash, unlock_token_expires_at,
		        created_at, updated_at
		 FROM login_rate_limits WHERE identifier_type = $1 AND identifier_value = $2`,
		string(axis), value)

	rec, err := scanRateLimitRecord(row)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, apperr.Internal("get rate limit record", err)
	}
	return rec, nil
}

// RecordFailure upserts the counter for one axis/value pair via
// ON CONFLICT ... DO UPDATE, avoiding a read-then-write race between
// concurrent failed attempts against the same account or address.
func (r *RateLimitRepo) RecordFailure(ctx context.Context, axis domain.IdentifierAxis, value string, next *domain.RateLimitRecord) (*domain.RateLimitRecord, error) {
	row := r.pool.pool.QueryRow(ctx,
		`INSERT INTO login_rate_limits
		   (identifier_type, identifier_value, failed_attempts, last_attempt_at,
		    next_attempt_allowed_at, locked_until, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (identifier_type, identifier_value) DO UPDATE SET
		   failed_attempts = EXCLUDED.failed_attempts,
		   last_attempt_at = EXCLUDED.last_attempt_at,
		   next_attempt_allowed_at = EXCLUDED.next_attempt_allowed_at,
		   locked_until = EXCLUDED.locked_until,
		   updated_at = now()
		 RETURNING identifier_type, identifier_value, failed_attempts, last_attempt_at,
		           next_attempt_allowed_at, locked_until, unlock_token_hash, unlock_token_expires_at,
		           created_at, updated_at`,
		string(axis), value, next.FailedAttempts, next.LastAttemptAt,
		next.NextAttemptAllowedAt, next.LockedUntil)

	rec, err := scanRateLimitRecord(row)
	if err != nil {
		return nil, apperr.Internal("record login failure", err)
	}
	return rec, nil
}

// Reset deletes the account-axis and network-address-axis rows in a single
// transaction. accountID may be nil when only the network address is known.
func (r *RateLimitRepo) Reset(ctx context.Context, accountID *string, networkAddress string) error {
	return r.pool.withTx(ctx, func(tx pgx.Tx) error {
		if accountID != nil {
			if _, err := tx.Exec(ctx,
				`DELETE FROM login_rate_limits WHERE identifier_type = $1 AND identifier_value = $2`,
				string(domain.AxisAccount), *accountID); err != nil {
				return apperr.Internal("reset account rate limit", err)
			}
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM login_rate_limits WHERE identifier_type = $1 AND identifier_value = $2`,
			string(domain.AxisNetworkAddress), networkAddress); err != nil {
			return apperr.Internal("reset network rate limit", err)
		}
		return nil
	})
}

func (r *RateLimitRepo) SetUnlockToken(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	tag, err := r.pool.pool.Exec(ctx,
		`UPDATE login_rate_limits SET unlock_token_hash = $1, unlock_token_expires_at = $2, updated_at = now()
		 WHERE identifier_type = $3 AND identifier_value = $4`,
		tokenHash, expiresAt, string(domain.AxisAccount), accountID)
	if err != nil {
		return apperr.Internal("set unlock token", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// ConsumeUnlockToken deletes the account-axis row only if the hashed token
// matches and has not expired. Never touches the network-address axis: an
// address-scoped lock cannot be lifted by an emailed token.
func (r *RateLimitRepo) ConsumeUnlockToken(ctx context.Context, accountID, tokenHash string) (bool, error) {
	tag, err := r.pool.pool.Exec(ctx,
		`DELETE FROM login_rate_limits
		 WHERE identifier_type = $1 AND identifier_value = $2
		   AND unlock_token_hash = $3 AND unlock_token_expires_at > now()`,
		string(domain.AxisAccount), accountID, tokenHash)
	if err != nil {
		return false, apperr.Internal("consume unlock token", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanRateLimitRecord(row pgx.Row) (*domain.RateLimitRecord, error) {
	var rec domain.RateLimitRecord
	var axis string
	if err := row.Scan(&axis, &rec.IdentifierValue, &rec.FailedAttempts, &rec.LastAttemptAt,
		&rec.NextAttemptAllowedAt, &rec.LockedUntil, &rec.UnlockTokenHash, &rec.UnlockTokenExpiresAt,
		&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.IdentifierType = domain.IdentifierAxis(axis)
	return &rec, nil
}
