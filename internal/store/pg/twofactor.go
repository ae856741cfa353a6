package pg

import (
	"context"
	"time"

	"github.com/dropDatabas3/hellojohn/internal/apperr"
	"github.com/dropDatabas3/hellojohn/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type TwoFactorRepo struct{ pool *Pool }

func NewTwoFactorRepo(pool *Pool) *TwoFactorRepo { return &TwoFactorRepo{pool: pool} }

// UpsertTOTP stores a freshly generated, not-yet-confirmed secret. Re-running
// setup before confirmation replaces the pending secret outright.
func (r *TwoFactorRepo) UpsertTOTP(ctx context.Context, userID, encryptedSecret, nonce string) error {
	_, err := r.pool.pool.Exec(ctx,
		`INSERT INTO two_factor_configs (user_id, encrypted_secret, encryption_nonce, is_enabled)
		 VALUES ($1, $2, $3, false)
		 ON CONFLICT (user_id) DO UPDATE SET
		   encrypted_secret = EXCLUDED.encrypted_secret,
		   encryption_nonce = EXCLUDED.encryption_nonce,
		   is_enabled = false,
		   verified_at = NULL,
		   last_used_counter = NULL,
		   updated_at = now()`,
		userID, encryptedSecret, nonce)
	if err != nil {
		return apperr.Internal("upsert totp config", err)
	}
	return nil
}

func (r *TwoFactorRepo) ConfirmTOTP(ctx context.Context, userID string) error {
	tag, err := r.pool.pool.Exec(ctx,
		`UPDATE two_factor_configs SET is_enabled = true, verified_at = now(), updated_at = now()
		 WHERE user_id = $1`, userID)
	if err != nil {
		return apperr.Internal("confirm totp config", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *TwoFactorRepo) GetTOTP(ctx context.Context, userID string) (*domain.TwoFactorConfig, error) {
	row := r.pool.pool.QueryRow(ctx,
		`SELECT user_id, encrypted_secret, encryption_nonce, is_enabled, verified_at, last_used_counter, created_at, updated_at
		 FROM two_factor_configs WHERE user_id = $1`, userID)

	var c domain.TwoFactorConfig
	if err := row.Scan(&c.UserID, &c.EncryptedSecret, &c.EncryptionNonce, &c.IsEnabled,
		&c.VerifiedAt, &c.LastUsedCounter, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if isNotFound(err) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Internal("get totp config", err)
	}
	return &c, nil
}

// UpdateLastUsedCounter persists the HOTP counter of the code just accepted,
// so Verify's anti-replay check has something to compare the next attempt
// against.
func (r *TwoFactorRepo) UpdateLastUsedCounter(ctx context.Context, userID string, counter int64) error {
	tag, err := r.pool.pool.Exec(ctx,
		`UPDATE two_factor_configs SET last_used_counter = $1, updated_at = now() WHERE user_id = $2`,
		counter, userID)
	if err != nil {
		return apperr.Internal("update last used totp counter", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteAll tears down every piece of 2FA state for a user: the TOTP config,
// backup codes, the independent attempt counter, and any outstanding
// emergency-disable tokens, all as one atomic operation.
func (r *TwoFactorRepo) DeleteAll(ctx context.Context, userID string) error {
	return r.pool.withTx(ctx, func(tx pgx.Tx) error {
		stmts := []string{
			`DELETE FROM two_factor_emergency_tokens WHERE user_id = $1`,
			`DELETE FROM two_factor_backup_codes WHERE user_id = $1`,
			`DELETE FROM two_factor_attempts WHERE user_id = $1`,
			`DELETE FROM two_factor_configs WHERE user_id = $1`,
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt, userID); err != nil {
				return apperr.Internal("delete two factor state", err)
			}
		}
		return nil
	})
}

// SetBackupCodes replaces the full set of backup codes for a user in one
// transaction, using a batch insert for the ten new rows.
func (r *TwoFactorRepo) SetBackupCodes(ctx context.Context, userID string, hashes []string) error {
	return r.pool.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM two_factor_backup_codes WHERE user_id = $1`, userID); err != nil {
			return apperr.Internal("clear backup codes", err)
		}

		batch := &pgx.Batch{}
		for _, hash := range hashes {
			batch.Queue(
				`INSERT INTO two_factor_backup_codes (id, user_id, code_hash) VALUES ($1, $2, $3)`,
				uuid.NewString(), userID, hash)
		}
		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for range hashes {
			if _, err := br.Exec(); err != nil {
				return apperr.Internal("insert backup code", err)
			}
		}
		return nil
	})
}

// GetUnusedBackupCodes returns every unused code row so the caller can run
// a constant-time Argon2id compare against each one — backup codes are
// salted per-code, so there is no hash to equality-match in SQL the way the
// high-entropy reset/unlock tokens can be.
func (r *TwoFactorRepo) GetUnusedBackupCodes(ctx context.Context, userID string) ([]domain.BackupCode, error) {
	rows, err := r.pool.pool.Query(ctx,
		`SELECT id, user_id, code_hash, used_at, created_at
		 FROM two_factor_backup_codes WHERE user_id = $1 AND used_at IS NULL`,
		userID)
	if err != nil {
		return nil, apperr.Internal("get unused backup codes", err)
	}
	defer rows.Close()

	var codes []domain.BackupCode
	for rows.Next() {
		var c domain.BackupCode
		if err := rows.Scan(&c.ID, &c.UserID, &c.CodeHash, &c.UsedAt, &c.CreatedAt); err != nil {
			return nil, apperr.Internal("scan backup code", err)
		}
		codes = append(codes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("iterate backup codes", err)
	}
	return codes, nil
}

// MarkBackupCodeUsed claims a single backup code by id, compare-and-set on
// used_at so two concurrent requests can't both consume the same code.
func (r *TwoFactorRepo) MarkBackupCodeUsed(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.pool.Exec(ctx,
		`UPDATE two_factor_backup_codes SET used_at = now() WHERE id = $1 AND used_at IS NULL`, id)
	if err != nil {
		return false, apperr.Internal("mark backup code used", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *TwoFactorRepo) CountUnusedBackupCodes(ctx context.Context, userID string) (int, error) {
	row := r.pool.pool.QueryRow(ctx,
		`SELECT count(*) FROM two_factor_backup_codes WHERE user_id = $1 AND used_at IS NULL`, userID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, apperr.Internal("count unused backup codes", err)
	}
	return n, nil
}

func (r *TwoFactorRepo) GetAttempt(ctx context.Context, userID string) (*domain.TwoFactorAttempt, error) {
	row := r.pool.pool.QueryRow(ctx,
		`SELECT user_id, failed_attempts, locked_until, last_attempt_at
		 FROM two_factor_attempts WHERE user_id = $1`, userID)

	var a domain.TwoFactorAttempt
	if err := row.Scan(&a.UserID, &a.FailedAttempts, &a.LockedUntil, &a.LastAttemptAt); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, apperr.Internal("get two factor attempt", err)
	}
	return &a, nil
}

func (r *TwoFactorRepo) RecordFailedAttempt(ctx context.Context, userID string, lockedUntil *time.Time) error {
	_, err := r.pool.pool.Exec(ctx,
		`INSERT INTO two_factor_attempts (user_id, failed_attempts, locked_until, last_attempt_at)
		 VALUES ($1, 1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET
		   failed_attempts = two_factor_attempts.failed_attempts + 1,
		   locked_until = $2,
		   last_attempt_at = now()`,
		userID, lockedUntil)
	if err != nil {
		return apperr.Internal("record two factor failure", err)
	}
	return nil
}

func (r *TwoFactorRepo) ResetAttempt(ctx context.Context, userID string) error {
	if _, err := r.pool.pool.Exec(ctx, `DELETE FROM two_factor_attempts WHERE user_id = $1`, userID); err != nil {
		return apperr.Internal("reset two factor attempt", err)
	}
	return nil
}

func (r *TwoFactorRepo) CreateEmergencyToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	_, err := r.pool.pool.Exec(ctx,
		`INSERT INTO two_factor_emergency_tokens (id, user_id, token_hash, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), userID, tokenHash, expiresAt)
	if err != nil {
		return apperr.Internal("create emergency token", err)
	}
	return nil
}

// ConsumeEmergencyToken marks the matching unexpired, unused token as used
// and returns the owning user id. Marking used_at rather than deleting keeps
// an audit trail of which token authorised the disable.
func (r *TwoFactorRepo) ConsumeEmergencyToken(ctx context.Context, tokenHash string) (string, bool, error) {
	row := r.pool.pool.QueryRow(ctx,
		`UPDATE two_factor_emergency_tokens SET used_at = now()
		 WHERE token_hash = $1 AND used_at IS NULL AND expires_at > now()
		 RETURNING user_id`,
		tokenHash)

	var userID string
	if err := row.Scan(&userID); err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, apperr.Internal("consume emergency token", err)
	}
	return userID, true, nil
}
