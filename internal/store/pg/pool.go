// Package pg implements the domain repositories against PostgreSQL via
// pgx/v5, following the connection-pool and error-wrapping conventions the
// rest of this codebase uses for its relational store.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/hellojohn/internal/apperr"
	"github.com/dropDatabas3/hellojohn/internal/observability/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Pool wraps the shared *pgxpool.Pool every repository is built on top of.
type Pool struct {
	pool *pgxpool.Pool
}

// PoolConfig mirrors the database section of the service configuration.
type PoolConfig struct {
	DSN               string
	MaxOpenConns      int32
	AcquireTimeout    time.Duration
	ConnectionTimeout time.Duration
}

// NewPool parses the DSN, applies tuning, and pings once (non-fatally) so
// the process can start even if the database is briefly unreachable.
func NewPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		pcfg.MaxConns = cfg.MaxOpenConns
	}
	if cfg.AcquireTimeout > 0 {
		pcfg.HealthCheckPeriod = cfg.AcquireTimeout
	}

	connCtx := ctx
	var cancel context.CancelFunc
	if cfg.ConnectionTimeout > 0 {
		connCtx, cancel = context.WithTimeout(ctx, cfg.ConnectionTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(connCtx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: new pool: %w", err)
	}

	if err := pool.Ping(connCtx); err != nil {
		logger.Named("store").Warn("pg_pool_startup_ping_failed", zap.Error(err))
	} else {
		logger.Named("store").Info("pg_pool_ready", zap.Int32("max_conns", pcfg.MaxConns))
	}

	return &Pool{pool: pool}, nil
}

func (p *Pool) Close() { p.pool.Close() }

func (p *Pool) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

// Raw exposes the underlying pgxpool.Pool for migration tooling.
func (p *Pool) Raw() *pgxpool.Pool { return p.pool }

// withTx runs fn inside a transaction, committing on success and rolling
// back otherwise. Used by the operations that touch more than one row and
// need every write to land together: rate-limit reset across both axes,
// two-factor state changes, user deletion (users row plus its orphaned
// login_rate_limits row), and password-reset confirm (burn the token,
// update the password hash, and revoke every session in one go).
func (p *Pool) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return apperr.Internal("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Internal("commit tx", err)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), the driver-level signal for a conflicting insert.
func isUniqueViolation(err error) bool {
	return err != nil && pgErrCode(err) == "23505"
}
