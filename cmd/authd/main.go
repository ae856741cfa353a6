// Command authd runs the authentication service: signup, login, session
// management, two-factor enrolment, password reset, and account unlock,
// wired against PostgreSQL.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/hellojohn/internal/audit"
	"github.com/dropDatabas3/hellojohn/internal/auth"
	"github.com/dropDatabas3/hellojohn/internal/config"
	"github.com/dropDatabas3/hellojohn/internal/email"
	emailv1 "github.com/dropDatabas3/hellojohn/internal/email/v1"
	"github.com/dropDatabas3/hellojohn/internal/httpapi"
	"github.com/dropDatabas3/hellojohn/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn/internal/observability/metrics"
	"github.com/dropDatabas3/hellojohn/internal/passwordreset"
	"github.com/dropDatabas3/hellojohn/internal/ratelimit"
	"github.com/dropDatabas3/hellojohn/internal/security/cipher"
	"github.com/dropDatabas3/hellojohn/internal/security/password"
	"github.com/dropDatabas3/hellojohn/internal/session"
	"github.com/dropDatabas3/hellojohn/internal/store/pg"
	"github.com/dropDatabas3/hellojohn/internal/twofactor"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var envFile string

	root := &cobra.Command{
		Use:   "authd",
		Short: "Authentication service: signup, login, sessions, two-factor, password reset",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if _, err := os.Stat(envFile); err == nil {
					if err := godotenv.Load(envFile); err != nil {
						return fmt.Errorf("load env file: %w", err)
					}
				}
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", envOr("CONFIG_PATH", "configs/config.yaml"), "path to YAML config")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to .env file, loaded if present")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newMigrateCmd(&configPath))
	return root
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// newServeCmd builds the HTTP server: config → pool → repositories →
// orchestrator → router → http.Server, torn down on SIGINT/SIGTERM.
func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			logger.Init(logger.Config{
				Env:         debugEnv(cfg.Server.Debug),
				ServiceName: "authd",
			})
			defer func() { _ = logger.Sync() }()
			log := logger.Named("authd")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pool, err := pg.NewPool(ctx, pg.PoolConfig{
				DSN:               cfg.Database.DSN,
				MaxOpenConns:      cfg.Database.MaxOpenConns,
				AcquireTimeout:    cfg.Database.AcquireTimeout.AsDuration(),
				ConnectionTimeout: cfg.Database.ConnectionTimeout.AsDuration(),
			})
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			srv, auditWriter, err := build(cfg, pool)
			if err != nil {
				return err
			}
			defer auditWriter.Close()

			log.Info("listening", zap.String("addr", cfg.Server.Addr))

			errCh := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				log.Info("shutting down")
			case err := <-errCh:
				return fmt.Errorf("serve: %w", err)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

// sampleAuditQueueDepth polls the audit writer's buffered-channel length
// onto the queue-depth gauge. The writer exposes no subscription hook, so
// polling is the simplest way to keep the metric fresh without adding
// locking to the hot Log path.
func sampleAuditQueueDepth(w *audit.Writer) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		metrics.AuditQueueDepth.Set(float64(w.Len()))
	}
}

func debugEnv(debug bool) string {
	if debug {
		return "dev"
	}
	return "prod"
}

// build wires every repository and subsystem behind the router. Split out
// from newServeCmd so the wiring itself never touches flags or cobra.
func build(cfg *config.Config, pool *pg.Pool) (*http.Server, *audit.Writer, error) {
	sessionCipher, err := sessionCipherFor(cfg)
	if err != nil {
		return nil, nil, err
	}
	totpCipher, err := cipher.NewFromHex(cfg.Cipher.KeyHex)
	if err != nil {
		return nil, nil, fmt.Errorf("two-factor cipher: %w", err)
	}

	users := pg.NewUserRepo(pool)
	sessionRepo := pg.NewSessionRepo(pool)
	rateLimitRepo := pg.NewRateLimitRepo(pool)
	twoFactorRepo := pg.NewTwoFactorRepo(pool)
	passwordResetRepo := pg.NewPasswordResetRepo(pool)
	auditRepo := pg.NewAuditRepo(pool)

	sessions := session.NewManager(sessionRepo, sessionCipher, cfg.Session.TTL.AsDuration())
	auditWriter := audit.NewWriter(auditRepo, metrics.AuditDropsTotal.Inc)
	go sampleAuditQueueDepth(auditWriter)

	delaySchedule := make([]time.Duration, len(cfg.RateLimit.DelaySchedule))
	for i, d := range cfg.RateLimit.DelaySchedule {
		delaySchedule[i] = d.AsDuration()
	}
	limiter := ratelimit.New(rateLimitRepo, ratelimit.Config{
		FreeAttempts:      cfg.RateLimit.FreeAttempts,
		DelaySchedule:     delaySchedule,
		LockoutThreshold:  cfg.RateLimit.LockoutThreshold,
		LockoutDuration:   cfg.RateLimit.LockoutDuration.AsDuration(),
		EnableEmailUnlock: cfg.RateLimit.EnableEmailUnlock,
		UnlockTokenTTL:    cfg.RateLimit.UnlockTokenTTL.AsDuration(),
	})

	twoFactor := twofactor.New(twoFactorRepo, totpCipher, twofactor.Config{
		Issuer:            cfg.TOTP.Issuer,
		AttemptThreshold:  cfg.TwoFactor.AttemptThreshold,
		LockoutDuration:   cfg.TwoFactor.LockoutDuration.AsDuration(),
		EmergencyTokenTTL: cfg.TwoFactor.EmergencyTokenTTL.AsDuration(),
	})

	hasher := password.Params{
		Memory:      cfg.CredentialHasher.ArgonMemoryKiB,
		Time:        cfg.CredentialHasher.ArgonTime,
		Parallelism: cfg.CredentialHasher.ArgonParallelism,
		KeyLen:      cfg.CredentialHasher.ArgonKeyLen,
	}

	policy := password.Policy{
		MinLength:     cfg.PasswordPolicy.MinLength,
		RequireUpper:  cfg.PasswordPolicy.RequireUpper,
		RequireLower:  cfg.PasswordPolicy.RequireLower,
		RequireDigit:  cfg.PasswordPolicy.RequireDigit,
		RequireSymbol: cfg.PasswordPolicy.RequireSymbol,
	}
	blacklist, err := password.LoadBlacklist(cfg.PasswordPolicy.BlacklistPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load password blacklist: %w", err)
	}

	templates, err := email.NewTemplates()
	if err != nil {
		return nil, nil, fmt.Errorf("parse email templates: %w", err)
	}
	sender := emailv1.NewSMTPSender(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.FromAddress, cfg.Email.SMTPUser, cfg.Email.SMTPPass)
	dispatcher := email.NewDispatcher(sender, cfg.Email.Enabled, templates)

	base := strings.TrimRight(cfg.Email.ResetURLBase, "/")
	links := auth.LinkBuilder{
		PasswordReset:    func(token string) string { return base + "/reset-password?token=" + token },
		AccountUnlock:    func(token, userID string) string { return base + "/unlock?token=" + token + "&user=" + userID },
		EmergencyDisable: func(token string) string { return base + "/two-factor/emergency-disable?token=" + token },
	}

	orchestrator, err := auth.New(auth.Deps{
		Users:             users,
		RateLimit:         limiter,
		TwoFactor:         twoFactor,
		Sessions:          sessions,
		Audit:             auditWriter,
		Email:             dispatcher,
		Hasher:            hasher,
		Links:             links,
		EnableEmailUnlock: cfg.RateLimit.EnableEmailUnlock,
		ResetTTLLabel:     cfg.PasswordReset.TTL.AsDuration().String(),
		UnlockTTLLabel:    cfg.RateLimit.UnlockTokenTTL.AsDuration().String(),
		EmergencyTTLLabel: cfg.TwoFactor.EmergencyTokenTTL.AsDuration().String(),
		Policy:            policy,
		Blacklist:         blacklist,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build orchestrator: %w", err)
	}

	resetManager := passwordreset.New(passwordResetRepo, users, passwordreset.Config{
		TTL:                cfg.PasswordReset.TTL.AsDuration(),
		MaxRequestsPerHour: cfg.PasswordReset.MaxRequestsPerHour,
		HasherParams:       hasher,
		Policy:             policy,
		Blacklist:          blacklist,
	})

	router := httpapi.NewRouter(httpapi.Deps{
		Auth:          orchestrator,
		PasswordReset: orchestrator.PasswordReset(resetManager),
		Sessions:      sessions,
		Audit:         auditWriter,
		CookieName:    cfg.Session.CookieName,
		CookieDomain:  cfg.Session.Domain,
		CookieSecure:  !cfg.Server.Debug,
		CookieSame:    cfg.Session.SameSite,
		SessionTTL:    cfg.Session.TTL.AsDuration(),
	})

	if cfg.Server.BasePath != "" && cfg.Server.BasePath != "/" {
		mux := http.NewServeMux()
		mux.Handle(strings.TrimRight(cfg.Server.BasePath, "/")+"/", http.StripPrefix(strings.TrimRight(cfg.Server.BasePath, "/"), router))
		return &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		}, auditWriter, nil
	}

	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}, auditWriter, nil
}

// sessionCipherFor tolerates an unset session secret only in debug mode,
// where a process-lifetime random key is fine since restarting the process
// invalidates every outstanding cookie anyway.
func sessionCipherFor(cfg *config.Config) (*cipher.Cipher, error) {
	secretHex := strings.TrimSpace(cfg.Session.SecretHex)
	if secretHex == "" && cfg.Server.Debug {
		var key [cipher.KeySize]byte
		if _, err := readRandom(key[:]); err != nil {
			return nil, fmt.Errorf("generate ephemeral session key: %w", err)
		}
		return cipher.New(key)
	}
	return cipher.NewFromHex(secretHex)
}

// newMigrateCmd applies or reverts the SQL files under --dir, one
// statement-file per step, mirroring the *_up.sql/*_down.sql convention.
func newMigrateCmd(configPath *string) *cobra.Command {
	var dir string
	var steps int

	cmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or revert database migrations",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = strings.ToLower(args[0])
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := pgxpool.New(ctx, cfg.Database.DSN)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			switch action {
			case "up":
				return runMigrationFiles(ctx, pool, dir, "_up.sql", steps, false)
			case "down":
				return runMigrationFiles(ctx, pool, dir, "_down.sql", steps, true)
			default:
				return fmt.Errorf("unknown action %q, use: up | down", action)
			}
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "migrations/postgres", "migrations directory")
	cmd.Flags().IntVar(&steps, "steps", 0, "limit to N files (0 = all)")
	return cmd
}

func runMigrationFiles(ctx context.Context, pool *pgxpool.Pool, dir, suffix string, steps int, reverse bool) error {
	files, err := listSQL(dir, suffix)
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		fmt.Println("no migrations found, nothing to do")
		return nil
	}
	sort.Strings(files)
	if reverse {
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}
	if steps > 0 && steps < len(files) {
		files = files[:steps]
	}

	for _, f := range files {
		start := time.Now()
		b, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		if _, err := pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("exec %s: %w", f, err)
		}
		fmt.Printf("OK %s (%s)\n", filepath.Base(f), time.Since(start).Truncate(time.Millisecond))
	}
	return nil
}

func listSQL(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), suffix) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

func readRandom(b []byte) (int, error) {
	return rand.Read(b)
}
