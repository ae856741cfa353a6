package auth

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellojohn/internal/apperr"
	auditpkg "github.com/dropDatabas3/hellojohn/internal/audit"
	"github.com/dropDatabas3/hellojohn/internal/domain"
	"github.com/dropDatabas3/hellojohn/internal/email"
	"github.com/dropDatabas3/hellojohn/internal/ratelimit"
	"github.com/dropDatabas3/hellojohn/internal/security/cipher"
	"github.com/dropDatabas3/hellojohn/internal/security/password"
	"github.com/dropDatabas3/hellojohn/internal/session"
	"github.com/dropDatabas3/hellojohn/internal/twofactor"
)

type fakeUsers struct {
	byID    map[string]*domain.User
	byEmail map[string]*domain.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[string]*domain.User), byEmail: make(map[string]*domain.User)}
}

func (f *fakeUsers) seed(emailAddr, hash string) *domain.User {
	u := &domain.User{ID: uuid.NewString(), Email: emailAddr, PasswordHash: hash, CreatedAt: time.Now().UTC()}
	f.byID[u.ID] = u
	f.byEmail[emailAddr] = u
	return u
}

func (f *fakeUsers) GetByEmail(ctx context.Context, emailAddr string) (*domain.User, error) {
	u, ok := f.byEmail[emailAddr]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	u, ok := f.byID[userID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) Create(ctx context.Context, emailAddr, passwordHash string) (*domain.User, error) {
	if _, exists := f.byEmail[emailAddr]; exists {
		return nil, apperr.ErrConflict
	}
	return f.seed(emailAddr, passwordHash), nil
}

func (f *fakeUsers) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	f.byID[userID].PasswordHash = passwordHash
	return nil
}

func (f *fakeUsers) Delete(ctx context.Context, userID string) error {
	u := f.byID[userID]
	delete(f.byID, userID)
	delete(f.byEmail, u.Email)
	return nil
}

type fakeRateLimitRepo struct {
	rows map[string]*domain.RateLimitRecord
}

func newFakeRateLimitRepo() *fakeRateLimitRepo {
	return &fakeRateLimitRepo{rows: make(map[string]*domain.RateLimitRecord)}
}

func rlKey(axis domain.IdentifierAxis, value string) string { return string(axis) + ":" + value }

func (f *fakeRateLimitRepo) Get(ctx context.Context, axis domain.IdentifierAxis, value string) (*domain.RateLimitRecord, error) {
	return f.rows[rlKey(axis, value)], nil
}

func (f *fakeRateLimitRepo) RecordFailure(ctx context.Context, axis domain.IdentifierAxis, value string, next *domain.RateLimitRecord) (*domain.RateLimitRecord, error) {
	f.rows[rlKey(axis, value)] = next
	return next, nil
}

func (f *fakeRateLimitRepo) Reset(ctx context.Context, accountID *string, networkAddress string) error {
	if accountID != nil {
		delete(f.rows, rlKey(domain.AxisAccount, *accountID))
	}
	delete(f.rows, rlKey(domain.AxisNetworkAddress, networkAddress))
	return nil
}

func (f *fakeRateLimitRepo) SetUnlockToken(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	rec := f.rows[rlKey(domain.AxisAccount, accountID)]
	rec.UnlockTokenHash = &tokenHash
	rec.UnlockTokenExpiresAt = &expiresAt
	return nil
}

func (f *fakeRateLimitRepo) ConsumeUnlockToken(ctx context.Context, accountID, tokenHash string) (bool, error) {
	rec, ok := f.rows[rlKey(domain.AxisAccount, accountID)]
	if !ok || rec.UnlockTokenHash == nil || *rec.UnlockTokenHash != tokenHash {
		return false, nil
	}
	delete(f.rows, rlKey(domain.AxisAccount, accountID))
	return true, nil
}

type fakeTwoFactorRepo struct {
	cfg map[string]*domain.TwoFactorConfig
}

func newFakeTwoFactorRepo() *fakeTwoFactorRepo {
	return &fakeTwoFactorRepo{cfg: make(map[string]*domain.TwoFactorConfig)}
}

func (f *fakeTwoFactorRepo) UpsertTOTP(ctx context.Context, userID, encryptedSecret, nonce string) error {
	f.cfg[userID] = &domain.TwoFactorConfig{UserID: userID, EncryptedSecret: encryptedSecret, EncryptionNonce: nonce}
	return nil
}
func (f *fakeTwoFactorRepo) ConfirmTOTP(ctx context.Context, userID string) error {
	f.cfg[userID].IsEnabled = true
	return nil
}
func (f *fakeTwoFactorRepo) GetTOTP(ctx context.Context, userID string) (*domain.TwoFactorConfig, error) {
	return f.cfg[userID], nil
}
func (f *fakeTwoFactorRepo) DeleteAll(ctx context.Context, userID string) error {
	delete(f.cfg, userID)
	return nil
}
func (f *fakeTwoFactorRepo) SetBackupCodes(ctx context.Context, userID string, hashes []string) error {
	return nil
}
func (f *fakeTwoFactorRepo) GetUnusedBackupCodes(ctx context.Context, userID string) ([]domain.BackupCode, error) {
	return nil, nil
}
func (f *fakeTwoFactorRepo) MarkBackupCodeUsed(ctx context.Context, id string) (bool, error) {
	return false, nil
}
func (f *fakeTwoFactorRepo) CountUnusedBackupCodes(ctx context.Context, userID string) (int, error) {
	return 0, nil
}
func (f *fakeTwoFactorRepo) UpdateLastUsedCounter(ctx context.Context, userID string, counter int64) error {
	return nil
}
func (f *fakeTwoFactorRepo) GetAttempt(ctx context.Context, userID string) (*domain.TwoFactorAttempt, error) {
	return nil, nil
}
func (f *fakeTwoFactorRepo) RecordFailedAttempt(ctx context.Context, userID string, lockedUntil *time.Time) error {
	return nil
}
func (f *fakeTwoFactorRepo) ResetAttempt(ctx context.Context, userID string) error { return nil }
func (f *fakeTwoFactorRepo) CreateEmergencyToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	return nil
}
func (f *fakeTwoFactorRepo) ConsumeEmergencyToken(ctx context.Context, tokenHash string) (string, bool, error) {
	return "", false, nil
}

type fakeSessionRepo struct {
	rows map[string]*domain.Session
}

func (f *fakeSessionRepo) Create(ctx context.Context, userID string, expiresAt time.Time) (*domain.Session, error) {
	s := &domain.Session{ID: uuid.NewString(), UserID: userID, CreatedAt: time.Now().UTC(), ExpiresAt: expiresAt}
	f.rows[s.ID] = s
	return s, nil
}
func (f *fakeSessionRepo) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, ok := f.rows[sessionID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return s, nil
}
func (f *fakeSessionRepo) Delete(ctx context.Context, sessionID string) error {
	delete(f.rows, sessionID)
	return nil
}
func (f *fakeSessionRepo) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	n := 0
	for id, s := range f.rows {
		if s.UserID == userID {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

type fakeAuditRepo struct{}

func (fakeAuditRepo) Insert(ctx context.Context, event domain.AuditEvent) error { return nil }

type fakeSender struct{ calls int }

func (f *fakeSender) Send(to, subject, htmlBody, textBody string) error {
	f.calls++
	return nil
}

func testConfig() ratelimit.Config {
	return ratelimit.Config{
		FreeAttempts:      3,
		DelaySchedule:     []time.Duration{5 * time.Second, 30 * time.Second, 60 * time.Second},
		LockoutThreshold:  7,
		LockoutDuration:   time.Hour,
		EnableEmailUnlock: true,
		UnlockTokenTTL:    time.Hour,
	}
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeUsers, *fakeSender) {
	t.Helper()
	users := newFakeUsers()
	rl := ratelimit.New(newFakeRateLimitRepo(), testConfig())

	var key [cipher.KeySize]byte
	_, err := rand.Read(key[:])
	require.NoError(t, err)
	c, err := cipher.New(key)
	require.NoError(t, err)
	tf := twofactor.New(newFakeTwoFactorRepo(), c, twofactor.Config{
		Issuer: "TestApp", AttemptThreshold: 5, LockoutDuration: 15 * time.Minute, EmergencyTokenTTL: time.Hour,
	})

	sessMgr := session.NewManager(&fakeSessionRepo{rows: make(map[string]*domain.Session)}, c, time.Hour)
	audit := auditpkg.NewWriter(fakeAuditRepo{}, nil)

	sender := &fakeSender{}
	tpls, err := email.NewTemplates()
	require.NoError(t, err)
	dispatcher := email.NewDispatcher(sender, true, tpls)

	links := LinkBuilder{
		PasswordReset:    func(token string) string { return "https://app/reset?token=" + token },
		AccountUnlock:    func(token, userID string) string { return "https://app/unlock?token=" + token + "&user=" + userID },
		EmergencyDisable: func(token string) string { return "https://app/emergency?token=" + token },
	}

	o, err := New(Deps{
		Users: users, RateLimit: rl, TwoFactor: tf, Sessions: sessMgr, Audit: audit, Email: dispatcher,
		Hasher: password.Default, Links: links, EnableEmailUnlock: true,
		ResetTTLLabel: "15m", UnlockTTLLabel: "1h", EmergencyTTLLabel: "1h",
	})
	require.NoError(t, err)
	return o, users, sender
}

func TestLoginSucceedsWithCorrectPassword(t *testing.T) {
	o, users, _ := newTestOrchestrator(t)
	hash, err := password.Hash(password.Default, "Corr3ct!Pass")
	require.NoError(t, err)
	users.seed("user@example.com", hash)

	result, err := o.Login(context.Background(), LoginInput{Email: "user@example.com", Password: "Corr3ct!Pass", NetworkAddress: "203.0.113.9"})
	require.NoError(t, err)
	require.NotEmpty(t, result.CookieValue)
}

func TestLoginEnumerationParity(t *testing.T) {
	o, users, _ := newTestOrchestrator(t)
	hash, err := password.Hash(password.Default, "Corr3ct!Pass")
	require.NoError(t, err)
	users.seed("user@example.com", hash)
	ctx := context.Background()

	_, err1 := o.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "x", NetworkAddress: "1.1.1.1"})
	_, err2 := o.Login(ctx, LoginInput{Email: "user@example.com", Password: "x", NetworkAddress: "1.1.1.2"})

	e1, ok1 := apperr.As(err1)
	e2, ok2 := apperr.As(err2)
	require.True(t, ok1)
	require.True(t, ok2)
	require.Equal(t, apperr.KindInvalidCredentials, e1.Kind)
	require.Equal(t, apperr.KindInvalidCredentials, e2.Kind)
}

func TestLoginProgressiveBackoff(t *testing.T) {
	o, users, _ := newTestOrchestrator(t)
	hash, err := password.Hash(password.Default, "Corr3ct!Pass")
	require.NoError(t, err)
	users.seed("user@example.com", hash)
	ctx := context.Background()
	ip := "203.0.113.9"

	for i := 0; i < 4; i++ {
		_, err := o.Login(ctx, LoginInput{Email: "user@example.com", Password: "wrong", NetworkAddress: ip})
		e, ok := apperr.As(err)
		require.True(t, ok)
		require.Equal(t, apperr.KindInvalidCredentials, e.Kind)
	}

	_, err = o.Login(ctx, LoginInput{Email: "user@example.com", Password: "wrong", NetworkAddress: ip})
	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.KindTooManyAttempts, e.Kind)
}

func TestLoginRequiresTwoFactorWhenEnabled(t *testing.T) {
	o, users, _ := newTestOrchestrator(t)
	hash, err := password.Hash(password.Default, "Corr3ct!Pass")
	require.NoError(t, err)
	user := users.seed("user@example.com", hash)
	ctx := context.Background()

	_, err = o.TwoFactorSetup(ctx, user.ID, user.Email)
	require.NoError(t, err)
	require.NoError(t, o.twofactor.Enable(ctx, user.ID))

	_, err = o.Login(ctx, LoginInput{Email: "user@example.com", Password: "Corr3ct!Pass", NetworkAddress: "1.2.3.4"})
	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.KindTwoFactorRequired, e.Kind)
}

func TestLoginLockoutDispatchesUnlockEmail(t *testing.T) {
	o, users, sender := newTestOrchestrator(t)
	hash, err := password.Hash(password.Default, "Corr3ct!Pass")
	require.NoError(t, err)
	users.seed("user@example.com", hash)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, _ = o.Login(ctx, LoginInput{Email: "user@example.com", Password: "wrong", NetworkAddress: "9.9.9." + string(rune('0'+i))})
	}
	require.Equal(t, 1, sender.calls)
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	o, users, _ := newTestOrchestrator(t)
	users.seed("user@example.com", "existing-hash")

	_, err := o.Signup(context.Background(), "user@example.com", "Corr3ct!Pass")
	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.KindConflict, e.Kind)
}
