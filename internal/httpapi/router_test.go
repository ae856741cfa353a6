package httpapi

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellojohn/internal/apperr"
	auditpkg "github.com/dropDatabas3/hellojohn/internal/audit"
	"github.com/dropDatabas3/hellojohn/internal/auth"
	"github.com/dropDatabas3/hellojohn/internal/domain"
	"github.com/dropDatabas3/hellojohn/internal/email"
	"github.com/dropDatabas3/hellojohn/internal/passwordreset"
	"github.com/dropDatabas3/hellojohn/internal/ratelimit"
	"github.com/dropDatabas3/hellojohn/internal/security/cipher"
	"github.com/dropDatabas3/hellojohn/internal/security/password"
	"github.com/dropDatabas3/hellojohn/internal/session"
	"github.com/dropDatabas3/hellojohn/internal/twofactor"
)

type testUsers struct {
	byID    map[string]*domain.User
	byEmail map[string]*domain.User
}

func newTestUsers() *testUsers {
	return &testUsers{byID: map[string]*domain.User{}, byEmail: map[string]*domain.User{}}
}

func (u *testUsers) seed(emailAddr, hash string) *domain.User {
	usr := &domain.User{ID: uuid.NewString(), Email: emailAddr, PasswordHash: hash, CreatedAt: time.Now().UTC()}
	u.byID[usr.ID] = usr
	u.byEmail[emailAddr] = usr
	return usr
}

func (u *testUsers) GetByEmail(ctx context.Context, emailAddr string) (*domain.User, error) {
	usr, ok := u.byEmail[emailAddr]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return usr, nil
}
func (u *testUsers) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	usr, ok := u.byID[userID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return usr, nil
}
func (u *testUsers) Create(ctx context.Context, emailAddr, passwordHash string) (*domain.User, error) {
	if _, exists := u.byEmail[emailAddr]; exists {
		return nil, apperr.ErrConflict
	}
	return u.seed(emailAddr, passwordHash), nil
}
func (u *testUsers) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	u.byID[userID].PasswordHash = newHash
	return nil
}
func (u *testUsers) Delete(ctx context.Context, userID string) error {
	usr := u.byID[userID]
	delete(u.byID, userID)
	delete(u.byEmail, usr.Email)
	return nil
}

type testRateLimitRepo struct{ rows map[string]*domain.RateLimitRecord }

func newTestRateLimitRepo() *testRateLimitRepo {
	return &testRateLimitRepo{rows: map[string]*domain.RateLimitRecord{}}
}
func rateLimitKey(axis domain.IdentifierAxis, value string) string { return string(axis) + ":" + value }
func (f *testRateLimitRepo) Get(ctx context.Context, axis domain.IdentifierAxis, value string) (*domain.RateLimitRecord, error) {
	return f.rows[rateLimitKey(axis, value)], nil
}
func (f *testRateLimitRepo) RecordFailure(ctx context.Context, axis domain.IdentifierAxis, value string, next *domain.RateLimitRecord) (*domain.RateLimitRecord, error) {
	f.rows[rateLimitKey(axis, value)] = next
	return next, nil
}
func (f *testRateLimitRepo) Reset(ctx context.Context, accountID *string, networkAddress string) error {
	if accountID != nil {
		delete(f.rows, rateLimitKey(domain.AxisAccount, *accountID))
	}
	delete(f.rows, rateLimitKey(domain.AxisNetworkAddress, networkAddress))
	return nil
}
func (f *testRateLimitRepo) SetUnlockToken(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	rec := f.rows[rateLimitKey(domain.AxisAccount, accountID)]
	rec.UnlockTokenHash = &tokenHash
	rec.UnlockTokenExpiresAt = &expiresAt
	return nil
}
func (f *testRateLimitRepo) ConsumeUnlockToken(ctx context.Context, accountID, tokenHash string) (bool, error) {
	rec, ok := f.rows[rateLimitKey(domain.AxisAccount, accountID)]
	if !ok || rec.UnlockTokenHash == nil || *rec.UnlockTokenHash != tokenHash {
		return false, nil
	}
	delete(f.rows, rateLimitKey(domain.AxisAccount, accountID))
	return true, nil
}

type testTwoFactorRepo struct{ cfg map[string]*domain.TwoFactorConfig }

func newTestTwoFactorRepo() *testTwoFactorRepo { return &testTwoFactorRepo{cfg: map[string]*domain.TwoFactorConfig{}} }
func (f *testTwoFactorRepo) UpsertTOTP(ctx context.Context, userID, encryptedSecret, nonce string) error {
	f.cfg[userID] = &domain.TwoFactorConfig{UserID: userID, EncryptedSecret: encryptedSecret, EncryptionNonce: nonce}
	return nil
}
func (f *testTwoFactorRepo) ConfirmTOTP(ctx context.Context, userID string) error {
	f.cfg[userID].IsEnabled = true
	return nil
}
func (f *testTwoFactorRepo) GetTOTP(ctx context.Context, userID string) (*domain.TwoFactorConfig, error) {
	return f.cfg[userID], nil
}
func (f *testTwoFactorRepo) DeleteAll(ctx context.Context, userID string) error {
	delete(f.cfg, userID)
	return nil
}
func (f *testTwoFactorRepo) SetBackupCodes(ctx context.Context, userID string, hashes []string) error {
	return nil
}
func (f *testTwoFactorRepo) GetUnusedBackupCodes(ctx context.Context, userID string) ([]domain.BackupCode, error) {
	return nil, nil
}
func (f *testTwoFactorRepo) MarkBackupCodeUsed(ctx context.Context, id string) (bool, error) {
	return false, nil
}
func (f *testTwoFactorRepo) CountUnusedBackupCodes(ctx context.Context, userID string) (int, error) {
	return 0, nil
}
func (f *testTwoFactorRepo) UpdateLastUsedCounter(ctx context.Context, userID string, counter int64) error {
	return nil
}
func (f *testTwoFactorRepo) GetAttempt(ctx context.Context, userID string) (*domain.TwoFactorAttempt, error) {
	return nil, nil
}
func (f *testTwoFactorRepo) RecordFailedAttempt(ctx context.Context, userID string, lockedUntil *time.Time) error {
	return nil
}
func (f *testTwoFactorRepo) ResetAttempt(ctx context.Context, userID string) error { return nil }
func (f *testTwoFactorRepo) CreateEmergencyToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	return nil
}
func (f *testTwoFactorRepo) ConsumeEmergencyToken(ctx context.Context, tokenHash string) (string, bool, error) {
	return "", false, nil
}

type testSessionRepo struct{ rows map[string]*domain.Session }

func (f *testSessionRepo) Create(ctx context.Context, userID string, expiresAt time.Time) (*domain.Session, error) {
	s := &domain.Session{ID: uuid.NewString(), UserID: userID, CreatedAt: time.Now().UTC(), ExpiresAt: expiresAt}
	f.rows[s.ID] = s
	return s, nil
}
func (f *testSessionRepo) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, ok := f.rows[sessionID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return s, nil
}
func (f *testSessionRepo) Delete(ctx context.Context, sessionID string) error {
	delete(f.rows, sessionID)
	return nil
}
func (f *testSessionRepo) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	n := 0
	for id, s := range f.rows {
		if s.UserID == userID {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

type testPasswordResetRepo struct{ rows map[string]*domain.PasswordResetToken }

func newTestPasswordResetRepo() *testPasswordResetRepo {
	return &testPasswordResetRepo{rows: map[string]*domain.PasswordResetToken{}}
}
func (f *testPasswordResetRepo) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time, ip, userAgent *string) error {
	id := tokenHash
	f.rows[tokenHash] = &domain.PasswordResetToken{
		ID: id, UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt,
		IPAddress: ip, UserAgent: userAgent, CreatedAt: time.Now().UTC(),
	}
	return nil
}
func (f *testPasswordResetRepo) GetByHash(ctx context.Context, tokenHash string) (*domain.PasswordResetToken, error) {
	rec, ok := f.rows[tokenHash]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return rec, nil
}
func (f *testPasswordResetRepo) MarkUsed(ctx context.Context, id string) error {
	for _, r := range f.rows {
		if r.ID == id {
			now := time.Now().UTC()
			r.UsedAt = &now
			return nil
		}
	}
	return apperr.ErrNotFound
}
func (f *testPasswordResetRepo) ApplyReset(ctx context.Context, tokenID, userID, newPasswordHash string) error {
	for _, r := range f.rows {
		if r.ID == tokenID {
			if r.UsedAt != nil {
				return apperr.ErrConflict
			}
			now := time.Now().UTC()
			r.UsedAt = &now
			return nil
		}
	}
	return apperr.ErrNotFound
}
func (f *testPasswordResetRepo) CountRecentForUser(ctx context.Context, userID string, since time.Time) (int, error) {
	n := 0
	for _, r := range f.rows {
		if r.UserID == userID && r.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

type testAuditRepo struct{}

func (testAuditRepo) Insert(ctx context.Context, event domain.AuditEvent) error { return nil }

type testSender struct{}

func (testSender) Send(to, subject, htmlBody, textBody string) error { return nil }

type testDeps struct {
	handler http.Handler
	users   *testUsers
}

func buildTestRouter(t *testing.T) *testDeps {
	t.Helper()
	users := newTestUsers()
	rl := ratelimit.New(newTestRateLimitRepo(), ratelimit.Config{
		FreeAttempts: 3, DelaySchedule: []time.Duration{time.Second}, LockoutThreshold: 100,
		LockoutDuration: time.Hour, EnableEmailUnlock: false, UnlockTokenTTL: time.Hour,
	})

	var key [cipher.KeySize]byte
	_, err := rand.Read(key[:])
	require.NoError(t, err)
	c, err := cipher.New(key)
	require.NoError(t, err)

	tf := twofactor.New(newTestTwoFactorRepo(), c, twofactor.Config{
		Issuer: "TestApp", AttemptThreshold: 5, LockoutDuration: 15 * time.Minute, EmergencyTokenTTL: time.Hour,
	})
	sessMgr := session.NewManager(&testSessionRepo{rows: map[string]*domain.Session{}}, c, time.Hour)
	auditWriter := auditpkg.NewWriter(testAuditRepo{}, nil)

	tpls, err := email.NewTemplates()
	require.NoError(t, err)
	dispatcher := email.NewDispatcher(testSender{}, false, tpls)

	links := auth.LinkBuilder{
		PasswordReset:    func(token string) string { return "https://app/reset?token=" + token },
		AccountUnlock:    func(token, userID string) string { return "https://app/unlock?token=" + token + "&user=" + userID },
		EmergencyDisable: func(token string) string { return "https://app/emergency?token=" + token },
	}

	orchestrator, err := auth.New(auth.Deps{
		Users: users, RateLimit: rl, TwoFactor: tf, Sessions: sessMgr, Audit: auditWriter, Email: dispatcher,
		Hasher: password.Default, Links: links, EnableEmailUnlock: false,
		ResetTTLLabel: "15m", UnlockTTLLabel: "1h", EmergencyTTLLabel: "1h",
	})
	require.NoError(t, err)

	prMgr := passwordreset.New(newTestPasswordResetRepo(), users, passwordreset.Config{
		TTL: 15 * time.Minute, MaxRequestsPerHour: 3, HasherParams: password.Default,
	})

	mux := NewRouter(Deps{
		Auth:          orchestrator,
		PasswordReset: orchestrator.PasswordReset(prMgr),
		Sessions:      sessMgr,
		Audit:         auditWriter,
		CookieName:    "session",
		CookieDomain:  "",
		CookieSecure:  false,
		CookieSame:    "lax",
		SessionTTL:    time.Hour,
	})

	return &testDeps{handler: mux, users: users}
}

func TestSignupThenLoginSucceeds(t *testing.T) {
	d := buildTestRouter(t)

	signupBody, _ := json.Marshal(map[string]string{"email": "user@example.com", "password": "Corr3ct!Pass"})
	req := httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader(signupBody))
	rec := httptest.NewRecorder()
	d.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	loginBody, _ := json.Marshal(map[string]string{"email": "user@example.com", "password": "Corr3ct!Pass"})
	req = httptest.NewRequest(http.MethodPost, "/users/login", bytes.NewReader(loginBody))
	rec = httptest.NewRecorder()
	d.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Result().Cookies())
}

func TestLoginThenMeRoundTrip(t *testing.T) {
	d := buildTestRouter(t)
	signupBody, _ := json.Marshal(map[string]string{"email": "user@example.com", "password": "Corr3ct!Pass"})
	req := httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader(signupBody))
	rec := httptest.NewRecorder()
	d.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	loginBody, _ := json.Marshal(map[string]string{"email": "user@example.com", "password": "Corr3ct!Pass"})
	req = httptest.NewRequest(http.MethodPost, "/users/login", bytes.NewReader(loginBody))
	rec = httptest.NewRecorder()
	d.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	req = httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	d.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "user@example.com", body["email"])
}

func TestMeWithoutCookieIsUnauthorized(t *testing.T) {
	d := buildTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	rec := httptest.NewRecorder()
	d.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutClearsSession(t *testing.T) {
	d := buildTestRouter(t)
	signupBody, _ := json.Marshal(map[string]string{"email": "user@example.com", "password": "Corr3ct!Pass"})
	rec := httptest.NewRecorder()
	d.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader(signupBody)))
	require.Equal(t, http.StatusCreated, rec.Code)

	loginBody, _ := json.Marshal(map[string]string{"email": "user@example.com", "password": "Corr3ct!Pass"})
	rec = httptest.NewRecorder()
	d.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users/login", bytes.NewReader(loginBody)))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodPost, "/users/logout", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	d.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	d.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeleteOwnAccountSucceeds(t *testing.T) {
	d := buildTestRouter(t)
	signupBody, _ := json.Marshal(map[string]string{"email": "user@example.com", "password": "Corr3ct!Pass"})
	rec := httptest.NewRecorder()
	d.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader(signupBody)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var signupResp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&signupResp))
	userID := signupResp["id"].(string)

	loginBody, _ := json.Marshal(map[string]string{"email": "user@example.com", "password": "Corr3ct!Pass"})
	rec = httptest.NewRecorder()
	d.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users/login", bytes.NewReader(loginBody)))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodDelete, "/users/"+userID, nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	d.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	d.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeleteUserForbiddenWhenWrongUser(t *testing.T) {
	d := buildTestRouter(t)
	signupBody, _ := json.Marshal(map[string]string{"email": "victim@example.com", "password": "Corr3ct!Pass"})
	rec := httptest.NewRecorder()
	d.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader(signupBody)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var victim map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&victim))
	victimID := victim["id"].(string)

	attackerBody, _ := json.Marshal(map[string]string{"email": "attacker@example.com", "password": "Corr3ct!Pass"})
	rec = httptest.NewRecorder()
	d.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader(attackerBody)))
	require.Equal(t, http.StatusCreated, rec.Code)

	loginBody, _ := json.Marshal(map[string]string{"email": "attacker@example.com", "password": "Corr3ct!Pass"})
	rec = httptest.NewRecorder()
	d.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users/login", bytes.NewReader(loginBody)))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodDelete, "/users/"+victimID, nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	d.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	_, err := d.users.GetByID(context.Background(), victimID)
	require.NoError(t, err)
}
