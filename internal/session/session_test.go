package session

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/hellojohn/internal/apperr"
	"github.com/dropDatabas3/hellojohn/internal/domain"
	"github.com/dropDatabas3/hellojohn/internal/security/cipher"
)

type fakeRepo struct {
	rows map[string]*domain.Session
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: make(map[string]*domain.Session)}
}

func (f *fakeRepo) Create(ctx context.Context, userID string, expiresAt time.Time) (*domain.Session, error) {
	s := &domain.Session{ID: uuid.NewString(), UserID: userID, CreatedAt: time.Now().UTC(), ExpiresAt: expiresAt}
	f.rows[s.ID] = s
	return s, nil
}

func (f *fakeRepo) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, ok := f.rows[sessionID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if s.Expired(time.Now().UTC()) {
		delete(f.rows, sessionID)
		return nil, apperr.ErrNotFound
	}
	return s, nil
}

func (f *fakeRepo) Delete(ctx context.Context, sessionID string) error {
	delete(f.rows, sessionID)
	return nil
}

func (f *fakeRepo) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	n := 0
	for id, s := range f.rows {
		if s.UserID == userID {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func newTestManager(t *testing.T) (*Manager, *fakeRepo) {
	t.Helper()
	var key [cipher.KeySize]byte
	_, err := rand.Read(key[:])
	require.NoError(t, err)
	c, err := cipher.New(key)
	require.NoError(t, err)
	repo := newFakeRepo()
	return NewManager(repo, c, time.Hour), repo
}

func TestMintThenResolveRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)

	sess, cookieValue, err := m.Mint(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, cookieValue)

	resolved, err := m.Resolve(context.Background(), cookieValue)
	require.NoError(t, err)
	require.Equal(t, sess.ID, resolved.ID)
	require.Equal(t, "user-1", resolved.UserID)
}

func TestResolveRejectsTamperedCookie(t *testing.T) {
	m, _ := newTestManager(t)

	_, cookieValue, err := m.Mint(context.Background(), "user-1")
	require.NoError(t, err)

	tampered := cookieValue[:len(cookieValue)-2] + "ff"
	_, err = m.Resolve(context.Background(), tampered)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestResolveRejectsMalformedEnvelope(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Resolve(context.Background(), "0000:0000")
	require.Error(t, err)
}

func TestRevokeDeletesSession(t *testing.T) {
	m, repo := newTestManager(t)

	sess, cookieValue, err := m.Mint(context.Background(), "user-1")
	require.NoError(t, err)
	require.NoError(t, m.Revoke(context.Background(), sess.ID))

	_, err = repo.Get(context.Background(), sess.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = m.Resolve(context.Background(), cookieValue)
	require.Error(t, err)
}

func TestRevokeAllForUserRemovesEveryMatchingSession(t *testing.T) {
	m, _ := newTestManager(t)

	_, _, err := m.Mint(context.Background(), "user-1")
	require.NoError(t, err)
	_, _, err = m.Mint(context.Background(), "user-1")
	require.NoError(t, err)
	_, _, err = m.Mint(context.Background(), "user-2")
	require.NoError(t, err)

	n, err := m.RevokeAllForUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
