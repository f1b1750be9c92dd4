package session_test

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/metrics"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/session"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/store"
	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

var (
	errLoginRejected = errors.New("login rejected")
	errRefreshDown   = errors.New("refresh unavailable")
	errDiskFull      = errors.New("disk full")
)

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeAuth is a scripted Authenticator that counts its calls.
type fakeAuth struct {
	mu sync.Mutex

	basicErr   error
	loginErr   error
	refreshErr error

	grant        session.TokenGrant
	refreshGrant session.TokenGrant

	basicCalls   int
	loginCalls   int
	refreshCalls int

	lastCreds   session.Credentials
	lastRefresh [2]string
}

var _ session.Authenticator = (*fakeAuth)(nil)

func (f *fakeAuth) BasicToken(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.basicCalls++
	if f.basicErr != nil {
		return "", f.basicErr
	}
	return "basic", nil
}

func (f *fakeAuth) Login(_ context.Context, _ string, creds session.Credentials) (*session.TokenGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	f.lastCreds = creds
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	g := f.grant
	return &g, nil
}

func (f *fakeAuth) Refresh(_ context.Context, accessToken, refreshToken string) (*session.TokenGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	f.lastRefresh = [2]string{accessToken, refreshToken}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	g := f.refreshGrant
	return &g, nil
}

func (f *fakeAuth) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.basicCalls + f.loginCalls + f.refreshCalls
}

// failingStore accepts updates but never writes.
type failingStore struct {
	values map[string]map[string]string
}

func (s *failingStore) Values(section string) map[string]string { return s.values[section] }

func (s *failingStore) Update(section string, values map[string]string) {
	if s.values == nil {
		s.values = make(map[string]map[string]string)
	}
	s.values[section] = values
}

func (s *failingStore) Write() error { return errDiskFull }

func newAuth() *fakeAuth {
	return &fakeAuth{
		grant:        session.TokenGrant{AccessToken: "A1", RefreshToken: "R1", ExpiresIn: time.Hour},
		refreshGrant: session.TokenGrant{AccessToken: "A2", RefreshToken: "R2", ExpiresIn: time.Hour},
	}
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(filepath.Join(t.TempDir(), "session.yaml"))
	require.NoError(t, st.Init())
	return st
}

func newManager(auth session.Authenticator, st session.Store, clk *clock, policy *session.Policy) *session.Manager {
	return session.NewManager(auth, session.Options{
		Store:   st,
		Policy:  policy,
		Now:     clk.Now,
		Metrics: &metrics.Metrics{},
	})
}

func TestAuthenticate_Scenario(t *testing.T) {
	t.Parallel()
	clk := newClock()
	auth := newAuth()
	m := newManager(auth, newStore(t), clk, nil)

	require.NoError(t, m.Authenticate(context.Background(), "alice", "secret", "skey"))
	assert.True(t, m.IsAuthenticated())
	assert.Equal(t, session.StateValid, m.State())

	h, err := m.AuthHeaders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer A1", h.Get("Authorization"))
	assert.Equal(t, "application/json", h.Get("Accept"))

	s := m.Snapshot()
	assert.Equal(t, "R1", s.RefreshToken)
	assert.Equal(t, clk.Now(), s.IssuedAt)
	assert.Equal(t, clk.Now().Add(time.Hour), s.ExpiresAt)

	assert.Equal(t, session.Credentials{Username: "alice", Password: "secret", SolutionKey: "skey"}, auth.lastCreds)
	assert.Equal(t, 1, auth.basicCalls)
	assert.Equal(t, 1, auth.loginCalls)
}

func TestAuthenticate_MissingArguments(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name                      string
		user, pass, skey          string
		wantNames, forbiddenNames []string
	}{
		{"all missing", "", "", "", []string{"Username", "Password", "Solution key"}, nil},
		{"username and password", "", "", "skey", []string{"Username", "Password"}, []string{"Solution key"}},
		{"password only", "alice", "", "skey", []string{"Password"}, []string{"Username"}},
		{"solution key only", "alice", "secret", "", []string{"Solution key"}, []string{"Username", "Password"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			auth := newAuth()
			m := newManager(auth, nil, newClock(), nil)

			err := m.Authenticate(context.Background(), tt.user, tt.pass, tt.skey)
			require.ErrorIs(t, err, iotcerr.ErrUsage)
			for _, n := range tt.wantNames {
				assert.Contains(t, err.Error(), n)
			}
			for _, n := range tt.forbiddenNames {
				assert.NotContains(t, err.Error(), n)
			}
			assert.Zero(t, auth.calls(), "no network call on usage error")
			assert.False(t, m.IsAuthenticated())
		})
	}
}

func TestAuthenticate_FailureKeepsPreviousSession(t *testing.T) {
	t.Parallel()
	clk := newClock()
	auth := newAuth()
	st := newStore(t)
	m := newManager(auth, st, clk, nil)

	require.NoError(t, m.Authenticate(context.Background(), "alice", "secret", "skey"))
	before := m.Snapshot()
	persisted := st.Values(store.SectionAuth)

	t.Run("login fails", func(t *testing.T) {
		auth.loginErr = iotcerr.WithMessage(iotcerr.ErrAuthentication, "bad credentials")
		clk.Advance(time.Minute)

		err := m.Authenticate(context.Background(), "alice", "wrong", "skey")
		require.ErrorIs(t, err, iotcerr.ErrAuthentication)
		assert.Equal(t, before, m.Snapshot())
		assert.Equal(t, persisted, st.Values(store.SectionAuth))
	})

	t.Run("basic token fails", func(t *testing.T) {
		auth.loginErr = nil
		auth.basicErr = errLoginRejected

		err := m.Authenticate(context.Background(), "alice", "secret", "skey")
		require.ErrorIs(t, err, errLoginRejected)
		assert.Equal(t, before, m.Snapshot())
	})
}

func TestAuthenticate_FailureFromEmpty(t *testing.T) {
	t.Parallel()
	auth := newAuth()
	auth.loginErr = errLoginRejected
	m := newManager(auth, nil, newClock(), nil)

	require.Error(t, m.Authenticate(context.Background(), "alice", "secret", "skey"))
	assert.False(t, m.IsAuthenticated())
}

func TestAuthHeaders_NotAuthenticated(t *testing.T) {
	t.Parallel()
	m := newManager(newAuth(), nil, newClock(), nil)

	_, err := m.AuthHeaders(context.Background())
	require.ErrorIs(t, err, iotcerr.ErrUsage)

	var ie *iotcerr.IotcError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, ie.Suggestion, "iotc configure")
}

func TestAuthHeaders_Expired(t *testing.T) {
	t.Parallel()
	clk := newClock()
	auth := newAuth()
	m := newManager(auth, nil, clk, nil)
	require.NoError(t, m.Authenticate(context.Background(), "alice", "secret", "skey"))

	clk.Advance(time.Hour)
	_, err := m.AuthHeaders(context.Background())
	require.ErrorIs(t, err, iotcerr.ErrAuthentication)
	assert.Equal(t, session.StateExpired, m.State())
	assert.Zero(t, auth.refreshCalls, "expired sessions are not refreshed")
}

func TestAuthHeaders_ExpiredFromStore(t *testing.T) {
	t.Parallel()
	clk := newClock()
	st := newStore(t)
	issued := clk.Now().Add(-4000 * time.Second)
	st.Update(store.SectionAuth, map[string]string{
		session.KeyAccessToken:  "A1",
		session.KeyRefreshToken: "R1",
		session.KeyTokenTime:    strconv.FormatInt(issued.Unix(), 10),
		session.KeyTokenExpiry:  strconv.FormatInt(issued.Add(3600*time.Second).Unix(), 10),
	})

	auth := newAuth()
	m := newManager(auth, st, clk, nil)
	require.NoError(t, m.Load())
	assert.True(t, m.IsAuthenticated())

	_, err := m.AuthHeaders(context.Background())
	require.ErrorIs(t, err, iotcerr.ErrAuthentication)
	assert.Zero(t, auth.calls())
}

func TestAuthHeaders_StaleRefreshesOnce(t *testing.T) {
	t.Parallel()
	clk := newClock()
	auth := newAuth()
	st := newStore(t)
	m := newManager(auth, st, clk, nil)
	require.NoError(t, m.Authenticate(context.Background(), "alice", "secret", "skey"))

	// 90% of a one hour lifetime is 54 minutes.
	clk.Advance(55 * time.Minute)
	assert.Equal(t, session.StateStale, m.State())

	h, err := m.AuthHeaders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer A2", h.Get("Authorization"))
	assert.Equal(t, 1, auth.refreshCalls)
	assert.Equal(t, [2]string{"A1", "R1"}, auth.lastRefresh)

	h, err = m.AuthHeaders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer A2", h.Get("Authorization"))
	assert.Equal(t, 1, auth.refreshCalls, "fresh token is not refreshed again")

	assert.Equal(t, "A2", st.Values(store.SectionAuth)[session.KeyAccessToken])
	assert.Equal(t, "R2", st.Values(store.SectionAuth)[session.KeyRefreshToken])
}

func TestAuthHeaders_ConcurrentStaleCallersShareRefresh(t *testing.T) {
	t.Parallel()
	clk := newClock()
	auth := newAuth()
	m := newManager(auth, nil, clk, nil)
	require.NoError(t, m.Authenticate(context.Background(), "alice", "secret", "skey"))
	clk.Advance(58 * time.Minute)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := m.AuthHeaders(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "Bearer A2", h.Get("Authorization"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, auth.refreshCalls)
}

func TestAuthHeaders_RefreshDisabled(t *testing.T) {
	t.Parallel()
	clk := newClock()
	auth := newAuth()
	policy := session.DefaultPolicy()
	policy.AutoRefresh = false
	m := newManager(auth, nil, clk, &policy)
	require.NoError(t, m.Authenticate(context.Background(), "alice", "secret", "skey"))

	clk.Advance(55 * time.Minute)
	h, err := m.AuthHeaders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer A1", h.Get("Authorization"))
	assert.Zero(t, auth.refreshCalls)
}

func TestAuthHeaders_FailedAutoRefreshExpiresSession(t *testing.T) {
	t.Parallel()
	clk := newClock()
	auth := newAuth()
	m := newManager(auth, nil, clk, nil)
	require.NoError(t, m.Authenticate(context.Background(), "alice", "secret", "skey"))

	auth.refreshErr = errRefreshDown
	clk.Advance(55 * time.Minute)

	_, err := m.AuthHeaders(context.Background())
	require.ErrorIs(t, err, errRefreshDown)

	_, err = m.AuthHeaders(context.Background())
	require.ErrorIs(t, err, iotcerr.ErrAuthentication)
	assert.Equal(t, 1, auth.refreshCalls)
	assert.True(t, m.IsAuthenticated(), "token is kept, only marked expired")
}

func TestRefresh_Explicit(t *testing.T) {
	t.Parallel()

	t.Run("no refresh token", func(t *testing.T) {
		t.Parallel()
		auth := newAuth()
		m := newManager(auth, nil, newClock(), nil)
		require.ErrorIs(t, m.Refresh(context.Background()), iotcerr.ErrUsage)
		assert.Zero(t, auth.calls())
	})

	t.Run("failure leaves session unchanged", func(t *testing.T) {
		t.Parallel()
		auth := newAuth()
		m := newManager(auth, nil, newClock(), nil)
		require.NoError(t, m.Authenticate(context.Background(), "alice", "secret", "skey"))
		before := m.Snapshot()

		auth.refreshErr = errRefreshDown
		require.ErrorIs(t, m.Refresh(context.Background()), errRefreshDown)
		assert.Equal(t, before, m.Snapshot())
		assert.Equal(t, session.StateValid, m.State())
	})

	t.Run("keeps refresh token when none returned", func(t *testing.T) {
		t.Parallel()
		auth := newAuth()
		auth.refreshGrant = session.TokenGrant{AccessToken: "A2"}
		clk := newClock()
		m := newManager(auth, nil, clk, nil)
		require.NoError(t, m.Authenticate(context.Background(), "alice", "secret", "skey"))

		clk.Advance(time.Minute)
		require.NoError(t, m.Refresh(context.Background()))
		s := m.Snapshot()
		assert.Equal(t, "A2", s.AccessToken)
		assert.Equal(t, "R1", s.RefreshToken)
		assert.Equal(t, clk.Now().Add(session.DefaultTokenTTL), s.ExpiresAt)
	})
}

func TestPersistence_RoundTrip(t *testing.T) {
	t.Parallel()
	clk := newClock()
	path := filepath.Join(t.TempDir(), "session.yaml")

	st := store.New(path)
	require.NoError(t, st.Init())
	m := newManager(newAuth(), st, clk, nil)
	require.NoError(t, m.Authenticate(context.Background(), "alice", "secret", "skey"))
	require.NoError(t, m.PersistError())

	reopened := store.New(path)
	require.NoError(t, reopened.Init())
	auth := newAuth()
	restored := newManager(auth, reopened, clk, nil)
	require.NoError(t, restored.Load())

	assert.Equal(t, m.Snapshot(), restored.Snapshot())
	h, err := restored.AuthHeaders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer A1", h.Get("Authorization"))
	assert.Zero(t, auth.calls(), "restored session needs no network")
}

func TestPersistence_FailureIsNotFatal(t *testing.T) {
	t.Parallel()
	mt := &metrics.Metrics{}
	m := session.NewManager(newAuth(), session.Options{
		Store:   &failingStore{},
		Now:     newClock().Now,
		Metrics: mt,
	})

	require.NoError(t, m.Authenticate(context.Background(), "alice", "secret", "skey"))
	require.ErrorIs(t, m.PersistError(), errDiskFull)
	assert.Equal(t, int64(1), mt.Snapshot().PersistFailures)

	h, err := m.AuthHeaders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer A1", h.Get("Authorization"))
}

func TestLogout(t *testing.T) {
	t.Parallel()
	clk := newClock()
	path := filepath.Join(t.TempDir(), "session.yaml")

	st := store.New(path)
	require.NoError(t, st.Init())
	m := newManager(newAuth(), st, clk, nil)
	require.NoError(t, m.Authenticate(context.Background(), "alice", "secret", "skey"))

	require.NoError(t, m.Logout())
	assert.False(t, m.IsAuthenticated())
	_, err := m.AuthHeaders(context.Background())
	require.ErrorIs(t, err, iotcerr.ErrUsage)

	reopened := store.New(path)
	require.NoError(t, reopened.Init())
	restored := newManager(newAuth(), reopened, clk, nil)
	require.NoError(t, restored.Load())
	assert.False(t, restored.IsAuthenticated())
}

func TestLogout_PersistFailure(t *testing.T) {
	t.Parallel()
	m := newManager(newAuth(), &failingStore{}, newClock(), nil)
	require.NoError(t, m.Authenticate(context.Background(), "alice", "secret", "skey"))

	require.ErrorIs(t, m.Logout(), errDiskFull)
	assert.False(t, m.IsAuthenticated())
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("empty store", func(t *testing.T) {
		t.Parallel()
		m := newManager(newAuth(), newStore(t), newClock(), nil)
		require.NoError(t, m.Load())
		assert.False(t, m.IsAuthenticated())
		assert.Equal(t, session.StateUnauthenticated, m.State())
	})

	t.Run("no store", func(t *testing.T) {
		t.Parallel()
		m := newManager(newAuth(), nil, newClock(), nil)
		require.NoError(t, m.Load())
	})

	t.Run("corrupt timestamps", func(t *testing.T) {
		t.Parallel()
		st := newStore(t)
		st.Update(store.SectionAuth, map[string]string{
			session.KeyAccessToken: "A1",
			session.KeyTokenTime:   "yesterday",
		})
		m := newManager(newAuth(), st, newClock(), nil)
		require.ErrorIs(t, m.Load(), iotcerr.ErrConfigInvalid)
		assert.False(t, m.IsAuthenticated())
	})
}

func TestMetricsRecorded(t *testing.T) {
	t.Parallel()
	clk := newClock()
	auth := newAuth()
	mt := &metrics.Metrics{}
	m := session.NewManager(auth, session.Options{Now: clk.Now, Metrics: mt})

	require.NoError(t, m.Authenticate(context.Background(), "alice", "secret", "skey"))
	auth.loginErr = errLoginRejected
	require.Error(t, m.Authenticate(context.Background(), "alice", "secret", "skey"))
	require.NoError(t, m.Refresh(context.Background()))

	snap := mt.Snapshot()
	assert.Equal(t, int64(1), snap.Authentications)
	assert.Equal(t, int64(1), snap.AuthFailures)
	assert.Equal(t, int64(1), snap.Refreshes)
}
