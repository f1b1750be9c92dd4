package session

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/metrics"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/store"
	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// Credentials are the inputs of a full authentication.
type Credentials struct {
	Username    string
	Password    string
	SolutionKey string
}

// missing returns the display names of every empty field.
func (c Credentials) missing() []string {
	var out []string
	if c.Username == "" {
		out = append(out, "Username")
	}
	if c.Password == "" {
		out = append(out, "Password")
	}
	if c.SolutionKey == "" {
		out = append(out, "Solution key")
	}
	return out
}

// TokenGrant is what the auth service returns from login or refresh.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration // zero when the server did not report it
}

// Authenticator performs the auth service calls.
type Authenticator interface {
	// BasicToken fetches the anonymous bootstrap token.
	BasicToken(ctx context.Context) (string, error)
	// Login exchanges credentials plus the basic token for a grant.
	Login(ctx context.Context, basicToken string, creds Credentials) (*TokenGrant, error)
	// Refresh exchanges a refresh token for a new grant.
	Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenGrant, error)
}

// Store is the durable section storage a Manager persists to.
type Store interface {
	Values(section string) map[string]string
	Update(section string, values map[string]string)
	Write() error
}

var _ Store = (*store.Store)(nil)

// Logger is the logging surface the Manager needs.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

// Options configures a Manager.
type Options struct {
	// Store persists the session. Nil disables persistence.
	Store Store
	// Policy defaults to DefaultPolicy().
	Policy *Policy
	Logger Logger
	// Now overrides the clock.
	Now     func() time.Time
	Metrics *metrics.Metrics
}

// Manager owns the single Session of a process. Authenticate, Refresh and
// AuthHeaders are serialized by one mutex, so concurrent callers that see
// a stale token trigger one refresh between them.
type Manager struct {
	mu         sync.Mutex
	auth       Authenticator
	store      Store
	policy     Policy
	logger     Logger
	now        func() time.Time
	metrics    *metrics.Metrics
	session    Session
	persistErr error
}

// NewManager creates a Manager with an empty session. Call Load to restore
// a persisted one.
func NewManager(auth Authenticator, opts Options) *Manager {
	m := &Manager{
		auth:    auth,
		store:   opts.Store,
		policy:  DefaultPolicy(),
		logger:  opts.Logger,
		now:     opts.Now,
		metrics: opts.Metrics,
	}
	if opts.Policy != nil {
		m.policy = *opts.Policy
	}
	if m.logger == nil {
		m.logger = nopLogger{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.metrics == nil {
		m.metrics = metrics.Global
	}
	return m
}

// Load restores the session from the store. A missing section leaves the
// session empty; an unreadable one is discarded and reported as a config
// error.
func (m *Manager) Load() error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := decode(m.store.Values(store.SectionAuth), m.policy.ttl(0))
	if err != nil {
		m.logger.Error("discarding persisted session: %v", err)
		return iotcerr.WithCause(iotcerr.WithMessage(iotcerr.ErrConfigInvalid, "persisted session is invalid"), err)
	}
	m.session = s
	if s.Authenticated() {
		m.logger.Debug("loaded session issued %s, expires %s", s.IssuedAt.Format(time.RFC3339), s.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// Authenticate runs the basic-token and login exchange and replaces the
// session. Every missing argument is reported in one usage error. On any
// failure the previous session is left untouched.
func (m *Manager) Authenticate(ctx context.Context, username, password, solutionKey string) error {
	creds := Credentials{Username: username, Password: password, SolutionKey: solutionKey}
	if missing := creds.missing(); len(missing) > 0 {
		return iotcerr.WithMessage(iotcerr.ErrUsage, "authenticate: missing %s", strings.Join(missing, ", "))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	basic, err := m.auth.BasicToken(ctx)
	if err != nil {
		m.metrics.RecordAuthentication(err)
		return iotcerr.Wrap(err, "could not obtain basic token")
	}

	grant, err := m.auth.Login(ctx, basic, creds)
	if err != nil {
		m.metrics.RecordAuthentication(err)
		return iotcerr.Wrap(err, "login failed")
	}

	m.apply(grant, "")
	m.metrics.RecordAuthentication(nil)
	m.logger.Debug("authenticated as %s, token expires %s", username, m.session.ExpiresAt.Format(time.RFC3339))
	m.persist()
	return nil
}

// Refresh exchanges the refresh token for a new access token. A failed
// refresh leaves the session unchanged.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked(ctx)
}

func (m *Manager) refreshLocked(ctx context.Context) error {
	if m.session.RefreshToken == "" {
		return iotcerr.WithSuggestion(
			iotcerr.WithMessage(iotcerr.ErrUsage, "no refresh token available"),
			"Run 'iotc configure' to authenticate",
		)
	}

	grant, err := m.auth.Refresh(ctx, m.session.AccessToken, m.session.RefreshToken)
	m.metrics.RecordRefresh(err)
	if err != nil {
		m.logger.Error("token refresh failed: %v", err)
		return iotcerr.Wrap(err, "token refresh failed")
	}

	m.apply(grant, m.session.RefreshToken)
	m.logger.Debug("token refreshed, expires %s", m.session.ExpiresAt.Format(time.RFC3339))
	m.persist()
	return nil
}

// apply replaces the session with grant. fallbackRefresh is kept when the
// grant carries no refresh token. Caller holds m.mu.
func (m *Manager) apply(grant *TokenGrant, fallbackRefresh string) {
	now := m.now()
	refresh := grant.RefreshToken
	if refresh == "" {
		refresh = fallbackRefresh
	}
	m.session = Session{
		AccessToken:  grant.AccessToken,
		RefreshToken: refresh,
		IssuedAt:     now,
		ExpiresAt:    now.Add(m.policy.ttl(grant.ExpiresIn)),
	}
}

// persist writes the session to the store. Failures are logged and
// remembered but never returned. Caller holds m.mu.
func (m *Manager) persist() {
	if m.store == nil {
		return
	}
	m.store.Update(store.SectionAuth, encode(m.session))
	if err := m.store.Write(); err != nil {
		m.persistErr = err
		m.metrics.RecordPersistFailure()
		m.logger.Error("session will not survive restart: %v", err)
		return
	}
	m.persistErr = nil
}

// Logout forgets the session and overwrites the persisted tokens. The
// returned error is the persistence failure, if any; the in-memory session
// is cleared regardless.
func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = Session{}
	if m.store == nil {
		return nil
	}
	m.store.Update(store.SectionAuth, map[string]string{
		KeyAccessToken:  "",
		KeyRefreshToken: "",
		KeyTokenTime:    "",
		KeyTokenExpiry:  "",
	})
	if err := m.store.Write(); err != nil {
		m.persistErr = err
		m.metrics.RecordPersistFailure()
		return err
	}
	m.persistErr = nil
	return nil
}

// AuthHeaders returns the headers for an authenticated request. It fails
// with a usage error when there is no session and with an authentication
// error when the token has expired. A stale token is refreshed first unless
// automatic refresh is disabled; if that refresh fails the session is
// treated as expired from then on.
func (m *Manager) AuthHeaders(ctx context.Context) (http.Header, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	switch m.policy.State(m.session, now) {
	case StateUnauthenticated:
		return nil, iotcerr.WithSuggestion(
			iotcerr.WithMessage(iotcerr.ErrUsage, "not authenticated"),
			"Run 'iotc configure' to authenticate",
		)
	case StateExpired:
		return nil, iotcerr.WithSuggestion(
			iotcerr.WithMessage(iotcerr.ErrAuthentication, "session expired at %s", m.session.ExpiresAt.Format(time.RFC3339)),
			"Run 'iotc configure' to authenticate again",
		)
	case StateStale:
		if m.policy.AutoRefresh {
			if err := m.refreshLocked(ctx); err != nil {
				m.expireLocked(now)
				return nil, err
			}
		}
	case StateValid:
	}

	h := make(http.Header)
	h.Set("Accept", "application/json")
	h.Set("Authorization", "Bearer "+m.session.AccessToken)
	return h, nil
}

// expireLocked marks the in-memory session expired at now.
func (m *Manager) expireLocked(now time.Time) {
	if m.session.IssuedAt.After(now) {
		m.session.IssuedAt = now
	}
	m.session.ExpiresAt = now
}

// IsAuthenticated reports whether an access token is held. It does not
// check expiry and makes no network call.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Authenticated()
}

// Snapshot returns a copy of the current session.
func (m *Manager) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policy.State(m.session, m.now())
}

// Policy returns the refresh policy in effect.
func (m *Manager) Policy() Policy {
	return m.policy
}

// PersistError returns the error of the last failed save, or nil if the
// last save succeeded.
func (m *Manager) PersistError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persistErr
}

// Claims decodes the claims of the current access token.
func (m *Manager) Claims() (*Claims, error) {
	m.mu.Lock()
	token := m.session.AccessToken
	m.mu.Unlock()

	if token == "" {
		return nil, iotcerr.WithMessage(iotcerr.ErrUsage, "not authenticated")
	}
	return DecodeClaims(token)
}
