// Package session manages the IoTConnect credential lifecycle: it obtains a
// bearer token through the basic-token + login exchange, persists it,
// refreshes it lazily once it becomes stale and hands out authentication
// headers for every API call.
//
// A Session is in one of four states: unauthenticated (no access token),
// valid, stale (still usable but past the refresh threshold) or expired.
// Refresh happens synchronously inside Manager.AuthHeaders; there is no
// background timer.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Default policy values.
const (
	// DefaultRefreshInterval is the token age after which a refresh is attempted.
	DefaultRefreshInterval = time.Hour

	// DefaultTokenTTL is assumed when the server does not report expires_in.
	DefaultTokenTTL = 24 * time.Hour

	// staleNum/staleDen caps the refresh threshold at 90% of the token lifetime.
	staleNum = 9
	staleDen = 10
)

// Persisted field names within the authentication section.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyTokenTime    = "token_time"
	KeyTokenExpiry  = "token_expiry"
)

// Session is the credential state owned by a Manager.
type Session struct {
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Authenticated reports whether the session holds an access token.
func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}

// Lifetime returns the full validity window of the token.
func (s Session) Lifetime() time.Duration {
	return s.ExpiresAt.Sub(s.IssuedAt)
}

// Remaining returns the time left before expiry at now, never negative.
func (s Session) Remaining(now time.Time) time.Duration {
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// State enumerates session states.
type State int

// Session states.
const (
	StateUnauthenticated State = iota
	StateValid
	StateStale
	StateExpired
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateValid:
		return "valid"
	case StateStale:
		return "stale"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Policy decides when a token is stale and whether stale tokens are
// refreshed automatically.
type Policy struct {
	AutoRefresh     bool
	RefreshInterval time.Duration
	DefaultTTL      time.Duration
}

// DefaultPolicy returns the default refresh policy.
func DefaultPolicy() Policy {
	return Policy{
		AutoRefresh:     true,
		RefreshInterval: DefaultRefreshInterval,
		DefaultTTL:      DefaultTokenTTL,
	}
}

// StaleAfter returns the token age after which a token with the given
// lifetime is stale: the smaller of the refresh interval and 90% of the
// lifetime.
func (p Policy) StaleAfter(lifetime time.Duration) time.Duration {
	limit := lifetime / staleDen * staleNum
	if p.RefreshInterval > 0 && p.RefreshInterval < limit {
		return p.RefreshInterval
	}
	return limit
}

// State classifies s at now.
func (p Policy) State(s Session, now time.Time) State {
	switch {
	case !s.Authenticated():
		return StateUnauthenticated
	case !now.Before(s.ExpiresAt):
		return StateExpired
	case now.Sub(s.IssuedAt) >= p.StaleAfter(s.Lifetime()):
		return StateStale
	default:
		return StateValid
	}
}

// ttl returns the lifetime for a grant, falling back to the policy default
// when the server reports none.
func (p Policy) ttl(expiresIn time.Duration) time.Duration {
	if expiresIn > 0 {
		return expiresIn
	}
	if p.DefaultTTL > 0 {
		return p.DefaultTTL
	}
	return DefaultTokenTTL
}

// encode renders s as persisted string fields. Times are epoch seconds.
func encode(s Session) map[string]string {
	return map[string]string{
		KeyAccessToken:  s.AccessToken,
		KeyRefreshToken: s.RefreshToken,
		KeyTokenTime:    strconv.FormatInt(s.IssuedAt.Round(time.Second).Unix(), 10),
		KeyTokenExpiry:  strconv.FormatInt(s.ExpiresAt.Round(time.Second).Unix(), 10),
	}
}

// decode rebuilds a Session from persisted fields. A section without an
// access token yields an empty Session. A missing expiry is derived from
// defaultTTL.
func decode(v map[string]string, defaultTTL time.Duration) (Session, error) {
	if v[KeyAccessToken] == "" {
		return Session{}, nil
	}

	issued, err := parseEpoch(v[KeyTokenTime])
	if err != nil {
		return Session{}, fmt.Errorf("%s: %w", KeyTokenTime, err)
	}

	var expires time.Time
	if raw := v[KeyTokenExpiry]; raw != "" {
		if expires, err = parseEpoch(raw); err != nil {
			return Session{}, fmt.Errorf("%s: %w", KeyTokenExpiry, err)
		}
	} else {
		expires = issued.Add(defaultTTL)
	}

	if expires.Before(issued) {
		return Session{}, fmt.Errorf("%s precedes %s", KeyTokenExpiry, KeyTokenTime)
	}

	return Session{
		AccessToken:  v[KeyAccessToken],
		RefreshToken: v[KeyRefreshToken],
		IssuedAt:     issued,
		ExpiresAt:    expires,
	}, nil
}

var errMissingValue = errors.New("missing value")

// parseEpoch accepts integer or fractional epoch seconds.
func parseEpoch(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errMissingValue
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch seconds %q", s)
	}
	return time.Unix(0, int64(f*float64(time.Second))).UTC(), nil
}
