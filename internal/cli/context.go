package cli

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/api"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/config"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/iotc"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/metrics"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/output"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/session"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/store"
)

// CommandContext holds dependencies for CLI commands. The network-facing
// pieces are built on first use so that local commands never touch the
// state file.
type CommandContext struct {
	Cfg *config.Config
	Log *config.Logger
	Fmt *output.Formatter
	Msg *output.Messenger

	// HTTPClient replaces the default transport when set.
	HTTPClient *http.Client
	// Now replaces the wall clock of the session manager when set.
	Now func() time.Time
	// Metrics receives API and session counters. Defaults to metrics.Global.
	Metrics *metrics.Metrics

	mu        sync.Mutex
	store     *store.Store
	endpoints *api.Endpoints
	api       *api.Client
	session   *session.Manager
	client    *iotc.Client
}

// NewCommandContext creates a context with the given dependencies.
func NewCommandContext(
	cfg *config.Config,
	log *config.Logger,
	fmtr *output.Formatter,
	msg *output.Messenger,
) *CommandContext {
	return &CommandContext{
		Cfg: cfg,
		Log: log,
		Fmt: fmtr,
		Msg: msg,
	}
}

// Store returns the session state file, opening it on first use. A state
// file that cannot be opened is reported once; the session then lives in
// memory only.
func (c *CommandContext) Store() *store.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storeLocked()
}

func (c *CommandContext) storeLocked() *store.Store {
	if c.store != nil {
		return c.store
	}
	c.store = store.New(config.StatePath(c.Cfg.GetHome()))
	if err := c.store.Init(); err != nil {
		c.Log.Error("state file unavailable: %v", err)
		if c.Msg != nil {
			if c.store.Discarded() {
				c.Msg.Warnf("%v; run 'iotc configure' to log in again", err)
			} else {
				c.Msg.Warnf("session state will not be saved: %v", err)
			}
		}
	}
	return c.store
}

// Endpoints returns the account endpoints: the discovered ones from the
// state file with any configured overrides applied. The returned value is
// shared; SetEndpoints updates it in place.
func (c *CommandContext) Endpoints() *api.Endpoints {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpointsLocked()
}

func (c *CommandContext) endpointsLocked() *api.Endpoints {
	if c.endpoints != nil {
		return c.endpoints
	}
	discovered := api.EndpointsFromValues(c.storeLocked().Values(store.SectionEndpoints))
	c.endpoints = discovered.Merge(c.overrides())
	return c.endpoints
}

// SetEndpoints records freshly discovered endpoints in the state file and
// makes them current. Configured overrides still win.
func (c *CommandContext) SetEndpoints(ep *api.Endpoints) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.storeLocked()
	st.RemoveSection(store.SectionEndpoints)
	st.Update(store.SectionEndpoints, ep.Values())

	merged := ep.Merge(c.overrides())
	if c.endpoints == nil {
		c.endpoints = merged
		return
	}
	*c.endpoints = *merged
}

func (c *CommandContext) overrides() *api.Endpoints {
	return &api.Endpoints{
		Auth:     c.Cfg.Endpoints.Auth,
		User:     c.Cfg.Endpoints.User,
		Device:   c.Cfg.Endpoints.Device,
		Firmware: c.Cfg.Endpoints.Firmware,
		File:     c.Cfg.Endpoints.File,
	}
}

// authURL is consulted by the authenticator on every call.
func (c *CommandContext) authURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpointsLocked().Auth
}

// API returns the unauthenticated request executor built from the HTTP
// settings.
func (c *CommandContext) API() *api.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apiLocked()
}

func (c *CommandContext) apiLocked() *api.Client {
	if c.api != nil {
		return c.api
	}
	retry := api.DefaultRetryConfig()
	retry.MaxAttempts = c.Cfg.HTTP.MaxRetries + 1
	c.api = api.NewClient(&api.Options{
		HTTPClient:  c.HTTPClient,
		Timeout:     c.Cfg.HTTPTimeout(),
		Logger:      c.Log,
		Trace:       c.Cfg.HTTP.Trace,
		Retry:       &retry,
		RateLimiter: api.NewRateLimiter(c.Cfg.HTTP.RatePerSecond, c.Cfg.HTTP.Burst),
		Metrics:     c.Metrics,
	})
	return c.api
}

// Session returns the session manager, restoring the persisted session on
// first use. An unreadable persisted session is dropped with a warning.
func (c *CommandContext) Session() *session.Manager {
	c.mu.Lock()
	if c.session != nil {
		defer c.mu.Unlock()
		return c.session
	}

	policy := session.Policy{
		AutoRefresh:     c.Cfg.Auth.AutoRefresh,
		RefreshInterval: c.Cfg.RefreshInterval(),
		DefaultTTL:      c.Cfg.DefaultTokenTTL(),
	}
	auth := session.NewHTTPAuthenticator(c.apiLocked(), c.authURL)
	mgr := session.NewManager(auth, session.Options{
		Store:   c.storeLocked(),
		Policy:  &policy,
		Logger:  c.Log,
		Now:     c.Now,
		Metrics: c.Metrics,
	})
	c.session = mgr
	c.mu.Unlock()

	if err := mgr.Load(); err != nil && c.Msg != nil {
		c.Msg.Warnf("%v", err)
	}
	return mgr
}

// Client returns the resource client. Requests carry the session's
// authentication headers.
func (c *CommandContext) Client() *iotc.Client {
	mgr := c.Session()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		c.client = iotc.New(c.apiLocked().WithHeaders(mgr), c.endpointsLocked())
	}
	return c.client
}

// contextWithTimeout returns a timeout context rooted in the command context.
func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, d)
}

// commandTimeout bounds a whole command, including retries and a refresh.
func (c *CommandContext) commandTimeout() time.Duration {
	attempts := c.Cfg.HTTP.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	// Allow for a token refresh plus the retried request itself.
	return time.Duration(attempts+1) * c.Cfg.HTTPTimeout()
}
