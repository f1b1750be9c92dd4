package cli

import (
	"time"

	"github.com/spf13/cobra"
)

// sessionCmd is the parent command for session operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or clear the saved session",
	Long: `Inspect or clear the session saved by "iotc configure".

A session moves from valid to stale once its age reaches the refresh
threshold (the smaller of the refresh interval and 90% of the token
lifetime). The next authenticated command refreshes a stale session unless
NO_TOKEN_REFRESH is set.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session state and token lifetime",
	Long:  `Show whether a session is held, when it was issued, when it goes stale and when it expires. No network call is made.`,
	Example: `  iotc session status
  iotc session status -o json`,
	Args: cobra.NoArgs,
	RunE: runSessionStatus,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sessionClearCmd = &cobra.Command{
	Use:     "clear",
	Short:   "Forget the saved session",
	Long:    `Remove the access and refresh tokens from the iotc home directory. Endpoints and account settings are kept.`,
	Example: `  iotc session clear`,
	Args:    cobra.NoArgs,
	RunE:    runSessionClear,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the access token now",
	Long: `Exchange the saved refresh token for a new access token.

A failed refresh leaves the saved session unchanged.`,
	Example: `  iotc refresh`,
	Args:    cobra.NoArgs,
	RunE:    runRefresh,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	sessionCmd.GroupID = groupAccount
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionStatusCmd)
	sessionCmd.AddCommand(sessionClearCmd)

	refreshCmd.GroupID = groupAccount
	rootCmd.AddCommand(refreshCmd)
}

// sessionStatus is the JSON form of session status.
type sessionStatus struct {
	State       string     `json:"state"`
	IssuedAt    *time.Time `json:"issued_at,omitempty"`
	StaleAt     *time.Time `json:"stale_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Remaining   string     `json:"remaining,omitempty"`
	AutoRefresh bool       `json:"auto_refresh"`
	Path        string     `json:"path"`
}

func buildSessionStatus(cc *CommandContext) sessionStatus {
	mgr := cc.Session()
	snap := mgr.Snapshot()
	policy := mgr.Policy()

	st := sessionStatus{
		State:       mgr.State().String(),
		AutoRefresh: policy.AutoRefresh,
		Path:        cc.Store().Path(),
	}
	if !snap.Authenticated() {
		return st
	}

	issued, expires := snap.IssuedAt, snap.ExpiresAt
	stale := issued.Add(policy.StaleAfter(snap.Lifetime()))
	st.IssuedAt, st.StaleAt, st.ExpiresAt = &issued, &stale, &expires

	now := time.Now()
	if cc.Now != nil {
		now = cc.Now()
	}
	st.Remaining = formatDuration(snap.Remaining(now))
	return st
}

func runSessionStatus(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	st := buildSessionStatus(cc)

	fields := [][2]string{{"State", st.State}}
	if st.ExpiresAt != nil {
		fields = append(fields,
			[2]string{"Issued", formatTime(*st.IssuedAt)},
			[2]string{"Stale after", formatTime(*st.StaleAt)},
			[2]string{"Expires", formatTime(*st.ExpiresAt)},
			[2]string{"Remaining", st.Remaining},
		)
	}
	fields = append(fields,
		[2]string{"Auto refresh", onOff(st.AutoRefresh)},
		[2]string{"Saved in", st.Path},
	)
	return cc.Fmt.PrintFields(st, fields)
}

func runSessionClear(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	if err := cc.Session().Logout(); err != nil {
		return err
	}
	return cc.done(map[string]bool{"cleared": true}, "Session cleared")
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, cc.commandTimeout())
	defer cancel()

	mgr := cc.Session()
	if err := mgr.Refresh(ctx); err != nil {
		return err
	}
	if err := mgr.PersistError(); err != nil {
		cc.Msg.Warnf("token refreshed, but the session could not be saved: %v", err)
	}

	st := buildSessionStatus(cc)
	return cc.done(st, "Token refreshed, valid until %s", formatTime(mgr.Snapshot().ExpiresAt))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
