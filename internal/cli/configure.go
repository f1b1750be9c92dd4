package cli

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/api"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/config"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/store"
	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// Keys of the settings section.
const (
	settingPlatform    = "platform"
	settingEnv         = "env"
	settingSolutionKey = "solution_key"
	settingUsername    = "username"
)

// configureCmd discovers endpoints and logs in.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Discover account endpoints and log in",
	Long: `Discover the service endpoints of an IoTConnect account and authenticate.

Each value is taken from its flag, then from the environment (IOTC_USER,
IOTC_PASS, IOTC_SKEY, IOTC_PF, IOTC_ENV), then from config.yaml. On a
terminal, a missing username, password or solution key is prompted for.
The endpoints, account settings and session are saved to the iotc home
directory.`,
	Example: `  iotc configure -u me@example.com --skey MYKEY --env poc
  IOTC_USER=me@example.com IOTC_PASS=secret IOTC_SKEY=MYKEY iotc configure --pf az --env avnet`,
	Args: cobra.NoArgs,
	RunE: runConfigure,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	configureUsername    string
	configurePassword    string
	configureSolutionKey string
	configurePlatform    string
	configureEnv         string
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	configureCmd.GroupID = groupAccount
	rootCmd.AddCommand(configureCmd)

	f := configureCmd.Flags()
	f.StringVarP(&configureUsername, "username", "u", "", "account user name (email)")
	f.StringVarP(&configurePassword, "password", "p", "", "account password (prefer IOTC_PASS or the prompt)")
	f.StringVarP(&configureSolutionKey, "skey", "s", "", "solution key")
	f.StringVar(&configurePlatform, "pf", "", "account platform: aws or az")
	f.StringVar(&configureEnv, "env", "", "account environment, for example poc, prod or avnet")
}

// configureResult is the JSON form of a successful configure.
type configureResult struct {
	Username  string            `json:"username"`
	Platform  string            `json:"platform"`
	Env       string            `json:"env"`
	ExpiresAt time.Time         `json:"expires_at"`
	Endpoints map[string]string `json:"endpoints"`
	Saved     bool              `json:"saved"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

//nolint:gocognit // input resolution, discovery and login are sequential steps
func runConfigure(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	username := firstNonEmpty(configureUsername, os.Getenv(config.EnvUsername))
	password := configurePassword
	if password == "" {
		password = os.Getenv(config.EnvPassword)
	}
	skey := firstNonEmpty(configureSolutionKey, cc.Cfg.Account.SolutionKey)
	platform := strings.ToLower(firstNonEmpty(configurePlatform, cc.Cfg.Account.Platform))
	env := firstNonEmpty(configureEnv, cc.Cfg.Account.Env)

	var err error
	if username, err = askMissing(username, "Username: ", false); err != nil {
		return err
	}
	if password, err = askMissing(password, "Password: ", true); err != nil {
		return err
	}
	if skey, err = askMissing(skey, "Solution key: ", false); err != nil {
		return err
	}

	var missing []string
	for _, field := range []struct{ name, value string }{
		{"Username", username},
		{"Password", password},
		{"Solution key", skey},
		{"Environment", env},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return iotcerr.WithSuggestion(
			iotcerr.WithMessage(iotcerr.ErrUsage, "configure: missing %s", strings.Join(missing, ", ")),
			"Pass the value as a flag or set IOTC_USER, IOTC_PASS and IOTC_SKEY",
		)
	}
	if platform != config.PlatformAWS && platform != config.PlatformAzure {
		return iotcerr.WithSuggestion(
			iotcerr.WithMessage(iotcerr.ErrUsage, "configure: unknown platform %q", platform),
			"Use --pf aws or --pf az",
		)
	}
	if err := config.ValidateEndpointURL(cc.Cfg.Endpoints.Discovery); err != nil {
		return iotcerr.WithCause(iotcerr.WithMessage(iotcerr.ErrUsage, "configure: bad discovery URL"), err)
	}

	ctx, cancel := contextWithTimeout(cmd, 2*cc.commandTimeout())
	defer cancel()

	endpoints, err := cc.API().Discover(ctx, api.DiscoveryRequest{
		BaseURL:     cc.Cfg.Endpoints.Discovery,
		SolutionKey: skey,
		Env:         env,
		Platform:    platform,
	})
	if err != nil {
		return err
	}
	cc.SetEndpoints(endpoints)
	cc.Store().Update(store.SectionSettings, map[string]string{
		settingPlatform:    platform,
		settingEnv:         env,
		settingSolutionKey: skey,
		settingUsername:    username,
	})
	cc.Log.Debug("discovered endpoints for %s/%s on %s", skey, env, platform)

	mgr := cc.Session()
	if err := mgr.Authenticate(ctx, username, password, skey); err != nil {
		return err
	}

	persistErr := mgr.PersistError()
	if persistErr != nil {
		cc.Msg.Warnf("logged in, but the session could not be saved: %v", persistErr)
	}

	snap := mgr.Snapshot()
	return cc.done(configureResult{
		Username:  username,
		Platform:  platform,
		Env:       env,
		ExpiresAt: snap.ExpiresAt,
		Endpoints: cc.Endpoints().Values(),
		Saved:     persistErr == nil,
	}, "Logged in as %s, token valid until %s", username, formatTime(snap.ExpiresAt))
}
