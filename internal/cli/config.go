package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/spf13/cobra"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/config"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/output"
	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and modify iotc configuration settings. Settings live in config.yaml
inside the iotc home directory; tokens and discovered endpoints are kept
separately in session.yaml and are not edited here.`,
}

// configInitCmd initializes the configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a default configuration file at ~/.iotc/config.yaml.

If a configuration file already exists, this command will not overwrite it
unless --force is specified.`,
	Example: `  iotc config init
  iotc config init --force`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// configShowCmd shows the current configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the effective configuration settings, including values taken from
IOTC_* environment variables.`,
	Example: `  iotc config show
  iotc config show -o json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

// configGetCmd gets a specific configuration value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Get a configuration value",
	Long: `Get a specific configuration value by its path.

The path uses dot notation to navigate the configuration tree.`,
	Example: `  iotc config get account.env
  iotc config get http.timeout_seconds
  iotc config get logging.level`,
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeConfigKeys,
	RunE:              runConfigGet,
}

// configSetCmd sets a configuration value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configSetCmd = &cobra.Command{
	Use:   "set <path> <value>",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value by its path.

The path uses dot notation to navigate the configuration tree.
The configuration file will be updated immediately.`,
	Example: `  iotc config set account.env prod
  iotc config set endpoints.device https://device.example.com/api/v2
  iotc config set logging.level debug`,
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeConfigKeys,
	RunE:              runConfigSet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	configCmd.GroupID = groupConfig
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configGetCmd, configSetCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")
}

// configKey is one settable configuration path.
type configKey struct {
	path string
	get  func(c *config.Config) string
	set  func(c *config.Config, value string) error
}

func stringKey(path string, field func(c *config.Config) *string, check func(string) error) configKey {
	return configKey{
		path: path,
		get:  func(c *config.Config) string { return *field(c) },
		set: func(c *config.Config, value string) error {
			if check != nil {
				if err := check(value); err != nil {
					return err
				}
			}
			*field(c) = value
			return nil
		},
	}
}

func intKey(path string, field func(c *config.Config) *int, minValue int) configKey {
	return configKey{
		path: path,
		get:  func(c *config.Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *config.Config, value string) error {
			n, err := strconv.Atoi(value)
			if err != nil || n < minValue {
				return invalidValue(path, value, fmt.Sprintf("an integer >= %d", minValue))
			}
			*field(c) = n
			return nil
		},
	}
}

func boolKey(path string, field func(c *config.Config) *bool) configKey {
	return configKey{
		path: path,
		get:  func(c *config.Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *config.Config, value string) error {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return invalidValue(path, value, "true or false")
			}
			*field(c) = b
			return nil
		},
	}
}

func oneOf(path string, valid ...string) func(string) error {
	return func(value string) error {
		if slices.Contains(valid, value) {
			return nil
		}
		return invalidValue(path, value, strings.Join(valid, ", "))
	}
}

// endpointURL validates a base URL. Overrides may be empty; the
// discovery URL may not.
func endpointURL(path string, allowEmpty bool) func(string) error {
	return func(value string) error {
		if value == "" && !allowEmpty {
			return invalidValue(path, value, "an https URL")
		}
		if err := config.ValidateEndpointURL(value); err != nil {
			return iotcerr.WithCause(invalidValue(path, value, "an https URL"), err)
		}
		return nil
	}
}

func invalidValue(path, value, valid string) error {
	return iotcerr.WithDetails(
		iotcerr.WithMessage(iotcerr.ErrConfigInvalid, "invalid value %q for %s", value, path),
		map[string]string{"key": path, "valid": valid},
	)
}

// configKeys lists every path understood by config get and set.
//
//nolint:gochecknoglobals // static lookup table
var configKeys = []configKey{
	stringKey("home", func(c *config.Config) *string { return &c.Home }, nil),
	stringKey("account.platform", func(c *config.Config) *string { return &c.Account.Platform },
		oneOf("account.platform", config.PlatformAWS, config.PlatformAzure)),
	stringKey("account.env", func(c *config.Config) *string { return &c.Account.Env }, nil),
	stringKey("account.solution_key", func(c *config.Config) *string { return &c.Account.SolutionKey }, nil),
	stringKey("endpoints.discovery", func(c *config.Config) *string { return &c.Endpoints.Discovery },
		endpointURL("endpoints.discovery", false)),
	stringKey("endpoints.auth", func(c *config.Config) *string { return &c.Endpoints.Auth }, endpointURL("endpoints.auth", true)),
	stringKey("endpoints.user", func(c *config.Config) *string { return &c.Endpoints.User }, endpointURL("endpoints.user", true)),
	stringKey("endpoints.device", func(c *config.Config) *string { return &c.Endpoints.Device }, endpointURL("endpoints.device", true)),
	stringKey("endpoints.firmware", func(c *config.Config) *string { return &c.Endpoints.Firmware }, endpointURL("endpoints.firmware", true)),
	stringKey("endpoints.file", func(c *config.Config) *string { return &c.Endpoints.File }, endpointURL("endpoints.file", true)),
	boolKey("auth.auto_refresh", func(c *config.Config) *bool { return &c.Auth.AutoRefresh }),
	intKey("auth.refresh_interval_seconds", func(c *config.Config) *int { return &c.Auth.RefreshIntervalSeconds }, 0),
	intKey("auth.default_token_ttl_seconds", func(c *config.Config) *int { return &c.Auth.DefaultTokenTTLSeconds }, 1),
	intKey("http.timeout_seconds", func(c *config.Config) *int { return &c.HTTP.TimeoutSeconds }, 1),
	intKey("http.max_retries", func(c *config.Config) *int { return &c.HTTP.MaxRetries }, 0),
	{
		path: "http.rate_per_second",
		get: func(c *config.Config) string {
			return strconv.FormatFloat(c.HTTP.RatePerSecond, 'f', -1, 64)
		},
		set: func(c *config.Config, value string) error {
			f, err := strconv.ParseFloat(value, 64)
			if err != nil || f < 0 {
				return invalidValue("http.rate_per_second", value, "a number >= 0 (0 disables limiting)")
			}
			c.HTTP.RatePerSecond = f
			return nil
		},
	},
	intKey("http.burst", func(c *config.Config) *int { return &c.HTTP.Burst }, 1),
	boolKey("http.trace", func(c *config.Config) *bool { return &c.HTTP.Trace }),
	stringKey("output.default_format", func(c *config.Config) *string { return &c.Output.DefaultFormat },
		oneOf("output.default_format", "text", "json", "auto")),
	stringKey("output.color", func(c *config.Config) *string { return &c.Output.Color },
		oneOf("output.color", "auto", "always", "never")),
	boolKey("output.verbose", func(c *config.Config) *bool { return &c.Output.Verbose }),
	stringKey("logging.level", func(c *config.Config) *string { return &c.Logging.Level },
		oneOf("logging.level", "off", "error", "debug")),
	stringKey("logging.file", func(c *config.Config) *string { return &c.Logging.File }, nil),
}

// lookupConfigKey finds path in the key table. Unknown paths get the
// closest known path as a suggestion.
func lookupConfigKey(path string) (configKey, error) {
	best, bestDist := "", -1
	for _, k := range configKeys {
		if k.path == path {
			return k, nil
		}
		if d := levenshtein.ComputeDistance(path, k.path); bestDist < 0 || d < bestDist {
			best, bestDist = k.path, d
		}
	}

	err := iotcerr.WithDetails(
		iotcerr.WithMessage(iotcerr.ErrUnknownConfigKey, "unknown configuration path %q", path),
		map[string]string{"path": path},
	)
	if bestDist >= 0 && bestDist <= len(path)/2+1 {
		return configKey{}, iotcerr.WithSuggestion(err, fmt.Sprintf("Did you mean %q?", best))
	}
	return configKey{}, iotcerr.WithSuggestion(err, "Run 'iotc config show' to list the known paths")
}

// getConfigValue retrieves a value from the config using dot notation.
func getConfigValue(c *config.Config, path string) (string, error) {
	k, err := lookupConfigKey(path)
	if err != nil {
		return "", err
	}
	return k.get(c), nil
}

// setConfigValue sets a value in the config using dot notation.
func setConfigValue(c *config.Config, path, value string) error {
	k, err := lookupConfigKey(path)
	if err != nil {
		return err
	}
	return k.set(c, value)
}

func completeConfigKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	paths := make([]string, len(configKeys))
	for i, k := range configKeys {
		paths[i] = k.path
	}
	return paths, cobra.ShellCompDirectiveNoFileComp
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)
	configPath := config.Path(cc.Cfg.GetHome())

	if _, err := os.Stat(configPath); err == nil && !configForce {
		return iotcerr.WithSuggestion(
			iotcerr.WithMessage(iotcerr.ErrConfig, "configuration already exists at %s", configPath),
			"Use --force to overwrite",
		)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	defaultCfg := config.Defaults()
	defaultCfg.Home = cc.Cfg.Home
	if err := config.Save(defaultCfg, configPath); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if cc.Fmt.IsJSON() {
		return cc.Fmt.Print(map[string]string{"path": configPath})
	}
	w := cmd.OutOrStdout()
	out(w, "Configuration initialized at %s\n", configPath)
	outln(w)
	outln(w, "Edit this file or use 'iotc config set' to configure:")
	outln(w, "  - account.platform: Cloud platform (aws/az)")
	outln(w, "  - account.env: Account environment")
	outln(w, "  - output.default_format: Output format (text/json/auto)")
	outln(w, "  - logging.level: Log level (off/error/debug)")
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	values := make(map[string]string, len(configKeys))
	t := output.NewTable("PATH", "VALUE")
	for _, k := range configKeys {
		v := k.get(cc.Cfg)
		values[k.path] = v
		if v == "" {
			v = "(not set)"
		}
		t.AddRow(k.path, v)
	}
	return cc.Fmt.PrintList(values, t)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	value, err := getConfigValue(cc.Cfg, args[0])
	if err != nil {
		return err
	}
	if cc.Fmt.IsJSON() {
		return cc.Fmt.Print(map[string]string{args[0]: value})
	}
	outln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	path, value := args[0], args[1]
	if strings.HasPrefix(path, "endpoints.") {
		value = config.SanitizeURL(value)
	}

	// Edit the file contents, not the environment-adjusted view.
	configPath := config.Path(cc.Cfg.GetHome())
	current, err := config.Load(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return iotcerr.WithCause(
				iotcerr.WithMessage(iotcerr.ErrConfigInvalid, "cannot read %s", configPath), err)
		}
		current = config.Defaults()
		current.Home = cc.Cfg.Home
	}

	if err := setConfigValue(current, path, value); err != nil {
		return err
	}
	if err := config.Save(current, configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	return cc.done(map[string]string{path: value}, "Set %s = %s", path, value)
}
