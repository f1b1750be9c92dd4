// Package cli implements the iotc command-line interface.
//
// This package uses global variables to manage CLI state, which is the standard
// pattern for Cobra-based CLI applications. The globals are initialized in
// PersistentPreRunE and cleaned up in PersistentPostRun.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/config"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/output"
	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// Command group identifiers used in root help.
const (
	groupAccount   = "account"
	groupResources = "resources"
	groupConfig    = "config"
)

// BuildInfo carries version metadata injected at link time.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

var (
	// Global flags
	homeDir      string
	outputFormat string
	verbose      bool
	traceAPI     bool

	// Global state initialized in PersistentPreRunE
	cfg       *config.Config
	logger    *config.Logger
	formatter *output.Formatter
	messenger *output.Messenger
	cmdCtx    *CommandContext

	buildInfo BuildInfo
	setupOnce sync.Once
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "iotc",
	Short: "Command-line client for the IoTConnect REST API",
	Long: `iotc manages an IoTConnect account from the terminal.

Run "iotc configure" once to discover the account endpoints and log in. The
session is kept in the iotc home directory and refreshed automatically, so
later commands work without asking for credentials again.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initGlobals(cmd)
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// versionCmd prints build metadata.
var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Print the iotc version",
	Long:    `Print the iotc version together with the commit and build date.`,
	Example: `  iotc version`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if formatter != nil && formatter.IsJSON() {
			return formatter.Print(buildInfo)
		}
		outln(cmd.OutOrStdout(), "iotc "+formatVersion(buildInfo))
		return nil
	},
}

// Execute runs the root command.
func Execute(info BuildInfo) error {
	buildInfo = info
	rootCmd.Version = formatVersion(info)
	setupCommandTree()

	err := rootCmd.Execute()
	if err != nil {
		formatErr(err)
		return err
	}
	return nil
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	return iotcerr.ExitCode(err)
}

// formatVersion renders build metadata, filling gaps with placeholders.
func formatVersion(info BuildInfo) string {
	v, c, d := info.Version, info.Commit, info.Date
	if v == "" {
		v = "dev"
	}
	if c == "" {
		c = "unknown"
	}
	if d == "" {
		d = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

// formatErr prints err to stderr in the active output format.
func formatErr(err error) {
	if formatter != nil {
		_ = output.FormatError(os.Stderr, err, formatter.Format())
		return
	}
	_ = output.FormatError(os.Stderr, err, output.FormatText)
}

// setupCommandTree finishes help text once every command is registered.
func setupCommandTree() {
	setupOnce.Do(func() {
		walkCommands(rootCmd, func(cmd *cobra.Command) {
			if cmd != rootCmd {
				enrichParentLong(cmd)
			}
		})
	})
}

// initGlobals initializes global configuration, logger, and formatter.
func initGlobals(cmd *cobra.Command) error {
	// Determine home directory
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}
	home = config.ExpandHome(home)

	// Load or create config
	var err error
	var loadErr error
	cfg, err = config.Load(config.Path(home))
	if err != nil {
		if !os.IsNotExist(err) {
			loadErr = err
		}
		// Use defaults if config doesn't exist
		cfg = config.Defaults()
	}
	cfg.Home = home

	// Apply environment variable overrides
	config.ApplyEnvironment(cfg)

	// Override with command-line flags
	if homeDir != "" {
		cfg.Home = config.ExpandHome(homeDir)
	}
	if verbose {
		cfg.Output.Verbose = true
		cfg.Logging.Level = "debug"
	}
	if outputFormat != "" && outputFormat != "auto" {
		cfg.Output.DefaultFormat = outputFormat
	}
	if traceAPI {
		cfg.HTTP.Trace = true
	}

	// Initialize logger
	logLevel := config.ParseLogLevel(cfg.Logging.Level)
	logger, err = config.NewLogger(logLevel, cfg.GetLoggingFile())
	if err != nil {
		// Use null logger if we can't create the file
		logger = config.NullLogger()
	}

	// Initialize formatter and messenger
	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()
	explicitFormat := output.ParseFormat(cfg.Output.DefaultFormat)
	formatter = output.NewFormatter(output.DetectFormat(stdout, explicitFormat), stdout)
	messenger = output.NewMessenger(stdout, stderr, output.ParseColorMode(cfg.Output.Color).Decorate(stderr))

	if loadErr != nil {
		logger.Error("ignoring unreadable config file: %v", loadErr)
		messenger.Warnf("config file %s is unreadable, using defaults", config.Path(home))
	}

	cmdCtx = NewCommandContext(cfg, logger, formatter, messenger)
	SetCmdContext(cmd, cmdCtx)
	return nil
}

// cleanup releases resources.
func cleanup() {
	if logger != nil {
		_ = logger.Close()
	}
}

// Config returns the global configuration.
func Config() *config.Config {
	return cfg
}

// Logger returns the global logger.
func Logger() *config.Logger {
	return logger
}

// Formatter returns the global output formatter.
func Formatter() *output.Formatter {
	return formatter
}

// Context returns the global command context.
func Context() *CommandContext {
	return cmdCtx
}

type cmdCtxKey struct{}

// SetCmdContext attaches c to the command's context.
func SetCmdContext(cmd *cobra.Command, c *CommandContext) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	cmd.SetContext(context.WithValue(base, cmdCtxKey{}, c))
}

// GetCmdContext returns the CommandContext attached to cmd, falling back to
// the global one.
func GetCmdContext(cmd *cobra.Command) *CommandContext {
	if ctx := cmd.Context(); ctx != nil {
		if c, ok := ctx.Value(cmdCtxKey{}).(*CommandContext); ok {
			return c
		}
	}
	return cmdCtx
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "iotc data directory (default: ~/.iotc)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&traceAPI, "trace", false, "log every API request and response")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupAccount, Title: "Session & Account:"},
		&cobra.Group{ID: groupResources, Title: "Resources:"},
		&cobra.Group{ID: groupConfig, Title: "Configuration:"},
	)
	rootCmd.SetHelpCommandGroupID(groupConfig)
	rootCmd.SetCompletionCommandGroupID(groupConfig)

	versionCmd.GroupID = groupConfig
	rootCmd.AddCommand(versionCmd)
}
