package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/mrz1836/go-sanitize"
)

// Environment variable names.
const (
	EnvHome         = "IOTC_HOME"
	EnvPlatform     = "IOTC_PF"
	EnvEnvironment  = "IOTC_ENV"
	EnvSolutionKey  = "IOTC_SKEY"
	EnvUsername     = "IOTC_USER"
	EnvPassword     = "IOTC_PASS" // #nosec G101 -- false positive, this is a const name not a credential
	EnvDiscoveryURL = "IOTC_DISCOVERY_URL"
	EnvAPITrace     = "IOTC_API_TRACE"
	EnvNoRefresh    = "NO_TOKEN_REFRESH"
	EnvOutputFormat = "IOTC_OUTPUT_FORMAT"
	EnvVerbose      = "IOTC_VERBOSE"
	EnvLogLevel     = "IOTC_LOG_LEVEL"
	EnvNoColor      = "NO_COLOR"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvPlatform); v != "" {
		cfg.Account.Platform = strings.ToLower(strings.TrimSpace(v))
	}

	if v := os.Getenv(EnvEnvironment); v != "" {
		cfg.Account.Env = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvSolutionKey); v != "" {
		cfg.Account.SolutionKey = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvDiscoveryURL); v != "" {
		cfg.Endpoints.Discovery = SanitizeURL(v)
	}

	if v := os.Getenv(EnvAPITrace); v != "" {
		cfg.HTTP.Trace = parseBool(v)
	}

	// NO_TOKEN_REFRESH disables lazy refresh when present, whatever its value
	if _, ok := os.LookupEnv(EnvNoRefresh); ok {
		cfg.Auth.AutoRefresh = false
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	// NO_COLOR disables colored output
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// SanitizeURL cleans a URL string by removing invalid characters and trimming whitespace.
// This is useful for cleaning user-provided endpoint URLs that may contain copy-paste artifacts.
func SanitizeURL(url string) string {
	return strings.TrimRight(sanitize.URL(strings.TrimSpace(url)), "/")
}

// ErrInsecureEndpoint is returned when a remote endpoint does not use https.
var ErrInsecureEndpoint = errors.New("endpoint must use https unless it points at localhost")

// ErrInvalidEndpoint is returned when an endpoint cannot be parsed or uses an unsupported scheme.
var ErrInvalidEndpoint = errors.New("invalid endpoint URL")

// ValidateEndpointURL checks a base URL override. Empty values are accepted
// and mean "use the discovered endpoint".
func ValidateEndpointURL(raw string) error {
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}

	switch u.Scheme {
	case "https":
	case "http":
		if !isLoopback(u.Hostname()) {
			return fmt.Errorf("%w: %s", ErrInsecureEndpoint, raw)
		}
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
