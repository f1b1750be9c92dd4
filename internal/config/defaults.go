package config

// DefaultDiscoveryURL is the endpoint discovery service.
const DefaultDiscoveryURL = "https://discovery.iotconnect.io"

// Account platform identifiers.
const (
	PlatformAWS   = "aws"
	PlatformAzure = "az"
)

// Account environment identifiers accepted by the discovery service.
const (
	EnvPOC   = "poc"
	EnvProd  = "prod"
	EnvAvnet = "avnet"
)

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.iotc",
		Account: AccountConfig{
			Platform: PlatformAWS,
			Env:      EnvPOC,
		},
		Endpoints: EndpointsConfig{
			Discovery: DefaultDiscoveryURL,
		},
		Auth: AuthConfig{
			AutoRefresh:            true,
			RefreshIntervalSeconds: 3600,
			DefaultTokenTTLSeconds: 86400,
		},
		HTTP: HTTPConfig{
			TimeoutSeconds: 30,
			MaxRetries:     3,
			RatePerSecond:  5,
			Burst:          10,
			Trace:          false,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
			Verbose:       false,
		},
		Logging: LoggingConfig{
			Level: "error",
		},
	}
}
