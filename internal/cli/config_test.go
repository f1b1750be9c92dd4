package cli

import (
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/config"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/output"
	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// savedConfig reads back the config file written by the commands.
func savedConfig(t *testing.T, e *testEnv) *config.Config {
	t.Helper()
	c, err := config.Load(config.Path(e.cc.Cfg.GetHome()))
	require.NoError(t, err)
	return c
}

func TestConfigGet(t *testing.T) {
	e := newTestEnv(t, output.FormatText)
	e.cc.Cfg.Account.Env = config.EnvProd

	require.NoError(t, runConfigGet(e.cmd, []string{"account.env"}))
	assert.Equal(t, "prod\n", e.out.String())

	e.out.Reset()
	require.NoError(t, runConfigGet(e.cmd, []string{"http.rate_per_second"}))
	assert.Equal(t, "0\n", e.out.String())
}

func TestConfigGet_JSON(t *testing.T) {
	e := newTestEnv(t, output.FormatJSON)

	require.NoError(t, runConfigGet(e.cmd, []string{"auth.auto_refresh"}))

	var got map[string]string
	e.decode(t, &got)
	assert.Equal(t, map[string]string{"auth.auto_refresh": "true"}, got)
}

func TestConfigGet_UnknownKey(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		suggestion string
	}{
		{"typo gets the closest path", "logging.levle", `Did you mean "logging.level"?`},
		{"near miss on a nested path", "http.max_retry", `Did you mean "http.max_retries"?`},
		{"nothing close", "zzz", "iotc config show"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEnv(t, output.FormatText)

			err := runConfigGet(e.cmd, []string{tc.path})
			require.ErrorIs(t, err, iotcerr.ErrUnknownConfigKey)
			assert.Equal(t, iotcerr.ExitUsage, ExitCode(err))
			assert.Equal(t, tc.path, iotcerr.Detail(err, "path"))

			var ie *iotcerr.IotcError
			require.True(t, iotcerr.As(err, &ie))
			assert.Contains(t, ie.Suggestion, tc.suggestion)
		})
	}
}

func TestConfigKeys_RoundTrip(t *testing.T) {
	c := config.Defaults()
	for _, k := range configKeys {
		t.Run(k.path, func(t *testing.T) {
			v, err := getConfigValue(c, k.path)
			require.NoError(t, err)
			if v == "" {
				return
			}
			require.NoError(t, setConfigValue(c, k.path, v))
			got, err := getConfigValue(c, k.path)
			require.NoError(t, err)
			assert.Equal(t, v, got)
		})
	}
}

func TestConfigSet(t *testing.T) {
	e := newTestEnv(t, output.FormatText)

	require.NoError(t, runConfigSet(e.cmd, []string{"output.default_format", "json"}))
	assert.Contains(t, e.out.String(), "Set output.default_format = json")

	require.NoError(t, runConfigSet(e.cmd, []string{"http.max_retries", "5"}))
	require.NoError(t, runConfigSet(e.cmd, []string{"http.rate_per_second", "2.5"}))
	require.NoError(t, runConfigSet(e.cmd, []string{"auth.auto_refresh", "false"}))

	saved := savedConfig(t, e)
	assert.Equal(t, "json", saved.Output.DefaultFormat)
	assert.Equal(t, 5, saved.HTTP.MaxRetries)
	assert.InDelta(t, 2.5, saved.HTTP.RatePerSecond, 0.0001)
	assert.False(t, saved.Auth.AutoRefresh)
	assert.Equal(t, config.EnvPOC, saved.Account.Env, "untouched values keep their defaults")
}

func TestConfigSet_JSON(t *testing.T) {
	e := newTestEnv(t, output.FormatJSON)

	require.NoError(t, runConfigSet(e.cmd, []string{"account.solution_key", "SKEY2"}))

	var got map[string]string
	e.decode(t, &got)
	assert.Equal(t, "SKEY2", got["account.solution_key"])
}

func TestConfigSet_Endpoints(t *testing.T) {
	e := newTestEnv(t, output.FormatText)

	require.NoError(t, runConfigSet(e.cmd, []string{"endpoints.device", "https://device.example.com/api/"}))
	require.NoError(t, runConfigSet(e.cmd, []string{"endpoints.auth", "http://localhost:8080"}))
	require.NoError(t, runConfigSet(e.cmd, []string{"endpoints.user", ""}))

	saved := savedConfig(t, e)
	assert.Equal(t, "https://device.example.com/api", saved.Endpoints.Device)
	assert.Equal(t, "http://localhost:8080", saved.Endpoints.Auth)
	assert.Empty(t, saved.Endpoints.User)
}

func TestConfigSet_InvalidValues(t *testing.T) {
	tests := []struct {
		path  string
		value string
	}{
		{"output.default_format", "yaml"},
		{"output.color", "purple"},
		{"logging.level", "trace"},
		{"account.platform", "gcp"},
		{"http.max_retries", "-1"},
		{"http.timeout_seconds", "0"},
		{"http.rate_per_second", "-2"},
		{"auth.auto_refresh", "maybe"},
		{"endpoints.device", "http://device.example.com"},
		{"endpoints.file", "ftp://files.example.com"},
		{"endpoints.discovery", ""},
	}

	for _, tc := range tests {
		t.Run(tc.path+"="+tc.value, func(t *testing.T) {
			e := newTestEnv(t, output.FormatText)

			err := runConfigSet(e.cmd, []string{tc.path, tc.value})
			require.ErrorIs(t, err, iotcerr.ErrConfigInvalid)
			assert.Equal(t, iotcerr.ExitConfig, ExitCode(err))
			assert.Equal(t, tc.path, iotcerr.Detail(err, "key"))
			assert.NotEmpty(t, iotcerr.Detail(err, "valid"))

			_, statErr := os.Stat(config.Path(e.cc.Cfg.GetHome()))
			assert.True(t, os.IsNotExist(statErr), "nothing is written on a rejected value")
		})
	}
}

func TestConfigSet_InsecureEndpointKeepsCause(t *testing.T) {
	e := newTestEnv(t, output.FormatText)

	err := runConfigSet(e.cmd, []string{"endpoints.auth", "http://auth.example.com"})
	require.ErrorIs(t, err, iotcerr.ErrConfigInvalid)
	assert.ErrorIs(t, err, config.ErrInsecureEndpoint)
}

func TestConfigSet_UnknownKey(t *testing.T) {
	e := newTestEnv(t, output.FormatText)

	err := runConfigSet(e.cmd, []string{"output.colour", "never"})
	require.ErrorIs(t, err, iotcerr.ErrUnknownConfigKey)
}

func TestConfigSet_UnreadableFile(t *testing.T) {
	e := newTestEnv(t, output.FormatText)
	require.NoError(t, os.WriteFile(config.Path(e.cc.Cfg.GetHome()), []byte("output: [broken\n"), 0o600))

	err := runConfigSet(e.cmd, []string{"output.color", "never"})
	require.ErrorIs(t, err, iotcerr.ErrConfigInvalid)
}

func TestConfigShow(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		e := newTestEnv(t, output.FormatText)

		require.NoError(t, runConfigShow(e.cmd, nil))

		text := e.out.String()
		assert.Contains(t, text, "PATH")
		assert.Contains(t, text, "account.platform")
		assert.Contains(t, text, "(not set)")
	})

	t.Run("json", func(t *testing.T) {
		e := newTestEnv(t, output.FormatJSON)

		require.NoError(t, runConfigShow(e.cmd, nil))

		var got map[string]string
		e.decode(t, &got)
		assert.Len(t, got, len(configKeys))
		assert.Equal(t, config.PlatformAWS, got["account.platform"])
		assert.Empty(t, got["account.solution_key"])
	})
}

func TestConfigInit(t *testing.T) {
	e := newTestEnv(t, output.FormatJSON)
	setFlag(t, &configForce, false)
	path := config.Path(e.cc.Cfg.GetHome())

	require.NoError(t, runConfigInit(e.cmd, nil))

	var got map[string]string
	e.decode(t, &got)
	assert.Equal(t, path, got["path"])
	assert.FileExists(t, path)
	assert.Equal(t, e.cc.Cfg.Home, savedConfig(t, e).Home)

	t.Run("refuses to overwrite", func(t *testing.T) {
		err := runConfigInit(e.cmd, nil)
		require.ErrorIs(t, err, iotcerr.ErrConfig)
		assert.Equal(t, iotcerr.ExitConfig, ExitCode(err))

		var ie *iotcerr.IotcError
		require.True(t, iotcerr.As(err, &ie))
		assert.Contains(t, ie.Suggestion, "--force")
	})

	t.Run("force overwrites", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("output:\n  color: never\n"), 0o600))
		setFlag(t, &configForce, true)

		require.NoError(t, runConfigInit(e.cmd, nil))
		assert.Equal(t, "auto", savedConfig(t, e).Output.Color)
	})
}

func TestConfigInit_Text(t *testing.T) {
	e := newTestEnv(t, output.FormatText)
	setFlag(t, &configForce, false)

	require.NoError(t, runConfigInit(e.cmd, nil))
	assert.Contains(t, e.out.String(), "Configuration initialized at")
	assert.Contains(t, e.out.String(), "iotc config set")
}

func TestCompleteConfigKeys(t *testing.T) {
	paths, directive := completeConfigKeys(nil, nil, "")
	assert.Len(t, paths, len(configKeys))
	assert.Contains(t, paths, "logging.level")
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)

	paths, _ = completeConfigKeys(nil, []string{"logging.level"}, "")
	assert.Empty(t, paths)
}
