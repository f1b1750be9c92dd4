package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/api"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/config"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/metrics"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/output"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/session"
)

const (
	testSolutionKey = "SKEY"
	testUsername    = "alice@example.com"
	testPassword    = "secret"

	testUserGUID     = "44444444-5555-4666-8777-888888888888"
	testTemplateGUID = "5B3F2C1A-9D4E-4F6A-8B7C-0D1E2F3A4B5C"
	testDeviceGUID   = "11111111-2222-4333-8444-555555555555"
	testEntityRoot   = "AAAAAAAA-BBBB-4CCC-8DDD-EEEEEEEEEEEE"
	testEntityChild  = "AAAAAAAA-BBBB-4CCC-8DDD-FFFFFFFFFFFF"
	testFirmwareGUID = "22222222-3333-4444-8555-666666666666"
	testUpgradeGUID  = "33333333-4444-4555-8666-777777777777"
	testFileGUID     = "0B7D7C2E-55A4-4D0F-8C11-3E9F7A6B2D40"
)

// testRoute is a canned answer.
type testRoute struct {
	status int
	body   any
}

// testAPI serves discovery, auth and resource calls from one httptest
// server. Every service lives under its own path prefix.
type testAPI struct {
	srv *httptest.Server

	mu     sync.Mutex
	routes map[string]testRoute
	calls  []string
	bodies map[string]string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	a := &testAPI{routes: make(map[string]testRoute), bodies: make(map[string]string)}
	a.srv = httptest.NewServer(http.HandlerFunc(a.serve))
	t.Cleanup(a.srv.Close)

	token := testAccessToken(t)
	a.on("GET /auth/Auth/basic-token", http.StatusOK, map[string]any{"status": 200, "data": "BASIC"})
	a.on("POST /auth/Auth/login", http.StatusOK, map[string]any{
		"access_token": token, "refresh_token": "R1", "expires_in": 3600,
	})
	a.on("POST /auth/Auth/refresh-token", http.StatusOK, map[string]any{
		"access_token": token, "refresh_token": "R2", "expires_in": 7200,
	})
	a.on("GET /discovery/api/uisdk/solutionkey/"+testSolutionKey+"/env/poc", http.StatusOK, map[string]any{
		"status": 200,
		"data": map[string]string{
			"authBaseUrl":     a.srv.URL + "/auth/",
			"userBaseUrl":     a.srv.URL + "/user/",
			"deviceBaseUrl":   a.srv.URL + "/device/",
			"firmwareBaseUrl": a.srv.URL + "/firmware/",
			"fileBaseUrl":     a.srv.URL + "/file/",
		},
	})
	return a
}

// on registers body as the answer to key, "METHOD /path".
func (a *testAPI) on(key string, status int, body any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes[key] = testRoute{status: status, body: body}
}

// data registers a 200 envelope carrying v.
func (a *testAPI) data(key string, v any) {
	a.on(key, http.StatusOK, map[string]any{"status": 200, "data": v})
}

func (a *testAPI) called(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.calls {
		if c == key {
			return true
		}
	}
	return false
}

// body returns the last request body sent to key.
func (a *testAPI) body(key string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bodies[key]
}

func (a *testAPI) serve(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	raw, _ := io.ReadAll(r.Body)

	a.mu.Lock()
	a.calls = append(a.calls, key)
	a.bodies[key] = string(raw)
	route, ok := a.routes[key]
	a.mu.Unlock()

	if !ok {
		route = testRoute{status: http.StatusNotFound, body: map[string]any{"status": 404, "message": "no route for " + key}}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(route.status)
	_ = json.NewEncoder(w).Encode(route.body)
}

func (a *testAPI) endpoints() *api.Endpoints {
	return &api.Endpoints{
		Auth:     a.srv.URL + "/auth",
		User:     a.srv.URL + "/user",
		Device:   a.srv.URL + "/device",
		Firmware: a.srv.URL + "/firmware",
		File:     a.srv.URL + "/file",
	}
}

// testAccessToken returns a JWT carrying IoTConnect style user claims.
func testAccessToken(t *testing.T) string {
	t.Helper()
	claims := session.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "iotconnect", Subject: testUserGUID},
		User: session.UserClaims{
			ID:          testUserGUID,
			CompanyID:   "C0FFEE00-0000-4000-8000-000000000001",
			RoleName:    "Admin",
			CPID:        "CPID1",
			SolutionKey: testSolutionKey,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

// testEnv is a command context wired to a testAPI, with captured output.
type testEnv struct {
	api    *testAPI
	cc     *CommandContext
	cmd    *cobra.Command
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newTestEnv(t *testing.T, format output.Format) *testEnv {
	t.Helper()
	a := newTestAPI(t)

	cfg := config.Defaults()
	cfg.Home = t.TempDir()
	cfg.Endpoints.Discovery = a.srv.URL + "/discovery"
	cfg.HTTP.MaxRetries = 0
	cfg.HTTP.RatePerSecond = 0
	cfg.HTTP.TimeoutSeconds = 5

	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	cc := NewCommandContext(cfg, config.NullLogger(), output.NewFormatter(format, out), output.NewMessenger(out, errOut, false))
	cc.HTTPClient = a.srv.Client()
	cc.Metrics = &metrics.Metrics{}

	cmd := &cobra.Command{Use: "test"}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetContext(context.Background())
	SetCmdContext(cmd, cc)

	nonInteractive(t)
	return &testEnv{api: a, cc: cc, cmd: cmd, out: out, errOut: errOut}
}

// login stores discovered endpoints and authenticates against the fake
// auth service.
func (e *testEnv) login(t *testing.T) {
	t.Helper()
	e.cc.SetEndpoints(e.api.endpoints())
	require.NoError(t, e.cc.Session().Authenticate(context.Background(), testUsername, testPassword, testSolutionKey))
}

// decode unmarshals the captured JSON output into v.
func (e *testEnv) decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.out.Bytes(), v), "output: %s", e.out.String())
}

// nonInteractive makes stdin look like a pipe for the test.
func nonInteractive(t *testing.T) {
	t.Helper()
	orig := stdinIsTerminal
	stdinIsTerminal = func() bool { return false }
	t.Cleanup(func() { stdinIsTerminal = orig })
}

// interactive makes stdin look like a terminal and answers prompts from
// answers, keyed by prompt text.
func interactive(t *testing.T, answers map[string]string) *[]string {
	t.Helper()
	var asked []string
	origTTY, origLine, origPass := stdinIsTerminal, promptLineFn, promptPasswordFn
	stdinIsTerminal = func() bool { return true }
	answer := func(prompt string) (string, error) {
		asked = append(asked, strings.TrimSpace(prompt))
		return answers[prompt], nil
	}
	promptLineFn = answer
	promptPasswordFn = answer
	t.Cleanup(func() {
		stdinIsTerminal, promptLineFn, promptPasswordFn = origTTY, origLine, origPass
	})
	return &asked
}

// setFlag sets a package-level flag variable for one test.
func setFlag[T any](t *testing.T, p *T, v T) {
	t.Helper()
	orig := *p
	*p = v
	t.Cleanup(func() { *p = orig })
}
