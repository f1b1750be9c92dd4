package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/metrics"
	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// staticHeaders is a HeaderProvider returning a fixed bearer token.
type staticHeaders struct {
	token string
	err   error
	calls atomic.Int32
}

var _ HeaderProvider = (*staticHeaders)(nil)

func (s *staticHeaders) AuthHeaders(context.Context) (http.Header, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	h := make(http.Header)
	h.Set(HeaderAuthorization, "Bearer "+s.token)
	return h, nil
}

// recordingLogger captures log lines.
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Debug(format string, args ...any) {
	l.add("DEBUG " + fmt.Sprintf(format, args...))
}
func (l *recordingLogger) Error(format string, args ...any) {
	l.add("ERROR " + fmt.Sprintf(format, args...))
}

func (l *recordingLogger) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, s)
}

func (l *recordingLogger) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}

func fastRetry() *RetryConfig {
	return &RetryConfig{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func newTestClient(t *testing.T, server *httptest.Server, headers HeaderProvider) (*Client, *metrics.Metrics) {
	t.Helper()
	m := &metrics.Metrics{}
	return NewClient(&Options{
		HTTPClient:  server.Client(),
		Headers:     headers,
		Retry:       fastRetry(),
		RateLimiter: NewRateLimiter(0, 1),
		Metrics:     m,
	}), m
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()
	c := NewClient(nil)
	require.NotNil(t, c.httpClient)
	assert.Equal(t, httpTimeout, c.httpClient.Timeout)
	assert.Equal(t, DefaultRetryConfig(), c.retry)
	assert.Same(t, metrics.Global, c.metrics)
	assert.NotNil(t, c.rateLimiter)

	custom := &http.Client{Timeout: time.Second}
	c = NewClient(&Options{HTTPClient: custom})
	assert.Same(t, custom, c.httpClient)
}

func TestDo_DefaultHeadersAndMethod(t *testing.T) {
	t.Parallel()

	var gotMethod, gotAuth, gotAccept, gotContentType string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get(HeaderAuthorization)
		gotAccept = r.Header.Get(HeaderAccept)
		gotContentType = r.Header.Get(HeaderContentType)
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
		}
		writeJSON(w, http.StatusOK, `{"status":200,"data":[]}`)
	}))
	defer server.Close()

	headers := &staticHeaders{token: "A1"}
	c, m := newTestClient(t, server, headers)

	t.Run("GET without body", func(t *testing.T) {
		_, err := c.Do(context.Background(), &Request{BaseURL: server.URL, Path: "/Device/lookup", Service: metrics.ServiceDevice})
		require.NoError(t, err)
		assert.Equal(t, http.MethodGet, gotMethod)
		assert.Equal(t, "Bearer A1", gotAuth)
		assert.Equal(t, ContentTypeJSON, gotAccept)
		assert.Empty(t, gotContentType)
	})

	t.Run("POST with body", func(t *testing.T) {
		_, err := c.Do(context.Background(), &Request{
			BaseURL: server.URL,
			Path:    "/Device",
			Body:    map[string]string{"uniqueId": "dev1"},
		})
		require.NoError(t, err)
		assert.Equal(t, http.MethodPost, gotMethod)
		assert.Equal(t, ContentTypeJSON, gotContentType)
		assert.Equal(t, "dev1", gotBody["uniqueId"])
	})

	assert.Equal(t, int32(2), headers.calls.Load())
	assert.Equal(t, int64(2), m.APICallsTotal())
}

func TestDo_ExplicitHeaderSkipsAuth(t *testing.T) {
	t.Parallel()

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get(HeaderAuthorization)
		writeJSON(w, http.StatusOK, `{"data":"basic"}`)
	}))
	defer server.Close()

	headers := &staticHeaders{token: "A1"}
	c, _ := newTestClient(t, server, headers)

	resp, err := c.Do(context.Background(), &Request{BaseURL: server.URL, Path: "/Auth/basic-token", Header: http.Header{}})
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
	assert.Equal(t, int32(0), headers.calls.Load())
	assert.JSONEq(t, `"basic"`, string(resp.Envelope.Data))
}

func TestDo_NoHeaderProvider(t *testing.T) {
	t.Parallel()
	c := NewClient(&Options{Metrics: &metrics.Metrics{}})
	_, err := c.Do(context.Background(), &Request{BaseURL: "http://127.0.0.1:1", Path: "/x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, iotcerr.ErrUsage)
}

func TestDo_HeaderProviderError(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusOK, `{}`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, &staticHeaders{err: iotcerr.ErrAuthentication})
	_, err := c.Do(context.Background(), &Request{BaseURL: server.URL, Path: "/x"})
	require.ErrorIs(t, err, iotcerr.ErrAuthentication)
	assert.Equal(t, int32(0), hits.Load(), "no request may be sent without valid credentials")
}

func TestDo_MissingBaseURL(t *testing.T) {
	t.Parallel()
	c := NewClient(&Options{Headers: &staticHeaders{token: "x"}})
	_, err := c.Do(context.Background(), &Request{Path: "/Device/lookup", Service: metrics.ServiceDevice})
	require.ErrorIs(t, err, iotcerr.ErrUsage)
	assert.Contains(t, err.Error(), "the device service")

	var ie *iotcerr.IotcError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, ie.Suggestion, "iotc configure")
}

func TestDo_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		sentinel   error
		message    string
		wantStatus int
	}{
		{
			name:       "envelope 401 is an auth error",
			status:     http.StatusUnauthorized,
			body:       `{"status":401,"message":"Unauthorized"}`,
			sentinel:   iotcerr.ErrAuthentication,
			message:    `Server reported message: "Unauthorized."`,
			wantStatus: 401,
		},
		{
			name:       "HTTP 401 without envelope",
			status:     http.StatusUnauthorized,
			body:       `{"error":"nope"}`,
			sentinel:   iotcerr.ErrAuthentication,
			message:    "Bad HTTP response status: 401",
			wantStatus: 401,
		},
		{
			name:       "envelope 401 with HTTP 400",
			status:     http.StatusBadRequest,
			body:       `{"status":401}`,
			sentinel:   iotcerr.ErrAuthentication,
			message:    "The server returned HTTP code 401.",
			wantStatus: 400,
		},
		{
			name:       "message and error list",
			status:     http.StatusBadRequest,
			body:       `{"status":400,"message":"Validation failed","error":["name required",{"field":"code"}]}`,
			sentinel:   iotcerr.ErrResponse,
			message:    `Server reported message: "Validation failed." Errors: name required {"field":"code"}`,
			wantStatus: 400,
		},
		{
			name:       "no message",
			status:     http.StatusInternalServerError,
			body:       `{"status":500}`,
			sentinel:   iotcerr.ErrResponse,
			message:    "The server returned HTTP code 500.",
			wantStatus: 500,
		},
		{
			name:       "not found",
			status:     http.StatusNotFound,
			body:       `{"status":404,"message":"Not found"}`,
			sentinel:   iotcerr.ErrNotFound,
			message:    `Server reported message: "Not found."`,
			wantStatus: 404,
		},
		{
			name:       "conflict",
			status:     http.StatusConflict,
			body:       `{"status":409,"message":"exists"}`,
			sentinel:   iotcerr.ErrConflict,
			message:    `Server reported message: "exists."`,
			wantStatus: 409,
		},
		{
			name:       "no envelope status",
			status:     http.StatusTeapot,
			body:       `{"data":[]}`,
			sentinel:   iotcerr.ErrResponse,
			message:    "Bad HTTP response status: 418",
			wantStatus: 418,
		},
		{
			name:       "empty object",
			status:     http.StatusBadRequest,
			body:       `{}`,
			sentinel:   iotcerr.ErrResponse,
			message:    "Unable to obtain response",
			wantStatus: 400,
		},
		{
			name:       "empty body",
			status:     http.StatusForbidden,
			body:       ``,
			sentinel:   iotcerr.ErrResponse,
			message:    "Unable to obtain response",
			wantStatus: 403,
		},
		{
			name:       "not JSON",
			status:     http.StatusBadGateway,
			body:       `<html>bad gateway</html>`,
			sentinel:   iotcerr.ErrMalformedResponse,
			message:    "API request failed. Status: 502 (Bad Gateway)",
			wantStatus: 502,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tt.status, tt.body)
			}))
			defer server.Close()

			c, m := newTestClient(t, server, &staticHeaders{token: "A1"})
			// POST so that 5xx statuses are not retried.
			_, err := c.Do(context.Background(), &Request{BaseURL: server.URL, Path: "/x", Body: map[string]int{}})
			require.Error(t, err)
			require.ErrorIs(t, err, tt.sentinel)
			assert.Contains(t, err.Error(), tt.message)
			assert.Equal(t, tt.wantStatus, StatusCode(err))
			assert.Equal(t, int64(1), m.APIErrorsTotal())
		})
	}
}

func TestDo_OKStatusAndAllowFailure(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/nocontent" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusBadRequest, `{"status":400,"message":"bad"}`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, &staticHeaders{token: "A1"})

	resp, err := c.Do(context.Background(), &Request{
		BaseURL:  server.URL,
		Path:     "/nocontent",
		OKStatus: []int{http.StatusNoContent},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.Status)

	_, err = c.Do(context.Background(), &Request{BaseURL: server.URL, Path: "/nocontent"})
	require.ErrorIs(t, err, iotcerr.ErrResponse)

	resp, err = c.Do(context.Background(), &Request{BaseURL: server.URL, Path: "/bad", AllowFailure: true})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "bad", resp.Envelope.Message())
}

func TestDo_QueryString(t *testing.T) {
	t.Parallel()
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		writeJSON(w, http.StatusOK, `{"status":200}`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, &staticHeaders{token: "A1"})
	_, err := c.Do(context.Background(), &Request{
		BaseURL: server.URL + "/",
		Path:    "/x",
		Query:   map[string][]string{"pf": {"aws"}, "version": {"2.1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "pf=aws&version=2.1", gotQuery)
}

func TestDo_RetriesIdempotentServerErrors(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, `{"status":503}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"status":200,"data":{"ok":true}}`)
	}))
	defer server.Close()

	c, m := newTestClient(t, server, &staticHeaders{token: "A1"})
	resp, err := c.Do(context.Background(), &Request{BaseURL: server.URL, Path: "/x"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, int64(2), m.Snapshot().APIRetries)
}

func TestDo_RetriesExhausted(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		writeJSON(w, http.StatusBadGateway, `{"status":502,"message":"upstream down"}`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, &staticHeaders{token: "A1"})
	_, err := c.Do(context.Background(), &Request{BaseURL: server.URL, Path: "/x", Method: http.MethodDelete})
	require.ErrorIs(t, err, iotcerr.ErrResponse)
	assert.Contains(t, err.Error(), "upstream down")
	assert.Equal(t, 502, StatusCode(err))
	assert.Equal(t, int32(4), attempts.Load())
}

func TestDo_PostNotRetried(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, `{"status":503}`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, &staticHeaders{token: "A1"})
	_, err := c.Do(context.Background(), &Request{BaseURL: server.URL, Path: "/x", Body: map[string]string{}})
	require.ErrorIs(t, err, iotcerr.ErrResponse)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestDo_NetworkError(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := server.URL
	server.Close()

	m := &metrics.Metrics{}
	c := NewClient(&Options{
		Headers:     &staticHeaders{token: "A1"},
		Retry:       fastRetry(),
		RateLimiter: NewRateLimiter(0, 1),
		Metrics:     m,
	})
	_, err := c.Do(context.Background(), &Request{BaseURL: base, Path: "/x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, iotcerr.ErrNetwork)
	assert.Equal(t, int64(1), m.APIErrorsTotal())
	assert.Equal(t, int64(4), m.Snapshot().APIRetries)
}

func TestDo_ContextCanceled(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, &staticHeaders{token: "A1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Do(ctx, &Request{BaseURL: server.URL, Path: "/x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_MultipartUpload(t *testing.T) {
	t.Parallel()

	var (
		gotRef, gotModule, gotFileName string
		gotContent                     []byte
		gotAuth                        string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get(HeaderAuthorization)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, `{"status":400}`)
			return
		}
		gotRef = r.FormValue("fileRefGuid")
		gotModule = r.FormValue("ModuleType")
		f, hdr, err := r.FormFile("fileData")
		if err == nil {
			gotFileName = hdr.Filename
			gotContent, _ = io.ReadAll(f)
			_ = f.Close()
		}
		writeJSON(w, http.StatusOK, `{"status":200,"data":[{"newId":"f-1"}]}`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, &staticHeaders{token: "A1"})
	resp, err := c.Do(context.Background(), &Request{
		BaseURL: server.URL,
		Path:    "/File",
		Form:    map[string]string{"fileRefGuid": "ref-1", "ModuleType": "firmware"},
		Files:   []FormFile{{Field: "fileData", FileName: "fw.bin", Data: []byte("firmware-bytes")}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer A1", gotAuth)
	assert.Equal(t, "ref-1", gotRef)
	assert.Equal(t, "firmware", gotModule)
	assert.Equal(t, "fw.bin", gotFileName)
	assert.Equal(t, "firmware-bytes", string(gotContent))

	type result struct {
		NewID string `json:"newId"`
	}
	one, err := DecodeOne[result](resp)
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.Equal(t, "f-1", one.NewID)
}

func TestDo_TraceMasksPassword(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":200}`)
	}))
	defer server.Close()

	logger := &recordingLogger{}
	c := NewClient(&Options{
		HTTPClient:  server.Client(),
		Logger:      logger,
		Trace:       true,
		RateLimiter: NewRateLimiter(0, 1),
		Metrics:     &metrics.Metrics{},
	})

	_, err := c.Do(context.Background(), &Request{
		BaseURL: server.URL,
		Path:    "/Auth/login",
		Header:  http.Header{},
		Body:    map[string]string{"username": "me@example.com", "password": "hunter2"},
	})
	require.NoError(t, err)

	out := logger.String()
	assert.Contains(t, out, "POST "+server.URL+"/Auth/login")
	assert.Contains(t, out, "me@example.com")
	assert.Contains(t, out, maskedValue)
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "Response: status=200")
}

func TestDo_TraceMasksTokens(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":200,"data":{"access_token":"NEW-ACCESS","refresh_token":"NEW-REFRESH","expires_in":3600}}`)
	}))
	defer server.Close()

	logger := &recordingLogger{}
	c := NewClient(&Options{
		HTTPClient:  server.Client(),
		Logger:      logger,
		Trace:       true,
		RateLimiter: NewRateLimiter(0, 1),
		Metrics:     &metrics.Metrics{},
	})

	_, err := c.Do(context.Background(), &Request{
		BaseURL: server.URL,
		Path:    "/Auth/refresh-token",
		Header:  http.Header{},
		Body:    map[string]string{"refreshtoken": "OLD-REFRESH"},
	})
	require.NoError(t, err)

	out := logger.String()
	assert.Contains(t, out, "POST "+server.URL+"/Auth/refresh-token")
	assert.Contains(t, out, `"expires_in":3600`)
	for _, secret := range []string{"OLD-REFRESH", "NEW-ACCESS", "NEW-REFRESH"} {
		assert.NotContains(t, out, secret)
	}
}

func TestMaskJSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"top level", `{"password":"p","user":"u"}`, `{"password":"*******","user":"u"}`},
		{"nested in an array", `{"data":[{"Access_Token":"a"}]}`, `{"data":[{"Access_Token":"*******"}]}`},
		{"nothing to hide", `{"data":{"id":"x"}}`, `{"data":{"id":"x"}}`},
		{"not json", `oops`, `oops`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, maskJSON([]byte(tc.in), secretKeys...))
		})
	}
}

func TestWithHeaders(t *testing.T) {
	t.Parallel()
	base := NewClient(nil)
	p := &staticHeaders{token: "x"}
	derived := base.WithHeaders(p)

	assert.Nil(t, base.headers)
	assert.Equal(t, HeaderProvider(p), derived.headers)
	assert.Same(t, base.httpClient, derived.httpClient)
	assert.Same(t, base.rateLimiter, derived.rateLimiter)
}

func TestHeaderProviderFunc(t *testing.T) {
	t.Parallel()
	f := HeaderProviderFunc(func(context.Context) (http.Header, error) {
		return http.Header{HeaderAuthorization: {"Bearer fn"}}, nil
	})
	h, err := f.AuthHeaders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer fn", h.Get(HeaderAuthorization))
}

func TestStatusCode(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, StatusCode(nil))
	assert.Equal(t, 0, StatusCode(iotcerr.ErrResponse))
	assert.Equal(t, 404, StatusCode(iotcerr.WithDetails(iotcerr.ErrNotFound, map[string]string{"status": "404"})))
}
