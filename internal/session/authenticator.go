package session

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/api"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/metrics"
	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// Auth service paths, relative to the auth endpoint.
const (
	pathBasicToken = "/Auth/basic-token"
	pathLogin      = "/Auth/login"
	pathRefresh    = "/Auth/refresh-token"
)

// HTTPAuthenticator talks to the IoTConnect auth service.
type HTTPAuthenticator struct {
	client  *api.Client
	baseURL func() string
}

var _ Authenticator = (*HTTPAuthenticator)(nil)

// NewHTTPAuthenticator returns an authenticator that sends its calls through
// client. baseURL is consulted on every call so that a re-discovery takes
// effect without rebuilding the manager.
func NewHTTPAuthenticator(client *api.Client, baseURL func() string) *HTTPAuthenticator {
	return &HTTPAuthenticator{client: client, baseURL: baseURL}
}

// BasicToken implements Authenticator.
func (a *HTTPAuthenticator) BasicToken(ctx context.Context) (string, error) {
	h := make(http.Header)
	h.Set(api.HeaderAccept, api.ContentTypeJSON)

	resp, err := a.client.Do(ctx, &api.Request{
		Method:  http.MethodGet,
		BaseURL: a.baseURL(),
		Path:    pathBasicToken,
		Header:  h,
		Service: metrics.ServiceAuth,
	})
	if err != nil {
		return "", err
	}

	var token string
	if err := json.Unmarshal(resp.Envelope.Data, &token); err != nil || token == "" {
		return "", iotcerr.WithMessage(iotcerr.ErrMalformedResponse, "basic token missing from response")
	}
	return token, nil
}

// Login implements Authenticator.
func (a *HTTPAuthenticator) Login(ctx context.Context, basicToken string, creds Credentials) (*TokenGrant, error) {
	h := make(http.Header)
	h.Set(api.HeaderAccept, api.ContentTypeJSON)
	h.Set(api.HeaderContentType, api.ContentTypeJSON)
	h.Set(api.HeaderAuthorization, "Basic "+basicToken)
	h.Set("Solution-key", creds.SolutionKey)

	resp, err := a.client.Do(ctx, &api.Request{
		Method:  http.MethodPost,
		BaseURL: a.baseURL(),
		Path:    pathLogin,
		Header:  h,
		Body: map[string]string{
			"username": creds.Username,
			"password": creds.Password,
		},
		Service: metrics.ServiceAuth,
	})
	if err != nil {
		if api.StatusCode(err) == http.StatusUnauthorized {
			return nil, iotcerr.WithSuggestion(err, "Check the username, password and solution key")
		}
		return nil, err
	}
	return parseGrant(resp)
}

// Refresh implements Authenticator.
func (a *HTTPAuthenticator) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenGrant, error) {
	h := make(http.Header)
	h.Set(api.HeaderAccept, api.ContentTypeJSON)
	h.Set(api.HeaderContentType, api.ContentTypeJSON)
	h.Set(api.HeaderAuthorization, "Bearer "+accessToken)

	resp, err := a.client.Do(ctx, &api.Request{
		Method:  http.MethodPost,
		BaseURL: a.baseURL(),
		Path:    pathRefresh,
		Header:  h,
		Body:    map[string]string{"refreshtoken": refreshToken},
		Service: metrics.ServiceAuth,
	})
	if err != nil {
		return nil, err
	}
	return parseGrant(resp)
}

type grantBody struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    json.Number `json:"expires_in"`
}

// parseGrant reads a grant from the top level of the body or, failing
// that, from its data member.
func parseGrant(resp *api.Response) (*TokenGrant, error) {
	var top grantBody
	if err := resp.Decode(&top); err != nil {
		return nil, err
	}
	g := top
	if g.AccessToken == "" && len(resp.Envelope.Data) > 0 {
		var nested grantBody
		if err := json.Unmarshal(resp.Envelope.Data, &nested); err == nil {
			g = nested
		}
	}
	if g.AccessToken == "" {
		return nil, iotcerr.WithMessage(iotcerr.ErrMalformedResponse, "access token missing from response")
	}

	grant := &TokenGrant{AccessToken: g.AccessToken, RefreshToken: g.RefreshToken}
	if g.ExpiresIn != "" {
		secs, err := strconv.ParseFloat(g.ExpiresIn.String(), 64)
		if err != nil {
			return nil, iotcerr.WithMessage(iotcerr.ErrMalformedResponse, "invalid expires_in %q", g.ExpiresIn)
		}
		grant.ExpiresIn = time.Duration(secs * float64(time.Second))
	}
	return grant, nil
}
