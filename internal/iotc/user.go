package iotc

import (
	"context"
	"net/http"
	"net/url"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/api"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/metrics"
)

// User is an account user.
type User struct {
	GUID        string `json:"guid"`
	UserID      string `json:"userId"`
	CompanyGUID string `json:"companyGuid"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	RoleName    string `json:"roleName,omitempty"`
}

// UserService reads account users.
type UserService struct{ *service }

// List returns every user of the account.
func (s *UserService) List(ctx context.Context) ([]User, error) {
	resp, err := s.do(ctx, &api.Request{
		BaseURL: s.endpoints.User,
		Path:    "/User",
		Service: metrics.ServiceUser,
	})
	if err != nil {
		return nil, err
	}
	return api.DecodeList[User](resp)
}

// GetByGUID returns the user with the given GUID, or nil.
func (s *UserService) GetByGUID(ctx context.Context, guid string) (*User, error) {
	if err := requireGUID("user lookup", "user guid", guid); err != nil {
		return nil, err
	}
	resp, err := s.do(ctx, &api.Request{
		BaseURL: s.endpoints.User,
		Path:    "/User/" + url.PathEscape(guid),
		Service: metrics.ServiceUser,
	})
	if err != nil {
		return nil, err
	}
	return api.DecodeOne[User](resp)
}

// GetByEmail returns the user registered with email, or nil when the
// address is not in use.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*User, error) {
	if err := required("user lookup", "email", email); err != nil {
		return nil, err
	}
	resp, err := s.do(ctx, &api.Request{
		BaseURL:  s.endpoints.User,
		Path:     "/User/" + url.PathEscape(email) + "/availability",
		OKStatus: []int{http.StatusOK, http.StatusNoContent},
		Service:  metrics.ServiceUser,
	})
	if err != nil {
		return nil, err
	}
	return api.DecodeOne[User](resp)
}
