package session

import (
	"github.com/golang-jwt/jwt/v5"

	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// UserClaims is the IoTConnect user block carried in the access token.
type UserClaims struct {
	ID           string `json:"id"`
	CompanyID    string `json:"companyId"`
	RoleID       string `json:"roleId"`
	RoleName     string `json:"roleName"`
	CPID         string `json:"cpId"`
	EntityGUID   string `json:"entityGuid"`
	SolutionGUID string `json:"solutionGuid"`
	SolutionKey  string `json:"solutionKey"`
}

// Claims are the access token claims the client reads. The signature is not
// verified: the token is only ever checked by the server that issued it.
type Claims struct {
	jwt.RegisteredClaims

	User UserClaims `json:"user"`
}

// DecodeClaims parses token without verifying it.
func DecodeClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, iotcerr.WithCause(
			iotcerr.WithMessage(iotcerr.ErrMalformedResponse, "access token is not a readable JWT"),
			err,
		)
	}
	return claims, nil
}
