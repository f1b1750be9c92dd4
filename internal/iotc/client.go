// Package iotc provides typed wrappers over the IoTConnect REST resources:
// device templates, devices, entities, users, firmware, firmware upgrades
// and stored files. Every call goes through an api.Client that supplies the
// session's authentication headers.
package iotc

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/api"
	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// Doer executes API requests. *api.Client implements it.
type Doer interface {
	Do(ctx context.Context, req *api.Request) (*api.Response, error)
}

var _ Doer = (*api.Client)(nil)

// Client groups the resource services of one account.
type Client struct {
	Templates *TemplateService
	Devices   *DeviceService
	Entities  *EntityService
	Users     *UserService
	Firmware  *FirmwareService
	Upgrades  *UpgradeService
	Files     *FileService
}

// service is the shared base of every resource service.
type service struct {
	doer      Doer
	endpoints *api.Endpoints
}

// New returns a Client that sends requests through doer to the given
// endpoints.
func New(doer Doer, endpoints *api.Endpoints) *Client {
	if endpoints == nil {
		endpoints = &api.Endpoints{}
	}
	s := &service{doer: doer, endpoints: endpoints}
	c := &Client{
		Templates: &TemplateService{s},
		Devices:   &DeviceService{service: s},
		Entities:  &EntityService{s},
		Users:     &UserService{s},
		Firmware:  &FirmwareService{s},
		Upgrades:  &UpgradeService{s},
		Files:     &FileService{s},
	}
	c.Devices.entities = c.Entities
	return c
}

// CreateResult is the identifier block returned by create calls.
type CreateResult struct {
	NewID               string `json:"newId"`
	FirmwareUpgradeGUID string `json:"firmwareUpgradeGuid,omitempty"`
}

// do sends req and returns the response.
func (s *service) do(ctx context.Context, req *api.Request) (*api.Response, error) {
	return s.doer.Do(ctx, req)
}

// expectEmpty checks that a mutation answered with no more than one data
// element, as deletes and state changes do.
func expectEmpty(resp *api.Response) error {
	_, err := api.DecodeOne[map[string]any](resp)
	return err
}

// required returns a usage error naming op and arg when value is blank.
func required(op, arg, value string) error {
	if strings.TrimSpace(value) == "" {
		return iotcerr.WithMessage(iotcerr.ErrUsage, "%s: the %s argument is missing", op, arg)
	}
	return nil
}

// ValidGUID reports whether s is a well-formed GUID.
func ValidGUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// NormalizeGUID returns s upper-cased in canonical form. IoTConnect lookups
// compare GUIDs in upper case.
func NormalizeGUID(s string) string {
	if id, err := uuid.Parse(s); err == nil {
		return strings.ToUpper(id.String())
	}
	return strings.ToUpper(s)
}

// NewGUID returns a random GUID in IoTConnect form.
func NewGUID() string {
	return strings.ToUpper(uuid.NewString())
}

// sameGUID compares GUIDs case-insensitively.
func sameGUID(a, b string) bool {
	return strings.EqualFold(a, b)
}

// requireGUID is required plus a format check.
func requireGUID(op, arg, value string) error {
	if err := required(op, arg, value); err != nil {
		return err
	}
	if !ValidGUID(value) {
		return iotcerr.WithMessage(iotcerr.ErrUsage, "%s: %q is not a valid %s", op, value, arg)
	}
	return nil
}

func notFound(kind, key, value string) error {
	return iotcerr.WithDetails(
		iotcerr.WithMessage(iotcerr.ErrNotFound, "%s not found", kind),
		map[string]string{key: value},
	)
}
