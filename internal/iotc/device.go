package iotc

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/api"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/metrics"
	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// Device authentication types.
const (
	AuthCASigned     = 2
	AuthSelfSigned   = 3
	AuthTPM          = 4
	AuthSymmetric    = 5
	AuthCAIndividual = 7
)

// Device is a device as returned by the lookup call.
type Device struct {
	GUID             string `json:"guid"`
	UniqueID         string `json:"uniqueId"`
	DisplayName      string `json:"displayName"`
	IsAcquired       int    `json:"isAcquired"`
	IsActive         bool   `json:"isActive"`
	IsEdgeSupport    bool   `json:"isEdgeSupport"`
	IsParentAcquired bool   `json:"isParentAcquired"`
	TemplateGUID     string `json:"deviceTemplateGuid"`
	MessageVersion   string `json:"messageVersion"`
}

// DeviceService manages devices.
type DeviceService struct {
	*service

	entities *EntityService
}

// List returns every device of the account.
func (s *DeviceService) List(ctx context.Context) ([]Device, error) {
	resp, err := s.do(ctx, &api.Request{
		BaseURL: s.endpoints.Device,
		Path:    "/Device/lookup",
		Service: metrics.ServiceDevice,
	})
	if err != nil {
		return nil, err
	}
	return api.DecodeList[Device](resp)
}

// GetByDUID returns the device with the given unique ID, or nil.
func (s *DeviceService) GetByDUID(ctx context.Context, duid string) (*Device, error) {
	if err := required("device lookup", "device unique ID (DUID)", duid); err != nil {
		return nil, err
	}
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return api.FindOne(list, func(d Device) bool { return d.UniqueID == duid })
}

// DeviceCreate describes a new device.
type DeviceCreate struct {
	TemplateGUID string
	DUID         string
	// Certificate is the PEM device certificate. Required unless CAAuth.
	Certificate string
	// CAAuth is set for templates using CA signed authentication.
	CAAuth bool
	// Name defaults to DUID.
	Name string
	// EntityGUID defaults to the account's root entity.
	EntityGUID string
}

func (dc DeviceCreate) validate() error {
	var missing []string
	if strings.TrimSpace(dc.TemplateGUID) == "" {
		missing = append(missing, "template guid")
	}
	if strings.TrimSpace(dc.DUID) == "" {
		missing = append(missing, "device unique ID (DUID)")
	}
	if dc.Certificate == "" && !dc.CAAuth {
		missing = append(missing, "device certificate")
	}
	if len(missing) > 0 {
		return iotcerr.WithMessage(iotcerr.ErrUsage, "device create: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Create registers a device and returns its GUID in upper case.
func (s *DeviceService) Create(ctx context.Context, dc DeviceCreate) (string, error) {
	if err := dc.validate(); err != nil {
		return "", err
	}

	entityGUID := dc.EntityGUID
	if entityGUID == "" {
		root, err := s.entities.Root(ctx)
		if err != nil {
			return "", iotcerr.Wrap(err, "could not resolve the root entity")
		}
		if root == nil {
			return "", notFound("root entity", "parent", "none")
		}
		entityGUID = root.GUID
	}

	name := dc.Name
	if name == "" {
		name = dc.DUID
	}

	body := map[string]string{
		"deviceTemplateGuid": dc.TemplateGUID,
		"uniqueId":           dc.DUID,
		"displayName":        name,
		"entityGuid":         entityGUID,
	}
	if dc.Certificate != "" {
		body["certificateText"] = dc.Certificate
	}

	resp, err := s.do(ctx, &api.Request{
		BaseURL: s.endpoints.Device,
		Path:    "/Device",
		Body:    body,
		Service: metrics.ServiceDevice,
	})
	if err != nil {
		return "", err
	}
	res, err := api.DecodeOne[CreateResult](resp)
	if err != nil {
		return "", err
	}
	if res == nil || res.NewID == "" {
		return "", iotcerr.WithMessage(iotcerr.ErrMalformedResponse, "device create returned no device guid")
	}
	// The server reports the GUID in lower case; lookups expect upper.
	return strings.ToUpper(res.NewID), nil
}

// Delete removes the device with the given GUID.
func (s *DeviceService) Delete(ctx context.Context, guid string) error {
	if err := requireGUID("device delete", "device guid", guid); err != nil {
		return err
	}
	resp, err := s.do(ctx, &api.Request{
		Method:  http.MethodDelete,
		BaseURL: s.endpoints.Device,
		Path:    "/Device/" + url.PathEscape(guid),
		Service: metrics.ServiceDevice,
	})
	if err != nil {
		return err
	}
	return expectEmpty(resp)
}

// DeleteByDUID looks the device up by unique ID and removes it.
func (s *DeviceService) DeleteByDUID(ctx context.Context, duid string) error {
	d, err := s.GetByDUID(ctx, duid)
	if err != nil {
		return err
	}
	if d == nil {
		return notFound("device", "duid", duid)
	}
	return s.Delete(ctx, d.GUID)
}
