package iotc

import (
	"context"
	"net/http"
	"net/url"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/api"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/metrics"
	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// Firmware name and version limits.
const (
	maxFirmwareName = 10
	maxVersion      = 20
)

// Firmware is a firmware entry attached to a device template.
type Firmware struct {
	GUID         string `json:"guid"`
	Name         string `json:"name"`
	Hardware     string `json:"hardware"`
	IsDeprecated bool   `json:"isDeprecated"`
}

// FirmwareService manages firmware entries.
type FirmwareService struct{ *service }

// ValidateFirmwareName checks that name is 1 to 10 upper case letters or
// digits.
func ValidateFirmwareName(name string) error {
	if name == "" || len(name) > maxFirmwareName {
		return iotcerr.WithMessage(iotcerr.ErrUsage, "firmware name must be between 1 and %d characters", maxFirmwareName)
	}
	for _, r := range name {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return iotcerr.WithMessage(iotcerr.ErrUsage,
				"firmware name must be upper case and contain only alphanumeric characters")
		}
	}
	return nil
}

// ValidateVersion checks that a hardware or software version is 1 to 20
// letters, digits or periods. what names the argument in the error.
func ValidateVersion(what, version string) error {
	if version == "" || len(version) > maxVersion {
		return iotcerr.WithMessage(iotcerr.ErrUsage, "%s must be between 1 and %d characters", what, maxVersion)
	}
	for _, r := range version {
		if !isASCIIAlnum(r) && r != '.' {
			return iotcerr.WithMessage(iotcerr.ErrUsage,
				"%s must contain only alphanumeric characters or periods", what)
		}
	}
	return nil
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// List returns every firmware entry.
func (s *FirmwareService) List(ctx context.Context) ([]Firmware, error) {
	resp, err := s.do(ctx, &api.Request{
		BaseURL: s.endpoints.Firmware,
		Path:    "/Firmware",
		Service: metrics.ServiceFirmware,
	})
	if err != nil {
		return nil, err
	}
	return api.DecodeList[Firmware](resp)
}

// GetByName returns the firmware with the given name, or nil.
func (s *FirmwareService) GetByName(ctx context.Context, name string) (*Firmware, error) {
	if err := required("firmware lookup", "firmware name", name); err != nil {
		return nil, err
	}
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return api.FindOne(list, func(f Firmware) bool { return f.Name == name })
}

// GetByGUID returns the firmware with the given GUID, or nil.
func (s *FirmwareService) GetByGUID(ctx context.Context, guid string) (*Firmware, error) {
	if err := requireGUID("firmware lookup", "firmware guid", guid); err != nil {
		return nil, err
	}
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return api.FindOne(list, func(f Firmware) bool { return sameGUID(f.GUID, guid) })
}

// FirmwareCreate describes a new firmware entry.
type FirmwareCreate struct {
	TemplateGUID string
	Name         string
	Hardware     string
	Description  string
}

// Create adds a firmware entry. The result carries the firmware GUID and
// the GUID of the initial upgrade the server creates with it.
func (s *FirmwareService) Create(ctx context.Context, fc FirmwareCreate) (*CreateResult, error) {
	if err := requireGUID("firmware create", "template guid", fc.TemplateGUID); err != nil {
		return nil, err
	}
	if err := ValidateFirmwareName(fc.Name); err != nil {
		return nil, err
	}
	if err := ValidateVersion("hardware version", fc.Hardware); err != nil {
		return nil, err
	}

	body := map[string]string{
		"deviceTemplateGuid": fc.TemplateGUID,
		"firmwareName":       fc.Name,
		"hardware":           fc.Hardware,
		// The API requires a software version here; real ones are added as upgrades.
		"software": "dummy",
	}
	if fc.Description != "" {
		body["FirmwareDescription"] = fc.Description
	}

	resp, err := s.do(ctx, &api.Request{
		BaseURL: s.endpoints.Firmware,
		Path:    "/Firmware",
		Body:    body,
		Service: metrics.ServiceFirmware,
	})
	if err != nil {
		return nil, err
	}
	return decodeCreated(resp, "firmware")
}

// Deprecate marks the firmware with the given GUID deprecated. The API has
// no hard delete for firmware.
func (s *FirmwareService) Deprecate(ctx context.Context, guid string) error {
	if err := requireGUID("firmware deprecate", "firmware guid", guid); err != nil {
		return err
	}
	resp, err := s.do(ctx, &api.Request{
		Method:  http.MethodPut,
		BaseURL: s.endpoints.Firmware,
		Path:    "/Firmware/" + url.PathEscape(guid) + "/deprecate",
		Service: metrics.ServiceFirmware,
	})
	if err != nil {
		return err
	}
	return expectEmpty(resp)
}

// DeprecateByName looks the firmware up by name and deprecates it.
func (s *FirmwareService) DeprecateByName(ctx context.Context, name string) error {
	if err := ValidateFirmwareName(name); err != nil {
		return err
	}
	fw, err := s.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if fw == nil {
		return notFound("firmware", "name", name)
	}
	return s.Deprecate(ctx, fw.GUID)
}

// decodeCreated reads a CreateResult that must carry a new id.
func decodeCreated(resp *api.Response, kind string) (*CreateResult, error) {
	res, err := api.DecodeOne[CreateResult](resp)
	if err != nil {
		return nil, err
	}
	if res == nil || res.NewID == "" {
		return nil, iotcerr.WithMessage(iotcerr.ErrMalformedResponse, "%s create returned no id", kind)
	}
	return res, nil
}
