package iotc

import (
	"context"
	"net/http"
	"net/url"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/api"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/metrics"
)

// Upgrade is a firmware upgrade: one software version of a firmware entry.
type Upgrade struct {
	GUID         string `json:"guid"`
	FirmwareGUID string `json:"firmwareGuid,omitempty"`
	Software     string `json:"software,omitempty"`
	Description  string `json:"description,omitempty"`
	IsDraft      bool   `json:"isDraft,omitempty"`
}

// UpgradeService manages firmware upgrades.
type UpgradeService struct{ *service }

// List returns every firmware upgrade.
func (s *UpgradeService) List(ctx context.Context) ([]Upgrade, error) {
	resp, err := s.do(ctx, &api.Request{
		BaseURL: s.endpoints.Firmware,
		Path:    "/firmware-upgrade",
		Service: metrics.ServiceFirmware,
	})
	if err != nil {
		return nil, err
	}
	return api.DecodeList[Upgrade](resp)
}

// GetByGUID returns the upgrade with the given GUID, or nil.
func (s *UpgradeService) GetByGUID(ctx context.Context, guid string) (*Upgrade, error) {
	if err := requireGUID("upgrade lookup", "upgrade guid", guid); err != nil {
		return nil, err
	}
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return api.FindOne(list, func(u Upgrade) bool { return sameGUID(u.GUID, guid) })
}

// Create adds a software version to the firmware with the given GUID.
func (s *UpgradeService) Create(ctx context.Context, firmwareGUID, software, description string) (*CreateResult, error) {
	if err := requireGUID("upgrade create", "firmware guid", firmwareGUID); err != nil {
		return nil, err
	}
	if err := ValidateVersion("software version", software); err != nil {
		return nil, err
	}

	body := map[string]string{
		"firmwareGuid": firmwareGUID,
		"software":     software,
	}
	if description != "" {
		body["description"] = description
	}

	resp, err := s.do(ctx, &api.Request{
		BaseURL: s.endpoints.Firmware,
		Path:    "/firmware-upgrade",
		Body:    body,
		Service: metrics.ServiceFirmware,
	})
	if err != nil {
		return nil, err
	}
	return decodeCreated(resp, "upgrade")
}

// Upload attaches the update image to an upgrade. It is a file upload with
// the firmware module type and the upgrade GUID as reference.
func (s *UpgradeService) Upload(ctx context.Context, upgradeGUID, fileName string, data []byte) (*Uploaded, error) {
	if err := requireGUID("upgrade upload", "upgrade guid", upgradeGUID); err != nil {
		return nil, err
	}
	files := &FileService{s.service}
	return files.Upload(ctx, FileUpload{
		Module:   ModuleFirmware,
		RefGUID:  upgradeGUID,
		FileName: fileName,
		Data:     data,
	})
}

// Publish makes an uploaded upgrade available to devices.
func (s *UpgradeService) Publish(ctx context.Context, guid string) error {
	if err := requireGUID("upgrade publish", "upgrade guid", guid); err != nil {
		return err
	}
	_, err := s.do(ctx, &api.Request{
		Method:  http.MethodPut,
		BaseURL: s.endpoints.Firmware,
		Path:    "/firmware-upgrade/" + url.PathEscape(guid) + "/publish",
		Service: metrics.ServiceFirmware,
	})
	return err
}

// Delete removes the upgrade with the given GUID.
func (s *UpgradeService) Delete(ctx context.Context, guid string) error {
	if err := requireGUID("upgrade delete", "upgrade guid", guid); err != nil {
		return err
	}
	resp, err := s.do(ctx, &api.Request{
		Method:  http.MethodDelete,
		BaseURL: s.endpoints.Firmware,
		Path:    "/firmware-upgrade/" + url.PathEscape(guid),
		Service: metrics.ServiceFirmware,
	})
	if err != nil {
		return err
	}
	return expectEmpty(resp)
}
