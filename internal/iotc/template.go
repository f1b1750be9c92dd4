package iotc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/api"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/metrics"
	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// Template code length limits.
const (
	minTemplateCode = 1
	maxTemplateCode = 8
)

// Template is a device template as returned by the lookup call.
type Template struct {
	GUID         string `json:"guid"`
	Name         string `json:"name"`
	Code         string `json:"code,omitempty"`
	AuthType     int    `json:"authType,omitempty"`
	FirmwareGUID string `json:"firmwareGuid,omitempty"`
	DeviceCount  int    `json:"totalDevice,omitempty"`
}

// TemplateService manages device templates.
type TemplateService struct{ *service }

// List returns every template of the account.
func (s *TemplateService) List(ctx context.Context) ([]Template, error) {
	resp, err := s.do(ctx, &api.Request{
		BaseURL: s.endpoints.Device,
		Path:    "/device-template/lookup",
		Service: metrics.ServiceDevice,
	})
	if err != nil {
		return nil, err
	}
	return api.DecodeList[Template](resp)
}

// GetByCode returns the template whose name equals code, or nil.
func (s *TemplateService) GetByCode(ctx context.Context, code string) (*Template, error) {
	if err := required("template lookup", "template code", code); err != nil {
		return nil, err
	}
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return api.FindOne(list, func(t Template) bool { return t.Name == code })
}

// GetByGUID returns the template with the given GUID, or nil.
func (s *TemplateService) GetByGUID(ctx context.Context, guid string) (*Template, error) {
	if err := requireGUID("template lookup", "template guid", guid); err != nil {
		return nil, err
	}
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return api.FindOne(list, func(t Template) bool { return sameGUID(t.GUID, guid) })
}

// TemplateCreate describes a template upload. Code and Name, when set,
// replace the values in Definition.
type TemplateCreate struct {
	Definition []byte
	Code       string
	Name       string
}

// Create uploads a template definition and returns what the server reports
// about the new template.
func (s *TemplateService) Create(ctx context.Context, tc TemplateCreate) (*CreateResult, error) {
	body, err := rewriteTemplate(tc)
	if err != nil {
		return nil, err
	}

	resp, err := s.do(ctx, &api.Request{
		Method:  http.MethodPost,
		BaseURL: s.endpoints.Device,
		Path:    "/device-template/quick",
		Files:   []api.FormFile{{Field: "file", FileName: "template.json", Data: body}},
		Service: metrics.ServiceDevice,
	})
	if err != nil {
		return nil, err
	}
	res, err := api.DecodeOne[CreateResult](resp)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &CreateResult{}
	}
	return res, nil
}

// rewriteTemplate validates the definition and applies the overrides.
func rewriteTemplate(tc TemplateCreate) ([]byte, error) {
	var obj map[string]any
	if err := json.Unmarshal(tc.Definition, &obj); err != nil {
		return nil, iotcerr.WithCause(iotcerr.WithMessage(iotcerr.ErrUsage, "template definition is not a JSON object"), err)
	}
	if tc.Code != "" {
		if n := len(tc.Code); n < minTemplateCode || n > maxTemplateCode {
			return nil, iotcerr.WithMessage(iotcerr.ErrUsage,
				"template code must be between %d and %d characters", minTemplateCode, maxTemplateCode)
		}
		obj["code"] = tc.Code
	}
	if tc.Name != "" {
		obj["name"] = tc.Name
	}
	return json.Marshal(obj)
}

// Delete removes the template with the given GUID.
func (s *TemplateService) Delete(ctx context.Context, guid string) error {
	if err := requireGUID("template delete", "template guid", guid); err != nil {
		return err
	}
	resp, err := s.do(ctx, &api.Request{
		Method:  http.MethodDelete,
		BaseURL: s.endpoints.Device,
		Path:    "/device-template/" + url.PathEscape(guid),
		Service: metrics.ServiceDevice,
	})
	if err != nil {
		return err
	}
	return expectEmpty(resp)
}

// DeleteByCode looks the template up by code and removes it.
func (s *TemplateService) DeleteByCode(ctx context.Context, code string) error {
	t, err := s.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if t == nil {
		return notFound("template", "code", code)
	}
	return s.Delete(ctx, t.GUID)
}
