package iotc

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/api"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/metrics"
	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// ModuleType scopes a stored file. The reference GUID of a file is the GUID
// of the object it belongs to: a device for deviceimage, a firmware upgrade
// for firmware, any GUID for custom, and so on.
type ModuleType string

// File module types.
const (
	ModuleDeviceImage         ModuleType = "deviceimage"
	ModuleCompanyLogo         ModuleType = "companylogo"
	ModuleFirmware            ModuleType = "firmware"
	ModuleUserProfile         ModuleType = "userprofile"
	ModuleImportBatch         ModuleType = "importbatch"
	ModuleSolutionImage       ModuleType = "solutionimage"
	ModuleDeviceCertificate   ModuleType = "devicecertificate"
	ModuleCustom              ModuleType = "custom"
	ModuleModule              ModuleType = "module"
	ModuleWidgetImage         ModuleType = "widgetimage"
	ModuleDeviceUpdate        ModuleType = "deviceupdate"
	ModuleGGComponentArtifact ModuleType = "ggcomponentartifact"
	ModuleGGComponentRecipe   ModuleType = "ggcomponentrecipe"
)

// ModuleTypes lists every known module type.
//
//nolint:gochecknoglobals // fixed lookup table
var ModuleTypes = []ModuleType{
	ModuleDeviceImage,
	ModuleCompanyLogo,
	ModuleFirmware,
	ModuleUserProfile,
	ModuleImportBatch,
	ModuleSolutionImage,
	ModuleDeviceCertificate,
	ModuleCustom,
	ModuleModule,
	ModuleWidgetImage,
	ModuleDeviceUpdate,
	ModuleGGComponentArtifact,
	ModuleGGComponentRecipe,
}

// maxTypoDistance bounds module type suggestions.
const maxTypoDistance = 3

// ParseModuleType returns the module type named s. Unknown names fail with
// a usage error that suggests the closest known type.
func ParseModuleType(s string) (ModuleType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range ModuleTypes {
		if string(m) == s {
			return m, nil
		}
	}

	err := iotcerr.WithMessage(iotcerr.ErrUsage, "unknown file module type %q", s)
	if suggestion := SuggestModuleType(s); suggestion != "" {
		return "", iotcerr.WithSuggestion(err, "Did you mean '"+string(suggestion)+"'?")
	}
	return "", iotcerr.WithSuggestion(err, "Valid module types: "+moduleTypeList())
}

// SuggestModuleType returns the module type closest to s, or "" when none
// is within a few edits.
func SuggestModuleType(s string) ModuleType {
	minDist := math.MaxInt
	var best ModuleType
	for _, m := range ModuleTypes {
		if d := levenshtein.ComputeDistance(s, string(m)); d < minDist {
			minDist = d
			best = m
		}
	}
	if minDist <= maxTypoDistance {
		return best
	}
	return ""
}

func moduleTypeList() string {
	names := make([]string, len(ModuleTypes))
	for i, m := range ModuleTypes {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

// File is a stored file.
type File struct {
	GUID        string `json:"guid"`
	URL         string `json:"file"`
	Name        string `json:"name"`
	Tag         string `json:"tag,omitempty"`
	CreatedDate string `json:"createdDate,omitempty"`
	State       string `json:"state,omitempty"`
}

type fileLookup struct {
	FileData []File `json:"fileData"`
}

// FileService manages stored files.
type FileService struct{ *service }

// List returns the files stored for refGUID under module. A reference with
// no files yields an empty list.
func (s *FileService) List(ctx context.Context, module ModuleType, refGUID string) ([]File, error) {
	if err := required("file lookup", "module type", string(module)); err != nil {
		return nil, err
	}
	if err := requireGUID("file lookup", "file reference guid", refGUID); err != nil {
		return nil, err
	}

	resp, err := s.do(ctx, &api.Request{
		BaseURL: s.endpoints.File,
		Path:    "/File/" + url.PathEscape(string(module)) + "/" + url.PathEscape(refGUID),
		Service: metrics.ServiceFile,
	})
	if err != nil {
		// The file service answers 409 for a reference it has no files for.
		if iotcerr.Is(err, iotcerr.ErrConflict) {
			return []File{}, nil
		}
		return nil, err
	}

	lookup, err := api.DecodeOne[fileLookup](resp)
	if err != nil {
		return nil, err
	}
	if lookup == nil || lookup.FileData == nil {
		return []File{}, nil
	}
	return lookup.FileData, nil
}

// FileUpload describes a file to store. RefGUID is generated when empty.
type FileUpload struct {
	Module   ModuleType
	RefGUID  string
	FileName string
	Data     []byte
}

// Uploaded identifies a stored file.
type Uploaded struct {
	FileGUID string `json:"fileGuid"`
	RefGUID  string `json:"fileRefGuid"`
}

// Upload stores a file. The reference GUID is part of the result because
// listing by reference is the only way back to the file.
func (s *FileService) Upload(ctx context.Context, fu FileUpload) (*Uploaded, error) {
	if err := required("file upload", "module type", string(fu.Module)); err != nil {
		return nil, err
	}
	if fu.RefGUID == "" {
		fu.RefGUID = NewGUID()
	} else if err := requireGUID("file upload", "file reference guid", fu.RefGUID); err != nil {
		return nil, err
	}
	if err := required("file upload", "file name", fu.FileName); err != nil {
		return nil, err
	}

	resp, err := s.do(ctx, &api.Request{
		Method:  http.MethodPost,
		BaseURL: s.endpoints.File,
		Path:    "/File",
		Form: map[string]string{
			"fileRefGuid": fu.RefGUID,
			"ModuleType":  string(fu.Module),
		},
		Files:   []api.FormFile{{Field: "fileData", FileName: fu.FileName, Data: fu.Data}},
		Service: metrics.ServiceFile,
	})
	if err != nil {
		return nil, err
	}
	res, err := decodeCreated(resp, "file")
	if err != nil {
		return nil, err
	}
	return &Uploaded{FileGUID: res.NewID, RefGUID: fu.RefGUID}, nil
}

// Delete removes the file with the given file GUID, which is not the
// reference GUID.
func (s *FileService) Delete(ctx context.Context, module ModuleType, fileGUID string) error {
	if err := required("file delete", "module type", string(module)); err != nil {
		return err
	}
	if err := requireGUID("file delete", "file guid", fileGUID); err != nil {
		return err
	}
	resp, err := s.do(ctx, &api.Request{
		Method:  http.MethodDelete,
		BaseURL: s.endpoints.File,
		Path:    "/File/" + url.PathEscape(string(module)) + "/" + url.PathEscape(fileGUID),
		Service: metrics.ServiceFile,
	})
	if err != nil {
		return err
	}
	return expectEmpty(resp)
}
