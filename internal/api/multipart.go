package api

import (
	"bytes"
	"fmt"
	"maps"
	"mime/multipart"
	"slices"
)

// FormFile is one file part of a multipart request.
type FormFile struct {
	Field    string // form field name, e.g. "file" or "fileData"
	FileName string
	Data     []byte
}

// encodeMultipart renders form fields and files as a multipart/form-data
// body and returns it with its content type.
func encodeMultipart(form map[string]string, files []FormFile) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, k := range slices.Sorted(maps.Keys(form)) {
		if err := w.WriteField(k, form[k]); err != nil {
			return nil, "", fmt.Errorf("writing form field %s: %w", k, err)
		}
	}

	for _, f := range files {
		name := f.FileName
		if name == "" {
			name = f.Field
		}
		part, err := w.CreateFormFile(f.Field, name)
		if err != nil {
			return nil, "", fmt.Errorf("creating form file %s: %w", f.Field, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("writing form file %s: %w", f.Field, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
