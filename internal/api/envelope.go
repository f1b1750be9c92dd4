package api

import (
	"bytes"
	"encoding/json"
	"strconv"

	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// Envelope is the generic wrapper returned by every resource endpoint.
// Fields the server may send with varying JSON types are kept raw and read
// through accessors.
type Envelope struct {
	RawStatus  json.RawMessage `json:"status,omitempty"`
	RawMessage json.RawMessage `json:"message,omitempty"`
	RawErrors  json.RawMessage `json:"error,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Status returns the envelope status code, if the envelope carries one.
func (e *Envelope) Status() (int, bool) {
	raw := bytes.TrimSpace(e.RawStatus)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if v, err := n.Int64(); err == nil {
			return int(v), true
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(s); err == nil {
			return v, true
		}
	}
	// Present but not numeric (e.g. a boolean): treat as "has status".
	return 0, true
}

// Message returns the envelope message, or "" when absent.
func (e *Envelope) Message() string {
	return rawText(e.RawMessage)
}

// Errors returns the envelope error list rendered as strings. A non-list
// value yields nil.
func (e *Envelope) Errors() []string {
	raw := bytes.TrimSpace(e.RawErrors)
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, rawText(item))
	}
	return out
}

// HasErrorList reports whether the envelope carries an error list, even an
// empty one.
func (e *Envelope) HasErrorList() bool {
	raw := bytes.TrimSpace(e.RawErrors)
	return len(raw) > 0 && raw[0] == '['
}

// rawText renders a JSON value as text: strings are unquoted, null is
// empty, anything else is returned verbatim.
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// isEmptyData reports whether a data value is absent, null, an empty list
// or an empty object.
func isEmptyData(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "[]", "{}":
		return true
	}
	return false
}

// DecodeList decodes the data field of r into a slice. A single object is
// returned as a one-element slice; absent or null data yields an empty slice.
func DecodeList[T any](r *Response) ([]T, error) {
	raw := bytes.TrimSpace(r.Envelope.Data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []T{}, nil
	}
	if raw[0] == '{' {
		var one T
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, malformedData(err)
		}
		return []T{one}, nil
	}
	var list []T
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, malformedData(err)
	}
	if list == nil {
		list = []T{}
	}
	return list, nil
}

// DecodeOne decodes the data field of r into a single value. Empty data
// returns nil; more than one element returns ErrSingleValueExpected.
func DecodeOne[T any](r *Response) (*T, error) {
	if isEmptyData(r.Envelope.Data) {
		return nil, nil //nolint:nilnil // absent value is not an error
	}
	list, err := DecodeList[T](r)
	if err != nil {
		return nil, err
	}
	return single(list)
}

// Filter returns the items for which keep returns true.
func Filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// FindOne returns the only item matching match, nil if none match, or
// ErrSingleValueExpected if several do.
func FindOne[T any](items []T, match func(T) bool) (*T, error) {
	return single(Filter(items, match))
}

func single[T any](list []T) (*T, error) {
	switch len(list) {
	case 0:
		return nil, nil //nolint:nilnil // absent value is not an error
	case 1:
		return &list[0], nil
	default:
		return nil, iotcerr.WithDetails(iotcerr.ErrSingleValueExpected, map[string]string{
			"count": strconv.Itoa(len(list)),
		})
	}
}

func malformedData(err error) error {
	return iotcerr.WithCause(iotcerr.WithMessage(iotcerr.ErrMalformedResponse, "unexpected data in API response"), err)
}
