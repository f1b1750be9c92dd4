package output

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// ErrorOutput represents a structured error for JSON output.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	ExitCode   int               `json:"exit_code"`
}

// NewErrorDetail extracts the display fields of err.
func NewErrorDetail(err error) ErrorDetail {
	var ie *iotcerr.IotcError
	if errors.As(err, &ie) {
		msg := ie.Message
		if ie.Cause != nil {
			msg = fmt.Sprintf("%s: %v", msg, ie.Cause)
		}
		return ErrorDetail{
			Code:       ie.Code,
			Message:    msg,
			Details:    ie.Details,
			Suggestion: ie.Suggestion,
			ExitCode:   ie.ExitCode,
		}
	}
	return ErrorDetail{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		ExitCode: iotcerr.ExitGeneral,
	}
}

// FormatError formats an error for display.
func FormatError(w io.Writer, err error, format Format) error {
	if err == nil {
		return nil
	}

	detail := NewErrorDetail(err)
	if format == FormatJSON {
		return writeJSON(w, ErrorOutput{Error: detail})
	}
	return formatErrorText(w, detail)
}

// formatErrorText outputs error in text format. Details are sorted by key.
func formatErrorText(w io.Writer, d ErrorDetail) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Error: %s\n", d.Message)

	if len(d.Details) > 0 {
		sb.WriteString("\nDetails:\n")
		for _, k := range slices.Sorted(maps.Keys(d.Details)) {
			fmt.Fprintf(&sb, "  %s: %s\n", k, d.Details[k])
		}
	}

	if d.Suggestion != "" {
		fmt.Fprintf(&sb, "\nSuggestion: %s\n", d.Suggestion)
	}

	_, writeErr := io.WriteString(w, sb.String())
	return writeErr
}

// FormatSuccess formats a success message.
func FormatSuccess(w io.Writer, message string, format Format) error {
	if format == FormatJSON {
		return writeJSON(w, map[string]string{"status": "success", "message": message})
	}
	_, err := fmt.Fprintln(w, message)
	return err
}
