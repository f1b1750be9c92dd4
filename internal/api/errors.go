package api

import (
	"bytes"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// maxBodyDetail caps the response body excerpt attached to errors.
const maxBodyDetail = 512

// checkStatus returns nil when r.Status is one of ok, otherwise a typed
// error assembled from the envelope. 401 maps to ErrAuthentication so a
// caller can decide to authenticate again.
func checkStatus(r *Response, ok []int) error {
	if slices.Contains(ok, r.Status) {
		return nil
	}

	details := map[string]string{"status": strconv.Itoa(r.Status)}

	body := bytes.TrimSpace(r.Body)
	if len(body) == 0 || bytes.Equal(body, []byte("{}")) {
		return iotcerr.WithDetails(iotcerr.WithMessage(iotcerr.ErrResponse, "Unable to obtain response"), details)
	}

	envStatus, hasStatus := r.Envelope.Status()
	if !hasStatus {
		return iotcerr.WithDetails(
			iotcerr.WithMessage(sentinelFor(r.Status), "Bad HTTP response status: %d", r.Status),
			details,
		)
	}

	var msg string
	if m := r.Envelope.Message(); m != "" {
		msg = fmt.Sprintf("Server reported message: \"%s.\"", m)
	} else {
		msg = fmt.Sprintf("The server returned HTTP code %d.", envStatus)
	}
	if r.Envelope.HasErrorList() {
		msg += " Errors: " + strings.Join(r.Envelope.Errors(), " ")
		msg = strings.TrimSpace(msg)
	}

	code := r.Status
	if envStatus != 0 {
		code = envStatus
	}
	if r.Status == http.StatusUnauthorized {
		code = http.StatusUnauthorized
	}
	return iotcerr.WithDetails(iotcerr.WithMessage(sentinelFor(code), "%s", msg), details)
}

func sentinelFor(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return iotcerr.ErrAuthentication
	case http.StatusNotFound:
		return iotcerr.ErrNotFound
	case http.StatusConflict:
		return iotcerr.ErrConflict
	default:
		return iotcerr.ErrResponse
	}
}

// StatusCode returns the HTTP status carried by an API error, or 0.
func StatusCode(err error) int {
	n, convErr := strconv.Atoi(iotcerr.Detail(err, "status"))
	if convErr != nil {
		return 0
	}
	return n
}

// truncateBody truncates a string to maxLen characters.
func truncateBody(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
