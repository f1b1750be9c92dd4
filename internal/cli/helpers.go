package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// maxUploadSize bounds files read from disk for upload.
const maxUploadSize = 64 << 20

func out(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func outln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}

// done reports a finished mutation: v as JSON, or msg as a success line.
func (c *CommandContext) done(v any, msg string, args ...any) error {
	if c.Fmt.IsJSON() {
		return c.Fmt.Print(v)
	}
	c.Msg.Successf(msg, args...)
	return nil
}

// readUpload reads a local file for upload.
func readUpload(path string) (string, []byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, iotcerr.WithCause(iotcerr.WithMessage(iotcerr.ErrUsage, "cannot read %s", path), err)
	}
	if info.IsDir() {
		return "", nil, iotcerr.WithMessage(iotcerr.ErrUsage, "%s is a directory", path)
	}
	if info.Size() > maxUploadSize {
		return "", nil, iotcerr.WithMessage(iotcerr.ErrUsage, "%s is larger than %d MiB", path, maxUploadSize>>20)
	}
	// #nosec G304 -- path is an explicit command argument
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, iotcerr.WithCause(iotcerr.WithMessage(iotcerr.ErrUsage, "cannot read %s", path), err)
	}
	return filepath.Base(path), data, nil
}

// formatTime renders t for tables; the zero time is blank.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.RFC3339)
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}

	d = d.Round(time.Minute)
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	switch {
	case hours == 0:
		return fmt.Sprintf("%dm", minutes)
	case minutes == 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
}

func notFoundErr(kind, key, value string) error {
	return iotcerr.WithDetails(
		iotcerr.WithMessage(iotcerr.ErrNotFound, "%s not found", kind),
		map[string]string{key: value},
	)
}
