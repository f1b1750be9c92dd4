package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	iotcerr "github.com/avnet-iotconnect/iotc-go-rest-api/pkg/errors"
)

// Prompt hooks, replaced in tests.
//
//nolint:gochecknoglobals // test seams for interactive input
var (
	promptPasswordFn = promptPassword
	promptLineFn     = promptLine
	promptConfirmFn  = promptConfirm
	stdinIsTerminal  = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) } //nolint:gosec // G115: Fd() fits in int
)

// promptPassword reads a password with hidden input.
func promptPassword(prompt string) (string, error) {
	out(os.Stderr, "%s", prompt)

	fd := int(os.Stdin.Fd()) //nolint:gosec // G115: Fd() fits in int
	password, err := term.ReadPassword(fd)
	outln(os.Stderr) // Add newline after hidden input

	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(password), nil
}

// promptLine reads one line of visible input.
func promptLine(prompt string) (string, error) {
	out(os.Stderr, "%s", prompt)
	return readLine(os.Stdin)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptConfirm asks a yes/no question; anything but yes is no.
func promptConfirm(question string) bool {
	answer, err := promptLineFn(question + " [y/N]: ")
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

// askMissing fills value interactively when it is empty and stdin is a
// terminal. Non-interactive runs leave it empty so the caller reports
// every missing argument at once.
func askMissing(value, prompt string, secret bool) (string, error) {
	if value != "" || !stdinIsTerminal() {
		return value, nil
	}
	if secret {
		return promptPasswordFn(prompt)
	}
	return promptLineFn(prompt)
}

// confirmDestructive returns a usage error unless the user agrees or
// --yes was given.
func confirmDestructive(yes bool, what string) error {
	if yes {
		return nil
	}
	if !stdinIsTerminal() {
		return iotcerr.WithSuggestion(
			iotcerr.WithMessage(iotcerr.ErrUsage, "refusing to %s without confirmation", what),
			"Pass --yes to confirm",
		)
	}
	if !promptConfirmFn(fmt.Sprintf("Really %s?", what)) {
		return iotcerr.WithMessage(iotcerr.ErrUsage, "cancelled")
	}
	return nil
}
