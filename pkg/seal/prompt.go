package seal

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	errsys "github.com/armorclaw/diagnostics/pkg/errors"
)

// ReadPassphrase prompts on stderr and reads the passphrase without
// echo when stdin is a terminal. Piped input falls back to reading one
// line, so scripted exports keep working.
func ReadPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", errsys.Classify(err)
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", errsys.Classify(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
