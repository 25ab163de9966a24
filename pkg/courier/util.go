package courier

import (
	"strconv"
	"strings"

	"github.com/alcionai/clues"
)

func itoa(n int) string { return strconv.Itoa(n) }

func parsePID(raw []byte) (int, error) {
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, clues.Wrap(err, "parsing pid file")
	}

	return pid, nil
}

// lastLines returns the last n lines of s, or all of s if it has
// fewer than n lines.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return s
	}

	return strings.Join(lines[len(lines)-n:], "\n") + "\n"
}
