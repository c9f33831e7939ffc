package procrun

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Pattern tests captured output. *regexp.Regexp satisfies it.
type Pattern interface {
	MatchString(s string) bool
}

// Matcher maps a failure signature to a caller-chosen message. A matcher
// applies when ExitCode equals the process exit code or Pattern matches
// either captured stream.
type Matcher struct {
	ExitCode *int
	Pattern  Pattern
	Message  string
}

// ExitCode returns a pointer for Matcher.ExitCode literals.
func ExitCode(code int) *int { return &code }

func (m Matcher) matches(exitCode int, stdout, stderr string) bool {
	if m.ExitCode != nil && *m.ExitCode == exitCode {
		return true
	}
	if m.Pattern == nil {
		return false
	}
	return m.Pattern.MatchString(stderr) || m.Pattern.MatchString(stdout)
}

func (m Matcher) matchesOutput(text string) bool {
	return m.Pattern != nil && m.Pattern.MatchString(text)
}

// ParseMatcher parses the command-line form CODE:REGEX:MESSAGE. Either CODE
// or REGEX may be empty, but not both. MESSAGE may itself contain colons.
func ParseMatcher(value string) (Matcher, error) {
	parts := strings.SplitN(value, ":", 3)
	if len(parts) != 3 {
		return Matcher{}, fmt.Errorf("matcher %q: expected CODE:REGEX:MESSAGE", value)
	}
	code, expr, message := strings.TrimSpace(parts[0]), parts[1], parts[2]
	if code == "" && expr == "" {
		return Matcher{}, fmt.Errorf("matcher %q: needs an exit code or a pattern", value)
	}
	if message == "" {
		return Matcher{}, fmt.Errorf("matcher %q: message is required", value)
	}

	m := Matcher{Message: message}
	if code != "" {
		n, err := strconv.Atoi(code)
		if err != nil {
			return Matcher{}, fmt.Errorf("matcher %q: invalid exit code: %w", value, err)
		}
		m.ExitCode = &n
	}
	if expr != "" {
		re, err := regexp.Compile(expr)
		if err != nil {
			return Matcher{}, fmt.Errorf("matcher %q: invalid pattern: %w", value, err)
		}
		m.Pattern = re
	}
	return m, nil
}
