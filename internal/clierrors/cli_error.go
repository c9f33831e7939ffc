package clierrors

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"bundlectl/internal/procrun"
)

const (
	autobuildDocURL     = "https://docs.github.com/en/code-security/code-scanning/troubleshooting-code-scanning/automatic-build-failed"
	maxAutobuildErrors  = 10
	truncatedAutobuilds = "(truncated)"
)

var (
	fatalErrorRegex     = regexp.MustCompile(`(?i).*fatal (internal )?error occurr?ed(. Details)?:`)
	autobuildErrorRegex = regexp.MustCompile(`(?i).*\[autobuild\] \[ERROR\] (.*)`)
)

// CLIError is a failed CLI invocation with a summarised message.
type CLIError struct {
	Command  string
	Args     []string
	ExitCode *int
	Stderr   string
	message  string
}

func (e *CLIError) Error() string { return e.message }

// NewCLIError summarises stderr into a single diagnosable message: the chain
// of fatal errors when present, else autobuild errors, else the last line.
func NewCLIError(command string, args []string, exitCode *int, stderr string) *CLIError {
	invocation := prettyPrintInvocation(command, args)
	code := "unknown"
	if exitCode != nil {
		code = fmt.Sprint(*exitCode)
	}

	var message string
	if fatal, ok := extractFatalErrors(stderr); ok {
		message = fmt.Sprintf("Encountered a fatal error while running \"%s\". Exit code was %s and error was: %s See the logs for more details.",
			invocation, code, ensureEndsInPeriod(strings.TrimSpace(fatal)))
	} else if autobuild, ok := extractAutobuildErrors(stderr); ok {
		message = "We were unable to automatically build your code. Please provide manual build steps. " +
			fmt.Sprintf("See %s for more information. Encountered the following error: %s", autobuildDocURL, autobuild)
	} else {
		lastLine := "n/a"
		if lines := strings.Split(strings.TrimSpace(stderr), "\n"); len(lines) > 0 {
			if l := strings.TrimSpace(lines[len(lines)-1]); l != "" {
				lastLine = l
			}
		}
		message = fmt.Sprintf("Encountered a fatal error while running \"%s\". Exit code was %s and last log line was: %s See the logs for more details.",
			invocation, code, ensureEndsInPeriod(lastLine))
	}

	return &CLIError{
		Command:  command,
		Args:     append([]string(nil), args...),
		ExitCode: exitCode,
		Stderr:   stderr,
		message:  message,
	}
}

// FromProcess builds a CLIError from a runner failure that no matcher
// claimed. Matched and launch errors are not CLI errors.
func FromProcess(command string, args []string, err error) (*CLIError, bool) {
	var exitErr *procrun.ExitError
	if !errors.As(err, &exitErr) {
		return nil, false
	}
	code := exitErr.Outcome.ExitCode
	return NewCLIError(command, args, &code, exitErr.Outcome.Stderr), true
}

func extractFatalErrors(stderr string) (string, bool) {
	locs := fatalErrorRegex.FindAllStringIndex(stderr, -1)
	if len(locs) == 0 {
		return "", false
	}

	var earlier []string
	for i := 1; i < len(locs); i++ {
		earlier = append(earlier, strings.TrimSpace(stderr[locs[i-1][0]:locs[i][0]]))
	}
	last := strings.TrimSpace(stderr[locs[len(locs)-1][0]:])
	if len(earlier) == 0 {
		return last, true
	}

	oneLiner := true
	for _, e := range earlier {
		if strings.Contains(e, "\n") {
			oneLiner = false
			break
		}
	}

	parts := []string{ensureEndsInPeriod(last), "Context:"}
	for i := len(earlier) - 1; i >= 0; i-- {
		e := earlier[i]
		if oneLiner {
			e = ensureEndsInPeriod(e)
		}
		parts = append(parts, e)
	}
	sep := "\n"
	if oneLiner {
		sep = " "
	}
	return strings.Join(parts, sep), true
}

func extractAutobuildErrors(stderr string) (string, bool) {
	matches := autobuildErrorRegex.FindAllStringSubmatch(stderr, -1)
	if len(matches) == 0 {
		return "", false
	}
	lines := make([]string, 0, len(matches))
	for _, m := range matches {
		lines = append(lines, m[1])
	}
	if len(lines) > maxAutobuildErrors {
		lines = append(lines[:maxAutobuildErrors], truncatedAutobuilds)
	}
	joined := strings.Join(lines, "\n")
	return joined, joined != ""
}

func prettyPrintInvocation(command string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	for _, p := range append([]string{command}, args...) {
		if strings.Contains(p, " ") {
			p = "'" + p + "'"
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}

func ensureEndsInPeriod(text string) string {
	if strings.HasSuffix(text, ".") {
		return text
	}
	return text + "."
}
