package procrun

import "fmt"

// ProcessOutcome is what one invocation produced.
type ProcessOutcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// MatchedError is returned when a matcher claims a failure. Its message is
// exactly the matcher's message.
type MatchedError struct {
	Matcher Matcher
	Outcome ProcessOutcome
	// Err is the launch error the matcher consumed, if any.
	Err error
}

func (e *MatchedError) Error() string { return e.Matcher.Message }

func (e *MatchedError) Unwrap() error { return e.Err }

// ExitError reports a non-zero exit no matcher claimed.
type ExitError struct {
	Command string
	Outcome ProcessOutcome
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("The process '%s' failed with exit code %d", e.Command, e.Outcome.ExitCode)
}
