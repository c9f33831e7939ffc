package clierrors

import "strings"

// Category is a known CLI failure signature.
type Category struct {
	Name string
	// RequiredSubstrings must all appear in the message, in any order.
	RequiredSubstrings []string
	// ExpectedExitCode classifies on its own when it equals the exit code.
	ExpectedExitCode *int
	// ReplacementMessage replaces the CLI's message when set.
	ReplacementMessage *string
	// AppendOriginal keeps the CLI's message after the replacement. Unset
	// means true.
	AppendOriginal *bool
}

// Classify reports whether message and exitCode belong to cat: the exit
// codes are equal when both are defined, or every required substring is
// present in message.
func Classify(cat Category, message string, exitCode *int) bool {
	if exitCode != nil && cat.ExpectedExitCode != nil && *exitCode == *cat.ExpectedExitCode {
		return true
	}
	for _, s := range cat.RequiredSubstrings {
		if !strings.Contains(message, s) {
			return false
		}
	}
	return true
}

// Render returns the message to show for a failure classified as cat.
func Render(cat Category, message string) string {
	if cat.ReplacementMessage == nil {
		return message
	}
	if !cat.appendOriginal() || message == "" {
		return *cat.ReplacementMessage
	}
	return *cat.ReplacementMessage + " " + message
}

func (c Category) appendOriginal() bool {
	return c.AppendOriginal == nil || *c.AppendOriginal
}

func intPtr(n int) *int          { return &n }
func stringPtr(s string) *string { return &s }
func boolPtr(b bool) *bool       { return &b }
