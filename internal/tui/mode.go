package tui

import (
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/mattn/go-isatty"
)

// OutputMode describes how progress output should be rendered.
type OutputMode int

const (
	// ModeTUI redraws the acquisition table in place.
	ModeTUI OutputMode = iota
	// ModePlain writes one line per stage and a summary table.
	ModePlain
	// ModeJSON writes structured JSON output.
	ModeJSON
)

// DetectMode picks the output mode for out. CI runners always get plain
// output because their logs do not render cursor movement.
func DetectMode(out io.Writer, noProgress, jsonOutput bool) OutputMode {
	return detectMode(out, noProgress, jsonOutput, os.Getenv)
}

func detectMode(out io.Writer, noProgress, jsonOutput bool, getenv func(string) string) OutputMode {
	switch {
	case jsonOutput:
		return ModeJSON
	case noProgress, getenv("CI") != "":
		return ModePlain
	}

	f, ok := out.(interface{ Fd() uintptr })
	if !ok {
		return ModePlain
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return ModePlain
	}
	if runtime.GOOS != "windows" {
		if t := getenv("TERM"); t == "" || strings.EqualFold(t, "dumb") {
			return ModePlain
		}
	}
	return ModeTUI
}
