package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"bundlectl/internal/tools"
)

// AcquireReporter forwards installer stages to the progress table as row
// updates keyed by locator.
type AcquireReporter struct {
	send func(tea.Msg)
}

// NewAcquireReporter wraps a bubbletea send function.
func NewAcquireReporter(send func(tea.Msg)) *AcquireReporter {
	return &AcquireReporter{send: send}
}

// Stage implements tools.Reporter.
func (r *AcquireReporter) Stage(locator string, stage tools.Stage, detail string) {
	fields := map[string]string{
		ColStatus: string(stage),
		ColDetail: detail,
	}
	switch stage {
	case tools.StageCached:
		fields[ColVersion] = detail
		fields[ColDetail] = "already in toolcache"
	case tools.StageStoring:
		fields[ColVersion] = detail
	}
	r.send(RowUpdateMsg{Key: locator, Fields: fields})
}

var _ tools.Reporter = (*AcquireReporter)(nil)

// RowUpdateMsg sets fields of the row identified by Key. Fields are keyed by
// column header; unknown keys and headers are ignored.
type RowUpdateMsg struct {
	Key    string
	Fields map[string]string
}

// WorkDoneMsg ends the program once every acquisition has returned.
type WorkDoneMsg struct{}

// ErrorMsg ends the program with a fatal error.
type ErrorMsg struct {
	Err error
}
