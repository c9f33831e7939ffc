package tui

import (
	"context"
	"errors"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"bundlectl/internal/tools"
)

// ErrInterrupted is returned when the user quits the table before the
// acquisitions finish.
var ErrInterrupted = errors.New("interrupted")

// RunAcquisition draws the acquisition table for locators while work runs in
// the background. work reports through the given Reporter; quitting the table
// cancels the context handed to work, and RunAcquisition waits for work to
// return before it does.
func RunAcquisition(ctx context.Context, out io.Writer, locators []string, work func(ctx context.Context, r tools.Reporter)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewAcquireModel(locators), tea.WithOutput(out))
	send := func(msg tea.Msg) {
		p.Send(msg)
		// Cache hits report several stages back to back; give the renderer
		// a frame for each.
		time.Sleep(5 * time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Let bubbletea start its event loop and render the initial frame.
		time.Sleep(50 * time.Millisecond)
		work(ctx, NewAcquireReporter(send))
		p.Send(WorkDoneMsg{})
	}()

	finalModel, err := p.Run()
	cancel()
	<-done
	if err != nil {
		return err
	}
	m, ok := finalModel.(ProgressModel)
	if !ok {
		return nil
	}
	if m.Err() != nil {
		return m.Err()
	}
	if m.Interrupted() {
		return ErrInterrupted
	}
	return nil
}
