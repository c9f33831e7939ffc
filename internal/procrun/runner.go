package procrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"bundlectl/internal/logx"
)

// Options configures one invocation.
type Options struct {
	// Stdout and Stderr receive live output. They default to the parent
	// process's own streams.
	Stdout io.Writer
	Stderr io.Writer
	// IgnoreReturnCode returns an unmatched non-zero exit code instead of
	// failing.
	IgnoreReturnCode bool
	// Env is appended to the parent environment.
	Env []string
	Dir string
}

// Runner executes subprocesses and classifies their failures through an
// ordered matcher list. All per-call state is local, so a Runner may be
// shared.
type Runner struct {
	logger             logx.Logger
	execCommandContext func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// New returns a Runner that logs through logger.
func New(logger logx.Logger) *Runner {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Runner{
		logger:             logger,
		execCommandContext: exec.CommandContext,
	}
}

// Run executes command and returns its exit code.
//
// Exit 0 returns immediately without consulting matchers. Otherwise the first
// matcher, in declared order, whose exit code equals the actual code or whose
// pattern matches stderr or stdout produces a *MatchedError. Unmatched
// failures return the code when IgnoreReturnCode is set, and an *ExitError
// otherwise.
func (r *Runner) Run(ctx context.Context, command string, args []string, matchers []Matcher, opts Options) (int, error) {
	outcome, err := r.RunOutcome(ctx, command, args, matchers, opts)
	return outcome.ExitCode, err
}

// RunOutcome is Run, returning the captured output as well.
func (r *Runner) RunOutcome(ctx context.Context, command string, args []string, matchers []Matcher, opts Options) (ProcessOutcome, error) {
	cmd := r.execCommandContext(ctx, command, args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	stdoutListener := opts.Stdout
	if stdoutListener == nil {
		stdoutListener = os.Stdout
	}
	stderrListener := opts.Stderr
	if stderrListener == nil {
		stderrListener = os.Stderr
	}

	var (
		stdoutBuf, stderrBuf bytes.Buffer
		mu                   sync.Mutex
	)
	cmd.Stdout = io.MultiWriter(&stdoutBuf, &lockedWriter{mu: &mu, w: stdoutListener})
	cmd.Stderr = io.MultiWriter(&stderrBuf, &lockedWriter{mu: &mu, w: stderrListener})

	r.logger.Debug("Running %s %s", command, strings.Join(args, " "))

	if err := cmd.Start(); err != nil {
		return r.launchFailure(command, matchers, err)
	}
	waitErr := cmd.Wait()

	outcome := ProcessOutcome{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String()}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return outcome, fmt.Errorf("run %s: %w", command, waitErr)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			outcome.ExitCode = exitErr.ExitCode()
			return outcome, fmt.Errorf("run %s: %w", command, ctxErr)
		}
		outcome.ExitCode = exitErr.ExitCode()
	}

	if outcome.ExitCode == 0 {
		return outcome, nil
	}

	for _, m := range matchers {
		if m.matches(outcome.ExitCode, outcome.Stdout, outcome.Stderr) {
			r.logger.Debug("Process %s failed with exit code %d; matched %q.", command, outcome.ExitCode, m.Message)
			return outcome, &MatchedError{Matcher: m, Outcome: outcome}
		}
	}

	if opts.IgnoreReturnCode {
		return outcome, nil
	}
	return outcome, &ExitError{Command: command, Outcome: outcome}
}

// launchFailure handles a process that never started. Only pattern matchers
// apply, tested against the launch error's text; exit-code matchers cannot
// match a process that has no exit code. An unclaimed launch error is
// returned unchanged.
func (r *Runner) launchFailure(command string, matchers []Matcher, launchErr error) (ProcessOutcome, error) {
	r.logger.Debug("Failed to start %s: %v", command, launchErr)
	text := launchErr.Error()
	for _, m := range matchers {
		if m.matchesOutput(text) {
			return ProcessOutcome{}, &MatchedError{Matcher: m, Err: launchErr}
		}
	}
	return ProcessOutcome{}, launchErr
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
