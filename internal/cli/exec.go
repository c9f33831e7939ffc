package cli

import (
	"github.com/spf13/cobra"

	"bundlectl/internal/clierrors"
	"bundlectl/internal/procrun"
)

var (
	execMatchers         []string
	execIgnoreReturnCode bool
	execClassify         bool
	execDir              string
)

func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec [flags] -- <command> [args...]",
		Short: "Run a command, translating known failures into readable errors",
		Long: `Run a command with its output relayed live. When it fails, matchers from the
configuration and from --matcher are tried in order and the first match
replaces the error. With --classify, unmatched failures are summarised from
stderr and checked against the known CLI error categories.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runExec,
	}

	cmd.Flags().StringArrayVar(&execMatchers, "matcher", nil, "Failure matcher CODE:REGEX:MESSAGE (repeatable)")
	cmd.Flags().BoolVar(&execIgnoreReturnCode, "ignore-return-code", false, "Succeed on unmatched non-zero exit codes")
	cmd.Flags().BoolVar(&execClassify, "classify", false, "Classify unmatched failures as CLI errors")
	cmd.Flags().StringVar(&execDir, "dir", "", "Working directory for the command")

	return cmd
}

func runExec(cmd *cobra.Command, args []string) error {
	env, closeEnv, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer closeEnv()

	matchers := append([]procrun.Matcher(nil), env.Matchers...)
	for _, spec := range execMatchers {
		m, err := procrun.ParseMatcher(spec)
		if err != nil {
			return err
		}
		matchers = append(matchers, m)
	}

	command, commandArgs := args[0], args[1:]
	code, err := env.Runner.Run(cmd.Context(), command, commandArgs, matchers, procrun.Options{
		Stdout:           cmd.OutOrStdout(),
		Stderr:           cmd.ErrOrStderr(),
		IgnoreReturnCode: execIgnoreReturnCode,
		Dir:              execDir,
	})
	if err != nil {
		if execClassify {
			if cliErr, ok := clierrors.FromProcess(command, commandArgs, err); ok {
				return env.Registry.Wrap(cliErr)
			}
		}
		return err
	}
	if code != 0 {
		env.Logger.Warning("%s exited with code %d; ignoring.", command, code)
	}
	return nil
}
