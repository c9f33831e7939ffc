package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"bundlectl/internal/app"
	"bundlectl/internal/clierrors"
	"bundlectl/internal/config"
	"bundlectl/internal/procrun"
)

var (
	configPath string
	outputJSON bool
	debugLogs  bool
)

// Execute runs the root cobra command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bundlectl",
		Short:         "Provision CodeQL bundles and run their CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultFileName, "Path to configuration file")
	cmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")
	cmd.PersistentFlags().BoolVar(&debugLogs, "debug", false, "Enable debug logging")

	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newInstallCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newExecCmd())
	cmd.AddCommand(newClassifyCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}

// openEnv wires the services for one command invocation. The returned
// function flushes logs and must be called.
func openEnv(cmd *cobra.Command) (*app.Env, func(), error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := app.Build(ctx, app.Options{
		ConfigPath: configPath,
		Debug:      debugLogs,
		Console:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, nil, err
	}
	return env, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := env.Close(stopCtx); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		}
	}, nil
}

// exitCodeFor propagates a failed child's exit code so wrapper scripts see the
// same status the CLI produced.
func exitCodeFor(err error) int {
	var exitErr *procrun.ExitError
	if errors.As(err, &exitErr) && exitErr.Outcome.ExitCode > 0 {
		return exitErr.Outcome.ExitCode
	}
	var matched *procrun.MatchedError
	if errors.As(err, &matched) && matched.Outcome.ExitCode > 0 {
		return matched.Outcome.ExitCode
	}
	var cliErr *clierrors.CLIError
	if errors.As(err, &cliErr) && cliErr.ExitCode != nil && *cliErr.ExitCode > 0 {
		return *cliErr.ExitCode
	}
	return 1
}
