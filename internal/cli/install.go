package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bundlectl/internal/app"
	"bundlectl/internal/tools"
	"bundlectl/internal/tui"
)

var (
	installNoProgress bool
	installTimeout    time.Duration
	installStream     bool
)

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <locator>...",
		Short: "Download and cache bundles by URL or release tag",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runInstall,
	}

	cmd.Flags().BoolVar(&installNoProgress, "no-progress", false, "Disable the interactive progress table")
	cmd.Flags().DurationVar(&installTimeout, "timeout", 30*time.Minute, "Abort acquisition after this long")
	cmd.Flags().BoolVar(&installStream, "stream", false, "Stream-extract zstd bundles without staging the archive")

	return cmd
}

func runInstall(cmd *cobra.Command, args []string) error {
	env, closeEnv, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer closeEnv()

	if cmd.Flags().Changed("stream") {
		env.Config.StreamExtract = installStream
		env.Installer = tools.NewInstaller(env.Cache, env.Client, env.Logger, app.InstallerConfig(env.Config, env.Layout))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), installTimeout)
	defer cancel()

	out := cmd.OutOrStdout()
	locators := dedupe(args)

	var (
		statuses []tools.Status
		errs     []error
	)
	acquireAll := func(ctx context.Context, inst *tools.Installer) {
		for _, loc := range locators {
			res, err := inst.Acquire(ctx, tools.AcquireRequest{
				Locator:       loc,
				Authorization: env.Config.Authorization(),
				ExtraHeaders:  env.Config.Headers,
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", loc, err))
			}
			statuses = append(statuses, inst.StatusFor(loc, res, err))
		}
	}

	switch tui.DetectMode(out, installNoProgress, outputJSON) {
	case tui.ModeJSON:
		acquireAll(ctx, env.Installer)
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		fmt.Fprintln(out, string(data))

	case tui.ModeTUI:
		err := tui.RunAcquisition(ctx, out, locators, func(ctx context.Context, r tools.Reporter) {
			acquireAll(ctx, env.Installer.WithReporter(r))
		})
		if err != nil {
			errs = append(errs, err)
		}

	default:
		acquireAll(ctx, env.Installer.WithReporter(plainReporter(cmd.ErrOrStderr())))
		fmt.Fprint(out, renderStatusTable(statuses))
	}

	return errors.Join(errs...)
}

// plainReporter prints one line per stage transition.
func plainReporter(w io.Writer) tools.Reporter {
	return tools.ReporterFunc(func(locator string, stage tools.Stage, detail string) {
		if detail == "" {
			fmt.Fprintf(w, "[%s] %s\n", locator, stage)
			return
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", locator, stage, detail)
	})
}

func renderStatusTable(statuses []tools.Status) string {
	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		rows = append(rows, []string{
			st.Tool,
			tui.TruncateWithEllipsis(st.Locator, 60),
			tui.NonEmptyOrDash(st.Semver),
			statusLabel(st),
			tui.NonEmptyOrDash(statusDetail(st)),
		})
	}
	return tui.RenderTable([]string{"TOOL", "LOCATOR", "VERSION", "STATUS", "DETAIL"}, rows, 3)
}

func statusLabel(st tools.Status) string {
	switch {
	case st.Error != "":
		return "error"
	case !st.Satisfied:
		return "outdated"
	case st.Source == tools.SourceCache:
		return "cached"
	default:
		return string(st.Source)
	}
}

func statusDetail(st tools.Status) string {
	if st.Error != "" {
		return st.Error
	}
	parts := []string{st.Path}
	parts = append(parts, st.Notes...)
	return strings.Join(parts, "; ")
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
