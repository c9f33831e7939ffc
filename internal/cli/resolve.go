package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"bundlectl/internal/bundle"
	"bundlectl/internal/logx"
	"bundlectl/internal/tui"
)

type resolvedLocator struct {
	Locator   string `json:"locator"`
	Version   string `json:"version,omitempty"`
	Semver    string `json:"semver,omitempty"`
	Tag       string `json:"tag,omitempty"`
	Satisfied bool   `json:"satisfied"`
	Error     string `json:"error,omitempty"`
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <locator>...",
		Short: "Print the version a bundle URL or release tag refers to",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runResolve,
	}
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadEffectiveConfig()
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if debugLogs {
		level = "debug"
	}
	logger, closer, err := logx.New(logx.Options{Level: level, Console: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer closer.Close()

	results, errs := resolveLocators(args, cfg.MinimumVersion, logger)

	if outputJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	} else {
		rows := make([][]string, 0, len(results))
		for _, r := range results {
			status := "ok"
			switch {
			case r.Error != "":
				status = "error"
			case !r.Satisfied:
				status = "outdated"
			}
			rows = append(rows, []string{
				r.Locator,
				tui.NonEmptyOrDash(r.Version),
				tui.NonEmptyOrDash(r.Semver),
				tui.NonEmptyOrDash(r.Tag),
				status,
			})
		}
		fmt.Fprint(cmd.OutOrStdout(), tui.RenderTable([]string{"LOCATOR", "VERSION", "SEMVER", "TAG", "STATUS"}, rows, 4))
	}

	return errors.Join(errs...)
}

func resolveLocators(locators []string, minimum string, logger logx.Logger) ([]resolvedLocator, []error) {
	var (
		results []resolvedLocator
		errs    []error
	)
	for _, loc := range locators {
		spec, err := bundle.Resolve(loc, logger)
		if err != nil {
			results = append(results, resolvedLocator{Locator: loc, Error: err.Error()})
			errs = append(errs, err)
			continue
		}
		results = append(results, resolvedLocator{
			Locator:   loc,
			Version:   spec.RawVersion,
			Semver:    spec.CanonicalSemver,
			Tag:       bundle.TagName(spec.RawVersion),
			Satisfied: bundle.MeetsMinimum(spec.CanonicalSemver, minimum),
		})
	}
	return results, errs
}
