package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"bundlectl/internal/bundle"
	"bundlectl/internal/clierrors"
	"bundlectl/internal/config"
	"bundlectl/internal/paths"
	"bundlectl/internal/toolcache"
	"bundlectl/internal/tui"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, cache and platform health",
		RunE:  runDoctor,
	}
}

const (
	statusOK      = "ok"
	statusWarning = "warning"
	statusError   = "error"
)

type healthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Summary string `json:"summary"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	var checks []healthCheck

	cfg, cfgErr := loadEffectiveConfig()
	checks = append(checks, checkConfig(cfg, cfgErr))
	checks = append(checks, checkPlatform(runtime.GOOS, runtime.GOARCH))

	if cfgErr != nil {
		return writeDoctorResult(cmd, configPath, checks)
	}

	layout, err := paths.Resolve(cfg.CacheDir, cfg.TempDir, cfg.LogDir)
	if err != nil {
		checks = append(checks, healthCheck{Name: "Cache", Status: statusError, Summary: err.Error()})
		return writeDoctorResult(cmd, configPath, checks)
	}
	checks = append(checks, checkWritable("Cache", layout.CacheRoot))
	checks = append(checks, checkWritable("Temp", layout.TempRoot))
	checks = append(checks, checkBundles(toolcache.New(layout.CacheRoot, nil), cfg))

	return writeDoctorResult(cmd, configPath, checks)
}

func checkConfig(cfg config.Config, cfgErr error) healthCheck {
	if cfgErr != nil {
		return healthCheck{Name: "Config", Status: statusError, Summary: cfgErr.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return healthCheck{Name: "Config", Status: statusError, Summary: err.Error()}
	}
	if _, err := cfg.Registry(); err != nil {
		return healthCheck{Name: "Config", Status: statusError, Summary: err.Error()}
	}
	summary := fmt.Sprintf("%d matchers, %d custom categories", len(cfg.Matchers), len(cfg.Categories))
	if cfg.Token == "" {
		return healthCheck{Name: "Config", Status: statusWarning, Summary: summary + "; no token, downloads are anonymous"}
	}
	return healthCheck{Name: "Config", Status: statusOK, Summary: summary}
}

func checkPlatform(goos, goarch string) healthCheck {
	if !clierrors.SupportedPlatform(goos, goarch) {
		return healthCheck{Name: "Platform", Status: statusError, Summary: fmt.Sprintf("%s/%s is not supported by the CodeQL CLI", goos, goarch)}
	}
	return healthCheck{Name: "Platform", Status: statusOK, Summary: goos + "/" + goarch}
}

func checkWritable(name, dir string) healthCheck {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return healthCheck{Name: name, Status: statusError, Summary: err.Error()}
	}
	marker := filepath.Join(dir, ".write-check-"+uuid.NewString())
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		return healthCheck{Name: name, Status: statusError, Summary: fmt.Sprintf("%s is not writable", dir)}
	}
	_ = os.Remove(marker)
	return healthCheck{Name: name, Status: statusOK, Summary: dir}
}

func checkBundles(cache *toolcache.DirCache, cfg config.Config) healthCheck {
	entries, err := cache.List()
	if err != nil {
		return healthCheck{Name: "Bundles", Status: statusError, Summary: err.Error()}
	}

	var versions []string
	satisfied := false
	for _, e := range entries {
		if e.ToolName != cfg.ToolName {
			continue
		}
		versions = append(versions, e.Semver)
		if bundle.MeetsMinimum(e.Semver, cfg.MinimumVersion) {
			satisfied = true
		}
	}

	if len(versions) == 0 {
		return healthCheck{Name: "Bundles", Status: statusWarning, Summary: fmt.Sprintf("no %s bundles cached", cfg.ToolName)}
	}
	if !satisfied {
		return healthCheck{
			Name:    "Bundles",
			Status:  statusWarning,
			Summary: fmt.Sprintf("%s; none meets minimum %s", strings.Join(versions, ", "), cfg.MinimumVersion),
		}
	}
	return healthCheck{Name: "Bundles", Status: statusOK, Summary: strings.Join(versions, ", ")}
}

// writeDoctorResult prints the checks and fails when any check errored.
func writeDoctorResult(cmd *cobra.Command, source string, checks []healthCheck) error {
	out := cmd.OutOrStdout()
	if outputJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(checks); err != nil {
			return err
		}
	} else {
		rows := make([][]string, 0, len(checks))
		for _, c := range checks {
			rows = append(rows, []string{c.Name, c.Status, c.Summary})
		}
		fmt.Fprintf(out, "%s %s\n", tui.HeaderStyle.Render("HEALTH:"), source)
		fmt.Fprint(out, tui.RenderTable([]string{"CHECK", "STATUS", "SUMMARY"}, rows, 1))
	}

	failed := 0
	for _, c := range checks {
		if c.Status == statusError {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("doctor: %d check(s) failed", failed)
	}
	return nil
}
