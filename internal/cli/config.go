package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"bundlectl/internal/config"
)

const redacted = "***"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or edit the configuration",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
			}
			if err := writeDefaultConfig(configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration in YAML",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadEffectiveConfig()
				if err != nil {
					return err
				}
				return printConfig(cmd.OutOrStdout(), cfg)
			},
		},
		initCmd,
		&cobra.Command{
			Use:   "edit",
			Short: "Open the configuration in $VISUAL or $EDITOR",
			RunE:  runConfigEdit,
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check the effective configuration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadEffectiveConfig()
				if err != nil {
					return err
				}
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("%s: %w", configPath, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", configPath)
				return nil
			},
		},
	)
	return cmd
}

// loadEffectiveConfig is the file configuration with BUNDLECTL_* overrides
// applied.
func loadEffectiveConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyEnv(config.NewViper()); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// printConfig writes cfg as YAML with the token masked.
func printConfig(w io.Writer, cfg config.Config) error {
	if cfg.Token != "" {
		cfg.Token = redacted
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	if !strings.HasSuffix(string(data), "\n") {
		data = append(data, '\n')
	}
	_, err = w.Write(data)
	return err
}

func runConfigEdit(cmd *cobra.Command, _ []string) error {
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := writeDefaultConfig(configPath); err != nil {
			return err
		}
	} else if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}

	argv := editorCommand(os.Getenv)
	if len(argv) == 0 {
		return errors.New("no editor configured")
	}

	editor := exec.CommandContext(cmd.Context(), argv[0], append(argv[1:], configPath)...)
	editor.Stdin = cmd.InOrStdin()
	editor.Stdout = cmd.OutOrStdout()
	editor.Stderr = cmd.ErrOrStderr()
	if err := editor.Run(); err != nil {
		return fmt.Errorf("editor %s: %w", argv[0], err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s was saved but is invalid: %w", configPath, err)
	}
	return nil
}

// editorCommand splits $VISUAL, then $EDITOR, into argv, falling back to vi.
func editorCommand(getenv func(string) string) []string {
	for _, key := range []string{"VISUAL", "EDITOR"} {
		if argv := strings.Fields(getenv(key)); len(argv) > 0 {
			return argv
		}
	}
	return []string{"vi"}
}

func writeDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := config.Default().Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}
