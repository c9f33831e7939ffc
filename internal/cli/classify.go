package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"bundlectl/internal/clierrors"
	"bundlectl/internal/tui"
)

var (
	classifyExitCode int
	classifyCommand  string
	classifyList     bool
	classifyCategory string
)

type classification struct {
	Category   string `json:"category,omitempty"`
	Classified bool   `json:"classified"`
	Message    string `json:"message"`
}

func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [stderr]",
		Short: "Explain a CLI failure from its stderr and exit code",
		Long: `Summarise CLI stderr (read from the argument, or stdin when omitted) and
match it against the known error categories. Prints the category and the
message a user would see.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runClassify,
	}

	cmd.Flags().IntVar(&classifyExitCode, "exit-code", 0, "Exit code of the failed invocation")
	cmd.Flags().StringVar(&classifyCommand, "command", "codeql", "Command name used in the summary")
	cmd.Flags().BoolVar(&classifyList, "list", false, "List the known categories instead")
	cmd.Flags().StringVar(&classifyCategory, "category", "", "Only test against the named category")

	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := loadEffectiveConfig()
	if err != nil {
		return err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return err
	}

	if classifyCategory != "" {
		cat, ok := registry.Lookup(classifyCategory)
		if !ok {
			return fmt.Errorf("unknown category %q (see classify --list)", classifyCategory)
		}
		if registry, err = clierrors.NewRegistry(cat); err != nil {
			return err
		}
	}

	if classifyList {
		return writeCategories(cmd, registry.Categories())
	}

	var stderr string
	if len(args) == 1 {
		stderr = args[0]
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		stderr = string(data)
	}

	var exitCode *int
	if cmd.Flags().Changed("exit-code") {
		code := classifyExitCode
		exitCode = &code
	}

	result := classifyFailure(registry, classifyCommand, exitCode, stderr)

	if outputJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	category := result.Category
	if !result.Classified {
		category = "unclassified"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", category, result.Message)
	return nil
}

func classifyFailure(registry *clierrors.Registry, command string, exitCode *int, stderr string) classification {
	cliErr := clierrors.NewCLIError(command, nil, exitCode, stderr)
	wrapped := registry.Wrap(cliErr)

	var cfgErr *clierrors.ConfigurationError
	if errors.As(wrapped, &cfgErr) {
		return classification{Category: cfgErr.Category, Classified: true, Message: cfgErr.Message}
	}
	return classification{Message: wrapped.Error()}
}

func writeCategories(cmd *cobra.Command, categories []clierrors.Category) error {
	if outputJSON {
		data, err := json.MarshalIndent(categories, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	rows := make([][]string, 0, len(categories))
	for _, c := range categories {
		code := "-"
		if c.ExpectedExitCode != nil {
			code = strconv.Itoa(*c.ExpectedExitCode)
		}
		replacement := "-"
		if c.ReplacementMessage != nil {
			replacement = tui.TruncateWithEllipsis(*c.ReplacementMessage, 50)
		}
		rows = append(rows, []string{
			c.Name,
			code,
			tui.TruncateWithEllipsis(strings.Join(c.RequiredSubstrings, " + "), 50),
			replacement,
		})
	}
	fmt.Fprint(cmd.OutOrStdout(), tui.RenderTable([]string{"CATEGORY", "EXIT CODE", "SUBSTRINGS", "REPLACEMENT"}, rows, -1))
	return nil
}
