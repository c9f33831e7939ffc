package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"bundlectl/internal/bundle"
	"bundlectl/internal/toolcache"
	"bundlectl/internal/tui"
)

var cacheToolName string

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the bundle cache",
	}

	cmd.PersistentFlags().StringVar(&cacheToolName, "tool", "", "Tool name (defaults to the configured tool_name)")
	cmd.AddCommand(newCacheListCmd())
	cmd.AddCommand(newCacheFindCmd())
	return cmd
}

func newCacheListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List complete cache entries",
		Args:  cobra.NoArgs,
		RunE:  runCacheList,
	}
}

func newCacheFindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find <version>",
		Short: "Print the cached directory for a bundle version",
		Args:  cobra.ExactArgs(1),
		RunE:  runCacheFind,
	}
}

func runCacheList(cmd *cobra.Command, _ []string) error {
	env, closeEnv, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer closeEnv()

	entries, err := env.Cache.List()
	if err != nil {
		return err
	}
	if cacheToolName != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.ToolName == cacheToolName {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	sortEntries(entries)

	if outputJSON {
		if entries == nil {
			entries = []toolcache.Entry{}
		}
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	if len(entries) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No bundles cached in %s\n", env.Cache.Root())
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		status := "ok"
		if !bundle.MeetsMinimum(e.Semver, env.Config.MinimumVersion) {
			status = "outdated"
		}
		stored := "-"
		if !e.StoredAt.IsZero() {
			stored = e.StoredAt.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{e.ToolName, e.Semver, e.Arch, status, stored, e.LocalPath})
	}
	fmt.Fprint(cmd.OutOrStdout(), tui.RenderTable([]string{"TOOL", "VERSION", "ARCH", "STATUS", "STORED", "PATH"}, rows, 3))
	return nil
}

func runCacheFind(cmd *cobra.Command, args []string) error {
	env, closeEnv, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer closeEnv()

	semver, err := bundle.NormalizeToSemver(args[0], env.Logger)
	if err != nil {
		return err
	}
	tool := cacheToolName
	if tool == "" {
		tool = env.Config.ToolName
	}

	path, ok := env.Cache.Find(tool, semver)
	if !ok {
		return fmt.Errorf("%s %s is not in the toolcache", tool, semver)
	}

	if outputJSON {
		data, err := json.MarshalIndent(map[string]string{"tool": tool, "version": semver, "path": path}, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func sortEntries(entries []toolcache.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ToolName != entries[j].ToolName {
			return entries[i].ToolName < entries[j].ToolName
		}
		return entries[i].Semver < entries[j].Semver
	})
}
