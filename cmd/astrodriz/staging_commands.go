package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"astrodriz/internal/ledger"
	"astrodriz/internal/staging"
)

func newStagingCommand(ctx *commandContext) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Manage staging directories",
	}

	stagingCmd.AddCommand(newStagingListCommand(ctx))
	stagingCmd.AddCommand(newStagingCleanCommand(ctx))

	return stagingCmd
}

func newStagingListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List staging directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			stagingDir := strings.TrimSpace(cfg.Paths.StagingDir)
			if stagingDir == "" {
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{
						"staging_dir":      "",
						"directories":      []any{},
						"total_size_bytes": 0,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Staging directory not configured")
				return nil
			}

			dirs, err := staging.ListDirectories(stagingDir)
			if err != nil {
				return fmt.Errorf("list staging directories: %w", err)
			}

			if ctx.JSONMode() {
				if dirs == nil {
					dirs = []staging.DirInfo{}
				}
				var totalSize int64
				for _, dir := range dirs {
					totalSize += dir.Size
				}
				return writeJSON(cmd, map[string]any{
					"staging_dir":      stagingDir,
					"directories":      dirs,
					"total_size_bytes": totalSize,
				})
			}

			if len(dirs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No staging directories found")
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Staging directory: %s\n\n", stagingDir)

			var totalSize int64
			rows := make([][]string, 0, len(dirs))
			for _, dir := range dirs {
				age := time.Since(dir.ModTime).Truncate(time.Minute)
				totalSize += dir.Size
				rows = append(rows, []string{dir.Name, formatDuration(age), formatBytes(dir.Size)})
			}

			table := renderTable(
				[]string{"Dataset", "Age", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight},
			)
			fmt.Fprintln(out, table)
			fmt.Fprintf(out, "Total: %d directories, %s\n", len(dirs), formatBytes(totalSize))
			return nil
		},
	}
}

func newStagingCleanCommand(ctx *commandContext) *cobra.Command {
	var cleanAll bool
	var cleanStale bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove leftover staging directories",
		Long: `Remove staging directories no in-flight run owns.

By default, only removes directories whose dataset has no pending or
processing run (leftovers from interrupted or cleared runs). Use --stale to
remove directories older than the configured stale_after_hours regardless of
ownership, or --all to remove every staging directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cleanAll && cleanStale {
				return errors.New("specify only one of --all or --stale")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			stagingDir := strings.TrimSpace(cfg.Paths.StagingDir)
			if stagingDir == "" {
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"removed": 0, "errors": []any{}})
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Staging directory not configured")
				return nil
			}

			switch {
			case cleanAll:
				result := staging.CleanStale(cmd.Context(), stagingDir, 0, nil)
				return printStagingCleanResult(cmd, ctx, result, "staging")
			case cleanStale:
				maxAge := time.Duration(cfg.Staging.StaleAfterHrs) * time.Hour
				result := staging.CleanStale(cmd.Context(), stagingDir, maxAge, nil)
				return printStagingCleanResult(cmd, ctx, result, "stale")
			default:
				return ctx.withStore(func(store *ledger.Store) error {
					active, err := activeDatasetSet(cmd, store)
					if err != nil {
						return err
					}
					result := staging.CleanOrphaned(cmd.Context(), stagingDir, active, nil)
					return printStagingCleanResult(cmd, ctx, result, "orphaned")
				})
			}
		},
	}

	cmd.Flags().BoolVar(&cleanAll, "all", false, "Remove all staging directories (including active)")
	cmd.Flags().BoolVar(&cleanStale, "stale", false, "Remove directories older than stale_after_hours")

	return cmd
}

func activeDatasetSet(cmd *cobra.Command, store *ledger.Store) (map[string]struct{}, error) {
	runs, err := store.List(cmd.Context(),
		ledger.StatusPending,
		ledger.StatusValidating,
		ledger.StatusAligning,
		ledger.StatusFinalizing,
	)
	if err != nil {
		return nil, err
	}
	active := make(map[string]struct{}, len(runs))
	for _, run := range runs {
		active[strings.ToLower(run.Dataset)] = struct{}{}
	}
	return active, nil
}

func printStagingCleanResult(cmd *cobra.Command, ctx *commandContext, result staging.CleanStaleResult, label string) error {
	if ctx.JSONMode() {
		errs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			errs = append(errs, fmt.Sprintf("%s: %v", e.Path, e.Error))
		}
		return writeJSON(cmd, map[string]any{
			"removed": len(result.Removed),
			"errors":  errs,
		})
	}

	out := cmd.OutOrStdout()
	if len(result.Removed) == 0 && len(result.Errors) == 0 {
		fmt.Fprintf(out, "No %s directories to clean\n", label)
		return nil
	}
	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "Removed %d %s directories, %d errors\n", len(result.Removed), label, len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  Error: %s: %v\n", e.Path, e.Error)
		}
		return nil
	}
	fmt.Fprintf(out, "Removed %d %s directories\n", len(result.Removed), label)
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	days := int(d.Hours() / 24)
	return fmt.Sprintf("%dd", days)
}

func formatBytes(value int64) string {
	const (
		kiB = 1024
		miB = kiB * 1024
		giB = miB * 1024
	)
	switch {
	case value >= giB:
		return fmt.Sprintf("%.2f GiB", float64(value)/float64(giB))
	case value >= miB:
		return fmt.Sprintf("%.2f MiB", float64(value)/float64(miB))
	case value >= kiB:
		return fmt.Sprintf("%.2f KiB", float64(value)/float64(kiB))
	default:
		return fmt.Sprintf("%d B", value)
	}
}
