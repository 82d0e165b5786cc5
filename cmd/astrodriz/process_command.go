package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"astrodriz/internal/config"
	"astrodriz/internal/exposure"
	"astrodriz/internal/ledger"
	"astrodriz/internal/logging"
	"astrodriz/internal/notifications"
	"astrodriz/internal/pipeline"
	"astrodriz/internal/stage"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var force bool
	var inMemory bool
	var cores int
	var noHeaderlets bool
	var noAposteriori bool
	var workRoot string
	var keepStaging bool

	cmd := &cobra.Command{
		Use:   "process <exposure-or-association>",
		Short: "Calibrate, align, and combine one dataset",
		Long: `Process a single exposure or association table through the full
validate-align-finalize chain. The dataset is claimed in the run ledger so a
concurrently running watch service will not pick it up a second time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			input, err := config.ExpandPath(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("resolve input path: %w", err)
			}
			info, err := os.Stat(input)
			if err != nil {
				return fmt.Errorf("inspect input %q: %w", input, err)
			}
			if info.IsDir() {
				return fmt.Errorf("input %q is a directory; pass an exposure or association file", input)
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			opts := pipeline.OptionsFromConfig(cfg)
			opts.Force = force
			if cmd.Flags().Changed("in-memory") {
				opts.InMemory = inMemory
			}
			if cmd.Flags().Changed("cores") {
				opts.Cores = cores
			}
			if noHeaderlets {
				opts.Headerlets = false
			}
			if noAposteriori {
				opts.Aposteriori = false
			}
			if keepStaging {
				opts.KeepStaging = true
			}
			opts.WorkRoot = strings.TrimSpace(workRoot)

			return ctx.withStore(func(store *ledger.Store) error {
				cmdCtx := cmd.Context()
				root, _ := exposure.SplitName(input)
				dataset := strings.ToLower(root)

				existing, err := store.FindActiveByDataset(cmdCtx, dataset)
				if err != nil {
					return err
				}
				if existing != nil {
					return fmt.Errorf("dataset %s is already queued as run %d (%s)",
						dataset, existing.ID, existing.Status)
				}

				source := input
				var rel *pipeline.Relocation
				if opts.WorkRoot != "" {
					rel, err = pipeline.Relocate(input, opts.WorkRoot, logger)
					if err != nil {
						return fmt.Errorf("relocate dataset: %w", err)
					}
					source = rel.SourcePath
				}

				run, err := store.NewRun(cmdCtx, dataset, source)
				if err != nil {
					return err
				}

				notifier := notifications.NewService(cfg)
				p, err := pipeline.New(cfg, store, logger, notifier, opts)
				if err != nil {
					return err
				}

				procErr := p.ProcessRun(cmdCtx, run)
				if rel != nil {
					if restoreErr := rel.Restore(); restoreErr != nil {
						logger.Warn("dataset not restored to source directory",
							logging.String("work_dir", rel.WorkDir),
							logging.Error(restoreErr))
					} else if strings.TrimSpace(run.TrailerPath) != "" {
						run.TrailerPath = filepath.Join(rel.OriginalDir, filepath.Base(run.TrailerPath))
					}
				}
				if procErr != nil {
					return procErr
				}
				return printRunOutcome(cmd, ctx, run)
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Process even when DRIZCORR is OMIT and keep compromised solutions")
	cmd.Flags().BoolVarP(&inMemory, "in-memory", "i", false, "Hold intermediate drizzle products in memory")
	cmd.Flags().IntVarP(&cores, "cores", "n", 0, "Drizzle engine worker count")
	cmd.Flags().BoolVar(&noHeaderlets, "no-headerlets", false, "Skip headerlet export after acceptance")
	cmd.Flags().BoolVar(&noAposteriori, "no-aposteriori", false, "Skip the a-posteriori catalog alignment attempt")
	cmd.Flags().StringVar(&workRoot, "workroot", "", "Process inside a fresh directory under this root")
	cmd.Flags().BoolVar(&keepStaging, "keep-staging", false, "Keep per-attempt staging directories")
	return cmd
}

func printRunOutcome(cmd *cobra.Command, ctx *commandContext, run *ledger.Run) error {
	products, err := stage.ParseProducts(run.ProductsJSON)
	if err != nil {
		products = nil
	}

	if ctx.JSONMode() {
		return writeJSON(cmd, map[string]any{
			"run_id":       run.ID,
			"dataset":      run.Dataset,
			"kind":         run.InputKind,
			"status":       string(run.Status),
			"mode":         run.AcceptedMode,
			"products":     products,
			"trailer":      run.TrailerPath,
			"needs_review": run.NeedsReview,
		})
	}

	out := cmd.OutOrStdout()
	switch run.Status {
	case ledger.StatusCompleted:
		fmt.Fprintf(out, "Completed %s (%s alignment)\n", run.Dataset, run.AcceptedMode)
		for _, product := range products {
			fmt.Fprintf(out, "  Product: %s\n", product)
		}
		if strings.TrimSpace(run.TrailerPath) != "" {
			fmt.Fprintf(out, "  Trailer: %s\n", run.TrailerPath)
		}
		if run.NeedsReview {
			fmt.Fprintf(out, "  Review needed: %s\n", run.ReviewReason)
		}
	case ledger.StatusSkipped:
		fmt.Fprintf(out, "Skipped %s: %s\n", run.Dataset, run.ProgressMessage)
	default:
		fmt.Fprintf(out, "Run %d finished with status %s\n", run.ID, formatStatusLabel(string(run.Status)))
	}
	return nil
}
