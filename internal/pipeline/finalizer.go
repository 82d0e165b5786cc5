package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"astrodriz/internal/config"
	"astrodriz/internal/exposure"
	"astrodriz/internal/fitsfile"
	"astrodriz/internal/headerlet"
	"astrodriz/internal/ledger"
	"astrodriz/internal/logging"
	"astrodriz/internal/products"
	"astrodriz/internal/services"
	"astrodriz/internal/stage"
	"astrodriz/internal/staging"
	"astrodriz/internal/trailer"
)

// Finalizer settles an aligned run: stamps the calibration switch on the
// combined products, normalizes product names, exports headerlets, and
// cleans up working files.
type Finalizer struct {
	cfg     *config.Config
	store   *ledger.Store
	logger  *slog.Logger
	staging *staging.Manager
	opts    Options
}

// NewFinalizer constructs the finalization stage handler.
func NewFinalizer(cfg *config.Config, store *ledger.Store, logger *slog.Logger, opts Options) *Finalizer {
	f := &Finalizer{cfg: cfg, store: store, staging: staging.NewManager(cfg, logger), opts: opts}
	f.SetLogger(logger)
	return f
}

// SetLogger updates the finalizer's logging destination while preserving component labeling.
func (f *Finalizer) SetLogger(logger *slog.Logger) {
	f.logger = logging.NewComponentLogger(logger, "finalize")
}

func (f *Finalizer) Prepare(ctx context.Context, run *ledger.Run) error {
	if strings.TrimSpace(run.AcceptedMode) == "" {
		return services.Wrap(services.ErrValidation, "finalize", "check run",
			"Run has no accepted alignment; rerun the alignment stage", nil)
	}
	run.ProgressMessage = "Finalizing products"
	return nil
}

func (f *Finalizer) Execute(ctx context.Context, run *ledger.Run) error {
	logger := logging.WithContext(ctx, f.logger)
	dir := filepath.Dir(run.SourcePath)
	trl := trailer.New(exposure.TrailerRoot(run.SourcePath))

	combined, err := stage.ParseProducts(run.ProductsJSON)
	if err != nil {
		return err
	}
	if len(combined) == 0 {
		return services.Wrap(services.ErrValidation, "finalize", "check products",
			"No combined products recorded for run", nil)
	}

	// Archive deliveries must be lower case; the engine occasionally
	// carries an upper-case rootname through from old association tables.
	finalNames := make([]string, 0, len(combined))
	for _, name := range combined {
		lower := strings.ToLower(name)
		if lower != name {
			if err := os.Rename(filepath.Join(dir, name), filepath.Join(dir, lower)); err != nil {
				return fmt.Errorf("normalize product name %s: %w", name, err)
			}
		}
		finalNames = append(finalNames, lower)
	}

	for _, name := range finalNames {
		path := filepath.Join(dir, name)
		if err := products.StampComplete(path); err != nil {
			if errors.Is(err, fitsfile.ErrNoCard) {
				logger.Warn("calibration switch keyword missing on product",
					logging.String("product", name))
				continue
			}
			return fmt.Errorf("stamp calibration switch on %s: %w", name, err)
		}
	}

	if encoded, err := stage.EncodeProducts(finalNames); err == nil {
		run.ProductsJSON = encoded
	}

	sets, err := resolveSets(run, isWFPC2(run), false)
	if err != nil {
		return err
	}

	if f.opts.Headerlets {
		msg := trailer.Timestamp("Writing Headerlets started")
		for _, cal := range sets.CalFiles {
			name, created, err := headerlet.Export(cal)
			if err != nil {
				msg += trailer.Timestamp(fmt.Sprintf("SKIPPED: Headerlet not created for %s ", filepath.Base(cal)))
				logger.Warn("headerlet export failed",
					logging.String("file", filepath.Base(cal)),
					logging.Error(err))
				continue
			}
			if created {
				msg += fmt.Sprintf("Created Headerlet file %s \n", filepath.Base(name))
			}
		}
		msg += trailer.Timestamp("Writing Headerlets completed")
		if err := trl.Write(msg); err != nil {
			return err
		}
	}

	if sets.PipelineCopy != "" {
		if err := os.Remove(sets.PipelineCopy); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("pipeline association copy not removed", logging.Error(err))
		}
	}

	if !f.opts.KeepStaging {
		if err := f.staging.ReleaseDataset(run.Dataset); err != nil {
			logger.Warn("staging cleanup failed", logging.Error(err))
		}
	}

	final := fmt.Sprintf("%s: Finished processing %s \n", trailer.HumanTime(), run.Dataset)
	final += trailer.Timestamp("Drizzle completed ")
	if err := trl.Write(final); err != nil {
		return err
	}

	if run.NeedsReview {
		run.SetProgressComplete("Needs review", run.ReviewReason)
	} else {
		run.SetProgressComplete("Completed", "Calibration pipeline finished")
	}
	logger.Info("run finalized",
		logging.String("accepted_mode", run.AcceptedMode),
		logging.Int("products", len(finalNames)),
		logging.Bool("needs_review", run.NeedsReview))
	return nil
}

// HealthCheck verifies finalization prerequisites.
func (f *Finalizer) HealthCheck(ctx context.Context) stage.Health {
	const name = "finalize"
	if f.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(f.cfg.Paths.StagingDir) == "" {
		return stage.Unhealthy(name, "staging directory not configured")
	}
	return stage.Healthy(name)
}
