package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"astrodriz/internal/align"
	"astrodriz/internal/config"
	"astrodriz/internal/exposure"
	"astrodriz/internal/focus"
	"astrodriz/internal/ledger"
	"astrodriz/internal/logging"
	"astrodriz/internal/mask"
	"astrodriz/internal/notifications"
	"astrodriz/internal/services"
	"astrodriz/internal/services/catalign"
	"astrodriz/internal/services/drizzle"
	"astrodriz/internal/services/wcsup"
	"astrodriz/internal/stage"
	"astrodriz/internal/staging"
	"astrodriz/internal/trailer"
)

// AttemptVerifier runs one alignment attempt. align.Verifier is the
// production implementation.
type AttemptVerifier interface {
	Verify(ctx context.Context, req align.Request, params align.ModeParams) (*align.Verification, error)
}

// Aligner sequences the alignment attempts for one run: pipeline-default,
// a-priori and a-posteriori, in that order, keeping the last accepted
// result. Each attempt is recorded in the ledger whether it was accepted
// or not.
type Aligner struct {
	cfg      *config.Config
	store    *ledger.Store
	logger   *slog.Logger
	verifier AttemptVerifier
	updater  wcsup.Updater
	notifier notifications.Service
	opts     Options
}

// NewAligner constructs the alignment stage handler with CLI-backed
// collaborators from configuration.
func NewAligner(cfg *config.Config, store *ledger.Store, logger *slog.Logger, notifier notifications.Service, opts Options) (*Aligner, error) {
	engine, err := drizzle.NewCLI(cfg.Drizzle.Binary, cfg.Drizzle.Timeout)
	if err != nil {
		return nil, err
	}
	catAligner, err := catalign.NewCLI(cfg.Aligner.Binary, cfg.Aligner.Timeout)
	if err != nil {
		return nil, err
	}
	updater, err := wcsup.NewCLI(cfg.WCSUpdater.Binary, cfg.WCSUpdater.Timeout)
	if err != nil {
		return nil, err
	}
	manager := staging.NewManager(cfg, logger)
	masks := align.Masks{
		Builder:     mask.NewBuilder(logger),
		Bits:        maskBits(cfg),
		TemplateDir: cfg.Paths.TemplateDir,
	}
	verifier := align.NewVerifier(manager, engine, catAligner, updater, focus.NewMeter(logger), masks, logger)
	return NewAlignerWithDependencies(cfg, store, logger, notifier, verifier, updater, opts), nil
}

// maskBits translates the configured flag selector. Negative values turn
// data-quality masking off entirely.
func maskBits(cfg *config.Config) *int32 {
	if cfg.Drizzle.MaskBits < 0 {
		return nil
	}
	bits := int32(cfg.Drizzle.MaskBits)
	return &bits
}

// NewAlignerWithDependencies allows injecting collaborators (used in tests).
func NewAlignerWithDependencies(cfg *config.Config, store *ledger.Store, logger *slog.Logger, notifier notifications.Service, verifier AttemptVerifier, updater wcsup.Updater, opts Options) *Aligner {
	a := &Aligner{cfg: cfg, store: store, notifier: notifier, verifier: verifier, updater: updater, opts: opts}
	a.SetLogger(logger)
	return a
}

// SetLogger updates the aligner's logging destination while preserving component labeling.
func (a *Aligner) SetLogger(logger *slog.Logger) {
	a.logger = logging.NewComponentLogger(logger, "align")
}

func (a *Aligner) Prepare(ctx context.Context, run *ledger.Run) error {
	if strings.TrimSpace(run.TrailerPath) == "" {
		return services.Wrap(services.ErrValidation, "align", "check run",
			"Run was not validated; no trailer path recorded", nil)
	}
	run.ProgressMessage = "Preparing alignment attempts"
	return nil
}

func (a *Aligner) Execute(ctx context.Context, run *ledger.Run) error {
	logger := logging.WithContext(ctx, a.logger)
	dir := filepath.Dir(run.SourcePath)
	trl := trailer.New(exposure.TrailerRoot(run.SourcePath))

	sets, err := resolveSets(run, isWFPC2(run), true)
	if err != nil {
		return err
	}

	// Refresh distortion solutions in place before the first attempt so
	// every mode starts from the same calibrated baseline. The astrometry
	// database is deliberately left out here; the a-priori attempt owns
	// that step.
	updateSets := [][]string{baseNames(sets.CalFiles)}
	if len(sets.CTEFiles) > 0 {
		updateSets = append(updateSets, baseNames(sets.CTEFiles))
	}
	for _, names := range updateSets {
		if err := a.updater.Update(ctx, names, dir, false); err != nil {
			return services.Wrap(services.ErrExternalTool, "align", "update wcs",
				"Could not update WCS solutions before alignment", err)
		}
	}

	req := align.Request{
		Dataset:     run.Dataset,
		Dir:         dir,
		Instrument:  run.Instrument,
		Inputs:      sets.Inputs,
		CalFiles:    sets.CalFiles,
		CalFilesCTE: sets.CTEFiles,
		Trailer:     trl,
	}

	modes := a.modes()
	var accepted *align.Verification
	for i, mode := range modes {
		params, err := align.ParamsForMode(mode, a.opts.Cores, a.opts.InMemory, a.opts.Force)
		if err != nil {
			return err
		}

		run.SetProgress("Aligning", fmt.Sprintf("Attempting %s alignment", mode),
			float64(i)/float64(len(modes))*100)
		if err := a.store.Update(ctx, run); err != nil {
			logger.Warn("progress update not persisted", logging.Error(err))
		}

		started := time.Now().UTC()
		verification, verifyErr := a.verifier.Verify(ctx, req, params)
		finished := time.Now().UTC()

		a.recordAttempt(ctx, logger, run, mode, started, finished, verification, verifyErr)
		if verifyErr != nil {
			return verifyErr
		}
		if verification.Accepted {
			accepted = verification
			logger.Info("attempt accepted",
				logging.String(logging.FieldMode, string(mode)),
				logging.Bool("compromised", verification.Compromised),
				logging.Int("products", len(verification.Products)))
		} else {
			logger.Info("attempt rejected",
				logging.String(logging.FieldMode, string(mode)),
				logging.String("reason", verification.Reason))
		}
	}

	if accepted == nil {
		if err := trl.Write("No alignment attempt was accepted; dataset left unprocessed.\n"); err != nil {
			return err
		}
		return services.Wrap(services.ErrValidation, "align", "verify alignment",
			"No alignment attempt was accepted", nil)
	}

	run.AcceptedMode = string(accepted.Mode)
	productsJSON, err := stage.EncodeProducts(accepted.Products)
	if err != nil {
		return err
	}
	run.ProductsJSON = productsJSON
	if accepted.Compromised {
		run.NeedsReview = true
		run.ReviewReason = accepted.Reason
		if a.notifier != nil {
			if err := a.notifier.Publish(ctx, notifications.EventReviewNeeded, notifications.Payload{
				"dataset": run.Dataset,
				"reason":  accepted.Reason,
			}); err != nil {
				logger.Debug("review notification failed", logging.Error(err))
			}
		}
	}

	run.SetProgress("Aligning", fmt.Sprintf("Accepted %s alignment", accepted.Mode), 100)
	logger.Info("alignment settled",
		logging.String("accepted_mode", run.AcceptedMode),
		logging.Bool("needs_review", run.NeedsReview),
		logging.Int("products", len(accepted.Products)))
	return nil
}

// HealthCheck verifies alignment prerequisites.
func (a *Aligner) HealthCheck(ctx context.Context) stage.Health {
	const name = "align"
	if a.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if a.verifier == nil {
		return stage.Unhealthy(name, "attempt verifier unavailable")
	}
	if strings.TrimSpace(a.cfg.Paths.StagingDir) == "" {
		return stage.Unhealthy(name, "staging directory not configured")
	}
	return stage.Healthy(name)
}

func (a *Aligner) modes() []align.Mode {
	modes := make([]align.Mode, 0, 3)
	for _, mode := range align.Modes() {
		switch mode {
		case align.ModeApriori:
			if !a.opts.ApplyApriori {
				continue
			}
		case align.ModeAposteriori:
			if !a.opts.Aposteriori {
				continue
			}
		}
		modes = append(modes, mode)
	}
	return modes
}

func (a *Aligner) recordAttempt(ctx context.Context, logger *slog.Logger, run *ledger.Run, mode align.Mode, started, finished time.Time, verification *align.Verification, verifyErr error) {
	attempt := &ledger.Attempt{
		RunID:      run.ID,
		Mode:       string(mode),
		StartedAt:  started,
		FinishedAt: &finished,
	}
	switch {
	case verification != nil:
		attempt.Accepted = verification.Accepted
		attempt.FocusOK = verification.FocusOK
		attempt.Compromised = verification.Compromised
		attempt.Reason = verification.Reason
		attempt.StagingDir = verification.StagingDir
		if verification.SimilarityChecked {
			similarity := verification.Similarity
			attempt.Similarity = &similarity
		}
		if encoded, err := stage.EncodeProducts(verification.Products); err == nil {
			attempt.ProductsJSON = encoded
		}
	case verifyErr != nil:
		attempt.Reason = verifyErr.Error()
	}
	if err := a.store.RecordAttempt(ctx, attempt); err != nil {
		logger.Warn("attempt record not persisted", logging.Error(err))
	}
}
