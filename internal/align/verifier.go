package align

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"astrodriz/internal/exposure"
	"astrodriz/internal/focus"
	"astrodriz/internal/headerlet"
	"astrodriz/internal/logging"
	"astrodriz/internal/mask"
	"astrodriz/internal/services"
	"astrodriz/internal/services/catalign"
	"astrodriz/internal/services/drizzle"
	"astrodriz/internal/services/wcsup"
	"astrodriz/internal/staging"
	"astrodriz/internal/trailer"
)

// TrailerMarker opens every drizzle block in a dataset trailer. The
// validation stage reuses it for the not-requested note so trailer
// blocks stay uniform.
const TrailerMarker = "*** Drizzle engine processing ***\n"

// Masks carries the weighting-mask wiring for attempts. The zero value
// disables mask construction and every attempt runs unweighted.
type Masks struct {
	Builder *mask.Builder
	// Bits selects the data-quality flags to tolerate; nil masks nothing.
	Bits *int32
	// TemplateDir caches the rendered WFPC2 shadow templates across runs.
	TemplateDir string
}

// Request describes one dataset's inputs for an alignment attempt. All
// paths point into Dir, the dataset directory holding the originals and
// any previously accepted products.
type Request struct {
	Dataset string
	Dir     string

	// Instrument is the camera classification recorded during validation.
	// WFPC2 switches mask construction to the shadow-template path.
	Instrument string

	// Inputs are the engine inputs: the association working copy, or the
	// calibrated exposure for a singleton.
	Inputs []string
	// CalFiles are the uncorrected calibrated exposures (_flt, or _c0m
	// for WFPC2).
	CalFiles []string
	// CalFilesCTE are the CTE-corrected companions (_flc) when present.
	// They are corrected and copied back alongside CalFiles; for
	// associations the engine also combines them into the _drc product.
	CalFilesCTE []string

	Trailer *trailer.Trailer
}

// Verifier runs alignment attempts. One Verifier serves all modes; the
// per-attempt behaviour comes from ModeParams.
type Verifier struct {
	staging   *staging.Manager
	engine    drizzle.Engine
	aligner   catalign.Aligner
	updater   wcsup.Updater
	evaluator focus.Evaluator
	masks     Masks
	logger    *slog.Logger
}

// NewVerifier assembles a Verifier from its collaborators.
func NewVerifier(
	stagingManager *staging.Manager,
	engine drizzle.Engine,
	aligner catalign.Aligner,
	updater wcsup.Updater,
	evaluator focus.Evaluator,
	masks Masks,
	logger *slog.Logger,
) *Verifier {
	return &Verifier{
		staging:   stagingManager,
		engine:    engine,
		aligner:   aligner,
		updater:   updater,
		evaluator: evaluator,
		masks:     masks,
		logger:    logging.NewComponentLogger(logger, "align"),
	}
}

// Verify runs one alignment attempt in a private staging directory and
// scores the result. A rejection comes back as a Verification with
// Accepted unset; an error means the attempt could not be carried out and
// the run should abort. The staging directory is released on every path.
func (v *Verifier) Verify(ctx context.Context, req Request, params ModeParams) (*Verification, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(req.Inputs) == 0 {
		return nil, errors.New("no drizzle inputs")
	}
	if len(req.CalFiles) == 0 {
		return nil, errors.New("no calibrated exposures")
	}
	if req.Trailer == nil {
		return nil, errors.New("trailer required")
	}

	logger := v.logger.With(
		logging.String(logging.FieldDataset, req.Dataset),
		logging.String(logging.FieldMode, string(params.Mode)))

	verification := &Verification{Mode: params.Mode, State: StateStaging}

	work, err := v.staging.Attempt(req.Dataset, string(params.Mode))
	if err != nil {
		return nil, err
	}
	defer work.Release()
	verification.StagingDir = work.Dir

	inputs := make([]string, 0, len(req.Inputs)+2*len(req.CalFiles)+len(req.CalFilesCTE))
	inputs = append(inputs, req.Inputs...)
	inputs = append(inputs, req.CalFiles...)
	inputs = append(inputs, req.CalFilesCTE...)
	// WFPC2 data-quality companions ride along for mask construction.
	for _, cal := range req.CalFiles {
		if dq := exposure.DQCompanion(cal); dq != "" {
			if _, err := os.Stat(dq); err == nil {
				inputs = append(inputs, dq)
			}
		}
	}
	if _, err := work.Stage(inputs...); err != nil {
		return nil, err
	}
	logger.Info("attempt staged",
		logging.Int("files", len(inputs)),
		logging.String("path", work.Dir))

	calNames := baseNames(req.CalFiles)
	cteNames := baseNames(req.CalFilesCTE)

	if n := v.buildMasks(req, work, calNames, cteNames); n > 0 {
		logger.Info("weighting masks staged", logging.Int("masks", n))
	}

	switch params.Mode {
	case ModeApriori:
		verification.State = StateWCS
		rejected, err := v.refreshWCS(ctx, req, work, verification, calNames, cteNames)
		if err != nil {
			return nil, err
		}
		if rejected {
			logger.Warn("attempt rejected", logging.String("reason", verification.Reason))
			return verification, nil
		}
	case ModeAposteriori:
		verification.State = StateWCS
		rejected, err := v.catalogAlign(ctx, req, work, verification, calNames, cteNames)
		if err != nil {
			return nil, err
		}
		if rejected {
			logger.Warn("attempt rejected", logging.String("reason", verification.Reason))
			return verification, nil
		}
	}

	verification.State = StateDrizzle
	if err := v.drizzleAll(ctx, req, work, params, verification); err != nil {
		return nil, err
	}

	verification.State = StateScoring
	if err := v.settle(req, work, params, verification); err != nil {
		return nil, err
	}

	logger.Info("attempt finished",
		logging.String("state", string(verification.State)),
		logging.Bool("accepted", verification.Accepted),
		logging.Bool("focus_ok", verification.FocusOK),
		logging.Bool("compromised", verification.Compromised),
		logging.Int("products", len(verification.Products)))
	return verification, nil
}

// buildMasks writes the per-chip weighting masks beside the staged
// exposures so the engine can weight flagged pixels out. WFPC2 chips
// compose the cached shadow template with the staged c1m data-quality
// arrays; other instruments mask from their own DQ extensions. A mask
// that cannot be built never fails the attempt: the chip just drizzles
// unweighted.
func (v *Verifier) buildMasks(req Request, work *staging.Context, calNames, cteNames []string) int {
	if v.masks.Builder == nil {
		return 0
	}

	wfpc2 := req.Instrument == string(exposure.InstrumentWFPC2)
	names := calNames
	if !wfpc2 && len(cteNames) > 0 {
		names = append(append(make([]string, 0, len(calNames)+len(cteNames)), calNames...), cteNames...)
	}

	written := 0
	for _, name := range names {
		root, _ := exposure.SplitName(name)
		staged := work.Path(name)
		chips, binned := mask.Survey(staged)
		for chip := 1; chip <= chips; chip++ {
			maskPath := work.Path(fmt.Sprintf("%s_sci%d_mask.fits", root, chip))
			var got string
			if wfpc2 {
				dqPath := ""
				if dqName := exposure.DQCompanion(name); dqName != "" {
					dqPath = work.Path(dqName)
				}
				got = v.masks.Builder.WriteShadowMask(dqPath, chip, v.masks.Bits, binned, v.masks.TemplateDir, maskPath)
			} else {
				got = v.masks.Builder.WriteDQMask(staged, chip, v.masks.Bits, maskPath)
			}
			if got != "" {
				written++
			}
		}
	}
	return written
}

// refreshWCS applies a-priori solutions from the astrometry database to
// the staged exposures. A failing refresh rejects the attempt; the
// pipeline-default result stays in place.
func (v *Verifier) refreshWCS(ctx context.Context, req Request, work *staging.Context, verification *Verification, calNames, cteNames []string) (bool, error) {
	sets := [][]string{calNames}
	if len(cteNames) > 0 {
		sets = append(sets, cteNames)
	}
	for _, set := range sets {
		if err := v.updater.Update(ctx, set, work.Dir, true); err != nil {
			msg := "Could not refresh WCS solutions from the astrometry database.\n"
			msg += fmt.Sprintf("%v\n", err)
			if werr := req.Trailer.Write(msg); werr != nil {
				return false, werr
			}
			verification.reject("astrometry database WCS refresh failed")
			return true, nil
		}
	}
	return false, nil
}

// catalogAlign fits the most corrected staged set to an absolute catalog
// and applies the resulting headerlets to the uncorrected companions.
// Any per-exposure failure rejects the whole attempt: a partially aligned
// set is worse than a consistent pipeline-default one.
func (v *Verifier) catalogAlign(ctx context.Context, req Request, work *staging.Context, verification *Verification, calNames, cteNames []string) (bool, error) {
	if err := req.Trailer.Write(trailer.Timestamp("Align_to_GAIA started ")); err != nil {
		return false, err
	}

	alignLog := work.Path(trailerBase(req.Trailer) + "_align.log")

	alignFiles := cteNames
	updateFiles := calNames
	if len(alignFiles) == 0 {
		alignFiles = calNames
		updateFiles = nil
	}

	fits, err := v.aligner.Align(ctx, alignFiles, work.Dir, alignLog)
	if err != nil {
		msg := "EXCEPTION encountered in catalog alignment...\n"
		msg += "   No correction to absolute astrometric frame applied!\n"
		if werr := req.Trailer.Write(msg); werr != nil {
			return false, werr
		}
		v.logger.Warn("catalog alignment failed",
			logging.String(logging.FieldDataset, req.Dataset),
			logging.Error(err))
		verification.reject("catalog alignment failed")
		return true, nil
	}

	var msg strings.Builder
	for _, fit := range fits {
		if !fit.Aligned() {
			msg.WriteString(fmt.Sprintf("Could not align %s to absolute astrometric frame\n", fit.ImageName))
			if werr := req.Trailer.Write(msg.String()); werr != nil {
				return false, werr
			}
			verification.reject(fmt.Sprintf("could not align %s to absolute astrometric frame", fit.ImageName))
			return true, nil
		}
		msg.WriteString(fmt.Sprintf("Successfully aligned %s to %s astrometric frame\n", fit.ImageName, fit.Catalog))
	}

	if err := req.Trailer.Absorb(alignLog); err != nil {
		return false, err
	}
	if err := req.Trailer.Write(msg.String()); err != nil {
		return false, err
	}

	var tail strings.Builder
	if len(updateFiles) > 0 {
		byName := make(map[string]catalign.Fit, len(fits))
		for _, fit := range fits {
			byName[fit.ImageName] = fit
		}
		for _, name := range updateFiles {
			root, _ := exposure.SplitName(name)
			fit, ok := byName[exposure.BuildName(root, exposure.SuffixFLC)]
			if !ok || fit.HeaderletFile == "" || fit.HeaderletFile == "None" {
				tail.WriteString(fmt.Sprintf("No absolute astrometric headerlet applied to %s\n", name))
				continue
			}
			if err := headerlet.Apply(work.Path(fit.HeaderletFile), work.Path(name)); err != nil {
				return false, fmt.Errorf("apply headerlet to %s: %w", name, err)
			}
			tail.WriteString(fmt.Sprintf("Applying headerlet %s as Primary WCS to %s\n", fit.HeaderletFile, name))
		}
	}
	tail.WriteString(trailer.Timestamp("Align_to_GAIA completed "))
	return false, req.Trailer.Write(tail.String())
}

// drizzleAll runs the engine once per input and measures the focus of
// every combined product it leaves behind. Engine failures abort the run
// after the engine's own log has been folded into the trailer.
func (v *Verifier) drizzleAll(ctx context.Context, req Request, work *staging.Context, params ModeParams, verification *Verification) error {
	runFile := work.Path(trailerBase(req.Trailer) + "_driz")

	singles := make([]string, 0, len(req.CalFiles))
	for _, cal := range req.CalFiles {
		root, _ := exposure.SplitName(cal)
		singles = append(singles, work.Path(root+"_single_sci.fits"))
	}

	seen := make(map[string]bool)
	for _, input := range req.Inputs {
		name := filepath.Base(input)
		header := trailer.Timestamp("Drizzle started ")
		header += TrailerMarker
		header += fmt.Sprintf("%s: Processing %s\n", trailer.HumanTime(), name)
		if err := req.Trailer.Write(header); err != nil {
			return err
		}

		result, err := v.engine.Drizzle(ctx, params.EngineParams(name, runFile, work.Dir))
		if err != nil {
			_ = req.Trailer.Absorb(result.LogPath)
			_ = req.Trailer.Absorb(result.StderrPath)
			_ = req.Trailer.Write(fmt.Sprintf("ERROR: Could not complete drizzle processing of %s.\n%v\n", name, err))
			return services.Wrap(services.ErrExternalTool, "drizzle", "combine",
				fmt.Sprintf("Drizzle processing of %s failed", name), err)
		}

		for _, product := range result.Products {
			base := filepath.Base(product)
			if seen[base] {
				continue
			}
			seen[base] = true
			record, err := v.evaluator.Measure(singles, product)
			if err != nil {
				return fmt.Errorf("measure focus of %s: %w", base, err)
			}
			verification.Products = append(verification.Products, base)
			verification.Focus = append(verification.Focus, record)
			if err := focus.WriteHistory(product, verification.Focus); err != nil {
				return fmt.Errorf("write focus history for %s: %w", base, err)
			}
		}

		if err := req.Trailer.Absorb(result.LogPath); err != nil {
			return err
		}
	}
	if len(verification.Focus) == 0 {
		return errors.New("drizzle engine produced no combined products")
	}
	return nil
}

// settle scores the attempt and migrates accepted results back to the
// dataset directory.
func (v *Verifier) settle(req Request, work *staging.Context, params ModeParams, verification *Verification) error {
	msg := trailer.Timestamp("Verification of alignment started ")

	// Score the CTE-corrected product when one was built.
	record := verification.Focus[0]
	if last := verification.Focus[len(verification.Focus)-1]; strings.Contains(last.ProdName, "drc") {
		record = last
	}
	verification.FocusOK = v.evaluator.Verified(record)
	if verification.FocusOK {
		msg += "Focus verification indicated that alignment SUCCEEDED.\n"
	} else {
		msg += "Focus verification indicated that alignment FAILED.\n"
	}

	accepted := verification.FocusOK
	reason := ""
	if !verification.FocusOK {
		reason = "focus verification failed"
	}

	if params.Mode != ModeDefault {
		reference := filepath.Join(req.Dir, record.ProdName)
		if _, err := os.Stat(reference); err != nil {
			msg += fmt.Sprintf("No reference product %s for similarity comparison; similarity check skipped.\n", record.ProdName)
		} else {
			sim, err := v.evaluator.Similarity(work.Path(record.ProdName), reference)
			if err != nil {
				return fmt.Errorf("compute similarity of %s: %w", record.ProdName, err)
			}
			verification.Similarity = sim
			verification.SimilarityChecked = true
			if sim > 1 {
				msg += fmt.Sprintf("Astrometry alignment FAILED with a similarity index of %g!\n", sim)
				if params.Force {
					msg += "  WARNING: \nKEEPING potentially compromised astrometry solution!\n"
					verification.Compromised = true
					if reason == "" {
						reason = fmt.Sprintf("similarity index %g kept by force", sim)
					}
				} else {
					accepted = false
					if reason == "" {
						reason = fmt.Sprintf("similarity index %g above threshold", sim)
					}
					msg += "  Reverting to pipeline-default WCS-based alignment.\n"
				}
			} else {
				msg += fmt.Sprintf("Alignment appeared to succeed based on similarity index of %g\n", sim)
			}
		}
	}

	if accepted {
		msg += "Saving products with new alignment.\n"
		names := make([]string, 0, len(req.CalFiles)+len(req.CalFilesCTE)+2*len(verification.Products))
		names = append(names, baseNames(req.CalFiles)...)
		names = append(names, baseNames(req.CalFilesCTE)...)
		for _, product := range verification.Products {
			names = append(names, product, filepath.Base(focus.HistoryPath(product)))
		}
		if err := work.CopyBack(req.Dir, names...); err != nil {
			return err
		}
		verification.State = StateAccepted
		verification.Accepted = true
		verification.Reason = reason
	} else {
		verification.reject(reason)
	}

	msg += trailer.Timestamp("Verification of alignment completed ")
	return req.Trailer.Write(msg)
}

func trailerBase(t *trailer.Trailer) string {
	return strings.TrimSuffix(filepath.Base(t.Path), ".tra")
}

func baseNames(paths []string) []string {
	names := make([]string, 0, len(paths))
	for _, path := range paths {
		names = append(names, filepath.Base(path))
	}
	return names
}
