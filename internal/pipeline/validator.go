package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"astrodriz/internal/align"
	"astrodriz/internal/asn"
	"astrodriz/internal/config"
	"astrodriz/internal/exposure"
	"astrodriz/internal/ledger"
	"astrodriz/internal/logging"
	"astrodriz/internal/services"
	"astrodriz/internal/stage"
	"astrodriz/internal/trailer"
)

// Validator opens the dataset trailer, classifies the input and gates the
// run on its DRIZCORR calibration switch.
type Validator struct {
	cfg    *config.Config
	store  *ledger.Store
	logger *slog.Logger
	opts   Options
}

// NewValidator constructs the validation stage handler.
func NewValidator(cfg *config.Config, store *ledger.Store, logger *slog.Logger, opts Options) *Validator {
	v := &Validator{cfg: cfg, store: store, opts: opts}
	v.SetLogger(logger)
	return v
}

// SetLogger updates the validator's logging destination while preserving component labeling.
func (v *Validator) SetLogger(logger *slog.Logger) {
	v.logger = logging.NewComponentLogger(logger, "validate")
}

func (v *Validator) Prepare(ctx context.Context, run *ledger.Run) error {
	source := strings.TrimSpace(run.SourcePath)
	if source == "" {
		return services.Wrap(services.ErrValidation, "validate", "check input",
			"Run has no source file; remove it from the ledger and re-enqueue the dataset", nil)
	}
	if _, err := os.Stat(source); err != nil {
		return services.Wrap(services.ErrValidation, "validate", "check input",
			fmt.Sprintf("Input file %s is missing or unreadable", filepath.Base(source)), err)
	}
	run.ProgressMessage = "Validating dataset files"
	return nil
}

func (v *Validator) Execute(ctx context.Context, run *ledger.Run) error {
	logger := logging.WithContext(ctx, v.logger)
	source := run.SourcePath
	dir := filepath.Dir(source)

	info, err := exposure.Inspect(source)
	if err != nil {
		return services.Wrap(services.ErrValidation, "validate", "inspect input",
			fmt.Sprintf("Could not read %s", filepath.Base(source)), err)
	}
	run.Instrument = string(info.Instrument)
	wfpc2 := info.Instrument == exposure.InstrumentWFPC2

	trl := trailer.New(exposure.TrailerRoot(source))
	run.TrailerPath = trl.Path
	opening := fmt.Sprintf("%s: Calibration pipeline processing of %s started.\n",
		trailer.HumanTime(), run.Dataset)
	if err := trl.Write(opening); err != nil {
		return err
	}

	var science string
	if exposure.IsAssociation(source) {
		run.InputKind = KindAssociation
		table, err := asn.Read(source)
		if err != nil {
			return services.Wrap(services.ErrValidation, "validate", "read association",
				fmt.Sprintf("Association table %s could not be parsed", filepath.Base(source)), err)
		}
		member, ok := table.FirstMember()
		if !ok {
			return services.Wrap(services.ErrValidation, "validate", "read association",
				fmt.Sprintf("Association %s has no members", filepath.Base(source)), nil)
		}
		science, err = exposure.ResolveScience(dir, member, wfpc2)
		if err != nil {
			return services.Wrap(services.ErrValidation, "validate", "resolve members",
				fmt.Sprintf("No calibrated product for member %s", member), err)
		}
		run.DrizSwitch, err = exposure.DrizzleSwitch(dir, member, science)
		if err != nil {
			return services.Wrap(services.ErrValidation, "validate", "read calibration switch",
				fmt.Sprintf("Could not read DRIZCORR for member %s", member), err)
		}
	} else {
		run.InputKind = KindExposure
		root, _ := exposure.SplitName(source)
		science, err = exposure.ResolveScience(dir, root, wfpc2)
		if err != nil {
			return services.Wrap(services.ErrValidation, "validate", "resolve science file",
				fmt.Sprintf("No calibrated exposure for %s", root), err)
		}
		run.DrizSwitch, err = exposure.DrizzleSwitch(dir, root, science)
		if err != nil {
			return services.Wrap(services.ErrValidation, "validate", "read calibration switch",
				fmt.Sprintf("Could not read DRIZCORR for %s", root), err)
		}
	}

	if run.DrizSwitch != exposure.DrizzlePerform && !v.opts.Force {
		value := run.DrizSwitch
		if value == "" {
			value = exposure.DrizzleOmit
		}
		note := trailer.Timestamp("Drizzle skipped ")
		note += align.TrailerMarker
		note += fmt.Sprintf("%s: Drizzle processing not requested for %s.\n",
			trailer.HumanTime(), run.Dataset)
		note += "       Drizzle engine will not be run at this time.\n"
		if err := trl.Write(note); err != nil {
			return err
		}
		run.SetSkipped(fmt.Sprintf("DRIZCORR = %s", value))
		logger.Info("dataset skipped",
			logging.String("driz_switch", value),
			logging.String("science_file", filepath.Base(science)))
		return nil
	}

	run.SetProgress("Validating", "Input validated", 100)
	logger.Info("input validated",
		logging.String("input_kind", run.InputKind),
		logging.String("instrument", run.Instrument),
		logging.String("science_file", filepath.Base(science)))
	return nil
}

// HealthCheck verifies validation prerequisites.
func (v *Validator) HealthCheck(ctx context.Context) stage.Health {
	const name = "validate"
	if v.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(v.cfg.Paths.IntakeDir) == "" {
		return stage.Unhealthy(name, "intake directory not configured")
	}
	return stage.Healthy(name)
}
