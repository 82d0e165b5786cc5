package align

import (
	"fmt"

	"astrodriz/internal/services/drizzle"
)

// Mode names one alignment strategy. The pipeline escalates through the
// modes in declaration order and keeps the last accepted attempt.
type Mode string

const (
	// ModeDefault drizzles with the pipeline-default WCS and cosmic-ray
	// identification enabled.
	ModeDefault Mode = "pipeline-default"
	// ModeApriori refreshes each exposure's WCS from the astrometry
	// database before drizzling.
	ModeApriori Mode = "apriori"
	// ModeAposteriori fits the exposures to an absolute astrometric
	// catalog before drizzling.
	ModeAposteriori Mode = "aposteriori"
)

func (m Mode) String() string {
	return string(m)
}

// Modes returns the escalation order.
func Modes() []Mode {
	return []Mode{ModeDefault, ModeApriori, ModeAposteriori}
}

// ModeParams is the checked engine parameter set for one attempt.
// Cosmic-ray identification only runs in pipeline-default mode: the
// correction modes drizzle with the previously flagged pixels so their
// products differ from the default one by WCS alone.
type ModeParams struct {
	Mode    Mode
	FindCRs bool

	// Force keeps a similarity-failing attempt instead of reverting to
	// the pipeline-default alignment.
	Force bool

	InMemory bool
	Cores    int
}

// ParamsForMode builds the parameter set the pipeline uses for mode.
func ParamsForMode(mode Mode, cores int, inMemory, force bool) (ModeParams, error) {
	if cores <= 0 {
		cores = 1
	}
	params := ModeParams{
		Mode:     mode,
		FindCRs:  mode == ModeDefault,
		Force:    force,
		InMemory: inMemory,
		Cores:    cores,
	}
	if err := params.Validate(); err != nil {
		return ModeParams{}, err
	}
	return params, nil
}

// Validate checks the parameter set for internal consistency.
func (p ModeParams) Validate() error {
	switch p.Mode {
	case ModeDefault:
		if !p.FindCRs {
			return fmt.Errorf("%s requires cosmic-ray identification", p.Mode)
		}
	case ModeApriori, ModeAposteriori:
		if p.FindCRs {
			return fmt.Errorf("%s drizzles without cosmic-ray identification", p.Mode)
		}
	default:
		return fmt.Errorf("unknown alignment mode %q", string(p.Mode))
	}
	if p.Cores < 1 {
		return fmt.Errorf("cores must be at least 1, got %d", p.Cores)
	}
	return nil
}

// EngineParams renders the engine controls for one input. With
// cosmic-ray identification on, the full pipeline parameter set applies
// and fresh 4096 flags are written into the DQ arrays. Without it, the
// single-image and combination steps run against the existing flags and
// the intermediate CR steps are switched off.
func (p ModeParams) EngineParams(input, runFile, workDir string) drizzle.Params {
	params := drizzle.Params{
		Input:    input,
		RunFile:  runFile,
		WorkDir:  workDir,
		InMemory: p.InMemory,
		Cores:    p.Cores,
		StepSize: 10,
		Preserve: false,
		Clean:    false,
	}
	if p.FindCRs {
		params.MDrizTab = true
		params.ResetBits = 4096
		params.Static = true
		params.SkySub = true
		params.DrizSeparate = true
		params.Median = true
		params.Blot = true
		params.DrizCR = true
		return params
	}
	params.MDrizTab = false
	params.Build = true
	params.ResetBits = 0
	params.Static = false
	params.SkySub = false
	params.DrizSeparate = true
	params.DrizSepBits = "~6400"
	params.DrizSepFillVal = 0.0
	params.Median = false
	params.Blot = false
	params.DrizCR = false
	return params
}
