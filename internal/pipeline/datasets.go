package pipeline

import (
	"path/filepath"

	"astrodriz/internal/asn"
	"astrodriz/internal/exposure"
	"astrodriz/internal/ledger"
	"astrodriz/internal/services"
)

// Input kinds persisted on runs.
const (
	KindAssociation = "association"
	KindExposure    = "exposure"
)

// fileSets collects the file groups one run processes.
type fileSets struct {
	// Inputs are the engine inputs: the association working copy, or the
	// calibrated exposure for a singleton.
	Inputs []string
	// CalFiles are the uncorrected calibrated exposures.
	CalFiles []string
	// CTEFiles are the CTE-corrected companions when present.
	CTEFiles []string
	// PipelineCopy is the association working-copy path; empty for
	// singleton datasets.
	PipelineCopy string
}

// resolveSets locates a run's exposure files. With writeCopy set, an
// association's lowercased working copy is regenerated for the engine;
// the finalizer resolves without writing so it can remove the copy the
// alignment stage left behind.
func resolveSets(run *ledger.Run, wfpc2, writeCopy bool) (*fileSets, error) {
	dir := filepath.Dir(run.SourcePath)
	sets := &fileSets{}

	if run.InputKind == KindAssociation {
		table, err := asn.Read(run.SourcePath)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "pipeline", "read association",
				"Association table missing or unreadable", err)
		}
		calFiles, err := table.CalibratedFiles(dir, wfpc2)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "pipeline", "resolve members",
				"Association member files missing", err)
		}
		sets.CalFiles = calFiles
		sets.PipelineCopy = asn.PipelinePath(run.SourcePath)
		if writeCopy {
			if err := table.WritePipelineCopy(sets.PipelineCopy); err != nil {
				return nil, err
			}
		}
		sets.Inputs = []string{sets.PipelineCopy}
	} else {
		root, _ := exposure.SplitName(run.SourcePath)
		science, err := exposure.ResolveScience(dir, root, wfpc2)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "pipeline", "resolve science file",
				"No calibrated exposure found for dataset", err)
		}
		sets.CalFiles = []string{science}
		sets.Inputs = []string{science}
	}

	for _, cal := range sets.CalFiles {
		if cte, ok := exposure.CTECompanion(cal); ok {
			sets.CTEFiles = append(sets.CTEFiles, cte)
		}
	}
	return sets, nil
}

func isWFPC2(run *ledger.Run) bool {
	return run.Instrument == string(exposure.InstrumentWFPC2)
}

func baseNames(paths []string) []string {
	names := make([]string, 0, len(paths))
	for _, path := range paths {
		names = append(names, filepath.Base(path))
	}
	return names
}
