package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"astrodriz/internal/config"
)

// Requirement defines an external tool the pipeline shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// ForConfig returns the external tools the configured pipeline will invoke.
// The aligner and WCS updater are optional when their astrometry switches
// are off.
func ForConfig(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "Drizzle engine",
			Command:     cfg.Drizzle.Binary,
			Description: "Combines exposures onto the output frame",
		},
		{
			Name:        "Catalog aligner",
			Command:     cfg.Aligner.Binary,
			Description: "Fits exposure WCS against astrometric catalogs",
			Optional:    !cfg.Astrometry.ComputeAposteriori,
		},
		{
			Name:        "WCS updater",
			Command:     cfg.WCSUpdater.Binary,
			Description: "Applies a-priori solutions from the astrometry database",
			Optional:    !cfg.Astrometry.ApplyApriori,
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, checkBinary(req))
	}
	return results
}

func checkBinary(req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	if _, err := exec.LookPath(status.Command); err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Available = true
	return status
}
