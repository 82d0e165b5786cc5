package pipeline

import "astrodriz/internal/config"

// Options carries the per-invocation processing switches. Configuration
// supplies the defaults; CLI flags override individual fields.
type Options struct {
	// Force processes a dataset regardless of its DRIZCORR value and
	// keeps similarity-failing alignment solutions.
	Force bool
	// InMemory asks the engine to hold intermediate products in memory.
	InMemory bool
	// Cores is the engine worker count.
	Cores int
	// ApplyApriori enables the a-priori astrometry-database attempt.
	ApplyApriori bool
	// Aposteriori enables the a-posteriori catalog-alignment attempt.
	Aposteriori bool
	// Headerlets exports per-exposure WCS sidecar files after acceptance.
	Headerlets bool
	// KeepStaging preserves per-mode staging directories for debugging.
	KeepStaging bool
	// WorkRoot relocates processing into a fresh directory under this
	// root when set.
	WorkRoot string
}

// OptionsFromConfig resolves processing defaults from configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		InMemory:     cfg.Drizzle.InMemory,
		Cores:        cfg.Drizzle.Cores,
		ApplyApriori: cfg.Astrometry.ApplyApriori,
		Aposteriori:  cfg.Astrometry.ComputeAposteriori,
		Headerlets:   cfg.Astrometry.ExportHeaderlets,
		KeepStaging:  cfg.Staging.KeepDirs,
	}
}
