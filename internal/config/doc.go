// Package config loads, normalizes, and validates astrodriz configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the astrometry environment
// switches ASTROMETRY_COMPUTE_APOSTERIORI and ASTROMETRY_APPLY_APRIORI. The
// Config type centralizes every knob the pipeline and CLI need, so staging
// directories, external tool binaries, and attempt switches are discovered in
// one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors. An
// unparseable environment switch is reported here, before any dataset file is
// opened.
package config
