// Package products reads combined drizzle products: the science, weight
// and context extensions plus the per-input provenance keyword groups
// the engine records in the primary header. It also owns the
// calibration-switch stamp that marks a dataset as fully processed.
package products
