// Package drizzle wraps the external combination engine that resamples
// exposures onto a common output grid, optionally identifying cosmic rays
// along the way. The client assembles the per-attempt parameter set, runs
// the engine inside an attempt's staging directory, and collects the
// combined products and log files it leaves behind.
package drizzle
