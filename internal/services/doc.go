// Package services defines shared utilities consumed by the pipeline stage
// handlers and external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, dataset rootnames, stage names,
//     alignment modes, and correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so failures carry a
//     classification (configuration, validation, external tool, transient).
//   - Thin abstractions that make command execution against external
//     astronomy tools testable.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
