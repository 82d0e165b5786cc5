// Package preflight provides readiness checks for the directories and
// external tools the pipeline depends on.
//
// The checks run in two contexts:
//   - "astrodriz preflight" prints them before an operator starts the
//     watch service, so a doomed configuration fails in seconds instead
//     of mid-run.
//   - "astrodriz status" reuses the individual check functions to display
//     environment health next to the run table.
package preflight
