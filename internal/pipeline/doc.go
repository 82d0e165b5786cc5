// Package pipeline drives one dataset through calibration: validation of
// the input and its DRIZCORR switch, the escalating alignment attempts,
// and finalization of the accepted products.
//
// The three stage handlers (Validator, Aligner, Finalizer) share the
// stage.Handler contract and are chained by Pipeline.ProcessRun through
// the ledger statuses validating, aligning and finalizing. A handler that
// resolves the run itself (the validator skipping an OMIT dataset)
// terminates the chain early.
package pipeline
