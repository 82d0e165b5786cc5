// Package align runs and scores one alignment attempt at a time. An
// attempt stages the dataset into a private working directory, optionally
// corrects the exposure WCS solutions (from the astrometry database or by
// fitting to an absolute catalog), drizzles the staged set, and scores the
// combined products with focus and similarity indices. Accepted attempts
// copy their updated exposures and products back to the dataset directory;
// rejected attempts leave the parent untouched so the previously accepted
// result stays authoritative.
//
// Acceptance and rejection are expected outcomes and come back as a typed
// Verification. Errors are reserved for faults that abort the run, such as
// a drizzle engine failure.
package align
