package align

import "astrodriz/internal/focus"

// State marks how far an attempt progressed.
type State string

const (
	StateStaging  State = "STAGING"
	StateWCS      State = "WCS_CORRECTION"
	StateDrizzle  State = "DRIZZLE"
	StateScoring  State = "SCORING"
	StateAccepted State = "ACCEPTED"
	StateRejected State = "REJECTED"
)

// Verification is the typed outcome of one alignment attempt.
type Verification struct {
	Mode  Mode
	State State

	// Accepted reports whether the attempt's exposures and products were
	// copied back over the dataset directory.
	Accepted bool
	// Reason explains a rejection, or notes a forced acceptance.
	Reason string

	// FocusOK is the sharpness verdict on the scored product.
	FocusOK bool
	// Similarity is the index against the previously accepted product.
	// Only meaningful when SimilarityChecked is set; the pipeline-default
	// attempt has nothing to compare against.
	Similarity        float64
	SimilarityChecked bool
	// Compromised marks an attempt kept by force despite a failing
	// similarity index.
	Compromised bool

	// Products are the combined product names, uncorrected set first.
	Products []string
	// Focus holds one measurement per product, in product order.
	Focus []*focus.Record
	// StagingDir is where the attempt ran. The directory is released when
	// the attempt finishes unless staging keep_dirs is set.
	StagingDir string
}

func (ver *Verification) reject(reason string) {
	ver.State = StateRejected
	ver.Accepted = false
	ver.Reason = reason
}
