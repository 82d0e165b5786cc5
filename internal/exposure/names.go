package exposure

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Filename suffixes the calibration pipeline produces.
const (
	SuffixASN = "asn"
	SuffixRaw = "raw"
	SuffixFLT = "flt"
	SuffixFLC = "flc"
	SuffixC0M = "c0m"
	SuffixC1M = "c1m"
)

// SplitName splits an exposure filename like j8cw03fxq_flt.fits into its
// rootname and suffix. Files without a suffix return an empty suffix.
func SplitName(path string) (string, string) {
	base := strings.TrimSuffix(filepath.Base(path), ".fits")
	idx := strings.LastIndex(base, "_")
	if idx <= 0 {
		return base, ""
	}
	return base[:idx], base[idx+1:]
}

// BuildName assembles a dataset filename from rootname and suffix.
func BuildName(root, suffix string) string {
	return root + "_" + suffix + ".fits"
}

// IsAssociation reports whether the path names an association table.
func IsAssociation(path string) bool {
	_, suffix := SplitName(path)
	return suffix == SuffixASN
}

// IsRaw reports whether the path names an uncalibrated exposure.
func IsRaw(path string) bool {
	_, suffix := SplitName(path)
	return suffix == SuffixRaw
}

// TrailerRoot returns the path prefix owning the dataset trailer file. Raw
// and association inputs keep their own rootname; for anything else the last
// suffix is trimmed.
func TrailerRoot(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	for _, marker := range []string{"_" + SuffixRaw, "_" + SuffixASN} {
		if idx := strings.Index(base, marker); idx > 0 {
			return filepath.Join(dir, base[:idx])
		}
	}
	root, suffix := SplitName(base)
	if suffix == "" {
		return filepath.Join(dir, strings.TrimSuffix(base, ".fits"))
	}
	return filepath.Join(dir, root)
}

// ResolveScience locates the calibrated science file for a dataset root.
// WFPC2 datasets calibrate to _c0m files, everything else to _flt.
func ResolveScience(dir, root string, wfpc2 bool) (string, error) {
	suffixes := []string{SuffixFLT, SuffixFLC}
	if wfpc2 {
		suffixes = []string{SuffixC0M}
	}
	for _, suffix := range suffixes {
		candidate := filepath.Join(dir, BuildName(root, suffix))
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no calibrated product for %s in %s", root, dir)
}

// DQCompanion returns the _c1m data-quality companion name for a WFPC2
// calibrated exposure. Non-WFPC2 names return "" because their DQ arrays
// live inside the science file itself.
func DQCompanion(path string) string {
	if !strings.HasSuffix(path, "_"+SuffixC0M+".fits") {
		return ""
	}
	return strings.TrimSuffix(path, "_"+SuffixC0M+".fits") + "_" + SuffixC1M + ".fits"
}

// CTECompanion returns the CTE-corrected companion of a calibrated exposure
// when one exists beside it.
func CTECompanion(path string) (string, bool) {
	if !strings.HasSuffix(path, "_"+SuffixFLT+".fits") {
		return "", false
	}
	companion := strings.TrimSuffix(path, "_"+SuffixFLT+".fits") + "_" + SuffixFLC + ".fits"
	if _, err := os.Stat(companion); err != nil {
		return "", false
	}
	return companion, true
}
