// Package exposure resolves pipeline inputs: rootname and suffix
// conventions, instrument classification, and the calibration-switch gate
// that decides whether a dataset is processed at all.
package exposure

import (
	"os"
	"path/filepath"
	"strings"

	"astrodriz/internal/fitsfile"
)

// Instrument identifies the HST camera configuration of an exposure.
type Instrument string

const (
	InstrumentACS      Instrument = "ACS"
	InstrumentWFC3UVIS Instrument = "WFC3/UVIS"
	InstrumentWFC3IR   Instrument = "WFC3/IR"
	InstrumentWFPC2    Instrument = "WFPC2"
	InstrumentSTIS     Instrument = "STIS"
	InstrumentUnknown  Instrument = "UNKNOWN"
)

// Drizzle calibration switch values.
const (
	DrizzlePerform  = "PERFORM"
	DrizzleOmit     = "OMIT"
	DrizzleComplete = "COMPLETE"
)

// Info carries the header fields the pipeline reads from an exposure.
type Info struct {
	Path       string
	Root       string
	Suffix     string
	Instrument Instrument
	Detector   string
	DrizCorr   string
	ExpTime    float64
	CountRate  bool
}

// Inspect reads the classification keywords from an exposure file.
func Inspect(path string) (*Info, error) {
	file, err := fitsfile.Read(path)
	if err != nil {
		return nil, err
	}
	primary := file.Primary()

	instrume, _ := primary.Str("INSTRUME")
	detector, _ := primary.Str("DETECTOR")
	drizcorr, _ := primary.Str("DRIZCORR")
	exptime, _ := primary.Float("EXPTIME")

	countRate := false
	if sci := file.Extension("SCI", 1); sci != nil {
		if bunit, ok := sci.Str("BUNIT"); ok {
			countRate = strings.Contains(bunit, "/")
		}
	}

	root, suffix := SplitName(path)
	return &Info{
		Path:       path,
		Root:       strings.ToLower(root),
		Suffix:     suffix,
		Instrument: classify(instrume, detector),
		Detector:   detector,
		DrizCorr:   strings.ToUpper(drizcorr),
		ExpTime:    exptime,
		CountRate:  countRate,
	}, nil
}

// ShouldDrizzle reports whether the calibration switch requests processing.
func (i *Info) ShouldDrizzle() bool {
	return i.DrizCorr == DrizzlePerform
}

// DrizzleSwitch reads the DRIZCORR value for a dataset root. The calibration
// pipeline stamps the switch on the raw exposure, so that is read first; the
// calibrated file is the fallback. A missing keyword reads as empty, which
// callers treat like OMIT.
func DrizzleSwitch(dir, root, scienceFile string) (string, error) {
	rawPath := filepath.Join(dir, BuildName(root, SuffixRaw))
	if _, err := os.Stat(rawPath); err == nil {
		info, err := Inspect(rawPath)
		if err != nil {
			return "", err
		}
		return info.DrizCorr, nil
	}
	info, err := Inspect(scienceFile)
	if err != nil {
		return "", err
	}
	return info.DrizCorr, nil
}

func classify(instrume, detector string) Instrument {
	switch strings.ToUpper(instrume) {
	case "ACS":
		return InstrumentACS
	case "WFC3":
		if strings.ToUpper(detector) == "IR" {
			return InstrumentWFC3IR
		}
		return InstrumentWFC3UVIS
	case "WFPC2":
		return InstrumentWFPC2
	case "STIS":
		return InstrumentSTIS
	}
	return InstrumentUnknown
}
