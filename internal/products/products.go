package products

import (
	"fmt"
	"path/filepath"
	"strings"

	"astrodriz/internal/fitsfile"
)

// Provenance is one input image's contribution to a combined product,
// read from the D%03d keyword group in the primary header.
type Provenance struct {
	Index       int
	Version     string
	Geometry    string
	Data        string
	ExpTime     float64
	OutData     string
	OutWeight   string
	OutContext  string
	Mask        string
	WeightScale float64
	Kernel      string
	PixFrac     float64
	FillVal     string
	OutUnits    string
}

// ExtInfo describes one image extension of a combined product.
type ExtInfo struct {
	Name   string
	Ver    int
	Width  int
	Height int
}

// Summary is the inspection view of one combined product.
type Summary struct {
	Path       string
	Output     string
	DrizCorr   string
	NDrizIm    int
	ExpTime    float64
	Extensions []ExtInfo
	Inputs     []Provenance
}

// Inspect reads the provenance and layout of a combined product.
func Inspect(path string) (*Summary, error) {
	file, err := fitsfile.Read(path)
	if err != nil {
		return nil, err
	}
	primary := file.Primary()

	summary := &Summary{Path: path}
	if rootname, ok := primary.Str("ROOTNAME"); ok {
		summary.Output = strings.ToLower(rootname)
	} else {
		base := filepath.Base(path)
		summary.Output = strings.TrimSuffix(base, ".fits")
	}
	summary.DrizCorr, _ = primary.Str("DRIZCORR")
	summary.NDrizIm, _ = primary.Int("NDRIZIM")
	if total, ok := primary.Float("TEXPTIME"); ok {
		summary.ExpTime = total
	} else if total, ok := primary.Float("EXPTIME"); ok {
		summary.ExpTime = total
	}

	for _, hdu := range file.HDUs[1:] {
		name, ok := hdu.Str("EXTNAME")
		if !ok {
			continue
		}
		switch strings.ToUpper(name) {
		case "SCI", "WHT", "CTX":
		default:
			continue
		}
		ver, ok := hdu.Int("EXTVER")
		if !ok {
			ver = 1
		}
		width, height, _ := hdu.Dims()
		summary.Extensions = append(summary.Extensions, ExtInfo{
			Name:   strings.ToUpper(name),
			Ver:    ver,
			Width:  width,
			Height: height,
		})
	}

	for index := 1; ; index++ {
		prefix := fmt.Sprintf("D%03d", index)
		if !primary.Has(prefix + "DATA") {
			break
		}
		input := Provenance{Index: index}
		input.Version, _ = primary.Str(prefix + "VER")
		input.Geometry, _ = primary.Str(prefix + "GEOM")
		input.Data, _ = primary.Str(prefix + "DATA")
		input.ExpTime, _ = primary.Float(prefix + "DEXP")
		input.OutData, _ = primary.Str(prefix + "OUDA")
		input.OutWeight, _ = primary.Str(prefix + "OUWE")
		input.OutContext, _ = primary.Str(prefix + "OUCO")
		input.Mask, _ = primary.Str(prefix + "MASK")
		input.WeightScale, _ = primary.Float(prefix + "WTSC")
		input.Kernel, _ = primary.Str(prefix + "KERN")
		input.PixFrac, _ = primary.Float(prefix + "PIXF")
		input.FillVal, _ = primary.Str(prefix + "FVAL")
		input.OutUnits, _ = primary.Str(prefix + "OUUN")
		summary.Inputs = append(summary.Inputs, input)
	}

	return summary, nil
}

// StampComplete marks the calibration switch of a processed dataset.
// The keyword must already exist; files without it are left untouched
// and reported so the caller can log and move on.
func StampComplete(path string) error {
	return fitsfile.PatchCard(path, "DRIZCORR", "COMPLETE")
}
