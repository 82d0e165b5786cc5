// Package mask builds the weighting masks the drizzle engine consumes:
// bit masks derived from data-quality arrays, and for WFPC2 the shadow
// masks rendered from the wmosaic edge polynomials.
package mask

import (
	"fmt"
	"log/slog"
	"os"

	"astrodriz/internal/fitsfile"
	"astrodriz/internal/logging"
)

// Build derives a weighting mask from a data-quality array. A nil bit
// selector accepts every pixel. Otherwise a pixel is rejected exactly when
// it carries a flag outside the selector: (dq|bits) > bits.
func Build(dq []int32, bits *int32) []uint8 {
	out := make([]uint8, len(dq))
	if bits == nil {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, value := range dq {
		if value|*bits > *bits {
			out[i] = 0
		} else {
			out[i] = 1
		}
	}
	return out
}

// Survey reports how many SCI chips a staged exposure carries and whether
// WFPC2 data was area-binned to half resolution. An unreadable file counts
// zero chips so callers skip it.
func Survey(scienceFile string) (chips int, binned bool) {
	file, err := fitsfile.Read(scienceFile)
	if err != nil {
		return 0, false
	}
	for {
		hdu := file.Extension("SCI", chips+1)
		if hdu == nil {
			return chips, binned
		}
		if chips == 0 {
			if w, _, ok := hdu.Dims(); ok && w > 0 && w < shadowSize {
				binned = true
			}
		}
		chips++
	}
}

// Builder writes mask files beside staged exposures. Mask problems are
// never fatal: every failure is logged, any partial file removed, and the
// caller receives an empty name so drizzling proceeds unweighted.
type Builder struct {
	logger *slog.Logger
}

func NewBuilder(logger *slog.Logger) *Builder {
	return &Builder{logger: logging.NewComponentLogger(logger, "mask")}
}

// WriteDQMask builds the mask for one chip of scienceFile and writes it to
// maskPath as a simple FITS image with the mask in the primary HDU. A chip
// without a DQ array degrades to an accept-everything mask sized from its
// SCI array.
func (b *Builder) WriteDQMask(scienceFile string, extver int, bits *int32, maskPath string) string {
	_ = os.Remove(maskPath)

	file, err := fitsfile.Read(scienceFile)
	if err != nil {
		return b.degrade(maskPath, scienceFile, err)
	}

	var dq []int32
	var width, height int
	if hdu := file.Extension("DQ", extver); hdu != nil {
		width, height, _ = hdu.Dims()
		dq, err = hdu.Int32Image()
		if err != nil {
			return b.degrade(maskPath, scienceFile, err)
		}
	} else {
		sci := file.Extension("SCI", extver)
		if sci == nil {
			return b.degrade(maskPath, scienceFile, fmt.Errorf("no DQ or SCI data for chip %d", extver))
		}
		var ok bool
		width, height, ok = sci.Dims()
		if !ok {
			return b.degrade(maskPath, scienceFile, fmt.Errorf("chip %d SCI array has no dimensions", extver))
		}
		dq = make([]int32, width*height)
	}

	primary := fitsfile.Primary{Uint8: Build(dq, bits), Width: width, Height: height}
	if err := fitsfile.Write(maskPath, primary, nil, nil); err != nil {
		return b.degrade(maskPath, scienceFile, err)
	}
	return maskPath
}

// degrade removes any partial mask file, records the warning, and hands
// back the empty name that tells the engine to run unweighted.
func (b *Builder) degrade(maskPath, source string, err error) string {
	_ = os.Remove(maskPath)
	b.logger.Warn("problem creating mask file, continuing without mask",
		logging.String("source", source),
		logging.String("mask", maskPath),
		logging.Error(err))
	return ""
}

