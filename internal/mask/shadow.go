package mask

import (
	"fmt"
	"os"
	"path/filepath"

	"astrodriz/internal/fileutil"
	"astrodriz/internal/fitsfile"
)

// shadowSize is the full-resolution WFPC2 chip dimension.
const shadowSize = 800

// shadowCoeffs holds the wmosaic edge polynomials per WFPC2 detector:
// the first triple shapes the mask along image rows, the second along
// columns.
var shadowCoeffs = map[int][2][3]float64{
	1: {{52.20921, 0.009072887, -9.941337e-6}, {42.62779, 0.009122855, -1.106709e-5}},
	2: {{21.77283, 0.01842164, -1.398300e-5}, {47.68184, 0.00265608, -1.468158e-5}},
	3: {{44.18944, 0.0138938, -1.412296e-5}, {30.23626, 0.008156041, -1.491324e-5}},
	4: {{44.56632, 0.003509023, -1.278723e-5}, {40.91462, 0.01273679, -1.063462e-5}},
}

// Shadow renders the full-resolution shadow mask for a WFPC2 detector.
// Pixels in the vignetted border read 0, illuminated pixels 1.
func Shadow(detector int) ([]uint8, error) {
	coeffs, ok := shadowCoeffs[detector]
	if !ok {
		return nil, fmt.Errorf("no shadow polynomials for WFPC2 detector %d", detector)
	}
	rows := edgeProfile(coeffs[0])
	cols := edgeProfile(coeffs[1])

	out := make([]uint8, shadowSize*shadowSize)
	for r := 0; r < shadowSize; r++ {
		if rows[r] == 0 {
			continue
		}
		copy(out[r*shadowSize:(r+1)*shadowSize], cols)
	}
	return out, nil
}

// edgeProfile evaluates one axis polynomial. A coordinate is illuminated
// once coord + 0.5 - p(coord) reaches 1.
func edgeProfile(c [3]float64) []uint8 {
	edge := make([]uint8, shadowSize)
	for i := range edge {
		coord := float64(i)
		if coord+0.5-(c[0]+c[1]*coord+c[2]*coord*coord) >= 1 {
			edge[i] = 1
		}
	}
	return edge
}

// BinShadow folds a mask down to half resolution. A binned pixel is
// illuminated only when all four of its full-resolution subsamples are.
func BinShadow(m []uint8, width, height int) ([]uint8, int, int) {
	bw, bh := width/2, height/2
	out := make([]uint8, bw*bh)
	for r := 0; r < bh; r++ {
		for c := 0; c < bw; c++ {
			out[r*bw+c] = m[2*r*width+2*c] *
				m[(2*r+1)*width+2*c] *
				m[2*r*width+2*c+1] *
				m[(2*r+1)*width+2*c+1]
		}
	}
	return out, bw, bh
}

// ShadowTemplate returns the cached shadow-mask template for a detector,
// rendering it on first use. Rendering is slow enough to be worth keeping
// the result across runs.
func (b *Builder) ShadowTemplate(templateDir string, detector int, binned bool) (string, error) {
	name := fmt.Sprintf("wfpc2_inmask%d.fits", detector)
	if binned {
		name = fmt.Sprintf("wfpc2_inmask%d_binned.fits", detector)
	}
	path := filepath.Join(templateDir, name)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	mask, err := Shadow(detector)
	if err != nil {
		return "", err
	}
	width, height := shadowSize, shadowSize
	if binned {
		mask, width, height = BinShadow(mask, width, height)
	}
	if err := os.MkdirAll(templateDir, 0o755); err != nil {
		return "", err
	}
	primary := fitsfile.Primary{Uint8: mask, Width: width, Height: height}
	if err := fitsfile.Write(path, primary, nil, nil); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// WriteShadowMask writes the weighting mask for one WFPC2 chip. Without a
// data-quality file or a bit selector the shadow template is copied as-is;
// otherwise the template is composed with the chip's DQ mask so a pixel
// must survive both. Failures degrade like WriteDQMask.
func (b *Builder) WriteShadowMask(dqFile string, detector int, bits *int32, binned bool, templateDir, maskPath string) string {
	_ = os.Remove(maskPath)

	template, err := b.ShadowTemplate(templateDir, detector, binned)
	if err != nil {
		return b.degrade(maskPath, dqFile, err)
	}

	_, statErr := os.Stat(dqFile)
	if statErr != nil || bits == nil {
		if err := fileutil.CopyFile(template, maskPath); err != nil {
			return b.degrade(maskPath, template, err)
		}
		return maskPath
	}

	file, err := fitsfile.Read(dqFile)
	if err != nil {
		return b.degrade(maskPath, dqFile, err)
	}
	hdu := file.Extension("DQ", detector)
	if hdu == nil {
		hdu = file.Extension("SCI", detector)
	}
	if hdu == nil {
		return b.degrade(maskPath, dqFile, fmt.Errorf("no DQ data for detector %d", detector))
	}
	dq, err := hdu.Int32Image()
	if err != nil {
		return b.degrade(maskPath, dqFile, err)
	}
	width, height, _ := hdu.Dims()

	shadowFile, err := fitsfile.Read(template)
	if err != nil {
		return b.degrade(maskPath, template, err)
	}
	shadow, err := shadowFile.Primary().Int32Image()
	if err != nil {
		return b.degrade(maskPath, template, err)
	}
	if len(shadow) != len(dq) {
		return b.degrade(maskPath, dqFile,
			fmt.Errorf("DQ array is %d pixels, shadow template %d", len(dq), len(shadow)))
	}

	combined := Build(dq, bits)
	for i, v := range shadow {
		combined[i] *= uint8(v)
	}
	primary := fitsfile.Primary{Uint8: combined, Width: width, Height: height}
	if err := fitsfile.Write(maskPath, primary, nil, nil); err != nil {
		return b.degrade(maskPath, dqFile, err)
	}
	return maskPath
}
