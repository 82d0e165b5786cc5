package focus

import (
	"fmt"
	"math"

	"astrodriz/internal/logging"
)

// Similarity compares two combined products pixel by pixel. Both images
// are cropped to the largest shared power-of-two window, block-summed
// down to a coarse grid, and scored as the normalized sum of absolute
// differences. Well-aligned products score well under 1; a score above 1
// marks the attempt as having moved the image rather than refined it.
func (m *Meter) Similarity(productPath, referencePath string) (float64, error) {
	img, iw, ih, err := readScience(productPath)
	if err != nil {
		return 0, err
	}
	ref, rw, rh, err := readScience(referencePath)
	if err != nil {
		return 0, err
	}
	sanitize(img)
	sanitize(ref)

	minDim := iw
	for _, d := range []int{ih, rw, rh} {
		if d < minDim {
			minDim = d
		}
	}
	if minDim < 2 {
		return 0, fmt.Errorf("images too small to compare: %dx%d vs %dx%d", iw, ih, rw, rh)
	}

	windowBit := 0
	for 1<<(windowBit+1) <= minDim {
		windowBit++
	}
	window := 1 << windowBit

	// Keep at least a 64x64 grid so structure survives the rebin, but
	// never finer than the window itself.
	binBit := windowBit - 2
	if binBit < 6 {
		binBit = 6
	}
	if binBit > windowBit {
		binBit = windowBit
	}
	size := 1 << binBit

	a := rebin(img, iw, window, size)
	b := rebin(ref, rw, window, size)

	var diff, total float64
	for i := range a {
		diff += math.Abs(a[i] - b[i])
		total += a[i]
	}
	if total == 0 {
		return math.Inf(1), nil
	}

	index := diff / total
	m.logger.Debug("similarity computed",
		logging.String("product", productPath),
		logging.String("reference", referencePath),
		logging.Float64("similarity", index))
	return index, nil
}

// rebin block-sums the top-left window of a row-major image down to a
// size x size grid. window must be a multiple of size.
func rebin(img []float64, stride, window, size int) []float64 {
	block := window / size
	out := make([]float64, size*size)
	for y := 0; y < window; y++ {
		row := img[y*stride : y*stride+window]
		base := (y / block) * size
		for x, v := range row {
			out[base+x/block] += v
		}
	}
	return out
}
