package focus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"astrodriz/internal/fitsfile"
	"astrodriz/internal/logging"
)

const (
	defaultSigma     = 1.5
	defaultTolerance = 0.8
)

// Stats summarizes the sharpness values of the single-exposure images.
type Stats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Record holds the sharpness measurements for one combined product and
// the single-exposure images it was built from.
type Record struct {
	ExpNames []string  `json:"exp_names"`
	Exp      []float64 `json:"exp"`
	Prod     []float64 `json:"prod"`
	Stats    Stats     `json:"stats"`
	ProdName string    `json:"prodname"`
}

// Evaluator scores alignment attempts. The pipeline depends on this
// interface so the scoring can be swapped out without touching the
// verification flow.
type Evaluator interface {
	Measure(singleFiles []string, product string) (*Record, error)
	Verified(rec *Record) bool
	Similarity(productPath, referencePath string) (float64, error)
}

// Meter is the in-process Evaluator. Sharpness is the peak response of
// a Laplacian-of-Gaussian filter; a combined product passes when its
// sharpness stays inside the tolerance-widened three-sigma envelope of
// its single exposures.
type Meter struct {
	Sigma     float64
	Tolerance float64
	logger    *slog.Logger
}

func NewMeter(logger *slog.Logger) *Meter {
	return &Meter{
		Sigma:     defaultSigma,
		Tolerance: defaultTolerance,
		logger:    logging.NewComponentLogger(logger, "focus"),
	}
}

// Measure computes sharpness values for each single-exposure image and
// for the combined product.
func (m *Meter) Measure(singleFiles []string, product string) (*Record, error) {
	rec := &Record{ProdName: filepath.Base(product)}
	for _, single := range singleFiles {
		value, err := m.sharpness(single)
		if err != nil {
			return nil, err
		}
		rec.ExpNames = append(rec.ExpNames, filepath.Base(single))
		rec.Exp = append(rec.Exp, value)
	}

	value, err := m.sharpness(product)
	if err != nil {
		return nil, err
	}
	rec.Prod = append(rec.Prod, value)
	rec.Stats = summarize(rec.Exp)

	m.logger.Debug("focus measured",
		logging.String("product", rec.ProdName),
		logging.Float64("prod_focus", value),
		logging.Float64("exp_mean", rec.Stats.Mean),
		logging.Float64("exp_std", rec.Stats.Std))
	return rec, nil
}

// Verified reports whether the combined product's sharpness sits inside
// the widened envelope of its single exposures. A record without both
// sides of the comparison passes by default.
func (m *Meter) Verified(rec *Record) bool {
	if rec == nil || len(rec.Prod) == 0 || len(rec.Exp) == 0 {
		return true
	}
	tolerance := m.Tolerance
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}

	low := rec.Stats.Mean - 3*rec.Stats.Std
	if rec.Stats.Min < low {
		low = rec.Stats.Min
	}
	high := rec.Stats.Mean + 3*rec.Stats.Std
	lowLimit := low * tolerance
	highLimit := high * (1 + (1 - tolerance))

	value := rec.Prod[0]
	return value >= lowLimit && value <= highLimit
}

func (m *Meter) sharpness(path string) (float64, error) {
	data, width, height, err := readScience(path)
	if err != nil {
		return 0, err
	}
	sanitize(data)
	sigma := m.Sigma
	if sigma <= 0 {
		sigma = defaultSigma
	}
	return peakLaplacian(data, width, height, sigma), nil
}

func summarize(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	s := Stats{Min: values[0], Max: values[0]}
	for _, v := range values {
		s.Mean += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Mean /= float64(len(values))
	for _, v := range values {
		d := v - s.Mean
		s.Std += d * d
	}
	s.Std = math.Sqrt(s.Std / float64(len(values)))
	return s
}

// HistoryPath names the JSON side file recording focus measurements for
// a combined product.
func HistoryPath(product string) string {
	return strings.TrimSuffix(product, ".fits") + "_focus.json"
}

// WriteHistory persists the accumulated focus records beside the product.
func WriteHistory(product string, records []*Record) error {
	payload, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(HistoryPath(product), payload, 0o644)
}

// readScience loads a two-dimensional science array: the first SCI
// extension when present, the first extension otherwise, falling back to
// the primary HDU for simple FITS files.
func readScience(path string) ([]float64, int, int, error) {
	file, err := fitsfile.Read(path)
	if err != nil {
		return nil, 0, 0, err
	}
	hdu := file.Extension("SCI", 1)
	if hdu == nil {
		if len(file.HDUs) > 1 {
			hdu = file.HDUs[1]
		} else {
			hdu = file.Primary()
		}
	}
	width, height, ok := hdu.Dims()
	if !ok {
		return nil, 0, 0, fmt.Errorf("%s: no two-dimensional science data", filepath.Base(path))
	}
	data, err := hdu.Float64Image()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return data, width, height, nil
}

func sanitize(data []float64) {
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			data[i] = 0
		}
	}
}

// peakLaplacian returns the largest absolute response of a discrete
// Laplacian applied to the Gaussian-smoothed image.
func peakLaplacian(img []float64, width, height int, sigma float64) float64 {
	if width < 3 || height < 3 {
		return 0
	}
	smooth := gaussianSmooth(img, width, height, sigma)
	peak := 0.0
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			i := y*width + x
			lap := smooth[i-1] + smooth[i+1] + smooth[i-width] + smooth[i+width] - 4*smooth[i]
			if v := math.Abs(lap); v > peak {
				peak = v
			}
		}
	}
	return peak
}

func gaussianSmooth(img []float64, width, height int, sigma float64) []float64 {
	radius := int(4*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	rows := make([]float64, len(img))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			acc := 0.0
			for k := -radius; k <= radius; k++ {
				acc += kernel[k+radius] * img[y*width+reflect(x+k, width)]
			}
			rows[y*width+x] = acc
		}
	}
	out := make([]float64, len(img))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			acc := 0.0
			for k := -radius; k <= radius; k++ {
				acc += kernel[k+radius] * rows[reflect(y+k, height)*width+x]
			}
			out[y*width+x] = acc
		}
	}
	return out
}

// reflect mirrors an out-of-range coordinate back into [0, n).
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}

var _ Evaluator = (*Meter)(nil)
