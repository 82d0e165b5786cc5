package fitsfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/siravan/fits"
)

// File is a parsed FITS file: the primary HDU plus any extensions.
type File struct {
	Path string
	HDUs []*HDU
}

// HDU wraps one header/data unit.
type HDU struct {
	unit *fits.Unit
}

// Read parses the FITS file at path into memory.
func Read(path string) (*File, error) {
	handle, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	units, err := fits.Open(handle)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("parse %s: no header units", filepath.Base(path))
	}
	file := &File{Path: path, HDUs: make([]*HDU, 0, len(units))}
	for _, unit := range units {
		file.HDUs = append(file.HDUs, &HDU{unit: unit})
	}
	return file, nil
}

// Primary returns the first HDU.
func (f *File) Primary() *HDU {
	return f.HDUs[0]
}

// Extension returns the extension with the given EXTNAME and EXTVER, or nil
// when absent. EXTVER defaults to 1 when the header omits it.
func (f *File) Extension(name string, ver int) *HDU {
	for _, hdu := range f.HDUs[1:] {
		extname, ok := hdu.Str("EXTNAME")
		if !ok || !strings.EqualFold(extname, name) {
			continue
		}
		extver, ok := hdu.Int("EXTVER")
		if !ok {
			extver = 1
		}
		if extver == ver {
			return hdu
		}
	}
	return nil
}

// Table returns the first extension carrying table data, or nil.
func (f *File) Table() *HDU {
	for _, hdu := range f.HDUs[1:] {
		if hdu.unit.HasTable() {
			return hdu
		}
	}
	return nil
}

// Str returns the trimmed string value of a header keyword.
func (h *HDU) Str(key string) (string, bool) {
	value, ok := h.unit.Keys[key].(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

// Int returns an integer keyword value. Float-valued cards are truncated.
func (h *HDU) Int(key string) (int, bool) {
	switch value := h.unit.Keys[key].(type) {
	case int:
		return value, true
	case float64:
		return int(value), true
	}
	return 0, false
}

// Float returns a floating-point keyword value, accepting integer cards.
func (h *HDU) Float(key string) (float64, bool) {
	switch value := h.unit.Keys[key].(type) {
	case int:
		return float64(value), true
	case float64:
		return value, true
	}
	return 0, false
}

// Bool returns a logical keyword value.
func (h *HDU) Bool(key string) (bool, bool) {
	value, ok := h.unit.Keys[key].(bool)
	return value, ok
}

// Has reports whether the keyword appears in the header at all, valued or not.
func (h *HDU) Has(key string) bool {
	_, ok := h.unit.Keys[key]
	return ok
}

// Dims returns the image width and height (NAXIS1, NAXIS2).
func (h *HDU) Dims() (int, int, bool) {
	if len(h.unit.Naxis) < 2 {
		return 0, 0, false
	}
	return h.unit.Naxis[0], h.unit.Naxis[1], true
}

// Int32Image flattens integer image data to a row-major []int32.
func (h *HDU) Int32Image() ([]int32, error) {
	switch data := h.unit.Data.(type) {
	case []byte:
		out := make([]int32, len(data))
		for i, v := range data {
			out[i] = int32(v)
		}
		return out, nil
	case []int16:
		out := make([]int32, len(data))
		for i, v := range data {
			out[i] = int32(v)
		}
		return out, nil
	case []int32:
		out := make([]int32, len(data))
		copy(out, data)
		return out, nil
	case []int64:
		out := make([]int32, len(data))
		for i, v := range data {
			out[i] = int32(v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("HDU has no integer image data")
}

// Float64Image flattens numeric image data to a row-major []float64.
func (h *HDU) Float64Image() ([]float64, error) {
	switch data := h.unit.Data.(type) {
	case []byte:
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil
	case []int16:
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil
	case []float32:
		out := make([]float64, len(data))
		for i, v := range data {
			out[i] = float64(v)
		}
		return out, nil
	case []float64:
		out := make([]float64, len(data))
		copy(out, data)
		return out, nil
	}
	return nil, fmt.Errorf("HDU has no numeric image data")
}

// Rows returns the number of table rows (NAXIS2).
func (h *HDU) Rows() int {
	if !h.unit.HasTable() || len(h.unit.Naxis) < 2 {
		return 0
	}
	return h.unit.Naxis[1]
}

// StringColumn extracts a trimmed character column from a table HDU.
func (h *HDU) StringColumn(name string) ([]string, error) {
	if !h.unit.HasTable() {
		return nil, fmt.Errorf("HDU is not a table")
	}
	accessor := h.unit.Field(name)
	out := make([]string, h.Rows())
	for i := range out {
		value, ok := accessor(i).(string)
		if !ok {
			return nil, fmt.Errorf("column %s row %d is not character data", name, i)
		}
		out[i] = strings.TrimSpace(value)
	}
	return out, nil
}

// LogicalColumn extracts an L column from a binary table HDU. The values are
// decoded from the raw row bytes because a FITS logical stores the literal
// characters T and F, which a numeric boolean read would both treat as set.
func (h *HDU) LogicalColumn(name string) ([]bool, error) {
	raw, ok := h.unit.Data.([]byte)
	if !ok || !h.unit.HasTable() {
		return nil, fmt.Errorf("HDU is not a binary table")
	}
	offset, err := h.columnOffset(name, 'L')
	if err != nil {
		return nil, err
	}
	rowLen := h.unit.Naxis[0]
	out := make([]bool, h.Rows())
	for i := range out {
		out[i] = raw[i*rowLen+offset] == 'T'
	}
	return out, nil
}

// columnOffset walks the TFORM declarations to find the byte offset of the
// named column within a binary-table row and checks its type code.
func (h *HDU) columnOffset(name string, wantCode byte) (int, error) {
	tfields, ok := h.Int("TFIELDS")
	if !ok {
		return 0, fmt.Errorf("table has no TFIELDS")
	}
	offset := 0
	for i := 1; i <= tfields; i++ {
		form, ok := h.Str(fits.Nth("TFORM", i))
		if !ok {
			return 0, fmt.Errorf("table has no %s", fits.Nth("TFORM", i))
		}
		repeat, code, err := parseForm(form)
		if err != nil {
			return 0, err
		}
		ttype, _ := h.Str(fits.Nth("TTYPE", i))
		if strings.EqualFold(ttype, name) {
			if code != wantCode {
				return 0, fmt.Errorf("column %s has type %c, want %c", name, code, wantCode)
			}
			return offset, nil
		}
		offset += repeat * formWidth(code)
	}
	return 0, fmt.Errorf("table has no column %s", name)
}

func parseForm(form string) (int, byte, error) {
	idx := strings.IndexAny(form, "ABCDEIJKLM")
	if idx == -1 {
		return 0, 0, fmt.Errorf("unsupported TFORM %q", form)
	}
	repeat := 1
	if idx > 0 {
		if _, err := fmt.Sscanf(form[:idx], "%d", &repeat); err != nil {
			return 0, 0, fmt.Errorf("unsupported TFORM %q", form)
		}
	}
	return repeat, form[idx], nil
}

func formWidth(code byte) int {
	switch code {
	case 'A', 'B', 'L':
		return 1
	case 'I':
		return 2
	case 'J', 'E':
		return 4
	case 'K', 'D', 'C':
		return 8
	case 'M':
		return 16
	}
	return 0
}
