package products_test

import (
	"path/filepath"
	"testing"

	"astrodriz/internal/fitsfile"
	"astrodriz/internal/products"
)

func writeProduct(t *testing.T, path string) {
	t.Helper()
	primary := fitsfile.Primary{Cards: []fitsfile.Card{
		{Key: "ROOTNAME", Value: "J8CW03011"},
		{Key: "DRIZCORR", Value: "PERFORM"},
		{Key: "NDRIZIM", Value: 2},
		{Key: "TEXPTIME", Value: 1205.88},
		{Key: "D001VER", Value: "WDRIZZLE Version 4.20"},
		{Key: "D001GEOM", Value: "wcs"},
		{Key: "D001DATA", Value: "j8cw03fxq_flt.fits[sci,1]"},
		{Key: "D001DEXP", Value: 602.94},
		{Key: "D001OUDA", Value: "j8cw03011_drz.fits[sci,1]"},
		{Key: "D001OUWE", Value: "j8cw03011_drz.fits[wht,1]"},
		{Key: "D001OUCO", Value: "j8cw03011_drz.fits[ctx,1]"},
		{Key: "D001MASK", Value: "j8cw03fxq_sci1_final_mask.fits"},
		{Key: "D001WTSC", Value: 363536.7},
		{Key: "D001KERN", Value: "square"},
		{Key: "D001PIXF", Value: 1.0},
		{Key: "D001FVAL", Value: "INDEF"},
		{Key: "D001OUUN", Value: "cps"},
		{Key: "D002VER", Value: "WDRIZZLE Version 4.20"},
		{Key: "D002DATA", Value: "j8cw03fyq_flt.fits[sci,1]"},
		{Key: "D002DEXP", Value: 602.94},
		{Key: "D002KERN", Value: "square"},
		{Key: "D002PIXF", Value: 1.0},
	}}
	images := []fitsfile.Image{
		{Name: "SCI", Ver: 1, Width: 8, Height: 6, Float32: make([]float32, 48)},
		{Name: "WHT", Ver: 1, Width: 8, Height: 6, Float32: make([]float32, 48)},
		{Name: "CTX", Ver: 1, Width: 8, Height: 6, Int16: make([]int16, 48)},
	}
	if err := fitsfile.Write(path, primary, images, nil); err != nil {
		t.Fatal(err)
	}
}

func TestInspectReadsProvenance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j8cw03011_drz.fits")
	writeProduct(t, path)

	summary, err := products.Inspect(path)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if summary.Output != "j8cw03011" {
		t.Errorf("output = %q", summary.Output)
	}
	if summary.DrizCorr != "PERFORM" || summary.NDrizIm != 2 {
		t.Errorf("switch/ndrizim = %q/%d", summary.DrizCorr, summary.NDrizIm)
	}
	if summary.ExpTime != 1205.88 {
		t.Errorf("exptime = %v", summary.ExpTime)
	}
	if len(summary.Extensions) != 3 {
		t.Fatalf("extensions = %+v", summary.Extensions)
	}
	if summary.Extensions[0].Name != "SCI" || summary.Extensions[0].Width != 8 || summary.Extensions[0].Height != 6 {
		t.Errorf("sci extension = %+v", summary.Extensions[0])
	}

	if len(summary.Inputs) != 2 {
		t.Fatalf("inputs = %+v", summary.Inputs)
	}
	first := summary.Inputs[0]
	if first.Data != "j8cw03fxq_flt.fits[sci,1]" || first.Kernel != "square" || first.PixFrac != 1.0 {
		t.Errorf("first input = %+v", first)
	}
	if first.Mask != "j8cw03fxq_sci1_final_mask.fits" || first.FillVal != "INDEF" {
		t.Errorf("first input mask/fval = %+v", first)
	}
	if summary.Inputs[1].Index != 2 || summary.Inputs[1].Data != "j8cw03fyq_flt.fits[sci,1]" {
		t.Errorf("second input = %+v", summary.Inputs[1])
	}
}

func TestInspectWithoutProvenance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bare_drz.fits")
	primary := fitsfile.Primary{Cards: []fitsfile.Card{{Key: "EXPTIME", Value: 10.0}}}
	if err := fitsfile.Write(path, primary, nil, nil); err != nil {
		t.Fatal(err)
	}

	summary, err := products.Inspect(path)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if summary.Output != "bare_drz" {
		t.Errorf("output = %q", summary.Output)
	}
	if summary.ExpTime != 10.0 || len(summary.Inputs) != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestStampComplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j8cw03011_drz.fits")
	writeProduct(t, path)

	if err := products.StampComplete(path); err != nil {
		t.Fatalf("StampComplete failed: %v", err)
	}
	summary, err := products.Inspect(path)
	if err != nil {
		t.Fatal(err)
	}
	if summary.DrizCorr != "COMPLETE" {
		t.Fatalf("switch = %q after stamp", summary.DrizCorr)
	}
}

func TestStampCompleteMissingKeyword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.fits")
	if err := fitsfile.Write(path, fitsfile.Primary{}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := products.StampComplete(path); err == nil {
		t.Fatal("expected error when the calibration switch is absent")
	}
}
