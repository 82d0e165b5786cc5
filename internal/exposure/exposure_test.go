package exposure_test

import (
	"os"
	"path/filepath"
	"testing"

	"astrodriz/internal/exposure"
	"astrodriz/internal/fitsfile"
)

func TestSplitName(t *testing.T) {
	cases := []struct {
		path   string
		root   string
		suffix string
	}{
		{"j8cw03fxq_flt.fits", "j8cw03fxq", "flt"},
		{"/data/j8cw03010_asn.fits", "j8cw03010", "asn"},
		{"u40x0102m_c0m.fits", "u40x0102m", "c0m"},
		{"j8cw03fxq.fits", "j8cw03fxq", ""},
		{"j8cw03fxq_single_sci.fits", "j8cw03fxq_single", "sci"},
	}
	for _, tc := range cases {
		root, suffix := exposure.SplitName(tc.path)
		if root != tc.root || suffix != tc.suffix {
			t.Errorf("SplitName(%q) = %q, %q; want %q, %q", tc.path, root, suffix, tc.root, tc.suffix)
		}
	}
}

func TestTrailerRoot(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/data/j8cw03fxq_raw.fits", "/data/j8cw03fxq"},
		{"/data/j8cw03010_asn.fits", "/data/j8cw03010"},
		{"/data/j8cw03fxq_flt.fits", "/data/j8cw03fxq"},
		{"/data/j8cw03fxq.fits", "/data/j8cw03fxq"},
	}
	for _, tc := range cases {
		if got := exposure.TrailerRoot(tc.path); got != tc.want {
			t.Errorf("TrailerRoot(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestResolveScience(t *testing.T) {
	dir := t.TempDir()
	flt := filepath.Join(dir, "j8cw03fxq_flt.fits")
	if err := os.WriteFile(flt, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := exposure.ResolveScience(dir, "j8cw03fxq", false)
	if err != nil {
		t.Fatalf("ResolveScience failed: %v", err)
	}
	if got != flt {
		t.Fatalf("ResolveScience = %q, want %q", got, flt)
	}

	if _, err := exposure.ResolveScience(dir, "u40x0102m", true); err == nil {
		t.Fatal("expected error for missing WFPC2 product")
	}
}

func TestCTECompanion(t *testing.T) {
	dir := t.TempDir()
	flt := filepath.Join(dir, "j8cw03fxq_flt.fits")
	flc := filepath.Join(dir, "j8cw03fxq_flc.fits")
	for _, p := range []string{flt, flc} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	companion, ok := exposure.CTECompanion(flt)
	if !ok || companion != flc {
		t.Fatalf("CTECompanion = %q, %v; want %q, true", companion, ok, flc)
	}

	if _, ok := exposure.CTECompanion(flc); ok {
		t.Fatal("flc file must not report a companion")
	}

	other := filepath.Join(dir, "j8cw03fyq_flt.fits")
	if err := os.WriteFile(other, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := exposure.CTECompanion(other); ok {
		t.Fatal("expected no companion without an flc file")
	}
}

func TestDQCompanion(t *testing.T) {
	got := exposure.DQCompanion("/data/u40x0102m_c0m.fits")
	if got != "/data/u40x0102m_c1m.fits" {
		t.Fatalf("DQCompanion = %q", got)
	}
	if got := exposure.DQCompanion("/data/j8cw03fxq_flt.fits"); got != "" {
		t.Fatalf("flt exposures carry DQ inline, got %q", got)
	}
}

func TestInspectReadsClassificationKeywords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ibcd01xyq_flt.fits")
	primary := fitsfile.Primary{Cards: []fitsfile.Card{
		{Key: "INSTRUME", Value: "WFC3"},
		{Key: "DETECTOR", Value: "IR"},
		{Key: "DRIZCORR", Value: "PERFORM"},
		{Key: "EXPTIME", Value: 602.94},
	}}
	sci := fitsfile.Image{
		Name: "SCI", Ver: 1, Width: 2, Height: 2,
		Float32: []float32{1, 2, 3, 4},
		Cards:   []fitsfile.Card{{Key: "BUNIT", Value: "ELECTRONS/S"}},
	}
	if err := fitsfile.Write(path, primary, []fitsfile.Image{sci}, nil); err != nil {
		t.Fatal(err)
	}

	info, err := exposure.Inspect(path)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if info.Instrument != exposure.InstrumentWFC3IR {
		t.Fatalf("Instrument = %q", info.Instrument)
	}
	if !info.ShouldDrizzle() {
		t.Fatal("expected PERFORM to request processing")
	}
	if !info.CountRate {
		t.Fatal("expected count-rate units from BUNIT")
	}
	if info.Root != "ibcd01xyq" || info.Suffix != "flt" {
		t.Fatalf("Root/Suffix = %q/%q", info.Root, info.Suffix)
	}
	if info.ExpTime != 602.94 {
		t.Fatalf("ExpTime = %v", info.ExpTime)
	}
}

func TestDrizzleSwitchPrefersRawFile(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "j8cw03fxq_raw.fits")
	flt := filepath.Join(dir, "j8cw03fxq_flt.fits")

	rawCards := fitsfile.Primary{Cards: []fitsfile.Card{{Key: "DRIZCORR", Value: "OMIT"}}}
	fltCards := fitsfile.Primary{Cards: []fitsfile.Card{{Key: "DRIZCORR", Value: "PERFORM"}}}
	if err := fitsfile.Write(raw, rawCards, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := fitsfile.Write(flt, fltCards, nil, nil); err != nil {
		t.Fatal(err)
	}

	value, err := exposure.DrizzleSwitch(dir, "j8cw03fxq", flt)
	if err != nil {
		t.Fatalf("DrizzleSwitch failed: %v", err)
	}
	if value != exposure.DrizzleOmit {
		t.Fatalf("DrizzleSwitch = %q, want OMIT", value)
	}

	if err := os.Remove(raw); err != nil {
		t.Fatal(err)
	}
	value, err = exposure.DrizzleSwitch(dir, "j8cw03fxq", flt)
	if err != nil {
		t.Fatalf("DrizzleSwitch fallback failed: %v", err)
	}
	if value != exposure.DrizzlePerform {
		t.Fatalf("DrizzleSwitch fallback = %q, want PERFORM", value)
	}
}
