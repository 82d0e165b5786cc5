package pipeline_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"astrodriz/internal/logging"
	"astrodriz/internal/pipeline"
	"astrodriz/internal/testsupport"
)

func TestRelocateCopiesAssociationFamily(t *testing.T) {
	dir := t.TempDir()
	asnPath := writeAssociationSet(t, dir, "PERFORM")
	testsupport.WriteFile(t, filepath.Join(dir, "j8cw03011_drz.fits"), 32)
	testsupport.WriteFile(t, filepath.Join(dir, "x9zz99abc_flt.fits"), 32)

	workRoot := t.TempDir()
	rel, err := pipeline.Relocate(asnPath, workRoot, logging.NewNop())
	if err != nil {
		t.Fatalf("Relocate: %v", err)
	}

	if rel.WorkDir != filepath.Join(workRoot, "j8cw03010") {
		t.Fatalf("WorkDir = %q", rel.WorkDir)
	}
	if rel.SourcePath != filepath.Join(rel.WorkDir, "j8cw03010_asn.fits") {
		t.Fatalf("SourcePath = %q", rel.SourcePath)
	}
	for _, name := range []string{
		"j8cw03010_asn.fits",
		"j8cw03fxq_flt.fits",
		"j8cw03fyq_flt.fits",
		"j8cw03011_drz.fits",
	} {
		if _, err := os.Stat(filepath.Join(rel.WorkDir, name)); err != nil {
			t.Fatalf("missing %s in work dir: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(rel.WorkDir, "x9zz99abc_flt.fits")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("unrelated dataset file was copied")
	}
	if _, err := os.Stat(asnPath); err != nil {
		t.Fatalf("original association was moved: %v", err)
	}
}

func TestRelocateSingletonFollowsRootname(t *testing.T) {
	dir := t.TempDir()
	flt := filepath.Join(dir, "j8cw03fxq_flt.fits")
	for _, name := range []string{"j8cw03fxq_flt.fits", "j8cw03fxq_flc.fits", "j8cw03fxq_raw.fits", "j8cw03fyq_flt.fits"} {
		testsupport.WriteFile(t, filepath.Join(dir, name), 32)
	}

	rel, err := pipeline.Relocate(flt, t.TempDir(), logging.NewNop())
	if err != nil {
		t.Fatalf("Relocate: %v", err)
	}

	for _, name := range []string{"j8cw03fxq_flt.fits", "j8cw03fxq_flc.fits", "j8cw03fxq_raw.fits"} {
		if _, err := os.Stat(filepath.Join(rel.WorkDir, name)); err != nil {
			t.Fatalf("missing %s in work dir: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(rel.WorkDir, "j8cw03fyq_flt.fits")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("neighboring exposure was copied")
	}
}

func TestRestoreMovesResultsBack(t *testing.T) {
	dir := t.TempDir()
	flt := filepath.Join(dir, "j8cw03fxq_flt.fits")
	testsupport.WriteFile(t, flt, 32)

	rel, err := pipeline.Relocate(flt, t.TempDir(), logging.NewNop())
	if err != nil {
		t.Fatalf("Relocate: %v", err)
	}

	testsupport.WriteFile(t, filepath.Join(rel.WorkDir, "j8cw03fxq_drz.fits"), 48)
	testsupport.WriteFile(t, filepath.Join(rel.WorkDir, "j8cw03fxq.tra"), 16)

	if err := rel.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	for _, name := range []string{"j8cw03fxq_flt.fits", "j8cw03fxq_drz.fits", "j8cw03fxq.tra"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing %s after restore: %v", name, err)
		}
	}
	if _, err := os.Stat(rel.WorkDir); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("work dir still present after restore")
	}
}
