package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"astrodriz/internal/config"
	"astrodriz/internal/fitsfile"
	"astrodriz/internal/ledger"
	"astrodriz/internal/logging"
	"astrodriz/internal/pipeline"
	"astrodriz/internal/services"
	"astrodriz/internal/stage"
	"astrodriz/internal/testsupport"
)

func writeCombinedProduct(t *testing.T, path string, withSwitch bool) {
	t.Helper()
	var cards []fitsfile.Card
	if withSwitch {
		cards = append(cards, fitsfile.Card{Key: "DRIZCORR", Value: "PERFORM"})
	}
	cards = append(cards, fitsfile.Card{Key: "NDRIZIM", Value: 2.0})
	sci := fitsfile.Image{
		Name: "SCI", Ver: 1, Width: 2, Height: 2,
		Float32: []float32{1, 2, 3, 4},
	}
	if err := fitsfile.Write(path, fitsfile.Primary{Cards: cards}, []fitsfile.Image{sci}, nil); err != nil {
		t.Fatal(err)
	}
}

type finalizeFixture struct {
	cfg   *config.Config
	store *ledger.Store
	run   *ledger.Run
	dir   string
}

// newFinalizeFixture lays out a finished singleton run: calibrated
// exposure, combined product and an accepted pipeline-default alignment.
func newFinalizeFixture(t *testing.T, products ...string) *finalizeFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	dir := t.TempDir()
	writeScience(t, filepath.Join(dir, "j8cw03fxq_flt.fits"), "ACS", "WFC", "PERFORM")

	if len(products) == 0 {
		products = []string{"j8cw03fxq_drz.fits"}
	}
	for _, name := range products {
		writeCombinedProduct(t, filepath.Join(dir, name), true)
	}

	run := testsupport.NewRun(t, store, "j8cw03fxq", filepath.Join(dir, "j8cw03fxq_flt.fits"))
	run.InputKind = pipeline.KindExposure
	run.AcceptedMode = "pipeline-default"
	run.TrailerPath = filepath.Join(dir, "j8cw03fxq.tra")
	encoded, err := stage.EncodeProducts(products)
	if err != nil {
		t.Fatalf("EncodeProducts: %v", err)
	}
	run.ProductsJSON = encoded
	return &finalizeFixture{cfg: cfg, store: store, run: run, dir: dir}
}

func (f *finalizeFixture) finalizer(t *testing.T, opts pipeline.Options) *pipeline.Finalizer {
	t.Helper()
	return pipeline.NewFinalizer(f.cfg, f.store, logging.NewNop(), opts)
}

func mustPrimaryCard(t *testing.T, path, key string) string {
	t.Helper()
	file, err := fitsfile.Read(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	value, ok := file.Primary().Str(key)
	if !ok {
		t.Fatalf("%s missing %s", filepath.Base(path), key)
	}
	return value
}

func TestFinalizerStampsProductsAndExportsHeaderlets(t *testing.T) {
	fx := newFinalizeFixture(t)

	f := fx.finalizer(t, pipeline.Options{Headerlets: true})
	if err := f.Execute(context.Background(), fx.run); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	product := filepath.Join(fx.dir, "j8cw03fxq_drz.fits")
	if got := mustPrimaryCard(t, product, "DRIZCORR"); got != "COMPLETE" {
		t.Fatalf("DRIZCORR = %q, want COMPLETE", got)
	}
	if _, err := os.Stat(filepath.Join(fx.dir, "j8cw03fxq_flt_hlet.fits")); err != nil {
		t.Fatalf("headerlet not exported: %v", err)
	}

	content := readRunTrailer(t, fx.run)
	for _, want := range []string{
		"Writing Headerlets started",
		"Created Headerlet file j8cw03fxq_flt_hlet.fits",
		"Writing Headerlets completed",
		"Finished processing j8cw03fxq",
	} {
		if !strings.Contains(content, want) {
			t.Fatalf("trailer missing %q:\n%s", want, content)
		}
	}
	if fx.run.ProgressStage != "Completed" || fx.run.ProgressPercent != 100 {
		t.Fatalf("progress = %q %.0f", fx.run.ProgressStage, fx.run.ProgressPercent)
	}
}

func TestFinalizerNormalizesProductCase(t *testing.T) {
	fx := newFinalizeFixture(t, "J8CW03011_drz.fits")

	f := fx.finalizer(t, pipeline.Options{})
	if err := f.Execute(context.Background(), fx.run); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if _, err := os.Stat(filepath.Join(fx.dir, "j8cw03011_drz.fits")); err != nil {
		t.Fatalf("lowercased product missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(fx.dir, "J8CW03011_drz.fits")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("uppercase product still present: %v", err)
	}
	products, err := stage.ParseProducts(fx.run.ProductsJSON)
	if err != nil || len(products) != 1 || products[0] != "j8cw03011_drz.fits" {
		t.Fatalf("products = %v (%v)", products, err)
	}
}

func TestFinalizerToleratesMissingSwitchKeyword(t *testing.T) {
	fx := newFinalizeFixture(t)
	writeCombinedProduct(t, filepath.Join(fx.dir, "j8cw03fxq_drz.fits"), false)

	f := fx.finalizer(t, pipeline.Options{})
	if err := f.Execute(context.Background(), fx.run); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if fx.run.ProgressStage != "Completed" {
		t.Fatalf("progress = %q", fx.run.ProgressStage)
	}
}

func TestFinalizerRemovesAssociationWorkingCopy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	dir := t.TempDir()
	asnPath := writeAssociationSet(t, dir, "PERFORM")
	copyPath := filepath.Join(dir, "j8cw03010_pipeline_asn.fits")
	testsupport.WriteFile(t, copyPath, 64)
	writeCombinedProduct(t, filepath.Join(dir, "j8cw03011_drz.fits"), true)

	run := testsupport.NewRun(t, store, "j8cw03010", asnPath)
	run.InputKind = pipeline.KindAssociation
	run.AcceptedMode = "pipeline-default"
	run.TrailerPath = filepath.Join(dir, "j8cw03010.tra")
	encoded, err := stage.EncodeProducts([]string{"j8cw03011_drz.fits"})
	if err != nil {
		t.Fatal(err)
	}
	run.ProductsJSON = encoded

	f := pipeline.NewFinalizer(cfg, store, logging.NewNop(), pipeline.Options{})
	if err := f.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if _, err := os.Stat(copyPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("pipeline association copy still present: %v", err)
	}
}

func TestFinalizerNotesSkippedHeaderlet(t *testing.T) {
	fx := newFinalizeFixture(t)
	// Truncate the exposure so the sidecar export has no WCS to snapshot.
	if err := os.WriteFile(filepath.Join(fx.dir, "j8cw03fxq_flt.fits"), []byte("not fits"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := fx.finalizer(t, pipeline.Options{Headerlets: true})
	if err := f.Execute(context.Background(), fx.run); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	content := readRunTrailer(t, fx.run)
	if !strings.Contains(content, "SKIPPED: Headerlet not created for j8cw03fxq_flt.fits") {
		t.Fatalf("trailer missing skip notice:\n%s", content)
	}
}

func TestFinalizerReleasesStaging(t *testing.T) {
	fx := newFinalizeFixture(t)
	staged := filepath.Join(fx.cfg.Paths.StagingDir, "j8cw03fxq", "pipeline-default")
	testsupport.WriteFile(t, filepath.Join(staged, "j8cw03fxq_flt.fits"), 64)

	f := fx.finalizer(t, pipeline.Options{})
	if err := f.Execute(context.Background(), fx.run); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if _, err := os.Stat(filepath.Join(fx.cfg.Paths.StagingDir, "j8cw03fxq")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("staging tree still present: %v", err)
	}
}

func TestFinalizerKeepsStagingWhenAsked(t *testing.T) {
	fx := newFinalizeFixture(t)
	staged := filepath.Join(fx.cfg.Paths.StagingDir, "j8cw03fxq", "pipeline-default")
	testsupport.WriteFile(t, filepath.Join(staged, "j8cw03fxq_flt.fits"), 64)

	f := fx.finalizer(t, pipeline.Options{KeepStaging: true})
	if err := f.Execute(context.Background(), fx.run); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if _, err := os.Stat(staged); err != nil {
		t.Fatalf("staging tree removed despite keep option: %v", err)
	}
}

func TestFinalizerPreservesReviewOutcome(t *testing.T) {
	fx := newFinalizeFixture(t)
	fx.run.NeedsReview = true
	fx.run.ReviewReason = "similarity index 1.70 kept by force"

	f := fx.finalizer(t, pipeline.Options{})
	if err := f.Execute(context.Background(), fx.run); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if fx.run.ProgressStage != "Needs review" {
		t.Fatalf("ProgressStage = %q", fx.run.ProgressStage)
	}
	if fx.run.ProgressMessage != fx.run.ReviewReason {
		t.Fatalf("ProgressMessage = %q", fx.run.ProgressMessage)
	}
}

func TestFinalizerPrepareRequiresAcceptedMode(t *testing.T) {
	fx := newFinalizeFixture(t)
	fx.run.AcceptedMode = ""

	f := fx.finalizer(t, pipeline.Options{})
	err := f.Prepare(context.Background(), fx.run)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("Prepare error = %v, want validation failure", err)
	}
}

func TestFinalizerRequiresRecordedProducts(t *testing.T) {
	fx := newFinalizeFixture(t)
	fx.run.ProductsJSON = ""

	f := fx.finalizer(t, pipeline.Options{})
	err := f.Execute(context.Background(), fx.run)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("Execute error = %v, want validation failure", err)
	}
}
