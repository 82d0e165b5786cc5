package ledger_test

import (
	"context"
	"testing"
	"time"

	"astrodriz/internal/ledger"
	"astrodriz/internal/testsupport"
)

func TestNewRunRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	run, err := store.NewRun(context.Background(), "j8cw03010", "/data/j8cw03010_asn.fits")
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}
	if run.ID == 0 {
		t.Fatal("expected run to receive an id")
	}
	if run.UUID == "" {
		t.Fatal("expected run to receive a uuid")
	}
	if run.Status != ledger.StatusPending {
		t.Fatalf("status = %s, want %s", run.Status, ledger.StatusPending)
	}

	fetched, err := store.GetByID(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected run to be found")
	}
	if fetched.Dataset != "j8cw03010" {
		t.Fatalf("dataset = %q", fetched.Dataset)
	}
	if fetched.SourcePath != "/data/j8cw03010_asn.fits" {
		t.Fatalf("source path = %q", fetched.SourcePath)
	}
}

func TestGetByIDMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	run, err := store.GetByID(context.Background(), 9999)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if run != nil {
		t.Fatalf("expected nil run, got %+v", run)
	}
}

func TestUpdatePersistsFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store, "j8cw03010", "/data/j8cw03010_asn.fits")

	run.Status = ledger.StatusAligning
	run.InputKind = "association"
	run.Instrument = "ACS"
	run.DrizSwitch = "PERFORM"
	run.TrailerPath = "/data/j8cw03010.tra"
	run.AcceptedMode = "apriori"
	run.ProductsJSON = `["j8cw03010_drz.fits"]`
	run.NeedsReview = true
	run.ReviewReason = "similarity kept by force"
	now := time.Now().UTC()
	run.LastHeartbeat = &now
	if err := store.Update(context.Background(), run); err != nil {
		t.Fatalf("Update: %v", err)
	}

	fetched, err := store.GetByID(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.Status != ledger.StatusAligning {
		t.Fatalf("status = %s", fetched.Status)
	}
	if fetched.InputKind != "association" || fetched.Instrument != "ACS" {
		t.Fatalf("input kind/instrument = %q/%q", fetched.InputKind, fetched.Instrument)
	}
	if fetched.DrizSwitch != "PERFORM" {
		t.Fatalf("driz switch = %q", fetched.DrizSwitch)
	}
	if fetched.AcceptedMode != "apriori" {
		t.Fatalf("accepted mode = %q", fetched.AcceptedMode)
	}
	if !fetched.NeedsReview || fetched.ReviewReason == "" {
		t.Fatalf("review flags = %v %q", fetched.NeedsReview, fetched.ReviewReason)
	}
	if fetched.LastHeartbeat == nil {
		t.Fatal("expected heartbeat to persist")
	}
}

func TestFindActiveByDataset(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	done := testsupport.NewRun(t, store, "j8cw03010", "")
	done.Status = ledger.StatusCompleted
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if run, err := store.FindActiveByDataset(ctx, "j8cw03010"); err != nil || run != nil {
		t.Fatalf("expected no active run, got %+v err %v", run, err)
	}

	active := testsupport.NewRun(t, store, "j8cw03010", "")
	found, err := store.FindActiveByDataset(ctx, "j8cw03010")
	if err != nil {
		t.Fatalf("FindActiveByDataset: %v", err)
	}
	if found == nil || found.ID != active.ID {
		t.Fatalf("expected run %d, got %+v", active.ID, found)
	}
}

func TestFindLatestByDataset(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if run, err := store.FindLatestByDataset(ctx, "j8cw03010"); err != nil || run != nil {
		t.Fatalf("expected no run for unknown dataset, got %+v err %v", run, err)
	}

	first := testsupport.NewRun(t, store, "j8cw03010", "")
	first.Status = ledger.StatusCompleted
	if err := store.Update(ctx, first); err != nil {
		t.Fatalf("Update: %v", err)
	}

	found, err := store.FindLatestByDataset(ctx, "j8cw03010")
	if err != nil {
		t.Fatalf("FindLatestByDataset: %v", err)
	}
	if found == nil || found.ID != first.ID {
		t.Fatalf("expected completed run %d, got %+v", first.ID, found)
	}

	second := testsupport.NewRun(t, store, "j8cw03010", "")
	found, err = store.FindLatestByDataset(ctx, "j8cw03010")
	if err != nil {
		t.Fatalf("FindLatestByDataset: %v", err)
	}
	if found == nil || found.ID != second.ID {
		t.Fatalf("expected newest run %d, got %+v", second.ID, found)
	}
}

func TestNextForStatusesOrdersByCreation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewRun(t, store, "j8cw03010", "")
	testsupport.NewRun(t, store, "j8cw04010", "")

	next, err := store.NextForStatuses(ctx, ledger.StatusPending)
	if err != nil {
		t.Fatalf("NextForStatuses: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("expected oldest pending run %d, got %+v", first.ID, next)
	}

	none, err := store.NextForStatuses(ctx)
	if err != nil || none != nil {
		t.Fatalf("expected nil for empty status set, got %+v err %v", none, err)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for _, status := range []ledger.Status{ledger.StatusValidating, ledger.StatusAligning, ledger.StatusFinalizing} {
		run := testsupport.NewRun(t, store, "data_"+string(status), "")
		run.Status = status
		if err := store.Update(ctx, run); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	settled := testsupport.NewRun(t, store, "settled", "")
	settled.Status = ledger.StatusCompleted
	if err := store.Update(ctx, settled); err != nil {
		t.Fatalf("Update: %v", err)
	}

	reset, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing: %v", err)
	}
	if reset != 3 {
		t.Fatalf("reset %d runs, want 3", reset)
	}

	pending, err := store.List(ctx, ledger.StatusPending)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("pending = %d, want 3", len(pending))
	}
}

func TestReclaimStaleProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	stale := testsupport.NewRun(t, store, "stale", "")
	stale.Status = ledger.StatusAligning
	old := time.Now().UTC().Add(-2 * time.Hour)
	stale.LastHeartbeat = &old
	if err := store.Update(ctx, stale); err != nil {
		t.Fatalf("Update: %v", err)
	}

	fresh := testsupport.NewRun(t, store, "fresh", "")
	fresh.Status = ledger.StatusAligning
	if err := store.Update(ctx, fresh); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := store.UpdateHeartbeat(ctx, fresh.ID); err != nil {
		t.Fatalf("UpdateHeartbeat: %v", err)
	}

	reclaimed, err := store.ReclaimStaleProcessing(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ReclaimStaleProcessing: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("reclaimed %d runs, want 1", reclaimed)
	}

	got, err := store.GetByID(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != ledger.StatusPending {
		t.Fatalf("stale run status = %s, want pending", got.Status)
	}
	got, err = store.GetByID(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != ledger.StatusAligning {
		t.Fatalf("fresh run status = %s, want aligning", got.Status)
	}
}

func TestRetryFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	failed := testsupport.NewRun(t, store, "failed", "")
	failed.SetFailed("engine exploded")
	if err := store.Update(ctx, failed); err != nil {
		t.Fatalf("Update: %v", err)
	}
	other := testsupport.NewRun(t, store, "other", "")
	other.SetFailed("also broken")
	if err := store.Update(ctx, other); err != nil {
		t.Fatalf("Update: %v", err)
	}

	count, err := store.RetryFailed(ctx, failed.ID)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if count != 1 {
		t.Fatalf("retried %d runs, want 1", count)
	}

	got, err := store.GetByID(ctx, failed.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != ledger.StatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}
	if got.ErrorMessage != "" {
		t.Fatalf("error message should clear, got %q", got.ErrorMessage)
	}

	count, err = store.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed all: %v", err)
	}
	if count != 1 {
		t.Fatalf("retried %d remaining runs, want 1", count)
	}
}

func TestHealthAggregation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewRun(t, store, "a", "")
	processing := testsupport.NewRun(t, store, "b", "")
	processing.Status = ledger.StatusAligning
	if err := store.Update(ctx, processing); err != nil {
		t.Fatalf("Update: %v", err)
	}
	done := testsupport.NewRun(t, store, "c", "")
	done.Status = ledger.StatusCompleted
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}
	skipped := testsupport.NewRun(t, store, "d", "")
	skipped.SetSkipped("DRIZCORR = OMIT")
	if err := store.Update(ctx, skipped); err != nil {
		t.Fatalf("Update: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 4 || health.Pending != 1 || health.Processing != 1 || health.Completed != 1 || health.Skipped != 1 {
		t.Fatalf("health = %+v", health)
	}
}

func TestCheckHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists {
		t.Fatalf("health = %+v", health)
	}
	if len(health.MissingColumns) != 0 {
		t.Fatalf("missing columns: %v", health.MissingColumns)
	}
	if !health.IntegrityCheck {
		t.Fatal("integrity check failed")
	}
}

func TestRecordAttemptRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	run := testsupport.NewRun(t, store, "j8cw03010", "")

	sim := 0.42
	finished := time.Now().UTC()
	attempts := []*ledger.Attempt{
		{
			RunID:     run.ID,
			Mode:      "pipeline-default",
			Accepted:  true,
			FocusOK:   true,
			StartedAt: time.Now().UTC().Add(-time.Minute),
		},
		{
			RunID:       run.ID,
			Mode:        "apriori",
			Accepted:    false,
			FocusOK:     true,
			Similarity:  &sim,
			Compromised: false,
			Reason:      "similarity index 1.70 above threshold",
			StagingDir:  "/staging/j8cw03010/apriori",
			FinishedAt:  &finished,
		},
	}
	for _, attempt := range attempts {
		if err := store.RecordAttempt(ctx, attempt); err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
		if attempt.ID == 0 {
			t.Fatal("expected attempt id")
		}
	}

	got, err := store.AttemptsForRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("AttemptsForRun: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("attempts = %d, want 2", len(got))
	}
	if got[0].Mode != "pipeline-default" || !got[0].Accepted {
		t.Fatalf("first attempt = %+v", got[0])
	}
	if got[1].Similarity == nil || *got[1].Similarity != sim {
		t.Fatalf("similarity = %v", got[1].Similarity)
	}
	if got[1].FinishedAt == nil {
		t.Fatal("expected finished timestamp")
	}
}

func TestRemoveCascadesAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	run := testsupport.NewRun(t, store, "j8cw03010", "")

	if err := store.RecordAttempt(ctx, &ledger.Attempt{RunID: run.ID, Mode: "pipeline-default"}); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	removed, err := store.Remove(ctx, run.ID)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Fatal("expected removal")
	}
	attempts, err := store.AttemptsForRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("AttemptsForRun: %v", err)
	}
	if len(attempts) != 0 {
		t.Fatalf("attempts survived removal: %d", len(attempts))
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := ledger.ParseStatus(" Aligning "); !ok || status != ledger.StatusAligning {
		t.Fatalf("ParseStatus = %q %v", status, ok)
	}
	if _, ok := ledger.ParseStatus("stacking"); ok {
		t.Fatal("unknown status should not parse")
	}
	if _, ok := ledger.ParseStatus(""); ok {
		t.Fatal("empty status should not parse")
	}
}

func TestClearHelpers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	done := testsupport.NewRun(t, store, "done", "")
	done.Status = ledger.StatusCompleted
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}
	broken := testsupport.NewRun(t, store, "broken", "")
	broken.SetFailed("boom")
	if err := store.Update(ctx, broken); err != nil {
		t.Fatalf("Update: %v", err)
	}
	testsupport.NewRun(t, store, "waiting", "")

	if n, err := store.ClearCompleted(ctx); err != nil || n != 1 {
		t.Fatalf("ClearCompleted = %d, %v", n, err)
	}
	if n, err := store.ClearFailed(ctx); err != nil || n != 1 {
		t.Fatalf("ClearFailed = %d, %v", n, err)
	}
	if n, err := store.Clear(ctx); err != nil || n != 1 {
		t.Fatalf("Clear = %d, %v", n, err)
	}
}
