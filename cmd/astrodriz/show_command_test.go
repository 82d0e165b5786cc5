package main

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"astrodriz/internal/align"
	"astrodriz/internal/ledger"
	"astrodriz/internal/stage"
	"astrodriz/internal/testsupport"
)

func TestShowRunDetail(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	run := testsupport.NewRun(t, env.store, "j8cw03fxq", "/data/j8cw03fxq_flt.fits")
	run.Status = ledger.StatusCompleted
	run.InputKind = "exposure"
	run.Instrument = "ACS/WFC"
	run.DrizSwitch = "PERFORM"
	run.AcceptedMode = string(align.ModeAposteriori)
	products, err := stage.EncodeProducts([]string{"/data/j8cw03fxq_drz.fits"})
	if err != nil {
		t.Fatalf("EncodeProducts: %v", err)
	}
	run.ProductsJSON = products
	if err := env.store.Update(ctx, run); err != nil {
		t.Fatalf("update run: %v", err)
	}

	similarity := 0.871
	finished := time.Now().UTC()
	attempt := &ledger.Attempt{
		RunID:      run.ID,
		Mode:       string(align.ModeDefault),
		FocusOK:    true,
		Similarity: &similarity,
		Reason:     "similarity above threshold",
		StartedAt:  finished.Add(-30 * time.Second),
		FinishedAt: &finished,
	}
	if err := env.store.RecordAttempt(ctx, attempt); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}

	out, _, err := runCLI(t, []string{"show", fmt.Sprintf("%d", run.ID)}, env.configPath)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, fmt.Sprintf("Run #%d", run.ID))
	requireContains(t, out, "j8cw03fxq")
	requireContains(t, out, "Completed")
	requireContains(t, out, "aposteriori")
	requireContains(t, out, "/data/j8cw03fxq_drz.fits")
	requireContains(t, out, "pipeline-default")
	requireContains(t, out, "0.871")
	requireContains(t, out, "similarity above threshold")

	out, _, err = runCLI(t, []string{"show", fmt.Sprintf("%d", run.ID), "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("show --json: %v", err)
	}
	var payload struct {
		Dataset  string `json:"dataset"`
		Status   string `json:"status"`
		Attempts []struct {
			Mode       string   `json:"mode"`
			Similarity *float64 `json:"similarity"`
		} `json:"attempts"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if payload.Dataset != "j8cw03fxq" || payload.Status != string(ledger.StatusCompleted) {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if len(payload.Attempts) != 1 || payload.Attempts[0].Mode != string(align.ModeDefault) {
		t.Fatalf("unexpected attempts: %+v", payload.Attempts)
	}
	if payload.Attempts[0].Similarity == nil || *payload.Attempts[0].Similarity != 0.871 {
		t.Fatalf("similarity missing from payload: %+v", payload.Attempts)
	}

	_, _, err = runCLI(t, []string{"show", "999"}, env.configPath)
	if err == nil {
		t.Fatal("expected missing run to error")
	}
	requireContains(t, err.Error(), "run 999 not found")
}
