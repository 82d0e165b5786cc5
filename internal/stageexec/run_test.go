package stageexec_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"astrodriz/internal/ledger"
	"astrodriz/internal/logging"
	"astrodriz/internal/notifications"
	"astrodriz/internal/stageexec"
	"astrodriz/internal/testsupport"
)

type fakeHandler struct {
	prepareErr error
	executeErr error
	onExecute  func(*ledger.Run)

	logger   *slog.Logger
	prepared bool
	executed bool
}

func (f *fakeHandler) Prepare(ctx context.Context, run *ledger.Run) error {
	f.prepared = true
	return f.prepareErr
}

func (f *fakeHandler) Execute(ctx context.Context, run *ledger.Run) error {
	f.executed = true
	if f.onExecute != nil {
		f.onExecute(run)
	}
	return f.executeErr
}

func (f *fakeHandler) SetLogger(logger *slog.Logger) {
	f.logger = logger
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	loads  []notifications.Payload
}

func (r *recordingNotifier) Publish(ctx context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.loads = append(r.loads, payload)
	return nil
}

func TestRunAdvancesStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store, "j8cw03010", "/intake/j8cw03010_asn.fits")

	handler := &fakeHandler{}
	err := stageexec.Run(context.Background(), stageexec.Options{
		Logger:     logging.NewNop(),
		Store:      store,
		Handler:    handler,
		StageName:  "validate",
		Processing: ledger.StatusValidating,
		Done:       ledger.StatusAligning,
		Run:        run,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !handler.prepared || !handler.executed {
		t.Fatal("expected handler Prepare and Execute to run")
	}
	if handler.logger == nil {
		t.Fatal("expected executor to hand the handler a stage logger")
	}
	if run.Status != ledger.StatusAligning {
		t.Fatalf("expected status %s, got %s", ledger.StatusAligning, run.Status)
	}
	if run.LastHeartbeat != nil {
		t.Fatal("expected heartbeat cleared after stage completion")
	}
	if run.ProgressStage != "Validating" {
		t.Fatalf("unexpected progress stage: %q", run.ProgressStage)
	}
	if run.ProgressMessage != "Validating started" {
		t.Fatalf("unexpected progress message: %q", run.ProgressMessage)
	}

	stored, err := store.GetByID(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != ledger.StatusAligning {
		t.Fatalf("expected persisted status %s, got %s", ledger.StatusAligning, stored.Status)
	}
}

func TestRunKeepsHandlerResolvedStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store, "j8cw03010", "/intake/j8cw03010_asn.fits")

	handler := &fakeHandler{onExecute: func(run *ledger.Run) {
		run.SetSkipped("DRIZCORR = OMIT")
	}}
	err := stageexec.Run(context.Background(), stageexec.Options{
		Logger:     logging.NewNop(),
		Store:      store,
		Handler:    handler,
		StageName:  "validate",
		Processing: ledger.StatusValidating,
		Done:       ledger.StatusAligning,
		Run:        run,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if run.Status != ledger.StatusSkipped {
		t.Fatalf("expected handler skip to survive, got %s", run.Status)
	}

	stored, err := store.GetByID(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != ledger.StatusSkipped {
		t.Fatalf("expected persisted status %s, got %s", ledger.StatusSkipped, stored.Status)
	}
	if stored.ProgressMessage != "DRIZCORR = OMIT" {
		t.Fatalf("unexpected skip reason: %q", stored.ProgressMessage)
	}
}

func TestRunFailurePersistsAndNotifies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store, "j8cw03010", "/intake/j8cw03010_asn.fits")

	notifier := &recordingNotifier{}
	stageErr := errors.New("drizzle engine exploded")
	handler := &fakeHandler{executeErr: stageErr}
	err := stageexec.Run(context.Background(), stageexec.Options{
		Logger:     logging.NewNop(),
		Store:      store,
		Notifier:   notifier,
		Handler:    handler,
		StageName:  "align",
		Processing: ledger.StatusAligning,
		Done:       ledger.StatusFinalizing,
		Run:        run,
	})
	if !errors.Is(err, stageErr) {
		t.Fatalf("expected stage error returned, got %v", err)
	}

	stored, getErr := store.GetByID(context.Background(), run.ID)
	if getErr != nil {
		t.Fatalf("GetByID: %v", getErr)
	}
	if stored.Status != ledger.StatusFailed {
		t.Fatalf("expected persisted status %s, got %s", ledger.StatusFailed, stored.Status)
	}
	if stored.ErrorMessage != "drizzle engine exploded" {
		t.Fatalf("unexpected error message: %q", stored.ErrorMessage)
	}

	if len(notifier.events) != 1 || notifier.events[0] != notifications.EventError {
		t.Fatalf("expected one error notification, got %v", notifier.events)
	}
	if got := notifier.loads[0]["context"]; got != "align (run #1)" {
		t.Fatalf("unexpected notification context: %v", got)
	}
}

func TestRunPrepareFailureSkipsExecute(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store, "j8cw03010", "/intake/j8cw03010_asn.fits")

	handler := &fakeHandler{prepareErr: errors.New("missing calibration files")}
	err := stageexec.Run(context.Background(), stageexec.Options{
		Logger:     logging.NewNop(),
		Store:      store,
		Handler:    handler,
		StageName:  "align",
		Processing: ledger.StatusAligning,
		Done:       ledger.StatusFinalizing,
		Run:        run,
	})
	if err == nil {
		t.Fatal("expected prepare failure to propagate")
	}
	if handler.executed {
		t.Fatal("expected Execute to be skipped after Prepare failure")
	}
	if run.Status != ledger.StatusFailed {
		t.Fatalf("expected status %s, got %s", ledger.StatusFailed, run.Status)
	}
}

func TestRunRequiresHandlerAndRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store, "j8cw03010", "/intake/j8cw03010_asn.fits")

	if err := stageexec.Run(context.Background(), stageexec.Options{Store: store, Run: run}); err == nil {
		t.Fatal("expected error when handler missing")
	}
	if err := stageexec.Run(context.Background(), stageexec.Options{Store: store, Handler: &fakeHandler{}}); err == nil {
		t.Fatal("expected error when run missing")
	}
}
