package pipeline_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"astrodriz/internal/ledger"
	"astrodriz/internal/logging"
	"astrodriz/internal/notifications"
	"astrodriz/internal/pipeline"
	"astrodriz/internal/services"
	"astrodriz/internal/stage"
	"astrodriz/internal/testsupport"
)

type scriptedStage struct {
	name       string
	prepareErr error
	executeErr error
	onExecute  func(run *ledger.Run)
	executed   int
}

func (s *scriptedStage) Prepare(_ context.Context, _ *ledger.Run) error { return s.prepareErr }

func (s *scriptedStage) Execute(_ context.Context, run *ledger.Run) error {
	s.executed++
	if s.onExecute != nil {
		s.onExecute(run)
	}
	return s.executeErr
}

func (s *scriptedStage) HealthCheck(context.Context) stage.Health { return stage.Healthy(s.name) }

func newChainFixture(t *testing.T) (*ledger.Store, *ledger.Run, *recordingNotifier) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	source := filepath.Join(t.TempDir(), "j8cw03010_asn.fits")
	testsupport.WriteFile(t, source, 64)
	run := testsupport.NewRun(t, store, "j8cw03010", source)
	return store, run, &recordingNotifier{}
}

func TestProcessRunCompletesChain(t *testing.T) {
	store, run, notifier := newChainFixture(t)
	validate := &scriptedStage{name: "validate"}
	alignStage := &scriptedStage{name: "align", onExecute: func(run *ledger.Run) {
		run.AcceptedMode = "aposteriori"
	}}
	finalize := &scriptedStage{name: "finalize"}

	p := pipeline.NewWithStages(nil, store, logging.NewNop(), notifier, pipeline.StageSet{
		Validator: validate,
		Aligner:   alignStage,
		Finalizer: finalize,
	})
	if err := p.ProcessRun(context.Background(), run); err != nil {
		t.Fatalf("ProcessRun: %v", err)
	}

	if run.Status != ledger.StatusCompleted {
		t.Fatalf("Status = %q", run.Status)
	}
	for _, stg := range []*scriptedStage{validate, alignStage, finalize} {
		if stg.executed != 1 {
			t.Fatalf("stage %s executed %d times", stg.name, stg.executed)
		}
	}

	stored, err := store.GetByID(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != ledger.StatusCompleted {
		t.Fatalf("persisted status = %q", stored.Status)
	}

	events := notifier.recorded()
	if len(events) != 1 || events[0] != notifications.EventRunCompleted {
		t.Fatalf("events = %v", events)
	}
	if notifier.loads[0]["mode"] != "aposteriori" {
		t.Fatalf("payload = %v", notifier.loads[0])
	}
}

func TestProcessRunStopsWhenRunSkips(t *testing.T) {
	store, run, notifier := newChainFixture(t)
	validate := &scriptedStage{name: "validate", onExecute: func(run *ledger.Run) {
		run.SetSkipped("DRIZCORR = OMIT")
	}}
	alignStage := &scriptedStage{name: "align"}
	finalize := &scriptedStage{name: "finalize"}

	p := pipeline.NewWithStages(nil, store, logging.NewNop(), notifier, pipeline.StageSet{
		Validator: validate,
		Aligner:   alignStage,
		Finalizer: finalize,
	})
	if err := p.ProcessRun(context.Background(), run); err != nil {
		t.Fatalf("ProcessRun: %v", err)
	}

	if run.Status != ledger.StatusSkipped {
		t.Fatalf("Status = %q", run.Status)
	}
	if alignStage.executed != 0 || finalize.executed != 0 {
		t.Fatal("skipped run must stop the chain")
	}
	events := notifier.recorded()
	if len(events) != 1 || events[0] != notifications.EventRunSkipped {
		t.Fatalf("events = %v", events)
	}
	if notifier.loads[0]["reason"] != "DRIZCORR = OMIT" {
		t.Fatalf("payload = %v", notifier.loads[0])
	}
}

func TestProcessRunReturnsStageFailure(t *testing.T) {
	store, run, notifier := newChainFixture(t)
	validate := &scriptedStage{name: "validate"}
	alignStage := &scriptedStage{
		name:       "align",
		executeErr: services.Wrap(services.ErrExternalTool, "align", "run engine", "Drizzle engine failed", nil),
	}
	finalize := &scriptedStage{name: "finalize"}

	p := pipeline.NewWithStages(nil, store, logging.NewNop(), notifier, pipeline.StageSet{
		Validator: validate,
		Aligner:   alignStage,
		Finalizer: finalize,
	})
	err := p.ProcessRun(context.Background(), run)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("ProcessRun error = %v", err)
	}

	if run.Status != ledger.StatusFailed {
		t.Fatalf("Status = %q", run.Status)
	}
	if finalize.executed != 0 {
		t.Fatal("failure must stop the chain")
	}
	events := notifier.recorded()
	if len(events) != 1 || events[0] != notifications.EventError {
		t.Fatalf("events = %v", events)
	}
}

func TestPipelineHealthCoversStages(t *testing.T) {
	store, _, notifier := newChainFixture(t)
	p := pipeline.NewWithStages(nil, store, logging.NewNop(), notifier, pipeline.StageSet{
		Validator: &scriptedStage{name: "validate"},
		Aligner:   &scriptedStage{name: "align"},
	})

	healths := p.Health(context.Background())
	if len(healths) != 3 {
		t.Fatalf("health entries = %d, want 3", len(healths))
	}
	if !healths[0].Ready || !healths[1].Ready {
		t.Fatalf("healths = %+v", healths)
	}
	if healths[2].Ready {
		t.Fatal("missing finalizer must report unhealthy")
	}
}
