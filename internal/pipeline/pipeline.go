package pipeline

import (
	"context"
	"log/slog"

	"astrodriz/internal/config"
	"astrodriz/internal/ledger"
	"astrodriz/internal/logging"
	"astrodriz/internal/notifications"
	"astrodriz/internal/services"
	"astrodriz/internal/stage"
	"astrodriz/internal/stageexec"
)

// StageSet bundles the concrete pipeline handlers in execution order.
type StageSet struct {
	Validator stage.Handler
	Aligner   stage.Handler
	Finalizer stage.Handler
}

type chainStage struct {
	name       string
	handler    stage.Handler
	processing ledger.Status
	done       ledger.Status
}

// Pipeline sequences one run through validation, alignment and
// finalization. Stages persist their own transitions through the ledger;
// a stage that resolves the run (skip or failure) stops the chain.
type Pipeline struct {
	cfg      *config.Config
	store    *ledger.Store
	logger   *slog.Logger
	notifier notifications.Service
	stages   []chainStage
}

// New wires a Pipeline with CLI-backed collaborators from configuration.
func New(cfg *config.Config, store *ledger.Store, logger *slog.Logger, notifier notifications.Service, opts Options) (*Pipeline, error) {
	aligner, err := NewAligner(cfg, store, logger, notifier, opts)
	if err != nil {
		return nil, err
	}
	return NewWithStages(cfg, store, logger, notifier, StageSet{
		Validator: NewValidator(cfg, store, logger, opts),
		Aligner:   aligner,
		Finalizer: NewFinalizer(cfg, store, logger, opts),
	}), nil
}

// NewWithStages wires a Pipeline around injected handlers (used in tests).
func NewWithStages(cfg *config.Config, store *ledger.Store, logger *slog.Logger, notifier notifications.Service, stages StageSet) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		notifier: notifier,
		stages: []chainStage{
			{name: "validate", handler: stages.Validator, processing: ledger.StatusValidating, done: ledger.StatusAligning},
			{name: "align", handler: stages.Aligner, processing: ledger.StatusAligning, done: ledger.StatusFinalizing},
			{name: "finalize", handler: stages.Finalizer, processing: ledger.StatusFinalizing, done: ledger.StatusCompleted},
		},
	}
}

// ProcessRun drives one run through the stage chain. The returned error
// is the first stage failure; the run's ledger row already reflects it.
func (p *Pipeline) ProcessRun(ctx context.Context, run *ledger.Run) error {
	runCtx := services.WithRunID(ctx, run.ID)
	runCtx = services.WithDataset(runCtx, run.Dataset)

	for _, stg := range p.stages {
		err := stageexec.Run(runCtx, stageexec.Options{
			Logger:     p.logger,
			Store:      p.store,
			Notifier:   p.notifier,
			Handler:    stg.handler,
			StageName:  stg.name,
			Processing: stg.processing,
			Done:       stg.done,
			Run:        run,
		})
		if err != nil {
			return err
		}
		if ledger.IsTerminal(run.Status) {
			break
		}
	}

	p.notifyOutcome(runCtx, run)
	return nil
}

// Health reports the readiness of every configured stage.
func (p *Pipeline) Health(ctx context.Context) []stage.Health {
	out := make([]stage.Health, 0, len(p.stages))
	for _, stg := range p.stages {
		if stg.handler == nil {
			out = append(out, stage.Unhealthy(stg.name, "handler unavailable"))
			continue
		}
		out = append(out, stg.handler.HealthCheck(ctx))
	}
	return out
}

func (p *Pipeline) notifyOutcome(ctx context.Context, run *ledger.Run) {
	if p.notifier == nil {
		return
	}
	var err error
	switch run.Status {
	case ledger.StatusCompleted:
		err = p.notifier.Publish(ctx, notifications.EventRunCompleted, notifications.Payload{
			"dataset": run.Dataset,
			"mode":    run.AcceptedMode,
		})
	case ledger.StatusSkipped:
		err = p.notifier.Publish(ctx, notifications.EventRunSkipped, notifications.Payload{
			"dataset": run.Dataset,
			"reason":  run.ProgressMessage,
		})
	default:
		return
	}
	if err != nil {
		logging.WithContext(ctx, p.logger).Debug("outcome notification failed", logging.Error(err))
	}
}
