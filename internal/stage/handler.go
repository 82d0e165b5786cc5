package stage

import (
	"context"
	"log/slog"

	"astrodriz/internal/ledger"
)

// Handler describes the contract the pipeline driver needs from each stage.
type Handler interface {
	Prepare(context.Context, *ledger.Run) error
	Execute(context.Context, *ledger.Run) error
	HealthCheck(context.Context) Health
}

// LoggerAware is implemented by stages that accept a run-scoped logger from
// the executor before Prepare runs.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}

// Health is one stage's readiness verdict: whether the validator, aligner,
// or finalizer could process a run right now. Detail carries the blocking
// condition when Ready is false.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy reports a stage ready to process runs.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy reports a stage that cannot process runs, with the reason.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}
