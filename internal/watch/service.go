package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"astrodriz/internal/config"
	"astrodriz/internal/exposure"
	"astrodriz/internal/fitsfile"
	"astrodriz/internal/ledger"
	"astrodriz/internal/logging"
	"astrodriz/internal/notifications"
	"astrodriz/internal/pipeline"
	"astrodriz/internal/services"
)

// RunProcessor executes one claimed run end to end.
type RunProcessor interface {
	ProcessRun(ctx context.Context, run *ledger.Run) error
}

// Service owns the unattended processing loop: an intake watcher queues
// arriving datasets into the ledger and a claim loop works them off one at
// a time. A file lock enforces a single instance per log directory.
type Service struct {
	cfg      *config.Config
	store    *ledger.Store
	logger   *slog.Logger
	notifier notifications.Service
	runner   RunProcessor

	intake        *intakeWatcher
	heartbeat     *heartbeatMonitor
	pollInterval  time.Duration
	retryInterval time.Duration

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// wake nudges the claim loop when intake queues a dataset so a fresh
	// arrival does not wait out the poll interval.
	wake chan struct{}

	queueMu     sync.Mutex
	queueActive bool
	queueStart  time.Time
}

// New constructs a watch service around a fully wired pipeline.
func New(cfg *config.Config, store *ledger.Store, logger *slog.Logger, notifier notifications.Service, opts pipeline.Options) (*Service, error) {
	runner, err := pipeline.New(cfg, store, logger, notifier, opts)
	if err != nil {
		return nil, err
	}
	return NewWithProcessor(cfg, store, logger, notifier, runner), nil
}

// NewWithProcessor constructs a watch service with an injected run
// processor (used in tests).
func NewWithProcessor(cfg *config.Config, store *ledger.Store, logger *slog.Logger, notifier notifications.Service, runner RunProcessor) *Service {
	lockPath := filepath.Join(cfg.Paths.LogDir, "astrodriz-watch.lock")
	s := &Service{
		cfg:      cfg,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "watch"),
		notifier: notifier,
		runner:   runner,
		heartbeat: newHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Watch.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Watch.HeartbeatTimeout)*time.Second,
		),
		pollInterval:  time.Duration(cfg.Watch.QueuePollInterval) * time.Second,
		retryInterval: time.Duration(cfg.Watch.ErrorRetryInterval) * time.Second,
		lockPath:      lockPath,
		lock:          flock.New(lockPath),
		wake:          make(chan struct{}, 1),
	}
	s.intake = &intakeWatcher{
		dir:     cfg.Paths.IntakeDir,
		settle:  time.Duration(cfg.Watch.SettleSeconds) * time.Second,
		rescan:  time.Duration(cfg.Watch.RescanInterval) * time.Second,
		logger:  logging.NewComponentLogger(logger, "watch-intake"),
		enqueue: s.enqueueCandidate,
	}
	return s
}

// Start acquires the instance lock and launches the intake watcher and
// claim loop. Runs stranded in a processing status by an earlier shutdown
// are reset to pending first.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("watch service already running")
	}

	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire watch lock: %w", err)
	}
	if !ok {
		return errors.New("another watch service instance is already running")
	}
	if err := os.MkdirAll(s.cfg.Paths.IntakeDir, 0o755); err != nil {
		_ = s.lock.Unlock()
		return fmt.Errorf("create intake directory: %w", err)
	}

	if reset, err := s.store.ResetStuckProcessing(ctx); err != nil {
		s.logger.Warn("reset of interrupted runs failed; they stay stuck until reclaimed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ledger database access"))
	} else if reset > 0 {
		s.logger.Info("requeued runs interrupted by previous shutdown", logging.Int64("count", reset))
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(2)

	go func() {
		defer s.wg.Done()
		s.intake.run(runCtx)
	}()
	go s.claimLoop(runCtx)

	s.logger.Info("watch service started",
		logging.String("intake_dir", s.cfg.Paths.IntakeDir),
		logging.String("lock", s.lockPath))
	return nil
}

// Stop terminates background processing, waits for in-flight work to yield,
// and releases the instance lock.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("failed to release watch lock", logging.Error(err))
	}
	s.logger.Info("watch service stopped")
}

// Running reports whether the service loops are active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) claimLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.heartbeat.reclaimStale(ctx, s.logger)

		run, err := s.store.NextForStatuses(ctx, ledger.StatusPending)
		if err != nil {
			s.handleClaimError(ctx, err)
			continue
		}
		if run == nil {
			s.waitForRunOrShutdown(ctx)
			continue
		}

		if err := s.processRun(ctx, run); errors.Is(err, context.Canceled) {
			return
		}
	}
}

// processRun drives one run through the pipeline with a heartbeat alive for
// its duration. Stage failures are already persisted and notified by the
// pipeline; only shutdown interrupts propagate.
func (s *Service) processRun(ctx context.Context, run *ledger.Run) error {
	s.markQueueActive()

	runCtx := services.WithRunID(ctx, run.ID)
	runCtx = services.WithDataset(runCtx, run.Dataset)
	logger := logging.WithContext(runCtx, s.logger)
	logger.Info("run claimed", logging.String("source_file", filepath.Base(run.SourcePath)))
	s.publish(runCtx, notifications.EventRunStarted, notifications.Payload{"dataset": run.Dataset})

	hbCtx, hbCancel := context.WithCancel(runCtx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go s.heartbeat.startLoop(hbCtx, &hbWG, run.ID)

	err := s.runner.ProcessRun(runCtx, run)
	hbCancel()
	hbWG.Wait()

	if errors.Is(err, context.Canceled) {
		s.recordShutdownInterrupt(runCtx, run, logger)
		return err
	}

	s.checkQueueCompletion(ctx)
	return err
}

// recordShutdownInterrupt annotates a run the shutdown cut short. The run
// keeps its processing status and is requeued at next start.
func (s *Service) recordShutdownInterrupt(ctx context.Context, run *ledger.Run, logger *slog.Logger) {
	logger.Info("run interrupted by shutdown; it will be requeued at next start")
	run.ProgressMessage = ledger.WatchStopReason
	if err := s.store.Update(context.WithoutCancel(ctx), run); err != nil {
		logger.Debug("could not record shutdown interruption", logging.Error(err))
	}
}

func (s *Service) handleClaimError(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.logger.Error("failed to fetch next pending run",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check ledger database access"))
	select {
	case <-ctx.Done():
	case <-time.After(s.retryInterval):
	}
}

func (s *Service) waitForRunOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-s.wake:
	case <-time.After(s.pollInterval):
	}
}

// enqueueCandidate records a settled intake file as a pending run. Datasets
// already in the ledger are left alone, so rescans never requeue finished
// work; retry and remove reopen that gate explicitly.
func (s *Service) enqueueCandidate(ctx context.Context, path string) {
	root, _ := exposure.SplitName(filepath.Base(path))
	dataset := strings.ToLower(root)
	ctx = services.WithDataset(ctx, dataset)
	logger := logging.WithContext(ctx, s.logger)

	if !exposure.IsAssociation(path) && memberOfAssociation(path) {
		logger.Debug("exposure belongs to an association; its table drives processing",
			logging.String("source_file", filepath.Base(path)))
		return
	}

	existing, err := s.store.FindLatestByDataset(ctx, dataset)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Error("ledger lookup failed; dataset not queued",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check ledger database access"))
		}
		return
	}
	if existing != nil {
		logger.Debug("dataset already recorded; not queueing again",
			logging.String("status", string(existing.Status)))
		return
	}

	run, err := s.store.NewRun(ctx, dataset, path)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Error("queueing dataset failed", logging.Error(err))
		}
		return
	}

	kind := pipeline.KindExposure
	if exposure.IsAssociation(path) {
		kind = pipeline.KindAssociation
	}
	logger.Info("dataset queued",
		logging.Int64(logging.FieldRunID, run.ID),
		logging.String("kind", kind),
		logging.String("source_file", filepath.Base(path)))
	s.publish(ctx, notifications.EventRunDetected, notifications.Payload{
		"dataset": dataset,
		"kind":    kind,
	})
	s.nudge()
}

// memberOfAssociation reports whether an exposure names its association in
// ASN_ID. Member exposures are not queued on their own; the association
// table covers them. Files that cannot be read are queued anyway so
// validation can surface the actual problem.
func memberOfAssociation(path string) bool {
	file, err := fitsfile.Read(path)
	if err != nil {
		return false
	}
	asnID, ok := file.Primary().Str("ASN_ID")
	if !ok {
		return false
	}
	asnID = strings.TrimSpace(asnID)
	return asnID != "" && !strings.EqualFold(asnID, "NONE")
}

func (s *Service) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) markQueueActive() {
	s.queueMu.Lock()
	if !s.queueActive {
		s.queueActive = true
		s.queueStart = time.Now()
	}
	s.queueMu.Unlock()
}

// checkQueueCompletion publishes a summary once no run is pending or in a
// processing status anymore.
func (s *Service) checkQueueCompletion(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Debug("shutdown cancelled queue completion check")
		} else {
			s.logger.Warn("run stats unavailable; completion notification skipped",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check ledger database access"))
		}
		return
	}
	if activeRuns(stats) > 0 {
		return
	}

	s.queueMu.Lock()
	if !s.queueActive {
		s.queueMu.Unlock()
		return
	}
	start := s.queueStart
	s.queueActive = false
	s.queueStart = time.Time{}
	s.queueMu.Unlock()

	duration := time.Duration(0)
	if !start.IsZero() {
		duration = time.Since(start)
	}
	s.publish(ctx, notifications.EventQueueCompleted, notifications.Payload{
		"processed": stats[ledger.StatusCompleted],
		"failed":    stats[ledger.StatusFailed],
		"duration":  duration,
	})
}

func activeRuns(stats map[ledger.Status]int) int {
	total := 0
	for _, status := range []ledger.Status{
		ledger.StatusPending,
		ledger.StatusValidating,
		ledger.StatusAligning,
		ledger.StatusFinalizing,
	} {
		total += stats[status]
	}
	return total
}

func (s *Service) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Debug("shutdown cancelled notification", logging.String("event", string(event)))
		} else {
			s.logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
		}
	}
}
