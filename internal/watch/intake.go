package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"astrodriz/internal/exposure"
	"astrodriz/internal/logging"
)

// candidateSuffixes are the dataset file kinds that start a run when they
// appear in the intake directory.
var candidateSuffixes = map[string]bool{
	exposure.SuffixASN: true,
	exposure.SuffixRaw: true,
	exposure.SuffixFLT: true,
	exposure.SuffixFLC: true,
	exposure.SuffixC0M: true,
}

// pendingFile tracks an observed candidate until its size stops changing.
type pendingFile struct {
	size  int64
	since time.Time
}

// intakeWatcher watches one directory for arriving dataset files. A file is
// handed to enqueue once it has sat unchanged for the settle window, so a
// half-copied exposure is never queued. Rescans pick up files whose events
// were missed, including anything already present at startup.
type intakeWatcher struct {
	dir     string
	settle  time.Duration
	rescan  time.Duration
	logger  *slog.Logger
	enqueue func(ctx context.Context, path string)
}

func (w *intakeWatcher) run(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("intake watcher unavailable", logging.Error(err))
		return
	}
	defer watcher.Close()
	if err := watcher.Add(w.dir); err != nil {
		w.logger.Error("intake directory not watchable",
			logging.String("intake_dir", w.dir), logging.Error(err))
		return
	}

	pending := make(map[string]pendingFile)
	w.scan(pending)

	settleTicker := time.NewTicker(w.settleTick())
	defer settleTicker.Stop()
	rescanTicker := time.NewTicker(w.rescan)
	defer rescanTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.observe(pending, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("intake watch error", logging.Error(err))
		case <-rescanTicker.C:
			w.scan(pending)
		case <-settleTicker.C:
			w.flush(ctx, pending)
		}
	}
}

// settleTick is how often pending files are checked for stability. The
// settle window itself stays authoritative; this only bounds detection lag.
func (w *intakeWatcher) settleTick() time.Duration {
	tick := w.settle / 2
	if tick < time.Second {
		tick = time.Second
	}
	return tick
}

func (w *intakeWatcher) observe(pending map[string]pendingFile, path string) {
	if !isCandidate(path) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	// Any event restarts the settle window: the file just changed.
	pending[path] = pendingFile{size: info.Size(), since: time.Now()}
}

func (w *intakeWatcher) scan(pending map[string]pendingFile) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("intake rescan failed", logging.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if !isCandidate(path) {
			continue
		}
		if _, tracked := pending[path]; tracked {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		pending[path] = pendingFile{size: info.Size(), since: time.Now()}
	}
}

func (w *intakeWatcher) flush(ctx context.Context, pending map[string]pendingFile) {
	now := time.Now()
	for path, entry := range pending {
		info, err := os.Stat(path)
		if err != nil {
			delete(pending, path)
			continue
		}
		if info.Size() != entry.size {
			pending[path] = pendingFile{size: info.Size(), since: now}
			continue
		}
		if now.Sub(entry.since) < w.settle {
			continue
		}
		delete(pending, path)
		w.enqueue(ctx, path)
	}
}

func isCandidate(path string) bool {
	if filepath.Ext(path) != ".fits" {
		return false
	}
	_, suffix := exposure.SplitName(filepath.Base(path))
	return candidateSuffixes[suffix]
}
