package staging

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"astrodriz/internal/logging"
)

// CleanStaleResult contains the outcome of a staging cleanup sweep.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes dataset staging trees whose top-level directory has not
// been touched for maxAge. A tree goes stale when a run was interrupted
// before its own cleanup ran.
func CleanStale(ctx context.Context, stagingDir string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	cutoff := time.Now().Add(-maxAge)
	return sweep(ctx, stagingDir, logger, "stale", func(entry os.DirEntry) (bool, error) {
		info, err := entry.Info()
		if err != nil {
			return false, err
		}
		return info.ModTime().Before(cutoff), nil
	})
}

// CleanOrphaned removes dataset staging trees that no in-flight run owns.
// activeDatasets holds the lowercased rootnames of runs still processing;
// directory names compare case-insensitively because rootnames arrive in
// either case from archive deliveries.
func CleanOrphaned(ctx context.Context, stagingDir string, activeDatasets map[string]struct{}, logger *slog.Logger) CleanStaleResult {
	return sweep(ctx, stagingDir, logger, "orphaned", func(entry os.DirEntry) (bool, error) {
		_, active := activeDatasets[strings.ToLower(entry.Name())]
		return !active, nil
	})
}

// sweep walks the top level of stagingDir and deletes every dataset tree the
// predicate selects. Cancellation stops the walk between entries; removals
// already done stay done.
func sweep(ctx context.Context, stagingDir string, logger *slog.Logger, reason string, shouldRemove func(os.DirEntry) (bool, error)) CleanStaleResult {
	result := CleanStaleResult{}

	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return result
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Error: err})
		}
		return result
	}

	for _, entry := range entries {
		if ctx != nil && ctx.Err() != nil {
			break
		}
		if !entry.IsDir() {
			continue
		}

		dirPath := filepath.Join(stagingDir, entry.Name())
		remove, err := shouldRemove(entry)
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !remove {
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			if logger != nil {
				logger.Warn("failed to remove staging directory",
					logging.String("path", dirPath),
					logging.String("reason", reason),
					logging.Error(err),
					logging.String(logging.FieldEventType, "staging_cleanup_failed"),
					logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			continue
		}

		result.Removed = append(result.Removed, dirPath)
		if logger != nil {
			logger.Info("removed staging directory",
				logging.String("path", dirPath),
				logging.String("reason", reason),
				logging.String(logging.FieldEventType, "staging_cleanup"),
			)
		}
	}

	return result
}

// DirInfo contains metadata about one dataset staging tree.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// ListDirectories returns the dataset trees under the staging directory,
// sorted by name so CLI listings stay stable between invocations.
func ListDirectories(stagingDir string) ([]DirInfo, error) {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		dirPath := filepath.Join(stagingDir, entry.Name())
		dirs = append(dirs, DirInfo{
			Name:    entry.Name(),
			Path:    dirPath,
			ModTime: info.ModTime(),
			Size:    treeSize(dirPath),
		})
	}

	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
	return dirs, nil
}

// treeSize sums file sizes below path, best effort. Unreadable entries count
// as zero rather than failing the listing.
func treeSize(path string) int64 {
	var size int64
	filepath.WalkDir(path, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		if info, err := entry.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
