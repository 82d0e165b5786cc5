// Package staging owns the per-attempt working directories the verifier
// drizzles in. Every alignment attempt gets a private directory under
// <staging_dir>/<dataset>/<mode>; inputs are copied in, the engine runs
// against explicit paths, and accepted products are copied back out. The
// process working directory is never changed.
package staging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"astrodriz/internal/config"
	"astrodriz/internal/fileutil"
	"astrodriz/internal/logging"
)

// Manager creates and releases attempt directories under the configured
// staging root.
type Manager struct {
	root     string
	verified bool
	keep     bool
	logger   *slog.Logger
}

// NewManager builds a Manager from configuration. When keep-staging is set
// the release calls leave directories in place for inspection.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{
		root:     cfg.Paths.StagingDir,
		verified: cfg.Staging.VerifiedCopies,
		keep:     cfg.Staging.KeepDirs,
		logger:   logging.NewComponentLogger(logger, "staging"),
	}
}

// Root returns the staging root directory.
func (m *Manager) Root() string {
	return m.root
}

// Attempt creates a fresh working directory for one alignment attempt.
// Leftovers from an earlier run of the same dataset and mode are removed
// first.
func (m *Manager) Attempt(dataset, mode string) (*Context, error) {
	dir := filepath.Join(m.root, dataset, mode)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clear staging dir %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir %s: %w", dir, err)
	}
	return &Context{
		Dataset:  dataset,
		Mode:     mode,
		Dir:      dir,
		verified: m.verified,
		keep:     m.keep,
		logger:   m.logger,
	}, nil
}

// ReleaseDataset removes the dataset's staging tree once all attempts are
// finished. Kept directories survive for debugging.
func (m *Manager) ReleaseDataset(dataset string) error {
	if m.keep {
		m.logger.Info("keeping staging tree",
			logging.String(logging.FieldDataset, dataset),
			logging.String("path", filepath.Join(m.root, dataset)))
		return nil
	}
	return os.RemoveAll(filepath.Join(m.root, dataset))
}

// Context is one attempt's private working directory. All file operations
// go through explicit paths under Dir.
type Context struct {
	Dataset string
	Mode    string
	Dir     string

	verified bool
	keep     bool
	logger   *slog.Logger
}

// Stage copies files into the attempt directory and returns their staged
// paths in input order.
func (c *Context) Stage(files ...string) ([]string, error) {
	staged := make([]string, 0, len(files))
	for _, src := range files {
		dst := filepath.Join(c.Dir, filepath.Base(src))
		if err := c.copy(src, dst); err != nil {
			return nil, fmt.Errorf("stage %s: %w", filepath.Base(src), err)
		}
		staged = append(staged, dst)
	}
	return staged, nil
}

// Path returns the staged location for a file name.
func (c *Context) Path(name string) string {
	return filepath.Join(c.Dir, filepath.Base(name))
}

// CopyBack copies staged files out to destDir, typically after the attempt
// was accepted. Sources are staged paths or bare names.
func (c *Context) CopyBack(destDir string, names ...string) error {
	for _, name := range names {
		src := c.Path(name)
		dst := filepath.Join(destDir, filepath.Base(name))
		if err := c.copy(src, dst); err != nil {
			return fmt.Errorf("copy back %s: %w", filepath.Base(name), err)
		}
	}
	return nil
}

// Release removes the attempt directory. It never fails the attempt: a
// directory that cannot be removed is logged and left for the stale
// cleanup.
func (c *Context) Release() {
	if c.keep {
		c.logger.Info("keeping staging directory",
			logging.String(logging.FieldDataset, c.Dataset),
			logging.String(logging.FieldMode, c.Mode),
			logging.String("path", c.Dir))
		return
	}
	if err := os.RemoveAll(c.Dir); err != nil {
		c.logger.Warn("failed to remove staging directory",
			logging.String("path", c.Dir),
			logging.Error(err),
			logging.String(logging.FieldEventType, "staging_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
			logging.String(logging.FieldImpact, "disk space not reclaimed"))
	}
}

func (c *Context) copy(src, dst string) error {
	if c.verified {
		return fileutil.CopyFileVerified(src, dst)
	}
	return fileutil.CopyFile(src, dst)
}
