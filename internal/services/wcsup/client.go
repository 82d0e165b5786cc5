package wcsup

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var commandContext = exec.CommandContext

// Updater refreshes WCS solutions in calibrated exposures.
type Updater interface {
	Update(ctx context.Context, files []string, workDir string, useDB bool) error
}

// Option configures the CLI client.
type Option func(*CLI)

// WithTimeout overrides the per-invocation timeout.
func WithTimeout(seconds int) Option {
	return func(c *CLI) {
		if seconds > 0 {
			c.timeout = time.Duration(seconds) * time.Second
		}
	}
}

// CLI wraps the WCS update command-line tool.
type CLI struct {
	binary  string
	timeout time.Duration
}

// NewCLI constructs a CLI client for the given binary.
func NewCLI(binary string, timeoutSeconds int, opts ...Option) (*CLI, error) {
	trimmed := strings.TrimSpace(binary)
	if trimmed == "" {
		return nil, errors.New("wcs update binary required")
	}
	cli := &CLI{binary: trimmed}
	if timeoutSeconds > 0 {
		cli.timeout = time.Duration(timeoutSeconds) * time.Second
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// Update rewrites the WCS solutions of the named files in place.
// File names are passed through as given, so callers staging relative
// names must set workDir to the staging directory.
func (c *CLI) Update(ctx context.Context, files []string, workDir string, useDB bool) error {
	if len(files) == 0 {
		return errors.New("no files to update")
	}
	if workDir == "" {
		return errors.New("working directory required")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := make([]string, 0, len(files)+1)
	if useDB {
		args = append(args, "--use-db")
	} else {
		args = append(args, "--no-db")
	}
	args = append(args, files...)

	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	cmd.Dir = workDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		tail := strings.TrimSpace(string(output))
		if len(tail) > 400 {
			tail = tail[len(tail)-400:]
		}
		if tail != "" {
			return fmt.Errorf("wcs update failed: %w: %s", err, tail)
		}
		return fmt.Errorf("wcs update failed: %w", err)
	}
	return nil
}

var _ Updater = (*CLI)(nil)
