package catalign

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var commandContext = exec.CommandContext

// Fit reports one exposure's fit against a reference catalog.
// Status zero means the exposure was aligned; Compromised flags fits
// that succeeded but should not be trusted on their own.
type Fit struct {
	ImageName     string  `json:"imageName"`
	Status        int     `json:"status"`
	Compromised   int     `json:"compromised"`
	Catalog       string  `json:"catalog"`
	FitRMS        float64 `json:"fit_rms"`
	HeaderletFile string  `json:"headerletFile"`
}

// Aligned reports whether the exposure received a usable fit.
func (f Fit) Aligned() bool {
	return f.Status == 0
}

// Aligner fits exposures to an absolute astrometric catalog.
type Aligner interface {
	Align(ctx context.Context, files []string, workDir, logPath string) ([]Fit, error)
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

// CLI wraps the catalog alignment command-line tool.
type CLI struct {
	binary  string
	timeout time.Duration
}

// NewCLI constructs a CLI client for the given binary.
func NewCLI(binary string, timeoutSeconds int, opts ...Option) (*CLI, error) {
	trimmed := strings.TrimSpace(binary)
	if trimmed == "" {
		return nil, errors.New("alignment binary required")
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

// Align runs the alignment tool against the named files inside workDir.
// File names are passed through as given, so callers staging relative
// names must set workDir to the staging directory. The tool's fit log
// lands at logPath for later trailer absorption.
func (c *CLI) Align(ctx context.Context, files []string, workDir, logPath string) ([]Fit, error) {
	if len(files) == 0 {
		return nil, errors.New("no files to align")
	}
	if workDir == "" {
		return nil, errors.New("working directory required")
	}
	if logPath == "" {
		return nil, errors.New("fit log path required")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{"--update-wcs", "--runfile", logPath, "--json"}
	args = append(args, files...)
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	cmd.Dir = workDir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.binary, err)
	}

	var fits []Fit
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Bytes()
		var fit Fit
		if err := json.Unmarshal(line, &fit); err != nil {
			continue
		}
		if fit.ImageName == "" {
			continue
		}
		fits = append(fits, fit)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read alignment output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("catalog alignment failed: %w", err)
	}
	if len(fits) == 0 {
		return nil, errors.New("alignment tool reported no fits")
	}
	return fits, nil
}

var _ Aligner = (*CLI)(nil)
