package drizzle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

var commandContext = exec.CommandContext

// Params carries one attempt's engine controls. The zero value is not
// runnable; the alignment stage fills it from its mode defaults.
type Params struct {
	// Input names the exposure list or association working copy the
	// engine combines, relative to WorkDir.
	Input string
	// RunFile is the engine log root: the engine writes <RunFile>.log and
	// the client captures process output to <RunFile>.stderr.
	RunFile string
	// WorkDir is the attempt staging directory the engine runs in.
	WorkDir string

	InMemory bool
	Cores    int
	MDrizTab bool
	StepSize int
	Preserve bool
	Clean    bool

	Build          bool
	ResetBits      int
	Static         bool
	SkySub         bool
	DrizSeparate   bool
	DrizSepBits    string
	DrizSepFillVal float64
	Median         bool
	Blot           bool
	DrizCR         bool
}

// Result collects what the engine left in the staging directory.
type Result struct {
	// Products are the combined product files, uncorrected set first,
	// CTE-corrected set last.
	Products   []string
	LogPath    string
	StderrPath string
}

// Engine defines the behaviour required by the alignment verifier.
type Engine interface {
	Drizzle(ctx context.Context, params Params) (Result, error)
}

// Option configures the client.
type Option func(*CLI)

// CLI wraps the drizzle engine command line.
type CLI struct {
	binary  string
	timeout time.Duration
}

// NewCLI constructs an engine client.
func NewCLI(binary string, timeoutSeconds int, opts ...Option) (*CLI, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("drizzle binary required")
	}
	cli := &CLI{
		binary:  binary,
		timeout: time.Duration(timeoutSeconds) * time.Second,
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// Drizzle runs the engine for one attempt and returns the products it
// produced. The engine's own log and the captured process output are
// always named in the result, error or not, so the caller can fold them
// into the dataset trailer.
func (c *CLI) Drizzle(ctx context.Context, params Params) (Result, error) {
	result := Result{
		LogPath:    params.RunFile + ".log",
		StderrPath: params.RunFile + ".stderr",
	}
	if params.Input == "" {
		return result, errors.New("input file required")
	}
	if params.WorkDir == "" {
		return result, errors.New("working directory required")
	}
	if params.RunFile == "" {
		return result, errors.New("run file root required")
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	capture, err := os.Create(result.StderrPath)
	if err != nil {
		return result, fmt.Errorf("create engine capture file: %w", err)
	}
	defer capture.Close()

	cmd := commandContext(runCtx, c.binary, buildArgs(params)...) //nolint:gosec
	cmd.Dir = params.WorkDir
	cmd.Stdout = capture
	cmd.Stderr = capture
	if err := cmd.Run(); err != nil {
		return result, fmt.Errorf("drizzle engine: %w", err)
	}

	products, err := gatherProducts(params.WorkDir)
	if err != nil {
		return result, fmt.Errorf("inspect engine outputs: %w", err)
	}
	if len(products) == 0 {
		return result, errors.New("drizzle engine produced no combined products")
	}
	result.Products = products
	return result, nil
}

func buildArgs(params Params) []string {
	args := []string{
		"--input", params.Input,
		"--runfile", params.RunFile,
		"--cores", strconv.Itoa(params.Cores),
		"--stepsize", strconv.Itoa(params.StepSize),
		"--resetbits", strconv.Itoa(params.ResetBits),
	}
	args = append(args, toggle("in-memory", params.InMemory))
	args = append(args, toggle("mdriztab", params.MDrizTab))
	args = append(args, toggle("preserve", params.Preserve))
	args = append(args, toggle("clean", params.Clean))
	args = append(args, toggle("build", params.Build))
	args = append(args, toggle("static", params.Static))
	args = append(args, toggle("skysub", params.SkySub))
	args = append(args, toggle("driz-separate", params.DrizSeparate))
	args = append(args, toggle("median", params.Median))
	args = append(args, toggle("blot", params.Blot))
	args = append(args, toggle("driz-cr", params.DrizCR))
	if params.DrizSepBits != "" {
		args = append(args, "--driz-sep-bits", params.DrizSepBits)
	}
	args = append(args, "--driz-sep-fillval",
		strconv.FormatFloat(params.DrizSepFillVal, 'g', -1, 64))
	return args
}

func toggle(name string, on bool) string {
	if on {
		return "--" + name
	}
	return "--no-" + name
}

// gatherProducts finds the combined products the engine wrote. The
// uncorrected set (_drz) sorts ahead of the CTE-corrected set (_drc) so
// that the most corrected product is always last.
func gatherProducts(dir string) ([]string, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var products []string
	for _, item := range items {
		if item.IsDir() {
			continue
		}
		name := strings.ToLower(item.Name())
		if strings.HasSuffix(name, "_drz.fits") || strings.HasSuffix(name, "_drc.fits") {
			products = append(products, filepath.Join(dir, item.Name()))
		}
	}
	sort.Slice(products, func(i, j int) bool {
		di := strings.HasSuffix(strings.ToLower(products[i]), "_drc.fits")
		dj := strings.HasSuffix(strings.ToLower(products[j]), "_drc.fits")
		if di != dj {
			return !di
		}
		return products[i] < products[j]
	})
	return products, nil
}

var _ Engine = (*CLI)(nil)
