package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"astrodriz/internal/config"
	"astrodriz/internal/fitsfile"
	"astrodriz/internal/ledger"
	"astrodriz/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *ledger.Store
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())

	configPath := filepath.Join(homeDir, ".config", "astrodriz", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		configPath: configPath,
		baseDir:    base,
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// writeScience drops a minimal calibrated ACS exposure at path so commands
// under test have real headers to inspect.
func writeScience(t *testing.T, path, drizcorr string) {
	t.Helper()
	primary := fitsfile.Primary{Cards: []fitsfile.Card{
		{Key: "INSTRUME", Value: "ACS"},
		{Key: "DETECTOR", Value: "WFC"},
		{Key: "DRIZCORR", Value: drizcorr},
		{Key: "EXPTIME", Value: 348.0},
	}}
	sci := fitsfile.Image{
		Name: "SCI", Ver: 1, Width: 2, Height: 2,
		Float32: []float32{1, 2, 3, 4},
		Cards: []fitsfile.Card{
			{Key: "BUNIT", Value: "ELECTRONS"},
			{Key: "WCSNAME", Value: "IDC_0461802ej"},
			{Key: "CRVAL1", Value: 83.67},
			{Key: "CRVAL2", Value: -5.41},
		},
	}
	if err := fitsfile.Write(path, primary, []fitsfile.Image{sci}, nil); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
