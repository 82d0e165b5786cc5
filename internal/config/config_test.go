package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"astrodriz/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "astrodriz", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if !cfg.Astrometry.ComputeAposteriori {
		t.Fatal("expected a-posteriori attempt enabled by default")
	}
	if !cfg.Astrometry.ApplyApriori {
		t.Fatal("expected a-priori attempt enabled by default")
	}
	if cfg.Drizzle.Binary != "adrizzle" {
		t.Fatalf("unexpected drizzle binary: %q", cfg.Drizzle.Binary)
	}
	if cfg.Drizzle.MaskBits != 96 {
		t.Fatalf("unexpected mask bits: %d", cfg.Drizzle.MaskBits)
	}
	if cfg.Aligner.Binary != "tweakalign" {
		t.Fatalf("unexpected aligner binary: %q", cfg.Aligner.Binary)
	}
	if cfg.Watch.SettleSeconds != config.Default().Watch.SettleSeconds {
		t.Fatalf("unexpected settle seconds: %d", cfg.Watch.SettleSeconds)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.StagingDir, cfg.Paths.LogDir, cfg.Paths.TemplateDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "astrodriz.toml")

	type payload struct {
		Astrometry struct {
			ComputeAposteriori bool `toml:"compute_aposteriori"`
		} `toml:"astrometry"`
		Drizzle struct {
			Binary  string `toml:"binary"`
			Timeout int    `toml:"timeout"`
		} `toml:"drizzle"`
	}
	custom := payload{}
	custom.Astrometry.ComputeAposteriori = false
	custom.Drizzle.Binary = "/opt/hst/bin/adrizzle"
	custom.Drizzle.Timeout = 120
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Astrometry.ComputeAposteriori {
		t.Fatal("expected a-posteriori attempt disabled by file")
	}
	if cfg.Drizzle.Binary != "/opt/hst/bin/adrizzle" {
		t.Fatalf("expected drizzle binary override, got %q", cfg.Drizzle.Binary)
	}
	if cfg.Drizzle.Timeout != 120 {
		t.Fatalf("expected drizzle timeout 120, got %d", cfg.Drizzle.Timeout)
	}
}

func TestEnvSwitchOverridesConfigFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "astrodriz.toml")

	type payload struct {
		Astrometry struct {
			ComputeAposteriori bool `toml:"compute_aposteriori"`
			ApplyApriori       bool `toml:"apply_apriori"`
		} `toml:"astrometry"`
	}
	custom := payload{}
	custom.Astrometry.ComputeAposteriori = true
	custom.Astrometry.ApplyApriori = true
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	t.Setenv(config.EnvComputeAposteriori, "off")
	t.Setenv(config.EnvApplyApriori, "NO")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Astrometry.ComputeAposteriori {
		t.Error("expected env to disable a-posteriori attempt")
	}
	if cfg.Astrometry.ApplyApriori {
		t.Error("expected env to disable a-priori attempt")
	}
}

func TestEnvSwitchInvalidValueFails(t *testing.T) {
	t.Setenv(config.EnvComputeAposteriori, "maybe")

	_, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Fatal("expected error for unparseable switch value")
	}
	if !strings.Contains(err.Error(), config.EnvComputeAposteriori) {
		t.Fatalf("expected error to name the variable, got %v", err)
	}
}

func TestParseSwitch(t *testing.T) {
	cases := []struct {
		value   string
		enabled bool
		wantErr bool
	}{
		{"on", true, false},
		{"ON", true, false},
		{"yes", true, false},
		{"True", true, false},
		{"off", false, false},
		{"No", false, false},
		{"FALSE", false, false},
		{" true ", true, false},
		{"maybe", false, true},
		{"1", false, true},
		{"", false, true},
	}
	for _, tc := range cases {
		enabled, err := config.ParseSwitch(tc.value)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseSwitch(%q): expected error", tc.value)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSwitch(%q): unexpected error %v", tc.value, err)
			continue
		}
		if enabled != tc.enabled {
			t.Errorf("ParseSwitch(%q) = %v, want %v", tc.value, enabled, tc.enabled)
		}
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "adrizzle") {
		t.Fatalf("sample config missing drizzle binary default: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unexpected sample logging format: %q", cfg.Logging.Format)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Drizzle.Timeout = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive timeout")
	}

	cfg = config.Default()
	cfg.Aligner.Binary = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty aligner binary")
	}

	cfg = config.Default()
	cfg.Logging.Level = "loud"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown log level")
	}

	cfg = config.Default()
	cfg.Watch.SettleSeconds = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative settle seconds")
	}
}
