package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	IntakeDir   string `toml:"intake_dir"`
	StagingDir  string `toml:"staging_dir"`
	LogDir      string `toml:"log_dir"`
	TemplateDir string `toml:"template_dir"`
}

// Astrometry controls which alignment attempts run and how results persist.
type Astrometry struct {
	ComputeAposteriori bool `toml:"compute_aposteriori"`
	ApplyApriori       bool `toml:"apply_apriori"`
	ExportHeaderlets   bool `toml:"export_headerlets"`
}

// Drizzle contains configuration for the external combination engine.
type Drizzle struct {
	Binary   string `toml:"binary"`
	Timeout  int    `toml:"timeout"`
	Cores    int    `toml:"cores"`
	InMemory bool   `toml:"in_memory"`
	// MaskBits selects the data-quality flags weighting masks tolerate.
	// Zero rejects every flagged pixel; a negative value disables
	// data-quality masking.
	MaskBits int `toml:"mask_bits"`
}

// Aligner contains configuration for the external catalog alignment tool.
type Aligner struct {
	Binary  string `toml:"binary"`
	Timeout int    `toml:"timeout"`
}

// WCSUpdater contains configuration for the external WCS refresh tool.
type WCSUpdater struct {
	Binary  string `toml:"binary"`
	Timeout int    `toml:"timeout"`
}

// Staging contains housekeeping settings for attempt directories.
type Staging struct {
	KeepDirs       bool `toml:"keep_dirs"`
	StaleAfterHrs  int  `toml:"stale_after_hours"`
	VerifiedCopies bool `toml:"verified_copies"`
}

// Watch contains configuration for the intake watch service.
type Watch struct {
	SettleSeconds      int `toml:"settle_seconds"`
	RescanInterval     int `toml:"rescan_interval"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Runs           bool   `toml:"runs"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for astrodriz.
//
// Configuration sections by subsystem:
//   - Paths: intake/staging/log/template directories
//   - Astrometry: a-priori and a-posteriori attempt switches, headerlet export
//   - Drizzle: external combination engine binary and limits
//   - Aligner: external catalog alignment binary and limits
//   - WCSUpdater: external WCS refresh binary and limits
//   - Staging: attempt directory housekeeping
//   - Watch: intake watch service intervals
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Astrometry    Astrometry    `toml:"astrometry"`
	Drizzle       Drizzle       `toml:"drizzle"`
	Aligner       Aligner       `toml:"aligner"`
	WCSUpdater    WCSUpdater    `toml:"wcs_updater"`
	Staging       Staging       `toml:"staging"`
	Watch         Watch         `toml:"watch"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/astrodriz/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized, and the astrometry
// environment switches applied. An invalid environment value is a fatal
// configuration error raised before any dataset file is touched.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(os.LookupEnv); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/astrodriz/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("astrodriz.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for pipeline operation.
// IntakeDir is created on a best-effort basis so one-shot processing can run
// when no watch intake has been configured.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir, c.Paths.TemplateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.IntakeDir) != "" {
		_ = os.MkdirAll(c.Paths.IntakeDir, 0o755)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
