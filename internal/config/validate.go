package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateTools() error {
	if strings.TrimSpace(c.Drizzle.Binary) == "" {
		return errors.New("drizzle.binary must be set")
	}
	if strings.TrimSpace(c.Aligner.Binary) == "" {
		return errors.New("aligner.binary must be set")
	}
	if strings.TrimSpace(c.WCSUpdater.Binary) == "" {
		return errors.New("wcs_updater.binary must be set")
	}
	return ensurePositiveMap(map[string]int{
		"drizzle.timeout":     c.Drizzle.Timeout,
		"drizzle.cores":       c.Drizzle.Cores,
		"aligner.timeout":     c.Aligner.Timeout,
		"wcs_updater.timeout": c.WCSUpdater.Timeout,
	})
}

func (c *Config) validateWatch() error {
	return ensurePositiveMap(map[string]int{
		"staging.stale_after_hours":  c.Staging.StaleAfterHrs,
		"watch.settle_seconds":       c.Watch.SettleSeconds,
		"watch.rescan_interval":      c.Watch.RescanInterval,
		"watch.queue_poll_interval":  c.Watch.QueuePollInterval,
		"watch.error_retry_interval": c.Watch.ErrorRetryInterval,
		"watch.heartbeat_interval":   c.Watch.HeartbeatInterval,
		"watch.heartbeat_timeout":    c.Watch.HeartbeatTimeout,
	})
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
