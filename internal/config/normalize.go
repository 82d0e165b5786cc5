package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeStaging()
	c.normalizeWatch()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.IntakeDir) != "" {
		if c.Paths.IntakeDir, err = expandPath(c.Paths.IntakeDir); err != nil {
			return fmt.Errorf("paths.intake_dir: %w", err)
		}
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TemplateDir) == "" {
		c.Paths.TemplateDir = defaultTemplateDir
	}
	if c.Paths.TemplateDir, err = expandPath(c.Paths.TemplateDir); err != nil {
		return fmt.Errorf("paths.template_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTools() {
	c.Drizzle.Binary = strings.TrimSpace(c.Drizzle.Binary)
	if c.Drizzle.Binary == "" {
		c.Drizzle.Binary = defaultDrizzleBinary
	}
	if c.Drizzle.Timeout <= 0 {
		c.Drizzle.Timeout = defaultDrizzleTimeout
	}
	if c.Drizzle.Cores <= 0 {
		c.Drizzle.Cores = defaultDrizzleCores
	}
	c.Aligner.Binary = strings.TrimSpace(c.Aligner.Binary)
	if c.Aligner.Binary == "" {
		c.Aligner.Binary = defaultAlignerBinary
	}
	if c.Aligner.Timeout <= 0 {
		c.Aligner.Timeout = defaultAlignerTimeout
	}
	c.WCSUpdater.Binary = strings.TrimSpace(c.WCSUpdater.Binary)
	if c.WCSUpdater.Binary == "" {
		c.WCSUpdater.Binary = defaultWCSBinary
	}
	if c.WCSUpdater.Timeout <= 0 {
		c.WCSUpdater.Timeout = defaultWCSTimeout
	}
}

func (c *Config) normalizeStaging() {
	if c.Staging.StaleAfterHrs <= 0 {
		c.Staging.StaleAfterHrs = defaultStaleAfterHours
	}
}

func (c *Config) normalizeWatch() {
	if c.Watch.SettleSeconds <= 0 {
		c.Watch.SettleSeconds = defaultSettleSeconds
	}
	if c.Watch.RescanInterval <= 0 {
		c.Watch.RescanInterval = defaultRescanInterval
	}
	if c.Watch.QueuePollInterval <= 0 {
		c.Watch.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Watch.ErrorRetryInterval <= 0 {
		c.Watch.ErrorRetryInterval = defaultErrorRetryInterval
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
