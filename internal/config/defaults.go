package config

const (
	defaultIntakeDir          = "~/.local/share/astrodriz/intake"
	defaultStagingDir         = "~/.local/share/astrodriz/staging"
	defaultLogDir             = "~/.local/share/astrodriz/logs"
	defaultTemplateDir        = "~/.local/share/astrodriz/templates"
	defaultDrizzleBinary      = "adrizzle"
	defaultDrizzleTimeout     = 3600
	defaultDrizzleCores       = 1
	defaultDrizzleMaskBits    = 96
	defaultAlignerBinary      = "tweakalign"
	defaultAlignerTimeout     = 1800
	defaultWCSBinary          = "updatewcs"
	defaultWCSTimeout         = 600
	defaultStaleAfterHours    = 24
	defaultSettleSeconds      = 5
	defaultRescanInterval     = 300
	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 30
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120
	defaultNtfyRequestTimeout = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			IntakeDir:   defaultIntakeDir,
			StagingDir:  defaultStagingDir,
			LogDir:      defaultLogDir,
			TemplateDir: defaultTemplateDir,
		},
		Astrometry: Astrometry{
			ComputeAposteriori: true,
			ApplyApriori:       true,
			ExportHeaderlets:   true,
		},
		Drizzle: Drizzle{
			Binary:   defaultDrizzleBinary,
			Timeout:  defaultDrizzleTimeout,
			Cores:    defaultDrizzleCores,
			InMemory: false,
			MaskBits: defaultDrizzleMaskBits,
		},
		Aligner: Aligner{
			Binary:  defaultAlignerBinary,
			Timeout: defaultAlignerTimeout,
		},
		WCSUpdater: WCSUpdater{
			Binary:  defaultWCSBinary,
			Timeout: defaultWCSTimeout,
		},
		Staging: Staging{
			KeepDirs:       false,
			StaleAfterHrs:  defaultStaleAfterHours,
			VerifiedCopies: true,
		},
		Watch: Watch{
			SettleSeconds:      defaultSettleSeconds,
			RescanInterval:     defaultRescanInterval,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			Runs:           true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
