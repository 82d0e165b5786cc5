package config

import (
	"fmt"
	"strings"
)

// Environment variables that override the astrometry attempt switches.
// Operators toggle these per pipeline invocation without editing the
// configuration file.
const (
	EnvComputeAposteriori = "ASTROMETRY_COMPUTE_APOSTERIORI"
	EnvApplyApriori       = "ASTROMETRY_APPLY_APRIORI"
)

// ParseSwitch interprets an environment switch value. Accepted spellings are
// on, yes, and true for enabled and off, no, and false for disabled, in any
// case. Anything else is an error so a typo halts the run before any dataset
// file is touched.
func ParseSwitch(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "yes", "true":
		return true, nil
	case "off", "no", "false":
		return false, nil
	default:
		return false, fmt.Errorf("unrecognized switch value %q (expected on/off, yes/no, or true/false)", value)
	}
}

func (c *Config) applyEnvOverrides(lookup func(string) (string, bool)) error {
	if value, ok := lookup(EnvComputeAposteriori); ok {
		enabled, err := ParseSwitch(value)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvComputeAposteriori, err)
		}
		c.Astrometry.ComputeAposteriori = enabled
	}
	if value, ok := lookup(EnvApplyApriori); ok {
		enabled, err := ParseSwitch(value)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvApplyApriori, err)
		}
		c.Astrometry.ApplyApriori = enabled
	}
	return nil
}
